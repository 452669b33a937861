// Package keytable holds the fixed PAR key tables and the cyclic keystream
// drawn from them.
package keytable

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

const (
	// Size is the length in bytes of a key table blob.
	Size = 512

	// Words is the number of 64-bit keystream words in a table.
	Words = Size / 8
)

var (
	ErrTableSize        = errors.New("keytable: table must be exactly 512 bytes")
	ErrTableUnavailable = errors.New("keytable: no table loaded for this par type")
)

// Table is an immutable key table, viewed as 64 little-endian words.
type Table struct {
	words [Words]uint64
}

// FromBytes builds a table from a 512-byte blob. The blob is not retained.
func FromBytes(b []byte) (*Table, error) {
	if len(b) != Size {
		return nil, fmt.Errorf("%w: got %d", ErrTableSize, len(b))
	}
	t := &Table{}
	for i := range t.words {
		t.words[i] = binary.LittleEndian.Uint64(b[i*8:])
	}
	return t, nil
}

// Load reads a table blob from disk.
func Load(path string) (*Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keytable: read %s: %w", path, err)
	}
	t, err := FromBytes(b)
	if err != nil {
		return nil, fmt.Errorf("keytable: %s: %w", path, err)
	}
	return t, nil
}

// WordAt returns keystream word i, cycling over the table.
func (t *Table) WordAt(i uint64) uint64 {
	return t.words[i%Words]
}

// Bytes returns a copy of the table in its on-disk layout.
func (t *Table) Bytes() []byte {
	b := make([]byte, Size)
	for i, w := range t.words {
		binary.LittleEndian.PutUint64(b[i*8:], w)
	}
	return b
}

// Keystream returns a keystream positioned at index 0.
func (t *Table) Keystream() *Keystream {
	return &Keystream{table: t}
}

// Keystream cycles over a table's words forever. The word returned for
// index i is always WordAt(i), whatever happened before.
type Keystream struct {
	table *Table
	index uint64
}

// Next returns the word for the current index and advances.
func (k *Keystream) Next() uint64 {
	w := k.table.WordAt(k.index)
	k.index++
	return w
}

// Seek positions the keystream so that the next word drawn is word i.
func (k *Keystream) Seek(i uint64) {
	k.index = i
}

// Index is the position of the next word to be drawn.
func (k *Keystream) Index() uint64 {
	return k.index
}
