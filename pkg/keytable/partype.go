package keytable

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ParType selects which key table applies to an archive.
type ParType uint8

const (
	Auto ParType = iota
	Chara
	Chara2
)

var ErrUnknownParType = errors.New("keytable: unknown par type")

// MagicSize is the number of header bytes needed for detection.
const MagicSize = 4

// Encrypted archive headers.
var magics = map[ParType][MagicSize]byte{
	Chara:  {0xAC, 0xC5, 0x8B, 0x99},
	Chara2: {0x01, 0x6E, 0x58, 0xE4},
}

var names = map[ParType]string{
	Auto:   "auto",
	Chara:  "chara",
	Chara2: "chara2",
}

// Known lists the concrete par types in a stable order.
func Known() []ParType {
	return []ParType{Chara, Chara2}
}

func (p ParType) String() string {
	if s, ok := names[p]; ok {
		return s
	}
	return fmt.Sprintf("ParType(%d)", uint8(p))
}

// FileName is the key blob name looked up in a key directory.
func (p ParType) FileName() string {
	return p.String() + "_key.bin"
}

// ParseParType accepts auto, chara, chara2 and the archive names chara.par
// and chara2.par.
func ParseParType(s string) (ParType, error) {
	s = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), ".par")
	for p, name := range names {
		if s == name {
			return p, nil
		}
	}
	return Auto, fmt.Errorf("%w: %q", ErrUnknownParType, s)
}

// Detect matches an encrypted archive header against the known magics.
func Detect(header []byte) (ParType, bool) {
	if len(header) < MagicSize {
		return Auto, false
	}
	for _, p := range Known() {
		m := magics[p]
		if bytes.Equal(header[:MagicSize], m[:]) {
			return p, true
		}
	}
	return Auto, false
}

// Set holds the tables available to the process. It is filled once at
// start and only read afterwards.
type Set struct {
	tables map[ParType]*Table
}

func NewSet() *Set {
	return &Set{tables: make(map[ParType]*Table)}
}

// LoadDir loads every known table found in dir. Missing blobs are skipped;
// the corresponding par type reports ErrTableUnavailable later.
func LoadDir(dir string) (*Set, error) {
	s := NewSet()
	for _, p := range Known() {
		t, err := Load(filepath.Join(dir, p.FileName()))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.Add(p, t)
	}
	return s, nil
}

// Add registers a table. It must not be called once the set is shared.
func (s *Set) Add(p ParType, t *Table) {
	s.tables[p] = t
}

// Get returns the table for a concrete par type.
func (s *Set) Get(p ParType) (*Table, error) {
	if p == Auto {
		return nil, fmt.Errorf("%w: auto must be resolved first", ErrUnknownParType)
	}
	t, ok := s.tables[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableUnavailable, p)
	}
	return t, nil
}

// Types lists the par types with a loaded table.
func (s *Set) Types() []ParType {
	var out []ParType
	for _, p := range Known() {
		if _, ok := s.tables[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Sniff identifies a header as either an encrypted archive (matching a
// magic directly) or a decrypted one (matching a magic once its first word
// is encrypted with that type's table). encrypted reports which.
func (s *Set) Sniff(header []byte) (p ParType, encrypted bool, ok bool) {
	if p, ok := Detect(header); ok {
		return p, true, true
	}
	if len(header) < MagicSize {
		return Auto, false, false
	}
	for _, p := range s.Types() {
		// At index 0 the rotation is zero, so encryption of the leading
		// bytes is a plain XOR with the first table word.
		k := s.tables[p].WordAt(0)
		m := magics[p]
		match := true
		for i := 0; i < MagicSize; i++ {
			if header[i]^byte(k>>(8*i)) != m[i] {
				match = false
				break
			}
		}
		if match {
			return p, false, true
		}
	}
	return Auto, false, false
}
