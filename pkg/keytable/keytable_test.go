package keytable

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testBlob(seed byte) []byte {
	b := make([]byte, Size)
	for i := range b {
		b[i] = byte(i)*31 + seed
	}
	return b
}

func TestFromBytesSize(t *testing.T) {
	for _, n := range []int{0, 8, Size - 1, Size + 1} {
		if _, err := FromBytes(make([]byte, n)); !errors.Is(err, ErrTableSize) {
			t.Errorf("FromBytes(%d bytes): expected ErrTableSize, got %v", n, err)
		}
	}
}

func TestWordsAreLittleEndian(t *testing.T) {
	blob := testBlob(7)
	tbl, err := FromBytes(blob)
	if err != nil {
		t.Fatalf("FromBytes failed: %v", err)
	}
	for i := uint64(0); i < Words; i++ {
		want := binary.LittleEndian.Uint64(blob[i*8:])
		if got := tbl.WordAt(i); got != want {
			t.Fatalf("word %d: expected %#x, got %#x", i, want, got)
		}
	}
	if !bytes.Equal(tbl.Bytes(), blob) {
		t.Error("Bytes does not reproduce the blob")
	}
}

func TestFromBytesCopies(t *testing.T) {
	blob := testBlob(1)
	tbl, _ := FromBytes(blob)
	before := tbl.WordAt(0)
	blob[0] ^= 0xFF
	if tbl.WordAt(0) != before {
		t.Error("Table aliases the caller's blob")
	}
}

func TestKeystreamPeriodicity(t *testing.T) {
	tbl, _ := FromBytes(testBlob(3))
	ks := tbl.Keystream()

	first := make([]uint64, Words)
	for i := range first {
		first[i] = ks.Next()
		if first[i] != tbl.WordAt(uint64(i)) {
			t.Fatalf("word %d drawn out of table order", i)
		}
	}
	for i := 0; i < Words; i++ {
		if w := ks.Next(); w != first[i] {
			t.Fatalf("cycle 2 word %d: expected %#x, got %#x", i, first[i], w)
		}
	}
	if ks.Index() != 2*Words {
		t.Errorf("Expected index %d, got %d", 2*Words, ks.Index())
	}
}

func TestKeystreamSeek(t *testing.T) {
	tbl, _ := FromBytes(testBlob(5))
	ks := tbl.Keystream()
	ks.Seek(1000)
	if w := ks.Next(); w != tbl.WordAt(1000%Words) {
		t.Errorf("Seek(1000) drew %#x, want %#x", w, tbl.WordAt(1000%Words))
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "k.bin")
	if err := os.WriteFile(path, testBlob(9), 0o644); err != nil {
		t.Fatal(err)
	}
	tbl, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !bytes.Equal(tbl.Bytes(), testBlob(9)) {
		t.Error("loaded table differs from blob")
	}

	if err := os.WriteFile(path, []byte("short"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, ErrTableSize) {
		t.Errorf("Expected ErrTableSize, got %v", err)
	}
}
