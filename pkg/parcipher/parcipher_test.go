package parcipher

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"

	"parcrypt/pkg/keytable"
)

func testTable(t *testing.T, seed int64) *keytable.Table {
	t.Helper()
	blob := make([]byte, keytable.Size)
	rand.New(rand.NewSource(seed)).Read(blob)
	tbl, err := keytable.FromBytes(blob)
	if err != nil {
		t.Fatalf("FromBytes failed: %v", err)
	}
	return tbl
}

func TestWordInverse(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for n := 0; n < 1000; n++ {
		v, k, i := rng.Uint64(), rng.Uint64(), rng.Uint64()
		if got := DecryptWord(EncryptWord(v, k, i), k, i); got != v {
			t.Fatalf("decrypt(encrypt(%#x)) at %d = %#x", v, i, got)
		}
		if got := EncryptWord(DecryptWord(v, k, i), k, i); got != v {
			t.Fatalf("encrypt(decrypt(%#x)) at %d = %#x", v, i, got)
		}
	}
}

func TestRotationPeriodicity(t *testing.T) {
	for i := uint64(0); i < 256; i++ {
		if Rotation(i) != Rotation(i+64) {
			t.Fatalf("rotation for %d differs from %d", i, i+64)
		}
		if Rotation(i) >= 64 {
			t.Fatalf("rotation for %d out of range: %d", i, Rotation(i))
		}
	}
	if Rotation(64) != 0 {
		t.Errorf("rotation by 64 must reduce to 0, got %d", Rotation(64))
	}
}

func TestDecryptWordKnownValues(t *testing.T) {
	const k = 0x0123456789ABCDEF
	if got := DecryptWord(0, k, 0); got != k {
		t.Errorf("zero word at index 0: expected %#x, got %#x", uint64(k), got)
	}
	if got := EncryptWord(k, k, 0); got != 0 {
		t.Errorf("encrypting the key word at index 0: expected 0, got %#x", got)
	}
	// rotl(1, 1) == 2
	if got := DecryptWord(1^k, k, 1); got != 2 {
		t.Errorf("expected 2, got %#x", got)
	}
	if got := DecryptWord(1^k, k, 65); got != 2 {
		t.Errorf("index 65 must rotate like index 1, got %#x", got)
	}
}

func TestZeroChunkAtIndexZero(t *testing.T) {
	tbl := testTable(t, 2)
	k0 := tbl.WordAt(0)

	out := New(Decrypt, tbl).Chunk([8]byte{})
	if binary.LittleEndian.Uint64(out[:]) != k0 {
		t.Fatalf("Expected K0 %#x, got %x", k0, out)
	}
	back := New(Encrypt, tbl).Chunk(out)
	if back != [8]byte{} {
		t.Fatalf("Expected zero chunk, got %x", back)
	}
}

func TestCipherConsumesKeystreamInOrder(t *testing.T) {
	tbl := testTable(t, 3)
	c := New(Decrypt, tbl)
	for i := uint64(0); i < 2*keytable.Words+1; i++ {
		if c.Index() != i {
			t.Fatalf("Expected index %d, got %d", i, c.Index())
		}
		if got := c.Word(0); got != DecryptWord(0, tbl.WordAt(i), i) {
			t.Fatalf("word %d used the wrong key", i)
		}
	}
	// Word 65 (1-based) reuses the first table word.
	if tbl.WordAt(64) != tbl.WordAt(0) {
		t.Fatal("keystream does not cycle after 64 words")
	}
}

func TestBlockMatchesWord(t *testing.T) {
	tbl := testTable(t, 4)
	src := make([]byte, 8*100)
	rand.New(rand.NewSource(5)).Read(src)

	got := make([]byte, len(src))
	New(Encrypt, tbl).Block(got, src)

	c := New(Encrypt, tbl)
	want := make([]byte, len(src))
	for off := 0; off < len(src); off += 8 {
		binary.LittleEndian.PutUint64(want[off:], c.Word(binary.LittleEndian.Uint64(src[off:])))
	}
	if !bytes.Equal(got, want) {
		t.Fatal("Block and Word disagree")
	}

	inPlace := append([]byte(nil), got...)
	New(Decrypt, tbl).Block(inPlace, inPlace)
	if !bytes.Equal(inPlace, src) {
		t.Fatal("in-place decrypt did not restore the input")
	}
}

func TestBlockSeek(t *testing.T) {
	tbl := testTable(t, 6)
	src := make([]byte, 8*130)
	rand.New(rand.NewSource(7)).Read(src)

	whole := make([]byte, len(src))
	New(Decrypt, tbl).Block(whole, src)

	tail := make([]byte, 8*30)
	c := New(Decrypt, tbl)
	c.Seek(100)
	c.Block(tail, src[8*100:])
	if !bytes.Equal(tail, whole[8*100:]) {
		t.Fatal("seeked cipher disagrees with sequential cipher")
	}
}

func TestBlockRejectsPartialWord(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for a partial word")
		}
	}()
	New(Decrypt, testTable(t, 8)).Block(make([]byte, 8), make([]byte, 5))
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("Encrypt"); err != nil || m != Encrypt {
		t.Errorf("ParseMode(Encrypt) = %s, %v", m, err)
	}
	if m, err := ParseMode("decrypt"); err != nil || m != Decrypt {
		t.Errorf("ParseMode(decrypt) = %s, %v", m, err)
	}
	if _, err := ParseMode("auto"); err == nil {
		t.Error("Expected error for auto")
	}
}
