// Package parcipher implements the PAR word transform: each 64-bit word is
// combined with the keystream word of the same index and rotated by the
// index modulo 64.
package parcipher

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"strings"

	"parcrypt/pkg/chunk"
	"parcrypt/pkg/keytable"
)

type Mode uint8

const (
	Decrypt Mode = iota
	Encrypt
)

func (m Mode) String() string {
	switch m {
	case Decrypt:
		return "decrypt"
	case Encrypt:
		return "encrypt"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "decrypt":
		return Decrypt, nil
	case "encrypt":
		return Encrypt, nil
	}
	return Decrypt, fmt.Errorf("parcipher: unknown mode %q", s)
}

// Rotation is the rotation amount for chunk index i.
func Rotation(i uint64) int {
	return int(i % 64)
}

// DecryptWord computes rotl(v ^ k, i mod 64).
func DecryptWord(v, k, i uint64) uint64 {
	return bits.RotateLeft64(v^k, Rotation(i))
}

// EncryptWord computes rotr(v, i mod 64) ^ k, the inverse of DecryptWord.
func EncryptWord(v, k, i uint64) uint64 {
	return bits.RotateLeft64(v, -Rotation(i)) ^ k
}

// Cipher pairs each chunk index with its keystream word. It is not safe
// for concurrent use; the underlying table is.
type Cipher struct {
	mode   Mode
	stream *keytable.Keystream
}

// New returns a cipher positioned at chunk index 0.
func New(mode Mode, table *keytable.Table) *Cipher {
	return &Cipher{mode: mode, stream: table.Keystream()}
}

func (c *Cipher) Mode() Mode {
	return c.mode
}

// Index is the chunk index of the next word.
func (c *Cipher) Index() uint64 {
	return c.stream.Index()
}

// Seek positions the cipher at chunk index i.
func (c *Cipher) Seek(i uint64) {
	c.stream.Seek(i)
}

// Word transforms the word at the current index and advances.
func (c *Cipher) Word(v uint64) uint64 {
	i := c.stream.Index()
	k := c.stream.Next()
	if c.mode == Encrypt {
		return EncryptWord(v, k, i)
	}
	return DecryptWord(v, k, i)
}

// Chunk transforms one little-endian chunk.
func (c *Cipher) Chunk(src [chunk.WordSize]byte) (dst [chunk.WordSize]byte) {
	binary.LittleEndian.PutUint64(dst[:], c.Word(binary.LittleEndian.Uint64(src[:])))
	return dst
}

// Block transforms len(src)/8 consecutive words from src into dst. dst and
// src may overlap exactly. len(src) must be a multiple of the word size.
func (c *Cipher) Block(dst, src []byte) {
	if len(src)%chunk.WordSize != 0 {
		panic("parcipher: block is not a whole number of words")
	}
	if len(dst) < len(src) {
		panic("parcipher: output smaller than input")
	}
	for off := 0; off < len(src); off += chunk.WordSize {
		v := binary.LittleEndian.Uint64(src[off:])
		binary.LittleEndian.PutUint64(dst[off:], c.Word(v))
	}
}
