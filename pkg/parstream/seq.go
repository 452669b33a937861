package parstream

import (
	"iter"

	"parcrypt/pkg/chunk"
	"parcrypt/pkg/keytable"
	"parcrypt/pkg/parcipher"
)

// Transform is the lazy form of Run: it pairs each padded chunk of src with
// its index and yields the transformed chunk. Nothing is read from src until
// the result is ranged over.
func Transform(mode parcipher.Mode, table *keytable.Table, src iter.Seq[byte]) iter.Seq2[uint64, [chunk.WordSize]byte] {
	return func(yield func(uint64, [chunk.WordSize]byte) bool) {
		c := parcipher.New(mode, table)
		for group := range chunk.Pad(src, chunk.WordSize, chunk.Filler) {
			i := c.Index()
			if !yield(i, c.Chunk([chunk.WordSize]byte(group))) {
				return
			}
		}
	}
}
