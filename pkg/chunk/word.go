package chunk

import (
	"io"
)

const (
	// WordSize is the width in bytes of one cipher word.
	WordSize = 8

	// Filler pads the last word of a stream whose length is not a multiple
	// of WordSize.
	Filler byte = 0
)

// WordReader is the byte-specialised padding adapter. It reads an
// io.Reader one WordSize group at a time.
type WordReader struct {
	r     io.Reader
	count uint64
	done  bool
}

func NewWordReader(r io.Reader) *WordReader {
	return &WordReader{r: r}
}

// Next returns the next word. padded reports whether the word was completed
// with Filler, which only happens for the last word of the stream. Once the
// source is exhausted Next returns io.EOF; any other error comes from the
// underlying reader.
func (w *WordReader) Next() (word [WordSize]byte, padded bool, err error) {
	if w.done {
		return word, false, io.EOF
	}
	n, err := io.ReadFull(w.r, word[:])
	switch err {
	case nil:
		w.count++
		return word, false, nil
	case io.EOF:
		w.done = true
		return word, false, io.EOF
	case io.ErrUnexpectedEOF:
		w.done = true
		w.count++
		for i := n; i < WordSize; i++ {
			word[i] = Filler
		}
		return word, true, nil
	default:
		return word, false, err
	}
}

// Count is the number of words returned so far, which is also the stream
// position index of the next word.
func (w *WordReader) Count() uint64 {
	return w.count
}

// PaddedLen is the output length for an input of n bytes.
func PaddedLen(n int64) int64 {
	return (n + WordSize - 1) / WordSize * WordSize
}
