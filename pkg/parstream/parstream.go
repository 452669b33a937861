// Package parstream wires the padding adapter and the word transform into
// a single forward pass over a byte stream.
package parstream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"runtime"

	"parcrypt/pkg/buffers"
	"parcrypt/pkg/chunk"
	"parcrypt/pkg/keytable"
	"parcrypt/pkg/parcipher"
)

type Options struct {
	ReadBufferSize  int
	WriteBufferSize int

	// Parallel transforms only.
	Workers     int
	SegmentSize int
}

func DefaultOptions() Options {
	return Options{
		ReadBufferSize:  buffers.DefaultIOSize,
		WriteBufferSize: buffers.DefaultIOSize,
		Workers:         runtime.NumCPU(),
		SegmentSize:     buffers.DefaultSegmentSize,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = d.ReadBufferSize
	}
	if o.WriteBufferSize <= 0 {
		o.WriteBufferSize = d.WriteBufferSize
	}
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	if o.SegmentSize <= 0 {
		o.SegmentSize = d.SegmentSize
	}
	o.SegmentSize -= o.SegmentSize % chunk.WordSize
	if o.SegmentSize < chunk.WordSize {
		o.SegmentSize = chunk.WordSize
	}
	return o
}

// Stats describes a completed pass.
type Stats struct {
	BytesIn  int64
	BytesOut int64
	Words    uint64
	// Padded reports whether the last word was completed with zero bytes.
	Padded bool
}

// Decrypt reads src to the end and writes the decrypted words to dst.
func Decrypt(src io.Reader, dst io.Writer, table *keytable.Table) (Stats, error) {
	return Run(parcipher.Decrypt, src, dst, table, DefaultOptions())
}

// Encrypt reads src to the end and writes the encrypted words to dst.
func Encrypt(src io.Reader, dst io.Writer, table *keytable.Table) (Stats, error) {
	return Run(parcipher.Encrypt, src, dst, table, DefaultOptions())
}

// Run transforms src into dst in one pass. Memory use is bounded by the
// buffer sizes in opts. On error the output is incomplete and dst is not
// flushed.
func Run(mode parcipher.Mode, src io.Reader, dst io.Writer, table *keytable.Table, opts Options) (Stats, error) {
	return RunContext(context.Background(), mode, src, dst, table, opts)
}

// RunContext is Run with cancellation. ctx is checked once per read buffer
// window; a cancelled pass fails like a read error and dst is not flushed.
func RunContext(ctx context.Context, mode parcipher.Mode, src io.Reader, dst io.Writer, table *keytable.Table, opts Options) (Stats, error) {
	opts = opts.withDefaults()
	checkEvery := uint64(max(1, opts.ReadBufferSize/chunk.WordSize))

	in := &countingReader{r: src}
	words := chunk.NewWordReader(bufio.NewReaderSize(in, opts.ReadBufferSize))
	out := bufio.NewWriterSize(dst, opts.WriteBufferSize)
	c := parcipher.New(mode, table)

	var st Stats
	for {
		if st.Words%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				st.BytesIn = in.n
				return st, fmt.Errorf("parstream: %s: %w", mode, err)
			}
		}
		w, padded, err := words.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			st.BytesIn = in.n
			return st, fmt.Errorf("parstream: %s: read: %w", mode, err)
		}
		res := c.Chunk(w)
		if _, err := out.Write(res[:]); err != nil {
			st.BytesIn = in.n
			return st, fmt.Errorf("parstream: %s: write: %w", mode, err)
		}
		st.Words++
		st.BytesOut += chunk.WordSize
		st.Padded = padded
	}
	st.BytesIn = in.n

	if err := out.Flush(); err != nil {
		return st, fmt.Errorf("parstream: %s: write: %w", mode, err)
	}
	return st, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
