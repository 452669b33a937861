package parstream

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"parcrypt/pkg/buffers"
	"parcrypt/pkg/chunk"
	"parcrypt/pkg/keytable"
	"parcrypt/pkg/parcipher"
)

// TransformAt transforms the first size bytes of src into dst using up to
// opts.Workers goroutines. Each segment is seeked to the chunk index of its
// byte offset, so the output is byte-identical to Run regardless of the
// order in which segments complete. dst receives ceil(size/8)*8 bytes.
func TransformAt(ctx context.Context, mode parcipher.Mode, table *keytable.Table, src io.ReaderAt, size int64, dst io.WriterAt, opts Options) (Stats, error) {
	opts = opts.withDefaults()
	seg := int64(opts.SegmentSize)
	pool := buffers.ForSize(opts.SegmentSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for off := int64(0); off < size; off += seg {
		if gctx.Err() != nil {
			break
		}
		n := min(seg, size-off)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			buf := pool.Get()
			defer pool.Put(buf)

			got, err := src.ReadAt(buf[:n], off)
			if int64(got) < n {
				if err == nil || err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				return fmt.Errorf("parstream: %s: read at %d: %w", mode, off, err)
			}

			padded := chunk.PaddedLen(n)
			clear(buf[n:padded])

			c := parcipher.New(mode, table)
			c.Seek(uint64(off / chunk.WordSize))
			c.Block(buf[:padded], buf[:padded])

			if _, err := dst.WriteAt(buf[:padded], off); err != nil {
				return fmt.Errorf("parstream: %s: write at %d: %w", mode, off, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	out := chunk.PaddedLen(size)
	return Stats{
		BytesIn:  size,
		BytesOut: out,
		Words:    uint64(out / chunk.WordSize),
		Padded:   size%chunk.WordSize != 0,
	}, nil
}
