package parstream

import (
	"bytes"
	"slices"
	"testing"

	"parcrypt/pkg/parcipher"
)

func TestTransformMatchesRun(t *testing.T) {
	tbl := testTables(t)[0]
	for _, n := range []int{0, 5, 8, 8*64 + 3, 8 * 130} {
		src := randomBytes(n, int64(n)+7)
		for _, mode := range []parcipher.Mode{parcipher.Decrypt, parcipher.Encrypt} {
			var want bytes.Buffer
			if _, err := Run(mode, bytes.NewReader(src), &want, tbl, Options{}); err != nil {
				t.Fatal(err)
			}

			var got []byte
			next := uint64(0)
			for i, c := range Transform(mode, tbl, slices.Values(src)) {
				if i != next {
					t.Fatalf("n=%d %s: index %d, want %d", n, mode, i, next)
				}
				next++
				got = append(got, c[:]...)
			}
			if !bytes.Equal(got, want.Bytes()) {
				t.Errorf("n=%d %s: lazy transform differs from Run", n, mode)
			}
		}
	}
}

func TestTransformStopsEarly(t *testing.T) {
	tbl := testTables(t)[1]
	pulled := 0
	src := func(yield func(byte) bool) {
		for {
			pulled++
			if !yield(0) {
				return
			}
		}
	}
	count := 0
	for range Transform(parcipher.Decrypt, tbl, src) {
		count++
		if count == 3 {
			break
		}
	}
	if pulled != 24 {
		t.Errorf("Expected 24 bytes pulled, got %d", pulled)
	}
}
