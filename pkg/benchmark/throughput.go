package benchmark

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"parcrypt/pkg/chunk"
	"parcrypt/pkg/keytable"
	"parcrypt/pkg/log"
	"parcrypt/pkg/parcipher"
	"parcrypt/pkg/parstream"
)

// Results holds the results of a throughput benchmark
type Results struct {
	Component  Component
	Mode       parcipher.Mode
	Size       int
	Iterations int
	Workers    int
	MinTime    time.Duration
	MaxTime    time.Duration
	AvgTime    time.Duration
	MedianTime time.Duration
	P95Time    time.Duration
	TotalTime  time.Duration
}

// BytesPerSecond is the average throughput over all iterations.
func (r *Results) BytesPerSecond() float64 {
	if r.TotalTime <= 0 {
		return 0
	}
	return float64(r.Size) * float64(r.Iterations) / r.TotalTime.Seconds()
}

// Component specifies which layer to benchmark
type Component int

const (
	ComponentBlock    Component = iota // parcipher.Block over an in-memory buffer
	ComponentStream                    // parstream.Run, reader to writer
	ComponentParallel                  // parstream.TransformAt with several workers
)

func (c Component) String() string {
	switch c {
	case ComponentBlock:
		return "Block"
	case ComponentStream:
		return "Stream"
	case ComponentParallel:
		return "Parallel"
	default:
		return "Unknown"
	}
}

func ParseComponent(s string) (Component, error) {
	switch strings.ToLower(s) {
	case "block":
		return ComponentBlock, nil
	case "stream":
		return ComponentStream, nil
	case "parallel":
		return ComponentParallel, nil
	default:
		return 0, fmt.Errorf("unknown component: %s", s)
	}
}

// Options provides configuration for benchmarks
type Options struct {
	Component  Component
	Mode       parcipher.Mode
	Iterations int
	Size       int
	Stream     parstream.Options
	// Table defaults to a random one; throughput does not depend on the key.
	Table *keytable.Table
}

// DefaultOptions returns sensible defaults
func DefaultOptions() *Options {
	return &Options{
		Component:  ComponentStream,
		Mode:       parcipher.Decrypt,
		Iterations: 20,
		Size:       64 << 20,
		Stream:     parstream.DefaultOptions(),
	}
}

func randomTable(seed int64) *keytable.Table {
	blob := make([]byte, keytable.Size)
	rand.New(rand.NewSource(seed)).Read(blob)
	t, _ := keytable.FromBytes(blob)
	return t
}

// memFile is a fixed-size WriterAt for the parallel benchmark.
type memFile []byte

func (m memFile) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(m)) {
		return 0, io.ErrShortWrite
	}
	return copy(m[off:], p), nil
}

// Run measures one component.
func Run(ctx context.Context, opts *Options) (*Results, error) {
	if opts.Iterations <= 0 || opts.Size <= 0 {
		return nil, fmt.Errorf("benchmark: iterations and size must be positive")
	}
	table := opts.Table
	if table == nil {
		table = randomTable(time.Now().UnixNano())
	}

	src := make([]byte, opts.Size)
	rand.New(rand.NewSource(1)).Read(src)
	padded := int(chunk.PaddedLen(int64(opts.Size)))

	var once func() error
	switch opts.Component {
	case ComponentBlock:
		buf := make([]byte, padded)
		once = func() error {
			copy(buf, src)
			parcipher.New(opts.Mode, table).Block(buf, buf)
			return nil
		}
	case ComponentStream:
		var out bytes.Buffer
		out.Grow(padded)
		once = func() error {
			out.Reset()
			_, err := parstream.Run(opts.Mode, bytes.NewReader(src), &out, table, opts.Stream)
			return err
		}
	case ComponentParallel:
		out := make(memFile, padded)
		once = func() error {
			_, err := parstream.TransformAt(ctx, opts.Mode, table, bytes.NewReader(src), int64(len(src)), out, opts.Stream)
			return err
		}
	default:
		return nil, fmt.Errorf("unknown component: %d", opts.Component)
	}

	times := make([]time.Duration, 0, opts.Iterations)
	start := time.Now()
	for i := 0; i < opts.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t0 := time.Now()
		if err := once(); err != nil {
			return nil, fmt.Errorf("benchmark: %s iteration %d: %w", opts.Component, i, err)
		}
		times = append(times, time.Since(t0))
	}
	total := time.Since(start)

	res := calculateStats(times, total)
	res.Component = opts.Component
	res.Mode = opts.Mode
	res.Size = opts.Size
	res.Workers = 1
	if opts.Component == ComponentParallel {
		res.Workers = opts.Stream.Workers
	}
	log.Debug().
		Str("component", res.Component.String()).
		Str("mode", res.Mode.String()).
		Str("rate", humanize.Bytes(uint64(res.BytesPerSecond()))+"/s").
		Msg("benchmark done")
	return res, nil
}

func calculateStats(times []time.Duration, total time.Duration) *Results {
	res := &Results{Iterations: len(times), TotalTime: total}
	if len(times) == 0 {
		return res
	}
	slices.Sort(times)

	var sum time.Duration
	for _, d := range times {
		sum += d
	}
	res.MinTime = times[0]
	res.MaxTime = times[len(times)-1]
	res.AvgTime = sum / time.Duration(len(times))
	res.MedianTime = times[len(times)/2]
	res.P95Time = times[(len(times)*95)/100]
	return res
}

// RunAll measures every component with the same base options.
func RunAll(ctx context.Context, base *Options) ([]*Results, error) {
	var results []*Results
	var errs []string
	for _, c := range []Component{ComponentBlock, ComponentStream, ComponentParallel} {
		opts := *base
		opts.Component = c
		res, err := Run(ctx, &opts)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		results = append(results, res)
	}
	if len(errs) > 0 {
		return results, fmt.Errorf("benchmark: %s", strings.Join(errs, "; "))
	}
	return results, nil
}

func PrintResults(w io.Writer, r *Results) {
	fmt.Fprintf(w, "=== Throughput Benchmark: %s (%s) ===\n", r.Component, r.Mode)
	fmt.Fprintf(w, "Input Size: %s\n", humanize.IBytes(uint64(r.Size)))
	fmt.Fprintf(w, "Iterations: %d\n", r.Iterations)
	fmt.Fprintf(w, "Workers: %d\n", r.Workers)
	fmt.Fprintf(w, "Total Time: %v\n", r.TotalTime)
	fmt.Fprintf(w, "Min Time: %v\n", r.MinTime)
	fmt.Fprintf(w, "Avg Time: %v\n", r.AvgTime)
	fmt.Fprintf(w, "Median Time: %v\n", r.MedianTime)
	fmt.Fprintf(w, "95th Percentile: %v\n", r.P95Time)
	fmt.Fprintf(w, "Max Time: %v\n", r.MaxTime)
	fmt.Fprintf(w, "Throughput: %s/s\n", humanize.IBytes(uint64(r.BytesPerSecond())))
	fmt.Fprintln(w, "==========================================")
}

func SaveResultsToFile(results []*Results, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	return writeCSV(f, results)
}

func writeCSV(w io.Writer, results []*Results) error {
	if _, err := io.WriteString(w, "Component,Mode,Size,Iterations,Workers,MinTime,AvgTime,MedianTime,P95Time,MaxTime,TotalTime,BytesPerSecond\n"); err != nil {
		return err
	}
	for _, r := range results {
		_, err := fmt.Fprintf(w, "%s,%s,%d,%d,%d,%d,%d,%d,%d,%d,%d,%.0f\n",
			r.Component,
			r.Mode,
			r.Size,
			r.Iterations,
			r.Workers,
			r.MinTime.Nanoseconds(),
			r.AvgTime.Nanoseconds(),
			r.MedianTime.Nanoseconds(),
			r.P95Time.Nanoseconds(),
			r.MaxTime.Nanoseconds(),
			r.TotalTime.Nanoseconds(),
			r.BytesPerSecond())
		if err != nil {
			return err
		}
	}
	return nil
}
