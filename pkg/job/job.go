// Package job runs one decrypt or encrypt operation on a file: it works out
// the mode, the par type and the output path, protects existing files and
// records the outcome in the job log.
package job

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"parcrypt/pkg/backup"
	"parcrypt/pkg/keytable"
	"parcrypt/pkg/log"
	"parcrypt/pkg/parcipher"
	"parcrypt/pkg/parstream"
)

const (
	encryptedSuffix = ".par"
	decryptedSuffix = ".decrypted.par"
)

var (
	ErrUnknownMode  = errors.New("job: unable to determine operation mode, use the decrypt or encrypt command")
	ErrOutputExists = errors.New("job: output file already exists, pass --overwrite")
	ErrSameFile     = errors.New("job: input and output are the same file")
	ErrBatchOverlap = errors.New("job: a batch output is also a batch input")
)

// Mode is the requested operation. ModeAuto is resolved from the file name
// and, failing that, from the archive header.
type Mode uint8

const (
	ModeAuto Mode = iota
	ModeDecrypt
	ModeEncrypt
)

func (m Mode) String() string {
	switch m {
	case ModeDecrypt:
		return "decrypt"
	case ModeEncrypt:
		return "encrypt"
	default:
		return "auto"
	}
}

func ParseMode(s string) (Mode, error) {
	if strings.EqualFold(strings.TrimSpace(s), "auto") || s == "" {
		return ModeAuto, nil
	}
	m, err := parcipher.ParseMode(s)
	if err != nil {
		return ModeAuto, err
	}
	return FromCipher(m), nil
}

func FromCipher(m parcipher.Mode) Mode {
	if m == parcipher.Encrypt {
		return ModeEncrypt
	}
	return ModeDecrypt
}

// ResolveMode picks the mode from a file name: decrypted archives are
// encrypted and encrypted archives are decrypted.
func ResolveMode(path string) (parcipher.Mode, error) {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, decryptedSuffix):
		return parcipher.Encrypt, nil
	case strings.HasSuffix(name, encryptedSuffix):
		return parcipher.Decrypt, nil
	}
	return parcipher.Decrypt, ErrUnknownMode
}

// DefaultOutput names the output of mode applied to input:
// x.par decrypts to x.decrypted.par and x.decrypted.par encrypts to x.par.
func DefaultOutput(input string, mode parcipher.Mode) string {
	dir, base := filepath.Split(input)
	lower := strings.ToLower(base)

	if mode == parcipher.Encrypt {
		if strings.HasSuffix(lower, decryptedSuffix) {
			base = base[:len(base)-len(decryptedSuffix)]
		} else {
			base = strings.TrimSuffix(base, filepath.Ext(base))
		}
		return filepath.Join(dir, base+encryptedSuffix)
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, base+decryptedSuffix)
}

// Spec describes one file operation. Zero values mean "work it out".
type Spec struct {
	Input   string
	Output  string
	Mode    Mode
	ParType keytable.ParType
}

type Result struct {
	ID       string
	Input    string
	Output   string
	Mode     parcipher.Mode
	ParType  keytable.ParType
	Backup   string
	Parallel bool
	Stats    parstream.Stats
	Duration time.Duration
}

// Runner executes jobs against a fixed table set.
type Runner struct {
	Tables    *keytable.Set
	Options   parstream.Options
	Overwrite bool
	Backup    bool
}

// Detection is what a header and file name say about an archive.
type Detection struct {
	ParType   keytable.ParType
	Mode      parcipher.Mode
	Encrypted bool
	Known     bool
}

// Detect inspects the first bytes of r.
func Detect(r io.ReaderAt, tables *keytable.Set) (Detection, error) {
	header := make([]byte, keytable.MagicSize)
	n, err := r.ReadAt(header, 0)
	if err != nil && err != io.EOF {
		return Detection{}, fmt.Errorf("job: read header: %w", err)
	}
	return detectHeader(header[:n], tables), nil
}

func detectHeader(header []byte, tables *keytable.Set) Detection {
	p, encrypted, ok := tables.Sniff(header)
	d := Detection{ParType: p, Encrypted: encrypted, Known: ok, Mode: parcipher.Encrypt}
	if encrypted {
		d.Mode = parcipher.Decrypt
	}
	return d
}

// DetectFile opens path and runs Detect on it.
func DetectFile(path string, tables *keytable.Set) (Detection, error) {
	f, err := os.Open(path)
	if err != nil {
		return Detection{}, fmt.Errorf("job: open %s: %w", path, err)
	}
	defer f.Close()
	return Detect(f, tables)
}

func (r *Runner) Run(ctx context.Context, spec Spec) (res *Result, err error) {
	res = &Result{ID: uuid.NewString(), Input: spec.Input}
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		logResult(res, err)
	}()

	in, err := os.Open(spec.Input)
	if err != nil {
		return res, fmt.Errorf("job: open %s: %w", spec.Input, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return res, fmt.Errorf("job: stat %s: %w", spec.Input, err)
	}

	// Pipes cannot be read at an offset; peek their header instead.
	var src io.Reader = in
	var det Detection
	if info.Mode().IsRegular() {
		if det, err = Detect(in, r.Tables); err != nil {
			return res, err
		}
	} else {
		br := bufio.NewReader(in)
		header, _ := br.Peek(keytable.MagicSize)
		det = detectHeader(header, r.Tables)
		src = br
	}

	if res.Mode, err = resolveMode(spec, det); err != nil {
		return res, err
	}

	res.ParType = spec.ParType
	if res.ParType == keytable.Auto {
		if !det.Known {
			return res, fmt.Errorf("%w: unable to determine par type of %s, pass --par-type", keytable.ErrUnknownParType, spec.Input)
		}
		res.ParType = det.ParType
	}
	table, err := r.Tables.Get(res.ParType)
	if err != nil {
		return res, err
	}

	res.Output = spec.Output
	if res.Output == "" {
		res.Output = DefaultOutput(spec.Input, res.Mode)
	}
	if err := r.prepareOutput(res, info); err != nil {
		return res, err
	}

	// Only a path that is, or becomes, a plain file of ours may be removed
	// on failure; symlinks, pipes and devices are left alone.
	pre, lerr := os.Lstat(res.Output)
	removable := errors.Is(lerr, os.ErrNotExist) || (lerr == nil && pre.Mode().IsRegular())

	out, err := os.Create(res.Output)
	if err != nil {
		return res, fmt.Errorf("job: create %s: %w", res.Output, err)
	}
	outInfo, err := out.Stat()
	if err != nil {
		out.Close()
		return res, fmt.Errorf("job: stat %s: %w", res.Output, err)
	}
	// Pipes and devices can only be written in order.
	regularOut := outInfo.Mode().IsRegular()

	opts := r.Options
	res.Parallel = opts.Workers > 1 && info.Mode().IsRegular() && regularOut
	if res.Parallel {
		res.Stats, err = parstream.TransformAt(ctx, res.Mode, table, in, info.Size(), out, opts)
	} else {
		res.Stats, err = parstream.RunContext(ctx, res.Mode, src, out, table, opts)
	}
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("job: close %s: %w", res.Output, closeErr)
	}
	if err != nil {
		if removable && regularOut {
			os.Remove(res.Output)
		}
		return res, err
	}
	return res, nil
}

func resolveMode(spec Spec, det Detection) (parcipher.Mode, error) {
	switch spec.Mode {
	case ModeDecrypt:
		return parcipher.Decrypt, nil
	case ModeEncrypt:
		return parcipher.Encrypt, nil
	}
	m, err := ResolveMode(spec.Input)
	switch {
	case err == nil:
		return m, nil
	case det.Known:
		return det.Mode, nil
	}
	return m, err
}

// OutputPath is the output Run would write for spec, without running it.
func OutputPath(spec Spec, tables *keytable.Set) (string, error) {
	if spec.Output != "" {
		return spec.Output, nil
	}
	var det Detection
	if _, nameErr := ResolveMode(spec.Input); spec.Mode == ModeAuto && nameErr != nil {
		var err error
		if det, err = DetectFile(spec.Input, tables); err != nil {
			return "", err
		}
	}
	m, err := resolveMode(spec, det)
	if err != nil {
		return "", err
	}
	return DefaultOutput(spec.Input, m), nil
}

// CheckBatch fails with ErrBatchOverlap when running specs concurrently
// would write one job's output over another job's input, or two jobs would
// write the same output.
func CheckBatch(specs []Spec, tables *keytable.Set) error {
	inputs := make(map[string]string, len(specs))
	for _, s := range specs {
		inputs[cleanPath(s.Input)] = s.Input
	}
	outputs := make(map[string]string, len(specs))
	for _, s := range specs {
		out, err := OutputPath(s, tables)
		if err != nil {
			return err
		}
		key := cleanPath(out)
		if in, ok := inputs[key]; ok && key != cleanPath(s.Input) {
			return fmt.Errorf("%w: %s (output of %s)", ErrBatchOverlap, in, s.Input)
		}
		if prev, ok := outputs[key]; ok {
			return fmt.Errorf("%w: %s and %s both write %s", ErrBatchOverlap, prev, s.Input, out)
		}
		outputs[key] = s.Input
	}
	return nil
}

// cleanPath resolves p, or its directory when p does not exist yet.
func cleanPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(p)); err == nil {
		return filepath.Join(dir, filepath.Base(p))
	}
	return p
}

func (r *Runner) prepareOutput(res *Result, inInfo os.FileInfo) error {
	outInfo, err := os.Stat(res.Output)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("job: stat %s: %w", res.Output, err)
	}
	if os.SameFile(inInfo, outInfo) {
		return fmt.Errorf("%w: %s", ErrSameFile, res.Output)
	}
	if !outInfo.Mode().IsRegular() {
		return nil
	}
	if !r.Overwrite {
		return fmt.Errorf("%w: %s", ErrOutputExists, res.Output)
	}
	if r.Backup {
		if ok, _ := backup.Exists(res.Output + backup.Suffix); ok {
			log.Warn().Str("output", res.Output).Msg("replacing previous backup")
		}
		res.Backup, err = backup.Create(res.Output)
		if err != nil {
			return err
		}
	}
	return nil
}

func logResult(res *Result, err error) {
	if err != nil {
		log.Error().
			Str("job", res.ID).
			Str("input", res.Input).
			Str("mode", res.Mode.String()).
			Err(err).
			Msg("job failed")
		return
	}
	rate := float64(res.Stats.BytesIn) / max(res.Duration.Seconds(), 1e-9)
	log.Info().
		Str("job", res.ID).
		Str("input", res.Input).
		Str("output", res.Output).
		Str("mode", res.Mode.String()).
		Str("par_type", res.ParType.String()).
		Int64("bytes_in", res.Stats.BytesIn).
		Int64("bytes_out", res.Stats.BytesOut).
		Bool("padded", res.Stats.Padded).
		Bool("parallel", res.Parallel).
		Str("backup", res.Backup).
		Dur("duration", res.Duration).
		Msgf("%s %s (%s/s)", res.Mode, humanize.Bytes(uint64(res.Stats.BytesIn)), humanize.Bytes(uint64(rate)))
}
