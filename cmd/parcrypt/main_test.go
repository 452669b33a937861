package main

import (
	"bytes"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"parcrypt/pkg/backup"
	"parcrypt/pkg/keytable"
	"parcrypt/pkg/log"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	cli.OsExiter = func(int) {}
	os.Exit(m.Run())
}

func writeKeys(t *testing.T, dir string) {
	t.Helper()
	for i, p := range keytable.Known() {
		blob := make([]byte, keytable.Size)
		rand.New(rand.NewSource(int64(i + 40))).Read(blob)
		if err := os.WriteFile(filepath.Join(dir, p.FileName()), blob, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestEncryptDecryptCommands(t *testing.T) {
	t.Setenv("PARCRYPT_HOME", t.TempDir())
	dir := t.TempDir()
	writeKeys(t, dir)
	db := filepath.Join(dir, "jobs.db")

	plain := make([]byte, 70001)
	rand.New(rand.NewSource(9)).Read(plain)
	input := filepath.Join(dir, "chara2.decrypted.par")
	if err := os.WriteFile(input, plain, 0o644); err != nil {
		t.Fatal(err)
	}

	base := []string{"parcrypt", "--key-dir", dir, "--log-db", db}
	run := func(args ...string) error {
		return newApp().Run(append(append([]string(nil), base...), args...))
	}

	if err := run("encrypt", "-t", "chara2", "-j", "3", input); err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	encrypted := filepath.Join(dir, "chara2.par")
	enc, err := os.ReadFile(encrypted)
	if err != nil {
		t.Fatal(err)
	}
	if len(enc) != 70008 {
		t.Fatalf("Expected 70008 bytes, got %d", len(enc))
	}

	out := filepath.Join(dir, "roundtrip.bin")
	if err := run("decrypt", "--par-type", "chara2.par", encrypted, out); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	dec, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec[:len(plain)], plain) || !bytes.Equal(dec[len(plain):], make([]byte, 7)) {
		t.Fatal("round trip mismatch")
	}

	// The output exists now, so a second run must refuse to replace it.
	if err := run("decrypt", "-t", "chara2", encrypted, out); err == nil {
		t.Fatal("Expected an error for an existing output")
	}

	if err := log.Init(db); err != nil {
		t.Fatal(err)
	}
	entries, err := log.GetLastNLogs(10)
	log.Close()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) < 3 {
		t.Fatalf("Expected at least 3 job log entries, got %d", len(entries))
	}
}

func TestMissingInput(t *testing.T) {
	t.Setenv("PARCRYPT_HOME", t.TempDir())
	if err := newApp().Run([]string{"parcrypt", "decrypt"}); err == nil {
		t.Fatal("Expected an error without input")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"90m", 90 * time.Minute, true},
		{"2d", 48 * time.Hour, true},
		{"1w", 168 * time.Hour, true},
		{"0.5d", 12 * time.Hour, true},
		{"d", 0, false},
		{"3y", 0, false},
		{"-2d", 0, false},
	}
	for _, tt := range tests {
		got, err := parseDuration(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("parseDuration(%q): unexpected error state %v", tt.in, err)
			continue
		}
		if tt.ok && got != tt.want {
			t.Errorf("parseDuration(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestParseTimeSpec(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	got, err := parseTimeSpec("1d", now)
	if err != nil || !got.Equal(now.Add(-24*time.Hour)) {
		t.Errorf("relative: got %s, %v", got, err)
	}
	got, err = parseTimeSpec("2024-05-01T08:00:00Z", now)
	if err != nil || !got.Equal(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("absolute: got %s, %v", got, err)
	}
	got, err = parseTimeSpec("2024-05-01", now)
	if err != nil || !got.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.Local)) {
		t.Errorf("date only: got %s, %v", got, err)
	}
	if _, err := parseTimeSpec("yesterday", now); err == nil {
		t.Error("Expected error")
	}
}

func TestPrettyEntry(t *testing.T) {
	e := log.LogEntry{LogData: `{"level":"info","time":"2024-05-01T08:00:00.000000000Z","message":"decrypt 1 MB","par_type":"chara","bytes_in":1000000}`}
	got := prettyEntry(e)
	if !strings.Contains(got, "INFO  decrypt 1 MB bytes_in=1e+06 par_type=chara") {
		t.Errorf("unexpected pretty output %q", got)
	}
	if raw := prettyEntry(log.LogEntry{LogData: "not json"}); raw != "not json" {
		t.Errorf("Expected raw passthrough, got %q", raw)
	}
}

func TestKeysImport(t *testing.T) {
	t.Setenv("PARCRYPT_HOME", t.TempDir())
	src := t.TempDir()
	writeKeys(t, src)
	keyDir := filepath.Join(t.TempDir(), "keys")

	imp := func(extra ...string) error {
		args := []string{"parcrypt", "--key-dir", keyDir, "keys", "import", "-t", "chara"}
		args = append(args, extra...)
		return newApp().Run(append(args, filepath.Join(src, "chara_key.bin")))
	}
	if err := imp(); err != nil {
		t.Fatalf("import failed: %v", err)
	}
	want, _ := os.ReadFile(filepath.Join(src, "chara_key.bin"))
	got, err := os.ReadFile(filepath.Join(keyDir, "chara_key.bin"))
	if err != nil || !bytes.Equal(got, want) {
		t.Fatalf("installed table differs: %v", err)
	}
	if err := imp(); err == nil {
		t.Error("Expected an error when the table is already installed")
	}
	if err := imp("--overwrite"); err != nil {
		t.Errorf("overwrite failed: %v", err)
	}

	bad := filepath.Join(src, "short.bin")
	os.WriteFile(bad, []byte{1, 2, 3}, 0o644)
	if err := newApp().Run([]string{"parcrypt", "--key-dir", keyDir, "keys", "import", "-t", "chara2", bad}); err == nil {
		t.Error("Expected an error for a short table")
	}
}

func TestBatchRejectsCrossingJobs(t *testing.T) {
	t.Setenv("PARCRYPT_HOME", t.TempDir())
	dir := t.TempDir()
	writeKeys(t, dir)
	enc := filepath.Join(dir, "chara.par")
	dec := filepath.Join(dir, "chara.decrypted.par")
	for _, p := range []string{enc, dec} {
		if err := os.WriteFile(p, []byte("0123456789abcdef"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	args := []string{"parcrypt", "--key-dir", dir, "--log-db", filepath.Join(dir, "jobs.db"),
		"auto", "-t", "chara", "--batch", "--files", "2", "--overwrite", enc, dec}
	if err := newApp().Run(args); err == nil {
		t.Fatal("Expected an error when one job writes another's input")
	}
	got, _ := os.ReadFile(dec)
	if string(got) != "0123456789abcdef" {
		t.Error("input was modified")
	}
}

func TestRestoreCommand(t *testing.T) {
	t.Setenv("PARCRYPT_HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "chara.decrypted.par")
	want := bytes.Repeat([]byte("restore me "), 1000)
	if err := os.WriteFile(path, want, 0o644); err != nil {
		t.Fatal(err)
	}
	bak, err := backup.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	os.Remove(path)

	restore := func(extra ...string) error {
		args := append([]string{"parcrypt", "restore"}, extra...)
		return newApp().Run(append(args, bak))
	}
	if err := restore(); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(got, want) {
		t.Fatalf("restored content differs: %v", err)
	}
	if err := restore(); err == nil {
		t.Error("Expected an error when the output exists")
	}
	if err := restore("--overwrite"); err != nil {
		t.Errorf("overwrite failed: %v", err)
	}

	plain := filepath.Join(dir, "notabackup.bin")
	os.WriteFile(plain, want, 0o644)
	if err := newApp().Run([]string{"parcrypt", "restore", plain}); err == nil {
		t.Error("Expected an error without an output for a file lacking the backup suffix")
	}
}
