// Package backup keeps a zstd-compressed copy of a file before parcrypt
// overwrites it.
package backup

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// Suffix is appended to the original path to name the backup.
const Suffix = ".bak.zst"

// Create compresses path into path+Suffix and returns the backup path. An
// existing backup is replaced.
func Create(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("backup: open %s: %w", path, err)
	}
	defer src.Close()

	dstPath := path + Suffix
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("backup: create %s: %w", dstPath, err)
	}

	if err := compress(dst, src); err != nil {
		dst.Close()
		os.Remove(dstPath)
		return "", fmt.Errorf("backup: %s: %w", path, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("backup: close %s: %w", dstPath, err)
	}
	return dstPath, nil
}

func compress(dst io.Writer, src io.Reader) error {
	enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return fmt.Errorf("failed to initialize encoder: %w", err)
	}
	if _, err := io.Copy(enc, src); err != nil {
		// Even if Write fails, close to release resources.
		_ = enc.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	// Close finalizes the zstd frame.
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	return nil
}

// Restore decompresses a backup into dstPath.
func Restore(backupPath, dstPath string) error {
	src, err := os.Open(backupPath)
	if err != nil {
		return fmt.Errorf("backup: open %s: %w", backupPath, err)
	}
	defer src.Close()

	dec, err := zstd.NewReader(src)
	if err != nil {
		return fmt.Errorf("backup: failed to initialize decoder: %w", err)
	}
	defer dec.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("backup: create %s: %w", dstPath, err)
	}
	if _, err := io.Copy(dst, dec); err != nil {
		dst.Close()
		return fmt.Errorf("backup: decompress %s: %w", backupPath, err)
	}
	return dst.Close()
}

// Exists reports whether path refers to an existing file.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
