package appdir

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const dirName = ".parcrypt"

var (
	appDirCache string
	appDirOnce  sync.Once
)

// AppDir is the per-user directory holding key tables, the job log and the
// optional config file. PARCRYPT_HOME overrides it.
func AppDir() string {
	appDirOnce.Do(func() {
		if dir := os.Getenv("PARCRYPT_HOME"); dir != "" {
			appDirCache = dir
			return
		}
		home, err := os.UserHomeDir()
		if err != nil {
			appDirCache = dirName
			return
		}
		appDirCache = filepath.Join(home, dirName)
	})
	return appDirCache
}

// KeyDir is the default location of the key table blobs.
func KeyDir() string {
	return filepath.Join(AppDir(), "keys")
}

// Ensure creates dir if it does not exist yet.
func Ensure(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("appdir: create %s: %w", dir, err)
	}
	return nil
}
