package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"

	"parcrypt/pkg/appdir"
	"parcrypt/pkg/buffers"
	"parcrypt/pkg/parstream"
)

type Config struct {
	KeyDir          string `mapstructure:"key_dir"`
	ReadBufferSize  int    `mapstructure:"read_buffer_size"`
	WriteBufferSize int    `mapstructure:"write_buffer_size"`
	Workers         int    `mapstructure:"workers"`
	SegmentSize     int    `mapstructure:"segment_size"`
	Overwrite       bool   `mapstructure:"overwrite"`
	Backup          bool   `mapstructure:"backup"`
	LogDB           string `mapstructure:"log_db"`
	ListenAddr      string `mapstructure:"listen_address"`
	ConfigFile      string `mapstructure:"config_file"` // Path of the file actually read, if any
}

func DefaultConfig() *Config {
	return &Config{
		KeyDir:          appdir.KeyDir(),
		ReadBufferSize:  buffers.DefaultIOSize,
		WriteBufferSize: buffers.DefaultIOSize,
		Workers:         runtime.NumCPU(),
		SegmentSize:     buffers.DefaultSegmentSize,
		LogDB:           filepath.Join(appdir.AppDir(), "parcrypt.db"),
		ListenAddr:      ":7780",
	}
}

// LoadConfig loads defaults, then the config file, then PARCRYPT_*
// environment variables. An explicit configFile must exist; otherwise
// parcrypt.yaml is searched in the working directory, /etc/parcrypt and
// the app directory, and its absence is not an error.
func LoadConfig(configFile string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetDefault("key_dir", cfg.KeyDir)
	v.SetDefault("read_buffer_size", cfg.ReadBufferSize)
	v.SetDefault("write_buffer_size", cfg.WriteBufferSize)
	v.SetDefault("workers", cfg.Workers)
	v.SetDefault("segment_size", cfg.SegmentSize)
	v.SetDefault("overwrite", cfg.Overwrite)
	v.SetDefault("backup", cfg.Backup)
	v.SetDefault("log_db", cfg.LogDB)
	v.SetDefault("listen_address", cfg.ListenAddr)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("parcrypt")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/parcrypt/")
		v.AddConfigPath(appdir.AppDir())
	}
	v.SetEnvPrefix("PARCRYPT") // PARCRYPT_KEY_DIR, PARCRYPT_WORKERS, ...
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	return cfg, nil
}

// StreamOptions converts the buffering settings for parstream.
func (c *Config) StreamOptions() parstream.Options {
	return parstream.Options{
		ReadBufferSize:  c.ReadBufferSize,
		WriteBufferSize: c.WriteBufferSize,
		Workers:         c.Workers,
		SegmentSize:     c.SegmentSize,
	}
}
