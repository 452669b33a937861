package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"parcrypt/pkg/config"
	"parcrypt/pkg/keytable"
	"parcrypt/pkg/log"
)

// Version information - will be set at build time
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// cfg is loaded once in the app's Before hook; flags override it per command.
var cfg *config.Config

var globalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Configuration file `PATH` (default: parcrypt.yaml in ., /etc/parcrypt, ~/.parcrypt)",
		EnvVars: []string{"PARCRYPT_CONFIG"},
	},
	&cli.StringFlag{
		Name:  "key-dir",
		Usage: "Directory holding the <type>_key.bin tables `DIR`",
	},
	&cli.StringFlag{
		Name:  "log-db",
		Usage: "SQLite job log `PATH`",
	},
	&cli.BoolFlag{
		Name:  "verbose",
		Usage: "Enable debug logging",
	},
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "parcrypt",
		Usage:     "decrypt and encrypt PAR archives",
		UsageText: "parcrypt [global options] [command] [command options] <input> [output]",
		Version:   fmt.Sprintf("%s (built %s)", Version, BuildTime),
		Flags:     append(globalFlags, transformFlags()...),
		Before:    loadConfig,
		Action:    transformAction(modeAuto),
		Commands: []*cli.Command{
			autoCommand,
			decryptCommand,
			encryptCommand,
			detectCommand,
			logsCommand,
			serveCommand,
			benchCommand,
			keysCommand,
			restoreCommand,
		},
	}
}

func loadConfig(c *cli.Context) error {
	if c.Bool("verbose") {
		log.SetLevel(zerolog.DebugLevel)
	}
	var err error
	cfg, err = config.LoadConfig(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error loading configuration: %v", err), 1)
	}
	if c.IsSet("key-dir") {
		cfg.KeyDir = c.String("key-dir")
	}
	if c.IsSet("log-db") {
		cfg.LogDB = c.String("log-db")
	}
	if cfg.ConfigFile != "" {
		log.Debug().Str("file", cfg.ConfigFile).Msg("using config file")
	}
	return nil
}

// loadTables reads the key directory and fails when it holds no table at all.
func loadTables() (*keytable.Set, error) {
	tables, err := keytable.LoadDir(cfg.KeyDir)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("Error loading key tables from %s: %v", cfg.KeyDir, err), 1)
	}
	if len(tables.Types()) == 0 {
		return nil, cli.Exit(fmt.Sprintf("Error: no key tables found in %s (expected chara_key.bin and/or chara2_key.bin)", cfg.KeyDir), 1)
	}
	log.Debug().Str("dir", cfg.KeyDir).Int("tables", len(tables.Types())).Msg("key tables loaded")
	return tables, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
