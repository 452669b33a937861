package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"parcrypt/pkg/appdir"
	"parcrypt/pkg/keytable"
)

var keysCommand = &cli.Command{
	Name:  "keys",
	Usage: "list or install key tables in the key directory",
	Subcommands: []*cli.Command{
		{
			Name:   "list",
			Usage:  "show which key tables are present",
			Action: keysListCmd,
		},
		{
			Name:      "import",
			Usage:     "validate a 512-byte key table and copy it into the key directory",
			UsageText: "keys import --par-type chara <file>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "par-type",
					Aliases:  []string{"t"},
					Usage:    "Archive type `TYPE` the table belongs to (chara, chara2)",
					Required: true,
				},
				&cli.BoolFlag{
					Name:    "overwrite",
					Aliases: []string{"o"},
					Usage:   "Replace an installed table",
				},
			},
			Action: keysImportCmd,
		},
	},
}

func keysListCmd(c *cli.Context) error {
	fmt.Printf("key directory: %s\n", cfg.KeyDir)
	for _, p := range keytable.Known() {
		path := filepath.Join(cfg.KeyDir, p.FileName())
		t, err := keytable.Load(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			fmt.Printf("  %-7s missing\n", p)
		case err != nil:
			fmt.Printf("  %-7s invalid: %v\n", p, err)
		default:
			fmt.Printf("  %-7s ok (K0=%016x)\n", p, t.WordAt(0))
		}
	}
	return nil
}

func keysImportCmd(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("Error: exactly one key table file is required.", 1)
	}
	p, err := keytable.ParseParType(c.String("par-type"))
	if err != nil || p == keytable.Auto {
		return cli.Exit(fmt.Sprintf("Error: --par-type must be one of chara, chara2 (got %q)", c.String("par-type")), 1)
	}
	t, err := keytable.Load(c.Args().First())
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}

	if err := appdir.Ensure(cfg.KeyDir); err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}
	dst := filepath.Join(cfg.KeyDir, p.FileName())
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !c.Bool("overwrite") {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(dst, flags, 0o600)
	if errors.Is(err, os.ErrExist) {
		return cli.Exit(fmt.Sprintf("Error: %s already exists, pass --overwrite", dst), 1)
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}
	if _, err := f.Write(t.Bytes()); err != nil {
		f.Close()
		return cli.Exit(fmt.Sprintf("Error writing %s: %v", dst, err), 2)
	}
	if err := f.Close(); err != nil {
		return cli.Exit(fmt.Sprintf("Error writing %s: %v", dst, err), 2)
	}
	fmt.Printf("installed %s table at %s\n", p, dst)
	return nil
}
