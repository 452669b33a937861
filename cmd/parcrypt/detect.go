package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"parcrypt/internal/fn"
	"parcrypt/pkg/chunk"
	"parcrypt/pkg/job"
)

var detectCommand = &cli.Command{
	Name:      "detect",
	Usage:     "report the archive type and the operation auto mode would pick",
	UsageText: "detect <input>...",
	Action:    detectCmd,
}

func detectCmd(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("Error: at least one input file is required.", 1)
	}
	tables, err := loadTables()
	if err != nil {
		return err
	}

	failed := false
	for _, path := range c.Args().Slice() {
		info, err := os.Stat(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed = true
			continue
		}
		d, err := job.DetectFile(path, tables)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed = true
			continue
		}
		if !d.Known {
			fmt.Printf("%s: unknown (%s)\n", path, humanize.Bytes(uint64(info.Size())))
			continue
		}
		mode := d.Mode
		if m, err := job.ResolveMode(path); err == nil {
			mode = m
		}
		fmt.Printf("%s: %s, %s, %s -> %s (%s)\n",
			path,
			d.ParType,
			fn.T(d.Encrypted, "encrypted", "decrypted"),
			mode,
			job.DefaultOutput(path, mode),
			humanize.Bytes(uint64(chunk.PaddedLen(info.Size()))))
	}
	if failed {
		return cli.Exit("", 1)
	}
	return nil
}
