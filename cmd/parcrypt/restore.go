package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"parcrypt/pkg/backup"
	"parcrypt/pkg/log"
)

var restoreCommand = &cli.Command{
	Name:      "restore",
	Usage:     "decompress a backup made by --backup",
	UsageText: "restore [--overwrite] <file" + backup.Suffix + "> [output]",
	Description: `Without an output path the backup is restored next to itself,
e.g. chara.decrypted.par` + backup.Suffix + ` becomes chara.decrypted.par.`,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    "overwrite",
			Aliases: []string{"o"},
			Usage:   "Replace an existing output file",
		},
	},
	Action: restoreCmd,
}

func restoreCmd(c *cli.Context) error {
	if c.NArg() == 0 || c.NArg() > 2 {
		return cli.Exit("Error: expected <backup> [output].", 1)
	}
	src := c.Args().Get(0)
	dst := c.Args().Get(1)
	if dst == "" {
		if !strings.HasSuffix(src, backup.Suffix) {
			return cli.Exit(fmt.Sprintf("Error: %s does not end in %s, pass an output path.", src, backup.Suffix), 1)
		}
		dst = strings.TrimSuffix(src, backup.Suffix)
	}
	if dst == src {
		return cli.Exit("Error: output and backup are the same file.", 1)
	}

	exists, err := backup.Exists(dst)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}
	if exists && !c.Bool("overwrite") {
		return cli.Exit(fmt.Sprintf("Error: %s already exists, pass --overwrite", dst), 1)
	}

	if err := backup.Restore(src, dst); err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 2)
	}
	log.Info().Str("backup", src).Str("output", dst).Msg("backup restored")
	fmt.Printf("restored %s -> %s\n", src, dst)
	return nil
}
