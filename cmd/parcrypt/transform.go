package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"parcrypt/internal/fn"
	"parcrypt/pkg/job"
	"parcrypt/pkg/keytable"
	"parcrypt/pkg/log"
)

const (
	modeAuto    = job.ModeAuto
	modeDecrypt = job.ModeDecrypt
	modeEncrypt = job.ModeEncrypt
)

const transformUsageText = `<input> [output]
   --batch <input>...

   Without an output path, x.par decrypts to x.decrypted.par and
   x.decrypted.par encrypts back to x.par.`

// transformFlags builds a fresh flag set per command; urfave flags keep
// per-parse state and must not be shared between commands.
func transformFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "par-type",
			Aliases: []string{"t"},
			Usage:   "Archive type `TYPE` (auto, chara, chara2)",
			Value:   "auto",
		},
		&cli.BoolFlag{
			Name:    "overwrite",
			Aliases: []string{"o"},
			Usage:   "Replace an existing output file",
		},
		&cli.BoolFlag{
			Name:  "backup",
			Usage: "Keep a zstd-compressed copy of a replaced output file (<output>.bak.zst)",
		},
		&cli.IntFlag{
			Name:    "workers",
			Aliases: []string{"j"},
			Usage:   "Parallel workers per file `NUMBER` (1 streams sequentially)",
		},
		&cli.BoolFlag{
			Name:    "batch",
			Aliases: []string{"b"},
			Usage:   "Treat every argument as an input and use default output names",
		},
		&cli.IntFlag{
			Name:  "files",
			Usage: "Files processed at once in --batch mode `NUMBER`",
			Value: 1,
		},
	}
}

var (
	autoCommand = &cli.Command{
		Name:        "auto",
		Usage:       "decrypt or encrypt, chosen from the file name or header (default command)",
		UsageText:   transformUsageText,
		Description: `Picks the operation from the file suffix (.decrypted.par encrypts, .par decrypts) and falls back to the archive header.`,
		Flags:       transformFlags(),
		Action:      transformAction(modeAuto),
	}
	decryptCommand = &cli.Command{
		Name:      "decrypt",
		Aliases:   []string{"d"},
		Usage:     "decrypt an archive",
		UsageText: transformUsageText,
		Flags:     transformFlags(),
		Action:    transformAction(modeDecrypt),
	}
	encryptCommand = &cli.Command{
		Name:      "encrypt",
		Aliases:   []string{"e"},
		Usage:     "encrypt a decrypted archive",
		UsageText: transformUsageText,
		Flags:     transformFlags(),
		Action:    transformAction(modeEncrypt),
	}
)

func transformAction(mode job.Mode) cli.ActionFunc {
	return func(c *cli.Context) error {
		specs, err := jobSpecs(c, mode)
		if err != nil {
			return err
		}

		if c.IsSet("workers") {
			cfg.Workers = c.Int("workers")
		}
		if c.IsSet("overwrite") {
			cfg.Overwrite = c.Bool("overwrite")
		}
		if c.IsSet("backup") {
			cfg.Backup = c.Bool("backup")
		}

		tables, err := loadTables()
		if err != nil {
			return err
		}
		if len(specs) > 1 {
			if err := job.CheckBatch(specs, tables); err != nil {
				return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
			}
		}
		if err := log.Init(cfg.LogDB); err != nil {
			log.Warn().Err(err).Msg("job log unavailable, logging to console only")
		}
		defer log.Close()

		runner := &job.Runner{
			Tables:    tables,
			Options:   cfg.StreamOptions(),
			Overwrite: cfg.Overwrite,
			Backup:    cfg.Backup,
		}

		g, ctx := errgroup.WithContext(c.Context)
		g.SetLimit(max(1, c.Int("files")))
		for _, spec := range specs {
			g.Go(func() error {
				res, err := runner.Run(ctx, spec)
				if err != nil {
					return err
				}
				fmt.Printf("%s: %s %s -> %s (%s, %s%s)\n",
					res.ParType, res.Mode, res.Input, res.Output,
					humanize.Bytes(uint64(res.Stats.BytesOut)),
					res.Duration.Round(time.Millisecond),
					fn.T(res.Backup != "", ", backup "+res.Backup, ""))
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return cli.Exit(fmt.Sprintf("Error: %v", err), exitCode(err))
		}
		return nil
	}
}

func jobSpecs(c *cli.Context, mode job.Mode) ([]job.Spec, error) {
	args := c.Args().Slice()
	if len(args) == 0 {
		return nil, cli.Exit("Error: an input file is required.", 1)
	}
	p, err := keytable.ParseParType(c.String("par-type"))
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}

	if c.Bool("batch") {
		specs := make([]job.Spec, 0, len(args))
		for _, in := range args {
			specs = append(specs, job.Spec{Input: in, Mode: mode, ParType: p})
		}
		return specs, nil
	}
	if len(args) > 2 {
		return nil, cli.Exit("Error: expected <input> [output]; pass --batch to process several files.", 1)
	}
	spec := job.Spec{Input: args[0], Mode: mode, ParType: p}
	if len(args) == 2 {
		spec.Output = args[1]
	}
	return []job.Spec{spec}, nil
}

// exitCode keeps 1 for usage problems and uses 2 for I/O failures.
func exitCode(err error) int {
	switch {
	case errors.Is(err, job.ErrUnknownMode),
		errors.Is(err, job.ErrOutputExists),
		errors.Is(err, job.ErrSameFile),
		errors.Is(err, job.ErrBatchOverlap),
		errors.Is(err, keytable.ErrUnknownParType),
		errors.Is(err, keytable.ErrTableUnavailable),
		errors.Is(err, os.ErrNotExist):
		return 1
	}
	return 2
}
