package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"parcrypt/pkg/benchmark"
	"parcrypt/pkg/log"
	"parcrypt/pkg/parcipher"
)

var benchCommand = &cli.Command{
	Name:      "bench",
	Usage:     "measure cipher throughput in memory",
	UsageText: "bench [--component block|stream|parallel | --all] [--size SIZE] [--iterations N] [--output results.csv]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "component",
			Usage: "Layer to benchmark `NAME` (block, stream, parallel)",
			Value: "stream",
		},
		&cli.BoolFlag{
			Name:  "all",
			Usage: "Benchmark every component",
		},
		&cli.StringFlag{
			Name:  "mode",
			Usage: "Operation `MODE` (decrypt, encrypt)",
			Value: "decrypt",
		},
		&cli.StringFlag{
			Name:  "size",
			Usage: "Input size per iteration `SIZE` (e.g. 64MiB)",
			Value: "64MiB",
		},
		&cli.IntFlag{
			Name:    "iterations",
			Aliases: []string{"n"},
			Usage:   "Number of iterations `NUMBER`",
			Value:   20,
		},
		&cli.IntFlag{
			Name:    "workers",
			Aliases: []string{"j"},
			Usage:   "Workers for the parallel component `NUMBER` (default from config)",
		},
		&cli.StringFlag{
			Name:  "output",
			Usage: "Write results as CSV to `FILE`",
		},
	},
	Action: benchCmd,
}

func benchCmd(c *cli.Context) error {
	mode, err := parcipher.ParseMode(c.String("mode"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}
	size, err := humanize.ParseBytes(c.String("size"))
	if err != nil || size == 0 {
		return cli.Exit(fmt.Sprintf("Error: invalid --size %q", c.String("size")), 1)
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}

	opts := benchmark.DefaultOptions()
	opts.Mode = mode
	opts.Size = int(size)
	opts.Iterations = c.Int("iterations")
	opts.Stream = cfg.StreamOptions()

	var results []*benchmark.Results
	if c.Bool("all") {
		results, err = benchmark.RunAll(c.Context, opts)
		if err != nil {
			log.Printf("some benchmarks failed: %v", err)
		}
	} else {
		opts.Component, err = benchmark.ParseComponent(c.String("component"))
		if err != nil {
			return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
		}
		res, err := benchmark.Run(c.Context, opts)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Benchmark failed: %v", err), 2)
		}
		results = append(results, res)
	}

	for _, r := range results {
		benchmark.PrintResults(os.Stdout, r)
	}
	if out := c.String("output"); out != "" && len(results) > 0 {
		if err := benchmark.SaveResultsToFile(results, out); err != nil {
			return cli.Exit(fmt.Sprintf("Failed to save results: %v", err), 1)
		}
		log.Printf("results saved to %s", out)
	}
	return nil
}
