package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"parcrypt/pkg/log"
)

// --- Time Parsing Helper ---

// timeFormats includes common layouts to try when parsing absolute time strings.
// Order matters; more specific formats should generally come earlier.
var timeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDuration extends time.ParseDuration with a single d (days) or
// w (weeks) unit, e.g. "2d" or "1w".
func parseDuration(spec string) (time.Duration, error) {
	if d, err := time.ParseDuration(spec); err == nil {
		return d, nil
	}
	if len(spec) < 2 {
		return 0, fmt.Errorf("invalid duration %q", spec)
	}
	unit := map[byte]time.Duration{'d': 24 * time.Hour, 'w': 7 * 24 * time.Hour}[spec[len(spec)-1]]
	if unit == 0 {
		return 0, fmt.Errorf("invalid duration %q", spec)
	}
	n, err := strconv.ParseFloat(spec[:len(spec)-1], 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid duration %q", spec)
	}
	return time.Duration(n * float64(unit)), nil
}

// parseTimeSpec parses a string as either a relative duration from now
// (e.g., "1h", "2d") or an absolute timestamp. Timestamps without a zone
// are local time.
func parseTimeSpec(spec string, now time.Time) (time.Time, error) {
	if d, err := parseDuration(spec); err == nil {
		return now.Add(-d), nil
	}
	for _, layout := range timeFormats {
		if ts, err := time.ParseInLocation(layout, spec, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time specification: '%s'. Use relative duration (e.g., '1h', '30m', '2d') or absolute format (e.g., '2023-10-27T15:04:05Z')", spec)
}

// --- Custom Help Template ---

const logsCommandHelpTemplate = `NAME:
   {{.HelpName}} - {{.Usage}}

USAGE:
   {{.HelpName}} {{if .UsageText}}{{.UsageText}}{{else}}[command options] argument...{{end}}
{{if .Description}}
DESCRIPTION:
   {{.Description | Indent 4}}
{{end}}
MODES (choose one; defaults to --last if no mode specified):
     --last                 Retrieve the most recent N job log entries.
     --since                Retrieve entries since a specific start time up to now.
     --between              Retrieve entries between a specific start and end time.

OPTIONS:
{{range .VisibleFlags}}   {{.}}
{{end}}
TIME SPECIFICATION (<time_spec>):
     1. Relative Duration: a duration before the current time.
        Examples: "5m", "1h30m", "2d", "1w".
        Units: s, m, h, d (days), w (weeks).
     2. Absolute Timestamp: RFC3339 or a similar ISO 8601 layout.
        Local time is assumed unless a zone is given.
        Examples: "2023-10-27T15:04:05Z", "2023-10-27 10:00:00", "2023-10-27".

EXAMPLES:
     # Last 50 jobs
     parcrypt logs -n 50

     # Jobs of the last hour, pretty-printed
     parcrypt logs --since -s 1h --pretty

     # Jobs between 2 days ago and 1 day ago from another database
     parcrypt logs -f /var/lib/parcrypt/parcrypt.db --between -s 2d -e 1d

`

// --- CLI Definition ---

var logsCommand = &cli.Command{
	Name:               "logs",
	Usage:              "Retrieve job log entries from the SQLite job log",
	UsageText:          "parcrypt logs [command options] [--last|--since|--between] [mode options]",
	Description:        `Reads the job log written by decrypt, encrypt and serve (log_db in the configuration).`,
	CustomHelpTemplate: logsCommandHelpTemplate,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "dbfile",
			Aliases: []string{"f"},
			Usage:   "Path to the SQLite job log `PATH` (default from config)",
		},
		&cli.BoolFlag{
			Name:    "pretty",
			Aliases: []string{"p"},
			Usage:   "Output one human-readable line per entry instead of raw JSON",
		},

		&cli.BoolFlag{
			Name:  "last",
			Usage: "Mode: Retrieve the most recent N entries (default)",
		},
		&cli.BoolFlag{
			Name:  "since",
			Usage: "Mode: Retrieve entries since a specific start time",
		},
		&cli.BoolFlag{
			Name:  "between",
			Usage: "Mode: Retrieve entries between a specific start and end time",
		},

		&cli.IntFlag{
			Name:    "count",
			Aliases: []string{"n"},
			Usage:   "Number of entries for --last mode `NUMBER`",
			Value:   100,
		},
		&cli.StringFlag{
			Name:    "start",
			Aliases: []string{"s"},
			Usage:   "Start time for --since/--between `TIME_SPEC` (e.g., '1h', '2023-10-27T10:00:00Z')",
		},
		&cli.StringFlag{
			Name:    "end",
			Aliases: []string{"e"},
			Usage:   "End time for --between `TIME_SPEC` (e.g., '30m', '2023-10-27T11:00:00')",
		},
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"l"},
			Usage:   "Max entries for --since/--between `NUMBER`",
			Value:   1000,
		},
	},
	Action: logsCmd,
}

func logsCmd(c *cli.Context) error {
	dbFile := cfg.LogDB
	if c.IsSet("dbfile") {
		dbFile = c.String("dbfile")
	}

	isLast, isSince, isBetween := c.Bool("last"), c.Bool("since"), c.Bool("between")
	modeCount := 0
	for _, set := range []bool{isLast, isSince, isBetween} {
		if set {
			modeCount++
		}
	}
	if modeCount == 0 {
		isLast = true
	} else if modeCount > 1 {
		return cli.Exit("Error: Only one mode flag (--last, --since, --between) can be specified at a time.", 1)
	}

	// Init would create an empty database; a missing file is a user error here.
	if _, err := os.Stat(dbFile); err != nil {
		if os.IsNotExist(err) {
			return cli.Exit(fmt.Sprintf("Error: Database file not found at '%s'", dbFile), 1)
		}
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}
	log.SetOutput(nil) // reading only; keep stdout clean
	if err := log.Init(dbFile); err != nil {
		return cli.Exit(fmt.Sprintf("Error opening job log: %v", err), 1)
	}
	defer log.Close()

	now := time.Now()
	var results []log.LogEntry
	var retrievalErr error

	switch {
	case isLast:
		if c.IsSet("start") || c.IsSet("end") {
			fmt.Fprintln(os.Stderr, "Warning: --start (-s) and --end (-e) flags are ignored in --last mode.")
		}
		count := c.Int("count")
		if count <= 0 {
			return cli.Exit("Error: --count (-n) must be a positive number.", 1)
		}
		results, retrievalErr = log.GetLastNLogs(count)

	case isSince:
		if !c.IsSet("start") {
			return cli.Exit("Error: --start (-s) flag is required for --since mode.", 1)
		}
		if c.IsSet("end") {
			fmt.Fprintln(os.Stderr, "Warning: --end (-e) flag is ignored in --since mode.")
		}
		startTime, err := parseTimeSpec(c.String("start"), now)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Error parsing start time: %v", err), 1)
		}
		results, retrievalErr = log.GetLogsSince(startTime, c.Int("limit"))

	case isBetween:
		if !c.IsSet("start") || !c.IsSet("end") {
			return cli.Exit("Error: --start (-s) and --end (-e) flags are required for --between mode.", 1)
		}
		startTime, err := parseTimeSpec(c.String("start"), now)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Error parsing start time: %v", err), 1)
		}
		endTime, err := parseTimeSpec(c.String("end"), now)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Error parsing end time: %v", err), 1)
		}
		if startTime.After(endTime) {
			fmt.Fprintf(os.Stderr, "Warning: Start time (%s) is after end time (%s).\n", startTime.Format(time.RFC3339), endTime.Format(time.RFC3339))
		}
		results, retrievalErr = log.GetLogsBetween(startTime, endTime, c.Int("limit"))
	}

	if retrievalErr != nil {
		if errors.Is(retrievalErr, log.ErrNotInitialized) {
			return cli.Exit("Internal Error: job log handle became unavailable.", 2)
		}
		return cli.Exit(fmt.Sprintf("Error retrieving logs: %v", retrievalErr), 1)
	}

	if len(results) == 0 {
		fmt.Fprintln(os.Stderr, "No log entries found matching the criteria.")
		return nil
	}
	for _, entry := range results {
		if c.Bool("pretty") {
			fmt.Println(prettyEntry(entry))
		} else {
			fmt.Println(entry.LogData)
		}
	}
	return nil
}

// prettyEntry renders "time LEVEL message key=value ..." with the fields
// sorted by name. Entries that are not JSON objects are printed raw.
func prettyEntry(entry log.LogEntry) string {
	var fields map[string]any
	if err := json.Unmarshal([]byte(entry.LogData), &fields); err != nil {
		return entry.LogData
	}

	ts := entry.InsertedAt.Local().Format("2006-01-02 15:04:05")
	if s, ok := fields["time"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			ts = t.Local().Format("2006-01-02 15:04:05.000")
		}
	}
	level, _ := fields["level"].(string)
	msg, _ := fields["message"].(string)
	delete(fields, "time")
	delete(fields, "level")
	delete(fields, "message")

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s", ts, strings.ToUpper(level), msg)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	return b.String()
}
