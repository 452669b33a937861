package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"parcrypt/pkg/api"
	"parcrypt/pkg/log"
)

var serveCommand = &cli.Command{
	Name:      "serve",
	Usage:     "serve POST /decrypt and POST /encrypt over HTTP",
	UsageText: "serve [--listen ADDR]",
	Description: `Streams request bodies through the cipher. The archive type comes from
?type=chara|chara2 or from the body header when omitted.`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "listen",
			Aliases: []string{"l"},
			Usage:   "Listen address `ADDR` (default from config, :7780)",
		},
	},
	Action: serveCmd,
}

func serveCmd(c *cli.Context) error {
	if c.IsSet("listen") {
		cfg.ListenAddr = c.String("listen")
	}
	tables, err := loadTables()
	if err != nil {
		return err
	}
	if err := log.Init(cfg.LogDB); err != nil {
		log.Warn().Err(err).Msg("job log unavailable, logging to console only")
	}
	defer log.Close()

	srv := api.NewServer(tables, cfg.StreamOptions())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(cfg.ListenAddr) }()

	select {
	case err := <-errCh:
		if err != nil {
			return cli.Exit(fmt.Sprintf("Error: %v", err), 2)
		}
		return nil
	case <-c.Context.Done():
		log.Printf("shutting down api server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Api.Shutdown(ctx)
	}
}
