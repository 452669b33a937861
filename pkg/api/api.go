// Package api exposes the transform over HTTP. Request bodies are streamed
// through the cipher straight into the response.
package api

import (
	"bufio"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"parcrypt/pkg/keytable"
	"parcrypt/pkg/log"
	"parcrypt/pkg/parcipher"
	"parcrypt/pkg/parstream"
)

// BufferSize caps the read and write windows of a single request so that
// concurrent uploads stay cheap.
const BufferSize = 64 << 10

type Server struct {
	Api     *echo.Echo
	Tables  *keytable.Set
	Options parstream.Options
}

func NewServer(tables *keytable.Set, opts parstream.Options) *Server {
	opts.ReadBufferSize = requestBuffer(opts.ReadBufferSize)
	opts.WriteBufferSize = requestBuffer(opts.WriteBufferSize)
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	s := &Server{Api: e, Tables: tables, Options: opts}
	e.GET("/health", s.Health)
	e.POST("/decrypt", s.transform(parcipher.Decrypt))
	e.POST("/encrypt", s.transform(parcipher.Encrypt))
	return s
}

func requestBuffer(n int) int {
	if n <= 0 || n > BufferSize {
		return BufferSize
	}
	return n
}

func (s *Server) Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (s *Server) transform(mode parcipher.Mode) echo.HandlerFunc {
	return func(c echo.Context) error {
		p := keytable.Auto
		if q := c.QueryParam("type"); q != "" {
			var err error
			if p, err = keytable.ParseParType(q); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
		}

		body := bufio.NewReaderSize(c.Request().Body, keytable.MagicSize)
		if p == keytable.Auto {
			header, _ := body.Peek(keytable.MagicSize)
			detected, _, ok := s.Tables.Sniff(header)
			if !ok {
				return echo.NewHTTPError(http.StatusBadRequest, "unable to determine par type, pass ?type=")
			}
			p = detected
		}
		table, err := s.Tables.Get(p)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		res := c.Response()
		res.Header().Set(echo.HeaderContentType, echo.MIMEOctetStream)
		res.Header().Set("X-Par-Type", p.String())
		res.WriteHeader(http.StatusOK)

		st, err := parstream.RunContext(c.Request().Context(), mode, body, res, table, s.Options)
		if err != nil {
			// Headers are gone; the client sees a truncated body.
			log.Error().Err(err).Str("mode", mode.String()).Str("par_type", p.String()).Msg("api: transform aborted")
			return nil
		}
		log.Info().
			Str("mode", mode.String()).
			Str("par_type", p.String()).
			Int64("bytes_in", st.BytesIn).
			Int64("bytes_out", st.BytesOut).
			Str("remote", c.RealIP()).
			Msg("api: transform done")
		return nil
	}
}

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	log.Printf("api listening on %s", addr)
	if err := s.Api.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
