// Package server exposes retrieval, stored records and search over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mohammad-safakhou/archivist/internal/index"
	"github.com/mohammad-safakhou/archivist/internal/retrieval"
	"github.com/mohammad-safakhou/archivist/internal/runtime"
	"github.com/mohammad-safakhou/archivist/internal/store"
	"github.com/mohammad-safakhou/archivist/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Retriever interface {
	Run(ctx context.Context, req models.TimeRange) (*retrieval.Report, error)
}

type RecordStore interface {
	ListRecords(ctx context.Context, source string, r models.TimeRange) ([]models.Record, error)
	ListSessions(ctx context.Context, source string, limit int) ([]store.Session, error)
}

type Searcher interface {
	Search(q string, k int) ([]index.Hit, error)
}

// Options wires the API. Store, Index, JWTSecret and Metrics are optional.
type Options struct {
	Walker    Retriever
	Store     RecordStore
	Index     Searcher
	Source    string
	JWTSecret []byte
	Metrics   http.Handler
	Location  *time.Location
}

var httpLog = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)

func New(opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = errorHandler

	metrics := opts.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(metrics))

	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	h := &RecordsHandler{walker: opts.Walker, store: opts.Store, index: opts.Index, source: opts.Source, loc: loc}
	api := e.Group("/api")
	if len(opts.JWTSecret) > 0 {
		api.Use(runtime.EchoAuthMiddleware(opts.JWTSecret))
	}
	h.Register(api)
	return e
}

// Unified HTTP error handler with structured JSON and logging
func errorHandler(err error, c echo.Context) {
	code, msg := statusFor(err)
	req := c.Request()
	who := c.RealIP()
	if sub, ok := runtime.SubjectFromContext(req.Context()); ok {
		who = sub + "@" + who
	}
	httpLog.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, who, err)
	if !c.Response().Committed {
		_ = c.JSON(code, map[string]interface{}{"error": msg})
	}
}

func statusFor(err error) (int, string) {
	var (
		he    *echo.HTTPError
		risk  *retrieval.TruncationRiskError
		trans *retrieval.TransportError
	)
	switch {
	case errors.As(err, &he):
		msg := http.StatusText(he.Code)
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		return he.Code, msg
	case errors.As(err, &risk):
		return http.StatusBadGateway, risk.Error()
	case errors.As(err, &trans):
		return http.StatusBadGateway, "archive unavailable: " + trans.Err.Error()
	case errors.Is(err, models.ErrInvalidRange):
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, err.Error()
}

// Run serves e on addr until ctx is done.
func Run(ctx context.Context, e *echo.Echo, addr string) error {
	if addr == "" {
		addr = ":10001"
	}
	errCh := make(chan error, 1)
	go func() {
		httpLog.Printf("listening on %s", addr)
		errCh <- e.Start(addr)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}
