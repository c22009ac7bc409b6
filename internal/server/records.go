package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/archivist/internal/index"
	"github.com/mohammad-safakhou/archivist/internal/store"
	"github.com/mohammad-safakhou/archivist/models"
)

type RecordsHandler struct {
	walker Retriever
	store  RecordStore
	index  Searcher
	source string
	loc    *time.Location
}

type retrievalResponse struct {
	SessionID string          `json:"session_id"`
	Start     time.Time       `json:"start"`
	End       time.Time       `json:"end"`
	Queries   int             `json:"queries"`
	Shrinks   int             `json:"shrinks"`
	Window    string          `json:"window"`
	Count     int             `json:"count"`
	Records   []models.Record `json:"records"`
}

type recordsResponse struct {
	Start   time.Time       `json:"start"`
	End     time.Time       `json:"end"`
	Count   int             `json:"count"`
	Records []models.Record `json:"records"`
}

type sessionResponse struct {
	ID          string     `json:"id"`
	Start       time.Time  `json:"start"`
	End         time.Time  `json:"end"`
	Status      string     `json:"status"`
	Queries     int        `json:"queries"`
	Shrinks     int        `json:"shrinks"`
	Window      string     `json:"window"`
	RecordCount int        `json:"record_count"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

func (h *RecordsHandler) Register(g *echo.Group) {
	g.GET("/records", h.retrieve)
	g.GET("/records/stored", h.stored)
	g.GET("/sessions", h.sessions)
	g.GET("/search", h.search)
}

func (h *RecordsHandler) parseRange(c echo.Context) (models.TimeRange, error) {
	start, err := h.parseTime(c.QueryParam("start"))
	if err != nil {
		return models.TimeRange{}, echo.NewHTTPError(http.StatusBadRequest, "invalid start: "+err.Error())
	}
	end, err := h.parseTime(c.QueryParam("end"))
	if err != nil {
		return models.TimeRange{}, echo.NewHTTPError(http.StatusBadRequest, "invalid end: "+err.Error())
	}
	r := models.TimeRange{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return models.TimeRange{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return r, nil
}

func (h *RecordsHandler) parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "required")
	}
	return dateparse.ParseIn(raw, h.loc)
}

func (h *RecordsHandler) retrieve(c echo.Context) error {
	if h.walker == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "archive not configured")
	}
	r, err := h.parseRange(c)
	if err != nil {
		return err
	}
	rep, err := h.walker.Run(c.Request().Context(), r)
	if err != nil {
		return err
	}
	recs := rep.Records
	if recs == nil {
		recs = []models.Record{}
	}
	return c.JSON(http.StatusOK, retrievalResponse{
		SessionID: rep.SessionID,
		Start:     r.Start,
		End:       r.End,
		Queries:   rep.Queries,
		Shrinks:   rep.Shrinks,
		Window:    rep.Window.String(),
		Count:     len(recs),
		Records:   recs,
	})
}

func (h *RecordsHandler) stored(c echo.Context) error {
	if h.store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage not configured")
	}
	r, err := h.parseRange(c)
	if err != nil {
		return err
	}
	recs, err := h.store.ListRecords(c.Request().Context(), h.source, r)
	if err != nil {
		return err
	}
	if recs == nil {
		recs = []models.Record{}
	}
	return c.JSON(http.StatusOK, recordsResponse{Start: r.Start, End: r.End, Count: len(recs), Records: recs})
}

func (h *RecordsHandler) sessions(c echo.Context) error {
	if h.store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage not configured")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	list, err := h.store.ListSessions(c.Request().Context(), h.source, limit)
	if err != nil {
		return err
	}
	out := make([]sessionResponse, 0, len(list))
	for _, s := range list {
		out = append(out, toSessionResponse(s))
	}
	return c.JSON(http.StatusOK, out)
}

func toSessionResponse(s store.Session) sessionResponse {
	return sessionResponse{
		ID:          s.ID,
		Start:       s.Range.Start,
		End:         s.Range.End,
		Status:      string(s.Status),
		Queries:     s.Queries,
		Shrinks:     s.Shrinks,
		Window:      s.Window.String(),
		RecordCount: s.RecordCount,
		Error:       s.Error,
		StartedAt:   s.StartedAt,
		FinishedAt:  s.FinishedAt,
	}
}

func (h *RecordsHandler) search(c echo.Context) error {
	if h.index == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "index not configured")
	}
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	k, _ := strconv.Atoi(c.QueryParam("k"))
	hits, err := h.index.Search(q, k)
	if err != nil {
		return err
	}
	if hits == nil {
		hits = []index.Hit{}
	}
	return c.JSON(http.StatusOK, hits)
}
