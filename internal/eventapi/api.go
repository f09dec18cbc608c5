// Package eventapi exposes the emission event service over HTTP.
package eventapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/ventwatch/internal/emission"
	"github.com/linnemanlabs/ventwatch/internal/ingest"
)

// MaxImportBytes caps the size of an uploaded import file.
const MaxImportBytes = 8 << 20

// EventService defines the business operations eventapi needs.
type EventService interface {
	Assets(ctx context.Context) ([]emission.Asset, error)
	List(ctx context.Context, f emission.ListFilter) ([]*emission.EventView, error)
	Get(ctx context.Context, id string) (*emission.EventView, error)
	Summary(ctx context.Context) (emission.Summary, error)
	StartInvestigation(ctx context.Context, id string) (*emission.EventView, error)
	MarkReported(ctx context.Context, id string) (*emission.EventView, error)
	CompleteRunbookItem(ctx context.Context, id, itemID string) (*emission.EventView, error)
	Snapshot(ctx context.Context, id string) (*emission.Snapshot, error)
	Import(ctx context.Context, rows []emission.ImportRow) (*emission.ImportResult, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    EventService
}

// New creates a new API handler.
func New(logger log.Logger, svc EventService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("event service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router. Middleware passed as
// mutating wraps only the routes that change state (auth, typically).
func (a *API) RegisterRoutes(r chi.Router, mutating ...func(http.Handler) http.Handler) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/assets", a.handleListAssets)
		r.Get("/summary", a.handleSummary)
		r.Get("/events", a.handleListEvents)
		r.Get("/events/{id}", a.handleGetEvent)
		r.Get("/events/{id}/audit", a.handleAudit)

		r.Group(func(r chi.Router) {
			r.Use(mutating...)
			r.Post("/events/import", a.handleImport)
			r.Post("/events/{id}/investigate", a.handleInvestigate)
			r.Post("/events/{id}/report", a.handleReport)
			r.Post("/events/{id}/runbook", a.handleRunbook)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps domain errors onto status codes. Anything unrecognised is
// logged and reported as a bare 500.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error, msg string, kv ...any) {
	switch {
	case errors.Is(err, emission.ErrValidation), errors.Is(err, ingest.ErrUnsupportedFormat):
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, emission.ErrNotFound):
		writeErrorMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, emission.ErrInvalidTransition):
		writeErrorMessage(w, http.StatusConflict, err.Error())
	default:
		a.logger.Error(r.Context(), err, msg, kv...)
		writeErrorMessage(w, http.StatusInternalServerError, "internal error")
	}
}
