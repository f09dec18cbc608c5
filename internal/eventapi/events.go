package eventapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/ventwatch/internal/emission"
)

func (a *API) handleListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := a.svc.Assets(r.Context())
	if err != nil {
		a.writeError(w, r, err, "failed to list assets")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": assets})
}

func (a *API) handleListEvents(w http.ResponseWriter, r *http.Request) {
	var f emission.ListFilter
	q := r.URL.Query()

	if raw := q.Get("status"); raw != "" {
		st, err := emission.ParseStatus(raw)
		if err != nil {
			writeErrorMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Status = st
	}
	if raw := q.Get("sla_breached_only"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "invalid sla_breached_only: "+strconv.Quote(raw))
			return
		}
		f.BreachedOnly = b
	}

	views, err := a.svc.List(r.Context(), f)
	if err != nil {
		a.writeError(w, r, err, "failed to list events")
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(attribute.Int("ventwatch.events.count", len(views)))

	writeJSON(w, http.StatusOK, map[string]any{"events": views})
}

func (a *API) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("ventwatch.event.id", id))

	v, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err, "failed to get event", "id", id)
		return
	}

	span.SetAttributes(
		attribute.String("ventwatch.event.status", string(v.Status)),
		attribute.String("ventwatch.event.bucket", string(v.TriageBucket)),
	)

	writeJSON(w, http.StatusOK, v)
}

func (a *API) handleSummary(w http.ResponseWriter, r *http.Request) {
	s, err := a.svc.Summary(r.Context())
	if err != nil {
		a.writeError(w, r, err, "failed to summarize events")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) handleAudit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("ventwatch.event.id", id))

	snap, err := a.svc.Snapshot(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err, "failed to build audit snapshot", "id", id)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) handleInvestigate(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, emission.ActionInvestigate, func(id string) (*emission.EventView, error) {
		return a.svc.StartInvestigation(r.Context(), id)
	})
}

func (a *API) handleReport(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, emission.ActionReport, func(id string) (*emission.EventView, error) {
		return a.svc.MarkReported(r.Context(), id)
	})
}

type runbookRequest struct {
	ItemID string `json:"item_id"`
}

func (a *API) handleRunbook(w http.ResponseWriter, r *http.Request) {
	var req runbookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.ItemID == "" {
		writeErrorMessage(w, http.StatusBadRequest, "item_id is required")
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("ventwatch.runbook.item_id", req.ItemID))

	a.transition(w, r, emission.ActionRunbook, func(id string) (*emission.EventView, error) {
		return a.svc.CompleteRunbookItem(r.Context(), id, req.ItemID)
	})
}

// transition runs one lifecycle operation against the {id} path parameter and
// writes the resulting view.
func (a *API) transition(w http.ResponseWriter, r *http.Request, action string, op func(id string) (*emission.EventView, error)) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("ventwatch.event.id", id),
		attribute.String("ventwatch.action", action),
	)

	v, err := op(id)
	if err != nil {
		a.writeError(w, r, err, "lifecycle action failed", "id", id, "action", action)
		return
	}

	span.SetAttributes(attribute.String("ventwatch.event.status", string(v.Status)))
	writeJSON(w, http.StatusOK, v)
}
