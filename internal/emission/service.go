package emission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/ventwatch/internal/canonical"
	"github.com/oklog/ulid/v2"
)

var tracer = otel.Tracer("github.com/linnemanlabs/ventwatch/internal/emission")

// lifecycle action names, used for spans, logs and metrics
const (
	ActionInvestigate = "investigate"
	ActionReport      = "report"
	ActionRunbook     = "runbook"
)

// action outcomes
const (
	OutcomeOK                = "ok"
	OutcomeNoop              = "noop"
	OutcomeNotFound          = "not_found"
	OutcomeInvalidTransition = "invalid_transition"
	OutcomeError             = "error"
)

// import row results
const (
	RowImported = "imported"
	RowSkipped  = "skipped"
	RowFailed   = "failed"
)

// DefaultPublishTimeout caps how long a lifecycle action waits on the audit publisher.
const DefaultPublishTimeout = 2 * time.Second

// AuditPublisher streams freshly appended action log entries.
type AuditPublisher interface {
	Publish(ctx context.Context, e *Event, entries []ActionLogEntry) error
}

// Archiver stores the audit snapshot of a finalized event and returns its location.
type Archiver interface {
	Archive(ctx context.Context, snap *Snapshot) (string, error)
}

// Notifier announces newly imported high-urgency detections.
type Notifier interface {
	Send(ctx context.Context, v *EventView) error
}

// Sinks are the optional downstream consumers of lifecycle activity.
type Sinks struct {
	Publisher AuditPublisher
	Archiver  Archiver
	Notifier  Notifier
}

// Hooks receive service activity, typically wired to Prometheus by Metrics.Hooks.
type Hooks struct {
	OnAction    func(action, outcome string)
	OnImportRow func(result string)
	OnScored    func(bucket Bucket)
}

// ListFilter narrows List. Zero value returns everything.
type ListFilter struct {
	Status       Status
	BreachedOnly bool
}

// ImportRow is one decoded row of a tabular detection batch. Err carries a
// decode failure for the row, in which case Detection may be nil.
type ImportRow struct {
	Line      int
	Detection *Detection
	Err       error
}

// RowResult is the outcome of importing one row.
type RowResult struct {
	Line   int     `json:"line"`
	ID     string  `json:"id,omitempty"`
	Result string  `json:"result"`
	Bucket Bucket  `json:"triage_bucket,omitempty"`
	Score  float64 `json:"triage_score,omitempty"`
	Error  string  `json:"error,omitempty"`
	Err    error   `json:"-"`
}

// ImportResult is the outcome of a bulk import.
type ImportResult struct {
	Imported int         `json:"imported"`
	Skipped  int         `json:"skipped"`
	Failed   int         `json:"failed"`
	Rows     []RowResult `json:"rows"`
	Message  string      `json:"message"`
}

// Snapshot is an immutable audit view of one event at the moment of the request.
type Snapshot struct {
	Event       *EventView `json:"event"`
	GeneratedAt time.Time  `json:"generated_at_utc"`
	Digest      string     `json:"digest"`
}

// Service is the business boundary for event operations.
type Service struct {
	store  Store
	clock  Clock
	eval   Evaluator
	logger log.Logger
	hooks  Hooks
	sinks  Sinks

	// publishTimeout bounds the post-commit publish so a down broker cannot stall requests
	publishTimeout time.Duration

	bg sync.WaitGroup
}

// NewService creates a new event service.
func NewService(store Store, clock Clock, logger log.Logger, hooks Hooks, sinks Sinks) *Service {
	if clock == nil {
		clock = SystemClock
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:  store,
		clock:  clock,
		eval:   DefaultEvaluator,
		logger: logger,
		hooks:  hooks,
		sinks:  sinks,

		publishTimeout: DefaultPublishTimeout,
	}
}

// Wait blocks until background deliveries (archives, notifications) have finished.
func (s *Service) Wait() {
	s.bg.Wait()
}

// Assets returns the site inventory.
func (s *Service) Assets(ctx context.Context) ([]Asset, error) {
	return s.store.ListAssets(ctx)
}

// List returns every event matching f, all evaluated at the same instant.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*EventView, error) {
	ctx, span := tracer.Start(ctx, "emission.List")
	defer span.End()

	views, _, err := s.evaluateAll(ctx)
	if err != nil {
		recordErr(span, err)
		return nil, err
	}

	out := make([]*EventView, 0, len(views))
	for _, v := range views {
		if f.Status != "" && v.Status != f.Status {
			continue
		}
		if f.BreachedOnly && !v.Breached() {
			continue
		}
		out = append(out, v)
	}
	span.SetAttributes(attribute.Int("ventwatch.events.count", len(out)))
	return out, nil
}

// Get returns one event evaluated now.
func (s *Service) Get(ctx context.Context, id string) (*EventView, error) {
	ctx, span := tracer.Start(ctx, "emission.Get", trace.WithAttributes(
		attribute.String("ventwatch.event.id", id),
	))
	defer span.End()

	e, ok, err := s.store.Get(ctx, id)
	if err != nil {
		recordErr(span, err)
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("event %q: %w", id, ErrNotFound)
	}
	return s.view(ctx, e, s.clock.Now())
}

// Summary folds every event into dashboard totals at one instant.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	ctx, span := tracer.Start(ctx, "emission.Summary")
	defer span.End()

	views, now, err := s.evaluateAll(ctx)
	if err != nil {
		recordErr(span, err)
		return Summary{}, err
	}
	return Summarize(views, now)
}

// StartInvestigation applies the investigate action to an event.
func (s *Service) StartInvestigation(ctx context.Context, id string) (*EventView, error) {
	return s.apply(ctx, ActionInvestigate, id, func(e *Event, now time.Time) (bool, error) {
		if err := StartInvestigation(e, now); err != nil {
			return false, err
		}
		return true, nil
	})
}

// MarkReported applies the report action to an event and archives the finalized snapshot.
func (s *Service) MarkReported(ctx context.Context, id string) (*EventView, error) {
	v, err := s.apply(ctx, ActionReport, id, func(e *Event, now time.Time) (bool, error) {
		if err := MarkReported(e, now); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if s.sinks.Archiver != nil {
		s.archive(ctx, v)
	}
	return v, nil
}

// CompleteRunbookItem applies the runbook action. Completing a finished item
// returns the event unchanged.
func (s *Service) CompleteRunbookItem(ctx context.Context, id, itemID string) (*EventView, error) {
	return s.apply(ctx, ActionRunbook, id, func(e *Event, now time.Time) (bool, error) {
		return CompleteRunbookItem(e, itemID, now)
	})
}

// Snapshot returns the immutable audit view of one event with its canonical digest.
func (s *Service) Snapshot(ctx context.Context, id string) (*Snapshot, error) {
	ctx, span := tracer.Start(ctx, "emission.Snapshot", trace.WithAttributes(
		attribute.String("ventwatch.event.id", id),
	))
	defer span.End()

	v, err := s.Get(ctx, id)
	if err != nil {
		recordErr(span, err)
		return nil, err
	}
	snap, err := newSnapshot(v)
	if err != nil {
		recordErr(span, err)
		return nil, err
	}
	return snap, nil
}

// Import creates a NEW event per row. Failures are reported per row and never
// abort the batch; rows whose id already exists are skipped.
func (s *Service) Import(ctx context.Context, rows []ImportRow) (*ImportResult, error) {
	ctx, span := tracer.Start(ctx, "emission.Import", trace.WithAttributes(
		attribute.Int("ventwatch.import.rows", len(rows)),
	))
	defer span.End()

	now := s.clock.Now()
	res := &ImportResult{Rows: make([]RowResult, 0, len(rows))}
	var high []*EventView

	for _, row := range rows {
		rr, v := s.importRow(ctx, row, now)
		switch rr.Result {
		case RowImported:
			res.Imported++
			if v != nil && v.TriageBucket == BucketHigh {
				high = append(high, v)
			}
		case RowSkipped:
			res.Skipped++
		default:
			res.Failed++
			s.logger.Warn(ctx, "import row rejected", "line", rr.Line, "id", rr.ID, "error", rr.Error)
		}
		if s.hooks.OnImportRow != nil {
			s.hooks.OnImportRow(rr.Result)
		}
		res.Rows = append(res.Rows, rr)
	}

	res.Message = fmt.Sprintf("Imported %d event(s); skipped %d duplicate(s); %d failed", res.Imported, res.Skipped, res.Failed)
	span.SetAttributes(
		attribute.Int("ventwatch.import.imported", res.Imported),
		attribute.Int("ventwatch.import.skipped", res.Skipped),
		attribute.Int("ventwatch.import.failed", res.Failed),
	)
	s.logger.Info(ctx, "import complete",
		"imported", res.Imported,
		"skipped", res.Skipped,
		"failed", res.Failed,
	)

	if s.sinks.Notifier != nil && len(high) > 0 {
		s.notify(ctx, high)
	}
	return res, nil
}

func (s *Service) importRow(ctx context.Context, row ImportRow, now time.Time) (RowResult, *EventView) {
	rr := RowResult{Line: row.Line}
	fail := func(err error) (RowResult, *EventView) {
		rr.Result = RowFailed
		rr.Err = err
		rr.Error = err.Error()
		return rr, nil
	}

	if row.Err != nil {
		if row.Detection != nil {
			rr.ID = row.Detection.ID
		}
		return fail(row.Err)
	}
	if row.Detection == nil {
		return fail(&ValidationError{Field: "detection", Reason: "missing"})
	}

	d := *row.Detection
	if d.ID == "" {
		d.ID = ulid.Make().String()
	}
	rr.ID = d.ID

	// score first so malformed detections always surface as validation errors
	breakdown, err := s.eval.Scorer.Score(&d, now)
	if err != nil {
		return fail(err)
	}
	rr.Score = breakdown.Score
	rr.Bucket = breakdown.Bucket()

	asset, ok, err := s.store.GetAsset(ctx, d.SiteID)
	if err != nil {
		return fail(err)
	}
	if !ok {
		return fail(fmt.Errorf("site %q: %w", d.SiteID, ErrNotFound))
	}

	e := NewEvent(&d, now)
	created, err := s.store.Create(ctx, e)
	if err != nil {
		return fail(err)
	}
	if !created {
		rr.Result = RowSkipped
		return rr, nil
	}
	rr.Result = RowImported
	if s.hooks.OnScored != nil {
		s.hooks.OnScored(rr.Bucket)
	}

	v, err := s.eval.Evaluate(e, *asset, now)
	if err != nil {
		s.logger.Error(ctx, err, "evaluate imported event", "event_id", e.ID)
		return rr, nil
	}
	return rr, v
}

// apply runs one lifecycle operation through the store's serialized Update and
// forwards the appended log entries to the publisher.
func (s *Service) apply(ctx context.Context, action, id string, op func(e *Event, now time.Time) (bool, error)) (*EventView, error) {
	ctx, span := tracer.Start(ctx, "emission."+action, trace.WithAttributes(
		attribute.String("ventwatch.event.id", id),
		attribute.String("ventwatch.action", action),
	))
	defer span.End()

	L := s.logger.With("event_id", id, "action", action)
	now := s.clock.Now()

	var (
		firstNew int
		changed  bool
	)
	updated, err := s.store.Update(ctx, id, func(e *Event) (bool, error) {
		firstNew = nextSeq(e.Log)
		c, err := op(e, now)
		changed = c
		return c, err
	})
	outcome := outcomeFor(err, changed)
	if s.hooks.OnAction != nil {
		s.hooks.OnAction(action, outcome)
	}
	span.SetAttributes(attribute.String("ventwatch.action.outcome", outcome))
	if err != nil {
		if outcome == OutcomeError {
			recordErr(span, err)
			L.Error(ctx, err, "lifecycle action failed")
		}
		return nil, err
	}

	L.Info(ctx, "lifecycle action applied", "outcome", outcome, "status", updated.Status)

	if changed && s.sinks.Publisher != nil {
		var entries []ActionLogEntry
		for _, l := range updated.Log {
			if l.Seq >= firstNew {
				entries = append(entries, l)
			}
		}
		// committed already: detach from the caller's cancellation but bound the wait
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
		err := s.sinks.Publisher.Publish(pctx, updated, entries)
		cancel()
		if err != nil {
			// the mutation is committed; a lost stream message is recoverable from the store
			L.Error(ctx, err, "publish action log entries")
		}
	}

	return s.view(ctx, updated, now)
}

func (s *Service) view(ctx context.Context, e *Event, now time.Time) (*EventView, error) {
	asset, ok, err := s.store.GetAsset(ctx, e.SiteID)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Warn(ctx, "event references unknown site", "event_id", e.ID, "site_id", e.SiteID)
		asset = &Asset{SiteID: e.SiteID}
	}
	return s.eval.Evaluate(e, *asset, now)
}

func (s *Service) evaluateAll(ctx context.Context) ([]*EventView, time.Time, error) {
	events, err := s.store.List(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}
	assets, err := s.store.ListAssets(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}
	bySite := make(map[string]Asset, len(assets))
	for _, a := range assets {
		bySite[a.SiteID] = a
	}

	now := s.clock.Now().UTC()
	views := make([]*EventView, 0, len(events))
	for _, e := range events {
		a, ok := bySite[e.SiteID]
		if !ok {
			a = Asset{SiteID: e.SiteID}
		}
		v, err := s.eval.Evaluate(e, a, now)
		if err != nil {
			return nil, time.Time{}, err
		}
		views = append(views, v)
	}
	return views, now, nil
}

func (s *Service) archive(ctx context.Context, v *EventView) {
	snap, err := newSnapshot(v)
	if err != nil {
		s.logger.Error(ctx, err, "build snapshot for archive", "event_id", v.ID)
		return
	}
	s.bg.Add(1)
	go func(ctx context.Context) {
		defer s.bg.Done()
		key, err := s.sinks.Archiver.Archive(ctx, snap)
		if err != nil {
			s.logger.Error(ctx, err, "archive snapshot", "event_id", v.ID)
			return
		}
		s.logger.Info(ctx, "snapshot archived", "event_id", v.ID, "key", key)
	}(context.WithoutCancel(ctx))
}

func (s *Service) notify(ctx context.Context, views []*EventView) {
	s.bg.Add(1)
	go func(ctx context.Context) {
		defer s.bg.Done()
		for _, v := range views {
			if err := s.sinks.Notifier.Send(ctx, v); err != nil {
				s.logger.Error(ctx, err, "notify high detection", "event_id", v.ID)
			}
		}
	}(context.WithoutCancel(ctx))
}

func newSnapshot(v *EventView) (*Snapshot, error) {
	digest, err := canonical.Digest(v)
	if err != nil {
		return nil, fmt.Errorf("snapshot digest: %w", err)
	}
	return &Snapshot{Event: v, GeneratedAt: v.EvaluatedAt, Digest: digest}, nil
}

func outcomeFor(err error, changed bool) string {
	switch {
	case err == nil && changed:
		return OutcomeOK
	case err == nil:
		return OutcomeNoop
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrInvalidTransition):
		return OutcomeInvalidTransition
	default:
		return OutcomeError
	}
}

func recordErr(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
