// Package pgstore provides a PostgreSQL implementation of emission.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/ventwatch/internal/emission"
)

var tracer = otel.Tracer("github.com/linnemanlabs/ventwatch/internal/emission/pgstore")

//go:embed schema.sql
var schema string

// Store persists assets and events in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The pool stays owned
// by the caller.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Ping checks database connectivity, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const eventColumns = `id, site_id, detection_type, est_ch4_kgph, confidence, lat, lon,
	detected_at, status, investigation_started, report_submitted, notes, runbook, created_at`

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// ListAssets returns every asset ordered by site ID.
func (s *Store) ListAssets(ctx context.Context) ([]emission.Asset, error) {
	ctx, span := startSpan(ctx, "pgstore.ListAssets", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT site_id, site_name, operator, lat, lon FROM assets ORDER BY site_id`)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query assets: %w", err))
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (emission.Asset, error) {
		var a emission.Asset
		err := row.Scan(&a.SiteID, &a.SiteName, &a.Operator, &a.Lat, &a.Lon)
		return a, err
	})
	if err != nil {
		return nil, fail(span, fmt.Errorf("scan assets: %w", err))
	}
	return out, nil
}

// GetAsset retrieves an asset by site ID.
func (s *Store) GetAsset(ctx context.Context, siteID string) (*emission.Asset, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetAsset", "SELECT")
	defer span.End()

	var a emission.Asset
	err := s.pool.QueryRow(ctx,
		`SELECT site_id, site_name, operator, lat, lon FROM assets WHERE site_id = $1`, siteID,
	).Scan(&a.SiteID, &a.SiteName, &a.Operator, &a.Lat, &a.Lon)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fail(span, fmt.Errorf("get asset: %w", err))
	}
	return &a, true, nil
}

// PutAsset inserts or replaces an asset.
func (s *Store) PutAsset(ctx context.Context, a *emission.Asset) error {
	ctx, span := startSpan(ctx, "pgstore.PutAsset", "UPSERT")
	defer span.End()

	if a.SiteID == "" {
		return &emission.ValidationError{Field: "site_id", Reason: "missing"}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO assets (site_id, site_name, operator, lat, lon) VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (site_id) DO UPDATE SET
			site_name = EXCLUDED.site_name,
			operator  = EXCLUDED.operator,
			lat       = EXCLUDED.lat,
			lon       = EXCLUDED.lon`,
		a.SiteID, a.SiteName, a.Operator, a.Lat, a.Lon,
	)
	if err != nil {
		return fail(span, fmt.Errorf("upsert asset: %w", err))
	}
	return nil
}

// List returns every event in creation order with its action log.
func (s *Store) List(ctx context.Context) ([]*emission.Event, error) {
	ctx, span := startSpan(ctx, "pgstore.List", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT `+eventColumns+` FROM events ORDER BY seq`)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query events: %w", err))
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*emission.Event, error) {
		return scanEvent(row)
	})
	if err != nil {
		return nil, fail(span, err)
	}

	byID := make(map[string]*emission.Event, len(events))
	for _, e := range events {
		byID[e.ID] = e
	}
	logRows, err := s.pool.Query(ctx, `SELECT event_id, seq, message, at FROM action_log ORDER BY event_id, seq`)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query action log: %w", err))
	}
	defer logRows.Close()
	for logRows.Next() {
		var (
			id string
			l  emission.ActionLogEntry
		)
		if err := logRows.Scan(&id, &l.Seq, &l.Message, &l.At); err != nil {
			return nil, fail(span, fmt.Errorf("scan action log: %w", err))
		}
		l.At = l.At.UTC()
		if e, ok := byID[id]; ok {
			e.Log = append(e.Log, l)
		}
	}
	if err := logRows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate action log: %w", err))
	}

	span.SetAttributes(attribute.Int("ventwatch.events.count", len(events)))
	return events, nil
}

// Get retrieves an event by ID with its action log.
func (s *Store) Get(ctx context.Context, id string) (*emission.Event, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.Get", "SELECT")
	defer span.End()

	e, err := s.load(ctx, s.pool, id, false)
	if err != nil {
		return nil, false, fail(span, err)
	}
	if e == nil {
		return nil, false, nil
	}
	return e, true, nil
}

// Create inserts a new event with its runbook. An existing ID is left untouched
// and reported as created=false.
func (s *Store) Create(ctx context.Context, e *emission.Event) (bool, error) {
	ctx, span := startSpan(ctx, "pgstore.Create", "INSERT")
	defer span.End()

	notes, runbook, err := marshalDocs(e)
	if err != nil {
		return false, fail(span, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fail(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	tag, err := tx.Exec(ctx,
		`INSERT INTO events (id, site_id, detection_type, est_ch4_kgph, confidence, lat, lon,
			detected_at, status, investigation_started, report_submitted, notes, runbook, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.SiteID, string(e.Type), e.RateKgph, e.Confidence, e.Lat, e.Lon,
		e.DetectedAt, string(e.Status), e.InvestigationStartedAt, e.ReportSubmittedAt, notes, runbook, e.CreatedAt,
	)
	if err != nil {
		return false, fail(span, fmt.Errorf("insert event: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if err := insertLog(ctx, tx, e.ID, e.Log); err != nil {
		return false, fail(span, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fail(span, fmt.Errorf("commit: %w", err))
	}
	return true, nil
}

// Update locks the event row for the duration of fn, then writes back the mutable
// columns and any log entries fn appended.
func (s *Store) Update(ctx context.Context, id string, fn emission.Mutator) (*emission.Event, error) {
	ctx, span := startSpan(ctx, "pgstore.Update", "UPDATE")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fail(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	e, err := s.load(ctx, tx, id, true)
	if err != nil {
		return nil, fail(span, err)
	}
	if e == nil {
		return nil, fmt.Errorf("event %q: %w", id, emission.ErrNotFound)
	}

	known := len(e.Log)
	changed, err := fn(e)
	if err != nil {
		return nil, err
	}
	if !changed {
		return e, nil
	}

	notes, runbook, err := marshalDocs(e)
	if err != nil {
		return nil, fail(span, err)
	}
	_, err = tx.Exec(ctx,
		`UPDATE events SET status = $2, investigation_started = $3, report_submitted = $4,
			notes = $5, runbook = $6
		WHERE id = $1`,
		e.ID, string(e.Status), e.InvestigationStartedAt, e.ReportSubmittedAt, notes, runbook,
	)
	if err != nil {
		return nil, fail(span, fmt.Errorf("update event: %w", err))
	}
	if err := insertLog(ctx, tx, e.ID, e.Log[known:]); err != nil {
		return nil, fail(span, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fail(span, fmt.Errorf("commit: %w", err))
	}
	return e, nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// load reads one event and its log. Returns (nil, nil) when no row is found.
func (s *Store) load(ctx context.Context, q querier, id string, forUpdate bool) (*emission.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	e, err := scanEvent(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `SELECT seq, message, at FROM action_log WHERE event_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("query action log: %w", err)
	}
	e.Log, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (emission.ActionLogEntry, error) {
		var l emission.ActionLogEntry
		err := row.Scan(&l.Seq, &l.Message, &l.At)
		l.At = l.At.UTC()
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan action log: %w", err)
	}
	if len(e.Log) == 0 {
		e.Log = nil
	}
	return e, nil
}

func insertLog(ctx context.Context, tx pgx.Tx, eventID string, entries []emission.ActionLogEntry) error {
	for _, l := range entries {
		_, err := tx.Exec(ctx,
			`INSERT INTO action_log (event_id, seq, message, at) VALUES ($1, $2, $3, $4)`,
			eventID, l.Seq, l.Message, l.At,
		)
		if err != nil {
			return fmt.Errorf("insert action log seq %d: %w", l.Seq, err)
		}
	}
	return nil
}

func marshalDocs(e *emission.Event) (notes, runbook []byte, err error) {
	n := e.Notes
	if n == nil {
		n = map[string]string{}
	}
	notes, err = json.Marshal(n)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal notes: %w", err)
	}
	rb := e.Runbook
	if rb == nil {
		rb = []emission.RunbookItem{}
	}
	runbook, err = json.Marshal(rb)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal runbook: %w", err)
	}
	return notes, runbook, nil
}

// scanEvent scans a single events row (without its log).
func scanEvent(row pgx.Row) (*emission.Event, error) {
	var (
		e           emission.Event
		typ, status string
		notes       []byte
		runbook     []byte
		invStarted  *time.Time
		reported    *time.Time
	)
	err := row.Scan(
		&e.ID, &e.SiteID, &typ, &e.RateKgph, &e.Confidence, &e.Lat, &e.Lon,
		&e.DetectedAt, &status, &invStarted, &reported, &notes, &runbook, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan: %w", err)
	}

	e.Type = emission.DetectionType(typ)
	e.Status = emission.Status(status)
	e.DetectedAt = e.DetectedAt.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	e.InvestigationStartedAt = utcPtr(invStarted)
	e.ReportSubmittedAt = utcPtr(reported)

	if err := json.Unmarshal(notes, &e.Notes); err != nil {
		return nil, fmt.Errorf("unmarshal notes: %w", err)
	}
	if len(e.Notes) == 0 {
		e.Notes = nil
	}
	if err := json.Unmarshal(runbook, &e.Runbook); err != nil {
		return nil, fmt.Errorf("unmarshal runbook: %w", err)
	}
	for i := range e.Runbook {
		e.Runbook[i].CompletedAt = utcPtr(e.Runbook[i].CompletedAt)
	}
	return &e, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
