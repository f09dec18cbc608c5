package postgres

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/linnemanlabs/go-core/log"
)

func TestShortenFuncName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"full path", "github.com/linnemanlabs/ventwatch/internal/emission/pgstore.(*Store).Get", "(*Store).Get"},
		{"already short", "(*Store).Get", "Get"},
		{"empty string", "", ""},
		{"no dots", "main", "main"},
		{"no slashes", "pgstore.(*Store).Get", "(*Store).Get"},
		{"single segment", "foo.Bar", "Bar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := shortenFuncName(tt.in)
			if got != tt.want {
				t.Errorf("shortenFuncName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestReqDBStats_AddQuery(t *testing.T) {
	t.Parallel()

	s := &ReqDBStats{}

	s.AddQuery(10*time.Millisecond, nil)
	s.AddQuery(20*time.Millisecond, errors.New("timeout"))
	s.AddQuery(5*time.Millisecond, nil)

	if s.QueryCount != 3 {
		t.Errorf("QueryCount = %d, want 3", s.QueryCount)
	}
	if s.TotalDuration != 35*time.Millisecond {
		t.Errorf("TotalDuration = %v, want 35ms", s.TotalDuration)
	}
	if s.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", s.ErrorCount)
	}
}

func TestReqDBStatsContext_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := NewReqDBStatsContext(context.Background())
	got, ok := ReqDBStatsFromContext(ctx)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if got == nil {
		t.Fatal("expected non-nil stats")
	}

	// Verify it's the same pointer
	got.AddQuery(time.Millisecond, nil)
	got2, _ := ReqDBStatsFromContext(ctx)
	if got2.QueryCount != 1 {
		t.Errorf("QueryCount = %d, want 1 (same pointer)", got2.QueryCount)
	}
}

func TestReqDBStatsFromContext_Missing(t *testing.T) {
	t.Parallel()

	_, ok := ReqDBStatsFromContext(context.Background())
	if ok {
		t.Error("expected ok=false for plain context")
	}
}

func TestWithHTTPMethod_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := WithHTTPMethod(context.Background(), "POST")
	got := httpMethodFromContext(ctx)
	if got != "POST" {
		t.Errorf("httpMethodFromContext = %q, want %q", got, "POST")
	}
}

func TestWithHTTPMethod_Empty(t *testing.T) {
	t.Parallel()

	ctx := WithHTTPMethod(context.Background(), "")
	got := httpMethodFromContext(ctx)
	if got != "" {
		t.Errorf("httpMethodFromContext = %q, want empty", got)
	}
}

func TestQueryTracer_RecordsStatsAndObserves(t *testing.T) {
	t.Parallel()

	var (
		gotMethod, gotRoute, gotOutcome string
		calls                           int
	)
	obs := QueryObserverFunc(func(_ context.Context, method, route, outcome string, _ time.Duration) {
		calls++
		gotMethod, gotRoute, gotOutcome = method, route, outcome
	})
	tr := newQueryTracer(nil, obs, time.Hour)

	ctx := log.WithContext(context.Background(), log.Nop())
	ctx = NewReqDBStatsContext(WithHTTPMethod(ctx, "POST"))

	qctx := tr.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
	time.Sleep(time.Millisecond)
	tr.TraceQueryEnd(qctx, nil, pgx.TraceQueryEndData{CommandTag: pgconn.NewCommandTag("SELECT 1")})

	qctx = tr.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{SQL: "SELECT broken"})
	time.Sleep(time.Millisecond)
	tr.TraceQueryEnd(qctx, nil, pgx.TraceQueryEndData{Err: errors.New("syntax error")})

	stats, _ := ReqDBStatsFromContext(ctx)
	count, total, errs := stats.Snapshot()
	if count != 2 || errs != 1 || total <= 0 {
		t.Errorf("stats = %d queries, %v, %d errors", count, total, errs)
	}
	if calls != 2 {
		t.Fatalf("observer calls = %d, want 2", calls)
	}
	if gotMethod != "POST" || gotRoute != "unknown" || gotOutcome != "error" {
		t.Errorf("labels = %s %s %s", gotMethod, gotRoute, gotOutcome)
	}
}

func TestQueryTracer_EndWithoutStart(t *testing.T) {
	t.Parallel()

	tr := newQueryTracer(nil, nil, 0)
	ctx := log.WithContext(context.Background(), log.Nop())
	tr.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{})
}

func TestRequestStats_AttachesContext(t *testing.T) {
	t.Parallel()

	var (
		sawStats  bool
		sawMethod string
	)
	h := RequestStats(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		s, ok := ReqDBStatsFromContext(r.Context())
		sawStats = ok
		sawMethod = httpMethodFromContext(r.Context())
		if ok {
			s.AddQuery(time.Millisecond, nil)
		}
	}))

	req := httptest.NewRequest(http.MethodDelete, "/x", http.NoBody)
	req = req.WithContext(log.WithContext(req.Context(), log.Nop()))
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !sawStats {
		t.Error("expected stats in request context")
	}
	if sawMethod != http.MethodDelete {
		t.Errorf("method = %q, want DELETE", sawMethod)
	}
}

func TestLabelOr(t *testing.T) {
	t.Parallel()

	if got := labelOr("", "unknown"); got != "unknown" {
		t.Errorf("labelOr(empty) = %q", got)
	}
	if got := labelOr("/events", "unknown"); got != "/events" {
		t.Errorf("labelOr(/events) = %q", got)
	}
}
