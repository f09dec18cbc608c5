package emission

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Hooks(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	svc := NewService(newMockStore("S1"), fixedClock(testNow), log.Nop(), m.Hooks(), Sinks{})
	ctx := context.Background()

	if _, err := svc.Import(ctx, []ImportRow{
		{Line: 2, Detection: detection("hi", "S1", DetectionSatellite, 900, 0.9, time.Hour)},
		{Line: 3, Detection: detection("lo", "S1", DetectionContinuous, 20, 0.2, 60*time.Hour)},
		{Line: 4, Detection: detection("hi", "S1", DetectionSatellite, 900, 0.9, time.Hour)},
		{Line: 5, Err: &ValidationError{Field: "lat", Reason: "not a number"}},
	}); err != nil {
		t.Fatalf("Import: %v", err)
	}

	_, _ = svc.StartInvestigation(ctx, "hi")
	_, _ = svc.StartInvestigation(ctx, "hi")
	_, _ = svc.CompleteRunbookItem(ctx, "hi", "quantify")
	_, _ = svc.CompleteRunbookItem(ctx, "hi", "quantify")
	_, _ = svc.MarkReported(ctx, "lo")
	_, _ = svc.MarkReported(ctx, "missing")

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"rows imported", m.ImportRowsTotal.WithLabelValues(RowImported), 2},
		{"rows skipped", m.ImportRowsTotal.WithLabelValues(RowSkipped), 1},
		{"rows failed", m.ImportRowsTotal.WithLabelValues(RowFailed), 1},
		{"scored high", m.ScoredTotal.WithLabelValues(string(BucketHigh)), 1},
		{"scored low", m.ScoredTotal.WithLabelValues(string(BucketLow)), 1},
		{"investigate ok", m.ActionsTotal.WithLabelValues(ActionInvestigate, OutcomeOK), 1},
		{"investigate repeated", m.ActionsTotal.WithLabelValues(ActionInvestigate, OutcomeInvalidTransition), 1},
		{"runbook ok", m.ActionsTotal.WithLabelValues(ActionRunbook, OutcomeOK), 1},
		{"runbook noop", m.ActionsTotal.WithLabelValues(ActionRunbook, OutcomeNoop), 1},
		{"report invalid", m.ActionsTotal.WithLabelValues(ActionReport, OutcomeInvalidTransition), 1},
		{"report not found", m.ActionsTotal.WithLabelValues(ActionReport, OutcomeNotFound), 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(tt.c); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNewMetrics_DoubleRegisterPanics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("second NewMetrics on the same registry did not panic")
		}
	}()
	NewMetrics(reg)
}

func TestFleetCollector(t *testing.T) {
	t.Parallel()

	fn := func(context.Context) (Summary, error) {
		return Summary{
			Total:              3,
			HighCount:          1,
			BreachedCount:      1,
			InvestigatingCount: 2,
			NextBreach:         &NextBreach{EventID: "b", RemainingHours: -2},
			AsOf:               testNow,
		}, nil
	}

	want := `
# HELP ventwatch_fleet_breached_events Events with an investigate or report SLA breach.
# TYPE ventwatch_fleet_breached_events gauge
ventwatch_fleet_breached_events 1
# HELP ventwatch_fleet_events Events currently tracked.
# TYPE ventwatch_fleet_events gauge
ventwatch_fleet_events 3
# HELP ventwatch_fleet_high_events Events in the HIGH triage bucket.
# TYPE ventwatch_fleet_high_events gauge
ventwatch_fleet_high_events 1
# HELP ventwatch_fleet_investigating_events Events under investigation.
# TYPE ventwatch_fleet_investigating_events gauge
ventwatch_fleet_investigating_events 2
# HELP ventwatch_fleet_next_breach_remaining_hours Remaining hours of the most urgent open deadline.
# TYPE ventwatch_fleet_next_breach_remaining_hours gauge
ventwatch_fleet_next_breach_remaining_hours{event_id="b"} -2
# HELP ventwatch_fleet_summary_up Whether the last fleet summary succeeded.
# TYPE ventwatch_fleet_summary_up gauge
ventwatch_fleet_summary_up 1
`
	if err := testutil.CollectAndCompare(NewFleetCollector(fn), strings.NewReader(want)); err != nil {
		t.Error(err)
	}
}

func TestFleetCollector_SummaryError(t *testing.T) {
	t.Parallel()

	fn := func(context.Context) (Summary, error) {
		return Summary{}, errors.New("store down")
	}

	want := `
# HELP ventwatch_fleet_summary_up Whether the last fleet summary succeeded.
# TYPE ventwatch_fleet_summary_up gauge
ventwatch_fleet_summary_up 0
`
	if err := testutil.CollectAndCompare(NewFleetCollector(fn), strings.NewReader(want)); err != nil {
		t.Error(err)
	}
}

func TestFleetCollector_RecomputesEachScrape(t *testing.T) {
	t.Parallel()

	calls := 0
	fn := func(context.Context) (Summary, error) {
		calls++
		return Summary{Total: calls}, nil
	}
	c := NewFleetCollector(fn)

	if n := testutil.CollectAndCount(c, "ventwatch_fleet_events"); n != 1 {
		t.Fatalf("collected %d series, want 1", n)
	}
	if n := testutil.CollectAndCount(c, "ventwatch_fleet_next_breach_remaining_hours"); n != 0 {
		t.Errorf("next breach series = %d, want 0 with no open deadline", n)
	}
	if calls != 2 {
		t.Errorf("summary calls = %d, want one per scrape", calls)
	}
}
