package emission

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func newTestEvent() *Event {
	return NewEvent(&Detection{
		ID:         "evt-1",
		SiteID:     "S1",
		Type:       DetectionSatellite,
		RateKgph:   300,
		Confidence: 0.7,
		DetectedAt: testNow.Add(-24 * time.Hour),
	}, testNow.Add(-23*time.Hour))
}

func TestNewEvent(t *testing.T) {
	t.Parallel()

	e := newTestEvent()
	if e.Status != StatusNew {
		t.Errorf("Status = %s, want NEW", e.Status)
	}
	if len(e.Log) != 0 {
		t.Errorf("Log len = %d, want 0", len(e.Log))
	}
	if len(e.Runbook) != 4 {
		t.Fatalf("Runbook len = %d, want 4", len(e.Runbook))
	}
	for _, item := range e.Runbook {
		if item.Completed || item.CompletedAt != nil {
			t.Errorf("runbook item %s should start incomplete", item.ID)
		}
	}
}

func TestStartInvestigation(t *testing.T) {
	t.Parallel()

	e := newTestEvent()
	if err := StartInvestigation(e, testNow); err != nil {
		t.Fatalf("StartInvestigation: %v", err)
	}
	if e.Status != StatusInvestigating {
		t.Errorf("Status = %s, want INVESTIGATING", e.Status)
	}
	if e.InvestigationStartedAt == nil || !e.InvestigationStartedAt.Equal(testNow) {
		t.Errorf("InvestigationStartedAt = %v, want %v", e.InvestigationStartedAt, testNow)
	}
	if len(e.Log) != 1 || e.Log[0].Message != MsgInvestigationStarted {
		t.Errorf("Log = %+v, want one %q entry", e.Log, MsgInvestigationStarted)
	}
}

func TestStartInvestigation_TwiceLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	e := newTestEvent()
	if err := StartInvestigation(e, testNow); err != nil {
		t.Fatalf("StartInvestigation: %v", err)
	}
	before := e.Clone()

	err := StartInvestigation(e, testNow.Add(time.Hour))
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	if !reflect.DeepEqual(before, e) {
		t.Errorf("event changed after rejected transition:\nbefore %+v\nafter  %+v", before, e)
	}
}

func TestMarkReported_FromNewFails(t *testing.T) {
	t.Parallel()

	e := newTestEvent()
	err := MarkReported(e, testNow)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	var te *TransitionError
	if !errors.As(err, &te) || te.From != StatusNew {
		t.Errorf("err = %#v, want TransitionError from NEW", err)
	}
	if e.Status != StatusNew {
		t.Errorf("Status = %s, want NEW", e.Status)
	}
	if e.ReportSubmittedAt != nil {
		t.Errorf("ReportSubmittedAt = %v, want nil", e.ReportSubmittedAt)
	}
	if len(e.Log) != 0 {
		t.Errorf("Log len = %d, want 0", len(e.Log))
	}
}

func TestMarkReported_AfterInvestigation(t *testing.T) {
	t.Parallel()

	e := newTestEvent()
	if err := StartInvestigation(e, testNow); err != nil {
		t.Fatalf("StartInvestigation: %v", err)
	}
	if err := MarkReported(e, testNow.Add(2*time.Hour)); err != nil {
		t.Fatalf("MarkReported: %v", err)
	}
	if e.Status != StatusReported {
		t.Errorf("Status = %s, want REPORTED", e.Status)
	}
	if e.ReportSubmittedAt.Before(*e.InvestigationStartedAt) {
		t.Error("report submitted before investigation started")
	}
	if err := MarkReported(e, testNow.Add(3*time.Hour)); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second MarkReported err = %v, want ErrInvalidTransition", err)
	}
	if err := StartInvestigation(e, testNow.Add(3*time.Hour)); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("StartInvestigation on REPORTED err = %v, want ErrInvalidTransition", err)
	}
}

func TestCompleteRunbookItem_Idempotent(t *testing.T) {
	t.Parallel()

	e := newTestEvent()
	changed, err := CompleteRunbookItem(e, "quantify", testNow)
	if err != nil {
		t.Fatalf("CompleteRunbookItem: %v", err)
	}
	if !changed {
		t.Fatal("first completion should report changed")
	}
	first := *e.Runbook[1].CompletedAt
	logLen := len(e.Log)

	changed, err = CompleteRunbookItem(e, "quantify", testNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("CompleteRunbookItem again: %v", err)
	}
	if changed {
		t.Error("second completion should be a no-op")
	}
	if !e.Runbook[1].CompletedAt.Equal(first) {
		t.Errorf("CompletedAt = %v, want %v", e.Runbook[1].CompletedAt, first)
	}
	if len(e.Log) != logLen {
		t.Errorf("Log len = %d, want %d", len(e.Log), logLen)
	}
	if want := "Runbook item completed: Capture follow-up quantification reading"; e.Log[0].Message != want {
		t.Errorf("message = %q, want %q", e.Log[0].Message, want)
	}
}

func TestCompleteRunbookItem_AnyStatus(t *testing.T) {
	t.Parallel()

	e := newTestEvent()
	_ = StartInvestigation(e, testNow)
	_ = MarkReported(e, testNow)
	if _, err := CompleteRunbookItem(e, "site-safety", testNow); err != nil {
		t.Errorf("CompleteRunbookItem on REPORTED: %v", err)
	}
}

func TestCompleteRunbookItem_NotFound(t *testing.T) {
	t.Parallel()

	e := newTestEvent()
	_, err := CompleteRunbookItem(e, "nope", testNow)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if len(e.Log) != 0 {
		t.Errorf("Log len = %d, want 0", len(e.Log))
	}
}

func TestActionLog_SortedByInstant(t *testing.T) {
	t.Parallel()

	e := newTestEvent()
	e.appendLog("third", testNow.Add(3*time.Hour))
	e.appendLog("first", testNow.Add(time.Hour))
	e.appendLog("second-a", testNow.Add(2*time.Hour))
	e.appendLog("second-b", testNow.Add(2*time.Hour))

	got := e.ActionLog()
	want := []string{"first", "second-a", "second-b", "third"}
	for i, w := range want {
		if got[i].Message != w {
			t.Errorf("ActionLog[%d] = %q, want %q", i, got[i].Message, w)
		}
	}
	if e.Log[0].Message != "third" {
		t.Error("ActionLog must not reorder the stored log")
	}
}

func TestClone_Deep(t *testing.T) {
	t.Parallel()

	e := newTestEvent()
	e.Notes = map[string]string{"k": "v"}
	_ = StartInvestigation(e, testNow)
	_, _ = CompleteRunbookItem(e, "quantify", testNow)

	cp := e.Clone()
	cp.Notes["k"] = "changed"
	cp.Runbook[0].Completed = true
	*cp.InvestigationStartedAt = testNow.Add(time.Hour)
	*cp.Runbook[1].CompletedAt = testNow.Add(time.Hour)
	cp.Log[0].Message = "changed"

	if e.Notes["k"] != "v" || e.Runbook[0].Completed || !e.InvestigationStartedAt.Equal(testNow) ||
		!e.Runbook[1].CompletedAt.Equal(testNow) || e.Log[0].Message == "changed" {
		t.Error("Clone shares state with the original")
	}
}
