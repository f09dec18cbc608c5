package emission

import (
	"fmt"
	"sort"
	"time"
)

// action log messages
const (
	MsgInvestigationStarted = "Investigation started"
	MsgReportSubmitted      = "Report submitted"
	msgRunbookCompleted     = "Runbook item completed: %s"
)

// StartInvestigation moves a NEW event to INVESTIGATING.
func StartInvestigation(e *Event, now time.Time) error {
	if e.Status != StatusNew {
		return &TransitionError{Op: "start investigation", From: e.Status}
	}
	now = now.UTC()
	e.Status = StatusInvestigating
	e.InvestigationStartedAt = &now
	e.appendLog(MsgInvestigationStarted, now)
	return nil
}

// MarkReported moves an INVESTIGATING event to REPORTED. There is no direct
// NEW to REPORTED path.
func MarkReported(e *Event, now time.Time) error {
	if e.Status != StatusInvestigating || e.InvestigationStartedAt == nil {
		return &TransitionError{Op: "mark reported", From: e.Status}
	}
	now = now.UTC()
	e.Status = StatusReported
	e.ReportSubmittedAt = &now
	e.appendLog(MsgReportSubmitted, now)
	return nil
}

// CompleteRunbookItem marks a runbook item done. Completing an item twice is a
// no-op and reports changed=false. Allowed in every status.
func CompleteRunbookItem(e *Event, itemID string, now time.Time) (changed bool, err error) {
	idx := -1
	for i := range e.Runbook {
		if e.Runbook[i].ID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, fmt.Errorf("runbook item %q: %w", itemID, ErrNotFound)
	}

	item := &e.Runbook[idx]
	if item.Completed {
		return false, nil
	}

	now = now.UTC()
	item.Completed = true
	item.CompletedAt = &now
	e.appendLog(fmt.Sprintf(msgRunbookCompleted, item.Label), now)
	return true, nil
}

func (e *Event) appendLog(msg string, at time.Time) {
	e.Log = append(e.Log, ActionLogEntry{Seq: nextSeq(e.Log), Message: msg, At: at})
}

func nextSeq(log []ActionLogEntry) int {
	seq := 0
	for _, l := range log {
		if l.Seq >= seq {
			seq = l.Seq + 1
		}
	}
	return seq
}

// ActionLog returns the log ordered by instant, insertion order breaking ties.
// The stored slice is left untouched.
func (e *Event) ActionLog() []ActionLogEntry {
	out := make([]ActionLogEntry, len(e.Log))
	copy(out, e.Log)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].At.Equal(out[j].At) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].At.Before(out[j].At)
	})
	return out
}
