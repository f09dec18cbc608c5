package emission

import (
	"fmt"
	"time"
)

// EventView is an Event with every time-relative figure derived for EvaluatedAt.
// Views are built fresh on every read and never persisted.
type EventView struct {
	*Event

	Asset                Asset            `json:"asset"`
	TriageScore          float64          `json:"triage_score"`
	TriageBucket         Bucket           `json:"triage_bucket"`
	TriageBreakdown      TriageBreakdown  `json:"triage_breakdown"`
	InvestigateDeadline  time.Time        `json:"sla_investigate_deadline_utc"`
	ReportDeadline       time.Time        `json:"sla_report_deadline_utc"`
	InvestigateRemaining float64          `json:"sla_investigate_remaining_h"`
	ReportRemaining      float64          `json:"sla_report_remaining_h"`
	InvestigateBreached  bool             `json:"sla_investigate_breached"`
	ReportBreached       bool             `json:"sla_report_breached"`
	ActionLog            []ActionLogEntry `json:"action_log"`
	Runbook              []RunbookItem    `json:"runbook"`
	EvaluatedAt          time.Time        `json:"evaluated_at_utc"`
}

// Evaluator derives views from stored events.
type Evaluator struct {
	Scorer Scorer
	SLA    SLAClock
}

// DefaultEvaluator uses the default scorer and SLA schedule.
var DefaultEvaluator = Evaluator{SLA: DefaultSLA}

// Evaluate builds the view of a copy of e as of now.
func (ev Evaluator) Evaluate(e *Event, asset Asset, now time.Time) (*EventView, error) {
	now = now.UTC()
	cp := e.Clone()

	breakdown, err := ev.Scorer.Score(cp.Detection(), now)
	if err != nil {
		return nil, fmt.Errorf("score event %s: %w", e.ID, err)
	}

	dl := ev.SLA.Deadlines(cp.DetectedAt)
	inv := ev.SLA.Status(dl.InvestigateBy, now)
	rep := ev.SLA.Status(dl.ReportBy, now)

	runbook := cp.Runbook
	if runbook == nil {
		runbook = []RunbookItem{}
	}

	return &EventView{
		Event:                cp,
		Asset:                asset,
		TriageScore:          breakdown.Score,
		TriageBucket:         breakdown.Bucket(),
		TriageBreakdown:      breakdown,
		InvestigateDeadline:  dl.InvestigateBy,
		ReportDeadline:       dl.ReportBy,
		InvestigateRemaining: inv.RemainingHours,
		ReportRemaining:      rep.RemainingHours,
		InvestigateBreached:  inv.Breached,
		ReportBreached:       rep.Breached,
		ActionLog:            cp.ActionLog(),
		Runbook:              runbook,
		EvaluatedAt:          now,
	}, nil
}

// Breached reports whether either SLA flag is set.
func (v *EventView) Breached() bool {
	return v.InvestigateBreached || v.ReportBreached
}

// OpenRemaining is the smallest remaining figure among deadlines whose milestone
// has not been recorded yet. ok is false once both milestones are recorded.
func (v *EventView) OpenRemaining() (hours float64, ok bool) {
	if v.InvestigationStartedAt == nil {
		hours, ok = v.InvestigateRemaining, true
	}
	if v.ReportSubmittedAt == nil && (!ok || v.ReportRemaining < hours) {
		hours, ok = v.ReportRemaining, true
	}
	return hours, ok
}
