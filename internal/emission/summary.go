package emission

import (
	"fmt"
	"math"
	"time"
)

// NextBreach points at the most urgent open deadline of a fleet.
type NextBreach struct {
	EventID        string  `json:"event_id"`
	RemainingHours float64 `json:"remaining_h"`
	Label          string  `json:"label"`
}

// Summary holds dashboard totals for a set of events.
type Summary struct {
	Total              int         `json:"total"`
	HighCount          int         `json:"high_count"`
	BreachedCount      int         `json:"breached_count"`
	InvestigatingCount int         `json:"investigating_count"`
	NextBreach         *NextBreach `json:"next_breach"`
	AsOf               time.Time   `json:"as_of_utc"`
}

// Summarize folds views evaluated at asOf into fleet totals. Views evaluated at any
// other instant are rejected with ErrStaleComputation. Ties for the next breach go to
// the lowest event ID so the result does not depend on store ordering.
func Summarize(views []*EventView, asOf time.Time) (Summary, error) {
	asOf = asOf.UTC()
	s := Summary{Total: len(views), AsOf: asOf}

	for _, v := range views {
		if !v.EvaluatedAt.Equal(asOf) {
			return Summary{}, fmt.Errorf("event %s evaluated at %s, summary as of %s: %w",
				v.ID, v.EvaluatedAt.Format(time.RFC3339Nano), asOf.Format(time.RFC3339Nano), ErrStaleComputation)
		}

		if v.TriageBucket == BucketHigh {
			s.HighCount++
		}
		if v.Status == StatusInvestigating {
			s.InvestigatingCount++
		}
		if v.Breached() {
			s.BreachedCount++
		}

		hours, ok := v.OpenRemaining()
		if !ok || math.IsNaN(hours) || math.IsInf(hours, 0) {
			continue
		}
		if s.NextBreach == nil || hours < s.NextBreach.RemainingHours ||
			(hours == s.NextBreach.RemainingHours && v.ID < s.NextBreach.EventID) {
			s.NextBreach = &NextBreach{EventID: v.ID, RemainingHours: hours, Label: BreachLabel(hours)}
		}
	}
	return s, nil
}

// BreachLabel renders remaining hours the way the dashboard shows them.
// Overdue figures that round to zero still read as overdue.
func BreachLabel(hours float64) string {
	if hours < 0 {
		overdue := math.Round(-hours*10) / 10
		if overdue == 0 {
			return "Overdue by <0.1 h"
		}
		return fmt.Sprintf("Overdue by %.1f h", overdue)
	}
	return fmt.Sprintf("%.1f h left", hours)
}
