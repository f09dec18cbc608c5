package emission

import (
	"fmt"
	"time"
)

const (
	// InvestigateWindow is the time from detection allowed before an investigation must start.
	InvestigateWindow = 5 * 24 * time.Hour

	// ReportWindow is the time from detection allowed before the report must be submitted.
	ReportWindow = 15 * 24 * time.Hour
)

// DefaultSLA is the regulatory response schedule.
var DefaultSLA = SLAClock{investigate: InvestigateWindow, report: ReportWindow}

// Deadlines are the instants by which each milestone is due.
type Deadlines struct {
	InvestigateBy time.Time `json:"investigate_by"`
	ReportBy      time.Time `json:"report_by"`
}

// SLAStatus is a deadline evaluated against one instant.
type SLAStatus struct {
	RemainingHours float64 `json:"remaining_h"`
	Breached       bool    `json:"breached"`
}

// SLAClock derives deadlines from detection time and evaluates them against now.
type SLAClock struct {
	investigate time.Duration
	report      time.Duration
}

// NewSLAClock returns an SLAClock with custom windows. The report window may not be
// shorter than the investigate window.
func NewSLAClock(investigate, report time.Duration) (SLAClock, error) {
	if investigate <= 0 {
		return SLAClock{}, fmt.Errorf("investigate window must be positive, got %s", investigate)
	}
	if report < investigate {
		return SLAClock{}, fmt.Errorf("report window %s is shorter than investigate window %s", report, investigate)
	}
	return SLAClock{investigate: investigate, report: report}, nil
}

// Deadlines returns the fixed offsets from detectedAt.
func (c SLAClock) Deadlines(detectedAt time.Time) Deadlines {
	detectedAt = detectedAt.UTC()
	return Deadlines{
		InvestigateBy: detectedAt.Add(c.investigate),
		ReportBy:      detectedAt.Add(c.report),
	}
}

// Status evaluates a deadline at now. Remaining hours are signed and never clamped.
func (SLAClock) Status(deadline, now time.Time) SLAStatus {
	remaining := deadline.Sub(now).Hours()
	return SLAStatus{
		RemainingHours: remaining,
		Breached:       remaining < 0,
	}
}
