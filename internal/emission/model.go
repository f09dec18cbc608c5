package emission

import (
	"fmt"
	"maps"
	"time"
)

// DetectionType is the sensing method that produced a detection.
type DetectionType string

const (
	// DetectionSatellite is a satellite plume observation.
	DetectionSatellite DetectionType = "satellite"

	// DetectionOGI is an optical gas imaging survey.
	DetectionOGI DetectionType = "OGI"

	// DetectionContinuous is a fixed continuous monitor.
	DetectionContinuous DetectionType = "continuous"
)

// DetectionTypes lists every known detection type.
var DetectionTypes = []DetectionType{DetectionSatellite, DetectionOGI, DetectionContinuous}

// ParseDetectionType maps raw input onto a known DetectionType.
func ParseDetectionType(s string) (DetectionType, error) {
	switch DetectionType(s) {
	case DetectionSatellite, DetectionOGI, DetectionContinuous:
		return DetectionType(s), nil
	default:
		return "", &ValidationError{Field: "detection_type", Reason: fmt.Sprintf("unknown detection method %q", s)}
	}
}

// Status tracks where an event is in its lifecycle.
type Status string

const (
	// StatusNew means detected, nobody has started investigating
	StatusNew Status = "NEW"

	// StatusInvestigating means an investigation is underway
	StatusInvestigating Status = "INVESTIGATING"

	// StatusReported means the regulatory report was submitted
	StatusReported Status = "REPORTED"
)

// ParseStatus maps raw input onto a known Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusNew, StatusInvestigating, StatusReported:
		return Status(s), nil
	default:
		return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", s)}
	}
}

// Bucket is the coarse triage urgency.
type Bucket string

const (
	BucketHigh Bucket = "HIGH"
	BucketMed  Bucket = "MED"
	BucketLow  Bucket = "LOW"
)

// Asset is an emission source from the external site inventory.
type Asset struct {
	SiteID   string  `json:"site_id"`
	SiteName string  `json:"site_name"`
	Operator string  `json:"operator"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
}

// Detection is a raw observation before triage.
type Detection struct {
	ID         string            `json:"id,omitempty"`
	SiteID     string            `json:"site_id"`
	Type       DetectionType     `json:"detection_type"`
	RateKgph   float64           `json:"est_ch4_kgph"`
	Confidence float64           `json:"confidence"`
	Lat        float64           `json:"lat"`
	Lon        float64           `json:"lon"`
	DetectedAt time.Time         `json:"detected_at_utc"`
	Notes      map[string]string `json:"notes,omitempty"`
}

// TriageBreakdown records how a triage score was derived.
type TriageBreakdown struct {
	BaseSeverity    float64            `json:"base_severity"`
	DetectionWeight float64            `json:"detection_weight"`
	Confidence      float64            `json:"confidence"`
	RecencyBoost    float64            `json:"recency_boost"`
	Score           float64            `json:"score"`
	Components      map[string]float64 `json:"components"`
	ComputedAt      time.Time          `json:"computed_at_utc"`
}

// Bucket returns the urgency bucket for the breakdown's score.
func (b TriageBreakdown) Bucket() Bucket {
	return BucketFor(b.Score)
}

// RunbookItem is one checklist step of the investigation procedure.
type RunbookItem struct {
	ID          string     `json:"id"`
	Label       string     `json:"label"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at_utc"`
}

// ActionLogEntry is one immutable audit record. Seq is the insertion order,
// At is the instant the action happened.
type ActionLogEntry struct {
	Seq     int       `json:"seq"`
	Message string    `json:"message"`
	At      time.Time `json:"timestamp_utc"`
}

// Event is the stored aggregate. Score and SLA figures are never stored on it,
// they are derived at read time by Evaluate.
type Event struct {
	ID                     string            `json:"id"`
	SiteID                 string            `json:"site_id"`
	Type                   DetectionType     `json:"detection_type"`
	RateKgph               float64           `json:"est_ch4_kgph"`
	Confidence             float64           `json:"confidence"`
	Lat                    float64           `json:"lat"`
	Lon                    float64           `json:"lon"`
	DetectedAt             time.Time         `json:"detected_at_utc"`
	Status                 Status            `json:"status"`
	InvestigationStartedAt *time.Time        `json:"investigation_started_utc"`
	ReportSubmittedAt      *time.Time        `json:"report_submitted_utc"`
	Notes                  map[string]string `json:"notes"`
	Log                    []ActionLogEntry  `json:"-"`
	Runbook                []RunbookItem     `json:"-"`
	CreatedAt              time.Time         `json:"created_at_utc"`
}

// NewEvent builds a fresh NEW event for a detection with an empty action log
// and the runbook template for its detection type.
func NewEvent(d *Detection, now time.Time) *Event {
	return &Event{
		ID:         d.ID,
		SiteID:     d.SiteID,
		Type:       d.Type,
		RateKgph:   d.RateKgph,
		Confidence: d.Confidence,
		Lat:        d.Lat,
		Lon:        d.Lon,
		DetectedAt: d.DetectedAt.UTC(),
		Status:     StatusNew,
		Notes:      maps.Clone(d.Notes),
		Runbook:    NewRunbook(d.Type),
		CreatedAt:  now.UTC(),
	}
}

// Detection returns the raw detection attributes of the event.
func (e *Event) Detection() *Detection {
	return &Detection{
		ID:         e.ID,
		SiteID:     e.SiteID,
		Type:       e.Type,
		RateKgph:   e.RateKgph,
		Confidence: e.Confidence,
		Lat:        e.Lat,
		Lon:        e.Lon,
		DetectedAt: e.DetectedAt,
	}
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	cp := *e
	cp.InvestigationStartedAt = cloneTime(e.InvestigationStartedAt)
	cp.ReportSubmittedAt = cloneTime(e.ReportSubmittedAt)
	cp.Notes = maps.Clone(e.Notes)
	if e.Log != nil {
		cp.Log = make([]ActionLogEntry, len(e.Log))
		copy(cp.Log, e.Log)
	}
	if e.Runbook != nil {
		cp.Runbook = make([]RunbookItem, len(e.Runbook))
		for i, item := range e.Runbook {
			item.CompletedAt = cloneTime(item.CompletedAt)
			cp.Runbook[i] = item
		}
	}
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
