package emission

import (
	"fmt"
	"math"
	"time"
)

const (
	// SeverityCapKgph is the rate at which base severity saturates.
	SeverityCapKgph = 1000.0

	// MaxRecencyBoost is the boost for a detection observed right now.
	MaxRecencyBoost = 0.15

	// RecencyHorizon is the detection age past which the boost is zero.
	RecencyHorizon = 72 * time.Hour

	severityWeight   = 0.7
	confidenceWeight = 0.2

	// HighThreshold and MedThreshold are inclusive lower bounds of their buckets.
	HighThreshold = 0.7
	MedThreshold  = 0.4
)

// component keys of TriageBreakdown.Components
const (
	ComponentSeverity   = "severity_component"
	ComponentConfidence = "confidence_component"
	ComponentRecency    = "recency_component"
)

// DetectionWeight returns the trust weight of a detection method.
func DetectionWeight(t DetectionType) (float64, error) {
	switch t {
	case DetectionSatellite:
		return 1.0, nil
	case DetectionOGI:
		return 0.8, nil
	case DetectionContinuous:
		return 0.6, nil
	default:
		return 0, &ValidationError{Field: "detection_type", Reason: fmt.Sprintf("unknown detection method %q", t)}
	}
}

// BucketFor maps a score onto its bucket. Thresholds are inclusive lower bounds.
func BucketFor(score float64) Bucket {
	switch {
	case score >= HighThreshold:
		return BucketHigh
	case score >= MedThreshold:
		return BucketMed
	default:
		return BucketLow
	}
}

// RecencyBoost decays linearly from MaxRecencyBoost at age zero to zero at RecencyHorizon.
// A detection stamped after now counts as age zero.
func RecencyBoost(detectedAt, now time.Time) float64 {
	age := now.Sub(detectedAt)
	if age < 0 {
		age = 0
	}
	if age >= RecencyHorizon {
		return 0
	}
	return MaxRecencyBoost * (1 - float64(age)/float64(RecencyHorizon))
}

// Scorer computes triage breakdowns. The zero value is ready to use.
type Scorer struct{}

// Validate checks a detection without scoring it.
func (Scorer) Validate(d *Detection) error {
	if d == nil {
		return &ValidationError{Field: "detection", Reason: "missing"}
	}
	if math.IsNaN(d.RateKgph) || math.IsInf(d.RateKgph, 0) || d.RateKgph < 0 {
		return &ValidationError{Field: "est_ch4_kgph", Reason: fmt.Sprintf("%v is not a non-negative rate", d.RateKgph)}
	}
	if math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1 {
		return &ValidationError{Field: "confidence", Reason: fmt.Sprintf("%v is outside [0,1]", d.Confidence)}
	}
	if d.DetectedAt.IsZero() {
		return &ValidationError{Field: "detected_at_utc", Reason: "missing"}
	}
	if _, err := DetectionWeight(d.Type); err != nil {
		return err
	}
	return nil
}

// Score computes the triage breakdown of a detection as of now.
func (s Scorer) Score(d *Detection, now time.Time) (TriageBreakdown, error) {
	if err := s.Validate(d); err != nil {
		return TriageBreakdown{}, err
	}
	weight, _ := DetectionWeight(d.Type)

	base := math.Min(d.RateKgph/SeverityCapKgph, 1)
	recency := RecencyBoost(d.DetectedAt, now)

	severityComponent := base * weight * severityWeight
	confidenceComponent := d.Confidence * confidenceWeight
	score := math.Max(0, math.Min(1, severityComponent+confidenceComponent+recency))

	return TriageBreakdown{
		BaseSeverity:    base,
		DetectionWeight: weight,
		Confidence:      d.Confidence,
		RecencyBoost:    recency,
		Score:           score,
		Components: map[string]float64{
			ComponentSeverity:   severityComponent,
			ComponentConfidence: confidenceComponent,
			ComponentRecency:    recency,
		},
		ComputedAt: now.UTC(),
	}, nil
}
