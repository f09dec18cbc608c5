// Package ingest decodes tabular detection batches (CSV or XLSX) into import rows.
//
// Header-level problems (unreadable file, missing required columns) fail the whole
// batch. Everything else is attached to its row so the rest of the batch proceeds.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/linnemanlabs/ventwatch/internal/emission"
)

// ErrUnsupportedFormat is returned by Parse for file names other than .csv or .xlsx.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// required detection columns; id, notes and status are optional and status is ignored
var detectionColumns = []string{
	"site_id",
	"detected_at_utc",
	"detection_type",
	"est_ch4_kgph",
	"confidence",
	"lat",
	"lon",
}

var assetColumns = []string{"site_id", "site_name", "operator", "lat", "lon"}

// accepted timestamp layouts; zone-less values are read as UTC
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Parse picks the decoder from the file extension.
func Parse(filename string, r io.Reader) ([]emission.ImportRow, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return ParseCSV(r)
	case ".xlsx":
		return ParseXLSX(r)
	default:
		return nil, fmt.Errorf("%q: %w", filename, ErrUnsupportedFormat)
	}
}

// record is one raw data row with the line it came from.
type record struct {
	line   int
	fields []string
}

// header maps normalized column names to their index.
type header map[string]int

func newHeader(cols []string, required []string) (header, error) {
	h := make(header, len(cols))
	for i, c := range cols {
		c = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(c, "\ufeff")))
		if _, dup := h[c]; !dup && c != "" {
			h[c] = i
		}
	}
	var missing []string
	for _, c := range required {
		if _, ok := h[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, &emission.ValidationError{
			Field:  "columns",
			Reason: "missing required columns: " + strings.Join(missing, ", "),
		}
	}
	return h, nil
}

func (h header) get(fields []string, col string) string {
	i, ok := h[col]
	if !ok || i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// detectionRows decodes every non-blank record against h.
func detectionRows(h header, recs []record) []emission.ImportRow {
	rows := make([]emission.ImportRow, 0, len(recs))
	for _, rec := range recs {
		if blank(rec.fields) {
			continue
		}
		d, err := decodeDetection(h, rec.fields)
		rows = append(rows, emission.ImportRow{Line: rec.line, Detection: d, Err: err})
	}
	return rows
}

// decodeDetection reports the first malformed field. The detection type is passed
// through unchecked so the scorer rejects unknown methods with its own error.
func decodeDetection(h header, fields []string) (*emission.Detection, error) {
	d := &emission.Detection{
		ID:     h.get(fields, "id"),
		SiteID: h.get(fields, "site_id"),
		Type:   emission.DetectionType(h.get(fields, "detection_type")),
	}
	if d.SiteID == "" {
		return d, &emission.ValidationError{Field: "site_id", Reason: "missing"}
	}

	var err error
	if d.DetectedAt, err = parseTime(h.get(fields, "detected_at_utc")); err != nil {
		return d, &emission.ValidationError{Field: "detected_at_utc", Reason: err.Error()}
	}
	for _, f := range []struct {
		col string
		dst *float64
	}{
		{"est_ch4_kgph", &d.RateKgph},
		{"confidence", &d.Confidence},
		{"lat", &d.Lat},
		{"lon", &d.Lon},
	} {
		if *f.dst, err = parseFloat(h.get(fields, f.col)); err != nil {
			return d, &emission.ValidationError{Field: f.col, Reason: err.Error()}
		}
	}
	d.Notes = parseNotes(h.get(fields, "notes"))
	return d, nil
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, errors.New("missing")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return v, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("missing")
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a recognized timestamp", s)
}

// parseNotes accepts a flat JSON object; anything else is kept verbatim under "text".
func parseNotes(s string) map[string]string {
	if s == "" {
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return map[string]string{"text": s}
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch v := v.(type) {
		case string:
			out[k] = v
		case nil:
		default:
			b, _ := json.Marshal(v)
			out[k] = string(b)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
