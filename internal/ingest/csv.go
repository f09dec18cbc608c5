package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/linnemanlabs/ventwatch/internal/emission"
)

// ParseCSV decodes a detection CSV with a header row.
func ParseCSV(r io.Reader) ([]emission.ImportRow, error) {
	h, recs, err := readCSV(r, detectionColumns)
	if err != nil {
		return nil, err
	}
	return detectionRows(h, recs), nil
}

// ParseAssetsCSV decodes the site inventory. Any malformed row fails the whole file.
func ParseAssetsCSV(r io.Reader) ([]emission.Asset, error) {
	h, recs, err := readCSV(r, assetColumns)
	if err != nil {
		return nil, err
	}
	assets := make([]emission.Asset, 0, len(recs))
	for _, rec := range recs {
		if blank(rec.fields) {
			continue
		}
		a := emission.Asset{
			SiteID:   h.get(rec.fields, "site_id"),
			SiteName: h.get(rec.fields, "site_name"),
			Operator: h.get(rec.fields, "operator"),
		}
		if a.SiteID == "" {
			return nil, fmt.Errorf("line %d: %w", rec.line, &emission.ValidationError{Field: "site_id", Reason: "missing"})
		}
		if a.Lat, err = parseFloat(h.get(rec.fields, "lat")); err != nil {
			return nil, fmt.Errorf("line %d: %w", rec.line, &emission.ValidationError{Field: "lat", Reason: err.Error()})
		}
		if a.Lon, err = parseFloat(h.get(rec.fields, "lon")); err != nil {
			return nil, fmt.Errorf("line %d: %w", rec.line, &emission.ValidationError{Field: "lon", Reason: err.Error()})
		}
		assets = append(assets, a)
	}
	return assets, nil
}

func readCSV(r io.Reader, required []string) (header, []record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	cols, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, &emission.ValidationError{Field: "file", Reason: "empty"}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}
	h, err := newHeader(cols, required)
	if err != nil {
		return nil, nil, err
	}

	var recs []record
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		recs = append(recs, record{line: line, fields: fields})
	}
	return h, recs, nil
}
