package eventapi

import (
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/ventwatch/internal/ingest"
)

func (a *API) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxImportBytes)
	if err := r.ParseMultipartForm(MaxImportBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorMessage(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeErrorMessage(w, http.StatusBadRequest, "expected multipart form with a file field")
		return
	}

	file, fh, err := r.FormFile("file")
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer func() { _ = file.Close() }()

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("ventwatch.import.filename", fh.Filename),
		attribute.Int64("ventwatch.import.size", fh.Size),
	)

	rows, err := ingest.Parse(fh.Filename, file)
	if err != nil {
		a.logger.Warn(r.Context(), "unreadable import file", "filename", fh.Filename, "error", err)
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.svc.Import(r.Context(), rows)
	if err != nil {
		a.writeError(w, r, err, "import failed", "filename", fh.Filename)
		return
	}

	span.SetAttributes(
		attribute.Int("ventwatch.import.imported", res.Imported),
		attribute.Int("ventwatch.import.skipped", res.Skipped),
		attribute.Int("ventwatch.import.failed", res.Failed),
	)

	writeJSON(w, http.StatusOK, res)
}
