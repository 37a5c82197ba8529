package dashboard

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"spendscope/internal/export"
	apphttp "spendscope/internal/http"
	"spendscope/internal/logger"
	dashsvc "spendscope/internal/services/dashboard"
)

// handleExport renders the dashboard's current result as a download. The
// body is built in memory so a failure can still become an error response.
func handleExport(w http.ResponseWriter, r *http.Request) {
	format := chi.URLParam(r, "format")
	if format != "csv" && format != "pdf" {
		apphttp.ErrorResponse(w, r, "Unknown export format", http.StatusBadRequest)
		return
	}

	view, ok := buildView(w, r)
	if !ok {
		return
	}
	if view.State == dashsvc.StateUnavailable {
		apphttp.ErrorResponse(w, r, view.Message, http.StatusServiceUnavailable)
		return
	}

	var (
		buf         bytes.Buffer
		filename    string
		contentType string
	)
	switch format {
	case "csv":
		kind := r.URL.Query().Get("report")
		if kind == "" {
			kind = export.ReportMonthly
		}
		if err := export.WriteCSV(&buf, view.Result, kind); err != nil {
			if errors.Is(err, export.ErrUnknownReport) {
				apphttp.ErrorResponse(w, r, err.Error(), http.StatusBadRequest)
				return
			}
			logger.FromContext(r.Context()).Error().Err(err).Msg("csv export failed")
			apphttp.ErrorResponse(w, r, "Export failed", http.StatusInternalServerError)
			return
		}
		filename = export.Filename(view.Result, kind, "csv")
		contentType = "text/csv"
	case "pdf":
		if err := export.WritePDF(&buf, view.Result, export.PDFOptions{}); err != nil {
			logger.FromContext(r.Context()).Error().Err(err).Msg("pdf export failed")
			apphttp.ErrorResponse(w, r, "Export failed", http.StatusInternalServerError)
			return
		}
		filename = export.Filename(view.Result, "report", "pdf")
		contentType = "application/pdf"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
