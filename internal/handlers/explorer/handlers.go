// Package explorer serves the transaction listing and file uploads.
package explorer

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	apphttp "spendscope/internal/http"
	"spendscope/internal/logger"
	"spendscope/internal/services/analytics"
	dashsvc "spendscope/internal/services/dashboard"
	"spendscope/internal/services/dataloader"
	"spendscope/internal/services/storage"
	"spendscope/internal/source"
)

const (
	defaultPerPage = 25
	maxPerPage     = 500
)

// Ingester stores an uploaded transaction file for a user
type Ingester interface {
	Ingest(ctx context.Context, session source.Session, filename string, data []byte) (*dataloader.IngestResult, error)
}

// FileLister describes a user's uploaded files
type FileLister interface {
	Files(session source.Session) ([]dataloader.FileInfo, error)
}

var (
	service   *dashsvc.Service
	ingester  Ingester
	files     FileLister
	maxUpload int64 = 10 << 20
)

// Initialize sets up the explorer package with required dependencies. The
// ingester and file lister are optional; without them the upload and file
// routes answer 501.
func Initialize(s *dashsvc.Service, ing Ingester, fl FileLister, maxUploadBytes int64) {
	service = s
	ingester = ing
	files = fl
	if maxUploadBytes > 0 {
		maxUpload = maxUploadBytes
	}
}

// RegisterRoutes registers all explorer routes
func RegisterRoutes(r chi.Router) {
	r.Get("/api/transactions", handleTransactions)
	r.Post("/api/uploads", handleFileUpload)
	r.Get("/api/files", handleFileList)
}

// UploadResponse reports a stored upload and the aggregate of its contents
type UploadResponse struct {
	File   string                 `json:"file"`
	Stats  dataloader.DecodeStats `json:"stats"`
	Result *analytics.Result      `json:"result"`
}

// TransactionsResponse is one page of the listing
type TransactionsResponse struct {
	*source.Page
	CurrentPage int `json:"page"`
	PerPage     int `json:"per_page"`
	TotalPages  int `json:"total_pages"`
}

func handleTransactions(w http.ResponseWriter, r *http.Request) {
	crit, err := apphttp.ParseCriteria(r)
	if err != nil {
		apphttp.ErrorResponse(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	p, err := service.List(r.Context(), apphttp.Session(r), crit, page, perPage)
	if err != nil {
		if errors.Is(err, source.ErrNoSession) {
			apphttp.ErrorResponse(w, r, "Authentication required", http.StatusUnauthorized)
			return
		}
		logger.FromContext(r.Context()).Error().Err(err).Msg("listing failed")
		apphttp.ErrorResponse(w, r, "Transactions could not be loaded", http.StatusServiceUnavailable)
		return
	}

	totalPages := (p.TotalCount + perPage - 1) / perPage
	apphttp.WriteJSON(w, http.StatusOK, TransactionsResponse{
		Page:        p,
		CurrentPage: page,
		PerPage:     perPage,
		TotalPages:  totalPages,
	})
}

func handleFileUpload(w http.ResponseWriter, r *http.Request) {
	if ingester == nil {
		apphttp.ErrorResponse(w, r, "Uploads are not supported by this backend", http.StatusNotImplemented)
		return
	}
	session := apphttp.Session(r)
	if !session.Valid() {
		apphttp.ErrorResponse(w, r, "Authentication required", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		apphttp.ErrorResponse(w, r, "File too large or malformed form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apphttp.ErrorResponse(w, r, "Error reading file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	name := strings.ToLower(header.Filename)
	if !strings.HasSuffix(name, ".csv") && !strings.HasSuffix(name, ".json") {
		apphttp.ErrorResponse(w, r, "Only CSV and JSON files are allowed", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		apphttp.ErrorResponse(w, r, "Error reading file", http.StatusBadRequest)
		return
	}

	res, err := ingester.Ingest(r.Context(), session, header.Filename, data)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrLocked):
			apphttp.ErrorResponse(w, r, "Data directory is locked", http.StatusServiceUnavailable)
		case errors.Is(err, dataloader.ErrEmptyUpload),
			errors.Is(err, dataloader.ErrUnsupportedFormat),
			errors.Is(err, dataloader.ErrMalformed):
			apphttp.ErrorResponse(w, r, err.Error(), http.StatusBadRequest)
		default:
			logger.FromContext(r.Context()).Error().Err(err).Str("file", header.Filename).Msg("upload failed")
			apphttp.ErrorResponse(w, r, "Upload could not be stored", http.StatusInternalServerError)
		}
		return
	}

	logger.FromContext(r.Context()).Info().
		Str("file", res.File).
		Int("rows", res.Stats.Rows).
		Msg("Uploaded file")

	apphttp.WriteJSON(w, http.StatusCreated, UploadResponse{
		File:   res.File,
		Stats:  res.Stats,
		Result: analytics.Aggregate(res.Transactions),
	})
}

func handleFileList(w http.ResponseWriter, r *http.Request) {
	if files == nil {
		apphttp.ErrorResponse(w, r, "File listing is not supported by this backend", http.StatusNotImplemented)
		return
	}

	infos, err := files.Files(apphttp.Session(r))
	if err != nil {
		if errors.Is(err, source.ErrNoSession) {
			apphttp.ErrorResponse(w, r, "Authentication required", http.StatusUnauthorized)
			return
		}
		apphttp.ErrorResponse(w, r, err.Error(), http.StatusInternalServerError)
		return
	}
	apphttp.WriteJSON(w, http.StatusOK, map[string]interface{}{"files": infos})
}
