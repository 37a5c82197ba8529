// Package backup serves the health check and per-user backup and restore of
// uploaded files.
package backup

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apphttp "spendscope/internal/http"
	"spendscope/internal/logger"
	"spendscope/internal/services/dataloader"
	"spendscope/internal/services/storage"
	"spendscope/internal/source"
	"spendscope/internal/version"
)

const maxRestoreBytes = 50 << 20

// Archiver returns the plaintext of a user's uploaded files
type Archiver interface {
	Archive(session source.Session) ([]dataloader.StoredFile, error)
}

// Ingester stores one uploaded file for a user
type Ingester interface {
	Ingest(ctx context.Context, session source.Session, filename string, data []byte) (*dataloader.IngestResult, error)
}

var (
	backend  string
	archiver Archiver
	ingester Ingester
)

// Initialize sets up the backup package with required dependencies. Backends
// that keep no files pass nil for both and the backup routes answer 501.
func Initialize(backendName string, a Archiver, ing Ingester) {
	backend = backendName
	archiver = a
	ingester = ing
}

// RegisterRoutes registers the health and backup routes
func RegisterRoutes(r chi.Router) {
	r.Get("/api/health", HandleHealth)
	r.Get("/api/backup", HandleBackup)
	r.Post("/api/backup/restore", HandleRestore)
}

// HandleHealth reports liveness and the running build
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	apphttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"backend": backend,
		"version": version.Get(),
	})
}

// HandleBackup streams the caller's uploaded files as a zip. Encrypted files
// are written in plaintext so the archive is portable.
func HandleBackup(w http.ResponseWriter, r *http.Request) {
	if archiver == nil {
		apphttp.ErrorResponse(w, r, "Backups are not supported by this backend", http.StatusNotImplemented)
		return
	}

	files, err := archiver.Archive(apphttp.Session(r))
	if err != nil {
		switch {
		case errors.Is(err, source.ErrNoSession):
			apphttp.ErrorResponse(w, r, "Authentication required", http.StatusUnauthorized)
		case errors.Is(err, storage.ErrLocked):
			apphttp.ErrorResponse(w, r, "Data directory is locked", http.StatusServiceUnavailable)
		default:
			apphttp.ErrorResponse(w, r, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	filename := fmt.Sprintf("spendscope_backup_%s.zip", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	zw := zip.NewWriter(w)
	for _, f := range files {
		fw, err := zw.Create(f.Name)
		if err == nil {
			_, err = fw.Write(f.Data)
		}
		if err != nil {
			// headers are gone; all that is left is to log
			logger.FromContext(r.Context()).Error().Err(err).Str("file", f.Name).Msg("backup write failed")
			return
		}
	}
	if err := zw.Close(); err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("backup close failed")
	}
}

// HandleRestore ingests every CSV and JSON entry of an uploaded backup zip
func HandleRestore(w http.ResponseWriter, r *http.Request) {
	if ingester == nil {
		apphttp.ErrorResponse(w, r, "Restore is not supported by this backend", http.StatusNotImplemented)
		return
	}
	session := apphttp.Session(r)
	if !session.Valid() {
		apphttp.ErrorResponse(w, r, "Authentication required", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRestoreBytes)
	if err := r.ParseMultipartForm(maxRestoreBytes); err != nil {
		apphttp.ErrorResponse(w, r, "File too large", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		apphttp.ErrorResponse(w, r, "Error reading file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".zip") {
		apphttp.ErrorResponse(w, r, "Only ZIP backup files are allowed", http.StatusBadRequest)
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		apphttp.ErrorResponse(w, r, "Error reading file", http.StatusBadRequest)
		return
	}
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		apphttp.ErrorResponse(w, r, "Invalid ZIP file", http.StatusBadRequest)
		return
	}

	log := logger.FromContext(r.Context())
	var restored []string
	var skipped []string
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		name := path.Base(zf.Name)
		lower := strings.ToLower(name)
		if !strings.HasSuffix(lower, ".csv") && !strings.HasSuffix(lower, ".json") {
			continue
		}

		data, err := readEntry(zf)
		if err != nil {
			log.Warn().Err(err).Str("entry", zf.Name).Msg("unreadable backup entry")
			skipped = append(skipped, name)
			continue
		}
		if _, err := ingester.Ingest(r.Context(), session, name, data); err != nil {
			if errors.Is(err, storage.ErrLocked) {
				apphttp.ErrorResponse(w, r, "Data directory is locked", http.StatusServiceUnavailable)
				return
			}
			log.Warn().Err(err).Str("entry", zf.Name).Msg("backup entry rejected")
			skipped = append(skipped, name)
			continue
		}
		restored = append(restored, name)
	}

	if len(restored) == 0 {
		apphttp.ErrorResponse(w, r, "No transaction files found in backup", http.StatusBadRequest)
		return
	}

	log.Info().Int("restored", len(restored)).Int("skipped", len(skipped)).Msg("restore complete")
	apphttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"restored": restored,
		"skipped":  skipped,
	})
}

func readEntry(zf *zip.File) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, maxRestoreBytes))
}
