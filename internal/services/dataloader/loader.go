// Package dataloader reads uploaded transaction files (bank CSV exports and
// JSON dumps) out of per-user directories in a storage.Store and serves them
// as a paged transaction source.
package dataloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"spendscope/internal/models"
	"spendscope/internal/services/storage"
	"spendscope/internal/source"
)

// ErrEmptyUpload is returned when an upload decodes to no transactions
var ErrEmptyUpload = errors.New("upload contains no transactions")

var safeUserID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// DataLoader serves transactions from files in a storage.Store
type DataLoader struct {
	store *storage.Store
	log   zerolog.Logger
}

// FileInfo describes one uploaded file
type FileInfo struct {
	Name         string `json:"name"`
	Size         int    `json:"size"`
	Transactions int    `json:"transactions"`
	MinDate      string `json:"min_date,omitempty"`
	MaxDate      string `json:"max_date,omitempty"`
	Error        string `json:"error,omitempty"`
}

// IngestResult reports what an upload contained
type IngestResult struct {
	File         string               `json:"file"`
	Stats        DecodeStats          `json:"stats"`
	Transactions []models.Transaction `json:"-"`
}

// New creates a DataLoader over store
func New(store *storage.Store, log zerolog.Logger) *DataLoader {
	return &DataLoader{
		store: store,
		log:   log.With().Str("component", "dataloader").Logger(),
	}
}

// userDir returns the store directory holding a user's files. Ids that are
// not safe path segments are hashed.
func userDir(userID string) string {
	if safeUserID.MatchString(userID) {
		return userID
	}
	sum := sha256.Sum256([]byte(userID))
	return "u-" + hex.EncodeToString(sum[:8])
}

// Load decodes every file of the session's user, dropping transactions that
// appear in more than one file
func (dl *DataLoader) Load(ctx context.Context, session source.Session) ([]models.Transaction, error) {
	if !session.Valid() {
		return nil, source.ErrNoSession
	}

	files, err := dl.store.List(userDir(session.UserID), ".csv", ".json")
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	if len(files) == 0 {
		dl.log.Debug().Str("user_id", session.UserID).Msg("no uploaded files")
		return []models.Transaction{}, nil
	}

	var all []models.Transaction
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		txns, stats, err := dl.decodeFile(name)
		if err != nil {
			if errors.Is(err, storage.ErrLocked) {
				return nil, err
			}
			dl.log.Warn().Err(err).Str("file", name).Msg("failed to load file")
			continue
		}
		if stats.SkippedRows > 0 || stats.InvalidDate > 0 {
			dl.log.Warn().
				Str("file", name).
				Int("skipped_rows", stats.SkippedRows).
				Int("invalid_date", stats.InvalidDate).
				Msg("file has unreadable rows")
		}
		dl.log.Debug().Str("file", name).Int("transactions", len(txns)).Msg("loaded file")
		all = append(all, txns...)
	}

	all = dl.deduplicateTransactions(all)
	sortByDate(all)
	return all, nil
}

// FetchTransactions implements source.Source over the uploaded files
func (dl *DataLoader) FetchTransactions(ctx context.Context, session source.Session, q source.Query, page, pageSize int) (*source.Page, error) {
	txns, err := dl.Load(ctx, session)
	if err != nil {
		return nil, err
	}

	matched := txns[:0:0]
	for i := range txns {
		if source.MatchQuery(&txns[i], q) {
			matched = append(matched, txns[i])
		}
	}
	return source.Paginate(matched, page, pageSize), nil
}

// Ingest validates and stores an uploaded file for the session's user. The
// file is decoded before it is written so a broken upload never lands in
// the store.
func (dl *DataLoader) Ingest(ctx context.Context, session source.Session, filename string, data []byte) (*IngestResult, error) {
	if !session.Valid() {
		return nil, source.ErrNoSession
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base := sanitizeFilename(filename)
	txns, stats, err := Decode(base, data)
	if err != nil {
		return nil, err
	}
	if len(txns) == 0 {
		return nil, ErrEmptyUpload
	}

	name := path.Join(userDir(session.UserID), time.Now().UTC().Format("20060102T150405")+"_"+base)
	if err := dl.store.Write(name, data); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	dl.log.Info().
		Str("user_id", session.UserID).
		Str("file", name).
		Int("transactions", len(txns)).
		Msg("stored upload")

	return &IngestResult{File: path.Base(name), Stats: stats, Transactions: txns}, nil
}

// Files describes the uploaded files of the session's user
func (dl *DataLoader) Files(session source.Session) ([]FileInfo, error) {
	if !session.Valid() {
		return nil, source.ErrNoSession
	}
	names, err := dl.store.List(userDir(session.UserID), ".csv", ".json")
	if err != nil {
		return nil, err
	}

	infos := make([]FileInfo, 0, len(names))
	for _, name := range names {
		info := FileInfo{Name: path.Base(name)}
		data, err := dl.store.Read(name)
		if err != nil {
			info.Error = err.Error()
			infos = append(infos, info)
			continue
		}
		info.Size = len(data)

		txns, _, err := Decode(name, data)
		if err != nil {
			info.Error = err.Error()
		}
		info.Transactions = len(txns)
		if first, last, ok := dateBounds(txns); ok {
			info.MinDate, info.MaxDate = first.String(), last.String()
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// StoredFile is the plaintext of one uploaded file
type StoredFile struct {
	Name string
	Data []byte
}

// Archive returns the plaintext of every file of the session's user, for
// backups. An encrypted store must be unlocked.
func (dl *DataLoader) Archive(session source.Session) ([]StoredFile, error) {
	if !session.Valid() {
		return nil, source.ErrNoSession
	}
	names, err := dl.store.List(userDir(session.UserID), ".csv", ".json")
	if err != nil {
		return nil, err
	}

	out := make([]StoredFile, 0, len(names))
	for _, name := range names {
		data, err := dl.store.Read(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path.Base(name), err)
		}
		out = append(out, StoredFile{Name: path.Base(name), Data: data})
	}
	return out, nil
}

func (dl *DataLoader) decodeFile(name string) ([]models.Transaction, DecodeStats, error) {
	data, err := dl.store.Read(name)
	if err != nil {
		return nil, DecodeStats{}, err
	}
	return Decode(name, data)
}

// deduplicateTransactions keeps the first transaction per id
func (dl *DataLoader) deduplicateTransactions(transactions []models.Transaction) []models.Transaction {
	seen := make(map[string]bool, len(transactions))
	unique := make([]models.Transaction, 0, len(transactions))

	for _, t := range transactions {
		if !seen[t.ID] {
			seen[t.ID] = true
			unique = append(unique, t)
		}
	}

	if removed := len(transactions) - len(unique); removed > 0 {
		dl.log.Debug().Int("removed", removed).Msg("removed duplicate transactions")
	}
	return unique
}

// sortByDate orders transactions by date (invalid dates last), keeping the
// file order for ties
func sortByDate(txns []models.Transaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		a, aok := txns[i].Date.CalendarDay()
		b, bok := txns[j].Date.CalendarDay()
		if aok != bok {
			return aok
		}
		return aok && a.Before(b)
	})
}

func dateBounds(txns []models.Transaction) (first, last models.Day, ok bool) {
	for _, t := range txns {
		day, valid := t.Date.CalendarDay()
		if !valid {
			continue
		}
		if !ok || day.Before(first) {
			first = day
		}
		if !ok || day.After(last) {
			last = day
		}
		ok = true
	}
	return first, last, ok
}

func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		out = "upload"
	}
	return out
}
