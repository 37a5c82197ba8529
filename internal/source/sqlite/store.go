// Package sqlite is a transaction source backed by a local SQLite database.
// Date range and category queries are pushed down into SQL; categories match on
// a key folded in Go so SQL and the in-memory filter agree.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"

	"spendscope/internal/models"
	"spendscope/internal/services/dataloader"
	"spendscope/internal/source"
)

// Store reads and writes transactions in SQLite
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the database at dbPath and migrates it
func Open(dbPath string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, log: log.With().Str("component", "sqlite").Logger()}
	if err := s.backfillCategoryKeys(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// backfillCategoryKeys fills category_key for rows written before the column
// existed
func (s *Store) backfillCategoryKeys(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, id, category FROM transactions WHERE category_key IS NULL`)
	if err != nil {
		return fmt.Errorf("select rows without category key: %w", err)
	}
	type pending struct{ userID, id, key string }
	var todo []pending
	for rows.Next() {
		var p pending
		var t models.Transaction
		if err := rows.Scan(&p.userID, &p.id, &t.Category); err != nil {
			rows.Close()
			return fmt.Errorf("scan row without category key: %w", err)
		}
		p.key = t.CategoryKey()
		todo = append(todo, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate rows without category key: %w", err)
	}
	if len(todo) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	for _, p := range todo {
		if _, err := tx.ExecContext(ctx,
			`UPDATE transactions SET category_key = ? WHERE user_id = ? AND id = ?`,
			p.key, p.userID, p.id,
		); err != nil {
			return fmt.Errorf("backfill category key: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.log.Info().Int("rows", len(todo)).Msg("backfilled category keys")
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const upsertTransaction = `
INSERT INTO transactions (user_id, id, amount, occurred_at, day, category, category_key, merchant, transaction_type, description)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, id) DO UPDATE SET
    amount = excluded.amount,
    occurred_at = excluded.occurred_at,
    day = excluded.day,
    category = excluded.category,
    category_key = excluded.category_key,
    merchant = excluded.merchant,
    transaction_type = excluded.transaction_type,
    description = excluded.description`

// Insert upserts txns for the session's user in one transaction
func (s *Store) Insert(ctx context.Context, session source.Session, txns []models.Transaction) (int, error) {
	if !session.Valid() {
		return 0, source.ErrNoSession
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertTransaction)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range txns {
		t := &txns[i]
		if _, err := stmt.ExecContext(ctx,
			session.UserID,
			t.ID,
			encodeAmount(t.Amount),
			encodeDate(t.Date),
			encodeDay(t.Date),
			t.Category,
			t.CategoryKey(),
			t.Merchant,
			string(t.TransactionType.Normalized()),
			t.Description,
		); err != nil {
			return 0, fmt.Errorf("insert transaction %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(txns), nil
}

// Ingest decodes an uploaded file and stores its rows
func (s *Store) Ingest(ctx context.Context, session source.Session, filename string, data []byte) (*dataloader.IngestResult, error) {
	if !session.Valid() {
		return nil, source.ErrNoSession
	}

	txns, stats, err := dataloader.Decode(filename, data)
	if err != nil {
		return nil, err
	}
	if len(txns) == 0 {
		return nil, dataloader.ErrEmptyUpload
	}

	if _, err := s.Insert(ctx, session, txns); err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO uploads (user_id, filename, row_count, invalid_date) VALUES (?, ?, ?, ?)`,
		session.UserID, filepath.Base(filename), stats.Rows, stats.InvalidDate,
	); err != nil {
		return nil, fmt.Errorf("record upload: %w", err)
	}

	s.log.Info().
		Str("user_id", session.UserID).
		Str("file", filename).
		Int("transactions", len(txns)).
		Msg("ingested upload")

	return &dataloader.IngestResult{File: filepath.Base(filename), Stats: stats, Transactions: txns}, nil
}

// FetchTransactions implements source.Source
func (s *Store) FetchTransactions(ctx context.Context, session source.Session, q source.Query, page, pageSize int) (*source.Page, error) {
	if !session.Valid() {
		return nil, source.ErrNoSession
	}
	if pageSize <= 0 {
		pageSize = source.DefaultPageSize
	}
	if page < 1 {
		page = 1
	}

	where, args := buildWhere(session, q)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count transactions: %w", err)
	}

	query := `SELECT id, amount, occurred_at, category, merchant, transaction_type, description
FROM transactions` + where + `
ORDER BY day IS NULL, day, id
LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	p := &source.Page{Items: []models.Transaction{}, TotalCount: total}
	for rows.Next() {
		var (
			t        models.Transaction
			amount   sql.NullString
			occurred string
			txType   string
		)
		if err := rows.Scan(&t.ID, &amount, &occurred, &t.Category, &t.Merchant, &txType, &t.Description); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Amount = decodeAmount(amount)
		t.Date = models.ParseDate(occurred)
		t.TransactionType = models.TransactionType(txType)
		p.Items = append(p.Items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return p, nil
}

// buildWhere renders the query filters as a WHERE clause
func buildWhere(session source.Session, q source.Query) (string, []interface{}) {
	clauses := []string{"user_id = ?"}
	args := []interface{}{session.UserID}

	if q.HasDateRange() {
		clauses = append(clauses, "day IS NOT NULL AND day BETWEEN ? AND ?")
		args = append(args, q.Start.String(), q.End.String())
	}

	var cats []string
	for _, c := range q.Categories {
		if c = models.LabelKey(c); c != "" {
			cats = append(cats, c)
		}
	}
	if len(cats) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cats)), ", ")
		clauses = append(clauses, "category_key IN ("+placeholders+")")
		for _, c := range cats {
			args = append(args, c)
		}
	}

	return " WHERE " + strings.Join(clauses, " AND "), args
}

func encodeAmount(a models.Amount) sql.NullString {
	if a.Invalid {
		return sql.NullString{}
	}
	return sql.NullString{String: a.String(), Valid: true}
}

func decodeAmount(s sql.NullString) models.Amount {
	if !s.Valid {
		return models.Amount{Invalid: true}
	}
	return models.ParseAmount(s.String)
}

// encodeDate keeps enough of the date to parse it back: the calendar day for
// midnight UTC, RFC 3339 otherwise, the raw text when it never parsed
func encodeDate(d models.Date) string {
	if !d.Valid() {
		return d.Raw
	}
	if d.Equal(d.Truncate(24*time.Hour)) && d.Location() == time.UTC {
		return d.Format("2006-01-02")
	}
	return d.Format(time.RFC3339Nano)
}

func encodeDay(d models.Date) sql.NullString {
	day, ok := d.CalendarDay()
	if !ok {
		return sql.NullString{}
	}
	return sql.NullString{String: day.String(), Valid: true}
}
