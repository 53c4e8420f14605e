package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/platinummonkey/chartpay/pkg/payments"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS active_payment_requests (
	user_id    TEXT PRIMARY KEY,
	request_id TEXT NOT NULL,
	payload    TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// SQLiteStore persists the active request in a local database file, for
// clients that must survive restarts without a shared cache.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at path. Use ":memory:"
// for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, userID string) (*payments.PaymentRequest, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM active_payment_requests WHERE user_id = ?`, userID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment request: %w", err)
	}

	var r payments.PaymentRequest
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment request: %w", err)
	}
	return &r, nil
}

func (s *SQLiteStore) Save(ctx context.Context, userID string, r payments.PaymentRequest) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal payment request: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO active_payment_requests (user_id, request_id, payload, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			request_id = excluded.request_id,
			payload = excluded.payload,
			updated_at = CURRENT_TIMESTAMP`,
		userID, r.ID, string(payload))
	if err != nil {
		return fmt.Errorf("failed to save payment request: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM active_payment_requests WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete payment request: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
