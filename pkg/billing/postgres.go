package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/platinummonkey/chartpay/pkg/account"
	"github.com/platinummonkey/chartpay/pkg/apperrors"
	"github.com/platinummonkey/chartpay/pkg/payments"
	"github.com/platinummonkey/chartpay/pkg/quota"
)

// Schema creates the tables PostgresService needs. The partial unique index
// enforces one active request per user.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id                      TEXT PRIMARY KEY,
	email                   TEXT NOT NULL UNIQUE,
	plan                    TEXT NOT NULL,
	subscription_status     TEXT NOT NULL,
	subscription_started_at TIMESTAMPTZ,
	subscription_expires_at TIMESTAMPTZ,
	daily_analyses          BIGINT NOT NULL DEFAULT 0,
	monthly_analyses        BIGINT NOT NULL DEFAULT 0,
	usage_day               TIMESTAMPTZ NOT NULL,
	usage_month             TIMESTAMPTZ NOT NULL,
	created_at              TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS payment_requests (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL REFERENCES users(id),
	plan             TEXT NOT NULL,
	amount           BIGINT NOT NULL,
	currency         TEXT NOT NULL,
	submission_state TEXT NOT NULL,
	review_state     TEXT NOT NULL,
	bank_name        TEXT NOT NULL,
	account_name     TEXT NOT NULL,
	account_number   TEXT NOT NULL,
	reference        TEXT NOT NULL UNIQUE,
	admin_note       TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL,
	expires_at       TIMESTAMPTZ NOT NULL,
	claimed_at       TIMESTAMPTZ,
	reviewed_at      TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS payment_requests_one_active
	ON payment_requests (user_id)
	WHERE submission_state IN ('pending', 'user_claimed_paid')
	  AND review_state IN ('none', 'awaiting_review');
`

const userColumns = `id, email, plan, subscription_status, subscription_started_at, subscription_expires_at,
	daily_analyses, monthly_analyses, usage_day, usage_month, created_at`

const requestColumns = `id, user_id, plan, amount, currency, submission_state, review_state,
	bank_name, account_name, account_number, reference, admin_note,
	created_at, expires_at, claimed_at, reviewed_at`

// uniqueViolation is the PostgreSQL SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// PostgresService implements Service on PostgreSQL.
type PostgresService struct {
	db   *sql.DB
	opts Options
	gate *quota.Gate
}

// NewPostgresService creates a PostgresService. Call Migrate once before use.
func NewPostgresService(db *sql.DB, opts Options) (*PostgresService, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if opts.Catalog == nil {
		return nil, fmt.Errorf("plan catalog is required")
	}
	opts = opts.withDefaults()
	return &PostgresService{
		db:   db,
		opts: opts,
		gate: quota.NewGate(opts.Catalog, opts.Metrics, opts.Logger),
	}, nil
}

// Migrate creates the schema if it does not exist.
func (s *PostgresService) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	var started, expires sql.NullTime
	err := row.Scan(&u.ID, &u.Email, &u.Plan, &u.SubscriptionStatus, &started, &expires,
		&u.DailyAnalyses, &u.MonthlyAnalyses, &u.UsageDay, &u.UsageMonth, &u.CreatedAt)
	if err != nil {
		return User{}, err
	}
	u.SubscriptionStartedAt = timePtr(started)
	u.SubscriptionExpiresAt = timePtr(expires)
	return u, nil
}

func scanRequest(row rowScanner) (payments.PaymentRequest, error) {
	var r payments.PaymentRequest
	var claimed, reviewed sql.NullTime
	err := row.Scan(&r.ID, &r.UserID, &r.Plan, &r.Amount, &r.Currency, &r.SubmissionState, &r.ReviewState,
		&r.BankDetails.BankName, &r.BankDetails.AccountName, &r.BankDetails.AccountNumber,
		&r.Reference, &r.AdminNote, &r.CreatedAt, &r.ExpiresAt, &claimed, &reviewed)
	if err != nil {
		return payments.PaymentRequest{}, err
	}
	r.ClaimedAt = timePtr(claimed)
	r.ReviewedAt = timePtr(reviewed)
	return r, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func (s *PostgresService) EnsureUser(ctx context.Context, email string) (User, error) {
	u, err := newUser(uuid.NewString(), email, s.opts.Catalog, s.opts.Clock.Now())
	if err != nil {
		return User{}, err
	}
	query := `
		INSERT INTO users (id, email, plan, subscription_status, daily_analyses, monthly_analyses, usage_day, usage_month, created_at)
		VALUES ($1, $2, $3, $4, 0, 0, $5, $6, $7)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING ` + userColumns
	row := s.db.QueryRowContext(ctx, query, u.ID, u.Email, u.Plan, u.SubscriptionStatus, u.UsageDay, u.UsageMonth, u.CreatedAt)
	saved, err := scanUser(row)
	if err != nil {
		return User{}, fmt.Errorf("failed to ensure user: %w", err)
	}
	return saved, nil
}

func (s *PostgresService) GetUser(ctx context.Context, userID string) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(s.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, apperrors.NotFound("user %s not found", userID)
	}
	if err != nil {
		return User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return rollover(u, s.opts.Catalog, s.opts.Clock.Now()), nil
}

func (s *PostgresService) Profile(ctx context.Context, userID string) (account.Profile, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return account.Profile{}, err
	}
	return profileOf(u), nil
}

// ConsumeAnalysis locks the user row in a serializable transaction so
// concurrent analyses cannot both pass the last unit of quota.
func (s *PostgresService) ConsumeAnalysis(ctx context.Context, userID string) (quota.Counters, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return quota.Counters{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	u, err := s.lockUser(ctx, tx, userID)
	if err != nil {
		return quota.Counters{}, err
	}
	u = rollover(u, s.opts.Catalog, s.opts.Clock.Now())

	next, err := consume(u, s.gate)
	if err != nil {
		s.opts.Metrics.AnalysisConsumed(u.Plan, string(apperrors.CodeOf(err)))
		return u.Counters(), err
	}
	if err := updateUser(ctx, tx, next); err != nil {
		return quota.Counters{}, err
	}
	if err := tx.Commit(); err != nil {
		return quota.Counters{}, fmt.Errorf("failed to commit analysis: %w", err)
	}
	s.opts.Metrics.AnalysisConsumed(u.Plan, "ok")
	return next.Counters(), nil
}

func (s *PostgresService) CreatePaymentRequest(ctx context.Context, userID, plan string) (payments.PaymentRequest, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return payments.PaymentRequest{}, err
	}
	now := s.opts.Clock.Now()
	r, err := newPaymentRequest(u, plan, s.opts, now)
	if err != nil {
		return payments.PaymentRequest{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return payments.PaymentRequest{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// An overdue pending request must not hold the one-active slot.
	_, err = tx.ExecContext(ctx, `
		UPDATE payment_requests SET submission_state = $1
		WHERE user_id = $2 AND submission_state = $3 AND expires_at <= $4`,
		payments.SubmissionExpired, userID, payments.SubmissionPending, now)
	if err != nil {
		return payments.PaymentRequest{}, fmt.Errorf("failed to expire stale requests: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payment_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		r.ID, r.UserID, r.Plan, r.Amount, r.Currency, r.SubmissionState, r.ReviewState,
		r.BankDetails.BankName, r.BankDetails.AccountName, r.BankDetails.AccountNumber,
		r.Reference, r.AdminNote, r.CreatedAt, r.ExpiresAt, r.ClaimedAt, r.ReviewedAt)
	if isUniqueViolation(err) {
		return payments.PaymentRequest{}, apperrors.Conflict("user %s already has an active payment request", userID)
	}
	if err != nil {
		return payments.PaymentRequest{}, fmt.Errorf("failed to create payment request: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return payments.PaymentRequest{}, fmt.Errorf("failed to commit payment request: %w", err)
	}

	s.opts.Logger.WithFields(map[string]interface{}{
		"user_id":    userID,
		"request_id": r.ID,
		"reference":  r.Reference,
		"plan":       r.Plan,
	}).Info("payment request created")
	return r, nil
}

func (s *PostgresService) ClaimPaymentRequest(ctx context.Context, userID, id string) (payments.PaymentRequest, error) {
	return s.transition(ctx, userID, id, claim)
}

func (s *PostgresService) CancelPaymentRequest(ctx context.Context, userID, id string) (payments.PaymentRequest, error) {
	return s.transition(ctx, userID, id, cancel)
}

func (s *PostgresService) GetPaymentRequest(ctx context.Context, userID, id string) (payments.PaymentRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM payment_requests WHERE id = $1`
	r, err := scanRequest(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) || (err == nil && r.UserID != userID) {
		return payments.PaymentRequest{}, apperrors.NotFound("payment request %s not found", id)
	}
	if err != nil {
		return payments.PaymentRequest{}, fmt.Errorf("failed to get payment request: %w", err)
	}
	return r.WithLazyExpiry(s.opts.Clock.Now()), nil
}

func (s *PostgresService) GetActivePaymentRequest(ctx context.Context, userID string) (*payments.PaymentRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM payment_requests
		WHERE user_id = $1 AND submission_state IN ('pending', 'user_claimed_paid')
		  AND review_state IN ('none', 'awaiting_review')
		ORDER BY created_at DESC LIMIT 1`
	r, err := scanRequest(s.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active payment request: %w", err)
	}
	r = r.WithLazyExpiry(s.opts.Clock.Now())
	if !r.IsActive() {
		return nil, nil
	}
	return &r, nil
}

func (s *PostgresService) ReviewPaymentRequest(ctx context.Context, id string, approve bool, note string) (payments.PaymentRequest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return payments.PaymentRequest{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	r, err := lockRequest(ctx, tx, id)
	if err != nil {
		return payments.PaymentRequest{}, err
	}
	now := s.opts.Clock.Now()
	next, err := review(r, approve, note, now)
	if err != nil {
		return payments.PaymentRequest{}, err
	}
	if err := updateRequest(ctx, tx, next); err != nil {
		return payments.PaymentRequest{}, err
	}
	if approve {
		u, err := s.lockUser(ctx, tx, r.UserID)
		if err != nil {
			return payments.PaymentRequest{}, err
		}
		u = rollover(u, s.opts.Catalog, now)
		if err := updateUser(ctx, tx, upgrade(u, r.Plan, s.opts.SubscriptionPeriod, now)); err != nil {
			return payments.PaymentRequest{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return payments.PaymentRequest{}, fmt.Errorf("failed to commit review: %w", err)
	}

	s.opts.Metrics.Reviewed(decision(approve))
	s.opts.Logger.WithFields(map[string]interface{}{
		"request_id": id,
		"decision":   decision(approve),
	}).Info("payment request reviewed")
	return next, nil
}

func (s *PostgresService) ExpireStale(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payment_requests SET submission_state = $1
		WHERE submission_state = $2 AND expires_at <= $3`,
		payments.SubmissionExpired, payments.SubmissionPending, s.opts.Clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to expire payment requests: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count expired payment requests: %w", err)
	}
	s.opts.Metrics.Swept(n)
	return n, nil
}

func (s *PostgresService) transition(ctx context.Context, userID, id string, fn func(payments.PaymentRequest, time.Time) (payments.PaymentRequest, error)) (payments.PaymentRequest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return payments.PaymentRequest{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	r, err := lockRequest(ctx, tx, id)
	if err == nil && r.UserID != userID {
		err = apperrors.NotFound("payment request %s not found", id)
	}
	if err != nil {
		return payments.PaymentRequest{}, err
	}

	next, terr := fn(r, s.opts.Clock.Now())
	if next.SubmissionState != r.SubmissionState {
		if err := updateRequest(ctx, tx, next); err != nil {
			return payments.PaymentRequest{}, err
		}
		if err := tx.Commit(); err != nil {
			return payments.PaymentRequest{}, fmt.Errorf("failed to commit payment request: %w", err)
		}
	}
	if terr != nil {
		return payments.PaymentRequest{}, terr
	}
	return next, nil
}

func (s *PostgresService) lockUser(ctx context.Context, tx *sql.Tx, userID string) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	u, err := scanUser(tx.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, apperrors.NotFound("user %s not found", userID)
	}
	if err != nil {
		return User{}, fmt.Errorf("failed to lock user: %w", err)
	}
	return u, nil
}

func lockRequest(ctx context.Context, tx *sql.Tx, id string) (payments.PaymentRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM payment_requests WHERE id = $1 FOR UPDATE`
	r, err := scanRequest(tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return payments.PaymentRequest{}, apperrors.NotFound("payment request %s not found", id)
	}
	if err != nil {
		return payments.PaymentRequest{}, fmt.Errorf("failed to lock payment request: %w", err)
	}
	return r, nil
}

func updateRequest(ctx context.Context, tx *sql.Tx, r payments.PaymentRequest) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE payment_requests
		SET submission_state = $1, review_state = $2, admin_note = $3, claimed_at = $4, reviewed_at = $5
		WHERE id = $6`,
		r.SubmissionState, r.ReviewState, r.AdminNote, r.ClaimedAt, r.ReviewedAt, r.ID)
	if err != nil {
		return fmt.Errorf("failed to update payment request: %w", err)
	}
	return nil
}

func updateUser(ctx context.Context, tx *sql.Tx, u User) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE users
		SET plan = $1, subscription_status = $2, subscription_started_at = $3, subscription_expires_at = $4,
		    daily_analyses = $5, monthly_analyses = $6, usage_day = $7, usage_month = $8
		WHERE id = $9`,
		u.Plan, u.SubscriptionStatus, u.SubscriptionStartedAt, u.SubscriptionExpiresAt,
		u.DailyAnalyses, u.MonthlyAnalyses, u.UsageDay, u.UsageMonth, u.ID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

var _ Service = (*PostgresService)(nil)
