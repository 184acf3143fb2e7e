package points

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/goodimpact/backoffice-api/internal/pkg/database"
)

const (
	queryTimeout = 3 * time.Second

	// creditAttempts bounds retries of a standalone credit that lost a seq race.
	creditAttempts = 3
)

type Repository interface {
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
	CreditDelta(ctx context.Context, userID uuid.UUID, delta int64, meta Meta) (*CreditResult, error)
	CreditDeltaTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, delta int64, meta Meta) (*CreditResult, error)
	AppendEntry(ctx context.Context, tx *sqlx.Tx, entry *Entry) error
	CurrentBalance(ctx context.Context, userID uuid.UUID) (int64, error)
	FindByReference(ctx context.Context, refType, refID string, entryType EntryType) (*Entry, error)
	ListEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Entry, error)
	CountEntries(ctx context.Context, userID uuid.UUID) (int, error)
	ReplayEntries(ctx context.Context, userID uuid.UUID) ([]Entry, error)
}

// LedgerRepository keeps users.points_balance and points_ledger in step.
type LedgerRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

const entryColumns = `id, user_id, seq, type, amount, balance_after, reference_type, reference_id, description, created_at`

func (r *LedgerRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx: %v", ErrInternal, err)
	}
	return tx, nil
}

// CreditDelta applies delta in its own transaction.
// A lost race on the balance row is retried; a lost race on the idempotency key resolves to the winner's entry.
func (r *LedgerRepository) CreditDelta(ctx context.Context, userID uuid.UUID, delta int64, meta Meta) (*CreditResult, error) {
	var lastErr error
	for attempt := 0; attempt < creditAttempts; attempt++ {
		res, err := r.creditOnce(ctx, userID, delta, meta)
		switch {
		case err == nil:
			return res, nil
		case errors.Is(err, ErrConcurrentUpdate):
			lastErr = err
			continue
		case errors.Is(err, ErrDuplicateEntry) && meta.hasReference():
			existing, findErr := r.FindByReference(ctx, meta.ReferenceType, meta.ReferenceID, meta.Type)
			if findErr != nil || existing == nil {
				return nil, err
			}
			return r.duplicateResult(ctx, r.db, existing, userID, delta)
		default:
			return nil, err
		}
	}
	return nil, lastErr
}

func (r *LedgerRepository) creditOnce(ctx context.Context, userID uuid.UUID, delta int64, meta Meta) (*CreditResult, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.BeginTx(ctx2)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := r.CreditDeltaTx(ctx2, tx, userID, delta, meta)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit tx: %v", ErrInternal, err)
	}
	return res, nil
}

// CreditDeltaTx applies delta inside the caller's transaction. It does NOT commit or rollback.
// The balance write is conditional on the points_seq that was read, so two writers cannot both succeed.
func (r *LedgerRepository) CreditDeltaTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, delta int64, meta Meta) (*CreditResult, error) {
	if delta == 0 {
		return nil, ErrInvalidAmount
	}
	if !meta.Type.Valid() {
		return nil, ErrInvalidEntryType
	}

	if meta.hasReference() {
		existing, err := findByReference(ctx, tx, meta.ReferenceType, meta.ReferenceID, meta.Type)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return r.duplicateResult(ctx, tx, existing, userID, delta)
		}
	}

	var current struct {
		Balance int64 `db:"points_balance"`
		Seq     int64 `db:"points_seq"`
	}
	err := tx.GetContext(ctx, &current, tx.Rebind(`SELECT points_balance, points_seq FROM users WHERE id = ?`), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: read balance: %v", ErrInternal, err)
	}

	newBalance := current.Balance + delta
	if newBalance < 0 {
		return nil, ErrInsufficientPoints
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	result, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE users
		SET points_balance = ?, points_seq = ?, updated_at = ?
		WHERE id = ? AND points_seq = ?
	`), newBalance, current.Seq+1, now, userID, current.Seq)
	if err != nil {
		return nil, fmt.Errorf("%w: update balance: %v", ErrInternal, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%w: rows affected: %v", ErrInternal, err)
	}
	if rows == 0 {
		return nil, ErrConcurrentUpdate
	}

	entry := &Entry{
		ID:           uuid.New(),
		UserID:       userID,
		Seq:          current.Seq + 1,
		Type:         meta.Type,
		Amount:       delta,
		BalanceAfter: newBalance,
		Description:  meta.Description,
		CreatedAt:    now,
	}
	if meta.hasReference() {
		refType, refID := meta.ReferenceType, meta.ReferenceID
		entry.ReferenceType = &refType
		entry.ReferenceID = &refID
	}

	if err := r.AppendEntry(ctx, tx, entry); err != nil {
		return nil, err
	}

	return &CreditResult{NewBalance: newBalance, EntryID: entry.ID}, nil
}

func (r *LedgerRepository) duplicateResult(ctx context.Context, q sqlx.QueryerContext, existing *Entry, userID uuid.UUID, delta int64) (*CreditResult, error) {
	if existing.UserID != userID || existing.Amount != delta {
		return nil, ErrReferenceConflict
	}
	var balance int64
	if err := sqlx.GetContext(ctx, q, &balance, sqlx.Rebind(bindTypeOf(q), `SELECT points_balance FROM users WHERE id = ?`), userID); err != nil {
		return nil, fmt.Errorf("%w: read balance: %v", ErrInternal, err)
	}
	return &CreditResult{NewBalance: balance, EntryID: existing.ID, Duplicate: true}, nil
}

// AppendEntry inserts a ledger row after checking it continues the user's previous balance_after.
// The first entry of a user is accepted as the opening point of the chain. ID and CreatedAt are filled when unset.
func (r *LedgerRepository) AppendEntry(ctx context.Context, tx *sqlx.Tx, entry *Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}

	var prev int64
	err := tx.GetContext(ctx, &prev, tx.Rebind(`
		SELECT balance_after FROM points_ledger
		WHERE user_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`), entry.UserID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("%w: read previous entry: %v", ErrInternal, err)
	case prev+entry.Amount != entry.BalanceAfter:
		return fmt.Errorf("%w: previous %d + amount %d != %d", ErrRunningSumMismatch, prev, entry.Amount, entry.BalanceAfter)
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO points_ledger (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), entry.ID, entry.UserID, entry.Seq, string(entry.Type), entry.Amount, entry.BalanceAfter,
		entry.ReferenceType, entry.ReferenceID, entry.Description, entry.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateEntry
		}
		return fmt.Errorf("%w: insert ledger entry: %v", ErrInternal, err)
	}
	return nil
}

func (r *LedgerRepository) CurrentBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var balance int64
	err := r.db.GetContext(ctx2, &balance, r.db.Rebind(`SELECT points_balance FROM users WHERE id = ?`), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("%w: get balance: %v", ErrInternal, err)
	}
	return balance, nil
}

func (r *LedgerRepository) FindByReference(ctx context.Context, refType, refID string, entryType EntryType) (*Entry, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return findByReference(ctx2, r.db, refType, refID, entryType)
}

func findByReference(ctx context.Context, q sqlx.QueryerContext, refType, refID string, entryType EntryType) (*Entry, error) {
	var entry Entry
	query := sqlx.Rebind(bindTypeOf(q), `
		SELECT `+entryColumns+` FROM points_ledger
		WHERE reference_type = ? AND reference_id = ? AND type = ?
	`)
	err := sqlx.GetContext(ctx, q, &entry, query, refType, refID, string(entryType))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: find by reference: %v", ErrInternal, err)
	}
	return &entry, nil
}

func (r *LedgerRepository) ListEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Entry, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	entries := make([]Entry, 0)
	err := r.db.SelectContext(ctx2, &entries, r.db.Rebind(`
		SELECT `+entryColumns+` FROM points_ledger
		WHERE user_id = ?
		ORDER BY seq DESC
		LIMIT ? OFFSET ?
	`), userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list entries: %v", ErrInternal, err)
	}
	return entries, nil
}

func (r *LedgerRepository) CountEntries(ctx context.Context, userID uuid.UUID) (int, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var n int
	if err := r.db.GetContext(ctx2, &n, r.db.Rebind(`SELECT COUNT(*) FROM points_ledger WHERE user_id = ?`), userID); err != nil {
		return 0, fmt.Errorf("%w: count entries: %v", ErrInternal, err)
	}
	return n, nil
}

// ReplayEntries returns the full ledger of a user in append order.
func (r *LedgerRepository) ReplayEntries(ctx context.Context, userID uuid.UUID) ([]Entry, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	entries := make([]Entry, 0)
	err := r.db.SelectContext(ctx2, &entries, r.db.Rebind(`
		SELECT `+entryColumns+` FROM points_ledger
		WHERE user_id = ?
		ORDER BY seq ASC
	`), userID)
	if err != nil {
		return nil, fmt.Errorf("%w: replay entries: %v", ErrInternal, err)
	}
	return entries, nil
}

func bindTypeOf(q sqlx.QueryerContext) int {
	switch v := q.(type) {
	case *sqlx.DB:
		return sqlx.BindType(v.DriverName())
	case *sqlx.Tx:
		return sqlx.BindType(v.DriverName())
	}
	return sqlx.QUESTION
}
