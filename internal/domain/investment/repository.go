package investment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

type Repository interface {
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
	GetProject(ctx context.Context, id uuid.UUID) (*Project, error)
	CreateTx(ctx context.Context, tx *sqlx.Tx, inv *Investment) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Investment, error)
}

type InvestmentRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *InvestmentRepository {
	return &InvestmentRepository{db: db}
}

func (r *InvestmentRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx: %v", ErrInternal, err)
	}
	return tx, nil
}

func (r *InvestmentRepository) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var p Project
	err := r.db.GetContext(ctx2, &p, r.db.Rebind(`
		SELECT id, name, partner, status, created_at FROM projects WHERE id = ?
	`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get project: %v", ErrInternal, err)
	}
	return &p, nil
}

// CreateTx inserts inv, filling ID and CreatedAt when unset.
func (r *InvestmentRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, inv *Investment) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}

	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO investments (id, user_id, project_id, type, eur_amount, partner, bonus_percentage, points_earned, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), inv.ID, inv.UserID, inv.ProjectID, string(inv.Type), inv.EURAmount.String(), inv.Partner,
		inv.BonusPercentage, inv.PointsEarned, inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: insert investment: %v", ErrInternal, err)
	}
	return nil
}

// ListByUser returns the user's investments, newest first.
func (r *InvestmentRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Investment, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	items := make([]Investment, 0)
	err := r.db.SelectContext(ctx2, &items, r.db.Rebind(`
		SELECT id, user_id, project_id, type, eur_amount, partner, bonus_percentage, points_earned, created_at
		FROM investments
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`), userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list investments: %v", ErrInternal, err)
	}
	return items, nil
}
