package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

const orderColumns = `id, shop_id, user_id, status, mode, total_points, requested_ready_at, sent_at, eta,
	admin_notes, tracking_number, shipping_carrier, version, created_at, updated_at`

type Repository interface {
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByIDTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*Order, error)
	ListItems(ctx context.Context, orderID uuid.UUID) ([]Item, error)
	ListActive(ctx context.Context, shopID uuid.UUID) ([]Order, error)
	UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, expectedVersion int64, patch StatusPatch) (*Order, error)
	IsShopOperator(ctx context.Context, shopID, userID uuid.UUID) (bool, error)
}

// StatusPatch is the set of columns a transition writes. Nil fields are left unchanged.
type StatusPatch struct {
	Status          Status
	AdminNotes      *string
	TrackingNumber  *string
	ShippingCarrier *string
	ETA             *time.Time
}

type OrderRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx: %v", ErrInternal, err)
	}
	return tx, nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return getByID(ctx2, r.db, r.db.Rebind, id)
}

func (r *OrderRepository) GetByIDTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*Order, error) {
	return getByID(ctx, tx, tx.Rebind, id)
}

func getByID(ctx context.Context, q sqlx.QueryerContext, rebind func(string) string, id uuid.UUID) (*Order, error) {
	var o Order
	err := sqlx.GetContext(ctx, q, &o, rebind(`SELECT `+orderColumns+` FROM orders WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("%w: get order: %v", ErrInternal, err)
	}
	return &o, nil
}

func (r *OrderRepository) ListItems(ctx context.Context, orderID uuid.UUID) ([]Item, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	items := make([]Item, 0)
	err := r.db.SelectContext(ctx2, &items, r.db.Rebind(`
		SELECT id, order_id, product_name, quantity, unit_points
		FROM order_items
		WHERE order_id = ?
		ORDER BY product_name
	`), orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: list items: %v", ErrInternal, err)
	}
	return items, nil
}

// ListActive returns the shop's non-terminal orders, newest first.
func (r *OrderRepository) ListActive(ctx context.Context, shopID uuid.UUID) ([]Order, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	placeholders := make([]string, len(ActiveStatuses))
	args := []interface{}{shopID}
	for i, s := range ActiveStatuses {
		placeholders[i] = "?"
		args = append(args, string(s))
	}

	orders := make([]Order, 0)
	err := r.db.SelectContext(ctx2, &orders, r.db.Rebind(`
		SELECT `+orderColumns+` FROM orders
		WHERE shop_id = ? AND status IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY created_at DESC
	`), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list active orders: %v", ErrInternal, err)
	}
	return orders, nil
}

// UpdateStatusTx writes patch only if the row is still at expectedVersion, and bumps the version.
func (r *OrderRepository) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, expectedVersion int64, patch StatusPatch) (*Order, error) {
	var eta *time.Time
	if patch.ETA != nil {
		t := patch.ETA.UTC().Truncate(time.Microsecond)
		eta = &t
	}

	result, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE orders
		SET status = ?,
		    admin_notes = COALESCE(?, admin_notes),
		    tracking_number = COALESCE(?, tracking_number),
		    shipping_carrier = COALESCE(?, shipping_carrier),
		    eta = COALESCE(?, eta),
		    version = version + 1,
		    updated_at = ?
		WHERE id = ? AND version = ?
	`), string(patch.Status), patch.AdminNotes, patch.TrackingNumber, patch.ShippingCarrier, eta,
		time.Now().UTC().Truncate(time.Microsecond), id, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: update status: %v", ErrInternal, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%w: rows affected: %v", ErrInternal, err)
	}
	if rows == 0 {
		return nil, ErrVersionConflict
	}

	return r.GetByIDTx(ctx, tx, id)
}

func (r *OrderRepository) IsShopOperator(ctx context.Context, shopID, userID uuid.UUID) (bool, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var n int
	err := r.db.GetContext(ctx2, &n, r.db.Rebind(`
		SELECT COUNT(*) FROM shop_operators WHERE shop_id = ? AND user_id = ?
	`), shopID, userID)
	if err != nil {
		return false, fmt.Errorf("%w: check shop operator: %v", ErrInternal, err)
	}
	return n > 0, nil
}
