// Package dbtest opens migrated in-memory databases and seeds rows for package tests.
package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/goodimpact/backoffice-api/internal/domain/user"
	"github.com/goodimpact/backoffice-api/internal/pkg/database"
)

// Open returns a migrated in-memory SQLite database closed at test cleanup.
func Open(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.NewMigratedSQLite(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// User inserts a user with the given role and opening balance.
func User(t *testing.T, db *sqlx.DB, role user.Role, balance int64) uuid.UUID {
	t.Helper()
	id := uuid.New()
	ts := now()
	_, err := db.Exec(db.Rebind(`
		INSERT INTO users (id, email, role, points_balance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), id, id.String()+"@test.local", string(role), balance, ts, ts)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return id
}

// Shop inserts a shop and assigns the given operators to it.
func Shop(t *testing.T, db *sqlx.DB, operators ...uuid.UUID) uuid.UUID {
	t.Helper()
	id := uuid.New()
	if _, err := db.Exec(db.Rebind(`INSERT INTO shops (id, name, created_at) VALUES (?, ?, ?)`), id, "shop-"+id.String()[:8], now()); err != nil {
		t.Fatalf("seed shop: %v", err)
	}
	for _, op := range operators {
		if _, err := db.Exec(db.Rebind(`INSERT INTO shop_operators (shop_id, user_id) VALUES (?, ?)`), id, op); err != nil {
			t.Fatalf("seed shop operator: %v", err)
		}
	}
	return id
}

// OrderSeed describes an order row to insert.
type OrderSeed struct {
	ShopID           uuid.UUID
	UserID           uuid.UUID
	Status           string
	Mode             string
	TotalPoints      int64
	RequestedReadyAt *time.Time
	SentAt           time.Time
	ETA              *time.Time
	CreatedAt        time.Time
}

// Order inserts an order and returns its id. Zero values get sensible defaults.
func Order(t *testing.T, db *sqlx.DB, o OrderSeed) uuid.UUID {
	t.Helper()
	id := uuid.New()
	ts := now()
	if o.Status == "" {
		o.Status = "pending"
	}
	if o.Mode == "" {
		o.Mode = "Delivery"
	}
	if o.SentAt.IsZero() {
		o.SentAt = ts
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = o.SentAt
	}
	_, err := db.Exec(db.Rebind(`
		INSERT INTO orders (id, shop_id, user_id, status, mode, total_points, requested_ready_at, sent_at, eta, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), id, o.ShopID, o.UserID, o.Status, o.Mode, o.TotalPoints, utcPtr(o.RequestedReadyAt), o.SentAt.UTC(), utcPtr(o.ETA), o.CreatedAt.UTC(), ts)
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return id
}

// Project inserts an active investment project.
func Project(t *testing.T, db *sqlx.DB, partner string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	if _, err := db.Exec(db.Rebind(`INSERT INTO projects (id, name, partner, status, created_at) VALUES (?, ?, ?, 'active', ?)`), id, "project-"+id.String()[:8], partner, now()); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return id
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
