package order

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/goodimpact/backoffice-api/internal/domain/points"
	"github.com/goodimpact/backoffice-api/internal/domain/user"
	"github.com/goodimpact/backoffice-api/internal/pkg/database/dbtest"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderChanged
}

func (p *recordingPublisher) PublishOrderChanged(_ context.Context, ev OrderChanged) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type fixture struct {
	db     *sqlx.DB
	svc    *Service
	ledger *points.LedgerRepository
	events *recordingPublisher
	owner  uuid.UUID
	shop   uuid.UUID
}

func newFixture(t *testing.T, ownerBalance int64) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	ledger := points.NewRepository(db)
	events := &recordingPublisher{}
	owner := dbtest.User(t, db, user.RoleCustomer, ownerBalance)
	return &fixture{
		db:     db,
		svc:    NewService(NewRepository(db), points.NewService(ledger), events),
		ledger: ledger,
		events: events,
		owner:  owner,
		shop:   dbtest.Shop(t, db),
	}
}

func (f *fixture) order(t *testing.T, status Status, total int64) uuid.UUID {
	t.Helper()
	eta := time.Now().Add(time.Hour)
	return dbtest.Order(t, f.db, dbtest.OrderSeed{
		ShopID:      f.shop,
		UserID:      f.owner,
		Status:      string(status),
		TotalPoints: total,
		ETA:         &eta,
	})
}

func (f *fixture) balance(t *testing.T) int64 {
	t.Helper()
	b, err := f.ledger.CurrentBalance(context.Background(), f.owner)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return b
}

func (f *fixture) entries(t *testing.T) []points.Entry {
	t.Helper()
	e, err := f.ledger.ReplayEntries(context.Background(), f.owner)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	return e
}

func strPtr(s string) *string { return &s }

func TestCancelConfirmedOrderRefundsTotal(t *testing.T) {
	f := newFixture(t, 1000)
	orderID := f.order(t, StatusConfirmed, 250)

	o, err := f.svc.Transition(context.Background(), orderID, StatusCancelled, TransitionInput{})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if o.Status != StatusCancelled || o.Version != 2 {
		t.Fatalf("unexpected order after cancel: %+v", o)
	}
	if got := f.balance(t); got != 1250 {
		t.Fatalf("expected balance 1250, got %d", got)
	}

	entries := f.entries(t)
	if len(entries) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Type != points.EntryAdjustmentAdmin || e.Amount != 250 || e.BalanceAfter != 1250 {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.ReferenceType == nil || *e.ReferenceType != ReferenceOrder || e.ReferenceID == nil || *e.ReferenceID != orderID.String() {
		t.Fatalf("entry should reference the order: %+v", e)
	}
	if e.Description != "Order refund (admin)" {
		t.Fatalf("unexpected description %q", e.Description)
	}
	if f.events.count() != 1 {
		t.Fatalf("expected one change event, got %d", f.events.count())
	}
}

func TestRepeatedCancelDoesNotRefundTwice(t *testing.T) {
	f := newFixture(t, 0)
	orderID := f.order(t, StatusConfirmed, 300)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := f.svc.Transition(ctx, orderID, StatusCancelled, TransitionInput{Reason: strPtr("customer called")}); err != nil {
			t.Fatalf("cancel %d: %v", i, err)
		}
	}

	if n := len(f.entries(t)); n != 1 {
		t.Fatalf("expected exactly one ledger entry, got %d", n)
	}
	if got := f.balance(t); got != 300 {
		t.Fatalf("expected balance 300, got %d", got)
	}
	if f.events.count() != 1 {
		t.Fatalf("no-op repeat must not publish, got %d events", f.events.count())
	}
}

func TestRefusePendingOrderWritesNoLedger(t *testing.T) {
	f := newFixture(t, 500)
	orderID := f.order(t, StatusPending, 200)

	o, err := f.svc.Transition(context.Background(), orderID, StatusCancelled, TransitionInput{Reason: strPtr("out of stock")})
	if err != nil {
		t.Fatalf("refuse: %v", err)
	}
	if o.Status != StatusCancelled || o.AdminNotes != "out of stock" {
		t.Fatalf("unexpected order: %+v", o)
	}
	if got := f.balance(t); got != 500 {
		t.Fatalf("refusal must not change balance, got %d", got)
	}
	if n := len(f.entries(t)); n != 0 {
		t.Fatalf("refusal must not write ledger entries, got %d", n)
	}
}

func TestRefundFromShippedUsesReason(t *testing.T) {
	f := newFixture(t, 0)
	orderID := f.order(t, StatusShipped, 80)

	o, err := f.svc.Transition(context.Background(), orderID, StatusRefunded, TransitionInput{Reason: strPtr("parcel lost")})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if o.Status != StatusRefunded {
		t.Fatalf("expected refunded, got %s", o.Status)
	}
	entries := f.entries(t)
	if len(entries) != 1 || entries[0].Description != "parcel lost" || entries[0].Amount != 80 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestCancelZeroTotalSkipsLedger(t *testing.T) {
	f := newFixture(t, 10)
	orderID := f.order(t, StatusConfirmed, 0)

	if _, err := f.svc.Transition(context.Background(), orderID, StatusCancelled, TransitionInput{}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if n := len(f.entries(t)); n != 0 {
		t.Fatalf("zero total must not write ledger entries, got %d", n)
	}
}

func TestTransitionResumesAfterCreditWithoutStatusFlip(t *testing.T) {
	f := newFixture(t, 0)
	orderID := f.order(t, StatusConfirmed, 120)
	ctx := context.Background()

	// a previous run credited the owner but never flipped the status
	_, err := f.ledger.CreditDelta(ctx, f.owner, 120, points.Meta{
		Type:          points.EntryAdjustmentAdmin,
		ReferenceType: ReferenceOrder,
		ReferenceID:   orderID.String(),
		Description:   defaultRefundDescription,
	})
	if err != nil {
		t.Fatalf("pre-credit: %v", err)
	}

	o, err := f.svc.Transition(ctx, orderID, StatusCancelled, TransitionInput{})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if o.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", o.Status)
	}
	if got := f.balance(t); got != 120 {
		t.Fatalf("credit must not be repeated, balance %d", got)
	}
	if n := len(f.entries(t)); n != 1 {
		t.Fatalf("expected one entry, got %d", n)
	}
}

func TestTransitionRejectsDisallowedEdge(t *testing.T) {
	f := newFixture(t, 0)
	orderID := f.order(t, StatusDelivered, 50)

	_, err := f.svc.Transition(context.Background(), orderID, StatusPending, TransitionInput{})
	var terr *TransitionError
	if !errors.As(err, &terr) || terr.From != StatusDelivered || terr.To != StatusPending {
		t.Fatalf("expected TransitionError delivered->pending, got %v", err)
	}
	if !errors.Is(err, ErrTransitionNotAllowed) {
		t.Fatalf("expected ErrTransitionNotAllowed, got %v", err)
	}
}

func TestTransitionUnknownOrderAndStatus(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	if _, err := f.svc.Transition(ctx, uuid.New(), StatusCancelled, TransitionInput{}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	orderID := f.order(t, StatusPending, 10)
	if _, err := f.svc.Transition(ctx, orderID, Status("lost"), TransitionInput{}); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestAcceptRequiresETA(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	orderID := dbtest.Order(t, f.db, dbtest.OrderSeed{ShopID: f.shop, UserID: f.owner, Status: "pending"})

	if _, err := f.svc.Transition(ctx, orderID, StatusConfirmed, TransitionInput{}); !errors.Is(err, ErrETARequired) {
		t.Fatalf("expected ErrETARequired, got %v", err)
	}

	eta := time.Now().Add(45 * time.Minute).UTC().Truncate(time.Second)
	o, err := f.svc.Transition(ctx, orderID, StatusConfirmed, TransitionInput{ETA: &eta})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if o.ETA == nil || !o.ETA.Equal(eta) {
		t.Fatalf("expected eta %s, got %v", eta, o.ETA)
	}
}

func TestExpectedVersionMismatch(t *testing.T) {
	f := newFixture(t, 0)
	orderID := f.order(t, StatusConfirmed, 10)
	stale := int64(7)

	_, err := f.svc.Transition(context.Background(), orderID, StatusProcessing, TransitionInput{ExpectedVersion: &stale})
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

// racingRepository bumps the row version between read and write, as a concurrent operator would.
type racingRepository struct {
	*OrderRepository
}

func (r racingRepository) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, expectedVersion int64, patch StatusPatch) (*Order, error) {
	if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE orders SET version = version + 1 WHERE id = ?`), id); err != nil {
		return nil, err
	}
	return r.OrderRepository.UpdateStatusTx(ctx, tx, id, expectedVersion, patch)
}

func TestConcurrentWriteRollsBackRefund(t *testing.T) {
	f := newFixture(t, 100)
	orderID := f.order(t, StatusConfirmed, 40)
	svc := NewService(racingRepository{NewRepository(f.db)}, points.NewService(f.ledger), f.events)

	_, err := svc.Transition(context.Background(), orderID, StatusCancelled, TransitionInput{})
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if got := f.balance(t); got != 100 {
		t.Fatalf("refund must roll back with the failed status write, balance %d", got)
	}
	if n := len(f.entries(t)); n != 0 {
		t.Fatalf("expected no ledger entries, got %d", n)
	}

	o, err := NewRepository(f.db).GetByID(context.Background(), orderID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if o.Status != StatusConfirmed || o.Version != 1 {
		t.Fatalf("order must be untouched, got %+v", o)
	}
}

func TestRescheduleConfirmedOnly(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	confirmed := f.order(t, StatusConfirmed, 10)
	pending := f.order(t, StatusPending, 10)
	eta := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second)

	o, err := f.svc.Reschedule(ctx, confirmed, eta, TransitionInput{})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if o.Status != StatusConfirmed || o.ETA == nil || !o.ETA.Equal(eta) || o.Version != 2 {
		t.Fatalf("unexpected order: %+v", o)
	}

	if _, err := f.svc.Reschedule(ctx, pending, eta, TransitionInput{}); !errors.Is(err, ErrNotReschedulable) {
		t.Fatalf("expected ErrNotReschedulable, got %v", err)
	}
}

func TestListActiveNewestFirst(t *testing.T) {
	f := newFixture(t, 0)
	base := time.Now().Add(-time.Hour).UTC()
	older := dbtest.Order(t, f.db, dbtest.OrderSeed{ShopID: f.shop, UserID: f.owner, SentAt: base})
	newer := dbtest.Order(t, f.db, dbtest.OrderSeed{ShopID: f.shop, UserID: f.owner, SentAt: base.Add(10 * time.Minute)})
	dbtest.Order(t, f.db, dbtest.OrderSeed{ShopID: f.shop, UserID: f.owner, Status: "delivered", SentAt: base.Add(20 * time.Minute)})
	dbtest.Order(t, f.db, dbtest.OrderSeed{ShopID: dbtest.Shop(t, f.db), UserID: f.owner})

	orders, err := f.svc.ListActive(context.Background(), f.shop)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 2 || orders[0].ID != newer || orders[1].ID != older {
		t.Fatalf("unexpected active list: %+v", orders)
	}
}

func TestCustomerRequestCancellationScenario(t *testing.T) {
	f := newFixture(t, 1000)
	orderID := f.order(t, StatusConfirmed, 500)

	o, err := f.svc.Transition(context.Background(), orderID, StatusCancelled, TransitionInput{Reason: strPtr("customer request")})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if o.Status != StatusCancelled || o.AdminNotes != "customer request" {
		t.Fatalf("unexpected order: %+v", o)
	}
	if got := f.balance(t); got != 1500 {
		t.Fatalf("expected 1500, got %d", got)
	}
	entries := f.entries(t)
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Amount != 500 || e.BalanceAfter != 1500 || *e.ReferenceID != orderID.String() || e.Description != "customer request" {
		t.Fatalf("unexpected entry: %+v", e)
	}
}
