package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/goodimpact/backoffice-api/internal/domain/order"
	"github.com/goodimpact/backoffice-api/internal/domain/points"
	"github.com/goodimpact/backoffice-api/internal/domain/user"
	"github.com/goodimpact/backoffice-api/internal/pkg/database/dbtest"
)

func TestDecidePriority(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	newer := order.Order{ID: uuid.New(), Status: order.StatusPending, Mode: order.ModeDelivery, SentAt: now.Add(-time.Minute)}
	older := order.Order{ID: uuid.New(), Status: order.StatusPending, Mode: order.ModeTakeaway, SentAt: now.Add(-10 * time.Minute)}
	near := confirmedOrder(order.ModeDelivery, at(now.Add(5*time.Minute)))
	active := []order.Order{newer, near, older}

	s := NewSurface(nil, SurfaceConfig{Offsets: testOffsets, NearETAEnabled: true})
	got := s.Decide(active, now)
	if got.Kind != ActionNearETA || got.Order.ID != near.ID {
		t.Fatalf("near-eta order takes priority, got %+v", got)
	}
	if len(got.Menu) != 3 || !got.Menu[0].Current {
		t.Fatalf("unexpected menu %+v", got.Menu)
	}
	if got.PendingCount != 2 || got.ActiveCount != 3 {
		t.Fatalf("unexpected counts %d/%d", got.PendingCount, got.ActiveCount)
	}

	s.cfg.NearETAEnabled = false
	got = s.Decide(active, now)
	if got.Kind != ActionAcceptOrRefuse || got.Order.ID != older.ID {
		t.Fatalf("oldest pending order expected when near-eta is disabled, got %+v", got)
	}
	wantMin := now.Add(testOffsets.Takeaway)
	if got.MinimumETA == nil || !got.MinimumETA.Equal(wantMin) || got.SuggestedETA == nil || !got.SuggestedETA.Equal(wantMin) {
		t.Fatalf("unexpected eta hints %v/%v", got.SuggestedETA, got.MinimumETA)
	}

	got = s.Decide([]order.Order{near}, now)
	if got.Kind != ActionIdle || got.Order != nil || got.ActiveCount != 1 {
		t.Fatalf("expected idle, got %+v", got)
	}
}

func TestMenuLabelsFollowMode(t *testing.T) {
	tests := []struct {
		mode order.Mode
		want []string
	}{
		{order.ModeDelivery, []string{"Accepted", "Preparing", "Delivering"}},
		{order.ModeTakeaway, []string{"Accepted", "Preparing", "Ready"}},
	}
	for _, tt := range tests {
		menu := Menu(tt.mode, order.StatusProcessing)
		for i, step := range menu {
			if step.Label != tt.want[i] {
				t.Fatalf("%s step %d: got %q, want %q", tt.mode, i, step.Label, tt.want[i])
			}
			if step.Current != (step.Status == order.StatusProcessing) {
				t.Fatalf("%s step %d: wrong current marker", tt.mode, i)
			}
		}
	}
}

func TestActionSame(t *testing.T) {
	view := &OrderView{ID: uuid.New(), Version: 1}
	a := Action{Kind: ActionAcceptOrRefuse, Order: view, PendingCount: 1, ActiveCount: 1}

	b := a
	if !a.same(b) {
		t.Fatal("identical actions should compare equal")
	}
	b.Order = &OrderView{ID: view.ID, Version: 2}
	if a.same(b) {
		t.Fatal("a version bump is a new action")
	}
	if a.same(Action{Kind: ActionIdle, PendingCount: 1, ActiveCount: 1}) {
		t.Fatal("kind change is a new action")
	}
}

type surfaceFixture struct {
	db      *sqlx.DB
	surface *Surface
	ledger  *points.LedgerRepository
	owner   uuid.UUID
	shop    uuid.UUID
	actor   uuid.UUID
}

func newSurfaceFixture(t *testing.T) *surfaceFixture {
	t.Helper()
	db := dbtest.Open(t)
	ledger := points.NewRepository(db)
	engine := order.NewService(order.NewRepository(db), points.NewService(ledger), nil)
	actor := dbtest.User(t, db, user.RoleOperator, 0)
	return &surfaceFixture{
		db:      db,
		surface: NewSurface(engine, SurfaceConfig{Offsets: testOffsets, NearETAEnabled: true}),
		ledger:  ledger,
		owner:   dbtest.User(t, db, user.RoleCustomer, 0),
		shop:    dbtest.Shop(t, db, actor),
		actor:   actor,
	}
}

func (f *surfaceFixture) seed(t *testing.T, o dbtest.OrderSeed) uuid.UUID {
	t.Helper()
	o.ShopID = f.shop
	o.UserID = f.owner
	return dbtest.Order(t, f.db, o)
}

func TestAcceptCommitsProposedETA(t *testing.T) {
	f := newSurfaceFixture(t)
	ctx := context.Background()
	id := f.seed(t, dbtest.OrderSeed{Status: "pending", Mode: string(order.ModeTakeaway), SentAt: time.Now().Add(-time.Minute)})

	eta := time.Now().Add(5 * time.Minute).UTC().Truncate(time.Microsecond)
	o, err := f.surface.Accept(ctx, f.shop, id, ETAProposal{ETA: eta, Touched: true}, f.actor)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if o.Status != order.StatusConfirmed || o.ETA == nil || !o.ETA.Equal(eta) || o.Version != 2 {
		t.Fatalf("unexpected order after accept: %+v", o)
	}

	again, err := f.surface.Accept(ctx, f.shop, id, ETAProposal{ETA: eta.Add(time.Hour), Touched: true}, f.actor)
	if err != nil {
		t.Fatalf("repeated accept: %v", err)
	}
	if again.Version != o.Version || !again.ETA.Equal(eta) {
		t.Fatal("repeated accept must not change the order")
	}
}

func TestAcceptRejectsEarlyETA(t *testing.T) {
	f := newSurfaceFixture(t)
	ctx := context.Background()
	requested := time.Now().Add(time.Hour)
	id := f.seed(t, dbtest.OrderSeed{Status: "pending", RequestedReadyAt: &requested})

	_, err := f.surface.Accept(ctx, f.shop, id, ETAProposal{ETA: requested, Touched: true}, f.actor)
	if !errors.Is(err, ErrLeadTimeNotMet) {
		t.Fatalf("expected ErrLeadTimeNotMet, got %v", err)
	}

	action, err := f.surface.Next(ctx, f.shop)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if action.Kind != ActionAcceptOrRefuse || action.Order.ID != id || action.Order.Status != order.StatusPending {
		t.Fatalf("order should still wait for a decision: %+v", action)
	}
}

func TestRefuseOnlyFromPending(t *testing.T) {
	f := newSurfaceFixture(t)
	ctx := context.Background()
	pending := f.seed(t, dbtest.OrderSeed{Status: "pending", TotalPoints: 30})
	eta := time.Now().Add(time.Hour)
	confirmed := f.seed(t, dbtest.OrderSeed{Status: "confirmed", TotalPoints: 30, ETA: &eta})

	o, err := f.surface.Refuse(ctx, f.shop, pending, "out of stock", f.actor)
	if err != nil {
		t.Fatalf("refuse: %v", err)
	}
	if o.Status != order.StatusCancelled || o.AdminNotes != "out of stock" {
		t.Fatalf("unexpected refused order %+v", o)
	}
	if n, _ := f.ledger.CountEntries(ctx, f.owner); n != 0 {
		t.Fatalf("refusing a pending order must not touch the ledger, got %d entries", n)
	}

	_, err = f.surface.Refuse(ctx, f.shop, confirmed, "", f.actor)
	if !errors.Is(err, order.ErrTransitionNotAllowed) {
		t.Fatalf("refusing a confirmed order: expected ErrTransitionNotAllowed, got %v", err)
	}
}

func TestCancelConfirmedRefunds(t *testing.T) {
	f := newSurfaceFixture(t)
	ctx := context.Background()
	eta := time.Now().Add(time.Hour)
	id := f.seed(t, dbtest.OrderSeed{Status: "confirmed", TotalPoints: 120, ETA: &eta})

	o, err := f.surface.Cancel(ctx, f.shop, id, "customer called", f.actor)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if o.Status != order.StatusCancelled {
		t.Fatalf("unexpected status %s", o.Status)
	}
	balance, err := f.ledger.CurrentBalance(ctx, f.owner)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 120 {
		t.Fatalf("expected refund of 120, balance is %d", balance)
	}

	if _, err := f.surface.Cancel(ctx, f.shop, id, "", f.actor); err != nil {
		t.Fatalf("repeated cancel should be a no-op, got %v", err)
	}
	if balance, _ := f.ledger.CurrentBalance(ctx, f.owner); balance != 120 {
		t.Fatalf("repeated cancel refunded again: %d", balance)
	}
}

func TestAdvanceWalksFulfilment(t *testing.T) {
	f := newSurfaceFixture(t)
	ctx := context.Background()
	eta := time.Now().Add(time.Hour)
	id := f.seed(t, dbtest.OrderSeed{Status: "confirmed", ETA: &eta})

	if _, err := f.surface.Advance(ctx, f.shop, id, order.StatusCancelled, f.actor); !errors.Is(err, ErrInvalidAdvance) {
		t.Fatalf("expected ErrInvalidAdvance, got %v", err)
	}
	if _, err := f.surface.Advance(ctx, f.shop, id, order.StatusShipped, f.actor); !errors.Is(err, order.ErrTransitionNotAllowed) {
		t.Fatalf("skipping a step: expected ErrTransitionNotAllowed, got %v", err)
	}

	for _, target := range []order.Status{order.StatusProcessing, order.StatusShipped, order.StatusDelivered} {
		o, err := f.surface.Advance(ctx, f.shop, id, target, f.actor)
		if err != nil {
			t.Fatalf("advance to %s: %v", target, err)
		}
		if o.Status != target {
			t.Fatalf("expected %s, got %s", target, o.Status)
		}
	}

	action, err := f.surface.Next(ctx, f.shop)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if action.Kind != ActionIdle || action.ActiveCount != 0 {
		t.Fatalf("delivered order leaves the shop idle: %+v", action)
	}
}

func TestUpdateETA(t *testing.T) {
	f := newSurfaceFixture(t)
	ctx := context.Background()
	eta := time.Now().Add(30 * time.Minute).UTC().Truncate(time.Microsecond)
	id := f.seed(t, dbtest.OrderSeed{Status: "confirmed", ETA: &eta})

	o, err := f.surface.UpdateETA(ctx, f.shop, id, ETAProposal{ETA: eta}, f.actor)
	if err != nil {
		t.Fatalf("untouched update: %v", err)
	}
	if o.Version != 1 {
		t.Fatalf("untouched update must not write, version %d", o.Version)
	}

	_, err = f.surface.UpdateETA(ctx, f.shop, id, ETAProposal{ETA: eta.Add(time.Minute), Touched: true}, f.actor)
	if !errors.Is(err, ErrLeadTimeNotMet) {
		t.Fatalf("expected ErrLeadTimeNotMet, got %v", err)
	}

	later := eta.Add(testOffsets.Delivery)
	o, err = f.surface.UpdateETA(ctx, f.shop, id, ETAProposal{ETA: later, Touched: true}, f.actor)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !o.ETA.Equal(later) || o.Version != 2 || o.Status != order.StatusConfirmed {
		t.Fatalf("unexpected order after update: %+v", o)
	}

	pending := f.seed(t, dbtest.OrderSeed{Status: "pending"})
	if _, err := f.surface.UpdateETA(ctx, f.shop, pending, ETAProposal{ETA: later, Touched: true}, f.actor); !errors.Is(err, order.ErrNotReschedulable) {
		t.Fatalf("expected ErrNotReschedulable, got %v", err)
	}
}

func TestActionsHideOtherShopsOrders(t *testing.T) {
	f := newSurfaceFixture(t)
	id := f.seed(t, dbtest.OrderSeed{Status: "pending"})

	_, err := f.surface.Refuse(context.Background(), uuid.New(), id, "", f.actor)
	if !errors.Is(err, order.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}
