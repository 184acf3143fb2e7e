package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/goodimpact/backoffice-api/internal/domain/points"
	"github.com/goodimpact/backoffice-api/internal/pkg/logger"
)

// ReferenceOrder is the ledger reference_type of order refunds
const ReferenceOrder = "order"

const defaultRefundDescription = "Order refund (admin)"

// PointsCrediter applies a balance change inside an open transaction
type PointsCrediter interface {
	CreditDeltaTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, delta int64, meta points.Meta) (*points.CreditResult, error)
}

// EventPublisher is told about committed order changes
type EventPublisher interface {
	PublishOrderChanged(ctx context.Context, ev OrderChanged)
}

// TransitionInput carries the optional data of a status change
type TransitionInput struct {
	Reason          *string
	TrackingNumber  *string
	ShippingCarrier *string
	ETA             *time.Time
	// ExpectedVersion, when set, must match the stored version or the call fails with ErrVersionConflict.
	ExpectedVersion *int64
	Actor           uuid.UUID
}

type Service struct {
	repo   Repository
	points PointsCrediter
	events EventPublisher
}

// NewService wires the engine. events may be nil.
func NewService(repo Repository, pts PointsCrediter, events EventPublisher) *Service {
	return &Service{repo: repo, points: pts, events: events}
}

// Get returns an order with its line items
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Order, []Item, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.repo.ListItems(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return o, items, nil
}

// ListActive returns the shop's non-terminal orders, newest first
func (s *Service) ListActive(ctx context.Context, shopID uuid.UUID) ([]Order, error) {
	return s.repo.ListActive(ctx, shopID)
}

// IsShopOperator reports whether userID is assigned to shopID
func (s *Service) IsShopOperator(ctx context.Context, shopID, userID uuid.UUID) (bool, error) {
	return s.repo.IsShopOperator(ctx, shopID, userID)
}

// Transition moves an order to target. Refund-bearing edges credit the owner and flip the status
// in one transaction; a repeated call on an order already at target changes nothing.
func (s *Service) Transition(ctx context.Context, orderID uuid.UUID, target Status, in TransitionInput) (*Order, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, target)
	}

	log := logger.FromContext(ctx).With().
		Str("order_id", orderID.String()).
		Str("target", string(target)).
		Str("actor", in.Actor.String()).
		Logger()

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		log.Error().Err(err).Str("step", "begin_tx").Msg("order transition failed")
		return nil, err
	}
	defer tx.Rollback()

	current, err := s.repo.GetByIDTx(ctx, tx, orderID)
	if err != nil {
		if !errors.Is(err, ErrOrderNotFound) {
			log.Error().Err(err).Str("step", "load_order").Msg("order transition failed")
		}
		return nil, err
	}

	if in.ExpectedVersion != nil && *in.ExpectedVersion != current.Version {
		return nil, ErrVersionConflict
	}

	if current.Status == target {
		return current, nil
	}
	if !CanTransition(current.Status, target) {
		return nil, &TransitionError{From: current.Status, To: target}
	}
	if target == StatusConfirmed && in.ETA == nil && current.ETA == nil {
		return nil, ErrETARequired
	}

	var refund *points.CreditResult
	if RefundsPoints(current.Status, target) && current.TotalPoints > 0 {
		description := defaultRefundDescription
		if in.Reason != nil && *in.Reason != "" {
			description = *in.Reason
		}
		refund, err = s.points.CreditDeltaTx(ctx, tx, current.UserID, current.TotalPoints, points.Meta{
			Type:          points.EntryAdjustmentAdmin,
			ReferenceType: ReferenceOrder,
			ReferenceID:   orderID.String(),
			Description:   description,
		})
		if err != nil {
			log.Error().Err(err).Str("step", "ledger_credit").Int64("amount", current.TotalPoints).Msg("order transition failed")
			return nil, fmt.Errorf("refund order %s: %w", orderID, err)
		}
	}

	patch := StatusPatch{
		Status:          target,
		AdminNotes:      in.Reason,
		TrackingNumber:  in.TrackingNumber,
		ShippingCarrier: in.ShippingCarrier,
	}
	if target == StatusConfirmed {
		patch.ETA = in.ETA
	}

	updated, err := s.repo.UpdateStatusTx(ctx, tx, orderID, current.Version, patch)
	if err != nil {
		log.Error().Err(err).Str("step", "status_write").Int64("version", current.Version).Msg("order transition failed")
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		log.Error().Err(err).Str("step", "commit").Msg("order transition failed")
		return nil, fmt.Errorf("%w: commit: %v", ErrInternal, err)
	}

	ev := log.Info().
		Str("from", string(current.Status)).
		Int64("version", updated.Version)
	if refund != nil {
		ev = ev.Int64("refunded_points", current.TotalPoints).
			Int64("balance_after", refund.NewBalance).
			Bool("refund_replayed", refund.Duplicate)
	}
	ev.Msg("order status changed")

	s.publish(ctx, updated)
	return updated, nil
}

// Reschedule changes the eta of a confirmed order without moving its status
func (s *Service) Reschedule(ctx context.Context, orderID uuid.UUID, eta time.Time, in TransitionInput) (*Order, error) {
	log := logger.FromContext(ctx).With().
		Str("order_id", orderID.String()).
		Str("actor", in.Actor.String()).
		Logger()

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	current, err := s.repo.GetByIDTx(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if in.ExpectedVersion != nil && *in.ExpectedVersion != current.Version {
		return nil, ErrVersionConflict
	}
	if current.Status != StatusConfirmed {
		return nil, ErrNotReschedulable
	}

	updated, err := s.repo.UpdateStatusTx(ctx, tx, orderID, current.Version, StatusPatch{
		Status:     current.Status,
		AdminNotes: in.Reason,
		ETA:        &eta,
	})
	if err != nil {
		log.Error().Err(err).Str("step", "eta_write").Msg("order reschedule failed")
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		log.Error().Err(err).Str("step", "commit").Msg("order reschedule failed")
		return nil, fmt.Errorf("%w: commit: %v", ErrInternal, err)
	}

	log.Info().Time("eta", eta).Int64("version", updated.Version).Msg("order eta changed")
	s.publish(ctx, updated)
	return updated, nil
}

func (s *Service) publish(ctx context.Context, o *Order) {
	if s.events == nil {
		return
	}
	s.events.PublishOrderChanged(ctx, OrderChanged{
		ShopID:  o.ShopID,
		OrderID: o.ID,
		Status:  o.Status,
		Version: o.Version,
	})
}
