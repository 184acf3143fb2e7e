package investment

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/goodimpact/backoffice-api/internal/domain/points"
	"github.com/goodimpact/backoffice-api/internal/pkg/logger"
)

// ReferenceInvestment tags ledger credits earned by an investment
const ReferenceInvestment = "investment"

// PointsCrediter credits the ledger inside the caller's transaction
type PointsCrediter interface {
	CreditDeltaTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, delta int64, meta points.Meta) (*points.CreditResult, error)
}

// AdoptionInput is a validated adoption request
type AdoptionInput struct {
	ProjectID       uuid.UUID
	Type            Type
	EURAmount       string
	Partner         string
	BonusPercentage int
}

// AdoptionResult reports what an adoption earned
type AdoptionResult struct {
	Investment   *Investment
	BalanceAfter int64
}

type Service struct {
	repo         Repository
	points       PointsCrediter
	pointsPerEUR int
}

func NewService(repo Repository, pts PointsCrediter, pointsPerEUR int) *Service {
	return &Service{repo: repo, points: pts, pointsPerEUR: pointsPerEUR}
}

// MaxEURAmount is the largest single investment accepted
var MaxEURAmount = decimal.NewFromInt(1_000_000)

// ParseEUR accepts a positive amount up to MaxEURAmount with at most two fraction digits
func ParseEUR(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || !amount.IsPositive() || !amount.Equal(amount.Truncate(2)) || amount.GreaterThan(MaxEURAmount) {
		return decimal.Zero, ErrInvalidAmount
	}
	return amount, nil
}

// CreateAdoption records an investment and credits the points it earns in one transaction
func (s *Service) CreateAdoption(ctx context.Context, userID uuid.UUID, in AdoptionInput) (*AdoptionResult, error) {
	amount, err := ParseEUR(in.EURAmount)
	if err != nil {
		return nil, err
	}

	project, err := s.repo.GetProject(ctx, in.ProjectID)
	if err != nil {
		return nil, err
	}
	if project.Status != ProjectStatusActive {
		return nil, ErrProjectInactive
	}

	earned, ok := PointsFor(amount, s.pointsPerEUR, in.BonusPercentage)
	if !ok {
		return nil, ErrInvalidAmount
	}
	if earned <= 0 {
		return nil, ErrAmountTooSmall
	}

	partner := in.Partner
	if partner == "" {
		partner = project.Partner
	}

	inv := &Investment{
		ID:              uuid.New(),
		UserID:          userID,
		ProjectID:       project.ID,
		Type:            in.Type,
		EURAmount:       amount,
		Partner:         partner,
		BonusPercentage: in.BonusPercentage,
		PointsEarned:    earned,
	}

	log := logger.FromContext(ctx).With().
		Str("user_id", userID.String()).
		Str("investment_id", inv.ID.String()).
		Logger()

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.repo.CreateTx(ctx, tx, inv); err != nil {
		log.Error().Err(err).Str("step", "insert_investment").Msg("adoption failed")
		return nil, err
	}

	credit, err := s.points.CreditDeltaTx(ctx, tx, userID, earned, points.Meta{
		Type:          points.EntryEarnedInvestment,
		ReferenceType: ReferenceInvestment,
		ReferenceID:   inv.ID.String(),
		Description:   fmt.Sprintf("Adoption of %s (%s EUR)", project.Name, amount.StringFixed(2)),
	})
	if err != nil {
		log.Error().Err(err).Str("step", "ledger_credit").Int64("amount", earned).Msg("adoption failed")
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		log.Error().Err(err).Str("step", "commit").Msg("adoption failed")
		return nil, fmt.Errorf("%w: commit: %v", ErrInternal, err)
	}

	log.Info().
		Str("eur_amount", amount.String()).
		Int64("points_earned", earned).
		Int64("balance_after", credit.NewBalance).
		Msg("adoption recorded")

	return &AdoptionResult{Investment: inv, BalanceAfter: credit.NewBalance}, nil
}

// List returns the user's investments, newest first
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Investment, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByUser(ctx, userID, limit, offset)
}
