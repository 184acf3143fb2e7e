package points

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// ReferenceAdminAdjustment tags manual corrections made from the back-office
const ReferenceAdminAdjustment = "admin_adjustment"

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Balance returns the user's cached points balance
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.CurrentBalance(ctx, userID)
}

// CreditDelta moves the balance by delta and records one ledger entry, in its own transaction
func (s *Service) CreditDelta(ctx context.Context, userID uuid.UUID, delta int64, meta Meta) (*CreditResult, error) {
	res, err := s.repo.CreditDelta(ctx, userID, delta, meta)
	if err != nil {
		return nil, err
	}
	logCredit(userID, delta, meta, res)
	return res, nil
}

// CreditDeltaTx is CreditDelta inside a transaction owned by the caller
func (s *Service) CreditDeltaTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, delta int64, meta Meta) (*CreditResult, error) {
	res, err := s.repo.CreditDeltaTx(ctx, tx, userID, delta, meta)
	if err != nil {
		return nil, err
	}
	logCredit(userID, delta, meta, res)
	return res, nil
}

// History returns a page of entries, newest first, and the total count
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Entry, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	if _, err := s.repo.CurrentBalance(ctx, userID); err != nil {
		return nil, 0, err
	}

	entries, err := s.repo.ListEntries(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.CountEntries(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// AdminAdjust applies a manual correction. Every call is a new mutation.
func (s *Service) AdminAdjust(ctx context.Context, adminID, userID uuid.UUID, amount int64, reason string) (*CreditResult, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	meta := Meta{
		Type:          EntryAdjustmentAdmin,
		ReferenceType: ReferenceAdminAdjustment,
		ReferenceID:   uuid.NewString(),
		Description:   fmt.Sprintf("Admin adjustment by %s: %s", adminID, reason),
	}
	return s.CreditDelta(ctx, userID, amount, meta)
}

// Audit replays the ledger, records every entry that breaks the running sum and compares the
// result to the cached balance
func (s *Service) Audit(ctx context.Context, userID uuid.UUID) (*AuditReport, error) {
	cached, err := s.repo.CurrentBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ReplayEntries(ctx, userID)
	if err != nil {
		return nil, err
	}

	report := &AuditReport{
		UserID:        userID,
		CachedBalance: cached,
		Entries:       len(entries),
		Consistent:    true,
	}
	if len(entries) == 0 {
		report.LedgerBalance = cached
		report.OpeningBalance = cached
		return report, nil
	}

	report.OpeningBalance = entries[0].BalanceAfter - entries[0].Amount
	running := report.OpeningBalance
	for _, e := range entries {
		running += e.Amount
		if running != e.BalanceAfter {
			if report.FirstMismatchSeq == nil {
				seq := e.Seq
				report.FirstMismatchSeq = &seq
			}
			report.MismatchSeqs = append(report.MismatchSeqs, e.Seq)
			report.Consistent = false
			// continue from the stored balance so one break is reported once
			running = e.BalanceAfter
		}
	}
	report.LedgerBalance = entries[len(entries)-1].BalanceAfter
	if report.LedgerBalance != cached {
		report.Consistent = false
	}

	if !report.Consistent {
		log.Warn().
			Str("user_id", userID.String()).
			Int64("cached_balance", cached).
			Int64("ledger_balance", report.LedgerBalance).
			Msg("points ledger out of step with cached balance")
	}
	return report, nil
}

func logCredit(userID uuid.UUID, delta int64, meta Meta, res *CreditResult) {
	ev := log.Info().
		Str("user_id", userID.String()).
		Int64("delta", delta).
		Str("type", string(meta.Type)).
		Str("reference_type", meta.ReferenceType).
		Str("reference_id", meta.ReferenceID).
		Int64("balance_after", res.NewBalance)
	if res.Duplicate {
		ev.Msg("points credit skipped, reference already applied")
		return
	}
	ev.Msg("points credit applied")
}
