package points

import (
	"time"

	"github.com/google/uuid"
)

// EntryType classifies a ledger entry
type EntryType string

const (
	EntryEarnedPurchase         EntryType = "earned_purchase"
	EntryEarnedInvestment       EntryType = "earned_investment"
	EntryAdjustmentAdmin        EntryType = "adjustment_admin"
	EntrySpentPurchase          EntryType = "spent_purchase"
	EntrySubscriptionSettlement EntryType = "subscription_settlement"
)

// Valid reports whether t is a known entry type
func (t EntryType) Valid() bool {
	switch t {
	case EntryEarnedPurchase, EntryEarnedInvestment, EntryAdjustmentAdmin, EntrySpentPurchase, EntrySubscriptionSettlement:
		return true
	}
	return false
}

// Entry is an immutable ledger row. BalanceAfter is the running total for the user after Amount.
type Entry struct {
	ID            uuid.UUID `db:"id" json:"id"`
	UserID        uuid.UUID `db:"user_id" json:"user_id"`
	Seq           int64     `db:"seq" json:"seq"`
	Type          EntryType `db:"type" json:"type"`
	Amount        int64     `db:"amount" json:"amount"`
	BalanceAfter  int64     `db:"balance_after" json:"balance_after"`
	ReferenceType *string   `db:"reference_type" json:"reference_type,omitempty"`
	ReferenceID   *string   `db:"reference_id" json:"reference_id,omitempty"`
	Description   string    `db:"description" json:"description"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Meta describes why a balance changes. ReferenceType+ReferenceID+Type form the idempotency key
// when both reference fields are set.
type Meta struct {
	Type          EntryType
	ReferenceType string
	ReferenceID   string
	Description   string
}

func (m Meta) hasReference() bool {
	return m.ReferenceType != "" && m.ReferenceID != ""
}

// CreditResult is the outcome of a balance mutation
type CreditResult struct {
	NewBalance int64
	EntryID    uuid.UUID
	// Duplicate is set when the idempotency key already existed and nothing was written.
	Duplicate bool
}

// AuditReport is the result of replaying a user's ledger against the cached balance
type AuditReport struct {
	UserID           uuid.UUID `json:"user_id"`
	CachedBalance    int64     `json:"cached_balance"`
	OpeningBalance   int64     `json:"opening_balance"`
	LedgerBalance    int64     `json:"ledger_balance"`
	Entries          int       `json:"entries"`
	Consistent       bool      `json:"consistent"`
	FirstMismatchSeq *int64    `json:"first_mismatch_seq,omitempty"`
	// MismatchSeqs lists every entry whose balance_after does not continue the one before it.
	MismatchSeqs     []int64   `json:"mismatch_seqs,omitempty"`
}
