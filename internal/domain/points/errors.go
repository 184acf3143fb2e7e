package points

import (
	"errors"

	"github.com/goodimpact/backoffice-api/internal/domain/user"
)

var (
	// ErrInsufficientPoints is returned when a debit would drive the balance negative
	ErrInsufficientPoints = errors.New("insufficient points")

	// ErrInvalidAmount is returned when the delta is zero
	ErrInvalidAmount = errors.New("invalid amount: must be non-zero")

	ErrInvalidEntryType = errors.New("invalid ledger entry type")

	ErrUserNotFound = user.ErrUserNotFound

	// ErrReferenceConflict is returned when an idempotency key is reused for a different mutation
	ErrReferenceConflict = errors.New("ledger reference already used with a different amount or user")

	// ErrDuplicateEntry is returned when a concurrent writer inserted the same idempotency key first
	ErrDuplicateEntry = errors.New("ledger entry already exists")

	// ErrConcurrentUpdate is returned when the user balance changed between read and write
	ErrConcurrentUpdate = errors.New("points balance changed concurrently")

	// ErrRunningSumMismatch is returned when an appended entry does not continue the previous balance
	ErrRunningSumMismatch = errors.New("ledger running sum mismatch")

	ErrInternal = errors.New("internal error")
)
