package user

import (
	"time"

	"github.com/google/uuid"
)

// Role represents the principal kind carried in access tokens
type Role string

const (
	RoleCustomer Role = "customer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// User is the points-holding principal (matches users table)
type User struct {
	ID            uuid.UUID `db:"id"`
	Email         string    `db:"email"`
	Role          Role      `db:"role"`
	PointsBalance int64     `db:"points_balance"`
	PointsSeq     int64     `db:"points_seq"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// IsValidRole checks if role is known
func IsValidRole(role string) bool {
	switch Role(role) {
	case RoleCustomer, RoleOperator, RoleAdmin:
		return true
	}
	return false
}
