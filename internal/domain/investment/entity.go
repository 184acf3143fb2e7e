package investment

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type distinguishes a self-funded adoption from one offered to someone else
type Type string

const (
	TypeAdoption Type = "adoption"
	TypeGift     Type = "gift"
)

// ProjectStatusActive is the only project status that accepts investments
const ProjectStatusActive = "active"

// Project is an impact project users can adopt (matches projects table)
type Project struct {
	ID        uuid.UUID `db:"id"`
	Name      string    `db:"name"`
	Partner   string    `db:"partner"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
}

// Investment is a recorded adoption (matches investments table)
type Investment struct {
	ID              uuid.UUID       `db:"id"`
	UserID          uuid.UUID       `db:"user_id"`
	ProjectID       uuid.UUID       `db:"project_id"`
	Type            Type            `db:"type"`
	EURAmount       decimal.Decimal `db:"eur_amount"`
	Partner         string          `db:"partner"`
	BonusPercentage int             `db:"bonus_percentage"`
	PointsEarned    int64           `db:"points_earned"`
	CreatedAt       time.Time       `db:"created_at"`
}

var (
	hundred  = decimal.NewFromInt(100)
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
)

// PointsFor converts an EUR amount into points: floor(eur * pointsPerEUR * (100 + bonus) / 100).
// ok is false when the result does not fit in an int64.
func PointsFor(eur decimal.Decimal, pointsPerEUR int, bonusPercentage int) (earned int64, ok bool) {
	pts := eur.
		Mul(decimal.NewFromInt(int64(pointsPerEUR))).
		Mul(decimal.NewFromInt(int64(100 + bonusPercentage))).
		Div(hundred).
		Floor()
	if pts.GreaterThan(maxInt64) {
		return 0, false
	}
	return pts.IntPart(), true
}
