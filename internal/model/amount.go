package model

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/jackc/pgx/v5/pgtype"
)

// Amount is a signed fixed-point number of bonus points. Points are stored
// as integer kopecks to keep ledger arithmetic exact; negative values are
// debits.
type Amount struct {
	totalKopecks int64
}

const kopInRub = 100

func NewAmount(roubles, kopecks int64) Amount {
	return Amount{totalKopecks: roubles*kopInRub + kopecks}
}

func (a Amount) TotalKopecks() int64 {
	return a.totalKopecks
}

func (a Amount) IsZero() bool {
	return a.totalKopecks == 0
}

func (a Amount) IsNegative() bool {
	return a.totalKopecks < 0
}

func (a Amount) Neg() Amount {
	return Amount{totalKopecks: -a.totalKopecks}
}

func (a Amount) Add(b Amount) Amount {
	return Amount{totalKopecks: a.totalKopecks + b.totalKopecks}
}

func (a Amount) ToFloat64() float64 {
	return float64(a.totalKopecks) / kopInRub
}

func (a Amount) String() string {
	return strconv.FormatFloat(a.ToFloat64(), 'f', -1, 64)
}

func FromFloat(amount float64) (Amount, error) {
	const maxPreciseInt = 9007199254740992
	if math.Abs(amount)*kopInRub >= maxPreciseInt {
		return Amount{}, errors.New("amount overflow")
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return Amount{}, errors.New("amount must be a finite number")
	}

	return Amount{totalKopecks: int64(math.Round(amount * kopInRub))}, nil
}

func FromString(amount string) (Amount, error) {
	f, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return Amount{}, fmt.Errorf("failed to parse amount %q: %w", amount, err)
	}
	return FromFloat(f)
}

func (a Amount) ToPGNumeric() pgtype.Numeric {
	return pgtype.Numeric{
		Int:   big.NewInt(a.totalKopecks),
		Exp:   -2,
		Valid: true,
	}
}

func FromPGNumeric(n pgtype.Numeric) (Amount, error) {
	if !n.Valid {
		return Amount{}, errors.New("NULL numeric from DB")
	}
	f, err := n.Float64Value()
	if err != nil {
		return Amount{}, fmt.Errorf("failed to convert numeric: %w", err)
	}
	return FromFloat(f.Float64)
}
