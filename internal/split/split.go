// Package split computes per-member share amounts for a shared expense.
// All arithmetic is done in integer minor units so that shares always sum to
// the total exactly, with no fractional-cent residue.
package split

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/govalues/money"
)

// Tolerance is the maximum allowed difference, in minor units, between the sum
// of custom shares and the expense total.
const Tolerance = 1

// Share is one member's portion of an expense total.
type Share struct {
	UserID uuid.UUID
	Amount money.Amount
}

// Even divides total across members in order. Each share is the floored
// per-member amount in minor units; the entire residual is added to the first
// member's share so that the shares sum to total exactly.
//
// An empty member list yields an empty share set.
func Even(total money.Amount, members []uuid.UUID) ([]Share, error) {
	units, ok := total.MinorUnits()
	if !ok || units <= 0 {
		return nil, errors.New("total must be positive")
	}
	if len(members) == 0 {
		return nil, nil
	}
	curr := total.Curr().Code()
	n := int64(len(members))
	each := units / n
	residual := units - each*n

	shares := make([]Share, 0, len(members))
	for i, id := range members {
		amount := each
		if i == 0 {
			amount += residual
		}
		amt, err := money.NewAmountFromMinorUnits(curr, amount)
		if err != nil {
			return nil, err
		}
		shares = append(shares, Share{UserID: id, Amount: amt})
	}
	return shares, nil
}

// ValidateCustom checks caller-supplied shares against total. Shares must be
// non-empty, each non-negative, and sum to total within Tolerance minor units.
func ValidateCustom(total money.Amount, shares []Share) error {
	if len(shares) == 0 {
		return errors.New("at least one split is required")
	}
	totalUnits, _ := total.MinorUnits()
	var sum int64
	for _, sh := range shares {
		units, _ := sh.Amount.MinorUnits()
		if units < 0 {
			return errors.New("split amounts must not be negative")
		}
		if sh.UserID == uuid.Nil {
			return errors.New("split user_id is required")
		}
		sum += units
	}
	diff := sum - totalUnits
	if diff < 0 {
		diff = -diff
	}
	if diff > Tolerance {
		return fmt.Errorf("split amounts (%s) must equal total (%s)", FormatMinor(sum), FormatMinor(totalUnits))
	}
	return nil
}

// FormatMinor renders minor units as a plain two-decimal string, e.g. 1050 -> "10.50".
func FormatMinor(units int64) string {
	sign := ""
	if units < 0 {
		sign = "-"
		units = -units
	}
	return fmt.Sprintf("%s%d.%02d", sign, units/100, units%100)
}
