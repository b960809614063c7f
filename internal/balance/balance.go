// Package balance computes per-counterparty net positions from a house's
// expenses. It is a pure scan over expenses and their unsettled splits; at
// house scale (tens to low hundreds of expenses) no incremental maintenance
// is needed.
package balance

import (
	"sort"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/alpenhaus/alpenhaus/internal/lodge"
)

// Compute returns, for every accepted member other than viewer, the net amount
// that member owes the viewer (positive) or is owed by the viewer (negative),
// summed over unsettled splits only. Results are sorted by absolute net
// descending so the largest obligations surface first.
func Compute(currency string, viewer uuid.UUID, members map[uuid.UUID]lodge.User, expenses []lodge.Expense) ([]lodge.MemberBalance, lodge.BalanceSummary, error) {
	owesYou := make(map[uuid.UUID]int64)
	youOwe := make(map[uuid.UUID]int64)

	for _, e := range expenses {
		for _, sp := range e.Splits {
			if sp.Settled {
				continue
			}
			units, _ := sp.Amount.MinorUnits()
			switch {
			case e.PayerID == viewer && sp.UserID != viewer:
				if _, ok := members[sp.UserID]; ok {
					owesYou[sp.UserID] += units
				}
			case sp.UserID == viewer && e.PayerID != viewer:
				if _, ok := members[e.PayerID]; ok {
					youOwe[e.PayerID] += units
				}
			}
		}
	}

	out := make([]lodge.MemberBalance, 0, len(members))
	var totalOwed, totalOwe int64
	for id, u := range members {
		if id == viewer {
			continue
		}
		credit := owesYou[id]
		debit := youOwe[id]
		net := credit - debit
		if net > 0 {
			totalOwed += net
		} else {
			totalOwe += -net
		}
		mb, err := memberBalance(currency, id, u.Name, credit, debit)
		if err != nil {
			return nil, lodge.BalanceSummary{}, err
		}
		out = append(out, mb)
	}

	sort.Slice(out, func(i, j int) bool {
		a, _ := out[i].Net.MinorUnits()
		b, _ := out[j].Net.MinorUnits()
		if a < 0 {
			a = -a
		}
		if b < 0 {
			b = -b
		}
		if a != b {
			return a > b
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})

	summary, err := summaryOf(currency, totalOwe, totalOwed)
	if err != nil {
		return nil, lodge.BalanceSummary{}, err
	}
	return out, summary, nil
}

func memberBalance(currency string, id uuid.UUID, name string, credit, debit int64) (lodge.MemberBalance, error) {
	owes, err := money.NewAmountFromMinorUnits(currency, credit)
	if err != nil {
		return lodge.MemberBalance{}, err
	}
	owe, err := money.NewAmountFromMinorUnits(currency, debit)
	if err != nil {
		return lodge.MemberBalance{}, err
	}
	net, err := money.NewAmountFromMinorUnits(currency, credit-debit)
	if err != nil {
		return lodge.MemberBalance{}, err
	}
	return lodge.MemberBalance{UserID: id, Name: name, OwesYou: owes, YouOwe: owe, Net: net}, nil
}

func summaryOf(currency string, owe, owed int64) (lodge.BalanceSummary, error) {
	totalOwe, err := money.NewAmountFromMinorUnits(currency, owe)
	if err != nil {
		return lodge.BalanceSummary{}, err
	}
	totalOwed, err := money.NewAmountFromMinorUnits(currency, owed)
	if err != nil {
		return lodge.BalanceSummary{}, err
	}
	net, err := money.NewAmountFromMinorUnits(currency, owed-owe)
	if err != nil {
		return lodge.BalanceSummary{}, err
	}
	return lodge.BalanceSummary{TotalYouOwe: totalOwe, TotalYouAreOwed: totalOwed, NetBalance: net}, nil
}
