package memory

import (
	"github.com/alpenhaus/alpenhaus/internal/service/auth"
	"github.com/alpenhaus/alpenhaus/internal/service/expense"
	"github.com/alpenhaus/alpenhaus/internal/service/house"
	"github.com/alpenhaus/alpenhaus/internal/service/stay"
)

// Compile-time interface assertions documenting which interfaces Store satisfies.
var (
	_ expense.Repo   = (*Store)(nil)
	_ expense.Writer = (*Store)(nil)
	_ stay.Repo      = (*Store)(nil)
	_ stay.Writer    = (*Store)(nil)
	_ house.Repo     = (*Store)(nil)
	_ house.Writer   = (*Store)(nil)
	_ auth.Repo      = (*Store)(nil)
	_ auth.Writer    = (*Store)(nil)
)
