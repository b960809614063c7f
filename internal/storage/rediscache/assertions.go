package rediscache

import "github.com/alpenhaus/alpenhaus/internal/service/expense"

var _ expense.BalanceCache = (*BalanceCache)(nil)
