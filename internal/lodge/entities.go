package lodge

import (
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
)

// Role identifies the privileges of a house member.
type Role string

const (
	// RoleAdmin can invite members, delete guest-fee expenses, and receives guest fees.
	RoleAdmin Role = "admin"
	// RoleMember is a regular house member.
	RoleMember Role = "member"
)

// MemberStatus tracks the lifecycle of a house membership.
type MemberStatus string

const (
	// StatusPending marks an invitation that has not been accepted yet.
	StatusPending MemberStatus = "pending"
	// StatusAccepted marks a full member of the house.
	StatusAccepted MemberStatus = "accepted"
)

// Category classifies a shared expense. The string values are persisted.
type Category string

const (
	CategoryGroceries      Category = "groceries"
	CategoryUtilities      Category = "utilities"
	CategorySupplies       Category = "supplies"
	CategoryRent           Category = "rent"
	CategoryEntertainment  Category = "entertainment"
	CategoryTransportation Category = "transportation"
	CategoryGuestFees      Category = "guest_fees"
	CategoryOther          Category = "other"
)

// Valid reports whether c is one of the persisted categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryGroceries, CategoryUtilities, CategorySupplies, CategoryRent,
		CategoryEntertainment, CategoryTransportation, CategoryGuestFees, CategoryOther:
		return true
	}
	return false
}

// User is a registered account. PasswordHash is a bcrypt hash and never leaves
// the storage/auth layers.
type User struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

// House is a shared vacation property. Currency is the ISO 4217 code all of the
// house's expenses are denominated in. GuestNightlyRate is the per-guest
// per-night fee charged when a member brings guests on a stay.
type House struct {
	ID               uuid.UUID
	Name             string
	Currency         string
	GuestNightlyRate money.Amount
	CreatedAt        time.Time
}

// Membership links a user to a house with a role and an invitation status.
type Membership struct {
	HouseID  uuid.UUID
	UserID   uuid.UUID
	Role     Role
	Status   MemberStatus
	JoinedAt time.Time
}

// Expense is one shared cost fronted by a payer and split among members.
// CreatorID equals PayerID except for guest fees, where the payer is the house
// admin and the creator is the booking member.
type Expense struct {
	ID            uuid.UUID
	HouseID       uuid.UUID
	Title         string
	Description   string
	Amount        money.Amount
	Category      Category
	Date          time.Time
	PayerID       uuid.UUID
	CreatorID     uuid.UUID
	ReceiptObject string
	CreatedAt     time.Time
	Splits        []ExpenseSplit
}

// ExpenseSplit is one member's share of an expense. The sum of a given
// expense's split amounts equals the expense amount to within one minor unit.
type ExpenseSplit struct {
	ID        uuid.UUID
	ExpenseID uuid.UUID
	UserID    uuid.UUID
	Amount    money.Amount
	Settled   bool
	SettledAt *time.Time
}

// Stay is a booking of house occupancy for a date range, optionally with
// guests. LinkedExpenseID is the derived guest-fee expense, or uuid.Nil when
// the stay carries no guest fee.
type Stay struct {
	ID              uuid.UUID
	HouseID         uuid.UUID
	UserID          uuid.UUID
	CheckIn         time.Time
	CheckOut        time.Time
	Notes           string
	GuestCount      int
	LinkedExpenseID uuid.UUID
	CreatedAt       time.Time
}

// Nights returns the number of nights between check-in and check-out, rounding
// a partial day up so an overnight stay always counts as at least one night.
func (s Stay) Nights() int {
	d := s.CheckOut.Sub(s.CheckIn)
	n := int(d / (24 * time.Hour))
	if d%(24*time.Hour) > 0 {
		n++
	}
	return n
}

// MemberBalance is the derived net position between a viewing member and one
// counterparty. Net is positive when the counterparty owes the viewer.
type MemberBalance struct {
	UserID  uuid.UUID
	Name    string
	OwesYou money.Amount
	YouOwe  money.Amount
	Net     money.Amount
}

// BalanceSummary aggregates a viewer's position across all counterparties.
type BalanceSummary struct {
	TotalYouOwe     money.Amount
	TotalYouAreOwed money.Amount
	NetBalance      money.Amount
}
