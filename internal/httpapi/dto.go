package httpapi

import (
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/alpenhaus/alpenhaus/internal/lodge"
	"github.com/alpenhaus/alpenhaus/internal/service/expense"
	"github.com/alpenhaus/alpenhaus/internal/service/house"
	"github.com/alpenhaus/alpenhaus/internal/split"
)

// Auth

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func toUserResponse(u lodge.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Name: u.Name, CreatedAt: u.CreatedAt}
}

// Houses

type postHouseRequest struct {
	Name                  string `json:"name"`
	Currency              string `json:"currency"`
	GuestNightlyRateMinor int64  `json:"guest_nightly_rate_minor"`
}

type houseResponse struct {
	ID                    uuid.UUID `json:"id"`
	Name                  string    `json:"name"`
	Currency              string    `json:"currency"`
	GuestNightlyRateMinor int64     `json:"guest_nightly_rate_minor"`
	GuestNightlyRate      string    `json:"guest_nightly_rate"`
	CreatedAt             time.Time `json:"created_at"`
}

func toHouseResponse(h lodge.House) houseResponse {
	rate, _ := h.GuestNightlyRate.MinorUnits()
	return houseResponse{
		ID:                    h.ID,
		Name:                  h.Name,
		Currency:              h.Currency,
		GuestNightlyRateMinor: rate,
		GuestNightlyRate:      split.FormatMinor(rate),
		CreatedAt:             h.CreatedAt,
	}
}

type memberResponse struct {
	UserID   uuid.UUID          `json:"user_id"`
	Email    string             `json:"email"`
	Name     string             `json:"name"`
	Role     lodge.Role         `json:"role"`
	Status   lodge.MemberStatus `json:"status"`
	JoinedAt time.Time          `json:"joined_at"`
}

func toMemberResponse(m house.Member) memberResponse {
	return memberResponse{
		UserID:   m.User.ID,
		Email:    m.User.Email,
		Name:     m.User.Name,
		Role:     m.Membership.Role,
		Status:   m.Membership.Status,
		JoinedAt: m.Membership.JoinedAt,
	}
}

type inviteRequest struct {
	Email string `json:"email"`
}

type membershipResponse struct {
	HouseID  uuid.UUID          `json:"house_id"`
	UserID   uuid.UUID          `json:"user_id"`
	Role     lodge.Role         `json:"role"`
	Status   lodge.MemberStatus `json:"status"`
	JoinedAt time.Time          `json:"joined_at"`
}

func toMembershipResponse(m lodge.Membership) membershipResponse {
	return membershipResponse{HouseID: m.HouseID, UserID: m.UserID, Role: m.Role, Status: m.Status, JoinedAt: m.JoinedAt}
}

// Expenses

type splitInputDTO struct {
	UserID      uuid.UUID `json:"user_id"`
	AmountMinor int64     `json:"amount_minor"`
}

type postExpenseRequest struct {
	HouseID     uuid.UUID         `json:"house_id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	AmountMinor int64             `json:"amount_minor"`
	Category    lodge.Category    `json:"category"`
	Date        time.Time         `json:"date"`
	SplitMode   expense.SplitMode `json:"split_mode"`
	Members     []uuid.UUID       `json:"members,omitempty"`
	Splits      []splitInputDTO   `json:"splits,omitempty"`
}

type updateExpenseRequest struct {
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	AmountMinor int64             `json:"amount_minor"`
	Category    lodge.Category    `json:"category"`
	Date        time.Time         `json:"date"`
	SplitMode   expense.SplitMode `json:"split_mode,omitempty"`
	Members     []uuid.UUID       `json:"members,omitempty"`
	Splits      []splitInputDTO   `json:"splits,omitempty"`
}

type splitResponse struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	AmountMinor int64      `json:"amount_minor"`
	Amount      string     `json:"amount"`
	Settled     bool       `json:"settled"`
	SettledAt   *time.Time `json:"settled_at,omitempty"`
}

type expenseResponse struct {
	ID          uuid.UUID       `json:"id"`
	HouseID     uuid.UUID       `json:"house_id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	AmountMinor int64           `json:"amount_minor"`
	Amount      string          `json:"amount"`
	Currency    string          `json:"currency"`
	Category    lodge.Category  `json:"category"`
	Date        time.Time       `json:"date"`
	PayerID     uuid.UUID       `json:"payer_id"`
	CreatorID   uuid.UUID       `json:"creator_id"`
	HasReceipt  bool            `json:"has_receipt"`
	CreatedAt   time.Time       `json:"created_at"`
	Splits      []splitResponse `json:"splits"`
}

func toExpenseResponse(e lodge.Expense) expenseResponse {
	amountMinor, _ := e.Amount.MinorUnits()
	resp := expenseResponse{
		ID:          e.ID,
		HouseID:     e.HouseID,
		Title:       e.Title,
		Description: e.Description,
		AmountMinor: amountMinor,
		Amount:      split.FormatMinor(amountMinor),
		Currency:    e.Amount.Curr().Code(),
		Category:    e.Category,
		Date:        e.Date,
		PayerID:     e.PayerID,
		CreatorID:   e.CreatorID,
		HasReceipt:  e.ReceiptObject != "",
		CreatedAt:   e.CreatedAt,
		Splits:      make([]splitResponse, 0, len(e.Splits)),
	}
	for _, sp := range e.Splits {
		resp.Splits = append(resp.Splits, toSplitResponse(sp))
	}
	return resp
}

func toSplitResponse(sp lodge.ExpenseSplit) splitResponse {
	m, _ := sp.Amount.MinorUnits()
	return splitResponse{
		ID:          sp.ID,
		UserID:      sp.UserID,
		AmountMinor: m,
		Amount:      split.FormatMinor(m),
		Settled:     sp.Settled,
		SettledAt:   sp.SettledAt,
	}
}

// listExpensesResponse wraps a page of expenses.
type listExpensesResponse struct {
	Items   []expenseResponse `json:"items"`
	HasMore bool              `json:"has_more"`
}

type settleAllRequest struct {
	CounterpartyID uuid.UUID `json:"counterparty_id"`
}

type settleAllResponse struct {
	Settled int `json:"settled"`
}

// Balances

type balanceEntry struct {
	UserID       uuid.UUID `json:"user_id"`
	Name         string    `json:"name"`
	OwesYouMinor int64     `json:"owes_you_minor"`
	YouOweMinor  int64     `json:"you_owe_minor"`
	NetMinor     int64     `json:"net_minor"`
	Net          string    `json:"net"`
}

type balancesResponse struct {
	Members              []balanceEntry `json:"members"`
	TotalYouOweMinor     int64          `json:"total_you_owe_minor"`
	TotalYouAreOwedMinor int64          `json:"total_you_are_owed_minor"`
	NetBalanceMinor      int64          `json:"net_balance_minor"`
	NetBalance           string         `json:"net_balance"`
}

func toBalancesResponse(balances []lodge.MemberBalance, summary lodge.BalanceSummary) balancesResponse {
	resp := balancesResponse{Members: make([]balanceEntry, 0, len(balances))}
	for _, b := range balances {
		owesYou := minor(b.OwesYou)
		youOwe := minor(b.YouOwe)
		net := minor(b.Net)
		resp.Members = append(resp.Members, balanceEntry{
			UserID:       b.UserID,
			Name:         b.Name,
			OwesYouMinor: owesYou,
			YouOweMinor:  youOwe,
			NetMinor:     net,
			Net:          split.FormatMinor(net),
		})
	}
	resp.TotalYouOweMinor = minor(summary.TotalYouOwe)
	resp.TotalYouAreOwedMinor = minor(summary.TotalYouAreOwed)
	resp.NetBalanceMinor = minor(summary.NetBalance)
	resp.NetBalance = split.FormatMinor(resp.NetBalanceMinor)
	return resp
}

func minor(a money.Amount) int64 {
	v, _ := a.MinorUnits()
	return v
}

// Stays

type stayRequest struct {
	HouseID    uuid.UUID `json:"house_id"`
	CheckIn    time.Time `json:"check_in"`
	CheckOut   time.Time `json:"check_out"`
	Notes      string    `json:"notes,omitempty"`
	GuestCount int       `json:"guest_count"`
}

type stayResponse struct {
	ID              uuid.UUID  `json:"id"`
	HouseID         uuid.UUID  `json:"house_id"`
	UserID          uuid.UUID  `json:"user_id"`
	CheckIn         time.Time  `json:"check_in"`
	CheckOut        time.Time  `json:"check_out"`
	Notes           string     `json:"notes,omitempty"`
	GuestCount      int        `json:"guest_count"`
	Nights          int        `json:"nights"`
	LinkedExpenseID *uuid.UUID `json:"linked_expense_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toStayResponse(st lodge.Stay) stayResponse {
	resp := stayResponse{
		ID:         st.ID,
		HouseID:    st.HouseID,
		UserID:     st.UserID,
		CheckIn:    st.CheckIn,
		CheckOut:   st.CheckOut,
		Notes:      st.Notes,
		GuestCount: st.GuestCount,
		Nights:     st.Nights(),
		CreatedAt:  st.CreatedAt,
	}
	if st.LinkedExpenseID != uuid.Nil {
		id := st.LinkedExpenseID
		resp.LinkedExpenseID = &id
	}
	return resp
}
