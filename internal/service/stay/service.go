// Package stay manages house-occupancy bookings and the guest-fee expenses
// derived from them. A stay with guests carries a linked guest_fees expense
// payable to the house's earliest-joined admin, kept in sync as the stay
// changes and removed with it.
package stay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/alpenhaus/alpenhaus/internal/errs"
	"github.com/alpenhaus/alpenhaus/internal/lodge"
	"github.com/alpenhaus/alpenhaus/internal/service/expense"
	"github.com/alpenhaus/alpenhaus/internal/split"
)

// MaxGuests bounds the guest count on a single stay.
const MaxGuests = 20

var (
	// ErrNotBooker is returned when someone other than the booking member
	// edits or deletes a stay.
	ErrNotBooker = errors.New("only the booking member can modify this stay")
	// ErrNoAdmin is returned when a guest fee cannot be attributed because the
	// house has no accepted admin. This aborts the stay operation.
	ErrNoAdmin = errors.New("house has no admin to receive guest fees")
	// ErrNotMember mirrors the expense service's membership gate.
	ErrNotMember = expense.ErrNotMember
)

// Repo defines read operations needed by the service.
type Repo interface {
	House(ctx context.Context, houseID uuid.UUID) (lodge.House, error)
	Membership(ctx context.Context, houseID, userID uuid.UUID) (lodge.Membership, error)
	Memberships(ctx context.Context, houseID uuid.UUID) ([]lodge.Membership, error)
	Stay(ctx context.Context, stayID uuid.UUID) (lodge.Stay, error)
	StaysByHouse(ctx context.Context, houseID uuid.UUID) ([]lodge.Stay, error)
	Expense(ctx context.Context, expenseID uuid.UUID) (lodge.Expense, error)
}

// Writer defines write operations needed by the service. The expense methods
// mirror expense.Writer so one store serves both services.
type Writer interface {
	CreateStay(ctx context.Context, st lodge.Stay) (lodge.Stay, error)
	UpdateStay(ctx context.Context, st lodge.Stay) (lodge.Stay, error)
	DeleteStay(ctx context.Context, stayID uuid.UUID) error
	CreateExpense(ctx context.Context, e lodge.Expense) (lodge.Expense, error)
	UpdateExpense(ctx context.Context, e lodge.Expense) (lodge.Expense, error)
	UpdateSplit(ctx context.Context, s lodge.ExpenseSplit) (lodge.ExpenseSplit, error)
	DeleteExpense(ctx context.Context, expenseID uuid.UUID) error
}

// Input carries stay fields for create and update.
type Input struct {
	HouseID    uuid.UUID
	CheckIn    time.Time
	CheckOut   time.Time
	Notes      string
	GuestCount int
}

// Service exposes stay operations. Every mutation transits the guest-fee
// linkage.
type Service interface {
	Create(ctx context.Context, callerID uuid.UUID, in Input) (lodge.Stay, error)
	Update(ctx context.Context, callerID, stayID uuid.UUID, in Input) (lodge.Stay, error)
	Delete(ctx context.Context, callerID, stayID uuid.UUID) error
	List(ctx context.Context, callerID, houseID uuid.UUID) ([]lodge.Stay, error)
}

type service struct {
	repo   Repo
	writer Writer
	cache  expense.BalanceCache
	log    *slog.Logger
}

// New constructs the stay service. cache may be nil.
func New(repo Repo, writer Writer, cache expense.BalanceCache, log *slog.Logger) Service {
	return &service{repo: repo, writer: writer, cache: cache, log: log}
}

func validateInput(in Input) error {
	if in.CheckIn.IsZero() || in.CheckOut.IsZero() {
		return fmt.Errorf("%w: check-in and check-out are required", errs.ErrInvalid)
	}
	if in.CheckOut.Before(in.CheckIn) {
		return fmt.Errorf("%w: check-out must not be before check-in", errs.ErrInvalid)
	}
	if in.GuestCount < 0 || in.GuestCount > MaxGuests {
		return fmt.Errorf("%w: guest count must be between 0 and %d", errs.ErrInvalid, MaxGuests)
	}
	return nil
}

func (s *service) Create(ctx context.Context, callerID uuid.UUID, in Input) (lodge.Stay, error) {
	if callerID == uuid.Nil || in.HouseID == uuid.Nil {
		return lodge.Stay{}, errs.ErrInvalid
	}
	m, err := s.repo.Membership(ctx, in.HouseID, callerID)
	if err != nil || m.Status != lodge.StatusAccepted {
		return lodge.Stay{}, ErrNotMember
	}
	if err := validateInput(in); err != nil {
		return lodge.Stay{}, err
	}
	house, err := s.repo.House(ctx, in.HouseID)
	if err != nil {
		return lodge.Stay{}, err
	}

	st := lodge.Stay{
		ID:         uuid.New(),
		HouseID:    in.HouseID,
		UserID:     callerID,
		CheckIn:    in.CheckIn,
		CheckOut:   in.CheckOut,
		Notes:      in.Notes,
		GuestCount: in.GuestCount,
		CreatedAt:  time.Now().UTC(),
	}

	fee := feeMinor(house, st)
	if fee > 0 {
		e, err := s.createGuestFee(ctx, house, st, fee)
		if err != nil {
			return lodge.Stay{}, err
		}
		st.LinkedExpenseID = e.ID
	}

	created, err := s.writer.CreateStay(ctx, st)
	if err != nil {
		// Compensate: do not leave a guest fee with no stay behind it.
		if st.LinkedExpenseID != uuid.Nil {
			if delErr := s.writer.DeleteExpense(ctx, st.LinkedExpenseID); delErr != nil {
				s.log.Warn("guest fee cleanup failed", "expense_id", st.LinkedExpenseID, "err", delErr)
			}
		}
		return lodge.Stay{}, err
	}
	s.invalidate(ctx, st.HouseID)
	return created, nil
}

// Update re-derives the guest-fee linkage. Four cases: fee appears, fee
// disappears, fee changes in place (settlement state preserved), or no fee
// before and after.
func (s *service) Update(ctx context.Context, callerID, stayID uuid.UUID, in Input) (lodge.Stay, error) {
	st, err := s.repo.Stay(ctx, stayID)
	if err != nil {
		return lodge.Stay{}, err
	}
	if st.UserID != callerID {
		return lodge.Stay{}, ErrNotBooker
	}
	if err := validateInput(in); err != nil {
		return lodge.Stay{}, err
	}
	house, err := s.repo.House(ctx, st.HouseID)
	if err != nil {
		return lodge.Stay{}, err
	}

	st.CheckIn = in.CheckIn
	st.CheckOut = in.CheckOut
	st.Notes = in.Notes
	st.GuestCount = in.GuestCount

	fee := feeMinor(house, st)
	var newFee uuid.UUID
	switch {
	case fee > 0 && st.LinkedExpenseID == uuid.Nil:
		e, err := s.createGuestFee(ctx, house, st, fee)
		if err != nil {
			return lodge.Stay{}, err
		}
		st.LinkedExpenseID = e.ID
		newFee = e.ID
	case fee == 0 && st.LinkedExpenseID != uuid.Nil:
		if err := s.writer.DeleteExpense(ctx, st.LinkedExpenseID); err != nil {
			return lodge.Stay{}, err
		}
		st.LinkedExpenseID = uuid.Nil
	case fee > 0:
		if err := s.updateGuestFee(ctx, house, st, fee); err != nil {
			return lodge.Stay{}, err
		}
	}

	updated, err := s.writer.UpdateStay(ctx, st)
	if err != nil {
		// Compensate: do not leave a guest fee with no stay update behind it.
		if newFee != uuid.Nil {
			if delErr := s.writer.DeleteExpense(ctx, newFee); delErr != nil {
				s.log.Warn("guest fee cleanup failed", "expense_id", newFee, "err", delErr)
			}
		}
		return lodge.Stay{}, err
	}
	s.invalidate(ctx, st.HouseID)
	return updated, nil
}

func (s *service) Delete(ctx context.Context, callerID, stayID uuid.UUID) error {
	st, err := s.repo.Stay(ctx, stayID)
	if err != nil {
		return err
	}
	if st.UserID != callerID {
		return ErrNotBooker
	}
	if st.LinkedExpenseID != uuid.Nil {
		if err := s.writer.DeleteExpense(ctx, st.LinkedExpenseID); err != nil {
			return err
		}
	}
	if err := s.writer.DeleteStay(ctx, stayID); err != nil {
		return err
	}
	s.invalidate(ctx, st.HouseID)
	return nil
}

func (s *service) List(ctx context.Context, callerID, houseID uuid.UUID) ([]lodge.Stay, error) {
	m, err := s.repo.Membership(ctx, houseID, callerID)
	if err != nil || m.Status != lodge.StatusAccepted {
		return nil, ErrNotMember
	}
	return s.repo.StaysByHouse(ctx, houseID)
}

// feeMinor computes guest_count x nights x nightly rate in minor units.
func feeMinor(house lodge.House, st lodge.Stay) int64 {
	if st.GuestCount == 0 {
		return 0
	}
	nights := st.Nights()
	if nights <= 0 {
		return 0
	}
	rate, _ := house.GuestNightlyRate.MinorUnits()
	return int64(st.GuestCount) * int64(nights) * rate
}

// earliestAdmin returns the accepted admin with the oldest JoinedAt.
func (s *service) earliestAdmin(ctx context.Context, houseID uuid.UUID) (uuid.UUID, error) {
	memberships, err := s.repo.Memberships(ctx, houseID)
	if err != nil {
		return uuid.Nil, err
	}
	var admin uuid.UUID
	var joined time.Time
	for _, m := range memberships {
		if m.Role != lodge.RoleAdmin || m.Status != lodge.StatusAccepted {
			continue
		}
		if admin == uuid.Nil || m.JoinedAt.Before(joined) {
			admin = m.UserID
			joined = m.JoinedAt
		}
	}
	if admin == uuid.Nil {
		return uuid.Nil, ErrNoAdmin
	}
	return admin, nil
}

func guestFeeDescription(house lodge.House, st lodge.Stay) string {
	rate, _ := house.GuestNightlyRate.MinorUnits()
	return fmt.Sprintf("%d guest(s) x %d night(s) @ %s/night, stay starting %s",
		st.GuestCount, st.Nights(), split.FormatMinor(rate), st.CheckIn.Format("2006-01-02"))
}

// createGuestFee levies the fee: payer is the house admin, creator is the
// booker, and the single split is owned by the booker for the full amount.
func (s *service) createGuestFee(ctx context.Context, house lodge.House, st lodge.Stay, fee int64) (lodge.Expense, error) {
	admin, err := s.earliestAdmin(ctx, house.ID)
	if err != nil {
		return lodge.Expense{}, err
	}
	amount, err := money.NewAmountFromMinorUnits(house.Currency, fee)
	if err != nil {
		return lodge.Expense{}, err
	}
	expenseID := uuid.New()
	e := lodge.Expense{
		ID:          expenseID,
		HouseID:     house.ID,
		Title:       "Guest fees",
		Description: guestFeeDescription(house, st),
		Amount:      amount,
		Category:    lodge.CategoryGuestFees,
		Date:        st.CheckIn,
		PayerID:     admin,
		CreatorID:   st.UserID,
		CreatedAt:   time.Now().UTC(),
		Splits: []lodge.ExpenseSplit{{
			ID:        uuid.New(),
			ExpenseID: expenseID,
			UserID:    st.UserID,
			Amount:    amount,
		}},
	}
	return s.writer.CreateExpense(ctx, e)
}

// updateGuestFee adjusts the linked expense and its single split in place,
// preserving the split's settlement state.
func (s *service) updateGuestFee(ctx context.Context, house lodge.House, st lodge.Stay, fee int64) error {
	e, err := s.repo.Expense(ctx, st.LinkedExpenseID)
	if err != nil {
		return err
	}
	amount, err := money.NewAmountFromMinorUnits(house.Currency, fee)
	if err != nil {
		return err
	}
	e.Amount = amount
	e.Date = st.CheckIn
	e.Description = guestFeeDescription(house, st)
	if _, err := s.writer.UpdateExpense(ctx, e); err != nil {
		return err
	}
	if len(e.Splits) != 1 {
		return fmt.Errorf("guest fee %s has %d splits, want 1", e.ID, len(e.Splits))
	}
	sp := e.Splits[0]
	sp.Amount = amount
	_, err = s.writer.UpdateSplit(ctx, sp)
	return err
}

func (s *service) invalidate(ctx context.Context, houseID uuid.UUID) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, houseID)
	}
}
