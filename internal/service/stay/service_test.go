package stay_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/alpenhaus/alpenhaus/internal/errs"
	"github.com/alpenhaus/alpenhaus/internal/lodge"
	"github.com/alpenhaus/alpenhaus/internal/service/stay"
	"github.com/alpenhaus/alpenhaus/internal/storage/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type fixture struct {
	store *memory.Store
	svc   stay.Service
	house lodge.House
	admin lodge.User
	bob   lodge.User
}

// newFixture seeds a USD house at $25.00/guest/night with an accepted admin
// and an accepted regular member.
func newFixture(t *testing.T, withAdmin bool) *fixture {
	t.Helper()
	store := memory.New()
	now := time.Now().UTC()
	admin := lodge.User{ID: uuid.New(), Email: "alice@example.com", Name: "Alice", CreatedAt: now}
	bob := lodge.User{ID: uuid.New(), Email: "bob@example.com", Name: "Bob", CreatedAt: now}
	rate, _ := money.NewAmountFromMinorUnits("USD", 2500)
	h := lodge.House{ID: uuid.New(), Name: "Powder Chalet", Currency: "USD", GuestNightlyRate: rate, CreatedAt: now}
	store.SeedUser(admin)
	store.SeedUser(bob)
	store.SeedHouse(h)
	role := lodge.RoleMember
	if withAdmin {
		role = lodge.RoleAdmin
	}
	store.SeedMembership(lodge.Membership{HouseID: h.ID, UserID: admin.ID, Role: role, Status: lodge.StatusAccepted, JoinedAt: now})
	store.SeedMembership(lodge.Membership{HouseID: h.ID, UserID: bob.ID, Role: lodge.RoleMember, Status: lodge.StatusAccepted, JoinedAt: now.Add(time.Minute)})
	return &fixture{
		store: store,
		svc:   stay.New(store, store, nil, testLogger()),
		house: h,
		admin: admin,
		bob:   bob,
	}
}

func day(offset int) time.Time {
	return time.Date(2026, 1, 10+offset, 0, 0, 0, 0, time.UTC)
}

func TestCreate_NoGuestsNoFee(t *testing.T) {
	f := newFixture(t, true)
	st, err := f.svc.Create(context.Background(), f.bob.ID, stay.Input{
		HouseID: f.house.ID, CheckIn: day(0), CheckOut: day(3), GuestCount: 0,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if st.LinkedExpenseID != uuid.Nil {
		t.Fatalf("no guests must not levy a fee")
	}
	if st.Nights() != 3 {
		t.Fatalf("expected 3 nights, got %d", st.Nights())
	}
}

func TestCreate_GuestFeeLinkage(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	// 2 guests x 3 nights x $25.00 = $150.00
	st, err := f.svc.Create(ctx, f.bob.ID, stay.Input{
		HouseID: f.house.ID, CheckIn: day(0), CheckOut: day(3), GuestCount: 2,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if st.LinkedExpenseID == uuid.Nil {
		t.Fatalf("expected linked guest-fee expense")
	}

	e, err := f.store.Expense(ctx, st.LinkedExpenseID)
	if err != nil {
		t.Fatalf("expense: %v", err)
	}
	amount, _ := e.Amount.MinorUnits()
	if amount != 15000 {
		t.Fatalf("fee should be 15000, got %d", amount)
	}
	if e.Category != lodge.CategoryGuestFees {
		t.Fatalf("wrong category %q", e.Category)
	}
	if e.PayerID != f.admin.ID {
		t.Fatalf("fee payer should be the earliest admin")
	}
	if e.CreatorID != f.bob.ID {
		t.Fatalf("fee creator should be the booker")
	}
	if len(e.Splits) != 1 || e.Splits[0].UserID != f.bob.ID {
		t.Fatalf("fee should have one split owned by the booker: %+v", e.Splits)
	}
	spAmount, _ := e.Splits[0].Amount.MinorUnits()
	if spAmount != 15000 {
		t.Fatalf("split amount should equal the fee, got %d", spAmount)
	}
}

func TestCreate_NoAdminAborts(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.Create(context.Background(), f.bob.ID, stay.Input{
		HouseID: f.house.ID, CheckIn: day(0), CheckOut: day(2), GuestCount: 1,
	})
	if !errors.Is(err, stay.ErrNoAdmin) {
		t.Fatalf("expected ErrNoAdmin, got %v", err)
	}
	// The aborted stay must not exist.
	stays, listErr := f.svc.List(context.Background(), f.bob.ID, f.house.ID)
	if listErr != nil {
		t.Fatalf("list: %v", listErr)
	}
	if len(stays) != 0 {
		t.Fatalf("aborted create left a stay behind")
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	cases := []struct {
		name string
		in   stay.Input
	}{
		{"checkout before checkin", stay.Input{HouseID: f.house.ID, CheckIn: day(3), CheckOut: day(0)}},
		{"missing dates", stay.Input{HouseID: f.house.ID}},
		{"negative guests", stay.Input{HouseID: f.house.ID, CheckIn: day(0), CheckOut: day(1), GuestCount: -1}},
		{"too many guests", stay.Input{HouseID: f.house.ID, CheckIn: day(0), CheckOut: day(1), GuestCount: stay.MaxGuests + 1}},
	}
	for _, tc := range cases {
		if _, err := f.svc.Create(ctx, f.bob.ID, tc.in); !errors.Is(err, errs.ErrInvalid) {
			t.Fatalf("%s: expected ErrInvalid, got %v", tc.name, err)
		}
	}

	outsider := uuid.New()
	if _, err := f.svc.Create(ctx, outsider, stay.Input{HouseID: f.house.ID, CheckIn: day(0), CheckOut: day(1)}); !errors.Is(err, stay.ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
}

func TestUpdate_FeeTransitions(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	st, err := f.svc.Create(ctx, f.bob.ID, stay.Input{
		HouseID: f.house.ID, CheckIn: day(0), CheckOut: day(3), GuestCount: 0,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Guests appear: a fee is levied.
	st, err = f.svc.Update(ctx, f.bob.ID, st.ID, stay.Input{
		HouseID: f.house.ID, CheckIn: day(0), CheckOut: day(3), GuestCount: 2,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if st.LinkedExpenseID == uuid.Nil {
		t.Fatalf("expected fee after guests added")
	}
	feeID := st.LinkedExpenseID

	// Fee changes in place and settlement state is preserved.
	e, _ := f.store.Expense(ctx, feeID)
	sp := e.Splits[0]
	now := time.Now().UTC()
	sp.Settled = true
	sp.SettledAt = &now
	if _, err := f.store.UpdateSplit(ctx, sp); err != nil {
		t.Fatalf("settle split: %v", err)
	}
	st, err = f.svc.Update(ctx, f.bob.ID, st.ID, stay.Input{
		HouseID: f.house.ID, CheckIn: day(0), CheckOut: day(4), GuestCount: 2,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if st.LinkedExpenseID != feeID {
		t.Fatalf("in-place fee update must keep the same expense")
	}
	e, _ = f.store.Expense(ctx, feeID)
	amount, _ := e.Amount.MinorUnits()
	if amount != 20000 { // 2 x 4 x 2500
		t.Fatalf("fee should be 20000, got %d", amount)
	}
	if !e.Splits[0].Settled {
		t.Fatalf("in-place fee update must preserve settlement state")
	}

	// Guests drop to zero: the fee is removed and the link cleared.
	st, err = f.svc.Update(ctx, f.bob.ID, st.ID, stay.Input{
		HouseID: f.house.ID, CheckIn: day(0), CheckOut: day(4), GuestCount: 0,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if st.LinkedExpenseID != uuid.Nil {
		t.Fatalf("link should be cleared")
	}
	if _, err := f.store.Expense(ctx, feeID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("fee expense should be deleted, got %v", err)
	}
}

func TestUpdate_BookerOnly(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	st, err := f.svc.Create(ctx, f.bob.ID, stay.Input{
		HouseID: f.house.ID, CheckIn: day(0), CheckOut: day(2),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = f.svc.Update(ctx, f.admin.ID, st.ID, stay.Input{
		HouseID: f.house.ID, CheckIn: day(0), CheckOut: day(3),
	})
	if !errors.Is(err, stay.ErrNotBooker) {
		t.Fatalf("expected ErrNotBooker, got %v", err)
	}
	if err := f.svc.Delete(ctx, f.admin.ID, st.ID); !errors.Is(err, stay.ErrNotBooker) {
		t.Fatalf("expected ErrNotBooker on delete, got %v", err)
	}
}

func TestDelete_RemovesLinkedFee(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	st, err := f.svc.Create(ctx, f.bob.ID, stay.Input{
		HouseID: f.house.ID, CheckIn: day(0), CheckOut: day(2), GuestCount: 1,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	feeID := st.LinkedExpenseID
	if feeID == uuid.Nil {
		t.Fatalf("expected linked fee")
	}
	if err := f.svc.Delete(ctx, f.bob.ID, st.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.store.Stay(ctx, st.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("stay should be gone, got %v", err)
	}
	if _, err := f.store.Expense(ctx, feeID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("linked fee should be gone, got %v", err)
	}
}

func TestCreate_PartialDayCountsAsNight(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	// An 18:00 check-in to a 10:00 check-out the next day is one night.
	checkIn := time.Date(2026, 1, 10, 18, 0, 0, 0, time.UTC)
	checkOut := time.Date(2026, 1, 11, 10, 0, 0, 0, time.UTC)
	st, err := f.svc.Create(ctx, f.bob.ID, stay.Input{
		HouseID: f.house.ID, CheckIn: checkIn, CheckOut: checkOut, GuestCount: 2,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if st.Nights() != 1 {
		t.Fatalf("expected 1 night, got %d", st.Nights())
	}
	if st.LinkedExpenseID == uuid.Nil {
		t.Fatalf("overnight stay with guests must levy a fee")
	}
	fee, err := f.store.Expense(ctx, st.LinkedExpenseID)
	if err != nil {
		t.Fatalf("get fee: %v", err)
	}
	// 2 guests x 1 night x $25.00 = $50.00
	if m, _ := fee.Amount.MinorUnits(); m != 5000 {
		t.Fatalf("expected fee 5000, got %d", m)
	}

	// Three whole days plus a few hours rounds up to four nights.
	late := lodge.Stay{CheckIn: day(0), CheckOut: day(3).Add(4 * time.Hour)}
	if late.Nights() != 4 {
		t.Fatalf("expected 4 nights, got %d", late.Nights())
	}
}

func TestDelete_AfterAdminRemovedFee(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	st, err := f.svc.Create(ctx, f.bob.ID, stay.Input{
		HouseID: f.house.ID, CheckIn: day(0), CheckOut: day(2), GuestCount: 1,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// An admin deletes the guest-fee expense out from under the stay; the
	// store drops the link the way the schema's set null does.
	if err := f.store.DeleteExpense(ctx, st.LinkedExpenseID); err != nil {
		t.Fatalf("delete fee: %v", err)
	}
	got, err := f.store.Stay(ctx, st.ID)
	if err != nil {
		t.Fatalf("get stay: %v", err)
	}
	if got.LinkedExpenseID != uuid.Nil {
		t.Fatalf("link should be cleared, got %s", got.LinkedExpenseID)
	}

	// The booker can still delete their stay.
	if err := f.svc.Delete(ctx, f.bob.ID, st.ID); err != nil {
		t.Fatalf("delete stay: %v", err)
	}
	if _, err := f.store.Stay(ctx, st.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("stay should be gone, got %v", err)
	}
}

// updateFailWriter forces UpdateStay to fail while delegating everything else
// to the memory store.
type updateFailWriter struct {
	*memory.Store
}

func (w updateFailWriter) UpdateStay(context.Context, lodge.Stay) (lodge.Stay, error) {
	return lodge.Stay{}, errors.New("write failed")
}

func TestUpdate_FailedWriteCleansUpNewFee(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	st, err := f.svc.Create(ctx, f.bob.ID, stay.Input{
		HouseID: f.house.ID, CheckIn: day(0), CheckOut: day(2), GuestCount: 0,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	broken := stay.New(f.store, updateFailWriter{f.store}, nil, testLogger())
	_, err = broken.Update(ctx, f.bob.ID, st.ID, stay.Input{
		HouseID: f.house.ID, CheckIn: day(0), CheckOut: day(2), GuestCount: 2,
	})
	if err == nil {
		t.Fatalf("expected update to fail")
	}

	// The fee created for the failed update must not linger.
	expenses, err := f.store.ExpensesByHouse(ctx, f.house.ID)
	if err != nil {
		t.Fatalf("list expenses: %v", err)
	}
	if len(expenses) != 0 {
		t.Fatalf("expected no expenses, got %d", len(expenses))
	}
	got, err := f.store.Stay(ctx, st.ID)
	if err != nil {
		t.Fatalf("get stay: %v", err)
	}
	if got.GuestCount != 0 || got.LinkedExpenseID != uuid.Nil {
		t.Fatalf("stay should be unchanged: %+v", got)
	}
}
