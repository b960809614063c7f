package expense_test

import (
	"bytes"
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
	"github.com/alpenhaus/alpenhaus/internal/receipt"
	"github.com/alpenhaus/alpenhaus/internal/service/expense"
	"github.com/alpenhaus/alpenhaus/internal/storage/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type fixture struct {
	store *memory.Store
	svc   expense.Service
	house lodge.House
	alice lodge.User // admin, accepted
	bob   lodge.User // member, accepted
	carol lodge.User // member, pending invite
}

func newFixture(t *testing.T, opts ...expense.Option) *fixture {
	t.Helper()
	store := memory.New()
	now := time.Now().UTC()
	alice := lodge.User{ID: uuid.New(), Email: "alice@example.com", Name: "Alice", CreatedAt: now}
	bob := lodge.User{ID: uuid.New(), Email: "bob@example.com", Name: "Bob", CreatedAt: now}
	carol := lodge.User{ID: uuid.New(), Email: "carol@example.com", Name: "Carol", CreatedAt: now}
	rate, _ := money.NewAmountFromMinorUnits("USD", 2500)
	h := lodge.House{ID: uuid.New(), Name: "Powder Chalet", Currency: "USD", GuestNightlyRate: rate, CreatedAt: now}
	store.SeedUser(alice)
	store.SeedUser(bob)
	store.SeedUser(carol)
	store.SeedHouse(h)
	store.SeedMembership(lodge.Membership{HouseID: h.ID, UserID: alice.ID, Role: lodge.RoleAdmin, Status: lodge.StatusAccepted, JoinedAt: now})
	store.SeedMembership(lodge.Membership{HouseID: h.ID, UserID: bob.ID, Role: lodge.RoleMember, Status: lodge.StatusAccepted, JoinedAt: now.Add(time.Minute)})
	store.SeedMembership(lodge.Membership{HouseID: h.ID, UserID: carol.ID, Role: lodge.RoleMember, Status: lodge.StatusPending, JoinedAt: now.Add(2 * time.Minute)})
	return &fixture{
		store: store,
		svc:   expense.New(store, store, testLogger(), opts...),
		house: h,
		alice: alice,
		bob:   bob,
		carol: carol,
	}
}

func (f *fixture) createEven(t *testing.T, payer uuid.UUID, amountMinor int64, members ...uuid.UUID) lodge.Expense {
	t.Helper()
	e, err := f.svc.Create(context.Background(), payer, expense.CreateInput{
		HouseID:     f.house.ID,
		Title:       "Groceries run",
		AmountMinor: amountMinor,
		Category:    lodge.CategoryGroceries,
		Date:        time.Now().UTC(),
		SplitMode:   expense.SplitModeEven,
		Members:     members,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return e
}

func TestCreate_EvenSplitResidualToFirst(t *testing.T) {
	f := newFixture(t)
	e := f.createEven(t, f.alice.ID, 10000, f.alice.ID, f.bob.ID)

	if e.PayerID != f.alice.ID || e.CreatorID != f.alice.ID {
		t.Fatalf("payer/creator should be the caller: %+v", e)
	}
	if len(e.Splits) != 2 {
		t.Fatalf("expected 2 splits, got %d", len(e.Splits))
	}
	var total int64
	for _, sp := range e.Splits {
		m, _ := sp.Amount.MinorUnits()
		total += m
		if sp.Settled {
			t.Fatalf("new split must be unsettled")
		}
	}
	if total != 10000 {
		t.Fatalf("splits sum %d, want 10000", total)
	}

	// Odd amount: residual minor unit goes to the first listed member.
	odd := f.createEven(t, f.alice.ID, 10001, f.alice.ID, f.bob.ID)
	first, _ := odd.Splits[0].Amount.MinorUnits()
	second, _ := odd.Splits[1].Amount.MinorUnits()
	if first != 5001 || second != 5000 {
		t.Fatalf("residual should land on first member: got %d/%d", first, second)
	}
}

func TestCreate_MembershipGates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Pending member cannot create.
	_, err := f.svc.Create(ctx, f.carol.ID, expense.CreateInput{
		HouseID: f.house.ID, Title: "x", AmountMinor: 100, Category: lodge.CategoryOther,
		Date: time.Now(), SplitMode: expense.SplitModeEven, Members: []uuid.UUID{f.carol.ID},
	})
	if !errors.Is(err, expense.ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}

	// Pending member cannot appear in a split.
	_, err = f.svc.Create(ctx, f.alice.ID, expense.CreateInput{
		HouseID: f.house.ID, Title: "x", AmountMinor: 100, Category: lodge.CategoryOther,
		Date: time.Now(), SplitMode: expense.SplitModeEven, Members: []uuid.UUID{f.alice.ID, f.carol.ID},
	})
	if !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for pending split member, got %v", err)
	}

	// Duplicate split member is rejected.
	_, err = f.svc.Create(ctx, f.alice.ID, expense.CreateInput{
		HouseID: f.house.ID, Title: "x", AmountMinor: 100, Category: lodge.CategoryOther,
		Date: time.Now(), SplitMode: expense.SplitModeCustom,
		Splits: []expense.SplitInput{
			{UserID: f.alice.ID, AmountMinor: 50},
			{UserID: f.alice.ID, AmountMinor: 50},
		},
	})
	if !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for duplicate member, got %v", err)
	}
}

func TestCreate_CustomSplitSum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Off by more than one minor unit: rejected.
	_, err := f.svc.Create(ctx, f.alice.ID, expense.CreateInput{
		HouseID: f.house.ID, Title: "Dinner", AmountMinor: 10000, Category: lodge.CategoryGroceries,
		Date: time.Now(), SplitMode: expense.SplitModeCustom,
		Splits: []expense.SplitInput{
			{UserID: f.alice.ID, AmountMinor: 5000},
			{UserID: f.bob.ID, AmountMinor: 4000},
		},
	})
	if !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for bad sum, got %v", err)
	}

	// Off by exactly one minor unit: tolerated.
	e, err := f.svc.Create(ctx, f.alice.ID, expense.CreateInput{
		HouseID: f.house.ID, Title: "Dinner", AmountMinor: 10000, Category: lodge.CategoryGroceries,
		Date: time.Now(), SplitMode: expense.SplitModeCustom,
		Splits: []expense.SplitInput{
			{UserID: f.alice.ID, AmountMinor: 5000},
			{UserID: f.bob.ID, AmountMinor: 4999},
		},
	})
	if err != nil {
		t.Fatalf("one-minor-unit drift should pass: %v", err)
	}
	if len(e.Splits) != 2 {
		t.Fatalf("expected 2 splits, got %d", len(e.Splits))
	}
}

func TestUpdate_CreatorOnlyAndSettlementReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.createEven(t, f.alice.ID, 10000, f.alice.ID, f.bob.ID)

	in := expense.UpdateInput{
		Title: "Groceries (edited)", AmountMinor: 10000, Category: lodge.CategoryGroceries,
		Date: time.Now(), SplitMode: expense.SplitModeEven, Members: []uuid.UUID{f.alice.ID, f.bob.ID},
	}
	if _, err := f.svc.Update(ctx, f.bob.ID, e.ID, in); !errors.Is(err, expense.ErrNotCreator) {
		t.Fatalf("expected ErrNotCreator, got %v", err)
	}

	// Settle bob's split, then replace the splits: settlement must reset.
	var bobSplit lodge.ExpenseSplit
	for _, sp := range e.Splits {
		if sp.UserID == f.bob.ID {
			bobSplit = sp
		}
	}
	if _, err := f.svc.Settle(ctx, f.alice.ID, bobSplit.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}
	updated, err := f.svc.Update(ctx, f.alice.ID, e.ID, in)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	for _, sp := range updated.Splits {
		if sp.Settled || sp.SettledAt != nil {
			t.Fatalf("replaced splits must be unsettled: %+v", sp)
		}
	}
	if updated.Title != "Groceries (edited)" {
		t.Fatalf("title not updated: %q", updated.Title)
	}
}

func TestUpdate_KeepSplitsRevalidatesTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.createEven(t, f.alice.ID, 10000, f.alice.ID, f.bob.ID)

	// Changing the amount without touching splits breaks the sum invariant.
	_, err := f.svc.Update(ctx, f.alice.ID, e.ID, expense.UpdateInput{
		Title: e.Title, AmountMinor: 20000, Category: e.Category, Date: e.Date,
	})
	if !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}

	// Same total keeps the existing splits and their settlement state.
	sp := e.Splits[0]
	if _, err := f.svc.Settle(ctx, f.alice.ID, sp.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}
	updated, err := f.svc.Update(ctx, f.alice.ID, e.ID, expense.UpdateInput{
		Title: "Retitled", AmountMinor: 10000, Category: e.Category, Date: e.Date,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	var stillSettled bool
	for _, got := range updated.Splits {
		if got.ID == sp.ID && got.Settled {
			stillSettled = true
		}
	}
	if !stillSettled {
		t.Fatalf("header-only update must preserve settlement state")
	}
}

func TestDelete_CreatorOrAdminForGuestFees(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.createEven(t, f.bob.ID, 5000, f.alice.ID, f.bob.ID)

	// A non-creator cannot delete a regular expense, even an admin.
	if err := f.svc.Delete(ctx, f.alice.ID, e.ID); !errors.Is(err, expense.ErrNotDeletable) {
		t.Fatalf("expected ErrNotDeletable, got %v", err)
	}
	if err := f.svc.Delete(ctx, f.bob.ID, e.ID); err != nil {
		t.Fatalf("creator delete: %v", err)
	}
	if _, err := f.svc.Get(ctx, f.bob.ID, e.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	// Guest fees may be removed by an accepted admin.
	fee, err := f.svc.Create(ctx, f.bob.ID, expense.CreateInput{
		HouseID: f.house.ID, Title: "Guest fees", AmountMinor: 7500, Category: lodge.CategoryGuestFees,
		Date: time.Now(), SplitMode: expense.SplitModeEven, Members: []uuid.UUID{f.bob.ID},
	})
	if err != nil {
		t.Fatalf("create guest fee: %v", err)
	}
	if err := f.svc.Delete(ctx, f.alice.ID, fee.ID); err != nil {
		t.Fatalf("admin should delete guest fees: %v", err)
	}
}

func TestList_PaginationAndCategoryFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.createEven(t, f.alice.ID, int64(1000*(i+1)), f.alice.ID, f.bob.ID)
	}
	_, err := f.svc.Create(ctx, f.alice.ID, expense.CreateInput{
		HouseID: f.house.ID, Title: "Lift passes", AmountMinor: 30000, Category: lodge.CategoryEntertainment,
		Date: time.Now(), SplitMode: expense.SplitModeEven, Members: []uuid.UUID{f.alice.ID, f.bob.ID},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	page, hasMore, err := f.svc.List(ctx, f.bob.ID, expense.ListQuery{HouseID: f.house.ID, Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || !hasMore {
		t.Fatalf("expected 2 items with more, got %d hasMore=%v", len(page), hasMore)
	}

	rest, hasMore, err := f.svc.List(ctx, f.bob.ID, expense.ListQuery{HouseID: f.house.ID, Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("list offset: %v", err)
	}
	if len(rest) != 2 || hasMore {
		t.Fatalf("expected final page of 2, got %d hasMore=%v", len(rest), hasMore)
	}

	filtered, _, err := f.svc.List(ctx, f.bob.ID, expense.ListQuery{HouseID: f.house.ID, Category: lodge.CategoryEntertainment})
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Category != lodge.CategoryEntertainment {
		t.Fatalf("category filter failed: %+v", filtered)
	}

	// Non-members cannot list.
	if _, _, err := f.svc.List(ctx, f.carol.ID, expense.ListQuery{HouseID: f.house.ID}); !errors.Is(err, expense.ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
}

func TestSettle_PayerOnlyAndIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.createEven(t, f.alice.ID, 10000, f.alice.ID, f.bob.ID)
	var bobSplit lodge.ExpenseSplit
	for _, sp := range e.Splits {
		if sp.UserID == f.bob.ID {
			bobSplit = sp
		}
	}

	if _, err := f.svc.Settle(ctx, f.bob.ID, bobSplit.ID); !errors.Is(err, expense.ErrNotPayer) {
		t.Fatalf("expected ErrNotPayer, got %v", err)
	}

	settled, err := f.svc.Settle(ctx, f.alice.ID, bobSplit.ID)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !settled.Settled || settled.SettledAt == nil {
		t.Fatalf("split not settled: %+v", settled)
	}

	// Second settle is a no-op with the original timestamp.
	again, err := f.svc.Settle(ctx, f.alice.ID, bobSplit.ID)
	if err != nil {
		t.Fatalf("settle again: %v", err)
	}
	if !again.SettledAt.Equal(*settled.SettledAt) {
		t.Fatalf("idempotent settle changed timestamp")
	}

	unsettled, err := f.svc.Unsettle(ctx, f.alice.ID, bobSplit.ID)
	if err != nil {
		t.Fatalf("unsettle: %v", err)
	}
	if unsettled.Settled || unsettled.SettledAt != nil {
		t.Fatalf("split still settled: %+v", unsettled)
	}
	// Unsettle on an unsettled split is a no-op too.
	if _, err := f.svc.Unsettle(ctx, f.alice.ID, bobSplit.ID); err != nil {
		t.Fatalf("idempotent unsettle: %v", err)
	}
}

func TestSettleAllWith(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e1 := f.createEven(t, f.alice.ID, 10000, f.alice.ID, f.bob.ID)
	f.createEven(t, f.alice.ID, 6000, f.alice.ID, f.bob.ID)
	f.createEven(t, f.bob.ID, 4000, f.alice.ID, f.bob.ID) // bob paid; not alice's to settle

	// Pre-settle one of bob's splits so only one remains.
	for _, sp := range e1.Splits {
		if sp.UserID == f.bob.ID {
			if _, err := f.svc.Settle(ctx, f.alice.ID, sp.ID); err != nil {
				t.Fatalf("settle: %v", err)
			}
		}
	}

	n, err := f.svc.SettleAllWith(ctx, f.alice.ID, f.house.ID, f.bob.ID)
	if err != nil {
		t.Fatalf("settle all: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 newly settled split, got %d", n)
	}

	// Everything of bob's on alice-paid expenses is now settled.
	all, _, err := f.svc.List(ctx, f.alice.ID, expense.ListQuery{HouseID: f.house.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, e := range all {
		for _, sp := range e.Splits {
			if e.PayerID == f.alice.ID && sp.UserID == f.bob.ID && !sp.Settled {
				t.Fatalf("split %s left unsettled", sp.ID)
			}
		}
	}

	// Nothing left to settle.
	n, err = f.svc.SettleAllWith(ctx, f.alice.ID, f.house.ID, f.bob.ID)
	if err != nil || n != 0 {
		t.Fatalf("expected 0, got %d err=%v", n, err)
	}
}

func TestBalances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.createEven(t, f.alice.ID, 10000, f.alice.ID, f.bob.ID)

	balances, summary, err := f.svc.Balances(ctx, f.alice.ID, f.house.ID)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if len(balances) != 1 || balances[0].UserID != f.bob.ID {
		t.Fatalf("expected one counterparty (bob), got %+v", balances)
	}
	net, _ := balances[0].Net.MinorUnits()
	if net != 5000 {
		t.Fatalf("bob should owe alice 5000, got %d", net)
	}
	owed, _ := summary.TotalYouAreOwed.MinorUnits()
	if owed != 5000 {
		t.Fatalf("summary owed 5000, got %d", owed)
	}

	// Settling removes the debt from the balance view.
	for _, sp := range e.Splits {
		if sp.UserID == f.bob.ID {
			if _, err := f.svc.Settle(ctx, f.alice.ID, sp.ID); err != nil {
				t.Fatalf("settle: %v", err)
			}
		}
	}
	balances, _, err = f.svc.Balances(ctx, f.alice.ID, f.house.ID)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	net, _ = balances[0].Net.MinorUnits()
	if net != 0 {
		t.Fatalf("after settlement net should be 0, got %d", net)
	}
}

// fakeCache records cache traffic for assertions.
type fakeCache struct {
	data        map[string][]lodge.MemberBalance
	sums        map[string]lodge.BalanceSummary
	hits, sets  int
	invalidates int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string][]lodge.MemberBalance{}, sums: map[string]lodge.BalanceSummary{}}
}

func (c *fakeCache) key(houseID, viewer uuid.UUID) string { return houseID.String() + "/" + viewer.String() }

func (c *fakeCache) Get(_ context.Context, houseID, viewer uuid.UUID) ([]lodge.MemberBalance, lodge.BalanceSummary, bool) {
	b, ok := c.data[c.key(houseID, viewer)]
	if ok {
		c.hits++
	}
	return b, c.sums[c.key(houseID, viewer)], ok
}

func (c *fakeCache) Set(_ context.Context, houseID, viewer uuid.UUID, balances []lodge.MemberBalance, summary lodge.BalanceSummary) {
	c.sets++
	c.data[c.key(houseID, viewer)] = balances
	c.sums[c.key(houseID, viewer)] = summary
}

func (c *fakeCache) Invalidate(_ context.Context, _ uuid.UUID) {
	c.invalidates++
	c.data = map[string][]lodge.MemberBalance{}
	c.sums = map[string]lodge.BalanceSummary{}
}

func TestBalances_CacheAndInvalidation(t *testing.T) {
	cache := newFakeCache()
	f := newFixture(t, expense.WithBalanceCache(cache))
	ctx := context.Background()
	e := f.createEven(t, f.alice.ID, 10000, f.alice.ID, f.bob.ID)

	if _, _, err := f.svc.Balances(ctx, f.alice.ID, f.house.ID); err != nil {
		t.Fatalf("balances: %v", err)
	}
	if cache.sets != 1 || cache.hits != 0 {
		t.Fatalf("first read should miss then fill: sets=%d hits=%d", cache.sets, cache.hits)
	}
	if _, _, err := f.svc.Balances(ctx, f.alice.ID, f.house.ID); err != nil {
		t.Fatalf("balances: %v", err)
	}
	if cache.hits != 1 {
		t.Fatalf("second read should hit, hits=%d", cache.hits)
	}

	// A settlement invalidates; the next read recomputes the new state.
	before := cache.invalidates
	for _, sp := range e.Splits {
		if sp.UserID == f.bob.ID {
			if _, err := f.svc.Settle(ctx, f.alice.ID, sp.ID); err != nil {
				t.Fatalf("settle: %v", err)
			}
		}
	}
	if cache.invalidates <= before {
		t.Fatalf("settle must invalidate the cache")
	}
	balances, _, err := f.svc.Balances(ctx, f.alice.ID, f.house.ID)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	net, _ := balances[0].Net.MinorUnits()
	if net != 0 {
		t.Fatalf("recomputed net should be 0, got %d", net)
	}
}

func TestReceiptLifecycle(t *testing.T) {
	fs, err := receipt.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("fs store: %v", err)
	}
	f := newFixture(t, expense.WithReceipts(fs))
	ctx := context.Background()
	e := f.createEven(t, f.alice.ID, 10000, f.alice.ID, f.bob.ID)

	payload := []byte("jpeg bytes")
	object, err := f.svc.AttachReceipt(ctx, f.alice.ID, e.ID, "image/jpeg", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if object != e.ID.String()+".jpg" {
		t.Fatalf("unexpected object name %q", object)
	}

	// Only the creator attaches.
	if _, err := f.svc.AttachReceipt(ctx, f.bob.ID, e.ID, "image/jpeg", bytes.NewReader(payload)); !errors.Is(err, expense.ErrNotCreator) {
		t.Fatalf("expected ErrNotCreator, got %v", err)
	}
	// Unsupported type is rejected.
	if _, err := f.svc.AttachReceipt(ctx, f.alice.ID, e.ID, "text/plain", bytes.NewReader(payload)); !errors.Is(err, receipt.ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}

	// Any accepted member may read it.
	rc, contentType, err := f.svc.OpenReceipt(ctx, f.bob.ID, e.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if contentType != "image/jpeg" || !bytes.Equal(got, payload) {
		t.Fatalf("round trip failed: type=%q body=%q", contentType, got)
	}

	if err := f.svc.RemoveReceipt(ctx, f.alice.ID, e.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, _, err := f.svc.OpenReceipt(ctx, f.alice.ID, e.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after removal, got %v", err)
	}
	// Removing again is a no-op.
	if err := f.svc.RemoveReceipt(ctx, f.alice.ID, e.ID); err != nil {
		t.Fatalf("idempotent remove: %v", err)
	}
}
