package memory

// Package memory provides a simple in-memory implementation used for development and tests.
// It keeps code paths easy to follow while allowing us to plug in a real DB later.
import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alpenhaus/alpenhaus/internal/errs"
	"github.com/alpenhaus/alpenhaus/internal/lodge"
)

// Store is an in-memory implementation of the repository+writer interfaces
// used by every service. It is guarded by an RWMutex for concurrent
// reads/writes; each write method is atomic under the lock.
type Store struct {
	mu          sync.RWMutex
	users       map[uuid.UUID]lodge.User
	usersByMail map[string]uuid.UUID
	houses      map[uuid.UUID]lodge.House
	// memberships: houseID -> userID -> membership
	memberships map[uuid.UUID]map[uuid.UUID]lodge.Membership
	expenses    map[uuid.UUID]*lodge.Expense
	// splitIdx: splitID -> owning expenseID
	splitIdx map[uuid.UUID]uuid.UUID
	stays    map[uuid.UUID]lodge.Stay
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{
		users:       make(map[uuid.UUID]lodge.User),
		usersByMail: make(map[string]uuid.UUID),
		houses:      make(map[uuid.UUID]lodge.House),
		memberships: make(map[uuid.UUID]map[uuid.UUID]lodge.Membership),
		expenses:    make(map[uuid.UUID]*lodge.Expense),
		splitIdx:    make(map[uuid.UUID]uuid.UUID),
		stays:       make(map[uuid.UUID]lodge.Stay),
	}
}

// Seed helpers for local dev/tests.
func (s *Store) SeedUser(u lodge.User) {
	s.mu.Lock()
	s.users[u.ID] = u
	s.usersByMail[strings.ToLower(u.Email)] = u.ID
	s.mu.Unlock()
}

func (s *Store) SeedHouse(h lodge.House) {
	s.mu.Lock()
	s.houses[h.ID] = h
	s.mu.Unlock()
}

func (s *Store) SeedMembership(m lodge.Membership) {
	s.mu.Lock()
	s.putMembershipLocked(m)
	s.mu.Unlock()
}

func (s *Store) Reset() {
	s.mu.Lock()
	s.users = map[uuid.UUID]lodge.User{}
	s.usersByMail = map[string]uuid.UUID{}
	s.houses = map[uuid.UUID]lodge.House{}
	s.memberships = map[uuid.UUID]map[uuid.UUID]lodge.Membership{}
	s.expenses = map[uuid.UUID]*lodge.Expense{}
	s.splitIdx = map[uuid.UUID]uuid.UUID{}
	s.stays = map[uuid.UUID]lodge.Stay{}
	s.mu.Unlock()
}

// --- Users ---

func (s *Store) User(_ context.Context, userID uuid.UUID) (lodge.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return lodge.User{}, errs.ErrNotFound
	}
	return u, nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (lodge.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usersByMail[strings.ToLower(email)]
	if !ok {
		return lodge.User{}, errs.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) CreateUser(_ context.Context, u lodge.User) (lodge.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(u.Email)
	if _, exists := s.usersByMail[key]; exists {
		return lodge.User{}, errs.ErrConflict
	}
	s.users[u.ID] = u
	s.usersByMail[key] = u.ID
	return u, nil
}

// --- Houses & memberships ---

func (s *Store) House(_ context.Context, houseID uuid.UUID) (lodge.House, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.houses[houseID]
	if !ok {
		return lodge.House{}, errs.ErrNotFound
	}
	return h, nil
}

func (s *Store) HousesByUser(_ context.Context, userID uuid.UUID) ([]lodge.House, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]lodge.House, 0)
	for houseID, members := range s.memberships {
		if _, ok := members[userID]; ok {
			if h, ok := s.houses[houseID]; ok {
				out = append(out, h)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CreateHouse(_ context.Context, h lodge.House) (lodge.House, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.houses[h.ID] = h
	return h, nil
}

func (s *Store) Membership(_ context.Context, houseID, userID uuid.UUID) (lodge.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberships[houseID][userID]
	if !ok {
		return lodge.Membership{}, errs.ErrNotFound
	}
	return m, nil
}

func (s *Store) Memberships(_ context.Context, houseID uuid.UUID) ([]lodge.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]lodge.Membership, 0, len(s.memberships[houseID]))
	for _, m := range s.memberships[houseID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

// AcceptedMembers returns the users behind accepted memberships of the house.
func (s *Store) AcceptedMembers(_ context.Context, houseID uuid.UUID) (map[uuid.UUID]lodge.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]lodge.User)
	for userID, m := range s.memberships[houseID] {
		if m.Status != lodge.StatusAccepted {
			continue
		}
		if u, ok := s.users[userID]; ok {
			out[userID] = u
		}
	}
	return out, nil
}

func (s *Store) CreateMembership(_ context.Context, m lodge.Membership) (lodge.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.memberships[m.HouseID][m.UserID]; exists {
		return lodge.Membership{}, errs.ErrConflict
	}
	s.putMembershipLocked(m)
	return m, nil
}

func (s *Store) UpdateMembership(_ context.Context, m lodge.Membership) (lodge.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.memberships[m.HouseID][m.UserID]; !exists {
		return lodge.Membership{}, errs.ErrNotFound
	}
	s.putMembershipLocked(m)
	return m, nil
}

func (s *Store) putMembershipLocked(m lodge.Membership) {
	byUser, ok := s.memberships[m.HouseID]
	if !ok {
		byUser = make(map[uuid.UUID]lodge.Membership)
		s.memberships[m.HouseID] = byUser
	}
	byUser[m.UserID] = m
}

// --- Expenses & splits ---

func (s *Store) Expense(_ context.Context, expenseID uuid.UUID) (lodge.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.expenses[expenseID]
	if !ok {
		return lodge.Expense{}, errs.ErrNotFound
	}
	return copyExpense(e), nil
}

// ExpensesByHouse returns the house's expenses ordered by date descending,
// then creation time descending.
func (s *Store) ExpensesByHouse(_ context.Context, houseID uuid.UUID) ([]lodge.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]lodge.Expense, 0)
	for _, e := range s.expenses {
		if e.HouseID == houseID {
			out = append(out, copyExpense(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) Split(_ context.Context, splitID uuid.UUID) (lodge.ExpenseSplit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	expenseID, ok := s.splitIdx[splitID]
	if !ok {
		return lodge.ExpenseSplit{}, errs.ErrNotFound
	}
	for _, sp := range s.expenses[expenseID].Splits {
		if sp.ID == splitID {
			return sp, nil
		}
	}
	return lodge.ExpenseSplit{}, errs.ErrNotFound
}

// CreateExpense stores the expense with its splits as one atomic unit.
func (s *Store) CreateExpense(_ context.Context, e lodge.Expense) (lodge.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := copyExpense(&e)
	s.expenses[e.ID] = &stored
	for _, sp := range stored.Splits {
		s.splitIdx[sp.ID] = e.ID
	}
	return copyExpense(&stored), nil
}

// UpdateExpense replaces header fields, leaving splits untouched.
func (s *Store) UpdateExpense(_ context.Context, e lodge.Expense) (lodge.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.expenses[e.ID]
	if !ok {
		return lodge.Expense{}, errs.ErrNotFound
	}
	updated := copyExpense(current)
	updated.Title = e.Title
	updated.Description = e.Description
	updated.Amount = e.Amount
	updated.Category = e.Category
	updated.Date = e.Date
	updated.ReceiptObject = e.ReceiptObject
	s.expenses[e.ID] = &updated
	return copyExpense(&updated), nil
}

// ReplaceSplits deletes an expense's splits wholesale and installs new ones.
func (s *Store) ReplaceSplits(_ context.Context, expenseID uuid.UUID, splits []lodge.ExpenseSplit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[expenseID]
	if !ok {
		return errs.ErrNotFound
	}
	for _, sp := range e.Splits {
		delete(s.splitIdx, sp.ID)
	}
	e.Splits = append([]lodge.ExpenseSplit(nil), splits...)
	for _, sp := range e.Splits {
		s.splitIdx[sp.ID] = expenseID
	}
	return nil
}

// DeleteExpense removes the expense; splits cascade and any stay linked to it
// drops the link, matching the schema's on delete set null.
func (s *Store) DeleteExpense(_ context.Context, expenseID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[expenseID]
	if !ok {
		return errs.ErrNotFound
	}
	for _, sp := range e.Splits {
		delete(s.splitIdx, sp.ID)
	}
	delete(s.expenses, expenseID)
	for id, st := range s.stays {
		if st.LinkedExpenseID == expenseID {
			st.LinkedExpenseID = uuid.Nil
			s.stays[id] = st
		}
	}
	return nil
}

func (s *Store) UpdateSplit(_ context.Context, sp lodge.ExpenseSplit) (lodge.ExpenseSplit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expenseID, ok := s.splitIdx[sp.ID]
	if !ok {
		return lodge.ExpenseSplit{}, errs.ErrNotFound
	}
	e := s.expenses[expenseID]
	for i := range e.Splits {
		if e.Splits[i].ID == sp.ID {
			e.Splits[i] = sp
			return sp, nil
		}
	}
	return lodge.ExpenseSplit{}, errs.ErrNotFound
}

// SettleSplits bulk-settles unsettled splits owned by ownerID on expenses in
// the house paid by payerID.
func (s *Store) SettleSplits(_ context.Context, houseID, payerID, ownerID uuid.UUID, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.expenses {
		if e.HouseID != houseID || e.PayerID != payerID {
			continue
		}
		for i := range e.Splits {
			sp := &e.Splits[i]
			if sp.UserID != ownerID || sp.Settled {
				continue
			}
			sp.Settled = true
			t := at
			sp.SettledAt = &t
			n++
		}
	}
	return n, nil
}

// --- Stays ---

func (s *Store) Stay(_ context.Context, stayID uuid.UUID) (lodge.Stay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stays[stayID]
	if !ok {
		return lodge.Stay{}, errs.ErrNotFound
	}
	return st, nil
}

func (s *Store) StaysByHouse(_ context.Context, houseID uuid.UUID) ([]lodge.Stay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]lodge.Stay, 0)
	for _, st := range s.stays {
		if st.HouseID == houseID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckIn.Before(out[j].CheckIn) })
	return out, nil
}

func (s *Store) CreateStay(_ context.Context, st lodge.Stay) (lodge.Stay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stays[st.ID] = st
	return st, nil
}

func (s *Store) UpdateStay(_ context.Context, st lodge.Stay) (lodge.Stay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stays[st.ID]; !ok {
		return lodge.Stay{}, errs.ErrNotFound
	}
	s.stays[st.ID] = st
	return st, nil
}

func (s *Store) DeleteStay(_ context.Context, stayID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stays[stayID]; !ok {
		return errs.ErrNotFound
	}
	delete(s.stays, stayID)
	return nil
}

// copyExpense returns a deep copy so callers never alias stored split slices.
func copyExpense(e *lodge.Expense) lodge.Expense {
	out := *e
	out.Splits = append([]lodge.ExpenseSplit(nil), e.Splits...)
	return out
}
