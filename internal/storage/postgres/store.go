package postgres

// Package postgres provides a pgx-backed storage implementation that satisfies
// the repository and writer interfaces used by the services.
//
// It is intentionally small and explicit. Migrations that create the expected
// schema live under db/migrations. This package focuses on mapping between the
// domain entities and SQL rows and running the necessary statements/transactions.

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alpenhaus/alpenhaus/internal/errs"
	"github.com/alpenhaus/alpenhaus/internal/lodge"
)

// Store holds a pgx connection pool and implements the read/write interfaces
// used across the service layer. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Open establishes a pgx pool using the provided connection string.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

// --- Users ---

func (s *Store) User(ctx context.Context, userID uuid.UUID) (lodge.User, error) {
	var u lodge.User
	err := s.pool.QueryRow(ctx, `
        select id, email, name, password_hash, created_at
        from users where id = $1
    `, userID).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return lodge.User{}, errs.ErrNotFound
	}
	return u, err
}

func (s *Store) UserByEmail(ctx context.Context, email string) (lodge.User, error) {
	var u lodge.User
	err := s.pool.QueryRow(ctx, `
        select id, email, name, password_hash, created_at
        from users where email = $1
    `, strings.ToLower(email)).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return lodge.User{}, errs.ErrNotFound
	}
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, u lodge.User) (lodge.User, error) {
	_, err := s.pool.Exec(ctx, `
        insert into users (id, email, name, password_hash, created_at)
        values ($1,$2,$3,$4,$5)
    `, u.ID, strings.ToLower(u.Email), u.Name, u.PasswordHash, u.CreatedAt)
	if err != nil {
		return lodge.User{}, err
	}
	return u, nil
}

// --- Houses & memberships ---

func scanHouse(row pgx.Row) (lodge.House, error) {
	var h lodge.House
	var rateMinor int64
	err := row.Scan(&h.ID, &h.Name, &h.Currency, &rateMinor, &h.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return lodge.House{}, errs.ErrNotFound
	}
	if err != nil {
		return lodge.House{}, err
	}
	h.Currency = strings.TrimSpace(h.Currency)
	h.GuestNightlyRate, err = money.NewAmountFromMinorUnits(h.Currency, rateMinor)
	return h, err
}

func (s *Store) House(ctx context.Context, houseID uuid.UUID) (lodge.House, error) {
	return scanHouse(s.pool.QueryRow(ctx, `
        select id, name, currency, guest_nightly_rate_minor, created_at
        from houses where id = $1
    `, houseID))
}

func (s *Store) HousesByUser(ctx context.Context, userID uuid.UUID) ([]lodge.House, error) {
	rows, err := s.pool.Query(ctx, `
        select h.id, h.name, h.currency, h.guest_nightly_rate_minor, h.created_at
        from houses h
        join house_members m on m.house_id = h.id
        where m.user_id = $1
        order by h.name
    `, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]lodge.House, 0)
	for rows.Next() {
		h, err := scanHouse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) CreateHouse(ctx context.Context, h lodge.House) (lodge.House, error) {
	rate, _ := h.GuestNightlyRate.MinorUnits()
	_, err := s.pool.Exec(ctx, `
        insert into houses (id, name, currency, guest_nightly_rate_minor, created_at)
        values ($1,$2,$3,$4,$5)
    `, h.ID, h.Name, strings.ToUpper(h.Currency), rate, h.CreatedAt)
	if err != nil {
		return lodge.House{}, err
	}
	return h, nil
}

func (s *Store) Membership(ctx context.Context, houseID, userID uuid.UUID) (lodge.Membership, error) {
	var m lodge.Membership
	err := s.pool.QueryRow(ctx, `
        select house_id, user_id, role, status, joined_at
        from house_members where house_id = $1 and user_id = $2
    `, houseID, userID).Scan(&m.HouseID, &m.UserID, &m.Role, &m.Status, &m.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return lodge.Membership{}, errs.ErrNotFound
	}
	return m, err
}

func (s *Store) Memberships(ctx context.Context, houseID uuid.UUID) ([]lodge.Membership, error) {
	rows, err := s.pool.Query(ctx, `
        select house_id, user_id, role, status, joined_at
        from house_members where house_id = $1
        order by joined_at asc
    `, houseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]lodge.Membership, 0)
	for rows.Next() {
		var m lodge.Membership
		if err := rows.Scan(&m.HouseID, &m.UserID, &m.Role, &m.Status, &m.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) AcceptedMembers(ctx context.Context, houseID uuid.UUID) (map[uuid.UUID]lodge.User, error) {
	rows, err := s.pool.Query(ctx, `
        select u.id, u.email, u.name, u.password_hash, u.created_at
        from users u
        join house_members m on m.user_id = u.id
        where m.house_id = $1 and m.status = 'accepted'
    `, houseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]lodge.User)
	for rows.Next() {
		var u lodge.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, err
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}

func (s *Store) CreateMembership(ctx context.Context, m lodge.Membership) (lodge.Membership, error) {
	_, err := s.pool.Exec(ctx, `
        insert into house_members (house_id, user_id, role, status, joined_at)
        values ($1,$2,$3,$4,$5)
    `, m.HouseID, m.UserID, m.Role, m.Status, m.JoinedAt)
	if err != nil {
		return lodge.Membership{}, err
	}
	return m, nil
}

func (s *Store) UpdateMembership(ctx context.Context, m lodge.Membership) (lodge.Membership, error) {
	ct, err := s.pool.Exec(ctx, `
        update house_members set role=$1, status=$2, joined_at=$3
        where house_id=$4 and user_id=$5
    `, m.Role, m.Status, m.JoinedAt, m.HouseID, m.UserID)
	if err != nil {
		return lodge.Membership{}, err
	}
	if ct.RowsAffected() == 0 {
		return lodge.Membership{}, errs.ErrNotFound
	}
	return m, nil
}

// --- Expenses ---

// expenseCurrency looks up the house currency for amount reconstruction.
func (s *Store) expenseCurrency(ctx context.Context, houseID uuid.UUID) (string, error) {
	var curr string
	err := s.pool.QueryRow(ctx, `select currency from houses where id = $1`, houseID).Scan(&curr)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", errs.ErrNotFound
	}
	return strings.TrimSpace(curr), err
}

func (s *Store) Expense(ctx context.Context, expenseID uuid.UUID) (lodge.Expense, error) {
	var e lodge.Expense
	var amountMinor int64
	err := s.pool.QueryRow(ctx, `
        select id, house_id, title, description, amount_minor, category, date,
               payer_id, creator_id, receipt_object, created_at
        from expenses where id = $1
    `, expenseID).Scan(&e.ID, &e.HouseID, &e.Title, &e.Description, &amountMinor, &e.Category,
		&e.Date, &e.PayerID, &e.CreatorID, &e.ReceiptObject, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return lodge.Expense{}, errs.ErrNotFound
	}
	if err != nil {
		return lodge.Expense{}, err
	}
	curr, err := s.expenseCurrency(ctx, e.HouseID)
	if err != nil {
		return lodge.Expense{}, err
	}
	e.Amount, err = money.NewAmountFromMinorUnits(curr, amountMinor)
	if err != nil {
		return lodge.Expense{}, err
	}
	rows, err := s.pool.Query(ctx, `
        select id, expense_id, user_id, amount_minor, settled, settled_at
        from expense_splits where expense_id = $1
        order by id asc
    `, expenseID)
	if err != nil {
		return lodge.Expense{}, err
	}
	defer rows.Close()
	for rows.Next() {
		sp, err := scanSplit(rows, curr)
		if err != nil {
			return lodge.Expense{}, err
		}
		e.Splits = append(e.Splits, sp)
	}
	return e, rows.Err()
}

func scanSplit(rows pgx.Rows, curr string) (lodge.ExpenseSplit, error) {
	var sp lodge.ExpenseSplit
	var minor int64
	var settledAt *time.Time
	if err := rows.Scan(&sp.ID, &sp.ExpenseID, &sp.UserID, &minor, &sp.Settled, &settledAt); err != nil {
		return lodge.ExpenseSplit{}, err
	}
	sp.SettledAt = settledAt
	var err error
	sp.Amount, err = money.NewAmountFromMinorUnits(curr, minor)
	return sp, err
}

// ExpensesByHouse returns the house's expenses with splits populated, ordered
// by date descending then creation time descending.
func (s *Store) ExpensesByHouse(ctx context.Context, houseID uuid.UUID) ([]lodge.Expense, error) {
	curr, err := s.expenseCurrency(ctx, houseID)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
        select id, house_id, title, description, amount_minor, category, date,
               payer_id, creator_id, receipt_object, created_at
        from expenses
        where house_id = $1
        order by date desc, created_at desc
    `, houseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	expenses := make([]lodge.Expense, 0)
	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var e lodge.Expense
		var amountMinor int64
		if err := rows.Scan(&e.ID, &e.HouseID, &e.Title, &e.Description, &amountMinor, &e.Category,
			&e.Date, &e.PayerID, &e.CreatorID, &e.ReceiptObject, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.Amount, err = money.NewAmountFromMinorUnits(curr, amountMinor); err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
		ids = append(ids, e.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(expenses) == 0 {
		return expenses, nil
	}
	// Load splits for these expenses in one query
	splitRows, err := s.pool.Query(ctx, `
        select id, expense_id, user_id, amount_minor, settled, settled_at
        from expense_splits
        where expense_id = any($1)
        order by id asc
    `, ids)
	if err != nil {
		return nil, err
	}
	defer splitRows.Close()
	idx := make(map[uuid.UUID]*lodge.Expense, len(expenses))
	for i := range expenses {
		idx[expenses[i].ID] = &expenses[i]
	}
	for splitRows.Next() {
		sp, err := scanSplit(splitRows, curr)
		if err != nil {
			return nil, err
		}
		if e := idx[sp.ExpenseID]; e != nil {
			e.Splits = append(e.Splits, sp)
		}
	}
	return expenses, splitRows.Err()
}

func (s *Store) Split(ctx context.Context, splitID uuid.UUID) (lodge.ExpenseSplit, error) {
	var sp lodge.ExpenseSplit
	var minor int64
	var settledAt *time.Time
	var curr string
	err := s.pool.QueryRow(ctx, `
        select sp.id, sp.expense_id, sp.user_id, sp.amount_minor, sp.settled, sp.settled_at, h.currency
        from expense_splits sp
        join expenses e on e.id = sp.expense_id
        join houses h on h.id = e.house_id
        where sp.id = $1
    `, splitID).Scan(&sp.ID, &sp.ExpenseID, &sp.UserID, &minor, &sp.Settled, &settledAt, &curr)
	if errors.Is(err, pgx.ErrNoRows) {
		return lodge.ExpenseSplit{}, errs.ErrNotFound
	}
	if err != nil {
		return lodge.ExpenseSplit{}, err
	}
	sp.SettledAt = settledAt
	sp.Amount, err = money.NewAmountFromMinorUnits(strings.TrimSpace(curr), minor)
	return sp, err
}

// CreateExpense inserts the expense and its splits in one transaction, so a
// failed split insert can never leave an orphaned expense row.
func (s *Store) CreateExpense(ctx context.Context, e lodge.Expense) (lodge.Expense, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return lodge.Expense{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	amountMinor, _ := e.Amount.MinorUnits()
	if _, err := tx.Exec(ctx, `
        insert into expenses (id, house_id, title, description, amount_minor, category, date,
                              payer_id, creator_id, receipt_object, created_at)
        values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
    `, e.ID, e.HouseID, e.Title, e.Description, amountMinor, e.Category, e.Date,
		e.PayerID, e.CreatorID, e.ReceiptObject, e.CreatedAt); err != nil {
		return lodge.Expense{}, err
	}
	for _, sp := range e.Splits {
		if err := insertSplit(ctx, tx, sp); err != nil {
			return lodge.Expense{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return lodge.Expense{}, err
	}
	return e, nil
}

func insertSplit(ctx context.Context, tx pgx.Tx, sp lodge.ExpenseSplit) error {
	minor, _ := sp.Amount.MinorUnits()
	if _, err := tx.Exec(ctx, `
        insert into expense_splits (id, expense_id, user_id, amount_minor, settled, settled_at)
        values ($1,$2,$3,$4,$5,$6)
    `, sp.ID, sp.ExpenseID, sp.UserID, minor, sp.Settled, sp.SettledAt); err != nil {
		return fmt.Errorf("insert split: %w", err)
	}
	return nil
}

func (s *Store) UpdateExpense(ctx context.Context, e lodge.Expense) (lodge.Expense, error) {
	amountMinor, _ := e.Amount.MinorUnits()
	ct, err := s.pool.Exec(ctx, `
        update expenses
        set title=$1, description=$2, amount_minor=$3, category=$4, date=$5, receipt_object=$6
        where id=$7
    `, e.Title, e.Description, amountMinor, e.Category, e.Date, e.ReceiptObject, e.ID)
	if err != nil {
		return lodge.Expense{}, err
	}
	if ct.RowsAffected() == 0 {
		return lodge.Expense{}, errs.ErrNotFound
	}
	return e, nil
}

// ReplaceSplits swaps an expense's splits wholesale in one transaction.
func (s *Store) ReplaceSplits(ctx context.Context, expenseID uuid.UUID, splits []lodge.ExpenseSplit) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, `delete from expense_splits where expense_id = $1`, expenseID); err != nil {
		return err
	}
	for _, sp := range splits {
		if err := insertSplit(ctx, tx, sp); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// DeleteExpense removes the row; splits cascade via the foreign key and any
// stay link is nulled out.
func (s *Store) DeleteExpense(ctx context.Context, expenseID uuid.UUID) error {
	ct, err := s.pool.Exec(ctx, `delete from expenses where id = $1`, expenseID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateSplit(ctx context.Context, sp lodge.ExpenseSplit) (lodge.ExpenseSplit, error) {
	minor, _ := sp.Amount.MinorUnits()
	ct, err := s.pool.Exec(ctx, `
        update expense_splits set amount_minor=$1, settled=$2, settled_at=$3
        where id=$4
    `, minor, sp.Settled, sp.SettledAt, sp.ID)
	if err != nil {
		return lodge.ExpenseSplit{}, err
	}
	if ct.RowsAffected() == 0 {
		return lodge.ExpenseSplit{}, errs.ErrNotFound
	}
	return sp, nil
}

// SettleSplits issues one batched update covering every unsettled split owned
// by ownerID on expenses in the house paid by payerID.
func (s *Store) SettleSplits(ctx context.Context, houseID, payerID, ownerID uuid.UUID, at time.Time) (int, error) {
	ct, err := s.pool.Exec(ctx, `
        update expense_splits sp
        set settled = true, settled_at = $4
        from expenses e
        where sp.expense_id = e.id
          and e.house_id = $1
          and e.payer_id = $2
          and sp.user_id = $3
          and not sp.settled
    `, houseID, payerID, ownerID, at)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

// --- Stays ---

func scanStay(row pgx.Row) (lodge.Stay, error) {
	var st lodge.Stay
	var linked uuid.NullUUID
	err := row.Scan(&st.ID, &st.HouseID, &st.UserID, &st.CheckIn, &st.CheckOut,
		&st.Notes, &st.GuestCount, &linked, &st.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return lodge.Stay{}, errs.ErrNotFound
	}
	if err != nil {
		return lodge.Stay{}, err
	}
	if linked.Valid {
		st.LinkedExpenseID = linked.UUID
	}
	return st, nil
}

func (s *Store) Stay(ctx context.Context, stayID uuid.UUID) (lodge.Stay, error) {
	return scanStay(s.pool.QueryRow(ctx, `
        select id, house_id, user_id, check_in, check_out, notes, guest_count, linked_expense_id, created_at
        from stays where id = $1
    `, stayID))
}

func (s *Store) StaysByHouse(ctx context.Context, houseID uuid.UUID) ([]lodge.Stay, error) {
	rows, err := s.pool.Query(ctx, `
        select id, house_id, user_id, check_in, check_out, notes, guest_count, linked_expense_id, created_at
        from stays where house_id = $1
        order by check_in asc
    `, houseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]lodge.Stay, 0)
	for rows.Next() {
		st, err := scanStay(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func nullableLink(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}

func (s *Store) CreateStay(ctx context.Context, st lodge.Stay) (lodge.Stay, error) {
	_, err := s.pool.Exec(ctx, `
        insert into stays (id, house_id, user_id, check_in, check_out, notes, guest_count, linked_expense_id, created_at)
        values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    `, st.ID, st.HouseID, st.UserID, st.CheckIn, st.CheckOut, st.Notes, st.GuestCount,
		nullableLink(st.LinkedExpenseID), st.CreatedAt)
	if err != nil {
		return lodge.Stay{}, err
	}
	return st, nil
}

func (s *Store) UpdateStay(ctx context.Context, st lodge.Stay) (lodge.Stay, error) {
	ct, err := s.pool.Exec(ctx, `
        update stays
        set check_in=$1, check_out=$2, notes=$3, guest_count=$4, linked_expense_id=$5
        where id=$6
    `, st.CheckIn, st.CheckOut, st.Notes, st.GuestCount, nullableLink(st.LinkedExpenseID), st.ID)
	if err != nil {
		return lodge.Stay{}, err
	}
	if ct.RowsAffected() == 0 {
		return lodge.Stay{}, errs.ErrNotFound
	}
	return st, nil
}

func (s *Store) DeleteStay(ctx context.Context, stayID uuid.UUID) error {
	ct, err := s.pool.Exec(ctx, `delete from stays where id = $1`, stayID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
