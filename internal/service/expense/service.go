// Package expense implements the shared-expense ledger: create/update/delete
// with per-member splits, settlement, bulk settlement, balances, and receipt
// attachments. Authorization rules: only the creator edits or deletes an
// expense (house admins may also delete guest fees), and only the payer
// settles splits.
package expense

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/alpenhaus/alpenhaus/internal/balance"
	"github.com/alpenhaus/alpenhaus/internal/errs"
	"github.com/alpenhaus/alpenhaus/internal/lodge"
	"github.com/alpenhaus/alpenhaus/internal/notify"
	"github.com/alpenhaus/alpenhaus/internal/receipt"
	"github.com/alpenhaus/alpenhaus/internal/split"
)

// Authorization errors surfaced to callers verbatim.
var (
	ErrNotCreator   = errors.New("only the expense creator can edit this expense")
	ErrNotDeletable = errors.New("only the expense creator can delete this expense")
	ErrNotPayer     = errors.New("only the expense payer can settle splits")
	ErrNotMember    = errors.New("not an accepted member of this house")
	ErrNoSplits     = errors.New("at least one split is required")
)

// Repo defines read operations needed by the service.
type Repo interface {
	House(ctx context.Context, houseID uuid.UUID) (lodge.House, error)
	Membership(ctx context.Context, houseID, userID uuid.UUID) (lodge.Membership, error)
	AcceptedMembers(ctx context.Context, houseID uuid.UUID) (map[uuid.UUID]lodge.User, error)
	Expense(ctx context.Context, expenseID uuid.UUID) (lodge.Expense, error)
	ExpensesByHouse(ctx context.Context, houseID uuid.UUID) ([]lodge.Expense, error)
	Split(ctx context.Context, splitID uuid.UUID) (lodge.ExpenseSplit, error)
}

// Writer defines write operations needed by the service. CreateExpense must
// persist the expense and its splits as one atomic unit.
type Writer interface {
	CreateExpense(ctx context.Context, e lodge.Expense) (lodge.Expense, error)
	UpdateExpense(ctx context.Context, e lodge.Expense) (lodge.Expense, error)
	ReplaceSplits(ctx context.Context, expenseID uuid.UUID, splits []lodge.ExpenseSplit) error
	DeleteExpense(ctx context.Context, expenseID uuid.UUID) error
	UpdateSplit(ctx context.Context, s lodge.ExpenseSplit) (lodge.ExpenseSplit, error)
	// SettleSplits bulk-settles every unsettled split owned by ownerID on
	// expenses in the house paid by payerID, returning the number settled.
	SettleSplits(ctx context.Context, houseID, payerID, ownerID uuid.UUID, at time.Time) (int, error)
}

// BalanceCache caches computed balances per (house, viewer). Implementations
// may drop entries at any time; the service always recomputes on miss.
type BalanceCache interface {
	Get(ctx context.Context, houseID, viewer uuid.UUID) ([]lodge.MemberBalance, lodge.BalanceSummary, bool)
	Set(ctx context.Context, houseID, viewer uuid.UUID, balances []lodge.MemberBalance, summary lodge.BalanceSummary)
	Invalidate(ctx context.Context, houseID uuid.UUID)
}

// SplitMode selects how shares are derived on create/update.
type SplitMode string

const (
	// SplitModeEven divides the total evenly with the residual cent on the first member.
	SplitModeEven SplitMode = "even"
	// SplitModeCustom takes caller-supplied share amounts.
	SplitModeCustom SplitMode = "custom"
)

// SplitInput is one caller-supplied share in custom mode.
type SplitInput struct {
	UserID      uuid.UUID
	AmountMinor int64
}

// CreateInput carries a new expense. The caller becomes payer and creator.
type CreateInput struct {
	HouseID     uuid.UUID
	Title       string
	Description string
	AmountMinor int64
	Category    lodge.Category
	Date        time.Time
	SplitMode   SplitMode
	Members     []uuid.UUID  // even mode
	Splits      []SplitInput // custom mode
}

// UpdateInput carries expense edits. SplitMode == "" keeps the existing splits;
// otherwise all splits are replaced wholesale and settlement state resets.
type UpdateInput struct {
	Title       string
	Description string
	AmountMinor int64
	Category    lodge.Category
	Date        time.Time
	SplitMode   SplitMode
	Members     []uuid.UUID
	Splits      []SplitInput
}

// ListQuery filters and pages a house's expenses.
type ListQuery struct {
	HouseID  uuid.UUID
	Category lodge.Category
	Limit    int
	Offset   int
}

// Service exposes the expense ledger operations.
type Service interface {
	Create(ctx context.Context, callerID uuid.UUID, in CreateInput) (lodge.Expense, error)
	Update(ctx context.Context, callerID, expenseID uuid.UUID, in UpdateInput) (lodge.Expense, error)
	Delete(ctx context.Context, callerID, expenseID uuid.UUID) error
	Get(ctx context.Context, callerID, expenseID uuid.UUID) (lodge.Expense, error)
	List(ctx context.Context, callerID uuid.UUID, q ListQuery) ([]lodge.Expense, bool, error)
	Settle(ctx context.Context, callerID, splitID uuid.UUID) (lodge.ExpenseSplit, error)
	Unsettle(ctx context.Context, callerID, splitID uuid.UUID) (lodge.ExpenseSplit, error)
	SettleAllWith(ctx context.Context, callerID, houseID, counterpartyID uuid.UUID) (int, error)
	Balances(ctx context.Context, callerID, houseID uuid.UUID) ([]lodge.MemberBalance, lodge.BalanceSummary, error)
	AttachReceipt(ctx context.Context, callerID, expenseID uuid.UUID, contentType string, r io.Reader) (string, error)
	OpenReceipt(ctx context.Context, callerID, expenseID uuid.UUID) (io.ReadCloser, string, error)
	RemoveReceipt(ctx context.Context, callerID, expenseID uuid.UUID) error
}

type service struct {
	repo     Repo
	writer   Writer
	notifier notify.Notifier
	receipts receipt.Store
	cache    BalanceCache
	log      *slog.Logger
}

// Option configures optional collaborators on the service.
type Option func(*service)

// WithNotifier enables best-effort notifications on expense creation.
func WithNotifier(n notify.Notifier) Option { return func(s *service) { s.notifier = n } }

// WithReceipts enables receipt attachment storage.
func WithReceipts(r receipt.Store) Option { return func(s *service) { s.receipts = r } }

// WithBalanceCache enables cached balance reads with invalidation on writes.
func WithBalanceCache(c BalanceCache) Option { return func(s *service) { s.cache = c } }

// New constructs the expense service.
func New(repo Repo, writer Writer, log *slog.Logger, opts ...Option) Service {
	s := &service{repo: repo, writer: writer, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) acceptedMember(ctx context.Context, houseID, userID uuid.UUID) error {
	m, err := s.repo.Membership(ctx, houseID, userID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return ErrNotMember
		}
		return err
	}
	if m.Status != lodge.StatusAccepted {
		return ErrNotMember
	}
	return nil
}

// buildSplits derives the persistable split rows for an expense.
func (s *service) buildSplits(ctx context.Context, house lodge.House, expenseID uuid.UUID, amount money.Amount, mode SplitMode, members []uuid.UUID, custom []SplitInput) ([]lodge.ExpenseSplit, error) {
	var shares []split.Share
	switch mode {
	case SplitModeEven:
		var err error
		shares, err = split.Even(amount, members)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", errs.ErrInvalid, err)
		}
	case SplitModeCustom:
		shares = make([]split.Share, 0, len(custom))
		for _, in := range custom {
			amt, err := money.NewAmountFromMinorUnits(house.Currency, in.AmountMinor)
			if err != nil {
				return nil, fmt.Errorf("%w: %s", errs.ErrInvalid, err)
			}
			shares = append(shares, split.Share{UserID: in.UserID, Amount: amt})
		}
		if err := split.ValidateCustom(amount, shares); err != nil {
			return nil, fmt.Errorf("%w: %s", errs.ErrInvalid, err)
		}
	default:
		return nil, fmt.Errorf("%w: split mode must be even or custom", errs.ErrInvalid)
	}
	if len(shares) == 0 {
		return nil, ErrNoSplits
	}

	accepted, err := s.repo.AcceptedMembers(ctx, house.ID)
	if err != nil {
		return nil, err
	}
	out := make([]lodge.ExpenseSplit, 0, len(shares))
	seen := make(map[uuid.UUID]struct{}, len(shares))
	for _, sh := range shares {
		if _, ok := accepted[sh.UserID]; !ok {
			return nil, fmt.Errorf("%w: split member %s is not an accepted member", errs.ErrInvalid, sh.UserID)
		}
		if _, dup := seen[sh.UserID]; dup {
			return nil, fmt.Errorf("%w: duplicate split member %s", errs.ErrInvalid, sh.UserID)
		}
		seen[sh.UserID] = struct{}{}
		out = append(out, lodge.ExpenseSplit{
			ID:        uuid.New(),
			ExpenseID: expenseID,
			UserID:    sh.UserID,
			Amount:    sh.Amount,
		})
	}
	return out, nil
}

func validateHeader(title string, amountMinor int64, category lodge.Category, date time.Time) error {
	if title == "" {
		return fmt.Errorf("%w: title is required", errs.ErrInvalid)
	}
	if amountMinor <= 0 {
		return fmt.Errorf("%w: amount must be positive", errs.ErrInvalid)
	}
	if !category.Valid() {
		return fmt.Errorf("%w: invalid category", errs.ErrInvalid)
	}
	if date.IsZero() {
		return fmt.Errorf("%w: date is required", errs.ErrInvalid)
	}
	return nil
}

func (s *service) Create(ctx context.Context, callerID uuid.UUID, in CreateInput) (lodge.Expense, error) {
	if callerID == uuid.Nil || in.HouseID == uuid.Nil {
		return lodge.Expense{}, errs.ErrInvalid
	}
	if err := s.acceptedMember(ctx, in.HouseID, callerID); err != nil {
		return lodge.Expense{}, err
	}
	if err := validateHeader(in.Title, in.AmountMinor, in.Category, in.Date); err != nil {
		return lodge.Expense{}, err
	}
	house, err := s.repo.House(ctx, in.HouseID)
	if err != nil {
		return lodge.Expense{}, err
	}
	amount, err := money.NewAmountFromMinorUnits(house.Currency, in.AmountMinor)
	if err != nil {
		return lodge.Expense{}, fmt.Errorf("%w: %s", errs.ErrInvalid, err)
	}

	expenseID := uuid.New()
	splits, err := s.buildSplits(ctx, house, expenseID, amount, in.SplitMode, in.Members, in.Splits)
	if err != nil {
		return lodge.Expense{}, err
	}

	e := lodge.Expense{
		ID:          expenseID,
		HouseID:     in.HouseID,
		Title:       in.Title,
		Description: in.Description,
		Amount:      amount,
		Category:    in.Category,
		Date:        in.Date,
		PayerID:     callerID,
		CreatorID:   callerID,
		CreatedAt:   time.Now().UTC(),
		Splits:      splits,
	}
	created, err := s.writer.CreateExpense(ctx, e)
	if err != nil {
		return lodge.Expense{}, err
	}
	s.invalidate(ctx, in.HouseID)
	s.notifyCreated(ctx, created)
	return created, nil
}

// notifyCreated tells every split member other than the payer; failures never
// block the primary response.
func (s *service) notifyCreated(ctx context.Context, e lodge.Expense) {
	if s.notifier == nil {
		return
	}
	accepted, err := s.repo.AcceptedMembers(ctx, e.HouseID)
	if err != nil {
		s.log.Warn("skipping notifications", "expense_id", e.ID, "err", err)
		return
	}
	recipients := make([]lodge.User, 0, len(e.Splits))
	for _, sp := range e.Splits {
		if sp.UserID == e.PayerID {
			continue
		}
		if u, ok := accepted[sp.UserID]; ok {
			recipients = append(recipients, u)
		}
	}
	s.notifier.ExpenseCreated(ctx, e, recipients)
}

func (s *service) Update(ctx context.Context, callerID, expenseID uuid.UUID, in UpdateInput) (lodge.Expense, error) {
	if callerID == uuid.Nil || expenseID == uuid.Nil {
		return lodge.Expense{}, errs.ErrInvalid
	}
	current, err := s.repo.Expense(ctx, expenseID)
	if err != nil {
		return lodge.Expense{}, err
	}
	if current.CreatorID != callerID {
		return lodge.Expense{}, ErrNotCreator
	}
	if err := validateHeader(in.Title, in.AmountMinor, in.Category, in.Date); err != nil {
		return lodge.Expense{}, err
	}
	house, err := s.repo.House(ctx, current.HouseID)
	if err != nil {
		return lodge.Expense{}, err
	}
	amount, err := money.NewAmountFromMinorUnits(house.Currency, in.AmountMinor)
	if err != nil {
		return lodge.Expense{}, fmt.Errorf("%w: %s", errs.ErrInvalid, err)
	}

	var newSplits []lodge.ExpenseSplit
	if in.SplitMode != "" {
		newSplits, err = s.buildSplits(ctx, house, expenseID, amount, in.SplitMode, in.Members, in.Splits)
		if err != nil {
			return lodge.Expense{}, err
		}
	} else {
		// No replacement: the existing splits must still match the new total.
		shares := make([]split.Share, 0, len(current.Splits))
		for _, sp := range current.Splits {
			shares = append(shares, split.Share{UserID: sp.UserID, Amount: sp.Amount})
		}
		if err := split.ValidateCustom(amount, shares); err != nil {
			return lodge.Expense{}, fmt.Errorf("%w: %s", errs.ErrInvalid, err)
		}
	}

	current.Title = in.Title
	current.Description = in.Description
	current.Amount = amount
	current.Category = in.Category
	current.Date = in.Date
	if _, err := s.writer.UpdateExpense(ctx, current); err != nil {
		return lodge.Expense{}, err
	}
	if newSplits != nil {
		// Replacement resets settlement: a changed split composition
		// invalidates prior settlement agreements.
		if err := s.writer.ReplaceSplits(ctx, expenseID, newSplits); err != nil {
			return lodge.Expense{}, err
		}
	}
	s.invalidate(ctx, current.HouseID)
	return s.repo.Expense(ctx, expenseID)
}

func (s *service) Delete(ctx context.Context, callerID, expenseID uuid.UUID) error {
	if callerID == uuid.Nil || expenseID == uuid.Nil {
		return errs.ErrInvalid
	}
	e, err := s.repo.Expense(ctx, expenseID)
	if err != nil {
		return err
	}
	if e.CreatorID != callerID {
		// Guest fees are levied by the house, so a house admin may remove them.
		if e.Category != lodge.CategoryGuestFees {
			return ErrNotDeletable
		}
		m, err := s.repo.Membership(ctx, e.HouseID, callerID)
		if err != nil || m.Status != lodge.StatusAccepted || m.Role != lodge.RoleAdmin {
			return ErrNotDeletable
		}
	}
	if e.ReceiptObject != "" && s.receipts != nil {
		if err := s.receipts.Remove(ctx, e.ReceiptObject); err != nil {
			s.log.Warn("receipt cleanup failed", "expense_id", e.ID, "object", e.ReceiptObject, "err", err)
		}
	}
	if err := s.writer.DeleteExpense(ctx, expenseID); err != nil {
		return err
	}
	s.invalidate(ctx, e.HouseID)
	return nil
}

func (s *service) Get(ctx context.Context, callerID, expenseID uuid.UUID) (lodge.Expense, error) {
	e, err := s.repo.Expense(ctx, expenseID)
	if err != nil {
		return lodge.Expense{}, err
	}
	if err := s.acceptedMember(ctx, e.HouseID, callerID); err != nil {
		return lodge.Expense{}, err
	}
	return e, nil
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// List returns one page of the house's expenses, newest first, along with a
// has-more flag derived from fetching one row beyond the page.
func (s *service) List(ctx context.Context, callerID uuid.UUID, q ListQuery) ([]lodge.Expense, bool, error) {
	if err := s.acceptedMember(ctx, q.HouseID, callerID); err != nil {
		return nil, false, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	all, err := s.repo.ExpensesByHouse(ctx, q.HouseID)
	if err != nil {
		return nil, false, err
	}
	filtered := all
	if q.Category != "" {
		filtered = filtered[:0:0]
		for _, e := range all {
			if e.Category == q.Category {
				filtered = append(filtered, e)
			}
		}
	}
	if offset >= len(filtered) {
		return []lodge.Expense{}, false, nil
	}
	page := filtered[offset:]
	if len(page) > limit {
		return page[:limit], true, nil
	}
	return page, false, nil
}

func (s *service) Settle(ctx context.Context, callerID, splitID uuid.UUID) (lodge.ExpenseSplit, error) {
	sp, e, err := s.splitWithExpense(ctx, splitID)
	if err != nil {
		return lodge.ExpenseSplit{}, err
	}
	if e.PayerID != callerID {
		return lodge.ExpenseSplit{}, ErrNotPayer
	}
	if sp.Settled {
		return sp, nil
	}
	now := time.Now().UTC()
	sp.Settled = true
	sp.SettledAt = &now
	updated, err := s.writer.UpdateSplit(ctx, sp)
	if err != nil {
		return lodge.ExpenseSplit{}, err
	}
	s.invalidate(ctx, e.HouseID)
	return updated, nil
}

func (s *service) Unsettle(ctx context.Context, callerID, splitID uuid.UUID) (lodge.ExpenseSplit, error) {
	sp, e, err := s.splitWithExpense(ctx, splitID)
	if err != nil {
		return lodge.ExpenseSplit{}, err
	}
	if e.PayerID != callerID {
		return lodge.ExpenseSplit{}, ErrNotPayer
	}
	if !sp.Settled {
		// Already unsettled: no-op.
		return sp, nil
	}
	sp.Settled = false
	sp.SettledAt = nil
	updated, err := s.writer.UpdateSplit(ctx, sp)
	if err != nil {
		return lodge.ExpenseSplit{}, err
	}
	s.invalidate(ctx, e.HouseID)
	return updated, nil
}

func (s *service) splitWithExpense(ctx context.Context, splitID uuid.UUID) (lodge.ExpenseSplit, lodge.Expense, error) {
	if splitID == uuid.Nil {
		return lodge.ExpenseSplit{}, lodge.Expense{}, errs.ErrInvalid
	}
	sp, err := s.repo.Split(ctx, splitID)
	if err != nil {
		return lodge.ExpenseSplit{}, lodge.Expense{}, err
	}
	e, err := s.repo.Expense(ctx, sp.ExpenseID)
	if err != nil {
		return lodge.ExpenseSplit{}, lodge.Expense{}, err
	}
	return sp, e, nil
}

// SettleAllWith bulk-settles every unsettled split owned by counterpartyID on
// expenses the caller paid in the house. Splits created concurrently with the
// scan are simply not included.
func (s *service) SettleAllWith(ctx context.Context, callerID, houseID, counterpartyID uuid.UUID) (int, error) {
	if counterpartyID == uuid.Nil {
		return 0, errs.ErrInvalid
	}
	if err := s.acceptedMember(ctx, houseID, callerID); err != nil {
		return 0, err
	}
	n, err := s.writer.SettleSplits(ctx, houseID, callerID, counterpartyID, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.invalidate(ctx, houseID)
	}
	return n, nil
}

func (s *service) Balances(ctx context.Context, callerID, houseID uuid.UUID) ([]lodge.MemberBalance, lodge.BalanceSummary, error) {
	if err := s.acceptedMember(ctx, houseID, callerID); err != nil {
		return nil, lodge.BalanceSummary{}, err
	}
	if s.cache != nil {
		if balances, summary, ok := s.cache.Get(ctx, houseID, callerID); ok {
			return balances, summary, nil
		}
	}
	house, err := s.repo.House(ctx, houseID)
	if err != nil {
		return nil, lodge.BalanceSummary{}, err
	}
	members, err := s.repo.AcceptedMembers(ctx, houseID)
	if err != nil {
		return nil, lodge.BalanceSummary{}, err
	}
	expenses, err := s.repo.ExpensesByHouse(ctx, houseID)
	if err != nil {
		return nil, lodge.BalanceSummary{}, err
	}
	balances, summary, err := balance.Compute(house.Currency, callerID, members, expenses)
	if err != nil {
		return nil, lodge.BalanceSummary{}, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, houseID, callerID, balances, summary)
	}
	return balances, summary, nil
}

func (s *service) AttachReceipt(ctx context.Context, callerID, expenseID uuid.UUID, contentType string, r io.Reader) (string, error) {
	if s.receipts == nil {
		return "", fmt.Errorf("%w: receipt storage not configured", errs.ErrInvalid)
	}
	e, err := s.repo.Expense(ctx, expenseID)
	if err != nil {
		return "", err
	}
	if e.CreatorID != callerID {
		return "", ErrNotCreator
	}
	ext, ok := receipt.ExtensionFor(contentType)
	if !ok {
		return "", receipt.ErrUnsupportedType
	}
	object := e.ID.String() + "." + ext
	if e.ReceiptObject != "" && e.ReceiptObject != object {
		if err := s.receipts.Remove(ctx, e.ReceiptObject); err != nil {
			s.log.Warn("stale receipt cleanup failed", "expense_id", e.ID, "object", e.ReceiptObject, "err", err)
		}
	}
	if err := s.receipts.Save(ctx, object, r); err != nil {
		return "", err
	}
	e.ReceiptObject = object
	if _, err := s.writer.UpdateExpense(ctx, e); err != nil {
		// Orphaned blob: remove best-effort so a retry starts clean.
		if rmErr := s.receipts.Remove(ctx, object); rmErr != nil {
			s.log.Warn("orphan receipt cleanup failed", "object", object, "err", rmErr)
		}
		return "", err
	}
	return object, nil
}

func (s *service) OpenReceipt(ctx context.Context, callerID, expenseID uuid.UUID) (io.ReadCloser, string, error) {
	if s.receipts == nil {
		return nil, "", errs.ErrNotFound
	}
	e, err := s.Get(ctx, callerID, expenseID)
	if err != nil {
		return nil, "", err
	}
	if e.ReceiptObject == "" {
		return nil, "", errs.ErrNotFound
	}
	rc, err := s.receipts.Open(ctx, e.ReceiptObject)
	if err != nil {
		return nil, "", errs.ErrNotFound
	}
	return rc, receipt.ContentTypeFor(e.ReceiptObject), nil
}

func (s *service) RemoveReceipt(ctx context.Context, callerID, expenseID uuid.UUID) error {
	if s.receipts == nil {
		return nil
	}
	e, err := s.repo.Expense(ctx, expenseID)
	if err != nil {
		return err
	}
	if e.CreatorID != callerID {
		return ErrNotCreator
	}
	if e.ReceiptObject == "" {
		return nil
	}
	if err := s.receipts.Remove(ctx, e.ReceiptObject); err != nil {
		return err
	}
	e.ReceiptObject = ""
	_, err = s.writer.UpdateExpense(ctx, e)
	return err
}

func (s *service) invalidate(ctx context.Context, houseID uuid.UUID) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, houseID)
	}
}
