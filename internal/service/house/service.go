// Package house manages houses and their memberships: creation, invitations,
// and acceptance. The creating user becomes the house's first accepted admin.
package house

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/alpenhaus/alpenhaus/internal/errs"
	"github.com/alpenhaus/alpenhaus/internal/lodge"
)

var (
	// ErrNotAdmin is returned when a non-admin invites members.
	ErrNotAdmin = errors.New("only a house admin can invite members")
	// ErrAlreadyMember is returned when inviting a user who already has a membership.
	ErrAlreadyMember = errors.New("user is already a member of this house")
	// ErrNoInvite is returned when accepting without a pending invitation.
	ErrNoInvite = errors.New("no pending invitation for this house")
)

// Repo defines read operations needed by the service.
type Repo interface {
	House(ctx context.Context, houseID uuid.UUID) (lodge.House, error)
	HousesByUser(ctx context.Context, userID uuid.UUID) ([]lodge.House, error)
	Membership(ctx context.Context, houseID, userID uuid.UUID) (lodge.Membership, error)
	Memberships(ctx context.Context, houseID uuid.UUID) ([]lodge.Membership, error)
	User(ctx context.Context, userID uuid.UUID) (lodge.User, error)
	UserByEmail(ctx context.Context, email string) (lodge.User, error)
}

// Writer defines write operations needed by the service.
type Writer interface {
	CreateHouse(ctx context.Context, h lodge.House) (lodge.House, error)
	CreateMembership(ctx context.Context, m lodge.Membership) (lodge.Membership, error)
	UpdateMembership(ctx context.Context, m lodge.Membership) (lodge.Membership, error)
}

// Member pairs membership data with the user behind it for listings.
type Member struct {
	User       lodge.User
	Membership lodge.Membership
}

// CreateInput carries the fields for a new house.
type CreateInput struct {
	Name                  string
	Currency              string
	GuestNightlyRateMinor int64
}

// Service exposes house and membership operations.
type Service interface {
	Create(ctx context.Context, callerID uuid.UUID, in CreateInput) (lodge.House, error)
	List(ctx context.Context, callerID uuid.UUID) ([]lodge.House, error)
	Members(ctx context.Context, callerID, houseID uuid.UUID) ([]Member, error)
	Invite(ctx context.Context, callerID, houseID uuid.UUID, email string) (lodge.Membership, error)
	Accept(ctx context.Context, callerID, houseID uuid.UUID) (lodge.Membership, error)
}

type service struct {
	repo   Repo
	writer Writer
}

// New constructs the house service.
func New(repo Repo, writer Writer) Service { return &service{repo: repo, writer: writer} }

func (s *service) Create(ctx context.Context, callerID uuid.UUID, in CreateInput) (lodge.House, error) {
	if callerID == uuid.Nil {
		return lodge.House{}, errs.ErrInvalid
	}
	if in.Name == "" {
		return lodge.House{}, fmt.Errorf("%w: name is required", errs.ErrInvalid)
	}
	if len(in.Currency) != 3 {
		return lodge.House{}, fmt.Errorf("%w: currency must be a 3-letter code", errs.ErrInvalid)
	}
	if in.GuestNightlyRateMinor < 0 {
		return lodge.House{}, fmt.Errorf("%w: guest nightly rate must not be negative", errs.ErrInvalid)
	}
	rate, err := money.NewAmountFromMinorUnits(in.Currency, in.GuestNightlyRateMinor)
	if err != nil {
		return lodge.House{}, fmt.Errorf("%w: %s", errs.ErrInvalid, err)
	}
	h := lodge.House{
		ID:               uuid.New(),
		Name:             in.Name,
		Currency:         rate.Curr().Code(),
		GuestNightlyRate: rate,
		CreatedAt:        time.Now().UTC(),
	}
	created, err := s.writer.CreateHouse(ctx, h)
	if err != nil {
		return lodge.House{}, err
	}
	_, err = s.writer.CreateMembership(ctx, lodge.Membership{
		HouseID:  created.ID,
		UserID:   callerID,
		Role:     lodge.RoleAdmin,
		Status:   lodge.StatusAccepted,
		JoinedAt: time.Now().UTC(),
	})
	if err != nil {
		return lodge.House{}, err
	}
	return created, nil
}

func (s *service) List(ctx context.Context, callerID uuid.UUID) ([]lodge.House, error) {
	if callerID == uuid.Nil {
		return nil, errs.ErrInvalid
	}
	return s.repo.HousesByUser(ctx, callerID)
}

func (s *service) Members(ctx context.Context, callerID, houseID uuid.UUID) ([]Member, error) {
	m, err := s.repo.Membership(ctx, houseID, callerID)
	if err != nil || m.Status != lodge.StatusAccepted {
		return nil, errs.ErrForbidden
	}
	memberships, err := s.repo.Memberships(ctx, houseID)
	if err != nil {
		return nil, err
	}
	out := make([]Member, 0, len(memberships))
	for _, mb := range memberships {
		u, err := s.repo.User(ctx, mb.UserID)
		if err != nil {
			return nil, err
		}
		out = append(out, Member{User: u, Membership: mb})
	}
	return out, nil
}

// Invite creates a pending membership for the user with the given email.
func (s *service) Invite(ctx context.Context, callerID, houseID uuid.UUID, email string) (lodge.Membership, error) {
	caller, err := s.repo.Membership(ctx, houseID, callerID)
	if err != nil || caller.Status != lodge.StatusAccepted || caller.Role != lodge.RoleAdmin {
		return lodge.Membership{}, ErrNotAdmin
	}
	invitee, err := s.repo.UserByEmail(ctx, email)
	if err != nil {
		return lodge.Membership{}, err
	}
	if _, err := s.repo.Membership(ctx, houseID, invitee.ID); err == nil {
		return lodge.Membership{}, ErrAlreadyMember
	} else if !errors.Is(err, errs.ErrNotFound) {
		return lodge.Membership{}, err
	}
	return s.writer.CreateMembership(ctx, lodge.Membership{
		HouseID:  houseID,
		UserID:   invitee.ID,
		Role:     lodge.RoleMember,
		Status:   lodge.StatusPending,
		JoinedAt: time.Now().UTC(),
	})
}

// Accept promotes the caller's pending invitation to an accepted membership.
// JoinedAt is stamped at acceptance; admin seniority for guest-fee attribution
// follows acceptance order.
func (s *service) Accept(ctx context.Context, callerID, houseID uuid.UUID) (lodge.Membership, error) {
	m, err := s.repo.Membership(ctx, houseID, callerID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return lodge.Membership{}, ErrNoInvite
		}
		return lodge.Membership{}, err
	}
	if m.Status != lodge.StatusPending {
		return lodge.Membership{}, ErrNoInvite
	}
	m.Status = lodge.StatusAccepted
	m.JoinedAt = time.Now().UTC()
	return s.writer.UpdateMembership(ctx, m)
}
