// Package auth implements account registration and login with bcrypt password
// hashing and JWT session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/alpenhaus/alpenhaus/internal/errs"
	"github.com/alpenhaus/alpenhaus/internal/lodge"
)

var (
	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("an account with this email already exists")
	// ErrBadCredentials is returned on login with a wrong email or password.
	ErrBadCredentials = errors.New("invalid email or password")
)

// Repo defines read operations needed by the service.
type Repo interface {
	User(ctx context.Context, userID uuid.UUID) (lodge.User, error)
	UserByEmail(ctx context.Context, email string) (lodge.User, error)
}

// Writer defines write operations needed by the service.
type Writer interface {
	CreateUser(ctx context.Context, u lodge.User) (lodge.User, error)
}

// Service exposes registration and login.
type Service interface {
	Register(ctx context.Context, email, name, password string) (lodge.User, error)
	Login(ctx context.Context, email, password string) (lodge.User, string, error)
}

type service struct {
	repo   Repo
	writer Writer
	tokens *JWTManager
}

// New constructs the auth service.
func New(repo Repo, writer Writer, tokens *JWTManager) Service {
	return &service{repo: repo, writer: writer, tokens: tokens}
}

func (s *service) Register(ctx context.Context, email, name, password string) (lodge.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return lodge.User{}, fmt.Errorf("%w: a valid email is required", errs.ErrInvalid)
	}
	if name == "" {
		return lodge.User{}, fmt.Errorf("%w: name is required", errs.ErrInvalid)
	}
	if len(password) < 8 {
		return lodge.User{}, fmt.Errorf("%w: password must be at least 8 characters", errs.ErrInvalid)
	}
	if _, err := s.repo.UserByEmail(ctx, email); err == nil {
		return lodge.User{}, ErrEmailTaken
	} else if !errors.Is(err, errs.ErrNotFound) {
		return lodge.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return lodge.User{}, err
	}
	return s.writer.CreateUser(ctx, lodge.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	})
}

func (s *service) Login(ctx context.Context, email, password string) (lodge.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.repo.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return lodge.User{}, "", ErrBadCredentials
		}
		return lodge.User{}, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return lodge.User{}, "", ErrBadCredentials
	}
	token, err := s.tokens.Generate(u)
	if err != nil {
		return lodge.User{}, "", err
	}
	return u, token, nil
}
