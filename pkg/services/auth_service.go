package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ASHISH26940/manim-studio/pkg/apperr"
	"github.com/ASHISH26940/manim-studio/pkg/db"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// UserStore is the part of the record store that accounts need.
type UserStore interface {
	CreateUser(ctx context.Context, user *db.User) (*db.User, error)
	FindUserByEmail(ctx context.Context, email string) (*db.User, error)
	FindUserByUsername(ctx context.Context, username string) (*db.User, error)
	FindUserByID(ctx context.Context, id uuid.UUID) (*db.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

type RegisterInput struct {
	Username string `json:"username" validate:"required,min=3,max=30"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=100"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthService struct {
	store    UserStore
	tokens   *TokenService
	validate *validator.Validate
	cost     int
}

func NewAuthService(store UserStore, tokens *TokenService) *AuthService {
	return &AuthService{
		store:    store,
		tokens:   tokens,
		validate: NewValidator(),
		cost:     bcrypt.DefaultCost,
	}
}

// Register creates an account and signs the user in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*db.User, string, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := s.validate.Struct(in); err != nil {
		return nil, "", validationError(err)
	}

	existing, err := s.store.FindUserByEmail(ctx, in.Email)
	if err != nil {
		return nil, "", fmt.Errorf("find user by email: %w", err)
	}
	if existing != nil {
		return nil, "", apperr.Wrap(apperr.ErrConflict, "", "User with email already exists", nil)
	}
	existing, err = s.store.FindUserByUsername(ctx, in.Username)
	if err != nil {
		return nil, "", fmt.Errorf("find user by username: %w", err)
	}
	if existing != nil {
		return nil, "", apperr.Wrap(apperr.ErrConflict, "", "Username already taken", nil)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}
	user, err := s.store.CreateUser(ctx, &db.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hashed),
	})
	if err != nil {
		return nil, "", fmt.Errorf("create user: %w", err)
	}
	log.Infof("User with ID '%s' created.", user.ID.String())

	token, err := s.tokens.GenerateToken(user.ID, user.Email, user.Username)
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}
	return user, token, nil
}

// Login checks the password and returns a fresh token. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*db.User, string, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := s.validate.Struct(in); err != nil {
		return nil, "", validationError(err)
	}

	user, err := s.store.FindUserByEmail(ctx, in.Email)
	if err != nil {
		return nil, "", fmt.Errorf("find user by email: %w", err)
	}
	if user == nil {
		log.Debugf("Login: user with email '%s' not found.", in.Email)
		return nil, "", invalidCredentials()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		log.Debugf("Login: invalid password for user '%s'.", in.Email)
		return nil, "", invalidCredentials()
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Email, user.Username)
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}
	log.Infof("User %s logged in successfully.", user.Email)
	return user, token, nil
}

// CurrentUser returns the account behind an authenticated request.
func (s *AuthService) CurrentUser(ctx context.Context, userID uuid.UUID) (*db.User, error) {
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return nil, apperr.Wrap(apperr.ErrNotFound, "", "User account not found", nil)
	}
	return user, nil
}

// DeleteAccount removes the user together with settings, animations and tasks.
func (s *AuthService) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	err := s.store.DeleteUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Wrap(apperr.ErrNotFound, "", "User account not found or already deleted", nil)
	}
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	log.Infof("User with ID '%s' deleted.", userID.String())
	return nil
}

func invalidCredentials() error {
	return apperr.Wrap(apperr.ErrUnauthorized, "", "Invalid credentials", nil)
}
