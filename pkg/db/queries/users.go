package queries

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ASHISH26940/manim-studio/pkg/db"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const userColumns = `id, username, email, password_hash, generations_remaining, created_at, updated_at`

// CreateUser inserts a new user and fills in the generated fields.
func (s *Store) CreateUser(ctx context.Context, user *db.User) (*db.User, error) {
	if user.GenerationsRemaining <= 0 {
		user.GenerationsRemaining = db.DefaultGenerations
	}

	query := `
		INSERT INTO users (username, email, password_hash, generations_remaining)
		VALUES (:username, :email, :password_hash, :generations_remaining)
		RETURNING id, created_at, updated_at`

	rows, err := s.db.NamedQueryContext(ctx, query, user)
	if err != nil {
		log.Errorf("Error creating user: %v", err)
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		log.Error("No rows returned after user creation.")
		return nil, errors.New("no rows returned after user creation")
	}
	if err := rows.StructScan(user); err != nil {
		log.Errorf("Error scanning user data after creation: %v", err)
		return nil, err
	}

	log.Infof("User %s created with ID: %s", user.Email, user.ID.String())
	return user, nil
}

// FindUserByEmail returns nil, nil when no user has that email.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*db.User, error) {
	return s.findUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// FindUserByUsername returns nil, nil when no user has that username.
func (s *Store) FindUserByUsername(ctx context.Context, username string) (*db.User, error) {
	return s.findUser(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

// FindUserByID returns nil, nil when the user does not exist.
func (s *Store) FindUserByID(ctx context.Context, id uuid.UUID) (*db.User, error) {
	return s.findUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *Store) findUser(ctx context.Context, query string, arg any) (*db.User, error) {
	user := &db.User{}
	if err := s.db.GetContext(ctx, user, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debugf("User lookup %v matched no rows.", arg)
			return nil, nil
		}
		log.Errorf("Error finding user %v: %v", arg, err)
		return nil, err
	}
	return user, nil
}

// DecrementUserGenerations lowers the quota by one, never below zero, and
// returns the user as stored afterwards. A user already at zero is returned
// unchanged.
func (s *Store) DecrementUserGenerations(ctx context.Context, id uuid.UUID) (*db.User, error) {
	user := &db.User{}
	query := `
		UPDATE users
		SET generations_remaining = generations_remaining - 1, updated_at = NOW()
		WHERE id = $1 AND generations_remaining > 0
		RETURNING ` + userColumns
	err := s.db.GetContext(ctx, user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return s.FindUserByID(ctx, id)
	}
	if err != nil {
		log.Errorf("Error decrementing generations for user '%s': %v", id.String(), err)
		return nil, err
	}
	log.Debugf("User '%s' has %d generations remaining.", id.String(), user.GenerationsRemaining)
	return user, nil
}

// SetUserGenerations overwrites the remaining quota of a user.
func (s *Store) SetUserGenerations(ctx context.Context, id uuid.UUID, remaining int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET generations_remaining = $2, updated_at = NOW() WHERE id = $1`, id, remaining)
	if err != nil {
		log.Errorf("Error setting generations for user '%s': %v", id.String(), err)
		return err
	}
	return expectRow(result)
}

// DeleteUser removes a user. Settings, animations and tasks cascade.
func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		log.Errorf("Error deleting user '%s': %v", id.String(), err)
		return err
	}
	return expectRow(result)
}
