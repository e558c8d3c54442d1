package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ASHISH26940/manim-studio/pkg/apperr"
	"github.com/ASHISH26940/manim-studio/pkg/db"
	"github.com/ASHISH26940/manim-studio/pkg/db/memory"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

func newAuthFixture() (*AuthService, *memory.Store, *TokenService) {
	store := memory.New()
	tokens := NewTokenService("test-secret")
	svc := NewAuthService(store, tokens)
	svc.cost = bcrypt.MinCost
	return svc, store, tokens
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc, _, tokens := newAuthFixture()

	user, token, err := svc.Register(ctx, RegisterInput{Username: "ada", Email: "Ada@Example.com", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("Register() err=%v", err)
	}
	if user.Email != "ada@example.com" || user.GenerationsRemaining != db.DefaultGenerations {
		t.Fatalf("user=%+v", user)
	}
	claims, err := tokens.ValidateToken(token)
	if err != nil || claims.UserID != user.ID {
		t.Fatalf("ValidateToken()=%+v, %v", claims, err)
	}

	_, token, err = svc.Login(ctx, LoginInput{Email: "ADA@example.com", Password: "correct-horse"})
	if err != nil || token == "" {
		t.Fatalf("Login() token=%q err=%v", token, err)
	}

	_, _, err = svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "wrong-password"})
	if !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("Login() wrong password err=%v, want ErrUnauthorized", err)
	}
	_, _, err = svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "whatever"})
	if !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("Login() unknown email err=%v, want ErrUnauthorized", err)
	}
}

func TestRegister_Conflicts(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newAuthFixture()
	if _, _, err := svc.Register(ctx, RegisterInput{Username: "ada", Email: "ada@example.com", Password: "correct-horse"}); err != nil {
		t.Fatalf("Register() err=%v", err)
	}

	_, _, err := svc.Register(ctx, RegisterInput{Username: "ada2", Email: "ada@example.com", Password: "correct-horse"})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("duplicate email err=%v, want ErrConflict", err)
	}
	_, _, err = svc.Register(ctx, RegisterInput{Username: "ada", Email: "other@example.com", Password: "correct-horse"})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("duplicate username err=%v, want ErrConflict", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	svc, _, _ := newAuthFixture()
	_, _, err := svc.Register(context.Background(), RegisterInput{Username: "ada", Email: "not-an-email", Password: "correct-horse"})
	if !errors.Is(err, apperr.ErrValidation) || apperr.Message(err) != "email must be a valid email address" {
		t.Fatalf("Register() err=%v", err)
	}
	_, _, err = svc.Register(context.Background(), RegisterInput{Username: "ada", Email: "ada@example.com", Password: "short"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("Register() short password err=%v", err)
	}
}

func TestDeleteAccount(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newAuthFixture()
	user, _, _ := svc.Register(ctx, RegisterInput{Username: "ada", Email: "ada@example.com", Password: "correct-horse"})

	if err := svc.DeleteAccount(ctx, user.ID); err != nil {
		t.Fatalf("DeleteAccount() err=%v", err)
	}
	if got, _ := store.FindUserByID(ctx, user.ID); got != nil {
		t.Fatalf("user still present: %+v", got)
	}
	if err := svc.DeleteAccount(ctx, user.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("second DeleteAccount() err=%v, want ErrNotFound", err)
	}
	if _, err := svc.CurrentUser(ctx, user.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("CurrentUser() err=%v, want ErrNotFound", err)
	}
}

func TestValidateToken_Rejects(t *testing.T) {
	tokens := NewTokenService("secret-a")
	token, err := tokens.GenerateToken(uuid.New(), "ada@example.com", "ada")
	if err != nil {
		t.Fatalf("GenerateToken() err=%v", err)
	}
	if _, err := NewTokenService("secret-b").ValidateToken(token); err == nil {
		t.Fatal("ValidateToken() with wrong secret err=nil")
	}
	if _, err := tokens.ValidateToken("not.a.token"); err == nil {
		t.Fatal("ValidateToken() garbage err=nil")
	}

	expired := NewTokenService("secret-a")
	expired.ttl = -time.Minute
	token, _ = expired.GenerateToken(uuid.New(), "ada@example.com", "ada")
	if _, err := tokens.ValidateToken(token); err == nil {
		t.Fatal("ValidateToken() expired err=nil")
	}
}
