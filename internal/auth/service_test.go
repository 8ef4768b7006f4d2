package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/clock"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/models"
)

func TestIssueAndValidate(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	svc := NewService("test-secret-123", clk)
	userID := uuid.New()

	tok, err := svc.Issue(userID, models.RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	id, err := svc.Validate(tok)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if id.UserID != userID || !id.IsAdmin() {
		t.Errorf("got %+v", id)
	}

	clk.Advance(61 * time.Minute)
	if _, err := svc.Validate(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token: got %v, want ErrInvalidToken", err)
	}
}

func TestValidateRejects(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	svc := NewService("test-secret-123", clk)
	other := NewService("another-secret", clk)

	foreign, _ := other.Issue(uuid.New(), models.RoleUser, time.Hour)

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString()},
		Role:             models.RoleUser,
	})
	noExpTok, _ := noExp.SignedString([]byte("test-secret-123"))

	badRole := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString(), ExpiresAt: jwt.NewNumericDate(clk.Now().Add(time.Hour))},
		Role:             "root",
	})
	badRoleTok, _ := badRole.SignedString([]byte("test-secret-123"))

	cases := map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": foreign,
		"no expiry":    noExpTok,
		"unknown role": badRoleTok,
		"empty":        "",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.Validate(tok); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("got %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestIssueRejectsUnknownRole(t *testing.T) {
	svc := NewService("test-secret-123", nil)
	if _, err := svc.Issue(uuid.New(), "superuser", 0); err == nil {
		t.Fatal("expected error for unknown role")
	}
}
