package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/erazemk/orozarna/internal/model"
)

func testUser() *model.User {
	return &model.User{ID: 3, Username: "nina", Role: model.RoleCoach, VerifiedAdult: true}
}

func TestGenerateAndValidateToken(t *testing.T) {
	token, err := GenerateToken("secret", testUser(), time.Now())
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ValidateToken("secret", token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != 3 || claims.Username != "nina" {
		t.Errorf("unexpected identity %d/%q", claims.UserID, claims.Username)
	}
	if claims.Role != model.RoleCoach || !claims.VerifiedAdult {
		t.Errorf("unexpected role %q verified %v", claims.Role, claims.VerifiedAdult)
	}
	if claims.ID == "" {
		t.Error("expected a JTI")
	}
}

func TestTokensHaveDistinctIDs(t *testing.T) {
	now := time.Now()
	a, _ := GenerateToken("secret", testUser(), now)
	b, _ := GenerateToken("secret", testUser(), now)

	ca, _ := ValidateToken("secret", a)
	cb, _ := ValidateToken("secret", b)
	if ca.ID == cb.ID {
		t.Error("expected distinct JTIs for tokens issued at the same instant")
	}
}

func TestValidateTokenRejects(t *testing.T) {
	good, _ := GenerateToken("secret", testUser(), time.Now())
	expired, _ := GenerateToken("secret", testUser(), time.Now().Add(-2*TokenExpiry))

	tests := []struct {
		name   string
		secret string
		token  string
	}{
		{"wrong secret", "other", good},
		{"expired", "secret", expired},
		{"garbage", "secret", "not-a-token"},
	}
	for _, tt := range tests {
		_, err := ValidateToken(tt.secret, tt.token)
		if !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: expected ErrInvalidToken, got %v", tt.name, err)
		}
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(hash, "correct horse") {
		t.Error("expected password to match")
	}
	if CheckPassword(hash, "wrong") {
		t.Error("expected wrong password to fail")
	}
}
