package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/application"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestInviteCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 12, 15, 0, 0, 0, time.UTC)
	codec, err := NewInviteCodec(testSecret, func() time.Time { return now })
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	raw, err := codec.Issue(application.InviteClaims{InviteID: "inv-1", EmployeeID: "emp-1", ExpiresAt: now.Add(72 * time.Hour)})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if strings.Count(raw, ".") != 2 {
		t.Fatalf("expected compact JWT, got %q", raw)
	}

	claims, err := codec.Parse(raw)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if claims.InviteID != "inv-1" || claims.EmployeeID != "emp-1" || !claims.ExpiresAt.Equal(now.Add(72*time.Hour)) {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestInviteCodec_Rejects(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 12, 15, 0, 0, 0, time.UTC)
	clock := now
	codec, _ := NewInviteCodec(testSecret, func() time.Time { return clock })
	raw, _ := codec.Issue(application.InviteClaims{InviteID: "inv-1", EmployeeID: "emp-1", ExpiresAt: now.Add(time.Hour)})

	t.Run("expired", func(t *testing.T) {
		late, _ := NewInviteCodec(testSecret, func() time.Time { return now.Add(2 * time.Hour) })
		if _, err := late.Parse(raw); !errors.Is(err, application.ErrInviteExpired) {
			t.Fatalf("expected ErrInviteExpired, got %v", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, _ := NewInviteCodec("ffffffffffffffffffffffffffffffff", func() time.Time { return now })
		if _, err := other.Parse(raw); !errors.Is(err, application.ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("tampered", func(t *testing.T) {
		if _, err := codec.Parse(raw + "x"); !errors.Is(err, application.ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("wrong audience", func(t *testing.T) {
		body := jwt.RegisteredClaims{
			ID:        "inv-1",
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{"session"},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}
		forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, body).SignedString([]byte(testSecret))
		if err != nil {
			t.Fatalf("sign failed: %v", err)
		}
		if _, err := codec.Parse(forged); !errors.Is(err, application.ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})
}

func TestNewInviteCodec_ShortSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewInviteCodec("short", nil); err == nil {
		t.Fatal("expected error for short secret")
	}
}
