package auth

import (
	"strings"
	"testing"
	"time"
)

func TestIssuePairRoundTrip(t *testing.T) {
	issuer := NewIssuer("access-secret", time.Minute, "refresh-secret", time.Hour)

	pair, err := issuer.IssuePair(42, "tg-4242", "director")
	if err != nil {
		t.Fatalf("IssuePair returned error: %v", err)
	}

	claims, err := issuer.ParseAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccess returned error: %v", err)
	}
	if claims.UserID != 42 || claims.TelegramID != "tg-4242" || claims.Role != "director" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	refreshClaims, err := issuer.ParseRefresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("ParseRefresh returned error: %v", err)
	}
	if refreshClaims.UserID != 42 {
		t.Fatalf("unexpected refresh claims: %+v", refreshClaims)
	}
}

func TestTokenKindsDoNotCross(t *testing.T) {
	issuer := NewIssuer("access-secret", time.Minute, "refresh-secret", time.Hour)

	pair, err := issuer.IssuePair(1, "tg-1", "user")
	if err != nil {
		t.Fatalf("IssuePair returned error: %v", err)
	}

	if _, err := issuer.ParseAccess(pair.RefreshToken); err == nil {
		t.Fatal("a refresh token must not verify as an access token")
	}
	if _, err := issuer.ParseRefresh(pair.AccessToken); err == nil {
		t.Fatal("an access token must not verify as a refresh token")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	issuer := NewIssuer("access-secret", -time.Minute, "refresh-secret", time.Hour)

	pair, err := issuer.IssuePair(1, "tg-1", "user")
	if err != nil {
		t.Fatalf("IssuePair returned error: %v", err)
	}
	if _, err := issuer.ParseAccess(pair.AccessToken); err == nil {
		t.Fatal("an expired token must be rejected")
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	issuer := NewIssuer("access-secret", time.Minute, "refresh-secret", time.Hour)

	pair, err := issuer.IssuePair(7, "tg-7", "admin")
	if err != nil {
		t.Fatalf("IssuePair returned error: %v", err)
	}

	parts := strings.Split(pair.AccessToken, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %q", pair.AccessToken)
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := issuer.ParseAccess(tampered); err == nil {
		t.Fatal("a tampered signature must be rejected")
	}
}
