package main

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/deskwing/deskwing/internal/config"
)

func tokenTestConfig() config.Config {
	return config.Config{
		Auth: config.AuthConfig{
			JWTSecret:    "test-secret",
			JWTExpiresIn: "24h",
		},
	}
}

func parseClaims(t *testing.T, signed, secret string) jwt.MapClaims {
	t.Helper()
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(signed, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	return claims
}

func TestMintOperatorToken(t *testing.T) {
	t.Parallel()

	cfg := tokenTestConfig()
	signed, expiresAt, err := mintToken(cfg, "op-1", "", "", "1h")
	if err != nil {
		t.Fatalf("mintToken: %v", err)
	}
	if until := time.Until(expiresAt); until < 59*time.Minute || until > time.Hour {
		t.Errorf("expiry %s not about an hour out", expiresAt)
	}

	claims := parseClaims(t, signed, cfg.Auth.JWTSecret)
	if claims["user_id"] != "op-1" {
		t.Errorf("user_id = %v, want op-1", claims["user_id"])
	}
	if _, ok := claims["typ"]; ok {
		t.Error("operator token must not carry an adapter type claim")
	}
}

func TestMintAdapterToken(t *testing.T) {
	t.Parallel()

	cfg := tokenTestConfig()
	signed, _, err := mintToken(cfg, "", "chat", "widget-eu", "")
	if err != nil {
		t.Fatalf("mintToken: %v", err)
	}

	claims := parseClaims(t, signed, cfg.Auth.JWTSecret)
	if claims["typ"] != "channel_adapter" {
		t.Errorf("typ = %v, want channel_adapter", claims["typ"])
	}
	if claims["channel"] != "chat" || claims["adapter_id"] != "widget-eu" {
		t.Errorf("adapter claims = %v/%v", claims["channel"], claims["adapter_id"])
	}
}

func TestMintTokenFlagValidation(t *testing.T) {
	t.Parallel()

	cfg := tokenTestConfig()
	cases := []struct {
		name                     string
		user, channel, adapterID string
	}{
		{name: "nothing"},
		{name: "mixed", user: "op-1", channel: "chat", adapterID: "widget-eu"},
		{name: "channel without adapter id", channel: "email"},
	}
	for _, tc := range cases {
		if _, _, err := mintToken(cfg, tc.user, tc.channel, tc.adapterID, "1h"); err == nil {
			t.Errorf("%s: expected an error", tc.name)
		}
	}
}

func TestMintTokenBadDuration(t *testing.T) {
	t.Parallel()

	_, _, err := mintToken(tokenTestConfig(), "op-1", "", "", "soon")
	if err == nil || !strings.Contains(err.Error(), "expires-in") {
		t.Errorf("expected duration parse error, got %v", err)
	}
}
