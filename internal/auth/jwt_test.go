package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func makeJWT(secret, aud, iss, sub, name string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(ttl).Unix(),
	}
	if aud != "" {
		claims["aud"] = aud
	}
	if iss != "" {
		claims["iss"] = iss
	}
	if name != "" {
		claims["name"] = name
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func TestVerify(t *testing.T) {
	g, err := NewJWTGateway(JWTConfig{Secret: "testsecret", Issuer: "campus", Audience: "realtime"})
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}

	tests := []struct {
		name    string
		secret  string
		aud     string
		iss     string
		sub     string
		ttl     time.Duration
		wantErr bool
	}{
		{name: "valid", secret: "testsecret", aud: "realtime", iss: "campus", sub: "alice", ttl: time.Minute},
		{name: "wrong secret", secret: "other", aud: "realtime", iss: "campus", sub: "alice", ttl: time.Minute, wantErr: true},
		{name: "wrong audience", secret: "testsecret", aud: "web", iss: "campus", sub: "alice", ttl: time.Minute, wantErr: true},
		{name: "wrong issuer", secret: "testsecret", aud: "realtime", iss: "evil", sub: "alice", ttl: time.Minute, wantErr: true},
		{name: "expired", secret: "testsecret", aud: "realtime", iss: "campus", sub: "alice", ttl: -time.Minute, wantErr: true},
		{name: "no subject", secret: "testsecret", aud: "realtime", iss: "campus", sub: "", ttl: time.Minute, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := makeJWT(tt.secret, tt.aud, tt.iss, tt.sub, "Alice", tt.ttl)
			if err != nil {
				t.Fatalf("sign: %v", err)
			}
			id, err := g.Verify(context.Background(), tok)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got identity %+v", id)
				}
				return
			}
			if err != nil {
				t.Fatalf("verify: %v", err)
			}
			if id.UserID != "alice" || id.DisplayName != "Alice" {
				t.Fatalf("unexpected identity %+v", id)
			}
		})
	}
}

func TestIssueRoundTrip(t *testing.T) {
	g, _ := NewJWTGateway(JWTConfig{Secret: "s", Audience: "realtime"})
	tok, err := g.Issue("bob", "Bob")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	id, err := g.Verify(context.Background(), tok)
	if err != nil || id.UserID != "bob" {
		t.Fatalf("issued token should verify: %v %+v", err, id)
	}
}

func TestEmptySecretRejected(t *testing.T) {
	if _, err := NewJWTGateway(JWTConfig{}); err != ErrNoSecret {
		t.Fatalf("expected ErrNoSecret, got %v", err)
	}
}
