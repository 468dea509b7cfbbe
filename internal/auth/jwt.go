package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Campus/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

var ErrNoSecret = errors.New("auth: empty signing secret")

// Claims carries the campus identity. The subject is the user id.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// JWTGateway verifies identity tokens issued by the campus auth service.
type JWTGateway struct {
	cfg    JWTConfig
	key    []byte
	parser *jwt.Parser
}

func NewJWTGateway(cfg JWTConfig) (*JWTGateway, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrNoSecret
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &JWTGateway{cfg: cfg, key: []byte(cfg.Secret), parser: jwt.NewParser(opts...)}, nil
}

func (g *JWTGateway) Verify(_ context.Context, token string) (domain.Identity, error) {
	claims := &Claims{}
	_, err := g.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return g.key, nil
	})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("parse token: %w", err)
	}
	return domain.NewIdentity(claims.Subject, claims.Name)
}

// Issue signs a token for the given user. Used by the dev token command and tests.
func (g *JWTGateway) Issue(userID, displayName string) (string, error) {
	now := time.Now()
	ttl := g.cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	claims := Claims{
		Name: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    g.cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if g.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{g.cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.key)
}
