package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pesio-ai/be-procurement/internal/platform/errors"
	"github.com/pesio-ai/be-procurement/internal/repository"
)

// Claims are the identity provider's token payload.
type Claims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// TokenVerifier turns bearer tokens issued by the identity provider into actors.
type TokenVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenVerifier creates a verifier for HS256 tokens. When issuer is set
// the iss claim must match.
func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Verify validates the token and returns the actor it identifies.
func (v *TokenVerifier) Verify(token string) (repository.Actor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return repository.Actor{}, errors.New(errors.ErrCodeUnauthorized, "missing bearer token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return repository.Actor{}, errors.Wrap(err, errors.ErrCodeUnauthorized, "invalid or expired token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return repository.Actor{}, errors.New(errors.ErrCodeUnauthorized, "invalid token claims")
	}

	id := claims.UserID
	if id == "" {
		id = claims.Subject
	}
	if id == "" {
		return repository.Actor{}, errors.New(errors.ErrCodeUnauthorized, "token has no subject")
	}
	if len(id) > repository.MaxActorIDLen || len(claims.Username) > repository.MaxActorIDLen {
		return repository.Actor{}, errors.New(errors.ErrCodeUnauthorized, "token subject or username is too long")
	}
	role := repository.Role(strings.ToLower(claims.Role))
	if !role.Valid() {
		return repository.Actor{}, errors.New(errors.ErrCodeUnauthorized, fmt.Sprintf("token carries unknown role %q", claims.Role))
	}

	return repository.Actor{ID: id, Username: claims.Username, Role: role}, nil
}

// Issue signs a token for actor, valid for ttl. Used by development tooling
// and tests; production tokens come from the identity provider.
func (v *TokenVerifier) Issue(actor repository.Actor, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		UserID:   actor.ID,
		Username: actor.Username,
		Role:     string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
