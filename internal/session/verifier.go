package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	platformerrors "github.com/xbiplob/WeFriend/internal/platform/errors"
)

// Verifier authenticates gateway bearer tokens issued by the identity
// collaborator. Tokens are HMAC-signed JWTs whose subject is the user id.
type Verifier struct {
	secret []byte
	clock  func() time.Time
}

// NewVerifier creates a token verifier for the shared signing secret.
func NewVerifier(secret []byte) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("signing secret is required")
	}
	return &Verifier{secret: secret, clock: time.Now}, nil
}

// Authenticate validates a bearer token and returns the subject user id.
func (v *Verifier) Authenticate(ctx context.Context, token string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", platformerrors.New(platformerrors.CodeUnauthenticated, "missing bearer token")
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(v.clock))
	if err != nil {
		return "", platformerrors.Wrap(platformerrors.CodeUnauthenticated, "invalid bearer token", err)
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return "", platformerrors.New(platformerrors.CodeUnauthenticated, "token has no subject")
	}
	return strings.TrimSpace(subject), nil
}

// IssueToken mints a token for a user id; used by tests and the dev seed.
func (v *Verifier) IssueToken(userID string, ttl time.Duration) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}
	now := v.clock()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
