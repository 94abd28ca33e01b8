package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"rtc-service/internal/repositories"
)

var (
	ErrUnauthenticated   = errors.New("no credential presented")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrExpiredCredential = errors.New("expired credential")
	ErrAccountDisabled   = errors.New("account disabled")
)

// Identity is bound to a connection for its whole lifetime. Tokens are
// verified once at connect time; revocation takes effect on reconnect.
type Identity struct {
	UserID      string
	DisplayName string
	AvatarURL   string
}

// Verifier checks the signature and expiry of a bearer credential.
type Verifier struct {
	secret []byte
}

// NewVerifier builds a Verifier with the identity service's shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

type claims struct {
	jwt.RegisteredClaims
}

// VerifyCredential validates the token and returns the identity id it
// carries. Expiry is reported distinctly so clients can silently refresh.
func (v *Verifier) VerifyCredential(token string) (string, error) {
	if len(v.secret) == 0 {
		return "", ErrInvalidCredential
	}

	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredCredential
		}
		return "", ErrInvalidCredential
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || strings.TrimSpace(c.Subject) == "" {
		return "", ErrInvalidCredential
	}
	return c.Subject, nil
}

// Authenticator resolves a bearer header into a full identity context.
type Authenticator struct {
	verifier  *Verifier
	directory repositories.UserDirectory
	timeout   time.Duration
}

// NewAuthenticator constructs an Authenticator. The directory lookup runs
// under its own deadline so a slow directory cannot hang the handshake.
func NewAuthenticator(verifier *Verifier, directory repositories.UserDirectory, timeout time.Duration) *Authenticator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Authenticator{verifier: verifier, directory: directory, timeout: timeout}
}

// Authenticate verifies the "Bearer <token>" header and looks the identity
// up in the user directory.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (Identity, error) {
	token := strings.TrimSpace(header)
	if token == "" {
		return Identity{}, ErrUnauthenticated
	}
	if parts := strings.SplitN(token, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		token = parts[1]
	}

	userID, err := a.verifier.VerifyCredential(token)
	if err != nil {
		return Identity{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	rec, err := a.directory.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return Identity{}, ErrInvalidCredential
		}
		return Identity{}, err
	}
	if !rec.Active {
		return Identity{}, ErrAccountDisabled
	}

	return Identity{UserID: rec.ID, DisplayName: rec.Username, AvatarURL: rec.AvatarURL}, nil
}
