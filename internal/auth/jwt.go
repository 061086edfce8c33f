package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer             = "monuguard"
	defaultTokenExpiry = 24 * time.Hour
	generatedSecretLen = 32
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims carries the logged in user through the API
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// tokens issues and verifies the HS256 session tokens handed out by Login
type tokens struct {
	key    []byte
	expiry time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// newTokens reads the signing key and lifetime from s. Without a JWTSecret a
// random key is generated, so sessions end when the server restarts.
func newTokens(s Settings) (*tokens, error) {
	key := []byte(s.JWTSecret)
	if len(key) == 0 {
		key = make([]byte, generatedSecretLen)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
	}
	expiry := s.JWTExpiry
	if expiry <= 0 {
		expiry = defaultTokenExpiry
	}

	t := &tokens{key: key, expiry: expiry, now: time.Now}
	t.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return t.now() }),
	)
	return t, nil
}

// issue signs a token for username and reports when it stops being accepted
func (t *tokens) issue(username string) (string, time.Time, error) {
	issuedAt := t.now()
	expiresAt := issuedAt.Add(t.expiry)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}).SignedString(t.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// verify checks signature, issuer and expiry. Expired tokens are reported
// separately so clients can tell a stale session from a forged one.
func (t *tokens) verify(signed string) (*Claims, error) {
	var claims Claims
	if _, err := t.parser.ParseWithClaims(signed, &claims, func(*jwt.Token) (interface{}, error) {
		return t.key, nil
	}); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if claims.Username == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
