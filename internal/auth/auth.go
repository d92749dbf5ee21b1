// Package auth answers one question for the HTTP layer: is this caller the
// administrator.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/Shivanand-hulikatti/slot-booking/internal/config"
)

// ErrUnauthorized is returned when admin credentials are missing or wrong.
var ErrUnauthorized = errors.New("unauthorized")

const adminSubject = "admin"

// Claims are the JWT claims of an admin session token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator checks the admin password and issues and verifies admin
// session tokens.
type Authenticator struct {
	password []byte
	hash     []byte
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

// NewAuthenticator builds an Authenticator from cfg. A bcrypt hash takes
// precedence over a plaintext password when both are set.
func NewAuthenticator(cfg config.AuthConfig) *Authenticator {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Authenticator{
		password: []byte(cfg.AdminPassword),
		hash:     []byte(cfg.AdminPasswordHash),
		secret:   []byte(cfg.Secret),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Login issues a signed token if password is the admin password.
func (a *Authenticator) Login(password string) (string, time.Time, error) {
	if password == "" || !a.checkPassword(password) {
		return "", time.Time{}, ErrUnauthorized
	}

	now := a.now()
	expiresAt := now.Add(a.ttl)
	claims := Claims{
		Role: adminSubject,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   adminSubject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Authorized reports whether r carries a valid admin bearer token.
func (a *Authenticator) Authorized(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenString == "" {
		return false
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(adminSubject),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !token.Valid {
		return false
	}
	return claims.Role == adminSubject
}

func (a *Authenticator) checkPassword(password string) bool {
	if len(a.hash) > 0 {
		return bcrypt.CompareHashAndPassword(a.hash, []byte(password)) == nil
	}
	if len(a.password) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(a.password, []byte(password)) == 1
}
