package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Shivanand-hulikatti/slot-booking/internal/config"
)

func newAuth(t *testing.T, cfg config.AuthConfig) *Authenticator {
	t.Helper()
	if cfg.Secret == "" {
		cfg.Secret = "test-secret"
	}
	return NewAuthenticator(cfg)
}

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-pw"), bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name     string
		cfg      config.AuthConfig
		password string
		wantErr  bool
	}{
		{name: "plaintext ok", cfg: config.AuthConfig{AdminPassword: "s3cret"}, password: "s3cret"},
		{name: "plaintext wrong", cfg: config.AuthConfig{AdminPassword: "s3cret"}, password: "guess", wantErr: true},
		{name: "bcrypt ok", cfg: config.AuthConfig{AdminPasswordHash: string(hash)}, password: "hashed-pw"},
		{name: "bcrypt wrong", cfg: config.AuthConfig{AdminPasswordHash: string(hash)}, password: "s3cret", wantErr: true},
		{name: "hash wins over plaintext", cfg: config.AuthConfig{AdminPassword: "s3cret", AdminPasswordHash: string(hash)}, password: "s3cret", wantErr: true},
		{name: "empty password", cfg: config.AuthConfig{AdminPassword: "s3cret"}, password: "", wantErr: true},
		{name: "nothing configured", cfg: config.AuthConfig{}, password: "anything", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAuth(t, tt.cfg)
			token, expiresAt, err := a.Login(tt.password)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnauthorized)
				assert.Empty(t, token)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, token)
			assert.WithinDuration(t, time.Now().Add(12*time.Hour), expiresAt, time.Minute)
		})
	}
}

func TestAuthorized(t *testing.T) {
	a := newAuth(t, config.AuthConfig{AdminPassword: "s3cret"})
	token, _, err := a.Login("s3cret")
	require.NoError(t, err)

	other := newAuth(t, config.AuthConfig{AdminPassword: "s3cret", Secret: "another-secret"})
	forged, _, err := other.Login("s3cret")
	require.NoError(t, err)

	notAdmin, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             "visitor",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "visitor"},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{name: "valid token", header: "Bearer " + token, want: true},
		{name: "missing header", header: "", want: false},
		{name: "no bearer prefix", header: token, want: false},
		{name: "empty token", header: "Bearer ", want: false},
		{name: "garbage", header: "Bearer not.a.jwt", want: false},
		{name: "other secret", header: "Bearer " + forged, want: false},
		{name: "not admin", header: "Bearer " + notAdmin, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("DELETE", "/api/bookings/x", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, a.Authorized(r))
		})
	}
}

func TestAuthorized_Expired(t *testing.T) {
	a := newAuth(t, config.AuthConfig{AdminPassword: "s3cret", TokenTTL: time.Hour})
	issued := time.Now()
	a.now = func() time.Time { return issued }

	token, _, err := a.Login("s3cret")
	require.NoError(t, err)

	r := httptest.NewRequest("POST", "/api/admin/reconcile", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	assert.True(t, a.Authorized(r))

	a.now = func() time.Time { return issued.Add(2 * time.Hour) }
	assert.False(t, a.Authorized(r))
}
