package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTMaker_GenerateAndParseToken_ValidCases(t *testing.T) {
	secretKey := "test_secret_key_1234567890"
	tokenTTL := 15 * time.Minute
	maker := NewJWTMaker(secretKey, tokenTTL)

	tests := []struct {
		name      string
		accountID string
		email     string
		role      string
		deviceID  string
	}{
		{
			name:      "admin account",
			accountID: "2f0d9a4e-0c1b-4a55-9d8e-111111111111",
			email:     "admin@example.com",
			role:      "admin",
			deviceID:  "macbook-1",
		},
		{
			name:      "regular account",
			accountID: "2f0d9a4e-0c1b-4a55-9d8e-222222222222",
			email:     "user@example.com",
			role:      "user",
			deviceID:  "android-7",
		},
		{
			name:      "empty device",
			accountID: "2f0d9a4e-0c1b-4a55-9d8e-333333333333",
			email:     "nodevice@example.com",
			role:      "user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := maker.GenerateToken(tt.accountID, tt.email, tt.role, tt.deviceID)
			require.NoError(t, err)
			assert.NotEmpty(t, token)

			claims, err := maker.ParseToken(token)
			require.NoError(t, err)

			assert.Equal(t, tt.accountID, claims.AccountID)
			assert.Equal(t, tt.accountID, claims.Subject)
			assert.Equal(t, tt.email, claims.Email)
			assert.Equal(t, tt.role, claims.Role)
			assert.Equal(t, tt.deviceID, claims.DeviceID)
			assert.WithinDuration(t, time.Now(), claims.IssuedAt.Time, time.Second)
			assert.WithinDuration(t, time.Now().Add(tokenTTL), claims.ExpiresAt.Time, time.Second)
		})
	}
}

func TestJWTMaker_ParseToken_InvalidTokens(t *testing.T) {
	secretKey := "test_secret_key_1234567890"
	maker := NewJWTMaker(secretKey, 15*time.Minute)

	validToken, err := maker.GenerateToken("acc", "a@b.c", "user", "dev")
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "malformed token", token: "invalid.token.here"},
		{name: "expired token", token: createToken(t, secretKey, -time.Hour)},
		{name: "wrong secret key", token: createToken(t, "wrong_secret_key", 15*time.Minute)},
		{name: "tampered token", token: validToken + "tampered"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := maker.ParseToken(tt.token)
			assert.Error(t, err)
			assert.Nil(t, claims)
		})
	}
}

func TestJWTMaker_ExpiredTokenMessage(t *testing.T) {
	maker := NewJWTMaker("test_secret", time.Minute)
	_, err := maker.ParseToken(createToken(t, "test_secret", -time.Minute))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func createToken(t *testing.T, secretKey string, ttl time.Duration) string {
	t.Helper()
	token, err := NewJWTMaker(secretKey, ttl).GenerateToken("acc", "a@b.c", "user", "dev")
	require.NoError(t, err)
	return token
}
