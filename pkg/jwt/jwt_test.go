package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_GuestRoundTrip(t *testing.T) {
	manager := NewJWTManager("secret", time.Hour)

	token, claims, err := manager.GenerateGuest("  Nurse Joy ")
	require.NoError(t, err)
	assert.NotEmpty(t, claims.PlayerID)
	assert.Equal(t, "Nurse Joy", claims.PlayerName)

	verified, err := manager.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, claims.PlayerID, verified.PlayerID)
	assert.Equal(t, "Nurse Joy", verified.PlayerName)
}

func TestJWTManager_GenerateGuestRequiresName(t *testing.T) {
	manager := NewJWTManager("secret", time.Hour)

	_, _, err := manager.GenerateGuest("   ")
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestJWTManager_Expired(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	manager := NewJWTManager("secret", time.Minute).WithClock(func() time.Time { return now })

	token, err := manager.Generate("player-1", "Joy")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = manager.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTManager_InvalidTokens(t *testing.T) {
	manager := NewJWTManager("secret", time.Hour)
	other := NewJWTManager("other-secret", time.Hour)

	foreign, err := other.Generate("player-1", "Joy")
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"빈 토큰", ""},
		{"형식 오류", "not-a-token"},
		{"다른 키로 서명", foreign},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manager.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
