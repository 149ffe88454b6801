package types

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTokenResponse(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	token, err := ParseTokenResponse([]byte(`{"access_token":"tok123","expires_in":3599,"token_type":"Bearer"}`), now)
	require.NoError(t, err)

	assert.Equal(t, "tok123", token.Value)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Equal(t, now.Add(3599*time.Second), token.ExpiresAt)
	assert.Equal(t, "Bearer tok123", token.AuthorizationHeader())
	assert.False(t, token.Expired(now))
	assert.True(t, token.Expired(now.Add(time.Hour)))
}

func TestParseTokenResponse_Errors(t *testing.T) {
	now := time.Now()

	_, err := ParseTokenResponse([]byte(`not json`), now)
	assert.Error(t, err)

	_, err = ParseTokenResponse([]byte(`{"expires_in":3599,"token_type":"Bearer"}`), now)
	assert.ErrorIs(t, err, ErrMissingAccessToken)
}

func TestParseTokenResponse_DefaultsTokenType(t *testing.T) {
	token, err := ParseTokenResponse([]byte(`{"access_token":"tok123"}`), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "Bearer", token.TokenType)
}

func TestAccessToken_StringRedactsValue(t *testing.T) {
	token := &AccessToken{Value: "super-secret", TokenType: "Bearer", ExpiresAt: time.Now()}

	assert.NotContains(t, token.String(), "super-secret")
	assert.NotContains(t, fmt.Sprintf("%v", token), "super-secret")
}
