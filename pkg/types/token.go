package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMissingAccessToken is returned when a token response has no access_token
var ErrMissingAccessToken = errors.New("token response has no access_token")

// TokenResponse is the body served by the metadata token endpoint
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// AccessToken is a short-lived bearer credential
type AccessToken struct {
	Value     string
	TokenType string
	ExpiresAt time.Time
}

// ParseTokenResponse decodes a metadata token response into an AccessToken issued at now
func ParseTokenResponse(data []byte, now time.Time) (*AccessToken, error) {
	var resp TokenResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, ErrMissingAccessToken
	}

	tokenType := resp.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	return &AccessToken{
		Value:     resp.AccessToken,
		TokenType: tokenType,
		ExpiresAt: now.Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}

// AuthorizationHeader returns the value for the Authorization header
func (t *AccessToken) AuthorizationHeader() string {
	return "Bearer " + t.Value
}

// Expired reports whether the token is past its expiry at now
func (t *AccessToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// String never includes the token value
func (t *AccessToken) String() string {
	return fmt.Sprintf("AccessToken{type=%s, expires_at=%s, value=REDACTED}", t.TokenType, t.ExpiresAt.Format(time.RFC3339))
}
