package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/scttfrdmn/droprealms-api/internal/config"
	"github.com/scttfrdmn/droprealms-api/internal/metrics"
	"github.com/scttfrdmn/droprealms-api/pkg/types"
	"go.uber.org/zap"
)

const (
	metadataFlavorHeader = "Metadata-Flavor"
	metadataFlavorValue  = "Google"

	// maxTokenBodyBytes bounds how much of a metadata response is read
	maxTokenBodyBytes = 64 << 10
)

// TokenSource yields a fresh access token for each outbound call
type TokenSource interface {
	FetchToken(ctx context.Context) (*types.AccessToken, error)
}

// MetadataTokenProvider fetches service account tokens from the GCE metadata server
type MetadataTokenProvider struct {
	logger     *zap.Logger
	tokenURL   string
	timeout    time.Duration
	httpClient *http.Client
	metrics    *metrics.Recorder
	now        func() time.Time
}

// NewMetadataTokenProvider creates a new metadata token provider
func NewMetadataTokenProvider(logger *zap.Logger, gcpConfig *config.GCPConfig, httpClient *http.Client, recorder *metrics.Recorder) *MetadataTokenProvider {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &MetadataTokenProvider{
		logger:     logger,
		tokenURL:   gcpConfig.MetadataTokenURL,
		timeout:    gcpConfig.RequestTimeoutDuration(),
		httpClient: httpClient,
		metrics:    recorder,
		now:        time.Now,
	}
}

// FetchToken requests a new access token. No caching and no retry are performed.
func (p *MetadataTokenProvider) FetchToken(ctx context.Context) (*types.AccessToken, error) {
	token, err := p.fetchToken(ctx)
	if err != nil {
		p.metrics.ObserveTokenFetch("error")
		p.logger.Warn("Metadata token fetch failed", zap.Error(err))
		return nil, err
	}

	p.metrics.ObserveTokenFetch("success")
	expired := token.Expired(p.now())
	if expired {
		p.logger.Warn("Metadata server returned an already expired token",
			zap.Time("expires_at", token.ExpiresAt))
	}
	p.logger.Debug("Fetched metadata access token",
		zap.String("token_type", token.TokenType),
		zap.Time("expires_at", token.ExpiresAt),
		zap.Bool("expired", expired))

	return token, nil
}

func (p *MetadataTokenProvider) fetchToken(ctx context.Context) (*types.AccessToken, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.tokenURL, nil)
	if err != nil {
		return nil, &CredentialError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set(metadataFlavorHeader, metadataFlavorValue)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &CredentialError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenBodyBytes))
	if err != nil {
		return nil, &CredentialError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &CredentialError{StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	token, err := types.ParseTokenResponse(body, p.now())
	if err != nil {
		return nil, &CredentialError{StatusCode: resp.StatusCode, Err: err}
	}

	return token, nil
}
