package gcp

import (
	"context"
	"net/http"
	"time"

	"github.com/scttfrdmn/droprealms-api/internal/config"
	"go.uber.org/zap"
)

// DetectMetadataServer checks whether the GCE metadata server is reachable
func DetectMetadataServer(ctx context.Context, logger *zap.Logger, gcpConfig *config.GCPConfig, httpClient *http.Client) bool {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, gcpConfig.MetadataRootURL, nil)
	if err != nil {
		logger.Debug("Metadata server probe could not be built", zap.Error(err))
		return false
	}
	req.Header.Set(metadataFlavorHeader, metadataFlavorValue)

	resp, err := httpClient.Do(req)
	if err != nil {
		logger.Debug("Metadata server not available",
			zap.String("url", gcpConfig.MetadataRootURL),
			zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	// The real metadata server always echoes the flavor header
	if resp.StatusCode != http.StatusOK || resp.Header.Get(metadataFlavorHeader) != metadataFlavorValue {
		logger.Debug("Metadata server probe returned unexpected response",
			zap.Int("status", resp.StatusCode),
			zap.String("flavor", resp.Header.Get(metadataFlavorHeader)))
		return false
	}

	logger.Debug("Metadata server availability confirmed", zap.String("url", gcpConfig.MetadataRootURL))
	return true
}
