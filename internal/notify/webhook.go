package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/scttfrdmn/droprealms-api/internal/config"
	"github.com/scttfrdmn/droprealms-api/internal/metrics"
	"github.com/scttfrdmn/droprealms-api/pkg/types"
	"go.uber.org/zap"
)

const webhookSink = "webhook"

// WebhookNotifier posts messages to a Discord-compatible webhook
type WebhookNotifier struct {
	logger     *zap.Logger
	url        string
	username   string
	avatarURL  string
	timeout    time.Duration
	httpClient *http.Client
	metrics    *metrics.Recorder
}

// NewWebhookNotifier creates a webhook notifier from the notify configuration
func NewWebhookNotifier(logger *zap.Logger, notifyConfig *config.NotifyConfig, httpClient *http.Client, recorder *metrics.Recorder) *WebhookNotifier {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &WebhookNotifier{
		logger:     logger,
		url:        notifyConfig.WebhookURL,
		username:   notifyConfig.Username,
		avatarURL:  notifyConfig.AvatarURL,
		timeout:    notifyConfig.TimeoutDuration(),
		httpClient: httpClient,
		metrics:    recorder,
	}
}

// Notify posts {content, username, avatar_url}
func (w *WebhookNotifier) Notify(ctx context.Context, n types.Notification) error {
	err := w.post(ctx, types.WebhookPayload{
		Content:   n.Text,
		Username:  w.username,
		AvatarURL: w.avatarURL,
	})
	if err != nil {
		w.metrics.ObserveNotification(webhookSink, "failure")
		return err
	}

	w.metrics.ObserveNotification(webhookSink, "success")
	w.logger.Debug("Webhook notification delivered", zap.String("event", string(n.Event)))
	return nil
}

func (w *WebhookNotifier) post(ctx context.Context, payload types.WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return &NotifyError{Sink: webhookSink, Kind: KindTransport, Err: stripURL(err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return &NotifyError{Sink: webhookSink, Kind: KindTransport, Err: stripURL(err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &NotifyError{Sink: webhookSink, Kind: KindRejected, StatusCode: resp.StatusCode}
	}

	return nil
}

// stripURL drops the request URL from net/http errors. The webhook path carries its secret token.
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s webhook: %w", strings.ToLower(urlErr.Op), urlErr.Err)
	}
	return err
}
