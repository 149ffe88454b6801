// Package notify delivers best-effort outcome messages to a chat webhook and an optional event bus.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/scttfrdmn/droprealms-api/internal/config"
	"github.com/scttfrdmn/droprealms-api/internal/metrics"
	"github.com/scttfrdmn/droprealms-api/pkg/types"
	"go.uber.org/zap"
)

// Notifier delivers one notification
type Notifier interface {
	Notify(ctx context.Context, n types.Notification) error
}

// ErrorKind classifies notification failures
type ErrorKind string

const (
	KindTransport ErrorKind = "transport"
	KindRejected  ErrorKind = "rejected"
)

// NotifyError is returned when a sink could not deliver a notification
type NotifyError struct {
	Sink       string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *NotifyError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s notification %s: status %d", e.Sink, e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("%s notification %s: %v", e.Sink, e.Kind, e.Err)
}

func (e *NotifyError) Unwrap() error {
	return e.Err
}

// Fanout delivers to every notifier in order and joins their errors
type Fanout []Notifier

// Notify never stops at the first failure
func (f Fanout) Notify(ctx context.Context, n types.Notification) error {
	var errs []error
	for _, notifier := range f {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards every notification
type Nop struct{}

// Notify does nothing
func (Nop) Notify(context.Context, types.Notification) error { return nil }

// FromConfig builds the webhook notifier plus the NATS publisher when configured.
// The returned close function releases the event bus connection.
func FromConfig(logger *zap.Logger, notifyConfig *config.NotifyConfig, httpClient *http.Client, recorder *metrics.Recorder) (Notifier, func(), error) {
	sinks := Fanout{NewWebhookNotifier(logger, notifyConfig, httpClient, recorder)}
	closeFn := func() {}

	if notifyConfig.NATS.URL != "" {
		publisher, err := NewEventPublisher(logger, &notifyConfig.NATS, recorder)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, publisher)
		closeFn = publisher.Close
		logger.Info("Instance events enabled", zap.String("subject", notifyConfig.NATS.Subject))
	}

	return sinks, closeFn, nil
}
