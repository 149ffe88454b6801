package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/scttfrdmn/droprealms-api/internal/config"
	"github.com/scttfrdmn/droprealms-api/internal/metrics"
	"github.com/scttfrdmn/droprealms-api/pkg/types"
	"go.uber.org/zap"
)

const natsSink = "nats"

var errNotConnected = errors.New("nats not connected")

// EventPublisher publishes instance events to a NATS subject
type EventPublisher struct {
	logger  *zap.Logger
	nc      *nats.Conn
	subject string
	metrics *metrics.Recorder
	now     func() time.Time
}

// NewEventPublisher connects to the configured NATS server. An unreachable server does not
// fail startup: the connection keeps retrying in the background and publishes are buffered.
func NewEventPublisher(logger *zap.Logger, natsConfig *config.NATSConfig, recorder *metrics.Recorder) (*EventPublisher, error) {
	opts := []nats.Option{
		nats.Name("droprealms-api"),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	nc, err := nats.Connect(natsConfig.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return newEventPublisher(logger, nc, natsConfig.Subject, recorder), nil
}

func newEventPublisher(logger *zap.Logger, nc *nats.Conn, subject string, recorder *metrics.Recorder) *EventPublisher {
	return &EventPublisher{
		logger:  logger,
		nc:      nc,
		subject: subject,
		metrics: recorder,
		now:     time.Now,
	}
}

// Notify publishes the notification as an instance event document
func (p *EventPublisher) Notify(ctx context.Context, n types.Notification) error {
	payload, err := json.Marshal(types.NewInstanceEventMessage(n, p.now()))
	if err != nil {
		return fmt.Errorf("failed to encode instance event: %w", err)
	}

	if p.nc == nil || p.nc.IsClosed() {
		p.metrics.ObserveNotification(natsSink, "failure")
		return &NotifyError{Sink: natsSink, Kind: KindTransport, Err: errNotConnected}
	}

	if err := p.nc.Publish(p.subject, payload); err != nil {
		p.metrics.ObserveNotification(natsSink, "failure")
		return &NotifyError{Sink: natsSink, Kind: KindTransport, Err: err}
	}

	p.metrics.ObserveNotification(natsSink, "success")
	p.logger.Debug("Instance event published",
		zap.String("subject", p.subject),
		zap.String("event", string(n.Event)))
	return nil
}

// Close drains and closes the connection
func (p *EventPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}
