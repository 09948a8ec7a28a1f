package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const DefaultSubject = "chatgateway.exchanges"

// Outcome values for Exchange.Outcome.
const (
	OutcomeOK       = "ok"
	OutcomeFallback = "fallback"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Exchange describes how one inbound update was handled. It carries the
// error kind behind a fallback reply, which the chat reply itself hides.
type Exchange struct {
	ID         string `json:"id"`
	Server     string `json:"server"`
	UserID     int64  `json:"user_id"`
	ChatID     int64  `json:"chat_id"`
	Path       string `json:"path"`
	Edited     bool   `json:"edited,omitempty"`
	Outcome    string `json:"outcome"`
	ErrorKind  string `json:"error_kind,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Timestamp  int64  `json:"timestamp"`
}

type Publisher interface {
	Publish(ctx context.Context, exchange Exchange) error
	Close() error
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, exchange Exchange) error { return nil }
func (NopPublisher) Close() error                                         { return nil }

type NATSPublisher struct {
	nc      *nats.Conn
	subject string
	server  string
	logger  *zap.Logger
}

func NewNATSPublisher(url, subject string, logger *zap.Logger) (*NATSPublisher, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	nc, err := nats.Connect(url,
		nats.Name("chat-gateway"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("Disconnected from NATS", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	hostName, err := os.Hostname()
	if err != nil {
		hostName = "unknown"
	}

	logger.Info("Connected to NATS", zap.String("url", url), zap.String("subject", subject))
	return &NATSPublisher{nc: nc, subject: subject, server: hostName, logger: logger}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, exchange Exchange) error {
	data, err := json.Marshal(p.stamp(exchange))
	if err != nil {
		return fmt.Errorf("marshal exchange event: %w", err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish exchange event: %w", err)
	}
	return nil
}

func (p *NATSPublisher) stamp(exchange Exchange) Exchange {
	if exchange.ID == "" {
		exchange.ID = uuid.NewString()
	}
	if exchange.Timestamp == 0 {
		exchange.Timestamp = time.Now().UnixMilli()
	}
	exchange.Server = p.server
	return exchange
}

func (p *NATSPublisher) Close() error {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("drain nats connection: %w", err)
	}
	return nil
}
