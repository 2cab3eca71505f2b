package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/nimbuswallet/golang_services/internal/acceleration_service/domain"
	"github.com/nimbuswallet/golang_services/internal/acceleration_service/repository"
	"github.com/nimbuswallet/golang_services/internal/platform/messagebroker"
)

const (
	// SubjectTxConfirmed and SubjectTxDropped are published by the chain
	// watcher side of the submission service.
	SubjectTxConfirmed = "tx.events.confirmed"
	SubjectTxDropped   = "tx.events.dropped"

	// TxEventQueueGroup spreads event handling across service instances.
	TxEventQueueGroup = "accel_workers"
)

// LifecycleNotifier is the slice of the controller the consumer needs.
type LifecycleNotifier interface {
	OnConfirmed(ctx context.Context, txID string) error
	OnDropped(ctx context.Context, txID string) error
}

type txEventPayload struct {
	TxID string `json:"tx_id"`
}

// TxEventConsumer folds confirmation and drop notifications from NATS back
// into the lifecycle controller. Malformed payloads, unknown ids, and
// out-of-order notifications are logged and dropped; they never crash the
// consumer.
type TxEventConsumer struct {
	natsClient *messagebroker.NATSClient
	controller LifecycleNotifier
	logger     *slog.Logger
}

// NewTxEventConsumer creates a consumer bound to controller.
func NewTxEventConsumer(natsClient *messagebroker.NATSClient, controller LifecycleNotifier, logger *slog.Logger) *TxEventConsumer {
	return &TxEventConsumer{
		natsClient: natsClient,
		controller: controller,
		logger:     logger.With("component", "tx_event_consumer"),
	}
}

// Start subscribes to both event subjects. The subscriptions live until ctx
// is cancelled; Start itself returns immediately.
func (c *TxEventConsumer) Start(ctx context.Context) {
	go c.consume(ctx, SubjectTxConfirmed)
	go c.consume(ctx, SubjectTxDropped)
}

func (c *TxEventConsumer) consume(ctx context.Context, subject string) {
	err := c.natsClient.SubscribeToSubjectWithQueue(ctx, subject, TxEventQueueGroup, func(msg *nats.Msg) {
		c.handleEvent(ctx, msg)
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "NATS subscription failed", "subject", subject, "error", err)
		return
	}
	c.logger.InfoContext(ctx, "NATS subscription ended", "subject", subject)
}

func (c *TxEventConsumer) handleEvent(ctx context.Context, msg *nats.Msg) {
	var payload txEventPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		c.logger.ErrorContext(ctx, "Failed to deserialize transaction event",
			"error", err, "subject", msg.Subject, "data", string(msg.Data))
		return
	}
	if payload.TxID == "" {
		c.logger.ErrorContext(ctx, "Transaction event missing tx_id", "subject", msg.Subject)
		return
	}

	var err error
	switch msg.Subject {
	case SubjectTxConfirmed:
		err = c.controller.OnConfirmed(ctx, payload.TxID)
	case SubjectTxDropped:
		err = c.controller.OnDropped(ctx, payload.TxID)
	default:
		c.logger.ErrorContext(ctx, "Unexpected subject on transaction event subscription", "subject", msg.Subject)
		return
	}

	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidTransition):
		// Out-of-order or duplicate external notification; drop it.
		c.logger.WarnContext(ctx, "Dropping out-of-order transaction event",
			"subject", msg.Subject, "tx_id", payload.TxID)
	case errors.Is(err, repository.ErrTransactionNotFound):
		c.logger.WarnContext(ctx, "Transaction event for untracked id",
			"subject", msg.Subject, "tx_id", payload.TxID)
	default:
		c.logger.ErrorContext(ctx, "Failed to apply transaction event",
			"subject", msg.Subject, "tx_id", payload.TxID, "error", err)
	}
}
