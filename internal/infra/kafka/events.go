package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Redactedcraft/Redactedcraft-sub000/internal/core/domain"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/core/port"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/infra/config"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/infra/logger"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	log      *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, log *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, log: log}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	AccountID string           `json:"account_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, accountID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if reqID := requestIDFromContext(ctx); reqID != "" {
		metadata["request_id"] = reqID
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		AccountID: accountID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(logger.RequestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// PublishTicketIssued publishes gate.ticket.issued events.
func (p *EventPublisher) PublishTicketIssued(ctx context.Context, event domain.TicketIssuedEvent) error {
	payload := struct {
		AccountID string         `json:"account_id,omitempty"`
		Channel   string         `json:"channel"`
		Version   string         `json:"client_version,omitempty"`
		Platform  string         `json:"platform,omitempty"`
		IssuedAt  time.Time      `json:"issued_at"`
		ExpiresAt time.Time      `json:"expires_at"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		AccountID: event.AccountID,
		Channel:   event.Channel,
		Version:   event.Version,
		Platform:  event.Platform,
		IssuedAt:  event.IssuedAt.UTC(),
		ExpiresAt: event.ExpiresAt.UTC(),
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, "gate.ticket.issued", event.AccountID, event.IssuedAt, payload)
}

// PublishIdentityClaimed publishes gate.identity.claimed events.
func (p *EventPublisher) PublishIdentityClaimed(ctx context.Context, event domain.IdentityClaimedEvent) error {
	payload := struct {
		AccountID  string         `json:"account_id"`
		Username   string         `json:"username"`
		Reassigned bool           `json:"reassigned"`
		ClaimedAt  time.Time      `json:"claimed_at"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:  event.AccountID,
		Username:   event.Username,
		Reassigned: event.Reassigned,
		ClaimedAt:  event.ClaimedAt.UTC(),
		Metadata:   event.Metadata,
	}

	return p.publish(ctx, event.EventID, "gate.identity.claimed", event.AccountID, event.ClaimedAt, payload)
}

// PublishIdentityTransferred publishes gate.identity.transferred events.
func (p *EventPublisher) PublishIdentityTransferred(ctx context.Context, event domain.IdentityTransferredEvent) error {
	payload := struct {
		OldAccountID  string         `json:"old_account_id"`
		NewAccountID  string         `json:"new_account_id"`
		Username      string         `json:"username"`
		TransferredAt time.Time      `json:"transferred_at"`
		Metadata      map[string]any `json:"metadata,omitempty"`
	}{
		OldAccountID:  event.OldAccountID,
		NewAccountID:  event.NewAccountID,
		Username:      event.Username,
		TransferredAt: event.TransferredAt.UTC(),
		Metadata:      event.Metadata,
	}

	return p.publish(ctx, event.EventID, "gate.identity.transferred", event.NewAccountID, event.TransferredAt, payload)
}

// PublishIdentityRemoved publishes gate.identity.removed events.
func (p *EventPublisher) PublishIdentityRemoved(ctx context.Context, event domain.IdentityRemovedEvent) error {
	payload := struct {
		AccountID string         `json:"account_id"`
		Username  string         `json:"username,omitempty"`
		RemovedBy string         `json:"removed_by,omitempty"`
		RemovedAt time.Time      `json:"removed_at"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		AccountID: event.AccountID,
		Username:  event.Username,
		RemovedBy: event.RemovedBy,
		RemovedAt: event.RemovedAt.UTC(),
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, "gate.identity.removed", event.AccountID, event.RemovedAt, payload)
}

// PublishAccountBlocked publishes gate.social.blocked events.
func (p *EventPublisher) PublishAccountBlocked(ctx context.Context, event domain.AccountBlockedEvent) error {
	payload := struct {
		OwnerID   string         `json:"owner_id"`
		TargetID  string         `json:"target_id"`
		BlockedAt time.Time      `json:"blocked_at"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		OwnerID:   event.OwnerID,
		TargetID:  event.TargetID,
		BlockedAt: event.BlockedAt.UTC(),
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, "gate.social.blocked", event.OwnerID, event.BlockedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
