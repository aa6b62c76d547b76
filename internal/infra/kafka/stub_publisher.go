package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Redactedcraft/Redactedcraft-sub000/internal/core/domain"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, accountID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("account_id", accountID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishTicketIssued logs gate.ticket.issued events.
func (p *StubPublisher) PublishTicketIssued(_ context.Context, event domain.TicketIssuedEvent) error {
	payload := map[string]any{
		"account_id":     event.AccountID,
		"channel":        event.Channel,
		"client_version": event.Version,
		"platform":       event.Platform,
		"issued_at":      event.IssuedAt,
		"expires_at":     event.ExpiresAt,
		"metadata":       event.Metadata,
	}
	p.logEvent("gate.ticket.issued", event.AccountID, event.IssuedAt, payload)
	return nil
}

// PublishIdentityClaimed logs gate.identity.claimed events.
func (p *StubPublisher) PublishIdentityClaimed(_ context.Context, event domain.IdentityClaimedEvent) error {
	payload := map[string]any{
		"account_id": event.AccountID,
		"username":   event.Username,
		"reassigned": event.Reassigned,
		"claimed_at": event.ClaimedAt,
		"metadata":   event.Metadata,
	}
	p.logEvent("gate.identity.claimed", event.AccountID, event.ClaimedAt, payload)
	return nil
}

// PublishIdentityTransferred logs gate.identity.transferred events.
func (p *StubPublisher) PublishIdentityTransferred(_ context.Context, event domain.IdentityTransferredEvent) error {
	payload := map[string]any{
		"old_account_id": event.OldAccountID,
		"new_account_id": event.NewAccountID,
		"username":       event.Username,
		"transferred_at": event.TransferredAt,
		"metadata":       event.Metadata,
	}
	p.logEvent("gate.identity.transferred", event.NewAccountID, event.TransferredAt, payload)
	return nil
}

// PublishIdentityRemoved logs gate.identity.removed events.
func (p *StubPublisher) PublishIdentityRemoved(_ context.Context, event domain.IdentityRemovedEvent) error {
	payload := map[string]any{
		"account_id": event.AccountID,
		"username":   event.Username,
		"removed_by": event.RemovedBy,
		"removed_at": event.RemovedAt,
		"metadata":   event.Metadata,
	}
	p.logEvent("gate.identity.removed", event.AccountID, event.RemovedAt, payload)
	return nil
}

// PublishAccountBlocked logs gate.social.blocked events.
func (p *StubPublisher) PublishAccountBlocked(_ context.Context, event domain.AccountBlockedEvent) error {
	payload := map[string]any{
		"owner_id":   event.OwnerID,
		"target_id":  event.TargetID,
		"blocked_at": event.BlockedAt,
		"metadata":   event.Metadata,
	}
	p.logEvent("gate.social.blocked", event.OwnerID, event.BlockedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
