package port

import (
	"context"

	"github.com/Redactedcraft/Redactedcraft-sub000/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishTicketIssued(ctx context.Context, event domain.TicketIssuedEvent) error
	PublishIdentityClaimed(ctx context.Context, event domain.IdentityClaimedEvent) error
	PublishIdentityTransferred(ctx context.Context, event domain.IdentityTransferredEvent) error
	PublishIdentityRemoved(ctx context.Context, event domain.IdentityRemovedEvent) error
	PublishAccountBlocked(ctx context.Context, event domain.AccountBlockedEvent) error
}
