package domain

import "time"

// TicketIssuedEvent represents the payload for gate.ticket.issued messages.
type TicketIssuedEvent struct {
	EventID   string
	AccountID string
	Channel   string
	Version   string
	Platform  string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Metadata  map[string]any
}

// IdentityClaimedEvent represents the payload for gate.identity.claimed messages.
type IdentityClaimedEvent struct {
	EventID    string
	AccountID  string
	Username   string
	Reassigned bool
	ClaimedAt  time.Time
	Metadata   map[string]any
}

// IdentityTransferredEvent represents the payload for gate.identity.transferred messages.
type IdentityTransferredEvent struct {
	EventID       string
	OldAccountID  string
	NewAccountID  string
	Username      string
	TransferredAt time.Time
	Metadata      map[string]any
}

// IdentityRemovedEvent represents the payload for gate.identity.removed messages.
type IdentityRemovedEvent struct {
	EventID   string
	AccountID string
	Username  string
	RemovedBy string
	RemovedAt time.Time
	Metadata  map[string]any
}

// AccountBlockedEvent represents the payload for gate.social.blocked messages.
type AccountBlockedEvent struct {
	EventID   string
	OwnerID   string
	TargetID  string
	BlockedAt time.Time
	Metadata  map[string]any
}
