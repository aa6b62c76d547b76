package domain

import (
	"strings"
	"time"
)

// PresenceEntry is one account's transient online/hosting state. Entries are
// invisible to reads once ExpiresAt has passed and are reaped opportunistically.
type PresenceEntry struct {
	AccountID   string    `json:"account_id"`
	DisplayName string    `json:"display_name"`
	Username    string    `json:"username"`
	Status      string    `json:"status,omitempty"`
	Hosting     bool      `json:"hosting"`
	WorldName   string    `json:"world_name,omitempty"`
	GameMode    string    `json:"game_mode,omitempty"`
	JoinTarget  string    `json:"join_target,omitempty"`
	FriendCode  string    `json:"friend_code,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the entry should be invisible to reads.
func (e PresenceEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// InviteStatus is the lifecycle state of a world invite.
type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
	InviteRejected InviteStatus = "rejected"
)

// ParseInviteResponse maps a response string onto a terminal invite status.
func ParseInviteResponse(raw string) (InviteStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "accept", "accepted":
		return InviteAccepted, true
	case "reject", "rejected", "decline", "declined":
		return InviteRejected, true
	default:
		return "", false
	}
}

// WorldInvite asks the target to join the sender's hosted world. Keyed by
// (sender, target); re-sending replaces the prior invite.
type WorldInvite struct {
	SenderID  string       `json:"sender_id"`
	TargetID  string       `json:"target_id"`
	WorldName string       `json:"world_name"`
	Status    InviteStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Expired reports whether the invite is past its TTL.
func (i WorldInvite) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}
