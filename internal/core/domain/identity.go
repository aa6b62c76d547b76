package domain

import (
	"strings"
	"time"
)

// Social graph caps. Each list is bounded per account.
const (
	MaxFriends       = 256
	MaxInboxRequests = 256
	MaxBlocks        = 256
	RecoveryMaxFails = 5
	RecoveryLockout  = 15 * time.Minute
)

// CanonicalAccountID normalizes an account id for case-insensitive comparison.
func CanonicalAccountID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// CanonicalUsername normalizes a username for case-insensitive uniqueness checks.
func CanonicalUsername(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// IdentityEntry is one account's reserved username and display name.
type IdentityEntry struct {
	AccountID   string    `json:"account_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FriendRequest is an incoming, pending friend request on an account's inbox.
type FriendRequest struct {
	FromID string    `json:"from_id"`
	SentAt time.Time `json:"sent_at"`
}

// RecoveryRecord holds the salted hash of an account's one-time-rotatable
// recovery code. The plaintext code is shown once at rotation and never stored.
type RecoveryRecord struct {
	CodeHash       string     `json:"code_hash"`
	RotatedAt      time.Time  `json:"rotated_at"`
	FailedAttempts int        `json:"failed_attempts"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
}

// Locked reports whether recovery verification is under a timed lockout.
func (r RecoveryRecord) Locked(now time.Time) bool {
	return r.LockedUntil != nil && now.Before(*r.LockedUntil)
}

// RegistryDocument is the single versioned document backing the identity
// registry. Keys are canonical (lowercased) account ids.
type RegistryDocument struct {
	Identities map[string]IdentityEntry   `json:"identities"`
	Friends    map[string][]string        `json:"friends,omitempty"`
	Inbox      map[string][]FriendRequest `json:"inbox,omitempty"`
	Blocks     map[string][]string        `json:"blocks,omitempty"`
	Recovery   map[string]RecoveryRecord  `json:"recovery,omitempty"`
}

// NewRegistryDocument returns an empty document with all maps allocated.
func NewRegistryDocument() *RegistryDocument {
	return &RegistryDocument{
		Identities: make(map[string]IdentityEntry),
		Friends:    make(map[string][]string),
		Inbox:      make(map[string][]FriendRequest),
		Blocks:     make(map[string][]string),
		Recovery:   make(map[string]RecoveryRecord),
	}
}

// EnsureMaps allocates any nil maps after JSON decoding.
func (d *RegistryDocument) EnsureMaps() {
	if d.Identities == nil {
		d.Identities = make(map[string]IdentityEntry)
	}
	if d.Friends == nil {
		d.Friends = make(map[string][]string)
	}
	if d.Inbox == nil {
		d.Inbox = make(map[string][]FriendRequest)
	}
	if d.Blocks == nil {
		d.Blocks = make(map[string][]string)
	}
	if d.Recovery == nil {
		d.Recovery = make(map[string]RecoveryRecord)
	}
}

// FriendView is the read model returned for an account's social graph.
type FriendView struct {
	Friends []IdentityEntry
	Inbox   []FriendRequest
	Blocks  []string
}
