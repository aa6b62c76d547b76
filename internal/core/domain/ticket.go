package domain

import "strings"

// Channel classifies the build a ticket was issued for.
type Channel string

const (
	// ChannelDev marks development builds.
	ChannelDev Channel = "dev"
	// ChannelRelease marks public release builds.
	ChannelRelease Channel = "release"
)

// ParseChannel normalizes a channel string, defaulting to release.
func ParseChannel(raw string) Channel {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ChannelDev):
		return ChannelDev
	default:
		return ChannelRelease
	}
}

// TicketClaims is the claim bundle carried by a session ticket. Immutable
// once issued; expiry is the only invalidation mechanism.
type TicketClaims struct {
	Issuer        string
	Audience      string
	IssuedAt      int64
	ExpiresAt     int64
	Channel       Channel
	ClientVersion string
	Platform      string
	AccountID     string
	DisplayName   string
}
