package usecase

import (
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Redactedcraft/Redactedcraft-sub000/internal/core/domain"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/infra/config"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/infra/security"
)

const (
	defaultPresenceTTL = 90 * time.Second
	defaultInviteTTL   = 5 * time.Minute
)

var (
	// ErrInviteNotFound indicates no live invite matched the responder/sender pair.
	ErrInviteNotFound = errors.New("presence: invite not found")
	// ErrInvalidInvite indicates a malformed invite request.
	ErrInvalidInvite = errors.New("presence: invalid invite")
)

type inviteKey struct {
	sender string
	target string
}

// PresenceService tracks who is hosting and short-lived world invites,
// entirely in memory. Entries expire on an absolute deadline and are swept
// opportunistically on every call rather than by a background task.
type PresenceService struct {
	ttl       time.Duration
	inviteTTL time.Duration
	coder     *security.FriendCoder
	logger    *zap.Logger
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]domain.PresenceEntry
	invites map[inviteKey]domain.WorldInvite
}

// NewPresenceService constructs the in-memory directory.
func NewPresenceService(cfg config.PresenceSettings, coder *security.FriendCoder, logger *zap.Logger) *PresenceService {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultPresenceTTL
	}
	inviteTTL := cfg.InviteTTL
	if inviteTTL <= 0 {
		inviteTTL = defaultInviteTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PresenceService{
		ttl:       ttl,
		inviteTTL: inviteTTL,
		coder:     coder,
		logger:    logger,
		now:       time.Now,
		entries:   make(map[string]domain.PresenceEntry),
		invites:   make(map[inviteKey]domain.WorldInvite),
	}
}

// WithClock overrides the wall clock (primarily for tests).
func (s *PresenceService) WithClock(now func() time.Time) *PresenceService {
	if now != nil {
		s.now = now
	}
	return s
}

// UpsertInput carries one presence publish.
type UpsertInput struct {
	AccountID   string
	DisplayName string
	Username    string
	Status      string
	Hosting     bool
	WorldName   string
	GameMode    string
	JoinTarget  string
}

// Upsert publishes or withdraws a presence entry. A non-hosting upsert is
// "went offline": the entry is removed and any invites to or from the account
// are cancelled. A hosting upsert refreshes the absolute expiry.
func (s *PresenceService) Upsert(in UpsertInput) (*domain.PresenceEntry, error) {
	key := domain.CanonicalAccountID(in.AccountID)
	if key == "" {
		return nil, ErrInvalidAccountID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)

	if !in.Hosting {
		delete(s.entries, key)
		for ik := range s.invites {
			if ik.sender == key || ik.target == key {
				delete(s.invites, ik)
			}
		}
		return nil, nil
	}

	entry := domain.PresenceEntry{
		AccountID:   key,
		DisplayName: strings.TrimSpace(in.DisplayName),
		Username:    strings.TrimSpace(in.Username),
		Status:      strings.TrimSpace(in.Status),
		Hosting:     true,
		WorldName:   strings.TrimSpace(in.WorldName),
		GameMode:    strings.TrimSpace(in.GameMode),
		JoinTarget:  strings.TrimSpace(in.JoinTarget),
		UpdatedAt:   now.UTC(),
		ExpiresAt:   now.Add(s.ttl).UTC(),
	}
	if s.coder != nil {
		entry.FriendCode = s.coder.Derive(key)
	}
	s.entries[key] = entry
	return &entry, nil
}

// Query returns live entries for the requested ids. Unknown or expired ids
// are simply absent from the result.
func (s *PresenceService) Query(ids []string) []domain.PresenceEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)

	result := make([]domain.PresenceEntry, 0, len(ids))
	for _, id := range ids {
		if entry, ok := s.entries[domain.CanonicalAccountID(id)]; ok {
			result = append(result, entry)
		}
	}
	return result
}

// SendInvite replaces any prior invite for the (sender, target) pair with a
// fresh pending one.
func (s *PresenceService) SendInvite(senderID, targetID, worldName string) (*domain.WorldInvite, error) {
	sender := domain.CanonicalAccountID(senderID)
	target := domain.CanonicalAccountID(targetID)
	if sender == "" || target == "" || sender == target {
		return nil, ErrInvalidInvite
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)

	invite := domain.WorldInvite{
		SenderID:  sender,
		TargetID:  target,
		WorldName: strings.TrimSpace(worldName),
		Status:    domain.InvitePending,
		CreatedAt: now.UTC(),
		ExpiresAt: now.Add(s.inviteTTL).UTC(),
	}
	s.invites[inviteKey{sender: sender, target: target}] = invite
	return &invite, nil
}

// RespondToInvite sets the status of an existing invite from sender to
// responder. A missing or expired invite fails without side effects.
func (s *PresenceService) RespondToInvite(responderID, senderID string, status domain.InviteStatus) (*domain.WorldInvite, error) {
	responder := domain.CanonicalAccountID(responderID)
	sender := domain.CanonicalAccountID(senderID)
	if responder == "" || sender == "" {
		return nil, ErrInvalidInvite
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)

	key := inviteKey{sender: sender, target: responder}
	invite, ok := s.invites[key]
	if !ok {
		return nil, ErrInviteNotFound
	}

	invite.Status = status
	s.invites[key] = invite
	return &invite, nil
}

// Invites returns live invites addressed to the account.
func (s *PresenceService) Invites(accountID string) []domain.WorldInvite {
	target := domain.CanonicalAccountID(accountID)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked(s.now())

	var result []domain.WorldInvite
	for key, invite := range s.invites {
		if key.target == target {
			result = append(result, invite)
		}
	}
	return result
}

// sweepLocked reaps expired entries and invites. Callers hold s.mu.
func (s *PresenceService) sweepLocked(now time.Time) {
	for id, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, id)
		}
	}
	for key, invite := range s.invites {
		if now.After(invite.ExpiresAt) {
			delete(s.invites, key)
		}
	}
}
