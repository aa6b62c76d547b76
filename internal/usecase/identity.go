package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Redactedcraft/Redactedcraft-sub000/internal/core/domain"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/core/port"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/infra/config"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/infra/security"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/repository"
)

const defaultIdentityRefresh = 15 * time.Second

var (
	// ErrInvalidAccountID indicates a missing or malformed account id.
	ErrInvalidAccountID = errors.New("identity: invalid account id")
	// ErrInvalidUsername indicates the username violates length or pattern rules.
	ErrInvalidUsername = errors.New("identity: invalid username")
	// ErrInvalidDisplayName indicates the display name exceeds the length cap.
	ErrInvalidDisplayName = errors.New("identity: invalid display name")
	// ErrUsernameTaken indicates another account owns the requested username.
	ErrUsernameTaken = errors.New("identity: username taken")
	// ErrIdentityNotFound indicates no identity matched the query.
	ErrIdentityNotFound = errors.New("identity: not found")
	// ErrSelfAction indicates an account targeted itself.
	ErrSelfAction = errors.New("identity: cannot target own account")
	// ErrBlocked indicates a block edge in either direction forbids the action.
	ErrBlocked = errors.New("identity: blocked")
	// ErrFriendLimit indicates a friend list is at capacity.
	ErrFriendLimit = errors.New("identity: friend list full")
	// ErrInboxLimit indicates the target's request inbox is at capacity.
	ErrInboxLimit = errors.New("identity: request inbox full")
	// ErrBlockLimit indicates the block list is at capacity.
	ErrBlockLimit = errors.New("identity: block list full")
	// ErrNoPendingRequest indicates no matching inbox entry exists.
	ErrNoPendingRequest = errors.New("identity: no pending request")
	// ErrRecoveryUnset indicates the account never rotated a recovery code.
	ErrRecoveryUnset = errors.New("identity: no recovery code set")
	// ErrRecoveryLocked indicates recovery verification is under a timed lockout.
	ErrRecoveryLocked = errors.New("identity: recovery locked")
	// ErrRecoveryInvalid indicates the presented recovery code did not match.
	ErrRecoveryInvalid = errors.New("identity: recovery code invalid")
	// ErrAccountTaken indicates the transfer destination already has an identity.
	ErrAccountTaken = errors.New("identity: destination account already registered")
)

// UsernameConflict carries the existing owner of a contested username.
type UsernameConflict struct {
	Owner domain.IdentityEntry
}

func (e *UsernameConflict) Error() string {
	return fmt.Sprintf("username %q already owned by %s", e.Owner.Username, e.Owner.AccountID)
}

// Is makes errors.Is(err, ErrUsernameTaken) hold for conflicts.
func (e *UsernameConflict) Is(target error) bool {
	return target == ErrUsernameTaken
}

// IdentityService owns reserved usernames, the friend/block/request graph,
// and recovery-code account transfer, backed by one versioned document.
// The service is the unit of locking: every operation holds the single mutex
// for its full duration because the backing document cannot be partially
// updated.
type IdentityService struct {
	cfg        config.IdentitySettings
	store      port.VersionedStore
	events     port.EventPublisher
	coder      *security.FriendCoder
	logger     *zap.Logger
	now        func() time.Time
	refresh    time.Duration
	usernameRe *regexp.Regexp

	mu       sync.Mutex
	doc      *domain.RegistryDocument
	version  string
	loadedAt time.Time
}

// NewIdentityService constructs the registry over the supplied document store.
func NewIdentityService(cfg config.IdentitySettings, store port.VersionedStore, events port.EventPublisher, logger *zap.Logger) (*IdentityService, error) {
	if store == nil {
		return nil, fmt.Errorf("identity: document store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pattern := cfg.UsernamePattern
	if pattern == "" {
		pattern = `^[A-Za-z0-9_]+$`
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("identity: compile username pattern: %w", err)
	}

	refresh := cfg.RefreshInterval
	if refresh <= 0 {
		refresh = defaultIdentityRefresh
	}

	return &IdentityService{
		cfg:        cfg,
		store:      store,
		events:     events,
		coder:      security.NewFriendCoder(cfg.FriendCodeKey),
		logger:     logger,
		now:        time.Now,
		refresh:    refresh,
		usernameRe: re,
	}, nil
}

// WithClock overrides the wall clock (primarily for tests).
func (s *IdentityService) WithClock(now func() time.Time) *IdentityService {
	if now != nil {
		s.now = now
	}
	return s
}

// FriendCode derives the non-secret share alias for an account id.
func (s *IdentityService) FriendCode(accountID string) string {
	return s.coder.Derive(accountID)
}

// ensureLoadedLocked refreshes the cached document when stale. A fetch
// failure with a prior successful load keeps serving the cached state.
func (s *IdentityService) ensureLoadedLocked(ctx context.Context) error {
	if s.doc != nil && s.now().Sub(s.loadedAt) < s.refresh {
		return nil
	}

	doc, version, err := repository.Load[domain.RegistryDocument](ctx, s.store)
	if err != nil {
		if s.doc != nil {
			s.logger.Warn("registry refresh failed, serving cached document", zap.Error(err))
			s.loadedAt = s.now()
			return nil
		}
		return err
	}

	doc.EnsureMaps()
	s.normalize(doc)
	s.doc = doc
	s.version = version
	s.loadedAt = s.now()
	return nil
}

// mutate runs one read-mutate-write cycle over the registry document and
// refreshes the cache on success.
func (s *IdentityService) mutate(ctx context.Context, fn repository.Mutation[domain.RegistryDocument]) error {
	doc, version, err := repository.WithOptimisticRetry(ctx, s.store, func(doc *domain.RegistryDocument) (bool, error) {
		doc.EnsureMaps()
		s.normalize(doc)
		return fn(doc)
	})
	if err != nil {
		return err
	}

	s.doc = doc
	s.version = version
	s.loadedAt = s.now()
	return nil
}

// normalize drops malformed entries, duplicate usernames, and orphaned
// social-graph references before the document is used.
func (s *IdentityService) normalize(doc *domain.RegistryDocument) {
	keys := make([]string, 0, len(doc.Identities))
	for key := range doc.Identities {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	seenNames := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		entry := doc.Identities[key]
		canonical := domain.CanonicalAccountID(entry.AccountID)
		name := domain.CanonicalUsername(entry.Username)
		if canonical == "" || canonical != key || name == "" {
			delete(doc.Identities, key)
			continue
		}
		if _, dup := seenNames[name]; dup {
			delete(doc.Identities, key)
			continue
		}
		seenNames[name] = struct{}{}
	}

	known := func(id string) bool {
		_, ok := doc.Identities[id]
		return ok
	}

	for owner, list := range doc.Friends {
		if !known(owner) {
			delete(doc.Friends, owner)
			continue
		}
		doc.Friends[owner] = filterIDs(list, owner, known, domain.MaxFriends)
	}

	for owner, inbox := range doc.Inbox {
		if !known(owner) {
			delete(doc.Inbox, owner)
			continue
		}
		filtered := inbox[:0]
		seen := make(map[string]struct{}, len(inbox))
		for _, req := range inbox {
			from := domain.CanonicalAccountID(req.FromID)
			if from == "" || from == owner || !known(from) {
				continue
			}
			if _, dup := seen[from]; dup {
				continue
			}
			seen[from] = struct{}{}
			req.FromID = from
			filtered = append(filtered, req)
			if len(filtered) == domain.MaxInboxRequests {
				break
			}
		}
		doc.Inbox[owner] = filtered
	}

	for owner, list := range doc.Blocks {
		if !known(owner) {
			delete(doc.Blocks, owner)
			continue
		}
		doc.Blocks[owner] = filterIDs(list, owner, known, domain.MaxBlocks)
	}

	for owner := range doc.Recovery {
		if !known(owner) {
			delete(doc.Recovery, owner)
		}
	}
}

func filterIDs(list []string, owner string, known func(string) bool, limit int) []string {
	filtered := list[:0]
	seen := make(map[string]struct{}, len(list))
	for _, id := range list {
		id = domain.CanonicalAccountID(id)
		if id == "" || id == owner || !known(id) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		filtered = append(filtered, id)
		if len(filtered) == limit {
			break
		}
	}
	return filtered
}

// resolveLocked tries friend code, then raw account id, then username.
func (s *IdentityService) resolveLocked(doc *domain.RegistryDocument, query string) (domain.IdentityEntry, bool) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.IdentityEntry{}, false
	}

	if code := strings.ToUpper(query); security.LooksLikeCode(code) {
		for id, entry := range doc.Identities {
			if s.coder.Derive(id) == code {
				return entry, true
			}
		}
	}

	if entry, ok := doc.Identities[domain.CanonicalAccountID(query)]; ok {
		return entry, true
	}

	wanted := domain.CanonicalUsername(query)
	for _, entry := range doc.Identities {
		if domain.CanonicalUsername(entry.Username) == wanted {
			return entry, true
		}
	}

	return domain.IdentityEntry{}, false
}

func (s *IdentityService) validateUsername(username string) error {
	min := s.cfg.UsernameMin
	if min <= 0 {
		min = 3
	}
	max := s.cfg.UsernameMax
	if max <= 0 {
		max = 20
	}

	if len(username) < min || len(username) > max {
		return fmt.Errorf("%w: length must be %d-%d", ErrInvalidUsername, min, max)
	}
	if !s.usernameRe.MatchString(username) {
		return fmt.Errorf("%w: disallowed characters", ErrInvalidUsername)
	}
	return nil
}

func (s *IdentityService) validateDisplayName(displayName string) error {
	max := s.cfg.DisplayNameMax
	if max <= 0 {
		max = 32
	}
	if len(displayName) > max {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidDisplayName, max)
	}
	return nil
}

// Claim reserves a username for an account. Uniqueness is case-insensitive;
// allowReassign evicts a conflicting owner first. Stale-version write
// conflicts reload and retry the whole claim before surfacing.
func (s *IdentityService) Claim(ctx context.Context, accountID, username, displayName string, allowReassign bool) (*domain.IdentityEntry, error) {
	accountID = strings.TrimSpace(accountID)
	username = strings.TrimSpace(username)
	displayName = strings.TrimSpace(displayName)

	if accountID == "" {
		return nil, ErrInvalidAccountID
	}
	if err := s.validateUsername(username); err != nil {
		return nil, err
	}
	if displayName == "" {
		displayName = username
	}
	if err := s.validateDisplayName(displayName); err != nil {
		return nil, err
	}

	key := domain.CanonicalAccountID(accountID)
	wanted := domain.CanonicalUsername(username)

	var result domain.IdentityEntry
	var reassigned bool

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.mutate(ctx, func(doc *domain.RegistryDocument) (bool, error) {
		reassigned = false

		for ownerKey, owner := range doc.Identities {
			if ownerKey == key || domain.CanonicalUsername(owner.Username) != wanted {
				continue
			}
			if !allowReassign {
				return false, &UsernameConflict{Owner: owner}
			}
			purgeAccount(doc, ownerKey)
			reassigned = true
			break
		}

		result = domain.IdentityEntry{
			AccountID:   accountID,
			Username:    username,
			DisplayName: displayName,
			UpdatedAt:   s.now().UTC(),
		}
		doc.Identities[key] = result
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.publishClaimed(ctx, result, reassigned)
	return &result, nil
}

func (s *IdentityService) publishClaimed(ctx context.Context, entry domain.IdentityEntry, reassigned bool) {
	if s.events == nil {
		return
	}
	event := domain.IdentityClaimedEvent{
		AccountID:  entry.AccountID,
		Username:   entry.Username,
		Reassigned: reassigned,
		ClaimedAt:  entry.UpdatedAt,
	}
	if err := s.events.PublishIdentityClaimed(ctx, event); err != nil {
		s.logger.Warn("publish identity claimed event", zap.Error(err))
	}
}

// Resolve looks a query up as friend code, then account id, then username.
func (s *IdentityService) Resolve(ctx context.Context, query string) (*domain.IdentityEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}

	entry, ok := s.resolveLocked(s.doc, query)
	if !ok {
		return nil, ErrIdentityNotFound
	}
	return &entry, nil
}

// Me returns the identity entry for an account id.
func (s *IdentityService) Me(ctx context.Context, accountID string) (*domain.IdentityEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}

	entry, ok := s.doc.Identities[domain.CanonicalAccountID(accountID)]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	return &entry, nil
}

// Friends returns the owner's social graph view.
func (s *IdentityService) Friends(ctx context.Context, ownerID string) (*domain.FriendView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}

	key := domain.CanonicalAccountID(ownerID)
	if _, ok := s.doc.Identities[key]; !ok {
		return nil, ErrIdentityNotFound
	}

	view := &domain.FriendView{
		Inbox:  append([]domain.FriendRequest(nil), s.doc.Inbox[key]...),
		Blocks: append([]string(nil), s.doc.Blocks[key]...),
	}
	for _, friendID := range s.doc.Friends[key] {
		if entry, ok := s.doc.Identities[friendID]; ok {
			view.Friends = append(view.Friends, entry)
		}
	}
	return view, nil
}

// AddFriendByQuery resolves the query and either accepts a reverse-pending
// request or enqueues a new one on the target's inbox.
func (s *IdentityService) AddFriendByQuery(ctx context.Context, ownerID, query string) error {
	ownerKey := domain.CanonicalAccountID(ownerID)
	if ownerKey == "" {
		return ErrInvalidAccountID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(ctx, func(doc *domain.RegistryDocument) (bool, error) {
		if _, ok := doc.Identities[ownerKey]; !ok {
			return false, ErrIdentityNotFound
		}

		target, ok := s.resolveLocked(doc, query)
		if !ok {
			return false, ErrIdentityNotFound
		}
		targetKey := domain.CanonicalAccountID(target.AccountID)

		if targetKey == ownerKey {
			return false, ErrSelfAction
		}
		if containsID(doc.Blocks[ownerKey], targetKey) || containsID(doc.Blocks[targetKey], ownerKey) {
			return false, ErrBlocked
		}
		if containsID(doc.Friends[ownerKey], targetKey) {
			// Already friends; nothing to change.
			return false, nil
		}

		if hasRequestFrom(doc.Inbox[ownerKey], targetKey) {
			// The target already asked; this call accepts instead of
			// creating a duplicate.
			if len(doc.Friends[ownerKey]) >= domain.MaxFriends || len(doc.Friends[targetKey]) >= domain.MaxFriends {
				return false, ErrFriendLimit
			}
			doc.Inbox[ownerKey] = removeRequestFrom(doc.Inbox[ownerKey], targetKey)
			doc.Friends[ownerKey] = append(doc.Friends[ownerKey], targetKey)
			doc.Friends[targetKey] = append(doc.Friends[targetKey], ownerKey)
			return true, nil
		}

		if hasRequestFrom(doc.Inbox[targetKey], ownerKey) {
			// At most one pending request per pair.
			return false, nil
		}
		if len(doc.Inbox[targetKey]) >= domain.MaxInboxRequests {
			return false, ErrInboxLimit
		}

		doc.Inbox[targetKey] = append(doc.Inbox[targetKey], domain.FriendRequest{
			FromID: ownerKey,
			SentAt: s.now().UTC(),
		})
		return true, nil
	})
}

// RespondToRequest removes the matching inbox entry, then optionally blocks
// the requester or creates the mutual friend edge.
func (s *IdentityService) RespondToRequest(ctx context.Context, ownerID, requesterID string, accept, block bool) error {
	ownerKey := domain.CanonicalAccountID(ownerID)
	requesterKey := domain.CanonicalAccountID(requesterID)
	if ownerKey == "" || requesterKey == "" {
		return ErrInvalidAccountID
	}

	var blocked bool

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.mutate(ctx, func(doc *domain.RegistryDocument) (bool, error) {
		blocked = false

		if !hasRequestFrom(doc.Inbox[ownerKey], requesterKey) {
			return false, ErrNoPendingRequest
		}
		doc.Inbox[ownerKey] = removeRequestFrom(doc.Inbox[ownerKey], requesterKey)

		if block {
			if err := blockEdge(doc, ownerKey, requesterKey); err != nil {
				return false, err
			}
			blocked = true
			return true, nil
		}

		if accept {
			if len(doc.Friends[ownerKey]) >= domain.MaxFriends || len(doc.Friends[requesterKey]) >= domain.MaxFriends {
				return false, ErrFriendLimit
			}
			doc.Friends[ownerKey] = append(doc.Friends[ownerKey], requesterKey)
			doc.Friends[requesterKey] = append(doc.Friends[requesterKey], ownerKey)
		}

		// A plain decline persists only the inbox removal.
		return true, nil
	})
	if err != nil {
		return err
	}

	if blocked {
		s.publishBlocked(ctx, ownerKey, requesterKey)
	}
	return nil
}

// Block severs friend edges and pending requests in both directions and adds
// the block edge, regardless of prior state.
func (s *IdentityService) Block(ctx context.Context, ownerID, query string) error {
	ownerKey := domain.CanonicalAccountID(ownerID)
	if ownerKey == "" {
		return ErrInvalidAccountID
	}

	var targetKey string

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.mutate(ctx, func(doc *domain.RegistryDocument) (bool, error) {
		if _, ok := doc.Identities[ownerKey]; !ok {
			return false, ErrIdentityNotFound
		}

		target, ok := s.resolveLocked(doc, query)
		if !ok {
			return false, ErrIdentityNotFound
		}
		targetKey = domain.CanonicalAccountID(target.AccountID)
		if targetKey == ownerKey {
			return false, ErrSelfAction
		}

		if err := blockEdge(doc, ownerKey, targetKey); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return err
	}

	s.publishBlocked(ctx, ownerKey, targetKey)
	return nil
}

// blockEdge applies the block invariant: no friend edge and no pending
// request may survive in either direction.
func blockEdge(doc *domain.RegistryDocument, ownerKey, targetKey string) error {
	if !containsID(doc.Blocks[ownerKey], targetKey) && len(doc.Blocks[ownerKey]) >= domain.MaxBlocks {
		return ErrBlockLimit
	}

	doc.Friends[ownerKey] = removeID(doc.Friends[ownerKey], targetKey)
	doc.Friends[targetKey] = removeID(doc.Friends[targetKey], ownerKey)
	doc.Inbox[ownerKey] = removeRequestFrom(doc.Inbox[ownerKey], targetKey)
	doc.Inbox[targetKey] = removeRequestFrom(doc.Inbox[targetKey], ownerKey)

	if !containsID(doc.Blocks[ownerKey], targetKey) {
		doc.Blocks[ownerKey] = append(doc.Blocks[ownerKey], targetKey)
	}
	return nil
}

func (s *IdentityService) publishBlocked(ctx context.Context, ownerKey, targetKey string) {
	if s.events == nil {
		return
	}
	event := domain.AccountBlockedEvent{
		OwnerID:   ownerKey,
		TargetID:  targetKey,
		BlockedAt: s.now().UTC(),
	}
	if err := s.events.PublishAccountBlocked(ctx, event); err != nil {
		s.logger.Warn("publish account blocked event", zap.Error(err))
	}
}

// Unblock removes the block edge only; severed friendships stay severed.
func (s *IdentityService) Unblock(ctx context.Context, ownerID, targetID string) error {
	ownerKey := domain.CanonicalAccountID(ownerID)
	targetKey := domain.CanonicalAccountID(targetID)
	if ownerKey == "" || targetKey == "" {
		return ErrInvalidAccountID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(ctx, func(doc *domain.RegistryDocument) (bool, error) {
		if !containsID(doc.Blocks[ownerKey], targetKey) {
			return false, nil
		}
		doc.Blocks[ownerKey] = removeID(doc.Blocks[ownerKey], targetKey)
		return true, nil
	})
}

// RemoveFriend removes the target from the owner's list only. The registry
// does not auto-symmetrize removals; both sides call it, or the removal stays
// asymmetric until the other party notices.
func (s *IdentityService) RemoveFriend(ctx context.Context, ownerID, targetID string) error {
	ownerKey := domain.CanonicalAccountID(ownerID)
	targetKey := domain.CanonicalAccountID(targetID)
	if ownerKey == "" || targetKey == "" {
		return ErrInvalidAccountID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(ctx, func(doc *domain.RegistryDocument) (bool, error) {
		if !containsID(doc.Friends[ownerKey], targetKey) {
			return false, nil
		}
		doc.Friends[ownerKey] = removeID(doc.Friends[ownerKey], targetKey)
		return true, nil
	})
}

// RotateRecoveryCode issues a fresh recovery code, returned in plaintext
// exactly once. The previous record is overwritten.
func (s *IdentityService) RotateRecoveryCode(ctx context.Context, ownerID string) (string, error) {
	ownerKey := domain.CanonicalAccountID(ownerID)
	if ownerKey == "" {
		return "", ErrInvalidAccountID
	}

	code, err := security.GenerateRecoveryCode()
	if err != nil {
		return "", err
	}
	hash, err := security.HashRecoveryCode(code)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.mutate(ctx, func(doc *domain.RegistryDocument) (bool, error) {
		if _, ok := doc.Identities[ownerKey]; !ok {
			return false, ErrIdentityNotFound
		}
		doc.Recovery[ownerKey] = domain.RecoveryRecord{
			CodeHash:  hash,
			RotatedAt: s.now().UTC(),
		}
		return true, nil
	})
	if err != nil {
		return "", err
	}

	return code, nil
}

// Transfer migrates an identity and its whole social graph to a new account
// id after recovery-code verification. Failed attempts consume a slot and at
// the threshold trigger a timed lockout; attempts during lockout are denied
// without consuming a slot.
func (s *IdentityService) Transfer(ctx context.Context, oldQuery, recoveryCode, newAccountID string) (*domain.IdentityEntry, error) {
	newAccountID = strings.TrimSpace(newAccountID)
	newKey := domain.CanonicalAccountID(newAccountID)
	if newKey == "" {
		return nil, ErrInvalidAccountID
	}

	var (
		codeFailed bool
		oldKey     string
		result     domain.IdentityEntry
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.mutate(ctx, func(doc *domain.RegistryDocument) (bool, error) {
		codeFailed = false

		src, ok := s.resolveLocked(doc, oldQuery)
		if !ok {
			return false, ErrIdentityNotFound
		}
		oldKey = domain.CanonicalAccountID(src.AccountID)
		if oldKey == newKey {
			return false, ErrInvalidAccountID
		}
		if _, exists := doc.Identities[newKey]; exists {
			return false, ErrAccountTaken
		}

		record, ok := doc.Recovery[oldKey]
		if !ok {
			return false, ErrRecoveryUnset
		}

		now := s.now().UTC()
		if record.Locked(now) {
			// Denied without consuming an attempt slot.
			return false, ErrRecoveryLocked
		}

		match, err := security.VerifyRecoveryCode(recoveryCode, record.CodeHash)
		if err != nil {
			return false, err
		}
		if !match {
			record.FailedAttempts++
			record.LockedUntil = nil
			if record.FailedAttempts >= domain.RecoveryMaxFails {
				until := now.Add(domain.RecoveryLockout)
				record.LockedUntil = &until
				record.FailedAttempts = 0
			}
			doc.Recovery[oldKey] = record
			codeFailed = true
			// Persist the attempt counter even though the transfer is denied.
			return true, nil
		}

		result = migrateAccount(doc, oldKey, newKey, newAccountID, now)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if codeFailed {
		return nil, ErrRecoveryInvalid
	}

	if s.events != nil {
		event := domain.IdentityTransferredEvent{
			OldAccountID:  oldKey,
			NewAccountID:  result.AccountID,
			Username:      result.Username,
			TransferredAt: result.UpdatedAt,
		}
		if err := s.events.PublishIdentityTransferred(ctx, event); err != nil {
			s.logger.Warn("publish identity transferred event", zap.Error(err))
		}
	}

	return &result, nil
}

// migrateAccount moves the entry, friend list, inbox, block list, and
// recovery record to the new id and rewrites every other account's edges.
func migrateAccount(doc *domain.RegistryDocument, oldKey, newKey, newAccountID string, now time.Time) domain.IdentityEntry {
	entry := doc.Identities[oldKey]
	entry.AccountID = newAccountID
	entry.UpdatedAt = now
	doc.Identities[newKey] = entry
	delete(doc.Identities, oldKey)

	if list, ok := doc.Friends[oldKey]; ok {
		doc.Friends[newKey] = list
		delete(doc.Friends, oldKey)
	}
	if inbox, ok := doc.Inbox[oldKey]; ok {
		doc.Inbox[newKey] = inbox
		delete(doc.Inbox, oldKey)
	}
	if blocks, ok := doc.Blocks[oldKey]; ok {
		doc.Blocks[newKey] = blocks
		delete(doc.Blocks, oldKey)
	}
	if record, ok := doc.Recovery[oldKey]; ok {
		record.FailedAttempts = 0
		record.LockedUntil = nil
		doc.Recovery[newKey] = record
		delete(doc.Recovery, oldKey)
	}

	rewriteReferences(doc, oldKey, newKey)
	return entry
}

func rewriteReferences(doc *domain.RegistryDocument, oldKey, newKey string) {
	for owner, list := range doc.Friends {
		if owner == newKey {
			continue
		}
		for i, id := range list {
			if id == oldKey {
				list[i] = newKey
			}
		}
		doc.Friends[owner] = list
	}
	for owner, inbox := range doc.Inbox {
		if owner == newKey {
			continue
		}
		for i, req := range inbox {
			if req.FromID == oldKey {
				inbox[i].FromID = newKey
			}
		}
		doc.Inbox[owner] = inbox
	}
	for owner, list := range doc.Blocks {
		if owner == newKey {
			continue
		}
		for i, id := range list {
			if id == oldKey {
				list[i] = newKey
			}
		}
		doc.Blocks[owner] = list
	}
}

// Remove deletes an identity (matched by account id or username) and purges
// every reference to it. Administrative.
func (s *IdentityService) Remove(ctx context.Context, query, removedBy string) (*domain.IdentityEntry, error) {
	var removed domain.IdentityEntry

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.mutate(ctx, func(doc *domain.RegistryDocument) (bool, error) {
		entry, ok := s.resolveLocked(doc, query)
		if !ok {
			return false, ErrIdentityNotFound
		}
		removed = entry
		purgeAccount(doc, domain.CanonicalAccountID(entry.AccountID))
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if s.events != nil {
		event := domain.IdentityRemovedEvent{
			AccountID: removed.AccountID,
			Username:  removed.Username,
			RemovedBy: removedBy,
			RemovedAt: s.now().UTC(),
		}
		if err := s.events.PublishIdentityRemoved(ctx, event); err != nil {
			s.logger.Warn("publish identity removed event", zap.Error(err))
		}
	}

	return &removed, nil
}

// purgeAccount deletes an account's entries and strips it from every other
// account's friend list, inbox, and block list.
func purgeAccount(doc *domain.RegistryDocument, key string) {
	delete(doc.Identities, key)
	delete(doc.Friends, key)
	delete(doc.Inbox, key)
	delete(doc.Blocks, key)
	delete(doc.Recovery, key)

	for owner, list := range doc.Friends {
		doc.Friends[owner] = removeID(list, key)
	}
	for owner, inbox := range doc.Inbox {
		doc.Inbox[owner] = removeRequestFrom(inbox, key)
	}
	for owner, list := range doc.Blocks {
		doc.Blocks[owner] = removeID(list, key)
	}
}

func containsID(list []string, id string) bool {
	for _, existing := range list {
		if existing == id {
			return true
		}
	}
	return false
}

func removeID(list []string, id string) []string {
	out := list[:0]
	for _, existing := range list {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}

func hasRequestFrom(inbox []domain.FriendRequest, fromID string) bool {
	for _, req := range inbox {
		if req.FromID == fromID {
			return true
		}
	}
	return false
}

func removeRequestFrom(inbox []domain.FriendRequest, fromID string) []domain.FriendRequest {
	out := inbox[:0]
	for _, req := range inbox {
		if req.FromID != fromID {
			out = append(out, req)
		}
	}
	return out
}
