package usecase

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Redactedcraft/Redactedcraft-sub000/internal/core/domain"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/core/port"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/infra/config"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/repository"
)

const (
	defaultAllowlistRefresh = 30 * time.Second
	minAllowlistRefresh     = 5 * time.Second
)

// ErrOverrideInvalid indicates a runtime override payload failed validation.
var ErrOverrideInvalid = errors.New("allowlist: invalid runtime override")

// Decision is the outcome of one issuance evaluation.
type Decision struct {
	Approved bool
	Reason   string
}

func approve() Decision {
	return Decision{Approved: true}
}

func deny(reason string) Decision {
	return Decision{Approved: false, Reason: reason}
}

// EvaluationInput carries everything a client presents when requesting a ticket.
type EvaluationInput struct {
	Proof        string
	Hash         string
	DevKey       string
	Version      string
	SandboxID    string
	DeploymentID string
}

// OverrideOperation selects what to do with the installed runtime override.
type OverrideOperation string

const (
	OverrideReplace OverrideOperation = "replace"
	OverrideMerge   OverrideOperation = "merge"
	OverrideClear   OverrideOperation = "clear"
)

// AllowlistService merges allowlist sources into immutable snapshots and
// evaluates ticket-issuance policy against them.
type AllowlistService struct {
	cfg     config.AllowlistSettings
	store   port.VersionedStore
	logger  *zap.Logger
	now     func() time.Time
	refresh time.Duration

	mu           sync.Mutex
	snapshot     domain.AllowlistSnapshot
	hasSnapshot  bool
	override     *domain.AllowlistModel
	overrideMode domain.OverrideApplyMode
}

// NewAllowlistService constructs the policy engine. The document store is
// optional; with source=env the engine runs entirely from static config.
func NewAllowlistService(cfg config.AllowlistSettings, store port.VersionedStore, logger *zap.Logger) *AllowlistService {
	if logger == nil {
		logger = zap.NewNop()
	}

	refresh := cfg.RefreshInterval
	if refresh <= 0 {
		refresh = defaultAllowlistRefresh
	}
	if refresh < minAllowlistRefresh {
		refresh = minAllowlistRefresh
	}

	return &AllowlistService{
		cfg:     cfg,
		store:   store,
		logger:  logger,
		now:     time.Now,
		refresh: refresh,
	}
}

// WithClock overrides the wall clock (primarily for tests).
func (s *AllowlistService) WithClock(now func() time.Time) *AllowlistService {
	if now != nil {
		s.now = now
	}
	return s
}

// PolicyMode returns the configured issuance policy mode.
func (s *AllowlistService) PolicyMode() domain.PolicyMode {
	return domain.ParsePolicyMode(s.cfg.PolicyMode)
}

// Snapshot returns the merged allowlist view for one issuance decision.
// Results are cached for the refresh interval; concurrent callers past the
// cache deadline collapse onto a single refresh.
func (s *AllowlistService) Snapshot(ctx context.Context) domain.AllowlistSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasSnapshot && s.now().Sub(s.snapshot.FetchedAt) < s.refresh {
		return s.snapshot
	}

	snapshot := s.buildSnapshotLocked(ctx)
	s.snapshot = snapshot
	s.hasSnapshot = true
	return snapshot
}

// Invalidate drops the cached snapshot so the next caller refreshes.
func (s *AllowlistService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasSnapshot = false
}

func (s *AllowlistService) buildSnapshotLocked(ctx context.Context) domain.AllowlistSnapshot {
	snapshot := domain.AllowlistSnapshot{
		Proofs:    make(map[string]struct{}),
		Hashes:    make(map[domain.HashBucket]map[string]struct{}),
		FetchedAt: s.now().UTC(),
	}

	source := strings.ToLower(strings.TrimSpace(s.cfg.Source))
	wantDocument := source == "document" || source == "both"
	wantEnv := source == "env" || source == "both" || source == ""

	var failures []string

	if wantDocument {
		if s.store == nil {
			failures = append(failures, "document source selected but no backend configured")
		} else {
			model, _, err := repository.Load[domain.AllowlistModel](ctx, s.store)
			switch {
			case err == nil:
				mergeModel(&snapshot, *model)
				snapshot.Available = true
				snapshot.Sources = append(snapshot.Sources, "document")
			case s.hasSnapshot && s.snapshot.Available:
				// A prior good load stays valid when the backend is briefly
				// unreachable.
				s.logger.Warn("allowlist document fetch failed, serving cached snapshot", zap.Error(err))
				return s.snapshot
			default:
				failures = append(failures, fmt.Sprintf("document: %v", err))
			}
		}
	}

	if wantEnv {
		envModel := s.envModel()
		if !envModel.Empty() {
			mergeModel(&snapshot, envModel)
			snapshot.Available = true
			snapshot.Sources = append(snapshot.Sources, "env")
		}
	}

	if s.override != nil {
		if s.overrideMode == domain.ApplyReplaceSource {
			replaced := domain.AllowlistSnapshot{
				Proofs:    make(map[string]struct{}),
				Hashes:    make(map[domain.HashBucket]map[string]struct{}),
				FetchedAt: snapshot.FetchedAt,
			}
			mergeModel(&replaced, *s.override)
			replaced.Available = true
			replaced.Sources = []string{"runtime"}
			return replaced
		}
		mergeModel(&snapshot, *s.override)
		snapshot.Available = true
		snapshot.Sources = append(snapshot.Sources, "runtime")
	}

	if !snapshot.Available {
		if len(failures) > 0 {
			snapshot.Reason = strings.Join(failures, "; ")
		} else {
			snapshot.Reason = "no allowlist source available"
		}
	}

	return snapshot
}

func (s *AllowlistService) envModel() domain.AllowlistModel {
	return domain.AllowlistModel{
		ProofTokens: s.cfg.ProofTokens,
		Hashes: map[domain.HashBucket][]string{
			domain.BucketClient:  s.cfg.ClientHashes,
			domain.BucketDev:     s.cfg.DevHashes,
			domain.BucketRelease: s.cfg.ReleaseHashes,
			domain.BucketLegacy:  s.cfg.LegacyHashes,
		},
		MinVersion:   s.cfg.MinVersion,
		SandboxID:    s.cfg.SandboxID,
		DeploymentID: s.cfg.DeploymentID,
	}
}

func mergeModel(snapshot *domain.AllowlistSnapshot, model domain.AllowlistModel) {
	for _, token := range model.ProofTokens {
		token = strings.TrimSpace(token)
		if token != "" {
			snapshot.Proofs[token] = struct{}{}
		}
	}

	for bucket, digests := range model.Hashes {
		normalized, ok := domain.ParseHashBucket(string(bucket))
		if !ok {
			continue
		}
		for _, digest := range digests {
			digest = strings.ToLower(strings.TrimSpace(digest))
			if digest == "" {
				continue
			}
			if snapshot.Hashes[normalized] == nil {
				snapshot.Hashes[normalized] = make(map[string]struct{})
			}
			snapshot.Hashes[normalized][digest] = struct{}{}
		}
	}

	// The non-default minimum wins; later sources layer over earlier ones.
	if model.MinVersion != "" {
		snapshot.MinVersion = model.MinVersion
	}
	if model.SandboxID != "" {
		snapshot.SandboxID = model.SandboxID
	}
	if model.DeploymentID != "" {
		snapshot.DeploymentID = model.DeploymentID
	}
}

// Evaluate applies issuance policy to one snapshot and one presented input.
func (s *AllowlistService) Evaluate(snapshot domain.AllowlistSnapshot, mode domain.PolicyMode, input EvaluationInput) Decision {
	if s.devKeyValid(input.DevKey) {
		// A valid developer key bypasses every other gate, version and
		// public-id checks included.
		return approve()
	}

	if !snapshot.Available {
		reason := snapshot.Reason
		if reason == "" {
			reason = "allowlist unavailable"
		}
		return deny(reason)
	}

	hashOK := snapshot.HasHash(input.Hash)
	proofOK := s.proofMatches(snapshot, input.Proof)

	switch mode {
	case domain.PolicyHashOnly:
		if !hashOK {
			return deny("client hash not allowlisted")
		}
	case domain.PolicyProofOnly:
		if !proofOK {
			return deny("proof token not recognized")
		}
	case domain.PolicyHashAndProof:
		if !hashOK || !proofOK {
			return deny("client hash and proof token required")
		}
	default: // hash_or_proof
		if !hashOK && !proofOK {
			return deny("client not allowlisted")
		}
	}

	if tooOld(input.Version, snapshot.MinVersion) {
		return deny(fmt.Sprintf("client version %s below minimum %s", input.Version, snapshot.MinVersion))
	}

	if snapshot.SandboxID != "" && !strings.EqualFold(input.SandboxID, snapshot.SandboxID) {
		return deny("sandbox id mismatch")
	}
	if snapshot.DeploymentID != "" && !strings.EqualFold(input.DeploymentID, snapshot.DeploymentID) {
		return deny("deployment id mismatch")
	}

	return approve()
}

func (s *AllowlistService) devKeyValid(presented string) bool {
	if s.cfg.DevKey == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(s.cfg.DevKey)) == 1
}

func (s *AllowlistService) proofMatches(snapshot domain.AllowlistSnapshot, presented string) bool {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return false
	}

	// Proofs arrive base64-encoded on the wire; stored tokens are opaque.
	if decoded, err := base64.StdEncoding.DecodeString(presented); err == nil {
		if snapshot.HasProof(string(decoded)) {
			return true
		}
	}
	return snapshot.HasProof(presented)
}

// tooOld compares dotted three-part versions. Unparseable input on either
// side never denies; the gate only fires on a definitive comparison.
func tooOld(version, minimum string) bool {
	if minimum == "" {
		return false
	}

	have, ok := parseVersion(version)
	if !ok {
		return false
	}
	want, ok := parseVersion(minimum)
	if !ok {
		return false
	}

	for i := 0; i < 3; i++ {
		if have[i] != want[i] {
			return have[i] < want[i]
		}
	}
	return false
}

func parseVersion(raw string) ([3]int, bool) {
	var out [3]int
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 3 {
		return out, false
	}
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return out, false
		}
		out[i] = n
	}
	return out, true
}

// ApplyRuntimeOverride installs, extends, or clears the administrator
// override. Hash digests are validated before acceptance; one bad entry
// rejects the whole call.
func (s *AllowlistService) ApplyRuntimeOverride(op OverrideOperation, mode domain.OverrideApplyMode, model domain.AllowlistModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch op {
	case OverrideClear:
		s.override = nil
		s.overrideMode = ""
	case OverrideReplace:
		if err := model.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrOverrideInvalid, err)
		}
		copied := model
		s.override = &copied
		s.overrideMode = mode
	case OverrideMerge:
		if err := model.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrOverrideInvalid, err)
		}
		if s.override == nil {
			copied := model
			s.override = &copied
		} else {
			mergeInto(s.override, model)
		}
		s.overrideMode = mode
	default:
		return fmt.Errorf("%w: unknown operation %q", ErrOverrideInvalid, op)
	}

	s.hasSnapshot = false
	return nil
}

// SetCurrentHash swaps one digest into the runtime override without a full
// replace payload, for promoting today's build live.
func (s *AllowlistService) SetCurrentHash(digest string, bucket domain.HashBucket, replaceBucket, clearOthers bool) error {
	model := domain.AllowlistModel{
		Hashes: map[domain.HashBucket][]string{bucket: {strings.ToLower(strings.TrimSpace(digest))}},
	}
	if err := model.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrOverrideInvalid, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.override == nil {
		s.override = &domain.AllowlistModel{Hashes: make(map[domain.HashBucket][]string)}
		s.overrideMode = domain.ApplyMerge
	}
	if s.override.Hashes == nil {
		s.override.Hashes = make(map[domain.HashBucket][]string)
	}

	if clearOthers {
		for b := range s.override.Hashes {
			if b != bucket {
				delete(s.override.Hashes, b)
			}
		}
	}

	normalized := strings.ToLower(strings.TrimSpace(digest))
	if replaceBucket {
		s.override.Hashes[bucket] = []string{normalized}
	} else {
		s.override.Hashes[bucket] = appendUnique(s.override.Hashes[bucket], normalized)
	}

	s.hasSnapshot = false
	return nil
}

func appendUnique(list []string, value string) []string {
	for _, existing := range list {
		if existing == value {
			return list
		}
	}
	return append(list, value)
}

func mergeInto(dst *domain.AllowlistModel, src domain.AllowlistModel) {
	for _, token := range src.ProofTokens {
		dst.ProofTokens = appendUnique(dst.ProofTokens, token)
	}
	if dst.Hashes == nil && len(src.Hashes) > 0 {
		dst.Hashes = make(map[domain.HashBucket][]string)
	}
	for bucket, digests := range src.Hashes {
		for _, digest := range digests {
			dst.Hashes[bucket] = appendUnique(dst.Hashes[bucket], strings.ToLower(digest))
		}
	}
	if src.MinVersion != "" {
		dst.MinVersion = src.MinVersion
	}
	if src.SandboxID != "" {
		dst.SandboxID = src.SandboxID
	}
	if src.DeploymentID != "" {
		dst.DeploymentID = src.DeploymentID
	}
}

// RuntimeSummary reports override state for health and admin responses.
type RuntimeSummary struct {
	OverrideInstalled bool     `json:"override_installed"`
	OverrideMode      string   `json:"override_mode,omitempty"`
	SnapshotAvailable bool     `json:"snapshot_available"`
	SnapshotReason    string   `json:"snapshot_reason,omitempty"`
	ProofCount        int      `json:"proof_count"`
	HashCount         int      `json:"hash_count"`
	Sources           []string `json:"sources,omitempty"`
}

// Summary describes the current snapshot and override without forcing a refresh.
func (s *AllowlistService) Summary(ctx context.Context) RuntimeSummary {
	snapshot := s.Snapshot(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	summary := RuntimeSummary{
		OverrideInstalled: s.override != nil,
		SnapshotAvailable: snapshot.Available,
		SnapshotReason:    snapshot.Reason,
		ProofCount:        len(snapshot.Proofs),
		HashCount:         snapshot.HashCount(),
		Sources:           snapshot.Sources,
	}
	if s.override != nil {
		summary.OverrideMode = string(s.overrideMode)
	}
	return summary
}
