package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// PolicyMode selects how proof tokens and executable hashes combine during
// ticket issuance.
type PolicyMode string

const (
	PolicyHashOnly     PolicyMode = "hash_only"
	PolicyHashAndProof PolicyMode = "hash_and_proof"
	PolicyProofOnly    PolicyMode = "proof_only"
	PolicyHashOrProof  PolicyMode = "hash_or_proof"
)

// ParsePolicyMode normalizes a policy mode string, defaulting to hash_or_proof.
func ParsePolicyMode(raw string) PolicyMode {
	switch PolicyMode(strings.ToLower(strings.TrimSpace(raw))) {
	case PolicyHashOnly:
		return PolicyHashOnly
	case PolicyHashAndProof:
		return PolicyHashAndProof
	case PolicyProofOnly:
		return PolicyProofOnly
	default:
		return PolicyHashOrProof
	}
}

// HashBucket names one of the executable hash sets in the allowlist.
type HashBucket string

const (
	BucketClient  HashBucket = "client"
	BucketDev     HashBucket = "dev"
	BucketRelease HashBucket = "release"
	BucketLegacy  HashBucket = "legacy"
)

// ParseHashBucket validates a bucket name, defaulting to client.
func ParseHashBucket(raw string) (HashBucket, bool) {
	switch HashBucket(strings.ToLower(strings.TrimSpace(raw))) {
	case BucketClient, "":
		return BucketClient, true
	case BucketDev:
		return BucketDev, true
	case BucketRelease:
		return BucketRelease, true
	case BucketLegacy:
		return BucketLegacy, true
	default:
		return "", false
	}
}

// OverrideApplyMode selects how a runtime override combines with the merged
// base allowlist.
type OverrideApplyMode string

const (
	// ApplyReplaceSource discards the merged base and uses the override alone.
	ApplyReplaceSource OverrideApplyMode = "replace_source"
	// ApplyMerge unions the override into the merged base.
	ApplyMerge OverrideApplyMode = "merge"
)

// ParseOverrideApplyMode normalizes an apply mode, defaulting to merge.
func ParseOverrideApplyMode(raw string) OverrideApplyMode {
	if OverrideApplyMode(strings.ToLower(strings.TrimSpace(raw))) == ApplyReplaceSource {
		return ApplyReplaceSource
	}
	return ApplyMerge
}

var hexDigestPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// AllowlistModel is one source's contribution to the allowlist: opaque proof
// tokens, per-bucket SHA-256 executable digests, and a minimum client version.
type AllowlistModel struct {
	ProofTokens  []string                `json:"proof_tokens,omitempty"`
	Hashes       map[HashBucket][]string `json:"hashes,omitempty"`
	MinVersion   string                  `json:"min_version,omitempty"`
	SandboxID    string                  `json:"sandbox_id,omitempty"`
	DeploymentID string                  `json:"deployment_id,omitempty"`
}

// Validate rejects models carrying malformed hash digests. A single bad entry
// rejects the whole model.
func (m AllowlistModel) Validate() error {
	for bucket, digests := range m.Hashes {
		if _, ok := ParseHashBucket(string(bucket)); !ok {
			return fmt.Errorf("unknown hash bucket %q", bucket)
		}
		for _, digest := range digests {
			if !hexDigestPattern.MatchString(digest) {
				return fmt.Errorf("bucket %s: digest %q is not 64 hex characters", bucket, digest)
			}
		}
	}
	return nil
}

// Empty reports whether the model carries no policy inputs at all.
func (m AllowlistModel) Empty() bool {
	if len(m.ProofTokens) > 0 || m.MinVersion != "" || m.SandboxID != "" || m.DeploymentID != "" {
		return false
	}
	for _, digests := range m.Hashes {
		if len(digests) > 0 {
			return false
		}
	}
	return true
}

// AllowlistSnapshot is the merged, read-only view used by exactly one
// issuance decision. Available distinguishes "no data" from "empty and
// therefore deny".
type AllowlistSnapshot struct {
	Available    bool
	Reason       string
	Proofs       map[string]struct{}
	Hashes       map[HashBucket]map[string]struct{}
	MinVersion   string
	SandboxID    string
	DeploymentID string
	Sources      []string
	FetchedAt    time.Time
}

// HasHash reports whether the digest appears in any bucket, compared as
// case-insensitive hex.
func (s AllowlistSnapshot) HasHash(digest string) bool {
	digest = strings.ToLower(strings.TrimSpace(digest))
	if digest == "" {
		return false
	}
	for _, bucket := range s.Hashes {
		if _, ok := bucket[digest]; ok {
			return true
		}
	}
	return false
}

// HasProof reports whether the proof token is present.
func (s AllowlistSnapshot) HasProof(token string) bool {
	_, ok := s.Proofs[token]
	return ok
}

// HashCount returns the total number of digests across all buckets.
func (s AllowlistSnapshot) HashCount() int {
	n := 0
	for _, bucket := range s.Hashes {
		n += len(bucket)
	}
	return n
}
