package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/Redactedcraft/Redactedcraft-sub000/internal/core/domain"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/infra/config"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/repository"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/repository/memory"
)

func hexDigest(c byte) string {
	return strings.Repeat(string(c), 64)
}

func newEnvAllowlist(t *testing.T, cfg config.AllowlistSettings) *AllowlistService {
	t.Helper()
	if cfg.Source == "" {
		cfg.Source = "env"
	}
	return NewAllowlistService(cfg, nil, zaptest.NewLogger(t))
}

func TestEvaluatePolicyModes(t *testing.T) {
	svc := newEnvAllowlist(t, config.AllowlistSettings{
		ProofTokens:  []string{"known-proof"},
		ClientHashes: []string{hexDigest('a')},
	})
	snapshot := svc.Snapshot(context.Background())

	tests := []struct {
		name     string
		mode     domain.PolicyMode
		input    EvaluationInput
		approved bool
	}{
		{"hash_only pass", domain.PolicyHashOnly, EvaluationInput{Hash: hexDigest('a')}, true},
		{"hash_only proof alone fails", domain.PolicyHashOnly, EvaluationInput{Proof: "known-proof"}, false},
		{"proof_only pass", domain.PolicyProofOnly, EvaluationInput{Proof: "known-proof"}, true},
		{"proof_only hash alone fails", domain.PolicyProofOnly, EvaluationInput{Hash: hexDigest('a')}, false},
		{"hash_and_proof both", domain.PolicyHashAndProof, EvaluationInput{Hash: hexDigest('a'), Proof: "known-proof"}, true},
		{"hash_and_proof hash alone fails", domain.PolicyHashAndProof, EvaluationInput{Hash: hexDigest('a')}, false},
		{"hash_or_proof hash alone", domain.PolicyHashOrProof, EvaluationInput{Hash: hexDigest('a')}, true},
		{"hash_or_proof proof alone", domain.PolicyHashOrProof, EvaluationInput{Proof: "known-proof"}, true},
		{"hash_or_proof neither fails", domain.PolicyHashOrProof, EvaluationInput{Hash: hexDigest('f'), Proof: "wrong"}, false},
		{"hash is case-insensitive", domain.PolicyHashOnly, EvaluationInput{Hash: strings.ToUpper(hexDigest('a'))}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := svc.Evaluate(snapshot, tt.mode, tt.input)
			if decision.Approved != tt.approved {
				t.Fatalf("Approved = %v, want %v (reason %q)", decision.Approved, tt.approved, decision.Reason)
			}
			if !decision.Approved && decision.Reason == "" {
				t.Error("denial carries no reason")
			}
		})
	}
}

func TestEvaluateDevKeyBypassesEverything(t *testing.T) {
	svc := newEnvAllowlist(t, config.AllowlistSettings{
		DevKey:     "sekrit",
		MinVersion: "2.0.0",
	})
	// Env model is empty, so the snapshot is unavailable.
	snapshot := svc.Snapshot(context.Background())

	decision := svc.Evaluate(snapshot, domain.PolicyHashAndProof, EvaluationInput{
		DevKey:  "sekrit",
		Version: "0.0.1",
	})
	if !decision.Approved {
		t.Fatalf("dev key denied: %q", decision.Reason)
	}

	decision = svc.Evaluate(snapshot, domain.PolicyHashAndProof, EvaluationInput{DevKey: "wrong"})
	if decision.Approved {
		t.Fatal("wrong dev key approved")
	}
}

func TestEvaluateUnavailableSnapshotDenies(t *testing.T) {
	svc := newEnvAllowlist(t, config.AllowlistSettings{})
	snapshot := svc.Snapshot(context.Background())

	if snapshot.Available {
		t.Fatal("empty env snapshot reported available")
	}
	decision := svc.Evaluate(snapshot, domain.PolicyHashOrProof, EvaluationInput{Hash: hexDigest('a')})
	if decision.Approved {
		t.Fatal("unavailable snapshot approved a ticket")
	}
	if decision.Reason == "" {
		t.Error("unavailable denial carries no reason")
	}
}

func TestEvaluateVersionGate(t *testing.T) {
	svc := newEnvAllowlist(t, config.AllowlistSettings{
		ClientHashes: []string{hexDigest('a')},
		MinVersion:   "1.4.0",
	})
	snapshot := svc.Snapshot(context.Background())

	tests := []struct {
		version  string
		approved bool
	}{
		{"1.4.0", true},
		{"1.10.2", true},
		{"1.3.9", false},
		{"0.9.9", false},
		{"", true},        // unparseable never denies
		{"garbage", true}, // unparseable never denies
	}
	for _, tt := range tests {
		decision := svc.Evaluate(snapshot, domain.PolicyHashOnly, EvaluationInput{
			Hash:    hexDigest('a'),
			Version: tt.version,
		})
		if decision.Approved != tt.approved {
			t.Errorf("version %q: Approved = %v, want %v (reason %q)", tt.version, decision.Approved, tt.approved, decision.Reason)
		}
	}
}

func TestEvaluateEnvironmentPins(t *testing.T) {
	svc := newEnvAllowlist(t, config.AllowlistSettings{
		ClientHashes: []string{hexDigest('a')},
		SandboxID:    "sandbox-eu",
		DeploymentID: "prod-3",
	})
	snapshot := svc.Snapshot(context.Background())

	base := EvaluationInput{Hash: hexDigest('a'), SandboxID: "Sandbox-EU", DeploymentID: "PROD-3"}
	if d := svc.Evaluate(snapshot, domain.PolicyHashOnly, base); !d.Approved {
		t.Fatalf("matching pins denied: %q", d.Reason)
	}

	wrongSandbox := base
	wrongSandbox.SandboxID = "sandbox-us"
	if d := svc.Evaluate(snapshot, domain.PolicyHashOnly, wrongSandbox); d.Approved {
		t.Fatal("sandbox mismatch approved")
	}

	wrongDeploy := base
	wrongDeploy.DeploymentID = "prod-4"
	if d := svc.Evaluate(snapshot, domain.PolicyHashOnly, wrongDeploy); d.Approved {
		t.Fatal("deployment mismatch approved")
	}
}

func TestSnapshotDocumentSource(t *testing.T) {
	store := memory.NewStore()
	store.Seed([]byte(`{"proof_tokens":["doc-proof"],"hashes":{"release":["` + hexDigest('b') + `"]}}`))

	svc := NewAllowlistService(config.AllowlistSettings{Source: "document"}, store, zaptest.NewLogger(t))
	snapshot := svc.Snapshot(context.Background())

	if !snapshot.Available {
		t.Fatalf("document snapshot unavailable: %q", snapshot.Reason)
	}
	if !snapshot.HasProof("doc-proof") {
		t.Error("document proof missing from snapshot")
	}
	if !snapshot.HasHash(hexDigest('b')) {
		t.Error("document hash missing from snapshot")
	}
	if len(snapshot.Sources) != 1 || snapshot.Sources[0] != "document" {
		t.Errorf("Sources = %v", snapshot.Sources)
	}
}

type brokenStore struct{}

func (brokenStore) Get(context.Context) ([]byte, string, error) {
	return nil, "", repository.ErrUnavailable
}

func (brokenStore) Put(context.Context, []byte, string) (string, error) {
	return "", repository.ErrUnavailable
}

type switchableStore struct {
	inner  *memory.Store
	broken bool
}

func (s *switchableStore) Get(ctx context.Context) ([]byte, string, error) {
	if s.broken {
		return nil, "", repository.ErrUnavailable
	}
	return s.inner.Get(ctx)
}

func (s *switchableStore) Put(ctx context.Context, payload []byte, expectedVersion string) (string, error) {
	return s.inner.Put(ctx, payload, expectedVersion)
}

func TestSnapshotServesCachedOnFetchFailure(t *testing.T) {
	store := &switchableStore{inner: memory.NewStore()}
	store.inner.Seed([]byte(`{"proof_tokens":["doc-proof"]}`))

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewAllowlistService(config.AllowlistSettings{Source: "document"}, store, zaptest.NewLogger(t)).
		WithClock(func() time.Time { return current })

	first := svc.Snapshot(context.Background())
	if !first.Available {
		t.Fatalf("initial snapshot unavailable: %q", first.Reason)
	}

	// Backend goes dark past the cache deadline; the stale snapshot keeps serving.
	store.broken = true
	current = current.Add(time.Minute)

	second := svc.Snapshot(context.Background())
	if !second.Available || !second.HasProof("doc-proof") {
		t.Fatal("cached snapshot not served during backend outage")
	}
}

func TestSnapshotUnavailableWhenNeverLoaded(t *testing.T) {
	svc := NewAllowlistService(config.AllowlistSettings{Source: "document"}, brokenStore{}, zaptest.NewLogger(t))

	snapshot := svc.Snapshot(context.Background())
	if snapshot.Available {
		t.Fatal("snapshot available despite backend failure and no cache")
	}
	if snapshot.Reason == "" {
		t.Error("unavailable snapshot carries no reason")
	}
}

func TestRuntimeOverrideMergeAndReplace(t *testing.T) {
	svc := newEnvAllowlist(t, config.AllowlistSettings{
		ClientHashes: []string{hexDigest('a')},
	})

	override := domain.AllowlistModel{
		Hashes: map[domain.HashBucket][]string{domain.BucketRelease: {hexDigest('b')}},
	}

	if err := svc.ApplyRuntimeOverride(OverrideReplace, domain.ApplyMerge, override); err != nil {
		t.Fatalf("merge-mode override rejected: %v", err)
	}
	merged := svc.Snapshot(context.Background())
	if !merged.HasHash(hexDigest('a')) || !merged.HasHash(hexDigest('b')) {
		t.Fatal("merge mode should union override with base sources")
	}

	if err := svc.ApplyRuntimeOverride(OverrideReplace, domain.ApplyReplaceSource, override); err != nil {
		t.Fatalf("replace_source override rejected: %v", err)
	}
	replaced := svc.Snapshot(context.Background())
	if replaced.HasHash(hexDigest('a')) {
		t.Fatal("replace_source mode should discard base sources")
	}
	if !replaced.HasHash(hexDigest('b')) {
		t.Fatal("replace_source mode lost the override hash")
	}
	if len(replaced.Sources) != 1 || replaced.Sources[0] != "runtime" {
		t.Errorf("Sources = %v, want [runtime]", replaced.Sources)
	}

	if err := svc.ApplyRuntimeOverride(OverrideClear, "", domain.AllowlistModel{}); err != nil {
		t.Fatalf("clear rejected: %v", err)
	}
	cleared := svc.Snapshot(context.Background())
	if cleared.HasHash(hexDigest('b')) {
		t.Fatal("cleared override still contributes hashes")
	}
	if !cleared.HasHash(hexDigest('a')) {
		t.Fatal("clearing the override dropped base sources")
	}
}

func TestRuntimeOverrideMergeOperationExtends(t *testing.T) {
	svc := newEnvAllowlist(t, config.AllowlistSettings{})

	first := domain.AllowlistModel{ProofTokens: []string{"alpha"}}
	second := domain.AllowlistModel{ProofTokens: []string{"beta"}}

	if err := svc.ApplyRuntimeOverride(OverrideMerge, domain.ApplyMerge, first); err != nil {
		t.Fatalf("first merge rejected: %v", err)
	}
	if err := svc.ApplyRuntimeOverride(OverrideMerge, domain.ApplyMerge, second); err != nil {
		t.Fatalf("second merge rejected: %v", err)
	}

	snapshot := svc.Snapshot(context.Background())
	if !snapshot.HasProof("alpha") || !snapshot.HasProof("beta") {
		t.Fatal("merge operation should accumulate proof tokens")
	}
}

func TestRuntimeOverrideRejectsBadDigest(t *testing.T) {
	svc := newEnvAllowlist(t, config.AllowlistSettings{})

	bad := domain.AllowlistModel{
		Hashes: map[domain.HashBucket][]string{domain.BucketClient: {"not-a-digest"}},
	}
	if err := svc.ApplyRuntimeOverride(OverrideReplace, domain.ApplyMerge, bad); !errors.Is(err, ErrOverrideInvalid) {
		t.Fatalf("error = %v, want ErrOverrideInvalid", err)
	}
	if err := svc.ApplyRuntimeOverride("promote", domain.ApplyMerge, domain.AllowlistModel{}); !errors.Is(err, ErrOverrideInvalid) {
		t.Fatalf("unknown operation error = %v, want ErrOverrideInvalid", err)
	}
}

func TestSetCurrentHash(t *testing.T) {
	svc := newEnvAllowlist(t, config.AllowlistSettings{})

	if err := svc.SetCurrentHash(strings.ToUpper(hexDigest('c')), domain.BucketClient, false, false); err != nil {
		t.Fatalf("SetCurrentHash: %v", err)
	}
	if err := svc.SetCurrentHash(hexDigest('d'), domain.BucketClient, false, false); err != nil {
		t.Fatalf("SetCurrentHash append: %v", err)
	}

	snapshot := svc.Snapshot(context.Background())
	if !snapshot.HasHash(hexDigest('c')) || !snapshot.HasHash(hexDigest('d')) {
		t.Fatal("appended digests missing from snapshot")
	}

	if err := svc.SetCurrentHash(hexDigest('e'), domain.BucketClient, true, true); err != nil {
		t.Fatalf("SetCurrentHash replace: %v", err)
	}
	snapshot = svc.Snapshot(context.Background())
	if snapshot.HasHash(hexDigest('c')) || snapshot.HasHash(hexDigest('d')) {
		t.Fatal("replaceBucket left older digests in place")
	}
	if !snapshot.HasHash(hexDigest('e')) {
		t.Fatal("replacement digest missing")
	}

	if err := svc.SetCurrentHash("zz", domain.BucketClient, false, false); !errors.Is(err, ErrOverrideInvalid) {
		t.Fatalf("malformed digest error = %v, want ErrOverrideInvalid", err)
	}
}

func TestSummaryReportsOverrideState(t *testing.T) {
	svc := newEnvAllowlist(t, config.AllowlistSettings{
		ProofTokens: []string{"p1", "p2"},
	})

	summary := svc.Summary(context.Background())
	if summary.OverrideInstalled {
		t.Error("override reported before install")
	}
	if summary.ProofCount != 2 {
		t.Errorf("ProofCount = %d, want 2", summary.ProofCount)
	}

	model := domain.AllowlistModel{ProofTokens: []string{"p3"}}
	if err := svc.ApplyRuntimeOverride(OverrideReplace, domain.ApplyMerge, model); err != nil {
		t.Fatalf("override rejected: %v", err)
	}

	summary = svc.Summary(context.Background())
	if !summary.OverrideInstalled {
		t.Error("override not reported after install")
	}
	if summary.OverrideMode != string(domain.ApplyMerge) {
		t.Errorf("OverrideMode = %q", summary.OverrideMode)
	}
	if summary.ProofCount != 3 {
		t.Errorf("ProofCount = %d, want 3", summary.ProofCount)
	}
}

func TestEvaluateProofBase64Decoding(t *testing.T) {
	svc := newEnvAllowlist(t, config.AllowlistSettings{
		ProofTokens: []string{"raw-secret"},
	})
	snapshot := svc.Snapshot(context.Background())

	// "cmF3LXNlY3JldA==" is the standard base64 of raw-secret.
	decision := svc.Evaluate(snapshot, domain.PolicyProofOnly, EvaluationInput{Proof: "cmF3LXNlY3JldA=="})
	if !decision.Approved {
		t.Fatalf("base64-wrapped proof denied: %q", decision.Reason)
	}
}
