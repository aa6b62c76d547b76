package routes_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/Redactedcraft/Redactedcraft-sub000/internal/infra/config"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/infra/security"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/repository/memory"
	httproutes "github.com/Redactedcraft/Redactedcraft-sub000/internal/transport/http/routes"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/usecase"
)

const adminToken = "test-admin-token"

func allowedHash() string {
	return strings.Repeat("a", 64)
}

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zaptest.NewLogger(t)
	cfg := &config.AppConfig{
		App:   config.AppSettings{Name: "trust-gateway", Env: "test"},
		Admin: config.AdminSettings{Token: adminToken},
		Allowlist: config.AllowlistSettings{
			Source:       "env",
			PolicyMode:   "hash_only",
			ClientHashes: []string{allowedHash()},
		},
	}

	authority, err := security.NewTicketAuthority("routes-test-key", "trust-gateway", "game-client", time.Hour)
	if err != nil {
		t.Fatalf("NewTicketAuthority: %v", err)
	}

	allowlist := usecase.NewAllowlistService(cfg.Allowlist, nil, logger)
	tickets := usecase.NewTicketService(authority, allowlist, nil, logger)
	identities, err := usecase.NewIdentityService(config.IdentitySettings{
		FriendCodeKey: "routes-test-key",
	}, memory.NewStore(), nil, logger)
	if err != nil {
		t.Fatalf("NewIdentityService: %v", err)
	}
	presence := usecase.NewPresenceService(config.PresenceSettings{}, security.NewFriendCoder("routes-test-key"), logger)

	return httproutes.Register(httproutes.Dependencies{
		Config: cfg,
		Logger: logger,
		Services: httproutes.ServiceSet{
			Tickets:    tickets,
			Allowlist:  allowlist,
			Identities: identities,
			Presence:   presence,
		},
	})
}

func doJSON(t *testing.T, r *gin.Engine, method, path, bearer string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, decoded
}

func issueTicket(t *testing.T, r *gin.Engine, accountID string) string {
	t.Helper()

	w, resp := doJSON(t, r, http.MethodPost, "/ticket", "", map[string]any{
		"channel":      "release",
		"account_id":   accountID,
		"content_hash": allowedHash(),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("issue status = %d: %v", w.Code, resp)
	}
	if approved, _ := resp["approved"].(bool); !approved {
		t.Fatalf("issuance denied: %v", resp["reason"])
	}
	ticket, _ := resp["ticket"].(string)
	if ticket == "" {
		t.Fatal("approved response carries no ticket")
	}
	return ticket
}

func TestTicketIssuancePolicy(t *testing.T) {
	r := newTestEngine(t)

	// Allowlisted hash is approved and the ticket validates.
	ticket := issueTicket(t, r, "acc-alice")
	w, resp := doJSON(t, r, http.MethodPost, "/ticket/validate", "", map[string]any{
		"ticket": ticket,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("validate status = %d", w.Code)
	}
	if valid, _ := resp["valid"].(bool); !valid {
		t.Fatalf("validate = %v", resp)
	}
	if resp["account_id"] != "acc-alice" {
		t.Errorf("validated account = %v", resp["account_id"])
	}

	// An unlisted hash is denied with a 200, not an HTTP error.
	w, resp = doJSON(t, r, http.MethodPost, "/ticket", "", map[string]any{
		"channel":      "release",
		"content_hash": strings.Repeat("b", 64),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("denial status = %d", w.Code)
	}
	if approved, _ := resp["approved"].(bool); approved {
		t.Fatal("unlisted hash approved")
	}
	if resp["reason"] == "" {
		t.Error("denial carries no reason")
	}
	if _, ok := resp["ticket"]; ok {
		t.Error("denial carries a ticket")
	}

	// A tampered ticket fails validation with a short reason.
	w, resp = doJSON(t, r, http.MethodPost, "/ticket/validate", "", map[string]any{
		"ticket": ticket + "x",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("tampered validate status = %d", w.Code)
	}
	if valid, _ := resp["valid"].(bool); valid {
		t.Fatal("tampered ticket validated")
	}

	// Missing channel is a bind error.
	w, _ = doJSON(t, r, http.MethodPost, "/ticket", "", map[string]any{
		"content_hash": allowedHash(),
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing channel status = %d, want 400", w.Code)
	}
}

func TestProtectedRoutesRequireTicket(t *testing.T) {
	r := newTestEngine(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/identity/me"},
		{http.MethodPost, "/identity/claim"},
		{http.MethodGet, "/friends/me"},
		{http.MethodPost, "/presence/upsert"},
	}
	for _, p := range paths {
		w, _ := doJSON(t, r, p.method, p.path, "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without ticket: status = %d, want 401", p.method, p.path, w.Code)
		}
		w, _ = doJSON(t, r, p.method, p.path, "garbage-token", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s with garbage ticket: status = %d, want 401", p.method, p.path, w.Code)
		}
	}
}

func TestIdentityAndFriendsFlow(t *testing.T) {
	r := newTestEngine(t)
	aliceTicket := issueTicket(t, r, "acc-alice")
	bobTicket := issueTicket(t, r, "acc-bob")

	// Both players claim usernames.
	w, resp := doJSON(t, r, http.MethodPost, "/identity/claim", aliceTicket, map[string]any{
		"username": "Alice",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("claim status = %d: %v", w.Code, resp)
	}
	if resp["friend_code"] == "" {
		t.Error("claim response missing friend code")
	}
	w, _ = doJSON(t, r, http.MethodPost, "/identity/claim", bobTicket, map[string]any{
		"username": "Bob",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("bob claim status = %d", w.Code)
	}

	// The taken username conflicts for another account.
	w, _ = doJSON(t, r, http.MethodPost, "/identity/claim", bobTicket, map[string]any{
		"username": "alice",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("conflicting claim status = %d, want 409", w.Code)
	}

	// Lookup by username.
	w, resp = doJSON(t, r, http.MethodPost, "/identity/resolve", aliceTicket, map[string]any{
		"query": "bob",
	})
	if w.Code != http.StatusOK || resp["account_id"] != "acc-bob" {
		t.Fatalf("resolve = %d %v", w.Code, resp)
	}

	// Friend request and acceptance.
	w, _ = doJSON(t, r, http.MethodPost, "/friends/add", aliceTicket, map[string]any{
		"query": "bob",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("friend add status = %d", w.Code)
	}
	w, _ = doJSON(t, r, http.MethodPost, "/friends/respond", bobTicket, map[string]any{
		"requester_id": "acc-alice",
		"accept":       true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("friend respond status = %d", w.Code)
	}

	w, resp = doJSON(t, r, http.MethodGet, "/friends/me", aliceTicket, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("friends list status = %d", w.Code)
	}
	friends, _ := resp["friends"].([]any)
	if len(friends) != 1 {
		t.Fatalf("friends = %v", resp["friends"])
	}

	// Me reflects the claimed identity.
	w, resp = doJSON(t, r, http.MethodGet, "/identity/me", aliceTicket, nil)
	if w.Code != http.StatusOK || resp["username"] != "Alice" {
		t.Fatalf("me = %d %v", w.Code, resp)
	}
}

func TestRecoveryTransferFlow(t *testing.T) {
	r := newTestEngine(t)
	aliceTicket := issueTicket(t, r, "acc-alice")

	w, _ := doJSON(t, r, http.MethodPost, "/identity/claim", aliceTicket, map[string]any{
		"username": "Alice",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("claim status = %d", w.Code)
	}

	w, resp := doJSON(t, r, http.MethodPost, "/identity/recovery/rotate", aliceTicket, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("rotate status = %d: %v", w.Code, resp)
	}
	code, _ := resp["recovery_code"].(string)
	if code == "" {
		t.Fatal("rotate response missing recovery code")
	}

	// Transfer needs no ticket; the recovery code authenticates.
	w, resp = doJSON(t, r, http.MethodPost, "/identity/recovery/transfer", "", map[string]any{
		"query":          "alice",
		"recovery_code":  code,
		"new_account_id": "acc-alice-new",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("transfer status = %d: %v", w.Code, resp)
	}
	if resp["account_id"] != "acc-alice-new" {
		t.Errorf("transferred account = %v", resp["account_id"])
	}

	// A wrong code is denied without detail.
	w, _ = doJSON(t, r, http.MethodPost, "/identity/recovery/transfer", "", map[string]any{
		"query":          "alice",
		"recovery_code":  "WRONG-WRONG-WRONG-WRONG",
		"new_account_id": "acc-other",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad code transfer status = %d, want 401", w.Code)
	}
}

func TestPresenceFlow(t *testing.T) {
	r := newTestEngine(t)
	aliceTicket := issueTicket(t, r, "acc-alice")
	bobTicket := issueTicket(t, r, "acc-bob")

	w, resp := doJSON(t, r, http.MethodPost, "/presence/upsert", aliceTicket, map[string]any{
		"hosting":     true,
		"world_name":  "skyblock",
		"join_target": "10.0.0.5:25565",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("upsert status = %d: %v", w.Code, resp)
	}

	w, resp = doJSON(t, r, http.MethodPost, "/presence/query", bobTicket, map[string]any{
		"account_ids": []string{"acc-alice"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("query status = %d", w.Code)
	}
	entries, _ := resp["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("entries = %v", resp["entries"])
	}

	w, _ = doJSON(t, r, http.MethodPost, "/presence/invite", aliceTicket, map[string]any{
		"target_id":  "acc-bob",
		"world_name": "skyblock",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("invite status = %d", w.Code)
	}

	// Bob sees the invite alongside his next query.
	w, resp = doJSON(t, r, http.MethodPost, "/presence/query", bobTicket, map[string]any{
		"account_ids": []string{"acc-alice"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("second query status = %d", w.Code)
	}
	invites, _ := resp["invites"].([]any)
	if len(invites) != 1 {
		t.Fatalf("invites = %v", resp["invites"])
	}

	w, resp = doJSON(t, r, http.MethodPost, "/presence/invite/respond", bobTicket, map[string]any{
		"sender_id": "acc-alice",
		"response":  "accepted",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("invite respond status = %d: %v", w.Code, resp)
	}
	if resp["status"] != "accepted" {
		t.Errorf("invite status = %v", resp["status"])
	}
}

func TestAdminEndpoints(t *testing.T) {
	r := newTestEngine(t)

	w, _ := doJSON(t, r, http.MethodPost, "/admin/allowlist/hash", "", map[string]any{
		"digest": strings.Repeat("c", 64),
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/allowlist/hash",
		strings.NewReader(`{"digest":"`+strings.Repeat("c", 64)+`"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer wrong-token")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d, want 401", w.Code)
	}

	// Pinning a hash through the admin API makes it issuable immediately.
	req = httptest.NewRequest(http.MethodPost, "/admin/allowlist/hash",
		strings.NewReader(`{"digest":"`+strings.Repeat("c", 64)+`"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("pin hash status = %d: %s", w.Code, w.Body.String())
	}

	issued, resp := doJSON(t, r, http.MethodPost, "/ticket", "", map[string]any{
		"channel":      "release",
		"content_hash": strings.Repeat("c", 64),
	})
	if issued.Code != http.StatusOK {
		t.Fatalf("issue status = %d", issued.Code)
	}
	if approved, _ := resp["approved"].(bool); !approved {
		t.Fatalf("pinned hash denied: %v", resp["reason"])
	}
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestEngine(t)

	w, resp := doJSON(t, r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v", resp["status"])
	}
	allowlist, _ := resp["allowlist"].(map[string]any)
	if allowlist == nil {
		t.Fatal("health response missing allowlist summary")
	}
	if available, _ := allowlist["available"].(bool); !available {
		t.Errorf("allowlist summary = %v", allowlist)
	}
}
