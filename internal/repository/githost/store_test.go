package githost

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/Redactedcraft/Redactedcraft-sub000/internal/repository"
)

func newTestStore(t *testing.T, handler http.Handler) *Store {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store, err := NewStore(Config{
		BaseURL: srv.URL,
		Repo:    "gate/registry",
		Branch:  "main",
		Path:    "registry.json",
		Token:   "secret-token",
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	return store
}

func TestStoreGet(t *testing.T) {
	payload := []byte(`{"identities":{}}`)

	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/repos/gate/registry/contents/registry.json" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if ref := r.URL.Query().Get("ref"); ref != "main" {
			t.Errorf("ref = %q, want main", ref)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret-token" {
			t.Errorf("authorization = %q", auth)
		}

		// Hosts wrap base64 content at 60 columns.
		encoded := base64.StdEncoding.EncodeToString(payload)
		wrapped := encoded[:8] + "\n" + encoded[8:]
		_ = json.NewEncoder(w).Encode(map[string]string{
			"content": wrapped,
			"sha":     "abc123",
		})
	}))

	got, version, err := store.Get(context.Background())
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("payload = %q, want %q", got, payload)
	}
	if version != "abc123" {
		t.Errorf("version = %q, want abc123", version)
	}
}

func TestStorePut(t *testing.T) {
	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}

		var req struct {
			Content string `json:"content"`
			Branch  string `json:"branch"`
			SHA     string `json:"sha"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.SHA != "abc123" {
			t.Errorf("sha = %q, want abc123", req.SHA)
		}
		if req.Branch != "main" {
			t.Errorf("branch = %q, want main", req.Branch)
		}
		if decoded, err := base64.StdEncoding.DecodeString(req.Content); err != nil || string(decoded) != `{"v":2}` {
			t.Errorf("content = %q (decode err %v)", req.Content, err)
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": map[string]string{"sha": "def456"},
		})
	}))

	version, err := store.Put(context.Background(), []byte(`{"v":2}`), "abc123")
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if version != "def456" {
		t.Errorf("version = %q, want def456", version)
	}
}

func TestStoreStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, repository.ErrNotFound},
		{http.StatusUnauthorized, repository.ErrPermission},
		{http.StatusForbidden, repository.ErrPermission},
		{http.StatusConflict, repository.ErrVersionConflict},
		{http.StatusUnprocessableEntity, repository.ErrVersionConflict},
		{http.StatusBadRequest, repository.ErrMalformed},
		{http.StatusTooManyRequests, repository.ErrUnavailable},
		{http.StatusBadGateway, repository.ErrUnavailable},
	}

	for _, tc := range cases {
		store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		if _, _, err := store.Get(context.Background()); !errors.Is(err, tc.want) {
			t.Errorf("status %d: Get error = %v, want %v", tc.status, err, tc.want)
		}
		if _, err := store.Put(context.Background(), []byte("x"), "sha"); !errors.Is(err, tc.want) {
			t.Errorf("status %d: Put error = %v, want %v", tc.status, err, tc.want)
		}
	}
}

func TestStoreUnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	store, err := NewStore(Config{
		BaseURL: srv.URL,
		Repo:    "gate/registry",
		Path:    "registry.json",
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}

	if _, _, err := store.Get(context.Background()); !errors.Is(err, repository.ErrUnavailable) {
		t.Fatalf("Get error = %v, want ErrUnavailable", err)
	}
}
