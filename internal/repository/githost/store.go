// Package githost implements a VersionedStore on top of a git-content-style
// HTTPS API: documents are fetched and written as base64-encoded file
// contents, and the content SHA serves as the optimistic-concurrency version
// token.
package githost

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Redactedcraft/Redactedcraft-sub000/internal/repository"
)

const defaultTimeout = 10 * time.Second

// Config identifies one document in the hosted repository.
type Config struct {
	BaseURL string
	Repo    string
	Branch  string
	Path    string
	Token   string
	Timeout time.Duration
}

// Store accesses a single document via the content API.
type Store struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewStore constructs a Store for the configured document.
func NewStore(cfg Config, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("githost: base url is required")
	}
	if strings.TrimSpace(cfg.Repo) == "" {
		return nil, fmt.Errorf("githost: repo is required")
	}
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("githost: document path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Store{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}, nil
}

type contentResponse struct {
	Content string `json:"content"`
	SHA     string `json:"sha"`
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch,omitempty"`
	SHA     string `json:"sha,omitempty"`
}

type putResponse struct {
	Content contentResponse `json:"content"`
}

// Get fetches the document. The returned version is the content SHA reported
// by the host.
func (s *Store) Get(ctx context.Context) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.contentURL(true), nil)
	if err != nil {
		return nil, "", fmt.Errorf("githost: build request: %w", err)
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := s.checkStatus(resp, http.StatusOK); err != nil {
		return nil, "", err
	}

	var body contentResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, "", fmt.Errorf("githost: decode response: %w", err)
	}

	// Hosts wrap base64 content at 60 columns.
	cleaned := strings.ReplaceAll(body.Content, "\n", "")
	payload, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, "", fmt.Errorf("githost: decode content: %w", err)
	}

	return payload, body.SHA, nil
}

// Put writes the document, carrying the version observed at the last read.
// The host rejects a stale SHA, which surfaces as ErrVersionConflict.
func (s *Store) Put(ctx context.Context, payload []byte, expectedVersion string) (string, error) {
	reqBody := putRequest{
		Message: "gateway: update " + s.cfg.Path,
		Content: base64.StdEncoding.EncodeToString(payload),
		Branch:  s.cfg.Branch,
		SHA:     expectedVersion,
	}

	encoded, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("githost: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.contentURL(false), bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("githost: build request: %w", err)
	}
	s.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := s.checkStatus(resp, http.StatusOK, http.StatusCreated); err != nil {
		return "", err
	}

	var body putResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("githost: decode response: %w", err)
	}

	return body.Content.SHA, nil
}

func (s *Store) contentURL(withRef bool) string {
	base := strings.TrimSuffix(s.cfg.BaseURL, "/")
	u := fmt.Sprintf("%s/repos/%s/contents/%s", base, s.cfg.Repo, url.PathEscape(s.cfg.Path))
	if withRef && s.cfg.Branch != "" {
		u += "?ref=" + url.QueryEscape(s.cfg.Branch)
	}
	return u
}

func (s *Store) authorize(req *http.Request) {
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}
	req.Header.Set("Accept", "application/json")
}

func (s *Store) checkStatus(resp *http.Response, accepted ...int) error {
	for _, code := range accepted {
		if resp.StatusCode == code {
			return nil
		}
	}

	// Drain so the connection can be reused.
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return repository.ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", repository.ErrPermission, resp.StatusCode)
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity:
		s.logger.Debug("githost write conflict",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", snippet),
		)
		return repository.ErrVersionConflict
	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: status %d", repository.ErrMalformed, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", repository.ErrUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("githost: unexpected status %d", resp.StatusCode)
	}
}
