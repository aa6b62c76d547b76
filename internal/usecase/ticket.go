package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Redactedcraft/Redactedcraft-sub000/internal/core/domain"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/core/port"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/infra/security"
)

var (
	// ErrTicketingDisabled indicates no signing key is configured; the
	// endpoint family answers service-unavailable instead of crashing.
	ErrTicketingDisabled = errors.New("ticket service disabled: no signing key configured")
	// ErrWrongChannel indicates a peer ticket carries a channel the host
	// does not accept.
	ErrWrongChannel = errors.New("ticket channel not accepted")
)

// TicketService gates issuance on the allowlist policy engine and signs
// session tickets through the ticket authority.
type TicketService struct {
	authority *security.TicketAuthority
	allowlist *AllowlistService
	events    port.EventPublisher
	logger    *zap.Logger
}

// NewTicketService wires the issuance flow. authority may be nil, which
// disables the service.
func NewTicketService(authority *security.TicketAuthority, allowlist *AllowlistService, events port.EventPublisher, logger *zap.Logger) *TicketService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		authority: authority,
		allowlist: allowlist,
		events:    events,
		logger:    logger,
	}
}

// Enabled reports whether a signing key is configured.
func (s *TicketService) Enabled() bool {
	return s.authority != nil
}

// IssueInput is everything a client presents when requesting a ticket.
type IssueInput struct {
	Proof         string
	Hash          string
	DevKey        string
	Channel       string
	ClientVersion string
	Platform      string
	AccountID     string
	DisplayName   string
	SandboxID     string
	DeploymentID  string
}

// IssueResult reports either a signed ticket or a policy denial. A denial is
// a normal outcome, not an error.
type IssueResult struct {
	Approved  bool
	Reason    string
	Ticket    string
	ExpiresAt time.Time
}

// Issue evaluates issuance policy against the current allowlist snapshot and
// signs a ticket when approved.
func (s *TicketService) Issue(ctx context.Context, input IssueInput) (*IssueResult, error) {
	if !s.Enabled() {
		return nil, ErrTicketingDisabled
	}

	snapshot := s.allowlist.Snapshot(ctx)
	decision := s.allowlist.Evaluate(snapshot, s.allowlist.PolicyMode(), EvaluationInput{
		Proof:        input.Proof,
		Hash:         input.Hash,
		DevKey:       input.DevKey,
		Version:      input.ClientVersion,
		SandboxID:    input.SandboxID,
		DeploymentID: input.DeploymentID,
	})
	if !decision.Approved {
		s.logger.Info("ticket issuance denied",
			zap.String("reason", decision.Reason),
			zap.String("client_version", input.ClientVersion),
		)
		return &IssueResult{Approved: false, Reason: decision.Reason}, nil
	}

	ticket, claims, err := s.authority.Issue(security.TicketInput{
		Channel:       domain.ParseChannel(input.Channel),
		ClientVersion: input.ClientVersion,
		Platform:      input.Platform,
		AccountID:     input.AccountID,
		DisplayName:   input.DisplayName,
	})
	if err != nil {
		return nil, err
	}

	if s.events != nil {
		event := domain.TicketIssuedEvent{
			AccountID: claims.AccountID,
			Channel:   claims.Channel,
			Version:   claims.ClientVersion,
			Platform:  claims.Platform,
			IssuedAt:  claims.IssuedAt.Time,
			ExpiresAt: claims.ExpiresAt.Time,
		}
		if err := s.events.PublishTicketIssued(ctx, event); err != nil {
			s.logger.Warn("publish ticket issued event", zap.Error(err))
		}
	}

	return &IssueResult{
		Approved:  true,
		Ticket:    ticket,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Verify checks a bearer ticket and returns its claims. Failure detail is
// collapsed into short reasons on purpose.
func (s *TicketService) Verify(ticket string) (*security.TicketClaims, error) {
	if !s.Enabled() {
		return nil, ErrTicketingDisabled
	}
	return s.authority.Verify(ticket)
}

// Validate verifies a peer's ticket on behalf of a host, optionally requiring
// a specific build channel.
func (s *TicketService) Validate(ticket, requiredChannel string) (*security.TicketClaims, error) {
	claims, err := s.Verify(ticket)
	if err != nil {
		return nil, err
	}

	if required := strings.TrimSpace(requiredChannel); required != "" {
		if domain.ParseChannel(claims.Channel) != domain.ParseChannel(required) {
			return nil, ErrWrongChannel
		}
	}

	return claims, nil
}
