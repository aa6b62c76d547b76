package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Redactedcraft/Redactedcraft-sub000/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// IdentityPayload describes an identity entry returned by the API.
type IdentityPayload struct {
	AccountID   string    `json:"account_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	FriendCode  string    `json:"friend_code,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TicketIssueRequest defines the payload for ticket issuance.
type TicketIssueRequest struct {
	Channel       string `json:"channel" binding:"required"`
	ClientVersion string `json:"client_version"`
	Platform      string `json:"platform"`
	AccountID     string `json:"account_id"`
	DisplayName   string `json:"display_name"`
	ContentHash   string `json:"content_hash"`
	ProofToken    string `json:"proof_token"`
	DevKey        string `json:"dev_key"`
	SandboxID     string `json:"sandbox_id"`
	DeploymentID  string `json:"deployment_id"`
}

// TicketIssueResponse carries the policy decision and, when approved, the ticket.
type TicketIssueResponse struct {
	Approved  bool       `json:"approved"`
	Reason    string     `json:"reason,omitempty"`
	Ticket    string     `json:"ticket,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// TicketValidateRequest defines the host-to-host peer validation payload.
type TicketValidateRequest struct {
	Ticket          string `json:"ticket" binding:"required"`
	RequiredChannel string `json:"required_channel"`
}

// TicketValidateResponse conveys peer validation results.
type TicketValidateResponse struct {
	Valid       bool   `json:"valid"`
	Reason      string `json:"reason,omitempty"`
	AccountID   string `json:"account_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Channel     string `json:"channel,omitempty"`
}

// IdentityClaimRequest defines the username claim payload.
type IdentityClaimRequest struct {
	Username    string `json:"username" binding:"required"`
	DisplayName string `json:"display_name"`
}

// IdentityResolveRequest resolves a friend code, account id, or username.
type IdentityResolveRequest struct {
	Query string `json:"query" binding:"required"`
}

// FriendAddRequest targets an account by friend code, account id, or username.
type FriendAddRequest struct {
	Query string `json:"query" binding:"required"`
}

// FriendRemoveRequest removes a friend from the caller's list.
type FriendRemoveRequest struct {
	AccountID string `json:"account_id" binding:"required"`
}

// FriendRespondRequest answers a pending friend request.
type FriendRespondRequest struct {
	RequesterID string `json:"requester_id" binding:"required"`
	Accept      bool   `json:"accept"`
	Block       bool   `json:"block"`
}

// FriendBlockRequest blocks an account by query.
type FriendBlockRequest struct {
	Query string `json:"query" binding:"required"`
}

// FriendUnblockRequest removes a block edge.
type FriendUnblockRequest struct {
	AccountID string `json:"account_id" binding:"required"`
}

// FriendRequestPayload describes one pending inbox entry.
type FriendRequestPayload struct {
	FromID string    `json:"from_id"`
	SentAt time.Time `json:"sent_at"`
}

// FriendListResponse returns the caller's social graph view.
type FriendListResponse struct {
	Friends []IdentityPayload      `json:"friends"`
	Inbox   []FriendRequestPayload `json:"inbox"`
	Blocks  []string               `json:"blocks"`
}

// RecoveryRotateResponse carries the plaintext recovery code, shown once.
type RecoveryRotateResponse struct {
	RecoveryCode string `json:"recovery_code"`
	Message      string `json:"message"`
}

// RecoveryTransferRequest migrates an identity to a new account id.
type RecoveryTransferRequest struct {
	Query        string `json:"query" binding:"required"`
	RecoveryCode string `json:"recovery_code" binding:"required"`
	NewAccountID string `json:"new_account_id" binding:"required"`
}

// PresenceUpsertRequest publishes or withdraws the caller's presence.
type PresenceUpsertRequest struct {
	Status     string `json:"status"`
	Hosting    bool   `json:"hosting"`
	WorldName  string `json:"world_name"`
	GameMode   string `json:"game_mode"`
	JoinTarget string `json:"join_target"`
}

// PresencePayload describes one live presence entry.
type PresencePayload struct {
	AccountID   string    `json:"account_id"`
	DisplayName string    `json:"display_name"`
	Username    string    `json:"username"`
	Status      string    `json:"status,omitempty"`
	Hosting     bool      `json:"hosting"`
	WorldName   string    `json:"world_name,omitempty"`
	GameMode    string    `json:"game_mode,omitempty"`
	JoinTarget  string    `json:"join_target,omitempty"`
	FriendCode  string    `json:"friend_code,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// PresenceQueryRequest asks for live entries by account id.
type PresenceQueryRequest struct {
	AccountIDs []string `json:"account_ids" binding:"required"`
}

// PresenceQueryResponse returns live entries plus the caller's pending invites.
type PresenceQueryResponse struct {
	Entries []PresencePayload `json:"entries"`
	Invites []InvitePayload   `json:"invites"`
}

// InviteSendRequest invites an account to the caller's world.
type InviteSendRequest struct {
	TargetID  string `json:"target_id" binding:"required"`
	WorldName string `json:"world_name"`
}

// InviteRespondRequest answers a pending world invite.
type InviteRespondRequest struct {
	SenderID string `json:"sender_id" binding:"required"`
	Response string `json:"response" binding:"required"`
}

// InvitePayload describes one world invite.
type InvitePayload struct {
	SenderID  string    `json:"sender_id"`
	TargetID  string    `json:"target_id"`
	WorldName string    `json:"world_name,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AdminRuntimeOverrideRequest applies or clears the allowlist runtime override.
type AdminRuntimeOverrideRequest struct {
	Operation    string              `json:"operation" binding:"required"`
	ApplyMode    string              `json:"apply_mode"`
	ProofTokens  []string            `json:"proof_tokens"`
	Hashes       map[string][]string `json:"hashes"`
	MinVersion   string              `json:"min_version"`
	SandboxID    string              `json:"sandbox_id"`
	DeploymentID string              `json:"deployment_id"`
}

// AdminHashRequest pins a single content hash into the runtime override.
type AdminHashRequest struct {
	Digest        string `json:"digest" binding:"required"`
	Bucket        string `json:"bucket"`
	ReplaceBucket bool   `json:"replace_bucket"`
	ClearOthers   bool   `json:"clear_others"`
}

// AdminReassignRequest reassigns a username, evicting the current owner.
type AdminReassignRequest struct {
	AccountID   string `json:"account_id" binding:"required"`
	Username    string `json:"username" binding:"required"`
	DisplayName string `json:"display_name"`
}

// AdminRemoveRequest deletes an identity by account id or username.
type AdminRemoveRequest struct {
	Query string `json:"query" binding:"required"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string         `json:"status"`
	StartedAt time.Time      `json:"started_at"`
	Timestamp time.Time      `json:"timestamp"`
	Allowlist map[string]any `json:"allowlist,omitempty"`
}

// newIdentityPayload converts a domain entry to an API payload.
func newIdentityPayload(entry domain.IdentityEntry, friendCode string) IdentityPayload {
	return IdentityPayload{
		AccountID:   entry.AccountID,
		Username:    entry.Username,
		DisplayName: entry.DisplayName,
		FriendCode:  friendCode,
		UpdatedAt:   entry.UpdatedAt,
	}
}

// newPresencePayload converts a domain presence entry to an API payload.
func newPresencePayload(entry domain.PresenceEntry) PresencePayload {
	return PresencePayload{
		AccountID:   entry.AccountID,
		DisplayName: entry.DisplayName,
		Username:    entry.Username,
		Status:      entry.Status,
		Hosting:     entry.Hosting,
		WorldName:   entry.WorldName,
		GameMode:    entry.GameMode,
		JoinTarget:  entry.JoinTarget,
		FriendCode:  entry.FriendCode,
		UpdatedAt:   entry.UpdatedAt,
		ExpiresAt:   entry.ExpiresAt,
	}
}

// newInvitePayload converts a domain invite to an API payload.
func newInvitePayload(invite domain.WorldInvite) InvitePayload {
	return InvitePayload{
		SenderID:  invite.SenderID,
		TargetID:  invite.TargetID,
		WorldName: invite.WorldName,
		Status:    string(invite.Status),
		CreatedAt: invite.CreatedAt,
		ExpiresAt: invite.ExpiresAt,
	}
}
