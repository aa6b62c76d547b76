package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Redactedcraft/Redactedcraft-sub000/internal/repository"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/transport/http/middleware"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/usecase"
)

// IdentityHandler exposes identity lookup, username claim, and recovery.
type IdentityHandler struct {
	identities *usecase.IdentityService
}

// NewIdentityHandler constructs an identity handler.
func NewIdentityHandler(identities *usecase.IdentityService) *IdentityHandler {
	return &IdentityHandler{identities: identities}
}

// Me returns the caller's identity entry.
func (h *IdentityHandler) Me(c *gin.Context) {
	if h.identities == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "identity service unavailable"))
		return
	}

	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok || accountID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	entry, err := h.identities.Me(c.Request.Context(), accountID)
	if err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrIdentityNotFound, Status: http.StatusNotFound, Message: "no identity claimed for this account"},
			{Err: repository.ErrUnavailable, Status: http.StatusServiceUnavailable, Message: "identity backend unavailable"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to load identity")
		return
	}

	c.JSON(http.StatusOK, newIdentityPayload(*entry, h.identities.FriendCode(entry.AccountID)))
}

// Claim reserves a username for the calling account.
func (h *IdentityHandler) Claim(c *gin.Context) {
	if h.identities == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "identity service unavailable"))
		return
	}

	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok || accountID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req IdentityClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "username is required"))
		return
	}

	entry, err := h.identities.Claim(c.Request.Context(), accountID, req.Username, req.DisplayName, false)
	if err != nil {
		var conflict *usecase.UsernameConflict
		if errors.As(err, &conflict) {
			c.JSON(http.StatusConflict, NewErrorResponse(c, "username already taken"))
			return
		}
		cases := []ErrorCase{
			{Err: usecase.ErrInvalidUsername, Status: http.StatusBadRequest, Message: "invalid username"},
			{Err: usecase.ErrInvalidDisplayName, Status: http.StatusBadRequest, Message: "invalid display name"},
			{Err: repository.ErrVersionConflict, Status: http.StatusConflict, Message: "registry busy, retry"},
			{Err: repository.ErrUnavailable, Status: http.StatusServiceUnavailable, Message: "identity backend unavailable"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to claim username")
		return
	}

	c.JSON(http.StatusOK, newIdentityPayload(*entry, h.identities.FriendCode(entry.AccountID)))
}

// Resolve looks up an identity by friend code, account id, or username.
func (h *IdentityHandler) Resolve(c *gin.Context) {
	if h.identities == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "identity service unavailable"))
		return
	}

	var req IdentityResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "query is required"))
		return
	}

	entry, err := h.identities.Resolve(c.Request.Context(), req.Query)
	if err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrIdentityNotFound, Status: http.StatusNotFound, Message: "identity not found"},
			{Err: repository.ErrUnavailable, Status: http.StatusServiceUnavailable, Message: "identity backend unavailable"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to resolve identity")
		return
	}

	c.JSON(http.StatusOK, newIdentityPayload(*entry, h.identities.FriendCode(entry.AccountID)))
}

// RotateRecovery issues a fresh recovery code for the caller, returned in
// plaintext exactly once.
func (h *IdentityHandler) RotateRecovery(c *gin.Context) {
	if h.identities == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "identity service unavailable"))
		return
	}

	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok || accountID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	code, err := h.identities.RotateRecoveryCode(c.Request.Context(), accountID)
	if err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrIdentityNotFound, Status: http.StatusNotFound, Message: "no identity claimed for this account"},
			{Err: repository.ErrUnavailable, Status: http.StatusServiceUnavailable, Message: "identity backend unavailable"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to rotate recovery code")
		return
	}

	c.JSON(http.StatusOK, RecoveryRotateResponse{
		RecoveryCode: code,
		Message:      "store this code now; it cannot be retrieved again",
	})
}

// Transfer migrates an identity to a new account id, authenticated by the
// recovery code rather than a ticket.
func (h *IdentityHandler) Transfer(c *gin.Context) {
	if h.identities == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "identity service unavailable"))
		return
	}

	var req RecoveryTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "query, recovery_code, and new_account_id are required"))
		return
	}

	entry, err := h.identities.Transfer(c.Request.Context(), req.Query, req.RecoveryCode, req.NewAccountID)
	if err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrIdentityNotFound, Status: http.StatusNotFound, Message: "identity not found"},
			{Err: usecase.ErrInvalidAccountID, Status: http.StatusBadRequest, Message: "invalid account id"},
			{Err: usecase.ErrAccountTaken, Status: http.StatusConflict, Message: "destination account already has an identity"},
			{Err: usecase.ErrRecoveryUnset, Status: http.StatusUnauthorized, Message: "recovery denied"},
			{Err: usecase.ErrRecoveryInvalid, Status: http.StatusUnauthorized, Message: "recovery denied"},
			{Err: usecase.ErrRecoveryLocked, Status: http.StatusUnauthorized, Message: "recovery temporarily locked"},
			{Err: repository.ErrVersionConflict, Status: http.StatusConflict, Message: "registry busy, retry"},
			{Err: repository.ErrUnavailable, Status: http.StatusServiceUnavailable, Message: "identity backend unavailable"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to transfer identity")
		return
	}

	c.JSON(http.StatusOK, newIdentityPayload(*entry, h.identities.FriendCode(entry.AccountID)))
}
