package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Redactedcraft/Redactedcraft-sub000/internal/core/domain"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/repository"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/usecase"
)

// AdminHandler exposes operator overrides for the allowlist and the registry.
type AdminHandler struct {
	allowlist  *usecase.AllowlistService
	identities *usecase.IdentityService
}

// NewAdminHandler constructs an admin handler.
func NewAdminHandler(allowlist *usecase.AllowlistService, identities *usecase.IdentityService) *AdminHandler {
	return &AdminHandler{allowlist: allowlist, identities: identities}
}

// RuntimeOverride installs, merges, or clears the allowlist runtime override.
// The override never persists to the backing document.
func (h *AdminHandler) RuntimeOverride(c *gin.Context) {
	if h.allowlist == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "allowlist service unavailable"))
		return
	}

	var req AdminRuntimeOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "operation is required"))
		return
	}

	var op usecase.OverrideOperation
	switch strings.ToLower(strings.TrimSpace(req.Operation)) {
	case "replace":
		op = usecase.OverrideReplace
	case "merge":
		op = usecase.OverrideMerge
	case "clear":
		op = usecase.OverrideClear
	default:
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "operation must be 'replace', 'merge', or 'clear'"))
		return
	}

	model := domain.AllowlistModel{
		ProofTokens:  req.ProofTokens,
		MinVersion:   req.MinVersion,
		SandboxID:    req.SandboxID,
		DeploymentID: req.DeploymentID,
	}
	if len(req.Hashes) > 0 {
		model.Hashes = make(map[domain.HashBucket][]string, len(req.Hashes))
		for bucket, digests := range req.Hashes {
			parsed, ok := domain.ParseHashBucket(bucket)
			if !ok {
				c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unknown hash bucket"))
				return
			}
			model.Hashes[parsed] = digests
		}
	}

	mode := domain.ParseOverrideApplyMode(req.ApplyMode)
	if err := h.allowlist.ApplyRuntimeOverride(op, mode, model); err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrOverrideInvalid, Status: http.StatusBadRequest, Message: "invalid override payload"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to apply override")
		return
	}

	c.JSON(http.StatusOK, h.allowlist.Summary(c.Request.Context()))
}

// PinHash pins a single content hash into the runtime override.
func (h *AdminHandler) PinHash(c *gin.Context) {
	if h.allowlist == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "allowlist service unavailable"))
		return
	}

	var req AdminHashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "digest is required"))
		return
	}

	bucket, ok := domain.ParseHashBucket(req.Bucket)
	if !ok {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unknown hash bucket"))
		return
	}

	if err := h.allowlist.SetCurrentHash(req.Digest, bucket, req.ReplaceBucket, req.ClearOthers); err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrOverrideInvalid, Status: http.StatusBadRequest, Message: "invalid digest"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to pin hash")
		return
	}

	c.JSON(http.StatusOK, h.allowlist.Summary(c.Request.Context()))
}

// Reassign claims a username for an account, evicting the current owner.
func (h *AdminHandler) Reassign(c *gin.Context) {
	if h.identities == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "identity service unavailable"))
		return
	}

	var req AdminReassignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "account_id and username are required"))
		return
	}

	entry, err := h.identities.Claim(c.Request.Context(), req.AccountID, req.Username, req.DisplayName, true)
	if err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrInvalidAccountID, Status: http.StatusBadRequest, Message: "invalid account id"},
			{Err: usecase.ErrInvalidUsername, Status: http.StatusBadRequest, Message: "invalid username"},
			{Err: usecase.ErrInvalidDisplayName, Status: http.StatusBadRequest, Message: "invalid display name"},
			{Err: repository.ErrVersionConflict, Status: http.StatusConflict, Message: "registry busy, retry"},
			{Err: repository.ErrUnavailable, Status: http.StatusServiceUnavailable, Message: "identity backend unavailable"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to reassign username")
		return
	}

	c.JSON(http.StatusOK, newIdentityPayload(*entry, h.identities.FriendCode(entry.AccountID)))
}

// Remove deletes an identity and purges every reference to it.
func (h *AdminHandler) Remove(c *gin.Context) {
	if h.identities == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "identity service unavailable"))
		return
	}

	var req AdminRemoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "query is required"))
		return
	}

	entry, err := h.identities.Remove(c.Request.Context(), req.Query, "admin")
	if err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrIdentityNotFound, Status: http.StatusNotFound, Message: "identity not found"},
			{Err: repository.ErrVersionConflict, Status: http.StatusConflict, Message: "registry busy, retry"},
			{Err: repository.ErrUnavailable, Status: http.StatusServiceUnavailable, Message: "identity backend unavailable"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to remove identity")
		return
	}

	c.JSON(http.StatusOK, newIdentityPayload(*entry, ""))
}
