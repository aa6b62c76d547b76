package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Redactedcraft/Redactedcraft-sub000/internal/core/domain"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/transport/http/middleware"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/usecase"
)

// PresenceHandler exposes the in-memory presence directory and world invites.
type PresenceHandler struct {
	presence   *usecase.PresenceService
	identities *usecase.IdentityService
}

// NewPresenceHandler constructs a presence handler. identities may be nil;
// entries then carry the ticket display name only.
func NewPresenceHandler(presence *usecase.PresenceService, identities *usecase.IdentityService) *PresenceHandler {
	return &PresenceHandler{presence: presence, identities: identities}
}

func (h *PresenceHandler) caller(c *gin.Context) (string, bool) {
	if h.presence == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "presence service unavailable"))
		return "", false
	}
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok || accountID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return "", false
	}
	return accountID, true
}

// Upsert publishes the caller's presence; hosting=false withdraws it.
// Entries are labeled with the registry identity when one exists, falling
// back to the ticket display name.
func (h *PresenceHandler) Upsert(c *gin.Context) {
	accountID, ok := h.caller(c)
	if !ok {
		return
	}

	var req PresenceUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid presence payload"))
		return
	}

	input := usecase.UpsertInput{
		AccountID:  accountID,
		Status:     req.Status,
		Hosting:    req.Hosting,
		WorldName:  req.WorldName,
		GameMode:   req.GameMode,
		JoinTarget: req.JoinTarget,
	}

	if claims, ok := middleware.GetTicketClaims(c); ok {
		input.DisplayName = claims.DisplayName
	}
	if h.identities != nil {
		if entry, err := h.identities.Me(c.Request.Context(), accountID); err == nil {
			input.DisplayName = entry.DisplayName
			input.Username = entry.Username
		}
	}

	entry, err := h.presence.Upsert(input)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid presence payload"))
		return
	}

	if entry == nil {
		c.JSON(http.StatusOK, MessageResponse{Message: "offline"})
		return
	}
	c.JSON(http.StatusOK, newPresencePayload(*entry))
}

// Query returns live entries for the requested ids plus the caller's pending
// invites.
func (h *PresenceHandler) Query(c *gin.Context) {
	accountID, ok := h.caller(c)
	if !ok {
		return
	}

	var req PresenceQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "account_ids is required"))
		return
	}

	resp := PresenceQueryResponse{
		Entries: make([]PresencePayload, 0, len(req.AccountIDs)),
		Invites: []InvitePayload{},
	}
	for _, entry := range h.presence.Query(req.AccountIDs) {
		resp.Entries = append(resp.Entries, newPresencePayload(entry))
	}
	for _, invite := range h.presence.Invites(accountID) {
		resp.Invites = append(resp.Invites, newInvitePayload(invite))
	}

	c.JSON(http.StatusOK, resp)
}

// SendInvite invites another account to the caller's world, replacing any
// prior invite for the pair.
func (h *PresenceHandler) SendInvite(c *gin.Context) {
	accountID, ok := h.caller(c)
	if !ok {
		return
	}

	var req InviteSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "target_id is required"))
		return
	}

	invite, err := h.presence.SendInvite(accountID, req.TargetID, req.WorldName)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid invite"))
		return
	}

	c.JSON(http.StatusOK, newInvitePayload(*invite))
}

// RespondInvite accepts or rejects a pending invite addressed to the caller.
func (h *PresenceHandler) RespondInvite(c *gin.Context) {
	accountID, ok := h.caller(c)
	if !ok {
		return
	}

	var req InviteRespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "sender_id and response are required"))
		return
	}

	status, ok := domain.ParseInviteResponse(req.Response)
	if !ok {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "response must be 'accepted' or 'rejected'"))
		return
	}

	invite, err := h.presence.RespondToInvite(accountID, req.SenderID, status)
	if err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrInviteNotFound, Status: http.StatusNotFound, Message: "invite not found"},
			{Err: usecase.ErrInvalidInvite, Status: http.StatusBadRequest, Message: "invalid invite"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to respond to invite")
		return
	}

	c.JSON(http.StatusOK, newInvitePayload(*invite))
}
