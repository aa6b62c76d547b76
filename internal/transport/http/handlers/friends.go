package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Redactedcraft/Redactedcraft-sub000/internal/repository"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/transport/http/middleware"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/usecase"
)

// FriendsHandler exposes the social graph: friend list, requests, and blocks.
type FriendsHandler struct {
	identities *usecase.IdentityService
}

// NewFriendsHandler constructs a friends handler.
func NewFriendsHandler(identities *usecase.IdentityService) *FriendsHandler {
	return &FriendsHandler{identities: identities}
}

func (h *FriendsHandler) caller(c *gin.Context) (string, bool) {
	if h.identities == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "identity service unavailable"))
		return "", false
	}
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok || accountID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return "", false
	}
	return accountID, true
}

func graphErrorCases() []ErrorCase {
	return []ErrorCase{
		{Err: usecase.ErrIdentityNotFound, Status: http.StatusNotFound, Message: "identity not found"},
		{Err: usecase.ErrSelfAction, Status: http.StatusBadRequest, Message: "cannot target own account"},
		{Err: usecase.ErrBlocked, Status: http.StatusForbidden, Message: "blocked"},
		{Err: usecase.ErrFriendLimit, Status: http.StatusConflict, Message: "friend list full"},
		{Err: usecase.ErrInboxLimit, Status: http.StatusConflict, Message: "request inbox full"},
		{Err: usecase.ErrBlockLimit, Status: http.StatusConflict, Message: "block list full"},
		{Err: usecase.ErrNoPendingRequest, Status: http.StatusNotFound, Message: "no pending request from that account"},
		{Err: repository.ErrVersionConflict, Status: http.StatusConflict, Message: "registry busy, retry"},
		{Err: repository.ErrUnavailable, Status: http.StatusServiceUnavailable, Message: "identity backend unavailable"},
	}
}

// List returns the caller's friends, pending requests, and blocks.
func (h *FriendsHandler) List(c *gin.Context) {
	accountID, ok := h.caller(c)
	if !ok {
		return
	}

	view, err := h.identities.Friends(c.Request.Context(), accountID)
	if err != nil {
		RespondWithMappedError(c, err, graphErrorCases(), http.StatusInternalServerError, "failed to load friends")
		return
	}

	resp := FriendListResponse{
		Friends: make([]IdentityPayload, 0, len(view.Friends)),
		Inbox:   make([]FriendRequestPayload, 0, len(view.Inbox)),
		Blocks:  view.Blocks,
	}
	if resp.Blocks == nil {
		resp.Blocks = []string{}
	}
	for _, entry := range view.Friends {
		resp.Friends = append(resp.Friends, newIdentityPayload(entry, h.identities.FriendCode(entry.AccountID)))
	}
	for _, req := range view.Inbox {
		resp.Inbox = append(resp.Inbox, FriendRequestPayload{FromID: req.FromID, SentAt: req.SentAt})
	}

	c.JSON(http.StatusOK, resp)
}

// Add sends a friend request, or accepts a reverse-pending one.
func (h *FriendsHandler) Add(c *gin.Context) {
	accountID, ok := h.caller(c)
	if !ok {
		return
	}

	var req FriendAddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "query is required"))
		return
	}

	if err := h.identities.AddFriendByQuery(c.Request.Context(), accountID, req.Query); err != nil {
		RespondWithMappedError(c, err, graphErrorCases(), http.StatusInternalServerError, "failed to add friend")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "ok"})
}

// Remove takes the target off the caller's friend list only.
func (h *FriendsHandler) Remove(c *gin.Context) {
	accountID, ok := h.caller(c)
	if !ok {
		return
	}

	var req FriendRemoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "account_id is required"))
		return
	}

	if err := h.identities.RemoveFriend(c.Request.Context(), accountID, req.AccountID); err != nil {
		RespondWithMappedError(c, err, graphErrorCases(), http.StatusInternalServerError, "failed to remove friend")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "ok"})
}

// Respond accepts, declines, or blocks a pending friend request.
func (h *FriendsHandler) Respond(c *gin.Context) {
	accountID, ok := h.caller(c)
	if !ok {
		return
	}

	var req FriendRespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "requester_id is required"))
		return
	}

	if err := h.identities.RespondToRequest(c.Request.Context(), accountID, req.RequesterID, req.Accept, req.Block); err != nil {
		RespondWithMappedError(c, err, graphErrorCases(), http.StatusInternalServerError, "failed to respond to request")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "ok"})
}

// Block adds a block edge, severing any friendship or pending requests.
func (h *FriendsHandler) Block(c *gin.Context) {
	accountID, ok := h.caller(c)
	if !ok {
		return
	}

	var req FriendBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "query is required"))
		return
	}

	if err := h.identities.Block(c.Request.Context(), accountID, req.Query); err != nil {
		RespondWithMappedError(c, err, graphErrorCases(), http.StatusInternalServerError, "failed to block account")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "ok"})
}

// Unblock removes a block edge only.
func (h *FriendsHandler) Unblock(c *gin.Context) {
	accountID, ok := h.caller(c)
	if !ok {
		return
	}

	var req FriendUnblockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "account_id is required"))
		return
	}

	if err := h.identities.Unblock(c.Request.Context(), accountID, req.AccountID); err != nil {
		RespondWithMappedError(c, err, graphErrorCases(), http.StatusInternalServerError, "failed to unblock account")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "ok"})
}
