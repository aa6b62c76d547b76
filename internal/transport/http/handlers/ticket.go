package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Redactedcraft/Redactedcraft-sub000/internal/usecase"
)

// TicketHandler exposes session ticket issuance and peer validation.
type TicketHandler struct {
	tickets *usecase.TicketService
}

// NewTicketHandler constructs a ticket handler.
func NewTicketHandler(tickets *usecase.TicketService) *TicketHandler {
	return &TicketHandler{tickets: tickets}
}

// Issue evaluates the allowlist policy and, when approved, signs a ticket.
// A policy denial is a successful response with approved=false, not an HTTP
// error.
func (h *TicketHandler) Issue(c *gin.Context) {
	if h.tickets == nil || !h.tickets.Enabled() {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "ticketing is not configured"))
		return
	}

	var req TicketIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "channel is required"))
		return
	}

	result, err := h.tickets.Issue(c.Request.Context(), usecase.IssueInput{
		Channel:       req.Channel,
		ClientVersion: req.ClientVersion,
		Platform:      req.Platform,
		AccountID:     req.AccountID,
		DisplayName:   req.DisplayName,
		Hash:          req.ContentHash,
		Proof:         req.ProofToken,
		DevKey:        req.DevKey,
		SandboxID:     req.SandboxID,
		DeploymentID:  req.DeploymentID,
	})
	if err != nil {
		if errors.Is(err, usecase.ErrTicketingDisabled) {
			c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "ticketing is not configured"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to issue ticket"))
		return
	}

	resp := TicketIssueResponse{
		Approved: result.Approved,
		Reason:   result.Reason,
	}
	if result.Approved {
		resp.Ticket = result.Ticket
		expires := result.ExpiresAt
		resp.ExpiresAt = &expires
	}

	c.JSON(http.StatusOK, resp)
}

// Validate checks a peer's ticket for host-to-host admission. Failures are
// reported with a short reason only.
func (h *TicketHandler) Validate(c *gin.Context) {
	if h.tickets == nil || !h.tickets.Enabled() {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "ticketing is not configured"))
		return
	}

	var req TicketValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "ticket is required"))
		return
	}

	claims, err := h.tickets.Validate(req.Ticket, req.RequiredChannel)
	if err != nil {
		reason := "ticket invalid"
		if errors.Is(err, usecase.ErrWrongChannel) {
			reason = "wrong channel"
		}
		c.JSON(http.StatusOK, TicketValidateResponse{Valid: false, Reason: reason})
		return
	}

	c.JSON(http.StatusOK, TicketValidateResponse{
		Valid:       true,
		AccountID:   claims.AccountID,
		DisplayName: claims.DisplayName,
		Channel:     claims.Channel,
	})
}
