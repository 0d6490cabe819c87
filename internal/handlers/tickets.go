package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/deskwing/deskwing/internal/ticket"
)

type ticketReader interface {
	GetByID(ctx context.Context, id string) (ticket.Ticket, error)
	GetByConversation(ctx context.Context, conversationID string) (ticket.Ticket, error)
	SetStatus(ctx context.Context, ticketID, status, notes string) error
}

// TicketHandler serves ticket lookups and manual status updates from the
// support console.
type TicketHandler struct {
	tickets ticketReader
	logger  *slog.Logger
}

// NewTicketHandler creates a TicketHandler.
func NewTicketHandler(log *slog.Logger, tickets ticketReader) *TicketHandler {
	return &TicketHandler{
		tickets: tickets,
		logger:  log.With(slog.String("handler", "tickets")),
	}
}

// Register registers the ticket routes.
func (h *TicketHandler) Register(e *echo.Echo) {
	e.GET("/tickets/:ticket_id", h.Get)
	e.PATCH("/tickets/:ticket_id/status", h.UpdateStatus)
	e.GET("/conversations/:conversation_id/ticket", h.GetByConversation)
}

// Get returns one ticket by id.
func (h *TicketHandler) Get(c echo.Context) error {
	id := trimmedParam(c, "ticket_id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "ticket id is required")
	}
	t, err := h.tickets.GetByID(c.Request().Context(), id)
	if err != nil {
		return h.lookupError(c, err, id)
	}
	return c.JSON(http.StatusOK, t)
}

// GetByConversation returns the ticket attached to a conversation.
func (h *TicketHandler) GetByConversation(c echo.Context) error {
	id := trimmedParam(c, "conversation_id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "conversation id is required")
	}
	t, err := h.tickets.GetByConversation(c.Request().Context(), id)
	if err != nil {
		return h.lookupError(c, err, id)
	}
	return c.JSON(http.StatusOK, t)
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

// UpdateStatus applies a manual status transition, e.g. an operator
// resolving a ticket after a handoff.
func (h *TicketHandler) UpdateStatus(c echo.Context) error {
	id := trimmedParam(c, "ticket_id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "ticket id is required")
	}
	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	switch req.Status {
	case ticket.StatusOpen, ticket.StatusResolved, ticket.StatusEscalated:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid ticket status")
	}
	if err := h.tickets.SetStatus(c.Request().Context(), id, req.Status, req.Notes); err != nil {
		return h.lookupError(c, err, id)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *TicketHandler) lookupError(c echo.Context, err error, id string) error {
	if strings.Contains(err.Error(), "not found") {
		return echo.NewHTTPError(http.StatusNotFound, "ticket not found")
	}
	h.logger.Error("ticket operation failed", slog.String("id", id), slog.Any("error", err))
	return echo.NewHTTPError(http.StatusInternalServerError, "ticket operation failed")
}
