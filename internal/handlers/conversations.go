package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/deskwing/deskwing/internal/conversation"
	"github.com/deskwing/deskwing/internal/message"
)

type conversationReader interface {
	GetByID(ctx context.Context, id string) (conversation.Conversation, error)
}

type transcriptReader interface {
	ListByConversation(ctx context.Context, conversationID string) ([]message.Message, error)
}

// ConversationHandler serves conversation state and transcripts to
// operators and the human-handoff console.
type ConversationHandler struct {
	conversations conversationReader
	messages      transcriptReader
	logger        *slog.Logger
}

// NewConversationHandler creates a ConversationHandler.
func NewConversationHandler(log *slog.Logger, conversations conversationReader, messages transcriptReader) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		messages:      messages,
		logger:        log.With(slog.String("handler", "conversations")),
	}
}

// Register registers the conversation routes.
func (h *ConversationHandler) Register(e *echo.Echo) {
	group := e.Group("/conversations/:conversation_id")
	group.GET("", h.Get)
	group.GET("/messages", h.Transcript)
}

// Get returns one conversation.
func (h *ConversationHandler) Get(c echo.Context) error {
	id := trimmedParam(c, "conversation_id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "conversation id is required")
	}
	conv, err := h.conversations.GetByID(c.Request().Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		h.logger.Error("conversation lookup failed", slog.String("conversation_id", id), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "conversation lookup failed")
	}
	return c.JSON(http.StatusOK, conv)
}

// Transcript returns the full message history in arrival order.
func (h *ConversationHandler) Transcript(c echo.Context) error {
	id := trimmedParam(c, "conversation_id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "conversation id is required")
	}
	msgs, err := h.messages.ListByConversation(c.Request().Context(), id)
	if err != nil {
		h.logger.Error("transcript fetch failed", slog.String("conversation_id", id), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "transcript fetch failed")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"conversation_id": id,
		"messages":        msgs,
	})
}
