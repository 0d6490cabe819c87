package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/deskwing/deskwing/internal/auth"
	"github.com/deskwing/deskwing/internal/pipeline"
)

type envelopeProcessor interface {
	Process(ctx context.Context, env pipeline.Envelope) (pipeline.Result, error)
}

// IngestHandler accepts inbound envelopes from channel adapters over HTTP,
// the synchronous alternative to the Kafka intake.
type IngestHandler struct {
	pipeline envelopeProcessor
	logger   *slog.Logger
}

// NewIngestHandler creates an IngestHandler.
func NewIngestHandler(log *slog.Logger, p envelopeProcessor) *IngestHandler {
	return &IngestHandler{
		pipeline: p,
		logger:   log.With(slog.String("handler", "ingest")),
	}
}

// Register registers the intake route.
func (h *IngestHandler) Register(e *echo.Echo) {
	e.POST("/messages", h.Submit)
}

// Submit runs one envelope through the pipeline and returns the outcome.
func (h *IngestHandler) Submit(c echo.Context) error {
	var env pipeline.Envelope
	if err := c.Bind(&env); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if env.ReceivedAt.IsZero() {
		env.ReceivedAt = time.Now().UTC()
	}

	// An adapter token pins the channel: a chat widget cannot submit
	// email envelopes.
	if adapter, ok, err := auth.AdapterFromContext(c); err != nil {
		return err
	} else if ok {
		if env.Channel == "" {
			env.Channel = adapter.Channel
		} else if env.Channel != adapter.Channel {
			return echo.NewHTTPError(http.StatusForbidden, "channel not allowed for this adapter")
		}
	}

	res, err := h.pipeline.Process(c.Request().Context(), env)
	if err != nil {
		var verr *pipeline.ValidationError
		if errors.As(err, &verr) {
			return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
		}
		h.logger.Error("envelope processing failed",
			slog.String("channel", env.Channel),
			slog.String("sender", env.SenderIdentifier),
			slog.Any("error", err))
		// The result still carries the channel apology; the adapter
		// delivers it while the envelope waits on the dead-letter topic.
		return c.JSON(http.StatusAccepted, res)
	}
	return c.JSON(http.StatusOK, res)
}

// trimmedParam returns the named path parameter without padding.
func trimmedParam(c echo.Context, name string) string {
	return strings.TrimSpace(c.Param(name))
}
