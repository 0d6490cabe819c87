package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/deskwing/deskwing/internal/db"
)

const conversationColumns = `
	id, customer_id, channel, status, sentiment_avg,
	turn_count, gap_count, escalation_reason, started_at, ended_at`

// Service finds, opens, and mutates conversations. The running sentiment
// average is an arithmetic mean folded in per turn, so it depends only on
// arrival order.
type Service struct {
	db     dbpkg.DBTX
	window time.Duration
	logger *slog.Logger
}

// NewService creates a conversation service. window is the rolling period
// inside which an active conversation keeps collecting inbound messages.
func NewService(log *slog.Logger, db dbpkg.DBTX, window time.Duration) *Service {
	if log == nil {
		log = slog.Default()
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Service{
		db:     db,
		window: window,
		logger: log.With(slog.String("service", "conversation")),
	}
}

// GetOrOpen returns the customer's most recent active conversation started
// inside the window, opening a new one when none qualifies.
func (s *Service) GetOrOpen(ctx context.Context, customerID, channel string) (Conversation, error) {
	pgCustomerID, err := dbpkg.ParseUUID(customerID)
	if err != nil {
		return Conversation{}, fmt.Errorf("invalid customer id: %w", err)
	}

	row := s.db.QueryRow(ctx, `
		SELECT`+conversationColumns+`
		FROM conversations
		WHERE customer_id = $1 AND status = $2 AND started_at > $3
		ORDER BY started_at DESC
		LIMIT 1
	`, pgCustomerID, StatusActive, pgtype.Timestamptz{Time: time.Now().Add(-s.window), Valid: true})
	conv, err := scanConversation(row)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, dbpkg.ClassifyError(err)
	}

	row = s.db.QueryRow(ctx, `
		INSERT INTO conversations (customer_id, channel, status)
		VALUES ($1, $2, $3)
		RETURNING`+conversationColumns+`
	`, pgCustomerID, channel, StatusActive)
	conv, err = scanConversation(row)
	if err != nil {
		return Conversation{}, dbpkg.ClassifyError(err)
	}
	s.logger.Info("conversation opened",
		slog.String("conversation_id", conv.ID),
		slog.String("customer_id", customerID),
		slog.String("channel", channel),
	)
	return conv, nil
}

// GetByID returns a conversation by id.
func (s *Service) GetByID(ctx context.Context, id string) (Conversation, error) {
	pgID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return Conversation{}, err
	}
	row := s.db.QueryRow(ctx, `
		SELECT`+conversationColumns+`
		FROM conversations
		WHERE id = $1
	`, pgID)
	conv, err := scanConversation(row)
	if err != nil {
		return Conversation{}, dbpkg.ClassifyError(err)
	}
	return conv, nil
}

// RecordTurn increments the turn counter and folds the sentiment sample into
// the running mean. Recording against a terminal conversation fails with
// ErrConversationClosed.
func (s *Service) RecordTurn(ctx context.Context, conversationID string, sentimentSample float64) (Conversation, error) {
	pgID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return Conversation{}, fmt.Errorf("invalid conversation id: %w", err)
	}
	row := s.db.QueryRow(ctx, `
		UPDATE conversations
		SET turn_count = turn_count + 1,
		    sentiment_avg = sentiment_avg + ($2 - sentiment_avg) / (turn_count + 1)
		WHERE id = $1 AND status = $3
		RETURNING`+conversationColumns+`
	`, pgID, sentimentSample, StatusActive)
	conv, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, s.closedOrMissing(ctx, pgID, conversationID)
	}
	if err != nil {
		return Conversation{}, dbpkg.ClassifyError(err)
	}
	return conv, nil
}

// RecordGap increments the consecutive empty-knowledge-search counter and
// returns the new value.
func (s *Service) RecordGap(ctx context.Context, conversationID string) (int, error) {
	return s.setGap(ctx, conversationID, `gap_count + 1`)
}

// ResetGap clears the consecutive empty-search counter after a successful
// knowledge match.
func (s *Service) ResetGap(ctx context.Context, conversationID string) error {
	_, err := s.setGap(ctx, conversationID, `0`)
	return err
}

func (s *Service) setGap(ctx context.Context, conversationID, expr string) (int, error) {
	pgID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return 0, fmt.Errorf("invalid conversation id: %w", err)
	}
	var gapCount int32
	row := s.db.QueryRow(ctx, `
		UPDATE conversations
		SET gap_count = `+expr+`
		WHERE id = $1 AND status = $2
		RETURNING gap_count
	`, pgID, StatusActive)
	if err := row.Scan(&gapCount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, s.closedOrMissing(ctx, pgID, conversationID)
		}
		return 0, dbpkg.ClassifyError(err)
	}
	return int(gapCount), nil
}

// Close transitions an active conversation to a terminal status. Closing an
// already-terminal conversation fails with ErrConversationClosed; there is no
// transition out of a terminal state.
func (s *Service) Close(ctx context.Context, conversationID, status, escalationReason string) (Conversation, error) {
	if status != StatusResolved && status != StatusEscalated {
		return Conversation{}, fmt.Errorf("invalid terminal status: %q", status)
	}
	pgID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return Conversation{}, fmt.Errorf("invalid conversation id: %w", err)
	}
	row := s.db.QueryRow(ctx, `
		UPDATE conversations
		SET status = $2, escalation_reason = $3, ended_at = now()
		WHERE id = $1 AND status = $4
		RETURNING`+conversationColumns+`
	`, pgID, status, dbpkg.ToText(escalationReason), StatusActive)
	conv, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, s.closedOrMissing(ctx, pgID, conversationID)
	}
	if err != nil {
		return Conversation{}, dbpkg.ClassifyError(err)
	}
	s.logger.Info("conversation closed",
		slog.String("conversation_id", conv.ID),
		slog.String("status", status),
		slog.String("reason", escalationReason),
	)
	return conv, nil
}

// closedOrMissing distinguishes a terminal conversation from an unknown id.
func (s *Service) closedOrMissing(ctx context.Context, pgID pgtype.UUID, conversationID string) error {
	var status string
	row := s.db.QueryRow(ctx, `SELECT status FROM conversations WHERE id = $1`, pgID)
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("conversation not found: %s", conversationID)
		}
		return dbpkg.ClassifyError(err)
	}
	return fmt.Errorf("conversation %s is %s: %w", conversationID, status, ErrConversationClosed)
}

func scanConversation(row pgx.Row) (Conversation, error) {
	var (
		id               pgtype.UUID
		customerID       pgtype.UUID
		channel          string
		status           string
		sentimentAvg     float64
		turnCount        int32
		gapCount         int32
		escalationReason pgtype.Text
		startedAt        pgtype.Timestamptz
		endedAt          pgtype.Timestamptz
	)
	if err := row.Scan(
		&id, &customerID, &channel, &status, &sentimentAvg,
		&turnCount, &gapCount, &escalationReason, &startedAt, &endedAt,
	); err != nil {
		return Conversation{}, err
	}
	conv := Conversation{
		ID:               id.String(),
		CustomerID:       customerID.String(),
		Channel:          channel,
		Status:           status,
		SentimentAvg:     sentimentAvg,
		TurnCount:        int(turnCount),
		GapCount:         int(gapCount),
		EscalationReason: dbpkg.TextToString(escalationReason),
		StartedAt:        startedAt.Time,
	}
	if endedAt.Valid {
		ended := endedAt.Time
		conv.EndedAt = &ended
	}
	return conv, nil
}
