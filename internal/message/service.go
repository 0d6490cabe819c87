package message

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/deskwing/deskwing/internal/db"
)

const messageColumns = `
	id, conversation_id, channel, direction, role, content,
	channel_message_id, delivery_status, created_at`

// Service writes and reads conversation messages.
type Service struct {
	db     dbpkg.DBTX
	logger *slog.Logger
}

// NewService creates a message service.
func NewService(log *slog.Logger, db dbpkg.DBTX) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		db:     db,
		logger: log.With(slog.String("service", "message")),
	}
}

// Append writes a single message to the conversation transcript.
func (s *Service) Append(ctx context.Context, input AppendInput) (Message, error) {
	pgConversationID, err := dbpkg.ParseUUID(input.ConversationID)
	if err != nil {
		return Message{}, fmt.Errorf("invalid conversation id: %w", err)
	}
	status := input.DeliveryStatus
	if status == "" {
		status = DeliveryPending
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, channel, direction, role, content, channel_message_id, delivery_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING`+messageColumns+`
	`, pgConversationID, input.Channel, input.Direction, input.Role, input.Content,
		dbpkg.ToText(input.ChannelMessageID), status)
	msg, err := scanMessage(row)
	if err != nil {
		return Message{}, dbpkg.ClassifyError(err)
	}
	return msg, nil
}

// ListByConversation returns the full transcript ordered by creation time.
func (s *Service) ListByConversation(ctx context.Context, conversationID string) ([]Message, error) {
	pgConversationID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation id: %w", err)
	}
	rows, err := s.db.Query(ctx, `
		SELECT`+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`, pgConversationID)
	if err != nil {
		return nil, dbpkg.ClassifyError(err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, dbpkg.ClassifyError(err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, dbpkg.ClassifyError(err)
	}
	return messages, nil
}

// MarkDelivery transitions a message's delivery status.
func (s *Service) MarkDelivery(ctx context.Context, messageID, status string) error {
	switch status {
	case DeliveryPending, DeliverySent, DeliveryDelivered, DeliveryFailed:
	default:
		return fmt.Errorf("invalid delivery status: %q", status)
	}
	pgID, err := dbpkg.ParseUUID(messageID)
	if err != nil {
		return fmt.Errorf("invalid message id: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE messages SET delivery_status = $2 WHERE id = $1
	`, pgID, status)
	if err != nil {
		return dbpkg.ClassifyError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message not found: %s", messageID)
	}
	return nil
}

func scanMessage(row pgx.Row) (Message, error) {
	var (
		id               pgtype.UUID
		conversationID   pgtype.UUID
		channel          string
		direction        string
		role             string
		content          string
		channelMessageID pgtype.Text
		deliveryStatus   string
		createdAt        pgtype.Timestamptz
	)
	if err := row.Scan(
		&id, &conversationID, &channel, &direction, &role, &content,
		&channelMessageID, &deliveryStatus, &createdAt,
	); err != nil {
		return Message{}, err
	}
	return Message{
		ID:               id.String(),
		ConversationID:   conversationID.String(),
		Channel:          channel,
		Direction:        direction,
		Role:             role,
		Content:          content,
		ChannelMessageID: dbpkg.TextToString(channelMessageID),
		DeliveryStatus:   deliveryStatus,
		CreatedAt:        createdAt.Time,
	}, nil
}
