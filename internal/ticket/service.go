package ticket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/deskwing/deskwing/internal/db"
)

const ticketColumns = `
	id, conversation_id, customer_id, source_channel, category,
	priority, status, resolution_notes, created_at`

// Service creates and reads tickets. Creation is idempotent per
// conversation: the conversation_id unique constraint guarantees a second
// inbound message never opens a second ticket.
type Service struct {
	db     dbpkg.DBTX
	logger *slog.Logger
}

// NewService creates a ticket service.
func NewService(log *slog.Logger, db dbpkg.DBTX) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		db:     db,
		logger: log.With(slog.String("service", "ticket")),
	}
}

// EnsureForConversation returns the conversation's ticket, creating it when
// absent. Safe to call on every inbound message.
func (s *Service) EnsureForConversation(ctx context.Context, input CreateInput) (Ticket, error) {
	pgConversationID, err := dbpkg.ParseUUID(input.ConversationID)
	if err != nil {
		return Ticket{}, fmt.Errorf("invalid conversation id: %w", err)
	}
	pgCustomerID, err := dbpkg.ParseUUID(input.CustomerID)
	if err != nil {
		return Ticket{}, fmt.Errorf("invalid customer id: %w", err)
	}
	category := input.Category
	if category == "" {
		category = CategoryGeneral
	}
	priority := input.Priority
	if priority == "" {
		priority = PriorityMedium
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO tickets (conversation_id, customer_id, source_channel, category, priority, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (conversation_id) DO NOTHING
		RETURNING`+ticketColumns+`
	`, pgConversationID, pgCustomerID, input.SourceChannel, category, priority, StatusOpen)
	created, err := scanTicket(row)
	if err == nil {
		s.logger.Info("ticket created",
			slog.String("ticket_id", created.ID),
			slog.String("conversation_id", input.ConversationID),
			slog.String("category", category),
			slog.String("priority", priority),
		)
		return created, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Ticket{}, dbpkg.ClassifyError(err)
	}

	// Conflict path: ticket already exists for this conversation.
	return s.GetByConversation(ctx, input.ConversationID)
}

// GetByConversation returns the ticket owning a conversation.
func (s *Service) GetByConversation(ctx context.Context, conversationID string) (Ticket, error) {
	pgConversationID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return Ticket{}, fmt.Errorf("invalid conversation id: %w", err)
	}
	row := s.db.QueryRow(ctx, `
		SELECT`+ticketColumns+`
		FROM tickets
		WHERE conversation_id = $1
	`, pgConversationID)
	t, err := scanTicket(row)
	if err != nil {
		return Ticket{}, dbpkg.ClassifyError(err)
	}
	return t, nil
}

// GetByID returns a ticket by id.
func (s *Service) GetByID(ctx context.Context, id string) (Ticket, error) {
	pgID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return Ticket{}, fmt.Errorf("invalid ticket id: %w", err)
	}
	row := s.db.QueryRow(ctx, `
		SELECT`+ticketColumns+`
		FROM tickets
		WHERE id = $1
	`, pgID)
	t, err := scanTicket(row)
	if err != nil {
		return Ticket{}, dbpkg.ClassifyError(err)
	}
	return t, nil
}

// SetStatus updates the ticket status and optional resolution notes.
func (s *Service) SetStatus(ctx context.Context, ticketID, status, notes string) error {
	pgID, err := dbpkg.ParseUUID(ticketID)
	if err != nil {
		return fmt.Errorf("invalid ticket id: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE tickets
		SET status = $2,
		    resolution_notes = COALESCE($3, resolution_notes)
		WHERE id = $1
	`, pgID, status, dbpkg.ToText(notes))
	if err != nil {
		return dbpkg.ClassifyError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ticket not found: %s", ticketID)
	}
	return nil
}

func scanTicket(row pgx.Row) (Ticket, error) {
	var (
		id              pgtype.UUID
		conversationID  pgtype.UUID
		customerID      pgtype.UUID
		sourceChannel   string
		category        string
		priority        string
		status          string
		resolutionNotes pgtype.Text
		createdAt       pgtype.Timestamptz
	)
	if err := row.Scan(
		&id, &conversationID, &customerID, &sourceChannel, &category,
		&priority, &status, &resolutionNotes, &createdAt,
	); err != nil {
		return Ticket{}, err
	}
	return Ticket{
		ID:              id.String(),
		ConversationID:  conversationID.String(),
		CustomerID:      customerID.String(),
		SourceChannel:   sourceChannel,
		Category:        category,
		Priority:        priority,
		Status:          status,
		ResolutionNotes: dbpkg.TextToString(resolutionNotes),
		CreatedAt:       createdAt.Time,
	}, nil
}
