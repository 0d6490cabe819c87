package customer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/deskwing/deskwing/internal/db"
)

// Service looks up and creates customers keyed by channel identifiers.
type Service struct {
	db     dbpkg.DBTX
	logger *slog.Logger
}

// NewService creates a customer service.
func NewService(log *slog.Logger, db dbpkg.DBTX) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		db:     db,
		logger: log.With(slog.String("service", "customer")),
	}
}

// ResolveOrCreate maps an inbound identifier to its owning customer,
// creating the customer and identifier when neither exists. When the primary
// identifier is unknown but a linked identifier resolves to an existing
// customer, the primary identifier is attached to that customer instead of
// creating a duplicate. The insert path races with concurrent channels for
// the same new customer; a unique violation is resolved by re-reading.
func (s *Service) ResolveOrCreate(ctx context.Context, input ResolveInput) (Customer, error) {
	ident, err := normalizeIdentifier(input.Identifier)
	if err != nil {
		return Customer{}, err
	}

	found, ok, err := s.lookupByIdentifier(ctx, ident)
	if err != nil {
		return Customer{}, err
	}
	if ok {
		return found, nil
	}

	// Linking evidence: a secondary identifier already owned by a customer
	// means the primary identifier belongs to the same person.
	for _, linked := range input.Linked {
		normalized, err := normalizeIdentifier(linked)
		if err != nil {
			continue
		}
		owner, ok, err := s.lookupByIdentifier(ctx, normalized)
		if err != nil {
			return Customer{}, err
		}
		if !ok {
			continue
		}
		if err := s.attachIdentifier(ctx, owner.ID, ident); err != nil {
			return Customer{}, err
		}
		s.logger.Info("linked identifier to existing customer",
			slog.String("customer_id", owner.ID),
			slog.String("identifier_type", ident.Type),
		)
		return owner, nil
	}

	created, err := s.createWithIdentifier(ctx, ident, input)
	if err == nil {
		return created, nil
	}
	if !dbpkg.IsUniqueViolation(err) {
		return Customer{}, dbpkg.ClassifyError(err)
	}

	// Lost the create race: another channel inserted first. Re-read and
	// treat as resolve.
	found, ok, err = s.lookupByIdentifier(ctx, ident)
	if err != nil {
		return Customer{}, err
	}
	if !ok {
		return Customer{}, fmt.Errorf("identifier %s/%s: conflict but no owner found", ident.Type, ident.Value)
	}
	return found, nil
}

// GetByID returns a customer by id.
func (s *Service) GetByID(ctx context.Context, id string) (Customer, error) {
	pgID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return Customer{}, err
	}
	row := s.db.QueryRow(ctx, `
		SELECT id, email, phone, display_name, created_at
		FROM customers
		WHERE id = $1
	`, pgID)
	c, err := scanCustomer(row)
	if err != nil {
		return Customer{}, dbpkg.ClassifyError(err)
	}
	return c, nil
}

func (s *Service) lookupByIdentifier(ctx context.Context, ident Identifier) (Customer, bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT c.id, c.email, c.phone, c.display_name, c.created_at
		FROM customer_identifiers ci
		JOIN customers c ON c.id = ci.customer_id
		WHERE ci.identifier_type = $1 AND ci.identifier_value = $2
	`, ident.Type, ident.Value)
	found, err := scanCustomer(row)
	if err == nil {
		return found, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, false, dbpkg.ClassifyError(err)
	}

	// An email identifier may predate its identifier row when the customer
	// was created with the address directly.
	if ident.Type != IdentifierEmail && ident.Type != IdentifierPhone {
		return Customer{}, false, nil
	}
	column := "email"
	if ident.Type == IdentifierPhone {
		column = "phone"
	}
	row = s.db.QueryRow(ctx, `
		SELECT id, email, phone, display_name, created_at
		FROM customers
		WHERE `+column+` = $1
	`, ident.Value)
	found, err = scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, false, nil
	}
	if err != nil {
		return Customer{}, false, dbpkg.ClassifyError(err)
	}
	if err := s.attachIdentifier(ctx, found.ID, ident); err != nil {
		return Customer{}, false, err
	}
	return found, true, nil
}

func (s *Service) attachIdentifier(ctx context.Context, customerID string, ident Identifier) error {
	pgID, err := dbpkg.ParseUUID(customerID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO customer_identifiers (customer_id, identifier_type, identifier_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (identifier_type, identifier_value) DO NOTHING
	`, pgID, ident.Type, ident.Value)
	if err != nil {
		return dbpkg.ClassifyError(err)
	}
	return nil
}

func (s *Service) createWithIdentifier(ctx context.Context, ident Identifier, input ResolveInput) (Customer, error) {
	email := pgtype.Text{}
	phone := pgtype.Text{}
	switch ident.Type {
	case IdentifierEmail:
		email = dbpkg.ToText(ident.Value)
	case IdentifierPhone:
		phone = dbpkg.ToText(ident.Value)
	}
	for _, linked := range input.Linked {
		normalized, err := normalizeIdentifier(linked)
		if err != nil {
			continue
		}
		if normalized.Type == IdentifierEmail && !email.Valid {
			email = dbpkg.ToText(normalized.Value)
		}
		if normalized.Type == IdentifierPhone && !phone.Valid {
			phone = dbpkg.ToText(normalized.Value)
		}
	}

	row := s.db.QueryRow(ctx, `
		WITH new_customer AS (
			INSERT INTO customers (email, phone, display_name)
			VALUES ($1, $2, $3)
			RETURNING id, email, phone, display_name, created_at
		), new_identifier AS (
			INSERT INTO customer_identifiers (customer_id, identifier_type, identifier_value)
			SELECT id, $4, $5 FROM new_customer
		)
		SELECT id, email, phone, display_name, created_at FROM new_customer
	`, email, phone, dbpkg.ToText(input.DisplayName), ident.Type, ident.Value)
	created, err := scanCustomer(row)
	if err != nil {
		return Customer{}, err
	}

	// Record linked identifiers too so the next channel resolves directly.
	for _, linked := range input.Linked {
		normalized, err := normalizeIdentifier(linked)
		if err != nil || normalized == ident {
			continue
		}
		if err := s.attachIdentifier(ctx, created.ID, normalized); err != nil {
			s.logger.Warn("attach linked identifier failed",
				slog.String("customer_id", created.ID),
				slog.String("identifier_type", normalized.Type),
				slog.Any("error", err),
			)
		}
	}
	return created, nil
}

func scanCustomer(row pgx.Row) (Customer, error) {
	var (
		id          pgtype.UUID
		email       pgtype.Text
		phone       pgtype.Text
		displayName pgtype.Text
		createdAt   pgtype.Timestamptz
	)
	if err := row.Scan(&id, &email, &phone, &displayName, &createdAt); err != nil {
		return Customer{}, err
	}
	return Customer{
		ID:          id.String(),
		Email:       dbpkg.TextToString(email),
		Phone:       dbpkg.TextToString(phone),
		DisplayName: dbpkg.TextToString(displayName),
		CreatedAt:   createdAt.Time,
	}, nil
}

func normalizeIdentifier(ident Identifier) (Identifier, error) {
	identType := strings.ToLower(strings.TrimSpace(ident.Type))
	value := strings.TrimSpace(ident.Value)
	if identType == IdentifierEmail {
		value = strings.ToLower(value)
	}
	switch identType {
	case IdentifierEmail, IdentifierPhone, IdentifierChatHandle:
	default:
		return Identifier{}, fmt.Errorf("unknown identifier type: %q", ident.Type)
	}
	if value == "" {
		return Identifier{}, fmt.Errorf("identifier value is required")
	}
	return Identifier{Type: identType, Value: value}, nil
}
