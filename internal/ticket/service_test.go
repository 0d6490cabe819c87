package ticket

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/deskwing/deskwing/internal/db"
)

type fakeRow struct {
	scanFunc func(dest ...any) error
}

func (r *fakeRow) Scan(dest ...any) error {
	return r.scanFunc(dest...)
}

var noRow = &fakeRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}

type fakeDBTX struct {
	rows    []pgx.Row
	execTag pgconn.CommandTag
}

func (d *fakeDBTX) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return d.execTag, nil
}

func (d *fakeDBTX) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, nil
}

func (d *fakeDBTX) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if len(d.rows) == 0 {
		return noRow
	}
	row := d.rows[0]
	d.rows = d.rows[1:]
	return row
}

const (
	ticketID = "9d8c7b6a-5e4f-4a3b-8c2d-1e0f9a8b7001"
	convID   = "0b4a2e6c-4c1f-4d9e-8f3a-1a2b3c4d5001"
	custID   = "6f1e8a30-0a68-4f6b-9f6e-0b64e2a1c001"
)

func mustUUID(t *testing.T, id string) pgtype.UUID {
	t.Helper()
	parsed, err := dbpkg.ParseUUID(id)
	if err != nil {
		t.Fatalf("parse uuid %q: %v", id, err)
	}
	return parsed
}

func makeTicketRow(t *testing.T, category, priority string) *fakeRow {
	t.Helper()
	return &fakeRow{
		scanFunc: func(dest ...any) error {
			*dest[0].(*pgtype.UUID) = mustUUID(t, ticketID)
			*dest[1].(*pgtype.UUID) = mustUUID(t, convID)
			*dest[2].(*pgtype.UUID) = mustUUID(t, custID)
			*dest[3].(*string) = "email"
			*dest[4].(*string) = category
			*dest[5].(*string) = priority
			*dest[6].(*string) = StatusOpen
			*dest[7].(*pgtype.Text) = pgtype.Text{}
			*dest[8].(*pgtype.Timestamptz) = pgtype.Timestamptz{Time: time.Now(), Valid: true}
			return nil
		},
	}
}

func TestEnsureForConversationCreates(t *testing.T) {
	t.Parallel()

	db := &fakeDBTX{rows: []pgx.Row{makeTicketRow(t, CategoryBilling, PriorityHigh)}}
	svc := NewService(nil, db)

	tk, err := svc.EnsureForConversation(context.Background(), CreateInput{
		ConversationID: convID,
		CustomerID:     custID,
		SourceChannel:  "email",
		Category:       CategoryBilling,
		Priority:       PriorityHigh,
	})
	if err != nil {
		t.Fatalf("EnsureForConversation: %v", err)
	}
	if tk.ID != mustUUID(t, ticketID).String() {
		t.Errorf("id = %q", tk.ID)
	}
	if tk.Status != StatusOpen {
		t.Errorf("status = %q, want %q", tk.Status, StatusOpen)
	}
}

func TestEnsureForConversationExisting(t *testing.T) {
	t.Parallel()

	db := &fakeDBTX{rows: []pgx.Row{
		noRow, // insert hits the conversation_id conflict
		makeTicketRow(t, CategoryGeneral, PriorityMedium),
	}}
	svc := NewService(nil, db)

	tk, err := svc.EnsureForConversation(context.Background(), CreateInput{
		ConversationID: convID,
		CustomerID:     custID,
		SourceChannel:  "email",
	})
	if err != nil {
		t.Fatalf("EnsureForConversation: %v", err)
	}
	if tk.ID != mustUUID(t, ticketID).String() {
		t.Errorf("second call should return the existing ticket, got %q", tk.ID)
	}
}

func TestEnsureForConversationInvalidID(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, &fakeDBTX{})
	_, err := svc.EnsureForConversation(context.Background(), CreateInput{
		ConversationID: "not-a-uuid",
		CustomerID:     custID,
	})
	if err == nil || !strings.Contains(err.Error(), "invalid conversation id") {
		t.Fatalf("err = %v", err)
	}
}

func TestSetStatus(t *testing.T) {
	t.Parallel()

	db := &fakeDBTX{execTag: pgconn.NewCommandTag("UPDATE 1")}
	svc := NewService(nil, db)

	if err := svc.SetStatus(context.Background(), ticketID, StatusEscalated, ""); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
}

func TestSetStatusNotFound(t *testing.T) {
	t.Parallel()

	db := &fakeDBTX{execTag: pgconn.NewCommandTag("UPDATE 0")}
	svc := NewService(nil, db)

	err := svc.SetStatus(context.Background(), ticketID, StatusResolved, "done")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("err = %v", err)
	}
}
