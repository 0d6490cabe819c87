package conversation

import (
	"context"
	"errors"
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
	rows []pgx.Row
}

func (d *fakeDBTX) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
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
	convID = "0b4a2e6c-4c1f-4d9e-8f3a-1a2b3c4d5001"
	custID = "6f1e8a30-0a68-4f6b-9f6e-0b64e2a1c001"
)

func mustUUID(t *testing.T, id string) pgtype.UUID {
	t.Helper()
	parsed, err := dbpkg.ParseUUID(id)
	if err != nil {
		t.Fatalf("parse uuid %q: %v", id, err)
	}
	return parsed
}

func makeConversationRow(t *testing.T, status string, turnCount int32, sentimentAvg float64) *fakeRow {
	t.Helper()
	return &fakeRow{
		scanFunc: func(dest ...any) error {
			*dest[0].(*pgtype.UUID) = mustUUID(t, convID)
			*dest[1].(*pgtype.UUID) = mustUUID(t, custID)
			*dest[2].(*string) = "email"
			*dest[3].(*string) = status
			*dest[4].(*float64) = sentimentAvg
			*dest[5].(*int32) = turnCount
			*dest[6].(*int32) = 0
			*dest[7].(*pgtype.Text) = pgtype.Text{}
			*dest[8].(*pgtype.Timestamptz) = pgtype.Timestamptz{Time: time.Now(), Valid: true}
			*dest[9].(*pgtype.Timestamptz) = pgtype.Timestamptz{}
			return nil
		},
	}
}

func statusRow(status string) *fakeRow {
	return &fakeRow{scanFunc: func(dest ...any) error {
		*dest[0].(*string) = status
		return nil
	}}
}

func TestGetOrOpenReturnsActive(t *testing.T) {
	t.Parallel()

	db := &fakeDBTX{rows: []pgx.Row{makeConversationRow(t, StatusActive, 3, 0.2)}}
	svc := NewService(nil, db, 24*time.Hour)

	conv, err := svc.GetOrOpen(context.Background(), custID, "email")
	if err != nil {
		t.Fatalf("GetOrOpen: %v", err)
	}
	if conv.ID != mustUUID(t, convID).String() {
		t.Errorf("id = %q", conv.ID)
	}
	if conv.TurnCount != 3 {
		t.Errorf("turn_count = %d, want 3", conv.TurnCount)
	}
}

func TestGetOrOpenOpensNew(t *testing.T) {
	t.Parallel()

	db := &fakeDBTX{rows: []pgx.Row{
		noRow, // no active conversation in window
		makeConversationRow(t, StatusActive, 0, 0),
	}}
	svc := NewService(nil, db, 24*time.Hour)

	conv, err := svc.GetOrOpen(context.Background(), custID, "email")
	if err != nil {
		t.Fatalf("GetOrOpen: %v", err)
	}
	if conv.Status != StatusActive || conv.TurnCount != 0 {
		t.Errorf("got status %q turn_count %d", conv.Status, conv.TurnCount)
	}
}

func TestRecordTurnActive(t *testing.T) {
	t.Parallel()

	db := &fakeDBTX{rows: []pgx.Row{makeConversationRow(t, StatusActive, 4, -0.1)}}
	svc := NewService(nil, db, 24*time.Hour)

	conv, err := svc.RecordTurn(context.Background(), convID, -0.5)
	if err != nil {
		t.Fatalf("RecordTurn: %v", err)
	}
	if conv.TurnCount != 4 {
		t.Errorf("turn_count = %d", conv.TurnCount)
	}
}

func TestRecordTurnClosedConversation(t *testing.T) {
	t.Parallel()

	db := &fakeDBTX{rows: []pgx.Row{
		noRow, // conditional update matches nothing
		statusRow(StatusEscalated),
	}}
	svc := NewService(nil, db, 24*time.Hour)

	_, err := svc.RecordTurn(context.Background(), convID, 0.1)
	if !errors.Is(err, ErrConversationClosed) {
		t.Fatalf("err = %v, want ErrConversationClosed", err)
	}
}

func TestRecordTurnUnknownConversation(t *testing.T) {
	t.Parallel()

	db := &fakeDBTX{}
	svc := NewService(nil, db, 24*time.Hour)

	_, err := svc.RecordTurn(context.Background(), convID, 0.1)
	if err == nil || errors.Is(err, ErrConversationClosed) {
		t.Fatalf("err = %v, want not-found error", err)
	}
}

func TestRecordGapReturnsCount(t *testing.T) {
	t.Parallel()

	gapRow := &fakeRow{scanFunc: func(dest ...any) error {
		*dest[0].(*int32) = 2
		return nil
	}}
	db := &fakeDBTX{rows: []pgx.Row{gapRow}}
	svc := NewService(nil, db, 24*time.Hour)

	count, err := svc.RecordGap(context.Background(), convID)
	if err != nil {
		t.Fatalf("RecordGap: %v", err)
	}
	if count != 2 {
		t.Errorf("gap count = %d, want 2", count)
	}
}

func TestCloseRejectsInvalidStatus(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, &fakeDBTX{}, 24*time.Hour)
	if _, err := svc.Close(context.Background(), convID, StatusActive, ""); err == nil {
		t.Error("closing with a non-terminal status should fail")
	}
}

func TestCloseAlreadyTerminal(t *testing.T) {
	t.Parallel()

	db := &fakeDBTX{rows: []pgx.Row{
		noRow, // conditional update matches nothing
		statusRow(StatusResolved),
	}}
	svc := NewService(nil, db, 24*time.Hour)

	_, err := svc.Close(context.Background(), convID, StatusEscalated, "refund_request")
	if !errors.Is(err, ErrConversationClosed) {
		t.Fatalf("err = %v, want ErrConversationClosed", err)
	}
}

func TestCloseEscalates(t *testing.T) {
	t.Parallel()

	closed := &fakeRow{scanFunc: func(dest ...any) error {
		*dest[0].(*pgtype.UUID) = mustUUID(t, convID)
		*dest[1].(*pgtype.UUID) = mustUUID(t, custID)
		*dest[2].(*string) = "chat"
		*dest[3].(*string) = StatusEscalated
		*dest[4].(*float64) = -0.7
		*dest[5].(*int32) = 5
		*dest[6].(*int32) = 0
		*dest[7].(*pgtype.Text) = pgtype.Text{String: "negative_sentiment", Valid: true}
		*dest[8].(*pgtype.Timestamptz) = pgtype.Timestamptz{Time: time.Now(), Valid: true}
		*dest[9].(*pgtype.Timestamptz) = pgtype.Timestamptz{Time: time.Now(), Valid: true}
		return nil
	}}
	db := &fakeDBTX{rows: []pgx.Row{closed}}
	svc := NewService(nil, db, 24*time.Hour)

	conv, err := svc.Close(context.Background(), convID, StatusEscalated, "negative_sentiment")
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if conv.Status != StatusEscalated {
		t.Errorf("status = %q", conv.Status)
	}
	if conv.EscalationReason != "negative_sentiment" {
		t.Errorf("reason = %q", conv.EscalationReason)
	}
	if conv.EndedAt == nil {
		t.Error("ended_at should be set")
	}
}
