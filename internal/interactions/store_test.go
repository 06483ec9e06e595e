package interactions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestHashPayloadStable(t *testing.T) {
	a := HashPayload([]byte(`{"x":1}`))
	b := HashPayload([]byte(`{"x":1}`))
	c := HashPayload([]byte(`{"x":2}`))
	if a != b {
		t.Fatal("same body must hash identically")
	}
	if a == c {
		t.Fatal("different bodies must not collide")
	}
	if len(a) != 64 {
		t.Fatalf("expected sha256 hex, got %d chars", len(a))
	}
}

func TestFindRecentByHash(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := NewStore(mock)

	campaignID := uuid.New()
	found := uuid.New()
	mock.ExpectQuery("SELECT id FROM interactions").
		WithArgs(campaignID, "abc123", "5m0s").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(found))

	id, err := store.FindRecentByHash(context.Background(), campaignID, "abc123", 5*time.Minute)
	if err != nil {
		t.Fatalf("find recent: %v", err)
	}
	if id != found {
		t.Fatalf("expected %s, got %s", found, id)
	}
}

func TestFindRecentByHashMiss(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := NewStore(mock)

	campaignID := uuid.New()
	mock.ExpectQuery("SELECT id FROM interactions").
		WithArgs(campaignID, "abc123", "5m0s").
		WillReturnError(pgx.ErrNoRows)

	id, err := store.FindRecentByHash(context.Background(), campaignID, "abc123", 5*time.Minute)
	if err != nil {
		t.Fatalf("find recent: %v", err)
	}
	if id != uuid.Nil {
		t.Fatalf("expected nil id on miss, got %s", id)
	}
}

func TestInsertAndFlags(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := NewStore(mock)

	campaignID := uuid.New()
	contactID := uuid.New()
	rec := Record{
		CampaignID:     campaignID,
		ContactID:      &contactID,
		SourceType:     "phone",
		SourcePlatform: "retell",
		RawPayload:     []byte(`{"a":1}`),
		PayloadHash:    HashPayload([]byte(`{"a":1}`)),
		Transcript:     "please call me back",
	}
	inserted := uuid.New()
	mock.ExpectQuery("INSERT INTO interactions").
		WithArgs(pgxmock.AnyArg(), campaignID, &contactID, "phone", "retell",
			rec.RawPayload, rec.PayloadHash, "", "please call me back", "",
			[]byte(nil), false, "").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(inserted))

	id, err := store.Insert(context.Background(), rec)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id != inserted {
		t.Fatalf("expected %s, got %s", inserted, id)
	}

	mock.ExpectExec("UPDATE interactions SET sms_sent").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := store.MarkSMSSent(context.Background(), id); err != nil {
		t.Fatalf("mark sms sent: %v", err)
	}

	mock.ExpectExec("UPDATE interactions SET processing_error").
		WithArgs(id, "classifier unavailable").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := store.MarkError(context.Background(), id, "classifier unavailable"); err != nil {
		t.Fatalf("mark error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
