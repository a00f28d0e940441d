package usage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/YuMe-02/Hydroconnect/internal/infrastructure/database"
	"github.com/YuMe-02/Hydroconnect/migrations"
)

func testRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "usage.db"), WALMode: true})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func mustSession(t *testing.T, date, start, end string, sink int64) *Session {
	t.Helper()
	r := validReport()
	r.Date, r.StartTime, r.EndTime, r.SinkID = date, start, end, sink
	s, err := r.Session("dev-1")
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	return s
}

func TestSQLiteRepository_CreateAndList(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	sessions := []*Session{
		mustSession(t, "2024-03-09", "09:00:00", "09:01:00", 2),
		mustSession(t, "2024-03-09", "07:30:00", "07:30:42", 1),
		mustSession(t, "2024-03-10", "23:59:50", "00:00:10", 1),
	}
	sessions[1].IsError = true

	for _, s := range sessions {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if s.ID == 0 {
			t.Error("Create() did not set ID")
		}
		if s.ReceivedAt.IsZero() {
			t.Error("Create() did not set ReceivedAt")
		}
	}

	day := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	got, err := repo.ListByDate(ctx, day)
	if err != nil {
		t.Fatalf("ListByDate() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListByDate() returned %d sessions, want 2", len(got))
	}
	if got[0].SinkID != 1 || got[1].SinkID != 2 {
		t.Errorf("sessions not ordered by start time: sinks %d, %d", got[0].SinkID, got[1].SinkID)
	}
	if !got[0].IsError || got[1].IsError {
		t.Errorf("IsError not round-tripped: %v, %v", got[0].IsError, got[1].IsError)
	}
	if !got[0].StartTime.Equal(sessions[1].StartTime) || !got[0].EndTime.Equal(sessions[1].EndTime) {
		t.Errorf("times = %v-%v, want %v-%v", got[0].StartTime, got[0].EndTime, sessions[1].StartTime, sessions[1].EndTime)
	}
	if got[0].WaterAmount != 1.5 || got[0].DeviceID != "dev-1" {
		t.Errorf("fields not round-tripped: %+v", got[0])
	}

	all, err := repo.ListByDate(ctx, time.Time{})
	if err != nil {
		t.Fatalf("ListByDate(zero) error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListByDate(zero) returned %d sessions, want 3", len(all))
	}
	if d := all[2].EndTime.Sub(all[2].StartTime); d != 20*time.Second {
		t.Errorf("midnight session duration after reload = %v, want 20s", d)
	}
}

func TestSQLiteRepository_ListEmptyDay(t *testing.T) {
	repo := testRepo(t)

	got, err := repo.ListByDate(context.Background(), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ListByDate() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("ListByDate() = %v, want empty non-nil slice", got)
	}
}

func TestSQLiteRepository_CreateDuplicate(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	first := mustSession(t, "2024-03-09", "07:30:00", "07:30:42", 1)
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	resent := mustSession(t, "2024-03-09", "07:30:00", "07:30:42", 1)
	if err := repo.Create(ctx, resent); !errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("Create(resent) error = %v, want ErrDuplicateSession", err)
	}

	// Same hub session ID on another sink or another day is a new session.
	for _, s := range []*Session{
		mustSession(t, "2024-03-09", "07:30:00", "07:30:42", 2),
		mustSession(t, "2024-03-10", "07:30:00", "07:30:42", 1),
	} {
		if err := repo.Create(ctx, s); err != nil {
			t.Errorf("Create(sink %d, %s) error = %v", s.SinkID, s.Date.Format("2006-01-02"), err)
		}
	}

	all, err := repo.ListByDate(ctx, time.Time{})
	if err != nil {
		t.Fatalf("ListByDate() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("stored %d sessions, want 3", len(all))
	}
}
