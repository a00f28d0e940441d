package auth

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/YuMe-02/Hydroconnect/internal/infrastructure/database"
	"github.com/YuMe-02/Hydroconnect/internal/infrastructure/logging"
	"github.com/YuMe-02/Hydroconnect/migrations"
)

const testSecret = "test-session-secret-at-least-32-chars!"

// testDB creates a temporary migrated SQLite database.
// It is removed when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "auth.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db.DB
}

// fixedClock returns a clock that always reports t.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testSessions(t *testing.T, opts ...SessionOption) *SessionService {
	t.Helper()
	s, err := NewSessionService(SessionConfig{Secret: testSecret}, opts...)
	if err != nil {
		t.Fatalf("NewSessionService() error = %v", err)
	}
	return s
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseReportDate(s)
	if err != nil {
		t.Fatalf("ParseReportDate(%q) error = %v", s, err)
	}
	return d
}

// provision registers a device with lastRotated and returns it with its raw key.
func provision(t *testing.T, store KeyStore, name, lastRotated string) (*DeviceKey, string) {
	t.Helper()
	authority := NewDeviceKeyAuthority(store, nil, logging.Discard())
	key, raw, err := authority.Provision(context.Background(), name, date(t, lastRotated))
	if err != nil {
		t.Fatalf("Provision(%q) error = %v", name, err)
	}
	return key, raw
}
