package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/YuMe-02/Hydroconnect/internal/infrastructure/logging"
)

// countingStore wraps a KeyStore and counts mutations.
type countingStore struct {
	KeyStore
	mu       sync.Mutex
	replaces int
	findErr  error
}

func (c *countingStore) FindActiveKey(ctx context.Context, keyHash string) (*DeviceKey, error) {
	if c.findErr != nil {
		return nil, c.findErr
	}
	return c.KeyStore.FindActiveKey(ctx, keyHash)
}

func (c *countingStore) ReplaceKey(ctx context.Context, oldHash, newHash string, rotated time.Time) error {
	c.mu.Lock()
	c.replaces++
	c.mu.Unlock()
	return c.KeyStore.ReplaceKey(ctx, oldHash, newHash, rotated)
}

type recordingNotifier struct {
	mu      sync.Mutex
	devices []string
}

func (r *recordingNotifier) KeyRotated(_ context.Context, deviceID string, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = append(r.devices, deviceID)
}

func TestGenerateDeviceKey(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		key, err := GenerateDeviceKey()
		if err != nil {
			t.Fatalf("GenerateDeviceKey() error = %v", err)
		}
		if len(key) != 64 {
			t.Fatalf("key length = %d, want 64 hex chars", len(key))
		}
		if seen[key] {
			t.Fatal("GenerateDeviceKey() produced a duplicate")
		}
		seen[key] = true
	}
}

func TestHashDeviceKey(t *testing.T) {
	if HashDeviceKey("a") == HashDeviceKey("b") {
		t.Error("different keys hashed to the same value")
	}
	if HashDeviceKey("a") != HashDeviceKey("a") {
		t.Error("HashDeviceKey is not deterministic")
	}
	if HashDeviceKey("a") == "a" {
		t.Error("HashDeviceKey returned its input")
	}
}

func TestParseReportDate(t *testing.T) {
	if _, err := ParseReportDate("2024-01-08"); err != nil {
		t.Errorf("ParseReportDate() error = %v", err)
	}
	for _, bad := range []string{"", "01/08/2024", "2024-13-01", "2024-01-08T00:00:00Z"} {
		if _, err := ParseReportDate(bad); !errors.Is(err, ErrInvalidReportDate) {
			t.Errorf("ParseReportDate(%q) error = %v, want ErrInvalidReportDate", bad, err)
		}
	}
}

func TestRotationDue(t *testing.T) {
	last := date(t, "2024-01-01")

	tests := []struct {
		report string
		want   bool
	}{
		{"2024-01-01", false},
		{"2024-01-07", false},
		{"2024-01-08", true},
		{"2024-02-01", true},
		{"2023-12-25", false}, // report older than last rotation
	}

	for _, tt := range tests {
		t.Run(tt.report, func(t *testing.T) {
			if got := RotationDue(date(t, tt.report), last); got != tt.want {
				t.Errorf("RotationDue(%s, 2024-01-01) = %v, want %v", tt.report, got, tt.want)
			}
		})
	}
}

func TestRotationDue_IgnoresTimeOfDay(t *testing.T) {
	last := time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)
	report := time.Date(2024, 1, 8, 0, 1, 0, 0, time.UTC)

	if !RotationDue(report, last) {
		t.Error("rotation should be due after seven calendar days regardless of time of day")
	}
}

func TestAuthorize(t *testing.T) {
	store := &countingStore{KeyStore: NewSQLiteKeyStore(testDB(t))}
	authority := NewDeviceKeyAuthority(store, nil, logging.Discard())
	device, raw := provision(t, store, "hub-kitchen", "2024-01-01")
	ctx := context.Background()

	got, err := authority.Authorize(ctx, raw)
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if got.DeviceID != device.DeviceID {
		t.Errorf("DeviceID = %q, want %q", got.DeviceID, device.DeviceID)
	}
	if !got.LastRotated.Equal(date(t, "2024-01-01")) {
		t.Errorf("LastRotated = %v, want 2024-01-01", got.LastRotated)
	}

	for _, bad := range []string{"", "not-a-key", HashDeviceKey(raw)} {
		if _, err := authority.Authorize(ctx, bad); !errors.Is(err, ErrForbidden) {
			t.Errorf("Authorize(%q) error = %v, want ErrForbidden", bad, err)
		}
	}

	if store.replaces != 0 {
		t.Errorf("Authorize mutated the store %d times", store.replaces)
	}
}

func TestAuthorize_StoreErrorNotMasked(t *testing.T) {
	backendDown := errors.New("connection refused")
	store := &countingStore{KeyStore: NewSQLiteKeyStore(testDB(t)), findErr: backendDown}
	authority := NewDeviceKeyAuthority(store, nil, logging.Discard())

	_, err := authority.Authorize(context.Background(), "any-key")
	if errors.Is(err, ErrForbidden) {
		t.Fatal("store failure reported as ErrForbidden")
	}
	if !errors.Is(err, backendDown) {
		t.Errorf("Authorize() error = %v, want wrapped store error", err)
	}
}

func TestMaybeRotate_Threshold(t *testing.T) {
	tests := []struct {
		name       string
		report     string
		wantRotate bool
	}{
		{name: "same day", report: "2024-01-01"},
		{name: "six days", report: "2024-01-07"},
		{name: "seven days", report: "2024-01-08", wantRotate: true},
		{name: "thirty days", report: "2024-01-31", wantRotate: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &countingStore{KeyStore: NewSQLiteKeyStore(testDB(t))}
			notifier := &recordingNotifier{}
			authority := NewDeviceKeyAuthority(store, notifier, logging.Discard())
			_, raw := provision(t, store, "hub", "2024-01-01")
			ctx := context.Background()

			device, err := authority.Authorize(ctx, raw)
			if err != nil {
				t.Fatalf("Authorize() error = %v", err)
			}

			newKey, err := authority.MaybeRotate(ctx, device, raw, date(t, tt.report))
			if err != nil {
				t.Fatalf("MaybeRotate() error = %v", err)
			}

			if !tt.wantRotate {
				if newKey != "" {
					t.Fatal("MaybeRotate() rotated before the threshold")
				}
				if store.replaces != 0 {
					t.Errorf("store mutated %d times without rotation", store.replaces)
				}
				if _, err := authority.Authorize(ctx, raw); err != nil {
					t.Errorf("old key rejected without rotation: %v", err)
				}
				return
			}

			if newKey == "" || newKey == raw {
				t.Fatalf("MaybeRotate() = %q, want a fresh key", newKey)
			}
			if store.replaces != 1 {
				t.Errorf("store mutated %d times, want exactly 1", store.replaces)
			}
			if _, err := authority.Authorize(ctx, raw); !errors.Is(err, ErrForbidden) {
				t.Errorf("old key after rotation: error = %v, want ErrForbidden", err)
			}

			rotated, err := authority.Authorize(ctx, newKey)
			if err != nil {
				t.Fatalf("new key rejected: %v", err)
			}
			if !rotated.LastRotated.Equal(date(t, tt.report)) {
				t.Errorf("LastRotated = %v, want report date %s", rotated.LastRotated, tt.report)
			}
			if len(notifier.devices) != 1 || notifier.devices[0] != device.DeviceID {
				t.Errorf("notifier saw %v, want [%s]", notifier.devices, device.DeviceID)
			}
		})
	}
}

func TestMaybeRotate_StaleKeyConflict(t *testing.T) {
	store := NewSQLiteKeyStore(testDB(t))
	authority := NewDeviceKeyAuthority(store, nil, logging.Discard())
	_, raw := provision(t, store, "hub", "2024-01-01")
	ctx := context.Background()

	device, err := authority.Authorize(ctx, raw)
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}

	first, err := authority.MaybeRotate(ctx, device, raw, date(t, "2024-01-08"))
	if err != nil || first == "" {
		t.Fatalf("first MaybeRotate() = %q, %v", first, err)
	}

	// A second request that authorized before the rotation loses the swap.
	second, err := authority.MaybeRotate(ctx, device, raw, date(t, "2024-01-08"))
	if !errors.Is(err, ErrRotationConflict) {
		t.Fatalf("second MaybeRotate() error = %v, want ErrRotationConflict", err)
	}
	if second != "" {
		t.Error("losing rotation must not hand out a key")
	}

	if _, err := authority.Authorize(ctx, first); err != nil {
		t.Errorf("winning key rejected after lost rotation: %v", err)
	}
}

// exerciseConcurrentRotation races several rotations of one key against
// readers. Exactly one rotation must win, and each reader must see the old
// key valid and then invalid, never valid again.
func exerciseConcurrentRotation(t *testing.T, store KeyStore) {
	t.Helper()

	authority := NewDeviceKeyAuthority(store, nil, logging.Discard())
	_, oldKey := provision(t, store, "hub-concurrent", "2024-01-01")
	ctx := context.Background()
	report := date(t, "2024-01-08")

	const rotators, readers, reads = 8, 4, 50

	var wg sync.WaitGroup
	start := make(chan struct{})
	newKeys := make(chan string, rotators)
	errs := make(chan error, rotators+readers)

	for range rotators {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			device, err := authority.Authorize(ctx, oldKey)
			if errors.Is(err, ErrForbidden) {
				return // observed the post-rotation state
			}
			if err != nil {
				errs <- err
				return
			}

			key, err := authority.MaybeRotate(ctx, device, oldKey, report)
			switch {
			case errors.Is(err, ErrRotationConflict):
			case err != nil:
				errs <- err
			default:
				newKeys <- key
			}
		}()
	}

	for range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			invalidated := false
			for range reads {
				_, err := authority.Authorize(ctx, oldKey)
				switch {
				case err == nil:
					if invalidated {
						errs <- errors.New("old key became valid again after rotation")
						return
					}
				case errors.Is(err, ErrForbidden):
					invalidated = true
				default:
					errs <- err
					return
				}
			}
		}()
	}

	close(start)
	wg.Wait()
	close(newKeys)
	close(errs)

	for err := range errs {
		t.Errorf("concurrent rotation: %v", err)
	}

	var winners []string
	for k := range newKeys {
		winners = append(winners, k)
	}
	if len(winners) != 1 {
		t.Fatalf("%d rotations succeeded, want exactly 1", len(winners))
	}

	if _, err := authority.Authorize(ctx, oldKey); !errors.Is(err, ErrForbidden) {
		t.Errorf("old key after rotation: error = %v, want ErrForbidden", err)
	}
	if _, err := authority.Authorize(ctx, winners[0]); err != nil {
		t.Errorf("new key rejected: %v", err)
	}

	devices, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(devices) != 1 || devices[0].KeyHash != HashDeviceKey(winners[0]) {
		t.Errorf("store holds %+v, want the single device with the new key", devices)
	}
}

func TestMaybeRotate_Concurrent_SQLite(t *testing.T) {
	exerciseConcurrentRotation(t, NewSQLiteKeyStore(testDB(t)))
}

func TestProvision_DuplicateName(t *testing.T) {
	store := NewSQLiteKeyStore(testDB(t))
	authority := NewDeviceKeyAuthority(store, nil, logging.Discard())
	ctx := context.Background()

	if _, _, err := authority.Provision(ctx, "hub", time.Now()); err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	if _, _, err := authority.Provision(ctx, "hub", time.Now()); !errors.Is(err, ErrDeviceExists) {
		t.Errorf("second Provision() error = %v, want ErrDeviceExists", err)
	}
}
