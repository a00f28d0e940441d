package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/YuMe-02/Hydroconnect/internal/infrastructure/config"
	"github.com/YuMe-02/Hydroconnect/internal/infrastructure/database"
	"github.com/YuMe-02/Hydroconnect/internal/infrastructure/logging"
)

const testSecret = "test-session-secret-at-least-32-chars!"

// writeConfig writes a minimal config using a temporary database and
// returns its path. extra is appended verbatim.
func writeConfig(t *testing.T, secret, extra string) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`
database:
  path: %q
  wal_mode: true
  busy_timeout: 5
api:
  host: 127.0.0.1
  port: 58123
logging:
  level: error
  format: text
  output: stderr
security:
  session:
    secret: %q
%s`, filepath.Join(dir, "hydroconnect.db"), secret, extra)

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("HYDROCONNECT_CONFIG", "")
	if got := resolveConfigPath(""); got != defaultConfigPath {
		t.Errorf("default = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("HYDROCONNECT_CONFIG", "/etc/hydroconnect.yaml")
	if got := resolveConfigPath(""); got != "/etc/hydroconnect.yaml" {
		t.Errorf("env = %q", got)
	}
	if got := resolveConfigPath("/tmp/flag.yaml"); got != "/tmp/flag.yaml" {
		t.Errorf("flag should win over env, got %q", got)
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"serve", "migrate", "device", "audit"} {
		if sub, _, err := cmd.Find([]string{name}); err != nil || sub.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
	if cmd.PersistentFlags().Lookup("config") == nil {
		t.Error("--config flag missing")
	}
}

func TestServe_InvalidConfig(t *testing.T) {
	_, err := execute(t, context.Background(), "serve", "--config", "/nonexistent/config.yaml")
	if err == nil || !strings.Contains(err.Error(), "loading config") {
		t.Errorf("error = %v, want loading config failure", err)
	}
}

func TestServe_MissingSecret(t *testing.T) {
	t.Setenv("HYDROCONNECT_SESSION_SECRET", "")
	path := writeConfig(t, "", "")

	_, err := execute(t, context.Background(), "serve", "--config", path)
	if err == nil || !strings.Contains(err.Error(), "security.session.secret") {
		t.Errorf("error = %v, want secret validation failure", err)
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	path := writeConfig(t, testSecret, "")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if _, err := execute(t, ctx, "serve", "--config", path); err != nil {
		t.Errorf("serve returned %v after cancellation", err)
	}
}

func TestMigrate_Status(t *testing.T) {
	path := writeConfig(t, testSecret, "")

	out, err := execute(t, context.Background(), "migrate", "--status", "--config", path)
	if err != nil {
		t.Fatalf("migrate error = %v", err)
	}
	if !strings.Contains(out, "20240101_000000") {
		t.Errorf("status output missing initial migration:\n%s", out)
	}
}

// tableExists reports whether table is present in the database a config
// written by writeConfig points at.
func tableExists(t *testing.T, configPath, table string) bool {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: filepath.Join(filepath.Dir(configPath), "hydroconnect.db")})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close() //nolint:errcheck // test helper

	var n int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n); err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	return n == 1
}

func TestMigrate_Down(t *testing.T) {
	path := writeConfig(t, testSecret, "")
	ctx := context.Background()

	if _, err := execute(t, ctx, "migrate", "--config", path); err != nil {
		t.Fatalf("migrate error = %v", err)
	}
	if !tableExists(t, path, "users") {
		t.Fatal("users table missing after migrate")
	}

	out, err := execute(t, ctx, "migrate", "--down", "--config", path)
	if err != nil {
		t.Fatalf("migrate --down error = %v", err)
	}
	if !strings.Contains(out, "rolled back") {
		t.Errorf("output = %q", out)
	}
	if tableExists(t, path, "users") {
		t.Error("users table still present after migrate --down")
	}

	// Nothing left to roll back.
	if _, err := execute(t, ctx, "migrate", "--down", "--config", path); err != nil {
		t.Errorf("second migrate --down error = %v", err)
	}
}

func TestMigrate_StatusAndDownExclusive(t *testing.T) {
	path := writeConfig(t, testSecret, "")

	if _, err := execute(t, context.Background(), "migrate", "--status", "--down", "--config", path); err == nil {
		t.Error("migrate --status --down should fail")
	}
}

func TestAudit_List(t *testing.T) {
	path := writeConfig(t, testSecret, "")
	ctx := context.Background()

	out, err := execute(t, ctx, "audit", "list", "--config", path)
	if err != nil {
		t.Fatalf("audit list error = %v", err)
	}
	if !strings.Contains(out, "No audit entries found.") {
		t.Errorf("empty audit list output = %q", out)
	}

	for _, name := range []string{"hub-kitchen", "hub-garden"} {
		if _, err := execute(t, ctx, "device", "add", "--name", name, "--config", path); err != nil {
			t.Fatalf("device add %s error = %v", name, err)
		}
	}

	out, err = execute(t, ctx, "audit", "list", "--entity", "device", "--action", "device_provisioned", "--config", path)
	if err != nil {
		t.Fatalf("audit list error = %v", err)
	}
	if got := strings.Count(out, "device_provisioned"); got != 2 {
		t.Errorf("listed %d provisioning entries, want 2:\n%s", got, out)
	}
	if !strings.Contains(out, "cli") {
		t.Errorf("audit list missing source column:\n%s", out)
	}

	out, err = execute(t, ctx, "audit", "list", "--action", "key_rotated", "--config", path)
	if err != nil {
		t.Fatalf("audit list --action error = %v", err)
	}
	if !strings.Contains(out, "No audit entries found.") {
		t.Errorf("filtered audit list output = %q", out)
	}

	out, err = execute(t, ctx, "audit", "list", "--limit", "1", "--config", path)
	if err != nil {
		t.Fatalf("audit list --limit error = %v", err)
	}
	if got := strings.Count(out, "device_provisioned"); got != 1 {
		t.Errorf("--limit 1 listed %d entries:\n%s", got, out)
	}
}

var keyLine = regexp.MustCompile(`api_key:\s+([0-9a-f]{64})`)

func TestDevice_AddAndList(t *testing.T) {
	path := writeConfig(t, testSecret, "")
	ctx := context.Background()

	out, err := execute(t, ctx, "device", "add", "--name", "hub-kitchen", "--config", path)
	if err != nil {
		t.Fatalf("device add error = %v", err)
	}
	if !keyLine.MatchString(out) {
		t.Errorf("device add output has no 256-bit hex key:\n%s", out)
	}

	if _, err := execute(t, ctx, "device", "add", "--name", "hub-kitchen", "--config", path); err == nil ||
		!strings.Contains(err.Error(), "already exists") {
		t.Errorf("duplicate add error = %v, want already exists", err)
	}

	out, err = execute(t, ctx, "device", "list", "--config", path)
	if err != nil {
		t.Fatalf("device list error = %v", err)
	}
	if !strings.Contains(out, "hub-kitchen") {
		t.Errorf("device list missing hub-kitchen:\n%s", out)
	}
	if keyLine.MatchString(out) {
		t.Error("device list printed a key")
	}
}

func TestDevice_AddRequiresName(t *testing.T) {
	path := writeConfig(t, testSecret, "")

	if _, err := execute(t, context.Background(), "device", "add", "--config", path); err == nil {
		t.Error("device add without --name should fail")
	}
}

func TestDevice_ListEmpty(t *testing.T) {
	path := writeConfig(t, testSecret, "")

	out, err := execute(t, context.Background(), "device", "list", "--config", path)
	if err != nil {
		t.Fatalf("device list error = %v", err)
	}
	if !strings.Contains(out, "No devices found.") {
		t.Errorf("output = %q", out)
	}
}

func TestDevice_RedisKeyStore(t *testing.T) {
	mr := miniredis.RunT(t)
	path := writeConfig(t, testSecret, fmt.Sprintf(`
keystore:
  backend: redis
  redis:
    addr: %q
    prefix: "test:devicekey:"
`, mr.Addr()))
	ctx := context.Background()

	if _, err := execute(t, ctx, "device", "add", "--name", "hub-garden", "--config", path); err != nil {
		t.Fatalf("device add error = %v", err)
	}
	if !mr.Exists("test:devicekey:devices") {
		t.Error("device set not written to redis")
	}

	out, err := execute(t, ctx, "device", "list", "--config", path)
	if err != nil {
		t.Fatalf("device list error = %v", err)
	}
	if !strings.Contains(out, "hub-garden") {
		t.Errorf("device list missing hub-garden:\n%s", out)
	}
}

func TestDevice_RedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	path := writeConfig(t, testSecret, fmt.Sprintf("keystore:\n  backend: redis\n  redis:\n    addr: %q\n", addr))
	_, err := execute(t, context.Background(), "device", "list", "--config", path)
	if err == nil || !strings.Contains(err.Error(), "redis key store") {
		t.Errorf("error = %v, want redis connection failure", err)
	}
}

func TestOpenKeyStore_Health(t *testing.T) {
	ctx := context.Background()

	t.Run("sqlite", func(t *testing.T) {
		db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "keys.db")})
		if err != nil {
			t.Fatalf("opening database: %v", err)
		}
		defer db.Close() //nolint:errcheck // test cleanup

		_, health, closeStore, err := openKeyStore(ctx, config.KeyStoreConfig{Backend: config.KeyStoreSQLite}, db, logging.Discard())
		if err != nil {
			t.Fatalf("openKeyStore() error = %v", err)
		}
		defer closeStore()
		if health != nil {
			t.Error("sqlite key store returned its own health check")
		}
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := config.KeyStoreConfig{
			Backend: config.KeyStoreRedis,
			Redis:   config.RedisConfig{Addr: mr.Addr(), Prefix: "test:devicekey:"},
		}

		_, health, closeStore, err := openKeyStore(ctx, cfg, nil, logging.Discard())
		if err != nil {
			t.Fatalf("openKeyStore() error = %v", err)
		}
		defer closeStore()
		if health == nil {
			t.Fatal("redis key store returned no health check")
		}
		if err := health.HealthCheck(ctx); err != nil {
			t.Errorf("HealthCheck() with redis up = %v", err)
		}

		mr.Close()
		if err := health.HealthCheck(ctx); err == nil {
			t.Error("HealthCheck() with redis stopped should fail")
		}
	})
}
