package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/librarium-core/internal/auth"
	"github.com/nerrad567/librarium-core/internal/infrastructure/config"
)

// writeTestConfig writes a config with a file-backed SQLite database and
// cheap argon2 parameters.
func writeTestConfig(t *testing.T, port int) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`
database:
  driver: sqlite
  path: %q
  wal_mode: true
  busy_timeout: 5
api:
  host: "127.0.0.1"
  port: %d
logging:
  level: info
  format: json
  output: stderr
security:
  jwt:
    secret: "cli-test-signing-secret-32-bytes!!"
  password:
    memory: 64
    time: 1
    threads: 1
`, filepath.Join(dir, "librarium.db"), port)

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// runCLI executes the root command with args and returns its output.
func runCLI(ctx context.Context, stdin string, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

// stubPasswords makes readPassword return each value in turn.
func stubPasswords(t *testing.T, values ...string) {
	t.Helper()
	orig := readPassword
	t.Cleanup(func() { readPassword = orig })
	i := 0
	readPassword = func(int) ([]byte, error) {
		if i >= len(values) {
			return nil, errors.New("no more input")
		}
		v := values[i]
		i++
		return []byte(v), nil
	}
}

// seededPassword extracts a generated password from seed output.
func seededPassword(t *testing.T, out, username string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 3 && fields[1] == username {
			return fields[2]
		}
	}
	t.Fatalf("no password for %s in output:\n%s", username, out)
	return ""
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("LIBRARIUM_CONFIG", "/etc/librarium/env.yaml")

	if got := getConfigPath("/tmp/flag.yaml"); got != "/tmp/flag.yaml" {
		t.Errorf("flag: got %q", got)
	}
	if got := getConfigPath(""); got != "/etc/librarium/env.yaml" {
		t.Errorf("env: got %q", got)
	}

	t.Setenv("LIBRARIUM_CONFIG", "")
	if got := getConfigPath(""); got != "" {
		t.Errorf("no default file: got %q, want environment-only", got)
	}
}

func TestMissingConfigFails(t *testing.T) {
	_, _, err := runCLI(context.Background(), "", "migrate", "--config", "/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("migrate should fail with a missing config file")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("error = %v", err)
	}
}

func TestMissingSecretFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("database:\n  path: /tmp/x.db\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LIBRARIUM_JWT_SECRET", "")

	_, _, err := runCLI(context.Background(), "", "serve", "--config", path)
	if err == nil || !strings.Contains(err.Error(), "security.jwt.secret") {
		t.Errorf("serve error = %v, want missing secret", err)
	}
}

func TestMigrate(t *testing.T) {
	cfgPath := writeTestConfig(t, 18080)

	out, _, err := runCLI(context.Background(), "", "migrate", "--config", cfgPath)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.HasPrefix(out, "database schema at version ") {
		t.Errorf("output = %q", out)
	}
}

func TestSeedThenIssueToken(t *testing.T) {
	cfgPath := writeTestConfig(t, 18080)
	ctx := context.Background()

	out, logs, err := runCLI(ctx, "", "seed", "--config", cfgPath)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	staffPassword := seededPassword(t, out, "staff")
	patronPassword := seededPassword(t, out, "patron")
	if !strings.Contains(out, "books added") {
		t.Errorf("seed output missing book count:\n%s", out)
	}
	for _, pw := range []string{staffPassword, patronPassword} {
		if strings.Contains(logs, pw) {
			t.Error("seed password written to logs")
		}
	}

	// Seeding again is a no-op for accounts.
	again, _, err := runCLI(ctx, "", "seed", "--config", cfgPath)
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if !strings.Contains(again, "accounts already exist") || strings.Contains(again, staffPassword) {
		t.Errorf("second seed output:\n%s", again)
	}

	token, stderr, err := runCLI(ctx, "", "token", "issue", "--config", cfgPath, "--username", "staff")
	if err != nil {
		t.Fatalf("token issue: %v", err)
	}
	token = strings.TrimSpace(token)
	if strings.Contains(stderr, token) {
		t.Error("token written to logs")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	_, tokens, err := newAuthCore(cfg)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := tokens.Validate(token, time.Now())
	if err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
	if claims.Role != auth.RoleStaff {
		t.Errorf("role = %q, want staff", claims.Role)
	}
}

func TestTokenIssue_UnknownUser(t *testing.T) {
	cfgPath := writeTestConfig(t, 18080)

	_, _, err := runCLI(context.Background(), "", "token", "issue", "--config", cfgPath, "--username", "ghost")
	if !errors.Is(err, auth.ErrNoAccount) {
		t.Errorf("error = %v, want ErrNoAccount", err)
	}
}

func TestUserCreateAndList(t *testing.T) {
	cfgPath := writeTestConfig(t, 18080)
	ctx := context.Background()

	stubPasswords(t, "desk-password-1", "desk-password-1")
	out, prompts, err := runCLI(ctx, "", "user", "create", "--config", cfgPath,
		"--username", "desk", "--email", "desk@library.org", "--role", "staff")
	if err != nil {
		t.Fatalf("user create: %v", err)
	}
	if !strings.Contains(out, `created staff account "desk"`) {
		t.Errorf("output = %q", out)
	}
	if strings.Contains(prompts, "desk-password-1") {
		t.Error("password echoed")
	}

	out, _, err = runCLI(ctx, "reader-password-1\n", "user", "create", "--config", cfgPath,
		"--username", "reader", "--email", "reader@library.org", "--password-stdin")
	if err != nil {
		t.Fatalf("user create from stdin: %v", err)
	}
	if !strings.Contains(out, `created patron account "reader"`) {
		t.Errorf("output = %q", out)
	}

	table, _, err := runCLI(ctx, "", "user", "list", "--config", cfgPath)
	if err != nil {
		t.Fatalf("user list: %v", err)
	}
	for _, want := range []string{"desk@library.org", "reader@library.org", "staff", "patron", "Total"} {
		if !strings.Contains(table, want) {
			t.Errorf("user list missing %q:\n%s", want, table)
		}
	}

	staffOnly, _, err := runCLI(ctx, "", "user", "list", "--config", cfgPath, "--role", "staff")
	if err != nil {
		t.Fatalf("user list --role: %v", err)
	}
	if strings.Contains(staffOnly, "reader@library.org") {
		t.Errorf("patron listed with --role staff:\n%s", staffOnly)
	}
}

func TestUserCreate_Errors(t *testing.T) {
	cfgPath := writeTestConfig(t, 18080)
	ctx := context.Background()

	stubPasswords(t, "first-password", "second-password")
	_, _, err := runCLI(ctx, "", "user", "create", "--config", cfgPath, "--username", "desk", "--email", "desk@library.org")
	if !errors.Is(err, errPasswordsDiffer) {
		t.Errorf("mismatch: error = %v, want errPasswordsDiffer", err)
	}

	_, _, err = runCLI(ctx, "", "user", "create", "--config", cfgPath, "--username", "desk", "--email", "desk@library.org", "--role", "admin")
	if !errors.Is(err, auth.ErrInvalidRole) {
		t.Errorf("bad role: error = %v, want ErrInvalidRole", err)
	}

	_, _, err = runCLI(ctx, "short\n", "user", "create", "--config", cfgPath, "--username", "desk", "--email", "desk@library.org", "--password-stdin")
	if !errors.Is(err, auth.ErrPasswordTooShort) {
		t.Errorf("short password: error = %v, want ErrPasswordTooShort", err)
	}

	_, _, err = runCLI(ctx, "", "user", "create", "--config", cfgPath, "--email", "desk@library.org")
	if err == nil {
		t.Error("missing --username should fail")
	}
}

func TestServe_StartsAndStops(t *testing.T) {
	const port = 19183
	cfgPath := writeTestConfig(t, port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs([]string{"serve", "--config", cfgPath})
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	healthURL := fmt.Sprintf("http://127.0.0.1:%d/api/v1/health", port)
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(healthURL) //nolint:noctx // test polling
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("health status = %d", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("server did not become healthy: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve returned %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}

	// First boot seeds accounts and prints their passwords once.
	if !strings.Contains(stdout.String(), "Initial accounts created") {
		t.Errorf("serve stdout missing seeded credentials:\n%s", stdout.String())
	}
}
