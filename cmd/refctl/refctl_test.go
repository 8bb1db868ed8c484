package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jo-hoe/refshelf/internal/backend/database"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	config := "database:\n  type: sqlite\n  connectionString: " + filepath.Join(dir, "refshelf.db") + "\n"
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(config), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestUserAddAndEntriesList(t *testing.T) {
	configPath := writeConfig(t)

	out, err := run(t, "--config", configPath, "user", "add", "--email", " Artist@Example.com ", "--password", "secret-password")
	if err != nil {
		t.Fatalf("user add error: %v", err)
	}
	if !strings.Contains(out, "created user artist@example.com") {
		t.Fatalf("Expected confirmation, got %q", out)
	}

	if _, err := run(t, "--config", configPath, "user", "add", "--email", "artist@example.com", "--password", "secret-password"); err == nil {
		t.Fatalf("Expected duplicate email to fail")
	}

	out, err = run(t, "--config", configPath, "entries", "list", "--email", "artist@example.com")
	if err != nil {
		t.Fatalf("entries list error: %v", err)
	}
	if !strings.HasPrefix(out, "ID") {
		t.Fatalf("Expected table header, got %q", out)
	}

	out, err = run(t, "--config", configPath, "entries", "list", "--email", "artist@example.com", "--json")
	if err != nil {
		t.Fatalf("entries list error: %v", err)
	}
	var entries []database.Entry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", out, err)
	}
	if len(entries) != 0 {
		t.Fatalf("Expected no entries, got %d", len(entries))
	}
}

func TestEntriesList_UnknownUser(t *testing.T) {
	configPath := writeConfig(t)

	_, err := run(t, "--config", configPath, "entries", "list", "--email", "nobody@example.com")
	if err == nil || !strings.Contains(err.Error(), "no user") {
		t.Fatalf("Expected unknown user error, got %v", err)
	}
}

func TestUserAdd_RequiresFlags(t *testing.T) {
	configPath := writeConfig(t)

	if _, err := run(t, "--config", configPath, "user", "add", "--email", "a@b.c"); err == nil {
		t.Fatalf("Expected missing password flag to fail")
	}
}

func TestUserAdd_WeakPassword(t *testing.T) {
	configPath := writeConfig(t)

	_, err := run(t, "--config", configPath, "user", "add", "--email", "a@b.c", "--password", "x")
	if err == nil || !strings.Contains(err.Error(), "failed to create user") {
		t.Fatalf("Expected weak password error, got %v", err)
	}
}
