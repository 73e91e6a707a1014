package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseEnvLine(t *testing.T) {
	tests := []struct {
		line string
		key  string
		val  string
		ok   bool
	}{
		{line: "PORT=9090", key: "PORT", val: "9090", ok: true},
		{line: "export ENV=staging", key: "ENV", val: "staging", ok: true},
		{line: `MAIL_FROM="Rapport <rapport@example.com>"`, key: "MAIL_FROM", val: "Rapport <rapport@example.com>", ok: true},
		{line: "COMPANY_NAME='The Lean Communication'", key: "COMPANY_NAME", val: "The Lean Communication", ok: true},
		{line: "LOCK_TTL=3m # claim expiry", key: "LOCK_TTL", val: "3m", ok: true},
		{line: "EMPTY=", key: "EMPTY", val: "", ok: true},
		{line: "# comment"},
		{line: "   "},
		{line: "no equals sign"},
		{line: "BAD KEY=x"},
	}
	for _, tt := range tests {
		key, val, ok := parseEnvLine(tt.line)
		if ok != tt.ok || key != tt.key || val != tt.val {
			t.Fatalf("parseEnvLine(%q) = %q, %q, %v; want %q, %q, %v", tt.line, key, val, ok, tt.key, tt.val, tt.ok)
		}
	}
}

func TestLoadEnvFilesKeepsProcessValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	body := "REPORT_TEST_FROM_FILE=file\nREPORT_TEST_PRESET=file\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("REPORT_TEST_PRESET", "process")
	t.Setenv("REPORT_TEST_FROM_FILE", "")
	os.Unsetenv("REPORT_TEST_FROM_FILE")

	loadEnvFiles(filepath.Join(dir, "missing.env"), path)

	if got := os.Getenv("REPORT_TEST_FROM_FILE"); got != "file" {
		t.Fatalf("expected file value, got %q", got)
	}
	if got := os.Getenv("REPORT_TEST_PRESET"); got != "process" {
		t.Fatalf("expected process value to win, got %q", got)
	}
	os.Unsetenv("REPORT_TEST_FROM_FILE")
}
