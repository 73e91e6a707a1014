package config

import (
	"bufio"
	"os"
	"strings"

	"disc-report/internal/shared/telemetry"
)

// loadEnvFiles reads KEY=VALUE lines from the files that exist. Variables
// already set in the process environment win over file values.
func loadEnvFiles(paths ...string) {
	for _, path := range paths {
		n, err := loadEnvFile(path)
		if err != nil {
			continue
		}
		telemetry.Info("config.env_file_loaded", map[string]any{"path": path, "keys": n})
	}
}

func loadEnvFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, val, ok := parseEnvLine(scanner.Text())
		if !ok {
			continue
		}
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, val); err == nil {
			n++
		}
	}
	return n, scanner.Err()
}

// parseEnvLine accepts `KEY=value`, `export KEY=value` and quoted values.
// Unquoted values drop a trailing ` # comment`.
func parseEnvLine(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimPrefix(line, "export ")
	key, val, ok := strings.Cut(line, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" || strings.ContainsAny(key, " \t") {
		return "", "", false
	}
	val = strings.TrimSpace(val)
	if len(val) >= 2 && (val[0] == '"' || val[0] == '\'') && val[len(val)-1] == val[0] {
		return key, val[1 : len(val)-1], true
	}
	if i := strings.Index(val, " #"); i >= 0 {
		val = strings.TrimSpace(val[:i])
	}
	return key, val, true
}
