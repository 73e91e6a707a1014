package manifest

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"disc-report/internal/scoring"
)

// ErrInvalidManifest wraps schema violations.
var ErrInvalidManifest = errors.New("invalid position manifest")

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "schema://disc-report/manifest.json"

var (
	schemaOnce     sync.Once
	schemaCompiled *jsonschema.Schema
	schemaErr      error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		var doc any
		if err := json.Unmarshal(schemaJSON, &doc); err != nil {
			schemaErr = fmt.Errorf("parse manifest schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("add manifest schema: %w", err)
			return
		}
		schemaCompiled, schemaErr = c.Compile(schemaURL)
	})
	return schemaCompiled, schemaErr
}

// Validate checks raw manifest JSON against the embedded schema.
func Validate(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	return nil
}

// Path returns <dir>/<CODE>.json.
func Path(dir, code string) string {
	return filepath.Join(dir, code+".json")
}

// Write validates m and writes it to <dir>/<CODE>.json.
func Write(dir string, m Manifest) (string, error) {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	if err := Validate(raw); err != nil {
		return "", fmt.Errorf("%s: %w", m.ProfileCode, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create manifest dir: %w", err)
	}
	p := Path(dir, m.ProfileCode)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, append(raw, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return p, nil
}

// Load reads and validates the manifest for a profile code.
func Load(dir, code string) (Manifest, error) {
	norm, ok := scoring.NormalizeProfileCode(code)
	if !ok {
		return Manifest{}, fmt.Errorf("%w: profile code %q", ErrInvalidManifest, code)
	}
	raw, err := os.ReadFile(Path(dir, norm))
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest %s: %w", norm, err)
	}
	if err := Validate(raw); err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", norm, err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if m.ProfileCode != norm {
		return Manifest{}, fmt.Errorf("%w: file %s holds profile %s", ErrInvalidManifest, norm, m.ProfileCode)
	}
	return m, nil
}
