package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"disc-report/internal/report"
	"disc-report/internal/scoring"
	"disc-report/internal/shared/telemetry"
)

// ErrNoProfiles is returned when a templates root holds no usable profile.
var ErrNoProfiles = errors.New("no template profiles found")

// Profile is one discovered template folder.
type Profile struct {
	Code    string
	Dir     string
	HTMLDir string
}

// PagePath returns the absolute path of page i.
func (p Profile) PagePath(i int) string {
	return filepath.Join(p.HTMLDir, report.PublicationFiles[i])
}

// PageURL returns a file:// URL for page i.
func (p Profile) PageURL(i int) string {
	return "file://" + filepath.ToSlash(p.PagePath(i))
}

var legacyFolder = regexp.MustCompile(`(?i)^1\s+([A-Z]{1,2})\s+Basis\s+profiel`)

// profileCode accepts a bare code folder ("DC") or a legacy
// "1 DC Basis profiel ..." folder.
func profileCode(folder string) (string, bool) {
	if code, ok := scoring.NormalizeProfileCode(folder); ok {
		return code, true
	}
	if m := legacyFolder.FindStringSubmatch(folder); m != nil {
		return scoring.NormalizeProfileCode(m[1])
	}
	return "", false
}

// Discover scans root for profile folders holding all nine pages. Folders
// that are not profiles are ignored; incomplete ones are logged and skipped.
func Discover(root string) ([]Profile, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read templates root: %w", err)
	}

	seen := map[string]bool{}
	var out []Profile
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		code, ok := profileCode(e.Name())
		if !ok {
			continue
		}
		if seen[code] {
			telemetry.Warn("manifest.duplicate_profile", map[string]any{"profile": code, "folder": e.Name()})
			continue
		}
		dir := filepath.Join(abs, e.Name())
		htmlDir := filepath.Join(dir, "publication-web-resources", "html")
		if missing := missingPages(htmlDir); len(missing) > 0 {
			telemetry.Warn("manifest.profile_incomplete", map[string]any{
				"profile": code,
				"folder":  e.Name(),
				"missing": missing,
			})
			continue
		}
		seen[code] = true
		out = append(out, Profile{Code: code, Dir: dir, HTMLDir: htmlDir})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoProfiles, abs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func missingPages(htmlDir string) []string {
	var missing []string
	for _, f := range report.PublicationFiles {
		if info, err := os.Stat(filepath.Join(htmlDir, f)); err != nil || info.IsDir() {
			missing = append(missing, f)
		}
	}
	return missing
}

// Filter keeps the profiles whose code is in codes. Empty codes keeps all.
func Filter(profiles []Profile, codes []string) ([]Profile, error) {
	if len(codes) == 0 {
		return profiles, nil
	}
	byCode := make(map[string]Profile, len(profiles))
	for _, p := range profiles {
		byCode[p.Code] = p
	}
	out := make([]Profile, 0, len(codes))
	for _, raw := range codes {
		code, ok := scoring.NormalizeProfileCode(raw)
		if !ok {
			return nil, fmt.Errorf("invalid profile code %q", raw)
		}
		p, ok := byCode[code]
		if !ok {
			return nil, fmt.Errorf("profile %s not found", code)
		}
		out = append(out, p)
	}
	return out, nil
}
