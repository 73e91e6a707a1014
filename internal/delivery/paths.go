package delivery

import (
	"context"
	"fmt"
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	storageRoot     = "reports"
	filenamePrefix  = "DISC-rapport"
	defaultFilename = filenamePrefix + ".pdf"
	fallbackSlug    = "rapport"
	maxSlugLen      = 80

	// MaxPathSuffix bounds the -1, -2, ... collision suffixes UniquePath tries.
	MaxPathSuffix = 50
)

// Slug lowercases name, strips diacritics and joins the remaining
// alphanumeric runs with single hyphens. It returns "" when nothing usable is
// left.
func Slug(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, name)
	if err != nil {
		plain = name
	}

	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(plain) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	slug := b.String()
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}
	return slug
}

// StoragePath returns reports/<ownerID>/<templateVersion>/<slug>.pdf.
func StoragePath(ownerID, templateVersion, displayName string) string {
	slug := Slug(displayName)
	if slug == "" {
		slug = fallbackSlug
	}
	return path.Join(storageRoot, ownerID, templateVersion, slug+".pdf")
}

// Filename returns the download name offered to recipients.
func Filename(displayName string) string {
	slug := Slug(displayName)
	if slug == "" {
		return defaultFilename
	}
	return filenamePrefix + "-" + slug + ".pdf"
}

// withSuffix turns reports/a/b.pdf into reports/a/b-n.pdf.
func withSuffix(base string, n int) string {
	if n == 0 {
		return base
	}
	ext := path.Ext(base)
	return strings.TrimSuffix(base, ext) + fmt.Sprintf("-%d", n) + ext
}

// UniquePath returns the first of base, base-1, base-2, ... for which exists
// reports false.
func UniquePath(ctx context.Context, base string, exists func(context.Context, string) (bool, error)) (string, error) {
	p, _, err := uniquePathFrom(ctx, base, 0, exists)
	return p, err
}

func uniquePathFrom(ctx context.Context, base string, start int, exists func(context.Context, string) (bool, error)) (string, int, error) {
	for n := start; n <= MaxPathSuffix; n++ {
		candidate := withSuffix(base, n)
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", 0, fmt.Errorf("check %s: %w", candidate, err)
		}
		if !taken {
			return candidate, n, nil
		}
	}
	return "", 0, fmt.Errorf("%w: %s", ErrNoFreePath, base)
}
