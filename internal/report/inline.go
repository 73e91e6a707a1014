package report

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	cssURLRe = regexp.MustCompile(`url\(([^)]+)\)`)
	imgSrcRe = regexp.MustCompile(`(?i)<img\b[^>]*\bsrc=("([^"]+)"|'([^']+)')[^>]*>`)
)

var mimeByExt = map[string]string{
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".webp":  "image/webp",
	".svg":   "image/svg+xml",
	".ttf":   "font/ttf",
	".otf":   "font/otf",
	".woff":  "font/woff",
	".woff2": "font/woff2",
}

var fontExts = map[string]bool{".ttf": true, ".otf": true, ".woff": true, ".woff2": true}

// isExternalRef reports whether a reference is left untouched by inlining.
func isExternalRef(ref string) bool {
	lower := strings.ToLower(strings.TrimSpace(ref))
	for _, p := range []string{"data:", "http://", "https://", "about:", "#", "blob:"} {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// mimeFor picks a content type from the extension, sniffing the bytes when
// the extension is unknown.
func mimeFor(name string, data []byte) string {
	if m, ok := mimeByExt[strings.ToLower(path.Ext(name))]; ok {
		return m
	}
	return mimetype.Detect(data).String()
}

func dataURI(name string, data []byte) string {
	return "data:" + mimeFor(name, data) + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ValidateFont rejects files that are not OpenType/TrueType fonts. Missing
// fonts served as HTML error pages are the usual failure.
func ValidateFont(name string, data []byte) error {
	ext := strings.ToLower(path.Ext(name))
	if ext != ".ttf" && ext != ".otf" {
		return nil
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '<' {
		return fmt.Errorf("%w: %s looks like html", ErrInvalidFont, name)
	}
	if len(data) < 4 {
		return fmt.Errorf("%w: %s is truncated", ErrInvalidFont, name)
	}
	header := data[:4]
	if bytes.Equal(header, []byte("OTTO")) || bytes.Equal(header, []byte{0x00, 0x01, 0x00, 0x00}) {
		return nil
	}
	return fmt.Errorf("%w: %s has header %x", ErrInvalidFont, name, header)
}

// cleanRef strips quotes, query strings and fragments and unescapes the path.
func cleanRef(raw string) string {
	ref := strings.TrimSpace(raw)
	ref = strings.Trim(ref, `"'`)
	if i := strings.IndexAny(ref, "?#"); i > 0 {
		ref = ref[:i]
	}
	if unescaped, err := url.PathUnescape(ref); err == nil {
		ref = unescaped
	}
	return ref
}

// InlineCSS replaces every relative url() in css with a data URI. cssPath is
// the stylesheet's location inside the templates FS.
func (t *Templates) InlineCSS(css, cssPath string) (string, error) {
	baseDir := path.Dir(cssPath)
	var firstErr error

	out := cssURLRe.ReplaceAllStringFunc(css, func(match string) string {
		if firstErr != nil {
			return match
		}
		inner := cssURLRe.FindStringSubmatch(match)[1]
		trimmed := strings.TrimSpace(inner)
		if isExternalRef(strings.Trim(trimmed, `"'`)) {
			return match
		}
		quote := ""
		if len(trimmed) > 0 && (trimmed[0] == '"' || trimmed[0] == '\'') {
			quote = trimmed[:1]
		}

		ref := cleanRef(trimmed)
		name := path.Base(ref)
		data, ok := t.readTemplateFile(path.Join(baseDir, ref))
		if !ok && fontExts[strings.ToLower(path.Ext(name))] {
			_, data, ok = t.sharedFont(name)
		}
		if !ok {
			firstErr = fmt.Errorf("%w: css url %s (from %s)", ErrMissingAsset, ref, cssPath)
			return match
		}
		if err := ValidateFont(name, data); err != nil {
			firstErr = err
			return match
		}
		return "url(" + quote + dataURI(name, data) + quote + ")"
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// InlineImages replaces relative <img src> references in html with data URIs.
// htmlPath is the page's location inside the templates FS.
func (t *Templates) InlineImages(html, htmlPath string) (string, error) {
	baseDir := path.Dir(htmlPath)
	var firstErr error

	out := imgSrcRe.ReplaceAllStringFunc(html, func(tag string) string {
		if firstErr != nil {
			return tag
		}
		m := imgSrcRe.FindStringSubmatch(tag)
		src := m[2]
		if src == "" {
			src = m[3]
		}
		if isExternalRef(src) {
			return tag
		}

		ref := cleanRef(src)
		name := path.Base(ref)
		data, ok := t.readTemplateFile(path.Join(baseDir, ref))
		if !ok {
			_, data, ok = t.imageFromAnyTemplate(name)
		}
		if !ok {
			firstErr = fmt.Errorf("%w: img %s (from %s)", ErrMissingAsset, ref, htmlPath)
			return tag
		}
		return strings.Replace(tag, m[1], m[1][:1]+dataURI(name, data)+m[1][:1], 1)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}
