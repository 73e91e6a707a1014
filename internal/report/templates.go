package report

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// PublicationFiles are the template pages in print order.
var PublicationFiles = []string{
	"publication.html",
	"publication-1.html",
	"publication-2.html",
	"publication-3.html",
	"publication-4.html",
	"publication-5.html",
	"publication-6.html",
	"publication-7.html",
	"publication-8.html",
}

// PageCount is the number of pages every report has.
var PageCount = len(PublicationFiles)

const (
	resourcesDir   = "publication-web-resources"
	stylesheetPath = resourcesDir + "/css/idGeneratedStyles.css"
	printCSSName   = "report-print.css"
	fontsDir       = "fonts"
)

// Templates gives read access to the profile templates and the shared assets.
// Templates is rooted at the directory holding one folder per profile code
// (or legacy "1 <CODE> Basis profiel ..." folders); Assets holds
// report-print.css and the fonts directory.
type Templates struct {
	Templates fs.FS
	Assets    fs.FS
}

// ProfileDir resolves the folder for a profile code.
func (t *Templates) ProfileDir(code string) (string, error) {
	if info, err := fs.Stat(t.Templates, path.Join(code, resourcesDir)); err == nil && info.IsDir() {
		return code, nil
	}
	entries, err := fs.ReadDir(t.Templates, ".")
	if err != nil {
		return "", fmt.Errorf("%w: list templates: %v", ErrTemplateNotFound, err)
	}
	prefix := "1 " + code + " "
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			return e.Name(), nil
		}
	}
	return "", fmt.Errorf("%w: no template folder for profile %s", ErrTemplateNotFound, code)
}

// PagePath returns the FS path of a page file.
func (t *Templates) PagePath(dir, file string) string {
	return path.Join(dir, resourcesDir, "html", file)
}

// ReadPage reads one template page.
func (t *Templates) ReadPage(dir, file string) (string, string, error) {
	p := t.PagePath(dir, file)
	data, err := fs.ReadFile(t.Templates, p)
	if err != nil {
		return "", p, fmt.Errorf("%w: %s: %v", ErrTemplateNotFound, p, err)
	}
	return string(data), p, nil
}

// ReadStylesheet reads the profile's generated stylesheet.
func (t *Templates) ReadStylesheet(dir string) (string, string, error) {
	p := path.Join(dir, stylesheetPath)
	data, err := fs.ReadFile(t.Templates, p)
	if err != nil {
		return "", p, fmt.Errorf("%w: %s: %v", ErrTemplateNotFound, p, err)
	}
	return string(data), p, nil
}

// ReadPrintCSS reads the shared print stylesheet. It is optional.
func (t *Templates) ReadPrintCSS() (string, error) {
	if t.Assets == nil {
		return "", nil
	}
	data, err := fs.ReadFile(t.Assets, printCSSName)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read %s: %w", printCSSName, err)
	}
	return string(data), nil
}

// readTemplateFile reads a path relative to the templates root.
func (t *Templates) readTemplateFile(p string) ([]byte, bool) {
	if !fs.ValidPath(p) {
		return nil, false
	}
	data, err := fs.ReadFile(t.Templates, p)
	if err != nil {
		return nil, false
	}
	return data, true
}

// sharedFont looks a font file up in the shared fonts directory.
func (t *Templates) sharedFont(name string) (string, []byte, bool) {
	if t.Assets == nil {
		return "", nil, false
	}
	p := path.Join(fontsDir, name)
	data, err := fs.ReadFile(t.Assets, p)
	if err != nil {
		return "", nil, false
	}
	return p, data, true
}

// imageFromAnyTemplate searches every template's image folder for name.
func (t *Templates) imageFromAnyTemplate(name string) (string, []byte, bool) {
	entries, err := fs.ReadDir(t.Templates, ".")
	if err != nil {
		return "", nil, false
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p := path.Join(e.Name(), resourcesDir, "image", name)
		if data, ok := t.readTemplateFile(p); ok {
			return p, data, true
		}
	}
	return "", nil, false
}
