package manifest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"disc-report/internal/report"
)

func TestPxToPDF(t *testing.T) {
	t.Parallel()

	got := PxToPDF(PxRect{Top: 100, Left: 40, Width: 200, Height: 20})
	want := Rect{X: 30, Y: 751.89, W: 150, H: 15}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("PxToPDF mismatch (-want +got):\n%s", diff)
	}

	got = PxToPDF(PxRect{Top: 2, Left: 0.333, Width: 10.001, Height: 4})
	want = Rect{X: 0.25, Y: 837.39, W: 7.5, H: 3}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("PxToPDF rounding mismatch (-want +got):\n%s", diff)
	}
}

func TestStyleToPDF(t *testing.T) {
	t.Parallel()

	got := StyleToPDF(PxStyle{FontFamily: "Raleway", FontSizePx: 16, LetterSpacingPx: 2, Color: "rgb(0, 0, 0)"})
	want := &TextStyle{FontFamily: "Raleway", FontSize: 12, LetterSpacing: 1.5, Color: "rgb(0, 0, 0)"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("StyleToPDF mismatch (-want +got):\n%s", diff)
	}
}

func writeProfile(t *testing.T, root, folder string, pages []string) {
	t.Helper()
	dir := filepath.Join(root, folder, "publication-web-resources", "html")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, p := range pages {
		if err := os.WriteFile(filepath.Join(dir, p), []byte("<html></html>"), 0o644); err != nil {
			t.Fatalf("write page: %v", err)
		}
	}
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeProfile(t, root, "DC", report.PublicationFiles)
	writeProfile(t, root, "1 is Basis profiel plus The Lean Communication", report.PublicationFiles)
	writeProfile(t, root, "SC", report.PublicationFiles[:5])
	writeProfile(t, root, "Teamgrid", report.PublicationFiles)
	if err := os.WriteFile(filepath.Join(root, "README.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	profiles, err := Discover(root)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	var codes []string
	for _, p := range profiles {
		codes = append(codes, p.Code)
	}
	if diff := cmp.Diff([]string{"DC", "IS"}, codes); diff != "" {
		t.Fatalf("codes mismatch (-want +got):\n%s", diff)
	}
	if !strings.HasPrefix(profiles[0].PageURL(2), "file://") || !strings.HasSuffix(profiles[0].PageURL(2), "/DC/publication-web-resources/html/publication-2.html") {
		t.Fatalf("unexpected page url %q", profiles[0].PageURL(2))
	}

	only, err := Filter(profiles, []string{"is"})
	if err != nil || len(only) != 1 || only[0].Code != "IS" {
		t.Fatalf("Filter = %+v, %v", only, err)
	}
	if _, err := Filter(profiles, []string{"CS"}); err == nil {
		t.Fatalf("expected error for profile without templates")
	}
	if _, err := Filter(profiles, []string{"XX"}); err == nil {
		t.Fatalf("expected error for invalid code")
	}
}

func TestDiscoverEmpty(t *testing.T) {
	t.Parallel()

	_, err := Discover(t.TempDir())
	if !errors.Is(err, ErrNoProfiles) {
		t.Fatalf("expected ErrNoProfiles, got %v", err)
	}
}

type fakeMeasurer struct {
	mu    sync.Mutex
	pages map[string]PageMeasurement
	fail  map[string]error
	calls []string
}

func (f *fakeMeasurer) MeasurePage(_ context.Context, fileURL string) (PageMeasurement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fileURL)
	for suffix, err := range f.fail {
		if strings.HasSuffix(fileURL, suffix) {
			return PageMeasurement{}, err
		}
	}
	for suffix, pm := range f.pages {
		if strings.HasSuffix(fileURL, suffix) {
			return pm, nil
		}
	}
	return PageMeasurement{}, nil
}

func el(top, left, w, h float64) Element {
	return Element{Rect: PxRect{Top: top, Left: left, Width: w, Height: h}}
}

func percentGroup(top float64) []Element {
	// Deliberately out of order; the builder sorts by top.
	return []Element{el(top+60, 500, 30, 12), el(top, 500, 30, 12), el(top+40, 500, 30, 12), el(top+20, 500, 30, 12)}
}

func fullPages(code string) map[string]PageMeasurement {
	styled := el(200, 100, 300, 24)
	styled.Style = &PxStyle{FontFamily: "Raleway", FontSizePx: 24}
	return map[string]PageMeasurement{
		code + "/publication-web-resources/html/publication.html": {
			Anchors: map[string]Element{"Naam": styled},
		},
		code + "/publication-web-resources/html/publication-1.html": {
			Anchors: map[string]Element{
				"Datum": el(100, 80, 120, 16),
				"Stijl": el(100, 220, 40, 16),
				"Naam":  el(140, 80, 200, 16),
			},
		},
		code + "/publication-web-resources/html/publication-2.html": {
			Chart:            &Element{Rect: PxRect{Top: 300, Left: 100, Width: 400, Height: 400}},
			PercentageGroups: [][]Element{percentGroup(800), percentGroup(300)},
		},
	}
}

func TestBuilderWritesManifests(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	out := t.TempDir()
	writeProfile(t, root, "DC", report.PublicationFiles)
	writeProfile(t, root, "SI", report.PublicationFiles)
	profiles, err := Discover(root)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	pages := fullPages("DC")
	// SI lacks the chart and the name anchor.
	pages["SI/publication-web-resources/html/publication-1.html"] = PageMeasurement{
		Anchors: map[string]Element{"Voornaam": el(10, 10, 50, 10)},
	}
	m := &fakeMeasurer{pages: pages}
	b := &Builder{
		Measurer:    m,
		OutputDir:   out,
		Logger:      zap.NewNop(),
		Concurrency: 2,
		Now:         func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) },
	}
	rep, err := b.Build(context.Background(), profiles)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if diff := cmp.Diff([]string{Path(out, "DC"), Path(out, "SI")}, rep.Written); diff != "" {
		t.Fatalf("written mismatch (-want +got):\n%s", diff)
	}
	if len(rep.Failures) != 0 {
		t.Fatalf("unexpected failures: %+v", rep.Failures)
	}
	wantWarnings := []Warning{
		{Profile: "SI", Field: "chart", Message: "required field not found"},
		{Profile: "SI", Field: "name", Message: "required field not found"},
		{Profile: "SI", Field: "natural", Message: "percentage container not found"},
		{Profile: "SI", Field: "response", Message: "percentage container not found"},
	}
	if diff := cmp.Diff(wantWarnings, rep.Warnings); diff != "" {
		t.Fatalf("warnings mismatch (-want +got):\n%s", diff)
	}

	dc, err := Load(out, "dc")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if dc.TemplateVersion != "2026-03-02" || dc.Pages != PageCount {
		t.Fatalf("unexpected header %+v", dc)
	}
	wantNames := []string{
		"chart", "date", "firstName", "name",
		"naturalC", "naturalD", "naturalI", "naturalS",
		"responseC", "responseD", "responseI", "responseS",
		"style",
	}
	if diff := cmp.Diff(wantNames, dc.FieldNames()); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
	wantName := Field{
		PageIndex: 0,
		Rect:      Rect{X: 75, Y: 673.89, W: 225, H: 18},
		Source:    SourceDBF,
		Style:     &TextStyle{FontFamily: "Raleway", FontSize: 18},
	}
	if diff := cmp.Diff(wantName, dc.Fields[FieldName]); diff != "" {
		t.Fatalf("name mismatch (-want +got):\n%s", diff)
	}
	// firstName falls back to the Naam anchor on page 1.
	if f := dc.Fields[FieldFirstName]; f.PageIndex != 1 || f.Rect.Y != PxToPDF(PxRect{Top: 140, Height: 16}).Y {
		t.Fatalf("unexpected firstName %+v", f)
	}
	// Upper container is natural, D is the topmost value.
	if got := dc.Fields["naturalD"].Rect; got != PxToPDF(el(300, 500, 30, 12).Rect) {
		t.Fatalf("naturalD = %+v", got)
	}
	if got := dc.Fields["responseC"].Rect; got != PxToPDF(el(860, 500, 30, 12).Rect) {
		t.Fatalf("responseC = %+v", got)
	}
	if dc.Fields[FieldChart].Source != SourceSelector || dc.Fields["naturalS"].Source != SourcePercentage {
		t.Fatalf("unexpected sources %+v", dc.Fields)
	}

	si, err := Load(out, "SI")
	if err != nil {
		t.Fatalf("Load SI: %v", err)
	}
	if diff := cmp.Diff([]string{"chart", "name"}, si.Missing()); diff != "" {
		t.Fatalf("missing mismatch (-want +got):\n%s", diff)
	}
}

func TestBuilderContinuesAfterMeasureError(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	out := t.TempDir()
	writeProfile(t, root, "C", report.PublicationFiles)
	writeProfile(t, root, "D", report.PublicationFiles)
	profiles, err := Discover(root)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	m := &fakeMeasurer{
		pages: fullPages("D"),
		fail:  map[string]error{"C/publication-web-resources/html/publication-1.html": errors.New("boom")},
	}
	b := &Builder{Measurer: m, OutputDir: out, TemplateVersion: "v1", Logger: zap.NewNop()}
	rep, err := b.Build(context.Background(), profiles)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if diff := cmp.Diff([]string{Path(out, "D")}, rep.Written); diff != "" {
		t.Fatalf("written mismatch (-want +got):\n%s", diff)
	}
	if len(rep.Failures) != 1 || rep.Failures[0].Profile != "C" || !strings.Contains(rep.Failures[0].Error, "boom") {
		t.Fatalf("unexpected failures %+v", rep.Failures)
	}
	if _, err := os.Stat(Path(out, "C")); !os.IsNotExist(err) {
		t.Fatalf("expected no manifest for C, stat err %v", err)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cases := map[string]string{
		"DC": `{"templateVersion":"v1","profileCode":"DC","pages":8,"fields":{}}`,
		"SC": `{"templateVersion":"v1","profileCode":"SC","pages":9,"fields":{"bogus":{"pageIndex":0,"rect":{"x":0,"y":0,"w":1,"h":1},"source":"DBF"}}}`,
		"CS": `{"templateVersion":"v1","profileCode":"CS","pages":9,"fields":{"name":{"pageIndex":12,"rect":{"x":0,"y":0,"w":1,"h":1},"source":"DBF"}}}`,
		"ID": `{"templateVersion":"v1","profileCode":"DI","pages":9,"fields":{}}`,
	}
	for code, body := range cases {
		if err := os.WriteFile(Path(dir, code), []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	for code := range cases {
		if _, err := Load(dir, code); !errors.Is(err, ErrInvalidManifest) {
			t.Fatalf("%s: expected ErrInvalidManifest, got %v", code, err)
		}
	}
	if _, err := Load(dir, "XX"); !errors.Is(err, ErrInvalidManifest) {
		t.Fatalf("expected ErrInvalidManifest for bad code, got %v", err)
	}
}

func TestWriteRejectsInvalid(t *testing.T) {
	t.Parallel()

	_, err := Write(t.TempDir(), Manifest{TemplateVersion: "v1", ProfileCode: "DC", Pages: 3, Fields: map[string]Field{}})
	if !errors.Is(err, ErrInvalidManifest) {
		t.Fatalf("expected ErrInvalidManifest, got %v", err)
	}
}
