package report

import (
	"fmt"
	"testing/fstest"
)

var otfFont = append([]byte("OTTO"), make([]byte, 12)...)

// fakePNG is enough for extension-based MIME selection.
var fakePNG = []byte("\x89PNG\r\n\x1a\nfake")

const chartPage = `<!DOCTYPE html>
<html><head><link href="../css/idGeneratedStyles.css" rel="stylesheet" type="text/css" /></head>
<body id="publication-2" lang="nl-NL">
<div id="_idContainer021" class="Basisafbeeldingskader"><div><img class="_idGenObjectAttribute-3" src="../image/21.png" alt="" /></div></div>
<div id="_idContainer030"><div class="_idGenObjectStyle-Disabled Basisafbeeldingskader"><img src="data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAK4AAAABCAYAAABHRpXVabc" alt="" /></div></div>
<div id="_idContainer040" class="Tekstkader"><div class="p"><p><span class="x">0%</span></p><p><span class="x">0%</span></p><p><span class="x">0%</span></p><p><span class="x">0%</span></p></div></div>
<div id="_idContainer041" class="Tekstkader"><div class="p"><p><span class="x">0%</span></p><p><span class="x">0%</span></p><p><span class="x">0%</span></p><p><span class="x">0%</span></p></div></div>
<p>Stijl: &lt;&lt;Stijl&gt;&gt;</p>
</body></html>`

func simplePage(id, content string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><link href="../css/idGeneratedStyles.css" rel="stylesheet" type="text/css" /></head>
<body id="%s">
%s
</body></html>`, id, content)
}

// fixtureTemplates builds a DI template plus a CS template that only carries
// a shared logo image.
func fixtureTemplates() *Templates {
	const res = "DI/publication-web-resources/"
	files := fstest.MapFS{
		res + "css/idGeneratedStyles.css": {Data: []byte(`@font-face { font-family: "PT Sans"; src: url("../font/PTSans-Regular.otf") format("opentype"); }
div.Basisafbeeldingskader { background-image: url('../image/bg.png'); }
.link { background: url(#frag); }`)},
		res + "image/21.png":            {Data: fakePNG},
		res + "image/bg.png":            {Data: fakePNG},
		res + "html/publication-2.html": {Data: []byte(chartPage)},
	}
	files["CS/publication-web-resources/image/logo.png"] = &fstest.MapFile{Data: fakePNG}
	for _, f := range PublicationFiles {
		if f == chartFile {
			continue
		}
		content := `<p>&lt;&lt;Naam&gt;&gt;</p>`
		switch f {
		case coverFile:
			content = `<p>&lt;&lt;Voornaam&gt;&gt;</p><p>&lt;&lt;Datum&gt;&gt;</p><p>[&lt;&lt;Stijl&gt;&gt;]</p><img src="../image/logo.png" alt="" />`
		case "publication.html":
			content = `<p><<Naam>></p>`
		}
		files[res+"html/"+f] = &fstest.MapFile{Data: []byte(simplePage("id-"+f, content))}
	}
	assets := fstest.MapFS{
		"fonts/PTSans-Regular.otf": {Data: otfFont},
		"report-print.css":         {Data: []byte(`.print-only { display: block; }`)},
	}
	return &Templates{Templates: files, Assets: assets}
}
