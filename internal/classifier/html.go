package classifier

import (
	_ "embed"
	"html/template"
	"io"
)

//go:embed static/index.html
var indexHTML string

//go:embed static/app.css
var appCSS []byte

//go:embed static/app.js
var appJS []byte

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

// page is the template data for index.html
type page struct {
	View
	AppVersion string
	// ImageSrc is built from base64 we encoded ourselves
	ImageSrc template.URL
}

func renderIndex(w io.Writer, view View, version string) error {
	p := page{View: view, AppVersion: version}
	if view.Image != nil {
		p.ImageSrc = template.URL(view.Image.DataURI)
	}
	return indexTemplate.Execute(w, p)
}
