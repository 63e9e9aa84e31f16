package render

import (
	"io/fs"
	"net/http"
	"path/filepath"

	"github.com/gofiber/template/html/v2"
)

// NewViewEngine returns the page engine used by fiber. Pages are loaded from
// tmplDir/pages when a template directory is configured, otherwise from the
// embedded copies.
func NewViewEngine(tmplDir string) *html.Engine {
	if tmplDir != "" {
		return html.New(filepath.Join(tmplDir, "pages"), ".html")
	}
	pages, err := fs.Sub(embedFS, "templates/pages")
	if err != nil {
		panic(err)
	}
	return html.NewFileSystem(http.FS(pages), ".html")
}
