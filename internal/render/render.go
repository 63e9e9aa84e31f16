package render

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/valyala/bytebufferpool"
)

//go:embed templates/pages/*.html templates/mail/*.html
var embedFS embed.FS
var embedTemplate *template.Template
var templateDir string
var globalVars map[string]interface{}

func Initialize(gVars map[string]interface{}, tmplDir string) error {
	globalVars = gVars
	if tmplDir != "" {
		info, err := os.Stat(tmplDir)
		if err != nil {
			return fmt.Errorf("template directory does not exist: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("template path is not a directory: %s", tmplDir)
		}
		templateDir = tmplDir
	}
	return initEmbeddedTemplates()
}

// initEmbeddedTemplates parses the embedded mail templates, named by their
// path relative to templates/ (e.g. "mail/security-alert.html").
func initEmbeddedTemplates() error {
	t := template.New("")
	err := fs.WalkDir(embedFS, "templates/mail", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".html") {
			return nil
		}
		content, err := embedFS.ReadFile(path)
		if err != nil {
			return err
		}
		_, err = t.New(strings.TrimPrefix(path, "templates/")).Parse(string(content))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to parse embedded templates: %w", err)
	}
	embedTemplate = t
	return nil
}

func mergeVars(vars map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(globalVars)+len(vars))
	for k, v := range globalVars {
		merged[k] = v
	}
	for k, v := range vars {
		merged[k] = v
	}
	return merged
}

// RenderHTML executes a standalone template, preferring a copy found in the
// configured template directory over the embedded one.
func RenderHTML(templateName string, vars map[string]interface{}) (string, error) {
	if embedTemplate == nil {
		if err := initEmbeddedTemplates(); err != nil {
			return "", err
		}
	}
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	mergedVars := mergeVars(vars)
	if !strings.HasSuffix(templateName, ".html") {
		templateName += ".html"
	}

	if templateDir != "" {
		filePath := filepath.Join(templateDir, templateName)
		if contents, err := os.ReadFile(filePath); err == nil {
			t, err := template.New(templateName).Parse(string(contents))
			if err == nil {
				if err = t.ExecuteTemplate(buf, templateName, mergedVars); err == nil {
					return buf.String(), nil
				}
			}
			buf.Reset()
			slog.Warn("Render template failed, falling back to embedded", "path", filePath, "error", err)
		}
	}

	if err := embedTemplate.ExecuteTemplate(buf, templateName, mergedVars); err != nil {
		return "", err
	}
	return buf.String(), nil
}
