package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"time"

	"clothshop/internal/media"
	"clothshop/internal/models"
	"clothshop/internal/service"
)

//go:embed templates/*.html
var templateFS embed.FS

const layoutTemplate = "templates/layout.html"

// TemplateCache holds every page parsed together with the layout.
type TemplateCache struct {
	cache map[string]*template.Template
	funcs template.FuncMap
}

func NewTemplateCache() (*TemplateCache, error) {
	tc := &TemplateCache{
		cache: make(map[string]*template.Template),
		funcs: template.FuncMap{
			"price":       service.FormatPrice,
			"statusLabel": statusLabel,
			"date":        func(t time.Time) string { return t.Local().Format("02.01.2006 15:04") },
			"image":       imageURL,
			"prevPage":    func(page int) int { return page - 1 },
			"nextPage":    func(page int) int { return page + 1 },
		},
	}
	return tc, tc.load()
}

func (tc *TemplateCache) load() error {
	pages, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return err
	}
	for _, page := range pages {
		if page == layoutTemplate {
			continue
		}
		name := path.Base(page)
		tmpl, err := template.New(name).Funcs(tc.funcs).ParseFS(templateFS, layoutTemplate, page)
		if err != nil {
			slog.Error("Failed to parse template", "file", page, "error", err)
			return err
		}
		tc.cache[name] = tmpl
	}
	return nil
}

func (tc *TemplateCache) Render(w io.Writer, name string, data any) error {
	tmpl, ok := tc.cache[name]
	if !ok {
		return fmt.Errorf("template %s not found", name)
	}
	return tmpl.ExecuteTemplate(w, "layout", data)
}

// imageURL maps a stored upload path to its public URL.
func imageURL(p string) string {
	if p == "" {
		p = media.PlaceholderPath
	}
	return "/static/" + p
}

func statusLabel(status models.OrderStatus) string {
	switch status {
	case models.OrderAccepted:
		return "Принят"
	case models.OrderRejected:
		return "Отклонен"
	default:
		return "В обработке"
	}
}
