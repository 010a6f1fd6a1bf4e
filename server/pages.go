package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"path"

	"github.com/cyclopcam/visiondemo/pkg/www"
)

//go:embed templates
var templateFS embed.FS

const (
	pageImagePrediction = "image-prediction.html"
	pageVideoDetection  = "video-object-detection.html"
)

var templateFuncs = template.FuncMap{
	"fixed1": func(v float64) string { return fmt.Sprintf("%.1f", v) },
	"fixed2": func(v float64) string { return fmt.Sprintf("%.2f", v) },
}

// Each page is parsed together with the shared layout
func loadPages() (map[string]*template.Template, error) {
	pages := map[string]*template.Template{}
	for _, name := range []string{pageImagePrediction, pageVideoDetection} {
		t, err := template.New(name).Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", path.Join("templates", name))
		if err != nil {
			return nil, fmt.Errorf("Failed to parse template %v: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}

// render executes the page into a buffer first, so that a template error
// produces a clean 500 instead of half a page.
func (s *Server) render(w http.ResponseWriter, code int, page string, data any) {
	t := s.pages[page]
	if t == nil {
		www.PanicServerErrorf("Unknown page %v", page)
	}
	buf := bytes.Buffer{}
	www.Check(t.ExecuteTemplate(&buf, "layout", data))
	www.CacheNever(w)
	www.SendHTML(w, code, buf.Bytes())
}

// ModelChoice is one entry of a model <select>
type ModelChoice struct {
	Name      string
	Installed bool
	Selected  bool
}

func (s *Server) modelChoices(names []string, installed []bool, selected string) []ModelChoice {
	choices := make([]ModelChoice, len(names))
	for i := range names {
		choices[i] = ModelChoice{
			Name:      names[i],
			Installed: installed[i],
			Selected:  names[i] == selected,
		}
	}
	return choices
}
