package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

// SafeHTML is a template function that marks a string as safe HTML
func SafeHTML(s interface{}) template.HTML {
	switch v := s.(type) {
	case string:
		return template.HTML(v)
	case template.HTML:
		return v
	default:
		return template.HTML("")
	}
}

var articleTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
		"safeHTML": SafeHTML,
		"join":     strings.Join,
	}
	articleTemplate = template.Must(template.New("article").Funcs(funcMap).Parse(articleTemplateHTML))
}

// TemplateData holds data for article template rendering
type TemplateData struct {
	Title          string
	ContentHTML    template.HTML
	Author         string
	TeamName       string
	Status         string
	WritingPurpose []string
	UpdatedAt      time.Time
}

// RenderArticleHTML renders the article template with provided data
func RenderArticleHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := articleTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const articleTemplateHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .badge { background: #eee; border-radius: 3px; padding: 0 0.4em; margin-right: 0.3em; }
    img { max-width: 100%; }
    blockquote { border-left: 3px solid #ccc; margin-left: 0; padding-left: 1rem; color: #555; }
    pre { background: #f5f5f5; padding: 1rem; overflow-x: auto; }
    table { border-collapse: collapse; }
    td, th { border: 1px solid #ccc; padding: 0.3em 0.6em; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">
    {{.TeamName}} | {{.Author}} | {{.UpdatedAt.Format "Jan 2, 2006"}}
    {{if .Status}}<span class="badge">{{.Status}}</span>{{end}}
    {{range .WritingPurpose}}<span class="badge">{{.}}</span>{{end}}
  </div>
  <div>{{.ContentHTML | safeHTML}}</div>
</body>
</html>`
