package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var reportTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			return t.Format("Jan 2, 2006")
		},
	}

	templateContent, err := templateFS.ReadFile("templates/report.html")
	if err != nil {
		// Fallback to built-in template if file not found
		reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for report template rendering.
type TemplateData struct {
	Title       string
	GeneratedAt time.Time
	Books       []TemplateBook
	Notices     []TemplateNotice
}

// TemplateBook is one catalogue row.
type TemplateBook struct {
	Title    string
	Author   string
	Reserved bool
	Holder   string
	DueDate  time.Time
}

// TemplateNotice is one notice row.
type TemplateNotice struct {
	Title   string
	Content string
	Date    string
}

// RenderReportHTML renders the report template with the provided data.
func RenderReportHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load.
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.5; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    table { width: 100%; border-collapse: collapse; }
    th, td { text-align: left; padding: 0.4rem 0.6rem; border-bottom: 1px solid #ddd; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .notice { background: #f5f5f5; padding: 1rem; margin: 1rem 0; border-left: 3px solid #333; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">Generated {{formatDate .GeneratedAt}}</div>
  <table>
    <tr><th>Title</th><th>Author</th><th>Status</th><th>Due</th></tr>
    {{range .Books}}
    <tr>
      <td>{{.Title}}</td>
      <td>{{.Author}}</td>
      <td>{{if .Reserved}}Reserved by {{.Holder}}{{else}}Available{{end}}</td>
      <td>{{if .Reserved}}{{formatDate .DueDate}}{{end}}</td>
    </tr>
    {{end}}
  </table>
  {{if .Notices}}
  <h2>Notices</h2>
  {{range .Notices}}<div class="notice"><strong>{{.Title}}</strong> ({{.Date}})<br>{{.Content}}</div>{{end}}
  {{end}}
</body>
</html>`
