package handler

import (
	"html/template"

	"github.com/gin-gonic/gin"
)

const showAllTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Keys</title>
</head>
<body>
  <h2>Blocked keys ({{ len .Blocked }})</h2>
  <p>{{ range $i, $k := .Blocked }}{{ if $i }}<br />{{ end }}{{ $k }}{{ end }}</p>
  <h2>Unblocked keys ({{ len .Unblocked }})</h2>
  <p>{{ range $i, $k := .Unblocked }}{{ if $i }}<br />{{ end }}{{ $k }}{{ end }}</p>
  <h2>Deleted keys ({{ len .Deleted }})</h2>
  <p>{{ range $i, $k := .Deleted }}{{ if $i }}<br />{{ end }}{{ $k }}{{ end }}</p>
  <small>{{ .TakenAt.Format "2006-01-02 15:04:05 MST" }}</small>
</body>
</html>
`

// LoadTemplates регистрирует HTML-шаблоны в роутере
func LoadTemplates(r *gin.Engine) {
	r.SetHTMLTemplate(template.Must(template.New(showAllTemplateName).Parse(showAllTemplate)))
}
