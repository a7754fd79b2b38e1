package render

import (
	"fmt"
	"html/template"
	"strings"
)

// ArtifactPage is the data for a single-artifact PDF.
type ArtifactPage struct {
	Title      string
	ClientName string
	Horizon    string
	Content    string
}

// BundlePage is the data for the full serious-plan PDF.
type BundlePage struct {
	ClientName string
	Horizon    string
	Letter     string
	Artifacts  []ArtifactPage
}

const pageStyle = `
body { font-family: Georgia, serif; color: #1f2430; margin: 48px 56px; }
h1 { font-size: 26px; border-bottom: 2px solid #2b4c7e; padding-bottom: 8px; }
h2 { font-size: 19px; color: #2b4c7e; margin-top: 32px; }
.meta { color: #6a7280; font-size: 13px; margin-bottom: 28px; }
.content { line-height: 1.55; white-space: pre-wrap; }
.letter { font-style: italic; background: #f4f6fa; padding: 20px; border-radius: 6px; }
.artifact { page-break-before: always; }
.artifact:first-of-type { page-break-before: avoid; }
`

var artifactTmpl = template.Must(template.New("artifact").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><style>` + pageStyle + `</style></head>
<body>
<h1>{{.Title}}</h1>
<div class="meta">Prepared for {{if .ClientName}}{{.ClientName}}{{else}}you{{end}}{{if .Horizon}} &middot; {{.Horizon}} plan{{end}}</div>
<div class="content">{{.Content}}</div>
</body></html>
`))

var bundleTmpl = template.Must(template.New("bundle").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><style>` + pageStyle + `</style></head>
<body>
<h1>Your Serious Plan</h1>
<div class="meta">Prepared for {{if .ClientName}}{{.ClientName}}{{else}}you{{end}}{{if .Horizon}} &middot; {{.Horizon}} plan{{end}}</div>
{{if .Letter}}<div class="letter content">{{.Letter}}</div>{{end}}
{{range .Artifacts}}
<div class="artifact">
<h2>{{.Title}}</h2>
<div class="content">{{.Content}}</div>
</div>
{{end}}
</body></html>
`))

// ArtifactHTML builds the HTML document for a single artifact.
func ArtifactHTML(page ArtifactPage) (string, error) {
	var sb strings.Builder
	if err := artifactTmpl.Execute(&sb, page); err != nil {
		return "", fmt.Errorf("render artifact html: %w", err)
	}
	return sb.String(), nil
}

// BundleHTML builds the HTML document for the whole plan bundle.
func BundleHTML(page BundlePage) (string, error) {
	var sb strings.Builder
	if err := bundleTmpl.Execute(&sb, page); err != nil {
		return "", fmt.Errorf("render bundle html: %w", err)
	}
	return sb.String(), nil
}

// HumanHorizon maps the stored horizon value to display text.
func HumanHorizon(horizon string) string {
	switch horizon {
	case "30_days":
		return "30-day"
	case "60_days":
		return "60-day"
	case "90_days":
		return "90-day"
	case "6_months":
		return "6-month"
	}
	return ""
}
