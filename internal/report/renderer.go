// Package report turns a day's ranked articles into a stored artifact.
package report

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"newswatch/internal/news"
)

const reportTemplate = `<!DOCTYPE html>
<html lang="zh">
<head>
<meta charset="utf-8">
<title>{{.Keyword}} · {{.Date}}</title>
<style>
body { font-family: -apple-system, "PingFang SC", "Microsoft YaHei", sans-serif; max-width: 760px; margin: 2rem auto; color: #1a1a1a; }
h1 { font-size: 1.4rem; }
.summary { color: #555; border-left: 3px solid #ccc; padding-left: .8rem; }
.article { margin: 1.2rem 0; }
.article h2 { font-size: 1.05rem; margin-bottom: .2rem; }
.meta { font-size: .8rem; color: #888; }
.badge { font-size: .7rem; padding: .1rem .4rem; border-radius: 3px; color: #fff; }
.badge.high { background: #c0392b; }
.badge.medium { background: #d68910; }
.badge.low { background: #7f8c8d; }
</style>
</head>
<body>
<h1>{{.Keyword}} — {{.Date}}</h1>
{{if .Summary}}<p class="summary">{{.Summary}}</p>{{end}}
{{range .Articles}}
<div class="article">
<h2><a href="{{.Article.URL}}">{{.Article.Title}}</a> <span class="badge {{.Priority}}">{{.Priority}}</span></h2>
<p class="meta">{{.Article.Source}}{{if .Article.PublishedAt}} · {{.Article.PublishedAt.Format "2006-01-02 15:04"}}{{end}}</p>
{{if .Summary}}<p>{{.Summary}}</p>{{end}}
</div>
{{end}}
</body>
</html>
`

// HTMLRenderer writes one self-contained HTML file per report under a
// configured directory.
type HTMLRenderer struct {
	outputDir string
	tmpl      *template.Template
}

var _ news.Renderer = (*HTMLRenderer)(nil)

// NewHTMLRenderer parses the built-in template. outputDir is created lazily
// on first Render.
func NewHTMLRenderer(outputDir string) (*HTMLRenderer, error) {
	tmpl, err := template.New("report").Parse(reportTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse report template: %w", err)
	}
	if outputDir == "" {
		outputDir = "reports"
	}
	return &HTMLRenderer{outputDir: outputDir, tmpl: tmpl}, nil
}

type templateData struct {
	Keyword  string
	Date     string
	Summary  string
	Articles []news.RankedArticle
}

// Render writes the artifact and returns its path.
func (r *HTMLRenderer) Render(keyword, date string, articles []news.RankedArticle, summary string) (string, error) {
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}

	path := filepath.Join(r.outputDir, fmt.Sprintf("%s-%s.html", safeFileName(keyword), date))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()

	data := templateData{Keyword: keyword, Date: date, Summary: summary, Articles: articles}
	if err := r.tmpl.Execute(f, data); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return path, nil
}

// safeFileName keeps letters and digits (CJK included) and folds everything
// else into dashes so keywords cannot escape the output directory.
func safeFileName(keyword string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '-'
	}, keyword)
	mapped = strings.Trim(mapped, "-")
	if mapped == "" {
		return "report"
	}
	return mapped
}
