// Package export turns a finished analysis into downloadable files. Every file is written
// to the export directory and belongs to the caller, who removes it after transfer.
package export

import (
	"archive/zip"
	"context"
	"fmt"
	"html/template"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/apperr"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/metrics"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/visualization"
)

const (
	KindVisualizations = "visualizations"
	KindAnnotatedData  = "annotated_data"
	KindTopicDetails   = "topic_details"

	ContentTypeZip  = "application/zip"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeText = "text/plain; charset=utf-8"

	// tempPrefix starts every file the packager writes; the sweeper matches on it.
	tempPrefix = "bertopic-export-"
)

// Artifact is a written export file. Filename is the suggested download name.
type Artifact struct {
	Path        string
	Filename    string
	ContentType string
}

type archiveFile struct {
	Name string
	Body string
}

type Packager struct {
	dir          string
	logger       *zap.Logger
	now          func() time.Time
	writeArchive func(w io.Writer, files []archiveFile) error
}

func NewPackager(dir string, logger *zap.Logger) (*Packager, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Packager{dir: dir, logger: logger, now: time.Now, writeArchive: writeZip}, nil
}

func (p *Packager) Dir() string { return p.dir }

func (p *Packager) filename(kind, ext string) string {
	return fmt.Sprintf("BERTopic_%s_%s.%s", kind, p.now().Format("20060102_150405"), ext)
}

// create opens a new file in the export directory and hands it to write. The file is
// removed if write fails.
func (p *Packager) create(ext string, write func(f *os.File) error) (string, error) {
	f, err := os.CreateTemp(p.dir, tempPrefix+"*."+ext)
	if err != nil {
		return "", err
	}
	path := f.Name()
	werr := write(f)
	cerr := f.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(path)
		return "", werr
	}
	return path, nil
}

func (p *Packager) fail(kind string, err error) error {
	metrics.ExportsTotal.WithLabelValues(kind, "error").Inc()
	p.logger.Error("Export failed", zap.String("kind", kind), zap.Error(err))
	return &apperr.ExportError{Kind: kind, Err: err}
}

// Visualizations bundles an index page and every ok chart into a zip archive. When the
// archive cannot be written it falls back to a plain-text status summary.
func (p *Packager) Visualizations(ctx context.Context, charts map[string]visualization.Artifact) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, p.fail(KindVisualizations, err)
	}

	names := make([]string, 0, len(charts))
	for name := range charts {
		names = append(names, name)
	}
	sort.Strings(names)

	var links []indexLink
	var files []archiveFile
	for _, name := range names {
		a := charts[name]
		if !a.OK() || a.HTML == "" {
			continue
		}
		file := safeName(name) + ".html"
		links = append(links, indexLink{File: file, Title: title(name)})
		files = append(files, archiveFile{Name: file, Body: a.HTML})
	}

	var index strings.Builder
	if err := indexTemplate.Execute(&index, indexPage{Generated: p.now().Format("2006-01-02 15:04:05"), Links: links}); err != nil {
		return nil, p.fail(KindVisualizations, err)
	}
	files = append([]archiveFile{{Name: "index.html", Body: index.String()}}, files...)

	path, err := p.create("zip", func(f *os.File) error { return p.writeArchive(f, files) })
	if err == nil {
		metrics.ExportsTotal.WithLabelValues(KindVisualizations, "ok").Inc()
		return &Artifact{Path: path, Filename: p.filename("Visualizations", "zip"), ContentType: ContentTypeZip}, nil
	}

	p.logger.Warn("Archive export failed, writing text summary", zap.Error(err))
	path, err = p.create("txt", func(f *os.File) error {
		_, err := io.WriteString(f, p.summary(names, charts))
		return err
	})
	if err != nil {
		return nil, p.fail(KindVisualizations, err)
	}
	metrics.ExportsTotal.WithLabelValues(KindVisualizations, "fallback").Inc()
	return &Artifact{Path: path, Filename: p.filename("Visualizations", "txt"), ContentType: ContentTypeText}, nil
}

func (p *Packager) summary(names []string, charts map[string]visualization.Artifact) string {
	var b strings.Builder
	b.WriteString("BERTopic Analysis Results\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", p.now().Format("2006-01-02 15:04:05"))
	b.WriteString("Visualizations:\n")
	for _, name := range names {
		status := "failed"
		if charts[name].OK() {
			status = "ok"
		}
		fmt.Fprintf(&b, "- %s: %s\n", name, status)
	}
	return b.String()
}

func writeZip(w io.Writer, files []archiveFile) error {
	zw := zip.NewWriter(w)
	for _, f := range files {
		fw, err := zw.Create(f.Name)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(fw, f.Body); err != nil {
			return err
		}
	}
	return zw.Close()
}

func safeName(name string) string {
	return strings.NewReplacer(" ", "_", "/", "_", "\\", "_").Replace(name)
}

func title(name string) string {
	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ") + " Visualization"
}

type indexLink struct {
	File  string
	Title string
}

type indexPage struct {
	Generated string
	Links     []indexLink
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>BERTopic Visualization Results</title>
<style>
body { font-family: Arial, sans-serif; margin: 40px; }
h1 { color: #333; }
.viz-link { display: block; margin: 10px 0; padding: 10px; background: #f5f5f5; border-radius: 5px; text-decoration: none; color: #333; }
.viz-link:hover { background: #e0e0e0; }
</style>
</head>
<body>
<h1>BERTopic Analysis Results</h1>
<p>Generated on: {{.Generated}}</p>
<h2>Available Visualizations:</h2>
{{- range .Links}}
<a href="{{.File}}" class="viz-link">{{.Title}}</a>
{{- end}}
</body>
</html>
`))
