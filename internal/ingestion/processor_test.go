package ingestion

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/apperr"
)

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()
	p, err := NewProcessor(t.TempDir(), 1<<20)
	require.NoError(t, err)
	return p
}

func writeWorkbook(t *testing.T, dir string, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	path := filepath.Join(dir, "reviews.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestExtract_Excel(t *testing.T) {
	p := newTestProcessor(t)
	path := writeWorkbook(t, t.TempDir(), [][]any{
		{"review", "date"},
		{"great battery life", "2024-01-01"},
		{"", "2024-01-02"},
		{"<p>screen <b>cracked</b></p>", ""},
		{"fast shipping", "2024-01-04"},
	})

	out, err := p.Extract(context.Background(), path, "review", "date", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"great battery life", "screen cracked", "fast shipping"}, out.Texts)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-04"}, out.Timestamps)
	assert.Equal(t, 3, out.TotalDocuments)
	assert.Equal(t, 4, out.TotalRows)
}

func TestExtract_MissingColumn(t *testing.T) {
	p := newTestProcessor(t)
	path := writeWorkbook(t, t.TempDir(), [][]any{{"review"}, {"ok"}})

	_, err := p.Extract(context.Background(), path, "comment", "", FileTypeExcel)
	require.Error(t, err)
	assert.True(t, apperr.IsInput(err))
	assert.Contains(t, err.Error(), `"comment"`)
}

func TestExtract_MissingFile(t *testing.T) {
	p := newTestProcessor(t)
	_, err := p.Extract(context.Background(), filepath.Join(t.TempDir(), "gone.csv"), "text", "", "")
	assert.True(t, apperr.IsInput(err))
}

func TestExtract_IgnoresUnknownTimestampColumn(t *testing.T) {
	p := newTestProcessor(t)
	path := filepath.Join(t.TempDir(), "notes.csv")
	require.NoError(t, os.WriteFile(path, []byte("\ufefftext,id\nhello,1\nworld,2\n"), 0o644))

	out, err := p.Extract(context.Background(), path, "text", "when", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "world"}, out.Texts)
	assert.Nil(t, out.Timestamps)
}

func TestInspect_Word(t *testing.T) {
	p := newTestProcessor(t)
	path := filepath.Join(t.TempDir(), "minutes.docx")

	f, err := os.Create(path)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	fw, err := w.Create("word/document.xml")
	require.NoError(t, err)
	_, err = fw.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Meeting notes</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">Budget was </w:t></w:r><w:r><w:t>approved.</w:t></w:r></w:p>
<w:p></w:p>
<w:p><w:r><w:t>Next review in May.</w:t></w:r></w:p>
</w:body>
</w:document>`))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	s, err := p.Inspect(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, FileTypeWord, s.FileType)
	assert.Equal(t, []string{"text", "paragraph_id"}, s.Columns)
	assert.Equal(t, 3, s.TotalRows)
	require.Len(t, s.Preview, 3)
	assert.Equal(t, map[string]string{"text": "Budget was approved.", "paragraph_id": "1"}, s.Preview[1])
}

func TestInspect_PreviewLimited(t *testing.T) {
	p := newTestProcessor(t)
	var b strings.Builder
	b.WriteString("text\n")
	for i := 0; i < 25; i++ {
		b.WriteString("row\n")
	}
	path := filepath.Join(t.TempDir(), "big.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))

	s, err := p.Inspect(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 25, s.TotalRows)
	assert.Len(t, s.Preview, 10)
}

func TestSave(t *testing.T) {
	p, err := NewProcessor(t.TempDir(), 8)
	require.NoError(t, err)

	path, err := p.Save("data.CSV", strings.NewReader("text\nhi\n"))
	require.NoError(t, err)
	assert.Equal(t, ".csv", filepath.Ext(path))
	assert.FileExists(t, path)

	_, err = p.Save("data.csv", strings.NewReader("text\nthis is too long\n"))
	assert.True(t, apperr.IsInput(err))

	_, err = p.Save("data.pdf", strings.NewReader("%PDF"))
	assert.True(t, apperr.IsInput(err))
}

func TestCleanCell(t *testing.T) {
	assert.Equal(t, "a < b", cleanCell("  a < b "))
	assert.Equal(t, "Hello world", cleanCell("<div>Hello<script>x()</script> <i>world</i></div>"))
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	p, err := NewProcessor(dir, 0)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "a.csv"), p.Resolve("a.csv"))
	assert.Equal(t, "/data/b.xlsx", p.Resolve("/data/./b.xlsx"))

	path, err := p.Save("notes.csv", strings.NewReader("text\nhi\n"))
	require.NoError(t, err)
	s, err := p.Inspect(context.Background(), p.Resolve(filepath.Base(path)))
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(path), s.FilePath)
}
