package ingestion

import (
	"archive/zip"
	"encoding/csv"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/xuri/excelize/v2"
)

// table is a file read as a header row plus string cells. Every row has one cell per
// column.
type table struct {
	columns []string
	rows    [][]string
}

func (t *table) column(name string) int {
	for i, c := range t.columns {
		if c == name {
			return i
		}
	}
	return -1
}

func newTable(header []string, body [][]string) *table {
	t := &table{columns: make([]string, len(header))}
	for i, h := range header {
		t.columns[i] = strings.TrimSpace(h)
		if t.columns[i] == "" {
			t.columns[i] = fmt.Sprintf("Unnamed: %d", i)
		}
	}
	for _, r := range body {
		row := make([]string, len(t.columns))
		for i := 0; i < len(row) && i < len(r); i++ {
			row[i] = cleanCell(r[i])
		}
		t.rows = append(t.rows, row)
	}
	return t
}

func readExcel(path string) (*table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return &table{}, nil
	}
	return newTable(rows[0], rows[1:]), nil
}

func readCSV(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return &table{}, nil
	}
	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return newTable(header, records[1:]), nil
}

// readWord turns each non-empty paragraph of a .docx file into a row with columns
// "text" and "paragraph_id".
func readWord(path string) (*table, error) {
	paragraphs, err := docxParagraphs(path)
	if err != nil {
		return nil, err
	}
	body := make([][]string, len(paragraphs))
	for i, p := range paragraphs {
		body[i] = []string{p, strconv.Itoa(i)}
	}
	return newTable([]string{"text", "paragraph_id"}, body), nil
}

func docxParagraphs(path string) ([]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer r.Close()

	var docFile *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, errors.New("word/document.xml not found in archive")
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var paragraphs []string
	var current strings.Builder
	var inParagraph, inText bool

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inParagraph = true
				current.Reset()
			case "t":
				inText = inParagraph
			case "tab":
				if inParagraph {
					current.WriteByte('\t')
				}
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				inParagraph = false
				if text := strings.TrimSpace(current.String()); text != "" {
					paragraphs = append(paragraphs, text)
				}
			}
		}
	}
	return paragraphs, nil
}

var (
	markupPattern     = regexp.MustCompile(`<[a-zA-Z/!][^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// cleanCell strips HTML markup from cells exported from web tools; plain text passes
// through trimmed.
func cleanCell(s string) string {
	s = strings.TrimSpace(s)
	if !markupPattern.MatchString(s) {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	doc.Find("script, style").Each(func(_ int, sel *goquery.Selection) {
		sel.Remove()
	})
	text := whitespacePattern.ReplaceAllString(doc.Text(), " ")
	return strings.TrimSpace(text)
}
