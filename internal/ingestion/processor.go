// Package ingestion reads uploaded spreadsheets, Word documents and CSV files into the
// document and timestamp sequences the analysis consumes.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/apperr"
	"github.com/EvianLUO/bertopic-analysis-tool/pkg/logger"
)

const (
	FileTypeExcel = "excel"
	FileTypeWord  = "word"
	FileTypeCSV   = "csv"

	previewRows = 10
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

// Summary describes an uploaded file before analysis. FilePath is the stored name, to
// be passed back to Resolve.
type Summary struct {
	FilePath  string              `json:"file_path"`
	FileType  string              `json:"file_type"`
	Columns   []string            `json:"columns"`
	Preview   []map[string]string `json:"preview"`
	TotalRows int                 `json:"total_rows"`
}

// Extraction is the text column with empty cells dropped, and the timestamp column
// likewise when one was requested.
type Extraction struct {
	Texts          []string `json:"texts"`
	Timestamps     []string `json:"timestamps,omitempty"`
	TotalDocuments int      `json:"total_documents"`
	TotalRows      int      `json:"total_rows"`
}

type Processor struct {
	uploadDir string
	maxSize   int64
}

func NewProcessor(uploadDir string, maxSize int64) (*Processor, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Processor{uploadDir: uploadDir, maxSize: maxSize}, nil
}

// FileType maps a file name to its reader, by extension.
func FileType(name string) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FileTypeExcel, nil
	case ".docx":
		return FileTypeWord, nil
	case ".csv":
		return FileTypeCSV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

// Save stores an upload under a generated name and returns its path. Uploads larger
// than the configured limit are rejected and removed.
func (p *Processor) Save(name string, r io.Reader) (string, error) {
	if _, err := FileType(name); err != nil {
		return "", apperr.Input("file", "%v", err)
	}

	path := filepath.Join(p.uploadDir, uuid.NewString()+strings.ToLower(filepath.Ext(name)))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}

	src := r
	if p.maxSize > 0 {
		src = io.LimitReader(r, p.maxSize+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	if p.maxSize > 0 && n > p.maxSize {
		os.Remove(path)
		return "", apperr.Input("file", "file exceeds the %d byte upload limit", p.maxSize)
	}

	logger.Info("Upload stored", zap.String("name", name), zap.String("path", path), zap.Int64("bytes", n))
	return path, nil
}

// Resolve maps a name returned by Save to its path. Absolute paths pass through.
func (p *Processor) Resolve(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(p.uploadDir, name)
}

func (p *Processor) UploadDir() string { return p.uploadDir }

// Inspect returns the columns, first rows and row count of a stored file.
func (p *Processor) Inspect(ctx context.Context, path string) (*Summary, error) {
	fileType, err := FileType(path)
	if err != nil {
		return nil, apperr.Input("file_path", "%v", err)
	}
	t, err := p.read(ctx, path, fileType)
	if err != nil {
		return nil, err
	}

	preview := make([]map[string]string, 0, min(previewRows, len(t.rows)))
	for _, row := range t.rows[:min(previewRows, len(t.rows))] {
		record := make(map[string]string, len(t.columns))
		for i, col := range t.columns {
			record[col] = row[i]
		}
		preview = append(preview, record)
	}

	return &Summary{
		FilePath:  filepath.Base(path),
		FileType:  fileType,
		Columns:   t.columns,
		Preview:   preview,
		TotalRows: len(t.rows),
	}, nil
}

// Extract reads the text column and, if named, the timestamp column. fileType may be
// empty, in which case it is derived from the extension. A timestamp column that does
// not exist is ignored.
func (p *Processor) Extract(ctx context.Context, path, textColumn, timestampColumn, fileType string) (*Extraction, error) {
	if textColumn == "" {
		return nil, apperr.Input("text_column", "text column is required")
	}
	if fileType == "" {
		var err error
		if fileType, err = FileType(path); err != nil {
			return nil, apperr.Input("file_path", "%v", err)
		}
	}

	t, err := p.read(ctx, path, fileType)
	if err != nil {
		return nil, err
	}

	textIdx := t.column(textColumn)
	if textIdx < 0 {
		return nil, apperr.Input("text_column", "column %q does not exist in the file", textColumn)
	}

	out := &Extraction{TotalRows: len(t.rows)}
	for _, row := range t.rows {
		if row[textIdx] != "" {
			out.Texts = append(out.Texts, row[textIdx])
		}
	}
	out.TotalDocuments = len(out.Texts)

	if timestampColumn != "" {
		if tsIdx := t.column(timestampColumn); tsIdx >= 0 {
			for _, row := range t.rows {
				if row[tsIdx] != "" {
					out.Timestamps = append(out.Timestamps, row[tsIdx])
				}
			}
		} else {
			logger.Warn("Timestamp column not found, ignoring", zap.String("column", timestampColumn))
		}
	}

	logger.Info("Texts extracted",
		zap.String("path", path),
		zap.Int("documents", out.TotalDocuments),
		zap.Int("rows", out.TotalRows),
	)
	return out, nil
}

func (p *Processor) read(ctx context.Context, path, fileType string) (*table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.Input("file_path", "file %q does not exist", filepath.Base(path))
		}
		return nil, err
	}

	var (
		t   *table
		err error
	)
	switch fileType {
	case FileTypeExcel:
		t, err = readExcel(path)
	case FileTypeWord:
		t, err = readWord(path)
	case FileTypeCSV:
		t, err = readCSV(path)
	default:
		return nil, apperr.Input("file_type", "unsupported file type %q", fileType)
	}
	if err != nil {
		logger.Error("Failed to read file", zap.String("path", path), zap.Error(err))
		return nil, apperr.Input("file_path", "could not read %s file: %v", fileType, err)
	}
	return t, nil
}
