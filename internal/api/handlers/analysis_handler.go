package handlers

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/analysis"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/apperr"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/ingestion"
)

type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request, progress func(stage string)) (*analysis.Response, error)
}

// analyzePayload is the body of both analyze routes and of the websocket message. A
// payload names either an uploaded file and its columns or the texts themselves.
type analyzePayload struct {
	FilePath        string `json:"file_path"`
	TextColumn      string `json:"text_column"`
	TimestampColumn string `json:"timestamp_column"`
	FileType        string `json:"file_type"`

	Texts      []string `json:"texts"`
	Timestamps []string `json:"timestamps"`

	Config               map[string]any `json:"config"`
	VisualizationOptions []string       `json:"visualization_options"`
	PreprocessingConfig  map[string]any `json:"preprocessing_config"`
	Stopwords            map[string]any `json:"stopwords"`
}

type AnalysisHandler struct {
	processor *ingestion.Processor
	analyzer  Analyzer
}

func NewAnalysisHandler(processor *ingestion.Processor, analyzer Analyzer) *AnalysisHandler {
	return &AnalysisHandler{
		processor: processor,
		analyzer:  analyzer,
	}
}

// AnalyzeFile runs an analysis over a column of a previously uploaded file.
func (h *AnalysisHandler) AnalyzeFile(c *fiber.Ctx) error {
	var p analyzePayload
	if err := json.Unmarshal(c.Body(), &p); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if p.FilePath == "" {
		return failure(c, "Analysis", apperr.Input("file_path", "file_path is required"))
	}

	req, err := h.request(c.Context(), p)
	if err != nil {
		return failure(c, "Analysis", err)
	}
	resp, err := h.analyzer.Analyze(c.Context(), req, nil)
	if err != nil {
		return failure(c, "Analysis", err)
	}
	return c.JSON(resp)
}

// AnalyzeTexts runs an analysis over texts sent in the body.
func (h *AnalysisHandler) AnalyzeTexts(c *fiber.Ctx) error {
	var p analyzePayload
	if err := json.Unmarshal(c.Body(), &p); err != nil {
		return badRequest(c, "Invalid request body")
	}
	p.FilePath = ""

	req, err := h.request(c.Context(), p)
	if err != nil {
		return failure(c, "Analysis", err)
	}
	resp, err := h.analyzer.Analyze(c.Context(), req, nil)
	if err != nil {
		return failure(c, "Analysis", err)
	}
	return c.JSON(resp)
}

// request turns a payload into an analysis request, extracting the file first when one
// is named.
func (h *AnalysisHandler) request(ctx context.Context, p analyzePayload) (analysis.Request, error) {
	req := analysis.Request{
		Texts:                p.Texts,
		Timestamps:           p.Timestamps,
		Config:               p.Config,
		VisualizationOptions: p.VisualizationOptions,
		PreprocessingConfig:  p.PreprocessingConfig,
		Stopwords:            p.Stopwords,
		Source:               analysis.SourceTexts,
	}
	if req.Config == nil {
		req.Config = map[string]any{}
	}

	if p.FilePath == "" {
		if len(p.Texts) == 0 {
			return req, apperr.Input("texts", "texts is required")
		}
		return req, nil
	}

	extracted, err := h.processor.Extract(ctx, h.processor.Resolve(p.FilePath), p.TextColumn, p.TimestampColumn, p.FileType)
	if err != nil {
		return req, err
	}
	if len(extracted.Texts) == 0 {
		return req, apperr.Input("text_column", "column %q contains no text", p.TextColumn)
	}
	req.Texts = extracted.Texts
	req.Timestamps = extracted.Timestamps
	req.TotalRows = extracted.TotalRows
	req.Source = analysis.SourceFile
	return req, nil
}
