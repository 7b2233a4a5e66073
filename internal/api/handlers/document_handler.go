package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/ingestion"
	"github.com/EvianLUO/bertopic-analysis-tool/pkg/logger"
)

type DocumentHandler struct {
	processor *ingestion.Processor
}

func NewDocumentHandler(processor *ingestion.Processor) *DocumentHandler {
	return &DocumentHandler{
		processor: processor,
	}
}

// UploadDocument stores a multipart "file" and returns its columns and first rows.
func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "No file was uploaded")
	}
	if fh.Filename == "" {
		return badRequest(c, "No file was selected")
	}

	src, err := fh.Open()
	if err != nil {
		return failure(c, "Upload", err)
	}
	defer src.Close()

	path, err := h.processor.Save(fh.Filename, src)
	if err != nil {
		return failure(c, "Upload", err)
	}

	summary, err := h.processor.Inspect(c.Context(), path)
	if err != nil {
		return failure(c, "Upload", err)
	}

	logger.Info("File uploaded",
		zap.String("filename", fh.Filename),
		zap.String("file_type", summary.FileType),
		zap.Int("total_rows", summary.TotalRows),
	)

	return c.JSON(summary)
}
