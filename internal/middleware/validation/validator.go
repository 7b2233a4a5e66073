package validation

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/export"
)

type Config struct {
	MaxDocuments        int
	MaxDocumentLength   int
	UploadDir           string
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware rejects malformed analysis and export requests before they reach a
// handler. Document text itself is never pattern-filtered.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxDocuments == 0 {
		cfg.MaxDocuments = 100000
	}
	if cfg.MaxDocumentLength == 0 {
		cfg.MaxDocumentLength = 100000
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json", "multipart/form-data"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut {
			contentType := c.Get(fiber.HeaderContentType)
			if contentType != "" {
				allowed := false
				for _, allowedType := range cfg.AllowedContentTypes {
					if strings.Contains(contentType, allowedType) {
						allowed = true
						break
					}
				}
				if !allowed {
					return reject(c, fiber.StatusUnsupportedMediaType, "Unsupported content type")
				}
			}
		}

		if c.Method() != fiber.MethodPost {
			return c.Next()
		}

		path := strings.TrimSuffix(c.Path(), "/")

		switch {
		case path == "/api/analyze":
			var req map[string]any
			if err := json.Unmarshal(c.Body(), &req); err != nil {
				return reject(c, fiber.StatusBadRequest, "Invalid JSON format")
			}

			filePath, ok := req["file_path"].(string)
			if !ok || strings.TrimSpace(filePath) == "" {
				return reject(c, fiber.StatusBadRequest, "file_path is required and must be a string")
			}
			if column, ok := req["text_column"].(string); !ok || strings.TrimSpace(column) == "" {
				return reject(c, fiber.StatusBadRequest, "text_column is required and must be a string")
			}
			if cfg.UploadDir != "" && !within(cfg.UploadDir, filePath) {
				cfg.Logger.Warn("File path outside upload directory",
					zap.String("ip", c.IP()),
					zap.String("file_path", filePath),
				)
				return reject(c, fiber.StatusBadRequest, "file_path must refer to an uploaded file")
			}

		case path == "/api/analyze/texts":
			var req map[string]any
			if err := json.Unmarshal(c.Body(), &req); err != nil {
				return reject(c, fiber.StatusBadRequest, "Invalid JSON format")
			}

			texts, ok := req["texts"].([]any)
			if !ok || len(texts) == 0 {
				return reject(c, fiber.StatusBadRequest, "texts is required and must be a non-empty array")
			}
			if len(texts) > cfg.MaxDocuments {
				return reject(c, fiber.StatusRequestEntityTooLarge, "Too many documents")
			}
			for _, t := range texts {
				s, ok := t.(string)
				if !ok {
					return reject(c, fiber.StatusBadRequest, "texts must contain only strings")
				}
				if len(s) > cfg.MaxDocumentLength {
					return reject(c, fiber.StatusRequestEntityTooLarge, "Document exceeds maximum length")
				}
			}

		case strings.HasPrefix(path, "/api/export/"):
			kind := strings.TrimPrefix(path, "/api/export/")
			switch kind {
			case export.KindVisualizations, export.KindAnnotatedData, export.KindTopicDetails:
			default:
				return reject(c, fiber.StatusBadRequest, "Unknown export type")
			}
		}

		return c.Next()
	}
}

func reject(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   msg,
	})
}

// within reports whether path resolves inside dir. Relative paths are taken relative to
// dir.
func within(dir, path string) bool {
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
