package handlers

import (
	"encoding/json"
	"os"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/analysis"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/export"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/topicmodel"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/visualization"
	"github.com/EvianLUO/bertopic-analysis-tool/pkg/logger"
)

// exportPayload is a prior analysis response, or the parts of it an export needs.
type exportPayload struct {
	Texts          []string                          `json:"texts"`
	Topics         []int                             `json:"topics"`
	Probabilities  []float64                         `json:"probabilities"`
	TopicInfo      []analysis.TopicInfo              `json:"topic_info"`
	Visualizations map[string]visualization.Artifact `json:"visualizations"`
}

func (p exportPayload) topics() []topicmodel.Topic {
	out := make([]topicmodel.Topic, len(p.TopicInfo))
	for i, ti := range p.TopicInfo {
		out[i] = ti.Topic
		if len(out[i].Words) == 0 {
			out[i].Words = ti.Representation
		}
	}
	return out
}

type ExportHandler struct {
	packager *export.Packager
}

func NewExportHandler(packager *export.Packager) *ExportHandler {
	return &ExportHandler{packager: packager}
}

// Export writes the requested artifact and streams it as an attachment. The file is
// unlinked once opened, so nothing outlives the response.
func (h *ExportHandler) Export(c *fiber.Ctx) error {
	var p exportPayload
	if err := json.Unmarshal(c.Body(), &p); err != nil {
		return badRequest(c, "Invalid request body")
	}

	var (
		art *export.Artifact
		err error
	)
	switch kind := c.Params("type"); kind {
	case export.KindVisualizations:
		art, err = h.packager.Visualizations(c.Context(), p.Visualizations)
	case export.KindAnnotatedData:
		art, err = h.packager.AnnotatedData(c.Context(), export.AnnotatedInput{
			Texts:         p.Texts,
			Topics:        p.Topics,
			Probabilities: p.Probabilities,
			TopicInfo:     p.topics(),
		})
	case export.KindTopicDetails:
		art, err = h.packager.TopicDetails(c.Context(), p.topics())
	default:
		return badRequest(c, "Unsupported export type: "+kind)
	}
	if err != nil {
		return failure(c, "Export", err)
	}

	f, err := os.Open(art.Path)
	if err != nil {
		return failure(c, "Export", err)
	}
	if err := os.Remove(art.Path); err != nil {
		logger.Warn("Failed to remove export file", zap.String("path", art.Path), zap.Error(err))
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return failure(c, "Export", err)
	}

	c.Attachment(art.Filename)
	c.Set(fiber.HeaderContentType, art.ContentType)
	return c.SendStream(f, int(info.Size()))
}
