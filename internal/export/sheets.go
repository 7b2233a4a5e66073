package export

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/metrics"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/topicmodel"
)

const (
	SheetAnnotated    = "Annotated Data"
	SheetTopicDetails = "Topic Details"

	UnknownTopic   = "Unknown_Topic"
	detailWords    = 10
	noKeywordsText = "No keywords available"
)

// AnnotatedInput is a prior analysis result. Probabilities may be nil when they were not
// computed; TopicInfo may be empty, in which case no topic_name column is written.
type AnnotatedInput struct {
	Texts         []string
	Topics        []int
	Probabilities []float64
	TopicInfo     []topicmodel.Topic
}

// AnnotatedData writes one row per document. Inputs are aligned by index and truncated
// to the shortest of those present.
func (p *Packager) AnnotatedData(ctx context.Context, in AnnotatedInput) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, p.fail(KindAnnotatedData, err)
	}

	n := min(len(in.Texts), len(in.Topics))
	if in.Probabilities != nil {
		n = min(n, len(in.Probabilities))
	}

	header := []any{"text", "topic_id", "topic_probability"}
	var names map[int]string
	if len(in.TopicInfo) > 0 {
		header = append(header, "topic_name")
		names = make(map[int]string, len(in.TopicInfo))
		for _, t := range in.TopicInfo {
			names[t.ID] = t.Name
		}
	}

	rows := make([][]any, 0, n+1)
	rows = append(rows, header)
	for i := 0; i < n; i++ {
		row := []any{in.Texts[i], in.Topics[i], nil}
		if in.Probabilities != nil {
			row[2] = in.Probabilities[i]
		}
		if names != nil {
			name, ok := names[in.Topics[i]]
			if !ok {
				name = UnknownTopic
			}
			row = append(row, name)
		}
		rows = append(rows, row)
	}

	path, err := p.writeWorkbook(SheetAnnotated, rows)
	if err != nil {
		return nil, p.fail(KindAnnotatedData, err)
	}
	metrics.ExportsTotal.WithLabelValues(KindAnnotatedData, "ok").Inc()
	return &Artifact{Path: path, Filename: p.filename("Annotated_Data", "xlsx"), ContentType: ContentTypeXLSX}, nil
}

// TopicDetails writes one row per topic. An empty topic list yields a single placeholder
// row.
func (p *Packager) TopicDetails(ctx context.Context, topics []topicmodel.Topic) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, p.fail(KindTopicDetails, err)
	}

	rows := [][]any{{"Topic", "Count", "Percentage", "Words"}}
	if len(topics) == 0 {
		rows = append(rows, []any{"No topics found", 0, "0%", ""})
	}
	for _, t := range topics {
		rows = append(rows, []any{t.ID, t.Count, fmt.Sprintf("%.1f%%", t.Percentage), keywords(t)})
	}

	path, err := p.writeWorkbook(SheetTopicDetails, rows)
	if err != nil {
		return nil, p.fail(KindTopicDetails, err)
	}
	metrics.ExportsTotal.WithLabelValues(KindTopicDetails, "ok").Inc()
	return &Artifact{Path: path, Filename: p.filename("Topic_Details", "xlsx"), ContentType: ContentTypeXLSX}, nil
}

func keywords(t topicmodel.Topic) string {
	switch {
	case len(t.Words) > 0:
		return strings.Join(t.Words[:min(detailWords, len(t.Words))], ", ")
	case t.Name != "":
		return t.Name
	default:
		return noKeywordsText
	}
}

func (p *Packager) writeWorkbook(sheet string, rows [][]any) (string, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return "", err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return "", err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return "", fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	return p.create("xlsx", func(out *os.File) error {
		_, err := f.WriteTo(out)
		return err
	})
}
