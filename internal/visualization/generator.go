package visualization

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/apperr"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/metrics"
)

// renderFunc draws one chart, returning the page and its data form.
type renderFunc func(ctx context.Context, in *Input) (html string, data map[string]any, err error)

var errNoState = errors.New("fitted model state is unavailable")

type Generator struct {
	logger    *zap.Logger
	primary   map[Chart]renderFunc
	secondary map[Chart]renderFunc
}

func NewGenerator(logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		logger: logger,
		primary: map[Chart]renderFunc{
			ChartTopics:         renderTopics,
			ChartBarchart:       renderBarchart,
			ChartHeatmap:        renderHeatmap,
			ChartDocuments:      renderDocuments,
			ChartHierarchy:      renderHierarchy,
			ChartTopicsOverTime: renderTopicsOverTime,
		},
		secondary: map[Chart]renderFunc{
			ChartHierarchy: renderHierarchyTree,
		},
	}
}

// Generate renders every requested chart independently. Unknown names produce an
// unavailable artifact rather than an error.
func (g *Generator) Generate(ctx context.Context, requested []string, in Input) map[string]Artifact {
	in.Timestamps = ReconcileTimestamps(in.Timestamps, len(in.Texts))

	out := make(map[string]Artifact, len(requested))
	for _, name := range requested {
		if _, done := out[name]; done {
			continue
		}
		a := g.generate(ctx, name, &in)
		out[name] = a

		label := name
		if _, known := g.primary[Chart(name)]; !known {
			label = "unknown"
		}
		metrics.VisualizationOutcomes.WithLabelValues(label, a.Outcome()).Inc()
	}
	return out
}

func (g *Generator) generate(ctx context.Context, name string, in *Input) Artifact {
	chart := Chart(name)
	a := Artifact{Type: name}

	primary, known := g.primary[chart]
	if !known {
		a.Status = unavailable(ReasonUnknownChart)
		return a
	}
	if reason := precondition(chart, in); reason != "" {
		a.Status = unavailable(reason)
		g.logger.Info("Visualization skipped", zap.String("chart", name), zap.String("reason", reason))
		return a
	}
	if err := ctx.Err(); err != nil {
		a.Status = failed(err.Error())
		return a
	}

	html, data, err := safeRender(ctx, primary, in)
	if err != nil {
		if secondary, ok := g.secondary[chart]; ok {
			g.logger.Warn("Primary renderer failed, using fallback", zap.String("chart", name), zap.Error(err))
			html, data, err = safeRender(ctx, secondary, in)
		}
	}
	if err != nil {
		verr := &apperr.VisualizationError{Chart: name, Reason: err.Error()}
		g.logger.Warn("Visualization failed", zap.Error(verr))
		a.Status = failed(verr.Reason)
		return a
	}

	a.Status = StatusOK
	a.HTML = html
	a.Data = data
	return a
}

func precondition(chart Chart, in *Input) string {
	switch chart {
	case ChartTopics, ChartBarchart, ChartHeatmap, ChartHierarchy:
		if in.distinctTopics() < 2 {
			return ReasonInsufficientTopics
		}
	case ChartTopicsOverTime:
		if len(in.Timestamps) == 0 {
			return ReasonNoTimestamps
		}
	}
	return ""
}

func safeRender(ctx context.Context, fn renderFunc, in *Input) (html string, data map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			html, data, err = "", nil, fmt.Errorf("renderer panicked: %v", r)
		}
	}()
	return fn(ctx, in)
}

// ReconcileTimestamps aligns timestamps to n documents: extra values are dropped and a
// short list is padded with its last value. An empty list stays empty.
func ReconcileTimestamps(ts []string, n int) []string {
	if len(ts) == 0 || len(ts) == n {
		return ts
	}
	if len(ts) > n {
		return ts[:n]
	}
	out := make([]string, n)
	copy(out, ts)
	last := ts[len(ts)-1]
	for i := len(ts); i < n; i++ {
		out[i] = last
	}
	return out
}
