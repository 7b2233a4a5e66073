package preprocess

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ego/gse"
	"github.com/jdkato/prose/v2"
	"github.com/rivo/uniseg"
	"go.uber.org/zap"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/fallback"
)

var ErrUnknownSegmenter = errors.New("unknown segmenter")

// Segmenter splits one cleaned document into word tokens. Whitespace-only tokens are
// never returned.
type Segmenter interface {
	Name() string
	Segment(text string) []string
}

type loaderFunc func() (Segmenter, error)

// registry caches loaded segmenters. Dictionaries are read-only once loaded, so one
// instance is shared by every run.
type registry struct {
	mu      sync.Mutex
	loaders map[string]loaderFunc
	loaded  map[string]Segmenter
}

func newRegistry() *registry {
	return &registry{
		loaders: map[string]loaderFunc{
			SegmenterDefault: func() (Segmenter, error) { return defaultSegmenter{}, nil },
			SegmenterJieba:   newJiebaSegmenter,
			SegmenterProse:   func() (Segmenter, error) { return proseSegmenter{}, nil },
		},
		loaded: make(map[string]Segmenter),
	}
}

var sharedRegistry = newRegistry()

func (r *registry) load(name string) (Segmenter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.loaded[name]; ok {
		return s, nil
	}
	loader, ok := r.loaders[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSegmenter, name)
	}
	s, err := loader()
	if err != nil {
		return nil, err
	}
	r.loaded[name] = s
	return s, nil
}

func (r *registry) register(name string, loader loaderFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[name] = loader
	delete(r.loaded, name)
}

// resolve tries the requested segmenter and falls back to the default one.
func (r *registry) resolve(ctx context.Context, name string, logger *zap.Logger) Segmenter {
	if name == "" {
		name = SegmenterDefault
	}
	provider := func(n string) fallback.Provider[Segmenter] {
		return fallback.Provider[Segmenter]{
			Name: n,
			Load: func(context.Context) (Segmenter, error) { return r.load(n) },
		}
	}

	chain := fallback.New[Segmenter]("segmenter", logger, provider(name))
	chain.Append(provider(SegmenterDefault))

	s, _, err := chain.Resolve(ctx)
	if err != nil {
		// only reachable on cancellation; the default loader cannot fail
		return defaultSegmenter{}
	}
	return s
}

// defaultSegmenter uses Unicode word boundaries. Ideographs come out as single-character
// tokens.
type defaultSegmenter struct{}

func (defaultSegmenter) Name() string { return SegmenterDefault }

func (defaultSegmenter) Segment(text string) []string {
	var (
		tokens []string
		word   string
		state  = -1
	)
	for len(text) > 0 {
		word, text, state = uniseg.FirstWordInString(text, state)
		if strings.TrimSpace(word) != "" {
			tokens = append(tokens, word)
		}
	}
	return tokens
}

type jiebaSegmenter struct {
	seg gse.Segmenter
}

func newJiebaSegmenter() (Segmenter, error) {
	seg, err := gse.New()
	if err != nil {
		return nil, fmt.Errorf("load gse dictionary: %w", err)
	}
	return &jiebaSegmenter{seg: seg}, nil
}

func (j *jiebaSegmenter) Name() string { return SegmenterJieba }

func (j *jiebaSegmenter) Segment(text string) []string {
	return compact(j.seg.Cut(text, true))
}

type proseSegmenter struct{}

func (proseSegmenter) Name() string { return SegmenterProse }

func (proseSegmenter) Segment(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithSegmentation(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return defaultSegmenter{}.Segment(text)
	}
	tokens := doc.Tokens()
	words := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		words = append(words, tok.Text)
	}
	return compact(words)
}

func compact(tokens []string) []string {
	out := tokens[:0]
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
