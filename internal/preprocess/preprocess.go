// Package preprocess cleans and segments raw documents into whitespace-joined tokens.
package preprocess

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var (
	digitRun  = regexp.MustCompile(`\p{Nd}+`)
	nonWord   = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\s]`)
	latinRune = regexp.MustCompile(`\p{Latin}`)
)

type Preprocessor struct {
	registry *registry
	logger   *zap.Logger
}

func New(logger *zap.Logger) *Preprocessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Preprocessor{registry: sharedRegistry, logger: logger}
}

// ResolveSegmenter returns the configured segmenter, or the default one when it cannot
// be loaded.
func (p *Preprocessor) ResolveSegmenter(ctx context.Context, name string) Segmenter {
	return p.registry.resolve(ctx, name, p.logger)
}

// Preprocess returns one cleaned document per input, in input order. Documents that
// clean down to nothing become "". When ctx is cancelled the remaining documents are left
// empty and the caller is expected to check ctx.Err().
func (p *Preprocessor) Preprocess(ctx context.Context, docs []string, cfg Config) []string {
	return p.PreprocessWith(ctx, docs, cfg, p.ResolveSegmenter(ctx, cfg.Segmenter))
}

// PreprocessWith is Preprocess with an already resolved segmenter; cfg.Segmenter is
// ignored.
func (p *Preprocessor) PreprocessWith(ctx context.Context, docs []string, cfg Config, seg Segmenter) []string {
	stop := stopSet(cfg.Stopwords.Merged())

	out := make([]string, len(docs))
	for i, doc := range docs {
		if i%256 == 0 && ctx.Err() != nil {
			break
		}
		out[i] = p.clean(doc, cfg, seg, stop)
	}
	return out
}

func (p *Preprocessor) clean(text string, cfg Config, seg Segmenter, stop map[string]struct{}) string {
	if cfg.RemoveNumbers {
		text = digitRun.ReplaceAllString(text, "")
	}
	if cfg.RemovePunctuation {
		text = nonWord.ReplaceAllString(text, "")
	}
	if cfg.ToLowerCase {
		text = strings.ToLower(text)
	}
	if cfg.RemoveLatinChars {
		text = latinRune.ReplaceAllString(text, "")
	}

	tokens := p.segment(seg, text)
	return strings.Join(RemoveStopwords(tokens, stop), " ")
}

func (p *Preprocessor) segment(seg Segmenter, text string) (tokens []string) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("Segmenter panicked, using default for document",
				zap.String("segmenter", seg.Name()),
				zap.Any("panic", r),
			)
			tokens = defaultSegmenter{}.Segment(text)
		}
	}()
	return seg.Segment(text)
}

// RemoveStopwords drops every token present in stop and keeps the order of the rest.
func RemoveStopwords(tokens []string, stop map[string]struct{}) []string {
	if len(stop) == 0 {
		return tokens
	}
	kept := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := stop[t]; !ok {
			kept = append(kept, t)
		}
	}
	return kept
}

func stopSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
