package preprocess

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func defaultCfg() Config {
	cfg := DefaultConfig()
	cfg.Segmenter = SegmenterDefault
	return cfg
}

type panicSegmenter struct{}

func (panicSegmenter) Name() string            { return "panicky" }
func (panicSegmenter) Segment(string) []string { panic("corrupt model") }

func TestRemoveStopwords_PreservesOrder(t *testing.T) {
	tokens := []string{"the", "cat", "sat", "on", "the", "mat"}
	got := RemoveStopwords(tokens, stopSet([]string{"the", "on"}))
	assert.Equal(t, []string{"cat", "sat", "mat"}, got)
}

func TestPreprocess_FullPipeline(t *testing.T) {
	p := New(nil)
	cfg := defaultCfg()
	cfg.Stopwords = Stopwords{Final: []string{"the", "on"}}

	out := p.Preprocess(context.Background(), []string{
		"The cat sat on the mat!",
		"In 2024, 3 dogs ran.",
		"",
	}, cfg)

	require.Len(t, out, 3)
	assert.Equal(t, "cat sat mat", out[0])
	assert.Equal(t, "in dogs ran", out[1])
	assert.Equal(t, "", out[2])
}

func TestPreprocess_EmptyAfterCleaningIsValid(t *testing.T) {
	out := New(nil).Preprocess(context.Background(), []string{"123 !!! 456"}, defaultCfg())
	assert.Equal(t, []string{""}, out)
}

func TestPreprocess_IdempotentOnCleanText(t *testing.T) {
	p := New(nil)
	cfg := defaultCfg()
	cfg.Stopwords = Stopwords{Final: []string{"a"}}
	docs := []string{"Hello, World! 42 times", "snake_case stays 7", "猫坐在垫子上"}

	once := p.Preprocess(context.Background(), docs, cfg)
	twice := p.Preprocess(context.Background(), once, cfg)
	assert.Equal(t, once, twice)
}

func TestPreprocess_RemoveLatinChars(t *testing.T) {
	cfg := defaultCfg()
	cfg.RemoveLatinChars = true

	out := New(nil).Preprocess(context.Background(), []string{"BERTopic主题模型"}, cfg)
	assert.Equal(t, "主 题 模 型", out[0])
}

func TestPreprocess_DisabledStepsKeepText(t *testing.T) {
	cfg := Config{Segmenter: SegmenterDefault}
	out := New(nil).Preprocess(context.Background(), []string{"Go 1 Rocks"}, cfg)
	assert.Equal(t, "Go 1 Rocks", out[0])
}

func TestResolveSegmenter_UnknownFallsBackToDefault(t *testing.T) {
	p := New(nil)
	for _, name := range []string{"pkuseg", "thulac", ""} {
		assert.Equal(t, SegmenterDefault, p.ResolveSegmenter(context.Background(), name).Name(), name)
	}
	assert.Equal(t, SegmenterProse, p.ResolveSegmenter(context.Background(), SegmenterProse).Name())
}

func TestPreprocess_SegmenterPanicFallsBackPerDocument(t *testing.T) {
	reg := newRegistry()
	reg.register("panicky", func() (Segmenter, error) { return panicSegmenter{}, nil })
	p := &Preprocessor{registry: reg, logger: zap.NewNop()}

	cfg := defaultCfg()
	cfg.Segmenter = "panicky"
	out := p.Preprocess(context.Background(), []string{"one two", "three"}, cfg)
	assert.Equal(t, []string{"one two", "three"}, out)
}

func TestPreprocessWith_DoesNotResolveAgain(t *testing.T) {
	loads := 0
	reg := newRegistry()
	reg.register("broken", func() (Segmenter, error) {
		loads++
		return nil, errors.New("dictionary missing")
	})
	p := &Preprocessor{registry: reg, logger: zap.NewNop()}

	cfg := defaultCfg()
	cfg.Segmenter = "broken"
	seg := p.ResolveSegmenter(context.Background(), cfg.Segmenter)
	require.Equal(t, SegmenterDefault, seg.Name())
	require.Equal(t, 1, loads)

	out := p.PreprocessWith(context.Background(), []string{"one two", "three"}, cfg, seg)
	assert.Equal(t, []string{"one two", "three"}, out)
	assert.Equal(t, 1, loads)
}

func TestPreprocess_ProseSegmenter(t *testing.T) {
	cfg := defaultCfg()
	cfg.Segmenter = SegmenterProse
	out := New(nil).Preprocess(context.Background(), []string{"Topic models group documents"}, cfg)
	assert.Equal(t, "topic models group documents", out[0])
}

func TestConfigFromMaps(t *testing.T) {
	cfg := ConfigFromMaps(
		map[string]any{"removeNumbers": "false", "removeEnglishChars": true, "segmenter": "prose"},
		map[string]any{"segmenter": "default", "toLowerCase": nil, "removePunctuation": "not-a-bool"},
	)
	assert.False(t, cfg.RemoveNumbers)
	assert.True(t, cfg.RemoveLatinChars)
	assert.True(t, cfg.ToLowerCase)
	assert.True(t, cfg.RemovePunctuation)
	assert.Equal(t, SegmenterDefault, cfg.Segmenter)

	assert.Equal(t, SegmenterJieba, ConfigFromMaps().Segmenter)
}

func TestStopwords_Merged(t *testing.T) {
	sw := StopwordsFromMap(map[string]any{
		"custom":  []any{"foo", "the"},
		"english": []string{"the", "a"},
		"chinese": []string{"的"},
		"extra":   []string{"zzz"},
	})
	assert.Equal(t, []string{"的", "the", "a", "foo", "zzz"}, sw.Merged())

	sw.Final = []string{"only"}
	assert.Equal(t, []string{"only"}, sw.Merged())
}

func TestDefaultSegmenter_SkipsWhitespace(t *testing.T) {
	got := defaultSegmenter{}.Segment("  alpha \t beta\n")
	assert.Equal(t, "alpha beta", strings.Join(got, " "))
}
