package preprocess

import (
	"sort"

	"github.com/spf13/cast"
)

const (
	SegmenterDefault = "default"
	SegmenterJieba   = "jieba"
	SegmenterProse   = "prose"
)

type Config struct {
	RemoveNumbers     bool
	RemovePunctuation bool
	ToLowerCase       bool
	RemoveLatinChars  bool
	Segmenter         string
	Stopwords         Stopwords
}

func DefaultConfig() Config {
	return Config{
		RemoveNumbers:     true,
		RemovePunctuation: true,
		ToLowerCase:       true,
		RemoveLatinChars:  false,
		Segmenter:         SegmenterJieba,
	}
}

// ConfigFromMaps merges the given cleaning maps in order over the defaults. Later maps
// win. Values that fail boolean coercion are ignored.
func ConfigFromMaps(maps ...map[string]any) Config {
	cfg := DefaultConfig()
	for _, m := range maps {
		for key, raw := range m {
			if raw == nil {
				continue
			}
			switch key {
			case "removeNumbers":
				setBool(&cfg.RemoveNumbers, raw)
			case "removePunctuation":
				setBool(&cfg.RemovePunctuation, raw)
			case "toLowerCase":
				setBool(&cfg.ToLowerCase, raw)
			case "removeLatinChars", "removeEnglishChars":
				setBool(&cfg.RemoveLatinChars, raw)
			case "segmenter":
				if s, err := cast.ToStringE(raw); err == nil && s != "" {
					cfg.Segmenter = s
				}
			}
		}
	}
	return cfg
}

func setBool(dst *bool, raw any) {
	if b, err := cast.ToBoolE(raw); err == nil {
		*dst = b
	}
}

// Stopwords maps category name to ordered terms; Final is the precomputed merged list.
type Stopwords struct {
	Categories map[string][]string `json:"categories"`
	Final      []string            `json:"final"`
}

var categoryOrder = []string{"chinese", "english", "custom"}

// StopwordsFromMap reads the {"chinese": [...], ..., "final": [...]} shape.
func StopwordsFromMap(raw map[string]any) Stopwords {
	sw := Stopwords{Categories: make(map[string][]string)}
	for key, v := range raw {
		terms, err := cast.ToStringSliceE(v)
		if err != nil {
			continue
		}
		if key == "final" {
			sw.Final = terms
			continue
		}
		sw.Categories[key] = terms
	}
	return sw
}

// Merged returns Final when set, otherwise the de-duplicated union of the categories in
// chinese, english, custom order followed by any other category alphabetically.
func (s Stopwords) Merged() []string {
	if len(s.Final) > 0 {
		return s.Final
	}
	return MergeCategories(s.Categories)
}

func MergeCategories(categories map[string][]string) []string {
	names := make([]string, 0, len(categories))
	known := make(map[string]bool, len(categoryOrder))
	for _, name := range categoryOrder {
		known[name] = true
		if _, ok := categories[name]; ok {
			names = append(names, name)
		}
	}
	var rest []string
	for name := range categories {
		if !known[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	names = append(names, rest...)

	seen := make(map[string]struct{})
	var merged []string
	for _, name := range names {
		for _, term := range categories[name] {
			if term == "" {
				continue
			}
			if _, dup := seen[term]; dup {
				continue
			}
			seen[term] = struct{}{}
			merged = append(merged, term)
		}
	}
	return merged
}
