package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cast"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/preprocess"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/stopwords"
)

type StopwordStore interface {
	Get() (preprocess.Stopwords, error)
	Update(categories map[string][]string) (preprocess.Stopwords, error)
}

type StopwordsHandler struct {
	store StopwordStore
}

func NewStopwordsHandler(store StopwordStore) *StopwordsHandler {
	return &StopwordsHandler{store: store}
}

// GetStopwords returns every category plus the merged "final" list.
func (h *StopwordsHandler) GetStopwords(c *fiber.Ctx) error {
	sw, err := h.store.Get()
	if err != nil {
		return failure(c, "Loading stopwords", err)
	}
	return c.JSON(flatten(sw))
}

// UpdateStopwords replaces the categories named in the body, e.g. {"custom": ["foo"]}.
func (h *StopwordsHandler) UpdateStopwords(c *fiber.Ctx) error {
	var raw map[string]any
	if err := json.Unmarshal(c.Body(), &raw); err != nil {
		return badRequest(c, "Invalid request body")
	}

	categories := make(map[string][]string, len(raw))
	for name, v := range raw {
		words, ok := wordList(v)
		if !ok {
			return badRequest(c, "Category "+name+" must be a list of words")
		}
		categories[name] = words
	}

	sw, err := h.store.Update(categories)
	if err != nil {
		return failure(c, "Updating stopwords", err)
	}
	return c.JSON(fiber.Map{
		"success":   true,
		"message":   "Stopwords updated",
		"stopwords": flatten(sw),
	})
}

// wordList accepts only a JSON array of strings; cast would split or stringify scalars.
func wordList(v any) ([]string, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	for _, item := range items {
		if _, ok := item.(string); !ok {
			return nil, false
		}
	}
	words, err := cast.ToStringSliceE(items)
	return words, err == nil
}

func flatten(sw preprocess.Stopwords) map[string][]string {
	out := make(map[string][]string, len(sw.Categories)+1)
	for name, words := range sw.Categories {
		out[name] = words
	}
	final := sw.Final
	if final == nil {
		final = []string{}
	}
	out[stopwords.FinalKey] = final
	return out
}
