// Package stopwords keeps the stopword categories used by preprocessing. Categories are
// persisted; the merged "final" list is always derived, never stored.
package stopwords

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/preprocess"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/storage/models"
)

const FinalKey = "final"

// Repository persists categories; *sqlite.Client satisfies it.
type Repository interface {
	GetStopwordCategories() ([]models.StopwordCategory, error)
	UpsertStopwordCategories(categories []models.StopwordCategory) error
}

// Defaults returns the seed categories written on first use.
func Defaults() map[string][]string {
	return map[string][]string{
		"chinese": {
			"的", "了", "在", "是", "我", "有", "和", "就", "不", "人", "都", "一", "一个", "上", "也", "很",
			"到", "说", "要", "去", "你", "会", "着", "没有", "看", "好", "自己", "这",
		},
		"english": {
			"i", "me", "my", "myself", "we", "our", "ours", "ourselves", "you", "your", "yours",
			"yourself", "yourselves", "he", "him", "his", "himself", "she", "her", "hers", "herself",
			"it", "its", "itself", "they", "them", "their", "theirs", "themselves", "what", "which",
			"who", "whom", "this", "that", "these", "those", "am", "is", "are", "was", "were", "be",
			"been", "being", "have", "has", "had", "having", "do", "does", "did", "doing", "a", "an",
			"the", "and", "but", "if", "or", "because", "as", "until", "while", "of", "at", "by",
			"for", "with", "through", "during", "before", "after", "above", "below", "up", "down",
			"in", "out", "on", "off", "over", "under", "again", "further", "then", "once",
		},
		"custom": {},
	}
}

type Store struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time

	mu     sync.RWMutex
	loaded bool
	cats   map[string][]string
}

func NewStore(repo Repository, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{repo: repo, logger: logger, now: time.Now}
}

// Get returns every category plus the merged final list. An empty repository is seeded
// with Defaults.
func (s *Store) Get() (preprocess.Stopwords, error) {
	if err := s.ensureLoaded(); err != nil {
		return preprocess.Stopwords{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot(), nil
}

// Update replaces the named categories and keeps the rest. A "final" key is ignored
// since the merged list is derived.
func (s *Store) Update(categories map[string][]string) (preprocess.Stopwords, error) {
	if err := s.ensureLoaded(); err != nil {
		return preprocess.Stopwords{}, err
	}

	now := s.now()
	var changed []models.StopwordCategory
	for name, words := range categories {
		if name == FinalKey {
			continue
		}
		changed = append(changed, models.StopwordCategory{Name: name, Words: dedupe(words), UpdatedAt: now})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(changed) > 0 {
		if err := s.repo.UpsertStopwordCategories(changed); err != nil {
			return preprocess.Stopwords{}, fmt.Errorf("save stopwords: %w", err)
		}
		for _, c := range changed {
			s.cats[c.Name] = c.Words
		}
		s.logger.Info("Stopwords updated", zap.Int("categories", len(changed)))
	}
	return s.snapshot(), nil
}

func (s *Store) ensureLoaded() error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}

	stored, err := s.repo.GetStopwordCategories()
	if err != nil {
		return fmt.Errorf("load stopwords: %w", err)
	}
	cats := make(map[string][]string, len(stored))
	for _, c := range stored {
		cats[c.Name] = c.Words
	}

	if len(cats) == 0 {
		now := s.now()
		var seed []models.StopwordCategory
		for name, words := range Defaults() {
			seed = append(seed, models.StopwordCategory{Name: name, Words: words, UpdatedAt: now})
			cats[name] = words
		}
		if err := s.repo.UpsertStopwordCategories(seed); err != nil {
			return fmt.Errorf("seed stopwords: %w", err)
		}
		s.logger.Info("Default stopwords seeded")
	}

	s.cats = cats
	s.loaded = true
	return nil
}

func (s *Store) snapshot() preprocess.Stopwords {
	cats := make(map[string][]string, len(s.cats))
	for name, words := range s.cats {
		cats[name] = append([]string{}, words...)
	}
	return preprocess.Stopwords{Categories: cats, Final: preprocess.MergeCategories(cats)}
}

func dedupe(words []string) []string {
	out := make([]string, 0, len(words))
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, ok := seen[w]; ok || w == "" {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
