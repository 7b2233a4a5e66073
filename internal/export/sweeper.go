package export

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/metrics"
)

// Sweeper removes export files older than maxAge. It only touches files the packager
// created, so it is safe to point at a shared temp directory.
type Sweeper struct {
	dir      string
	maxAge   time.Duration
	interval time.Duration
	logger   *zap.Logger
}

func NewSweeper(dir string, maxAge, interval time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{dir: dir, maxAge: maxAge, interval: interval, logger: logger}
}

// Run sweeps on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 || s.maxAge <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := s.Sweep(now); err != nil {
				s.logger.Warn("Export sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep removes expired files and reports how many were removed.
func (s *Sweeper) Sweep(now time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < s.maxAge {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("Failed to remove expired export", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		metrics.SweptFiles.Add(float64(removed))
		s.logger.Info("Expired exports removed", zap.Int("count", removed))
	}
	return removed, nil
}
