package sweeper

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper removes task workspaces older than the retention window.
type Sweeper struct {
	root string
	ttl  time.Duration
	log  *zap.Logger
	cron *cron.Cron
}

func New(root string, ttl time.Duration, log *zap.Logger) *Sweeper {
	return &Sweeper{
		root: root,
		ttl:  ttl,
		log:  log.With(zap.String("worker", "sweeper")),
	}
}

func (s *Sweeper) Start(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, s.SweepOnce); err != nil {
		return err
	}

	c.Start()
	s.cron = c

	s.log.Info("sweeper started",
		zap.String("schedule", schedule),
		zap.Duration("ttl", s.ttl),
	)

	return nil
}

// Stop waits for a sweep in flight to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}

	<-s.cron.Stop().Done()
}

// SweepOnce removes every workspace whose last modification is older than
// the TTL. Only directories named by a task ID are touched.
func (s *Sweeper) SweepOnce() {
	if s.root == "" {
		return
	}

	cutoff := time.Now().Add(-s.ttl)

	entries, err := os.ReadDir(s.root)
	if err != nil {
		s.log.Warn(err.Error())
		return
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		if _, err := uuid.Parse(entry.Name()); err != nil {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().After(cutoff) {
			continue
		}

		dir := filepath.Join(s.root, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			s.log.Warn(err.Error(), zap.String("dir", dir))
			continue
		}

		removed++
	}

	if removed > 0 {
		s.log.Info("workspaces removed", zap.Int("count", removed))
	}
}
