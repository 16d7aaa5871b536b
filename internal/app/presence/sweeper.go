// Package presence periodically flips characters offline when they have
// been idle past a threshold. Activity is recorded by the session loop on
// every command; the sweep catches connections that died without a clean
// teardown.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Store interface {
	SweepStaleCharacters(ctx context.Context, threshold time.Duration) (int, error)
}

type Sweeper struct {
	logger    zerolog.Logger
	store     Store
	interval  time.Duration
	threshold time.Duration

	mu      sync.Mutex
	started bool
	quit    chan struct{}
}

func NewSweeper(logger zerolog.Logger, store Store, interval, threshold time.Duration) *Sweeper {
	return &Sweeper{
		logger:    logger,
		store:     store,
		interval:  interval,
		threshold: threshold,
		quit:      make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.SweepOnce(context.Background())
			case <-s.quit:
				return
			}
		}
	}()
}

func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	close(s.quit)
}

// SweepOnce runs a single pass. Safe to call at any time; a pass that
// finds nothing stale writes nothing.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	swept, err := s.store.SweepStaleCharacters(ctx, s.threshold)
	if err != nil {
		s.logger.Error().Err(err).Msg("presence sweep failed")
		return
	}
	if swept > 0 {
		s.logger.Info().Int("characters", swept).Msg("marked idle characters offline")
	}
}
