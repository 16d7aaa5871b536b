package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeStore struct {
	mu     sync.Mutex
	stale  int
	sweeps int
	err    error
}

func (f *fakeStore) SweepStaleCharacters(_ context.Context, _ time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.sweeps++
	n := f.stale
	f.stale = 0
	return n, nil
}

func (f *fakeStore) sweepCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sweeps
}

func TestSweepOnceIdempotent(t *testing.T) {
	fs := &fakeStore{stale: 3}
	s := NewSweeper(zerolog.Nop(), fs, time.Hour, 20*time.Minute)

	s.SweepOnce(context.Background())
	s.SweepOnce(context.Background())

	if got := fs.sweepCount(); got != 2 {
		t.Fatalf("expected 2 sweeps, got %d", got)
	}
	if fs.stale != 0 {
		t.Fatal("stale characters not cleared")
	}
}

func TestSweepErrorDoesNotPanic(t *testing.T) {
	fs := &fakeStore{err: errors.New("db down")}
	s := NewSweeper(zerolog.Nop(), fs, time.Hour, 20*time.Minute)
	s.SweepOnce(context.Background())
}

func TestStartStop(t *testing.T) {
	fs := &fakeStore{}
	s := NewSweeper(zerolog.Nop(), fs, 5*time.Millisecond, 20*time.Minute)

	s.Start()
	s.Start() // second start must not spawn a second loop

	deadline := time.After(time.Second)
	for fs.sweepCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("ticker never fired")
		case <-time.After(time.Millisecond):
		}
	}

	s.Stop()
	s.Stop() // idempotent
	settled := fs.sweepCount()
	time.Sleep(20 * time.Millisecond)
	if after := fs.sweepCount(); after > settled+1 {
		t.Fatalf("sweeps continued after Stop: %d -> %d", settled, after)
	}
}
