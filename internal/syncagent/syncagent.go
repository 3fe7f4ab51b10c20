// Package syncagent drives the client-side refresh loop: it polls the
// authoritative conversation snapshot for one negotiation at a fixed
// cadence and hands each result to the view for a wholesale re-render.
package syncagent

import (
	"context"
	"log"
	"sync"
	"time"

	"tradepost/internal/negotiation"
)

// Fetcher retrieves the authoritative snapshot for an intent.
type Fetcher interface {
	FetchSnapshot(ctx context.Context, intentID string) (*negotiation.Snapshot, error)
}

// View consumes each fetched snapshot. Implementations re-render from
// scratch; the agent never diffs or patches.
type View interface {
	Render(snap *negotiation.Snapshot)
}

// DefaultInterval is the poll cadence when none is configured.
const DefaultInterval = 7 * time.Second

// Session polls snapshots for at most one intent at a time. Starting a
// new target stops the previous loop first, so a user hopping between
// conversations never has two loops racing to render.
type Session struct {
	fetcher  Fetcher
	view     View
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSession(fetcher Fetcher, view View, interval time.Duration) *Session {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Session{fetcher: fetcher, view: view, interval: interval}
}

// Start begins polling intentID, stopping any previous loop first. The
// first fetch happens immediately, then once per interval. Fetches are
// sequential: a tick that lands while a fetch is still running is
// dropped rather than queued.
func (s *Session) Start(intentID string) {
	s.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.loop(ctx, intentID, done)
}

// Stop halts the current poll loop, if any, and waits for it to exit.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Session) loop(ctx context.Context, intentID string, done chan struct{}) {
	defer close(done)

	s.fetchOnce(ctx, intentID)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fetchOnce(ctx, intentID)
		}
	}
}

// fetchOnce polls and renders. A failed poll is logged and skipped;
// the next tick retries with the previous render still on screen.
func (s *Session) fetchOnce(ctx context.Context, intentID string) {
	snap, err := s.fetcher.FetchSnapshot(ctx, intentID)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[syncagent] fetch failed for intent %s: %v", intentID, err)
		}
		return
	}
	if ctx.Err() != nil {
		// Stopped while the fetch was in flight; a stale snapshot
		// must not overwrite the next target's render.
		return
	}
	s.view.Render(snap)
}
