package syncagent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepost/internal/negotiation"
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   []string
	err     error
	blockCh chan struct{}
}

func (f *fakeFetcher) FetchSnapshot(ctx context.Context, intentID string) (*negotiation.Snapshot, error) {
	f.mu.Lock()
	f.calls = append(f.calls, intentID)
	block := f.blockCh
	err := f.err
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &negotiation.Snapshot{IntentID: intentID}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeView struct {
	mu       sync.Mutex
	rendered []string
}

func (v *fakeView) Render(snap *negotiation.Snapshot) {
	v.mu.Lock()
	v.rendered = append(v.rendered, snap.IntentID)
	v.mu.Unlock()
}

func (v *fakeView) renders() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.rendered...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSessionFetchesImmediatelyThenOnInterval(t *testing.T) {
	fetcher := &fakeFetcher{}
	view := &fakeView{}
	s := NewSession(fetcher, view, 20*time.Millisecond)

	s.Start("intent-1")
	defer s.Stop()

	waitFor(t, func() bool { return fetcher.callCount() >= 3 })
	waitFor(t, func() bool { return len(view.renders()) >= 3 })
	for _, id := range view.renders() {
		assert.Equal(t, "intent-1", id)
	}
}

func TestSessionStopHaltsPolling(t *testing.T) {
	fetcher := &fakeFetcher{}
	view := &fakeView{}
	s := NewSession(fetcher, view, 10*time.Millisecond)

	s.Start("intent-1")
	waitFor(t, func() bool { return fetcher.callCount() >= 2 })
	s.Stop()

	count := fetcher.callCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, count, fetcher.callCount(), "no fetches after Stop")
}

func TestSessionSwitchTargetStopsOldLoop(t *testing.T) {
	fetcher := &fakeFetcher{}
	view := &fakeView{}
	s := NewSession(fetcher, view, 10*time.Millisecond)

	s.Start("intent-1")
	waitFor(t, func() bool { return fetcher.callCount() >= 1 })

	s.Start("intent-2")
	defer s.Stop()

	waitFor(t, func() bool {
		for _, id := range view.renders() {
			if id == "intent-2" {
				return true
			}
		}
		return false
	})

	// Once the target switched, no further renders for the old one.
	renders := view.renders()
	idx := -1
	for i, id := range renders {
		if id == "intent-2" {
			idx = i
			break
		}
	}
	require.GreaterOrEqual(t, idx, 0)
	for _, id := range renders[idx:] {
		assert.Equal(t, "intent-2", id)
	}
}

func TestSessionInFlightFetchNotRenderedAfterStop(t *testing.T) {
	fetcher := &fakeFetcher{blockCh: make(chan struct{})}
	view := &fakeView{}
	s := NewSession(fetcher, view, time.Hour)

	s.Start("intent-1")
	waitFor(t, func() bool { return fetcher.callCount() >= 1 })

	// Stop while the first fetch is blocked. Cancellation unblocks
	// the fetch and the cancelled result must not be rendered.
	s.Stop()
	close(fetcher.blockCh)

	assert.Empty(t, view.renders())
}

func TestSessionKeepsPollingThroughErrors(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("network down")}
	view := &fakeView{}
	s := NewSession(fetcher, view, 10*time.Millisecond)

	s.Start("intent-1")
	defer s.Stop()

	waitFor(t, func() bool { return fetcher.callCount() >= 3 })
	assert.Empty(t, view.renders(), "failed fetches render nothing")

	fetcher.mu.Lock()
	fetcher.err = nil
	fetcher.mu.Unlock()

	waitFor(t, func() bool { return len(view.renders()) >= 1 })
}
