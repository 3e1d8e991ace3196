package transcode

import (
	"context"
	"sync"
)

// flightSlot is a single in-flight transcode's pending result: spec.md
// §3's "Single-Flight Slot: fingerprint -> pending handle whose value
// resolves to Option<file_handle> once the transcode terminates."
type flightSlot struct {
	done   chan struct{}
	result any
	err    error
}

// await blocks until the slot resolves or ctx is cancelled.
func (s *flightSlot) await(ctx context.Context) (any, error) {
	select {
	case <-s.done:
		return s.result, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// flightRegistry coalesces concurrent transcodes for the same fingerprint.
// Modeled on the vod.Manager pattern in the ManuGH-xg2g reference (a
// singleflight.Group guarding concurrent probe/build requests by key), but
// hand-rolled rather than golang.org/x/sync/singleflight: spec.md gives the
// registry two distinct admission behaviors over the same fingerprint space
// — GetCachedTranscode awaits an in-flight result (what Group.Do already
// does), while StartLiveTranscode must detect a conflict and return
// absence immediately without waiting. singleflight.Group only reveals
// whether a call was "shared" after the shared function returns, so it
// cannot answer "is fp already claimed?" without blocking — the registry
// below tracks that explicitly so both paths can gate the same fingerprint.
type flightRegistry struct {
	mu    sync.Mutex
	slots map[string]*flightSlot
}

func newFlightRegistry() *flightRegistry {
	return &flightRegistry{slots: make(map[string]*flightSlot)}
}

// claim returns the slot for fp. If owner is true, the caller has exclusive
// rights to perform the work and must call resolve when done. If owner is
// false, another caller already holds the slot and the returned slot can
// be awaited (or, for callers that must not wait, treated as a conflict).
func (r *flightRegistry) claim(fp string) (slot *flightSlot, owner bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.slots[fp]; ok {
		return s, false
	}
	s := &flightSlot{done: make(chan struct{})}
	r.slots[fp] = s
	return s, true
}

// resolve completes the slot for fp with result/err, waking every waiter,
// and removes it from the registry so a future request starts fresh.
func (r *flightRegistry) resolve(fp string, result any, err error) {
	r.mu.Lock()
	s, ok := r.slots[fp]
	if ok {
		delete(r.slots, fp)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	s.result = result
	s.err = err
	close(s.done)
}
