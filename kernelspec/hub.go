package kernelspec

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultCoalesceWindow is the broadcast deferral window. Updates landing
// inside one window collapse into a single delivered event, so subscribers
// see at most one version change per window.
const DefaultCoalesceWindow = 4 * time.Millisecond

// Event is one accepted spec update. The hub retains only the current
// snapshot plus at most one pending broadcast.
type Event struct {
	Spec      Spec      `json:"spec"`
	Version   uint64    `json:"version"`
	Changed   []string  `json:"changed,omitempty"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// UpdateOptions controls how Hub.Update treats a patch.
type UpdateOptions struct {
	// Force publishes an event even when the merged spec is unchanged.
	Force bool
	// Source is a free-form label recorded on the event.
	Source string
}

// HubStats is a diagnostics snapshot.
type HubStats struct {
	Subscribers int
	Version     uint64
	LastSource  string
	// Coalesced counts accepted updates that were superseded before delivery.
	Coalesced uint64
	// DispatchLatency is the wall-clock delta between the last delivered
	// event's creation and its delivery.
	DispatchLatency time.Duration
}

// HubConfig parameterizes NewHub. The zero value is usable.
type HubConfig struct {
	// Initial is merged over the default spec to form the version-0 snapshot.
	Initial Patch
	// Window overrides DefaultCoalesceWindow when positive.
	Window time.Duration
	Logger *zap.Logger
	// Now overrides the timestamp source, mainly for tests.
	Now func() time.Time
}

type subscription struct {
	id int
	fn func(Event)
}

// Hub distributes versioned spec changes to subscribers. Delivery is
// deferred through the coalescing window and always happens off the
// updater's stack; only the latest pending event survives a burst.
type Hub struct {
	// dispatchMu serializes deliveries so subscribers observe versions in
	// order. Lock order: dispatchMu before mu.
	dispatchMu sync.Mutex

	mu        sync.Mutex
	current   Event
	pending   *Event
	timer     *time.Timer
	subs      []subscription
	nextSubID int
	closed    bool
	coalesced uint64
	latency   time.Duration

	window time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewHub builds a hub whose version-0 snapshot is Default() merged with
// cfg.Initial.
func NewHub(cfg HubConfig) *Hub {
	h := &Hub{
		window: cfg.Window,
		now:    cfg.Now,
		logger: cfg.Logger,
	}
	if h.window <= 0 {
		h.window = DefaultCoalesceWindow
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	h.current = Event{
		Spec:      New(cfg.Initial),
		Source:    "init",
		Timestamp: h.now(),
	}
	return h
}

// Update merges the patch into the current spec. It returns nil without
// broadcasting when nothing changed and Force is unset; otherwise it assigns
// the next version, stores the new snapshot, schedules a coalesced broadcast,
// and returns a copy of the accepted event. Subscribers are never invoked on
// the caller's stack.
func (h *Hub) Update(p Patch, opts UpdateOptions) *Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	next := h.current.Spec.With(p)
	changed := Diff(h.current.Spec, next)
	if len(changed) == 0 && !opts.Force {
		return nil
	}
	ev := Event{
		Spec:      next,
		Version:   h.current.Version + 1,
		Changed:   changed,
		Source:    opts.Source,
		Timestamp: h.now(),
	}
	h.current = ev
	if h.pending != nil {
		h.coalesced++
	}
	pending := ev
	h.pending = &pending
	if h.timer == nil {
		h.timer = time.AfterFunc(h.window, h.Flush)
	}
	h.logger.Debug("kernel spec updated",
		zap.Uint64("version", ev.Version),
		zap.String("source", ev.Source),
		zap.Strings("changed", ev.Changed))
	return &ev
}

// Snapshot returns the current event. Version 0 is the construction snapshot.
func (h *Hub) Snapshot() Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Subscribe registers a listener for future broadcasts and returns its
// unsubscribe handle. With immediate set, the listener is invoked once,
// synchronously, with the snapshot as of subscription; deliveries already in
// flight are ordered after that callback.
func (h *Hub) Subscribe(fn func(Event), immediate bool) func() {
	if fn == nil {
		return func() {}
	}
	h.dispatchMu.Lock()
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		h.dispatchMu.Unlock()
		return func() {}
	}
	id := h.nextSubID
	h.nextSubID++
	h.subs = append(h.subs, subscription{id: id, fn: fn})
	snap := h.current
	h.mu.Unlock()
	if immediate {
		fn(snap)
	}
	h.dispatchMu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, s := range h.subs {
			if s.id == id {
				h.subs = append(h.subs[:i], h.subs[i+1:]...)
				break
			}
		}
	}
}

// Flush delivers the pending event now, if any. The scheduled timer calls
// this; tests call it to make coalescing deterministic.
func (h *Hub) Flush() {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()

	h.mu.Lock()
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	ev := h.pending
	h.pending = nil
	var subs []subscription
	if ev != nil {
		subs = append(subs, h.subs...)
		h.latency = h.now().Sub(ev.Timestamp)
	}
	h.mu.Unlock()

	if ev == nil {
		return
	}
	for _, s := range subs {
		s.fn(*ev)
	}
	h.logger.Debug("kernel spec broadcast",
		zap.Uint64("version", ev.Version),
		zap.Int("subscribers", len(subs)))
}

// Close flushes any pending broadcast, then drops all subscribers and
// rejects further updates.
func (h *Hub) Close() {
	h.Flush()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.subs = nil
}

// Stats returns hub diagnostics.
func (h *Hub) Stats() HubStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HubStats{
		Subscribers:     len(h.subs),
		Version:         h.current.Version,
		LastSource:      h.current.Source,
		Coalesced:       h.coalesced,
		DispatchLatency: h.latency,
	}
}
