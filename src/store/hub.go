package store

import (
	"sync"

	"github.com/username/budgetwise/backend/src/logger"
)

// snapshotFn produces the current full snapshot for a collection and filter.
type snapshotFn func(collection string, filter Filter) (Snapshot, error)

type subscriber struct {
	collection string
	filter     Filter
	ch         chan Snapshot
	once       sync.Once
}

// deliver pushes a snapshot with latest-wins coalescing: a pending undelivered
// snapshot is replaced rather than queued, so a slow consumer skips straight
// to the newest consistent state.
func (s *subscriber) deliver(snap Snapshot) {
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- snap:
	default:
	}
}

// hub fans mutations out to snapshot subscribers. Both store backends embed
// one; the backend calls broadcast after every committed mutation.
type hub struct {
	mu       sync.Mutex
	subs     map[int]*subscriber
	nextID   int
	snapshot snapshotFn
	closed   bool
}

func newHub(fn snapshotFn) *hub {
	return &hub{
		subs:     make(map[int]*subscriber),
		snapshot: fn,
	}
}

func (h *hub) subscribe(collection string, filter Filter) (<-chan Snapshot, UnsubscribeFunc) {
	sub := &subscriber{
		collection: collection,
		filter:     filter,
		ch:         make(chan Snapshot, 1),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.once.Do(func() { close(sub.ch) })
		return sub.ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = sub

	// Initial snapshot so the consumer starts level-triggered, not on the
	// next mutation. Delivered under the hub lock so close cannot slip in
	// between registration and delivery.
	if snap, err := h.snapshot(collection, filter); err == nil {
		sub.deliver(snap)
	} else {
		logger.L.Error("Failed to compute initial subscription snapshot", "collection", collection, "error", err)
	}
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		// After removal from subs no broadcast can reach this channel, so
		// the pending snapshot can be drained before closing. The consumer
		// then observes the closed channel without a stale trailing read.
		sub.once.Do(func() {
			select {
			case <-sub.ch:
			default:
			}
			close(sub.ch)
		})
	}
	return sub.ch, unsubscribe
}

// broadcast recomputes and delivers the snapshot for every subscriber whose
// filter covers the mutated owner. Runs under the hub lock so consecutive
// snapshots reach each subscriber in emission order.
func (h *hub) broadcast(collection, ownerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, sub := range h.subs {
		if sub.collection != collection {
			continue
		}
		if sub.filter.OwnerID != "" && sub.filter.OwnerID != ownerID {
			continue
		}
		snap, err := h.snapshot(sub.collection, sub.filter)
		if err != nil {
			logger.L.Error("Failed to compute subscription snapshot", "collection", collection, "error", err)
			continue
		}
		sub.deliver(snap)
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		sub.once.Do(func() { close(sub.ch) })
	}
}
