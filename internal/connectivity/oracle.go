// Package connectivity reports whether the remote store is reachable.
//
// An Oracle exposes the current state and a stream of edge transitions.
// Three sources are provided:
//   - Manual: set by the embedding program (tests, the "online" CLI mode)
//   - FlagFile: offline while a flag file exists in the data directory
//   - Probe: polls the remote health endpoint on an interval
//
// Subscribers only ever see edges; setting the state it already has is a
// no-op.
package connectivity

import (
	"sync"
	"time"
)

// Transition is an online/offline edge.
type Transition struct {
	Online bool
	At     time.Time
}

// Oracle is the connectivity signal consumed by the sync engine.
type Oracle interface {
	// Online reports the current state.
	Online() bool

	// Subscribe returns a channel of transitions and a cancel function
	// that unregisters and closes it.
	Subscribe() (<-chan Transition, func())
}

// subscriberBuffer bounds each subscriber channel. A subscriber that falls
// this far behind misses intermediate edges but still sees the latest state
// on its next receive.
const subscriberBuffer = 8

// hub holds the state and fans transitions out to subscribers.
type hub struct {
	mu     sync.Mutex
	online bool
	subs   map[int]chan Transition
	nextID int
}

func newHub(online bool) *hub {
	return &hub{online: online, subs: make(map[int]chan Transition)}
}

func (h *hub) Online() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.online
}

func (h *hub) Subscribe() (<-chan Transition, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Transition, subscriberBuffer)
	h.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

// set changes the state and reports whether it was an edge.
func (h *hub) set(online bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.online == online {
		return false
	}
	h.online = online

	t := Transition{Online: online, At: time.Now()}
	for _, ch := range h.subs {
		select {
		case ch <- t:
		default:
			// Full: drop the oldest edge so the newest one lands.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- t:
			default:
			}
		}
	}
	return true
}

// closeAll closes every subscriber channel.
func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// Manual is an Oracle set programmatically.
type Manual struct {
	*hub
}

// NewManual returns a Manual oracle in the given state.
func NewManual(online bool) *Manual {
	return &Manual{hub: newHub(online)}
}

// Set changes the state, notifying subscribers on an edge.
func (m *Manual) Set(online bool) {
	m.set(online)
}
