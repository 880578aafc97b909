package jobs

import "sync"

// subscriberBuffer bounds the per-subscriber channel. A subscriber that
// falls this far behind is treated as disconnected and evicted, so a stuck
// SSE connection can never block an orchestrator.
const subscriberBuffer = 128

type subscriber struct {
	ch     chan ProgressMessage
	closed bool
}

// hub fans progress messages out to the live subscribers of each job. It
// carries no history; backlog replay is the store's job.
type hub struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[*subscriber]struct{})}
}

// subscribe registers a new listener for jobID and returns its channel plus
// a cancel func. Cancel is safe to call more than once and after the hub
// already closed the channel on terminal delivery.
func (h *hub) subscribe(jobID string) (<-chan ProgressMessage, func()) {
	sub := &subscriber{ch: make(chan ProgressMessage, subscriberBuffer)}

	h.mu.Lock()
	set, ok := h.subs[jobID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[jobID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.drop(jobID, sub)
	}
	return sub.ch, cancel
}

// publish delivers msg to every current subscriber of jobID, preserving the
// append order each subscriber observes. Terminal messages close the topic:
// all subscriber channels are closed and forgotten after delivery.
func (h *hub) publish(jobID string, msg ProgressMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.subs[jobID]
	for sub := range set {
		select {
		case sub.ch <- msg:
		default:
			// Slow consumer; evicting keeps delivery non-blocking.
			h.drop(jobID, sub)
		}
	}
	if msg.Terminal() {
		for sub := range h.subs[jobID] {
			h.drop(jobID, sub)
		}
	}
}

// drop must be called with h.mu held.
func (h *hub) drop(jobID string, sub *subscriber) {
	set, ok := h.subs[jobID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, jobID)
	}
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

// subscriberCount reports the number of live subscribers for jobID.
func (h *hub) subscriberCount(jobID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[jobID])
}
