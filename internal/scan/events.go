package scan

import (
	"sync"
)

// EventKind discriminates scan notifications.
type EventKind string

const (
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventCancelled EventKind = "cancelled"
	EventFailed    EventKind = "failed"
)

// Event is one scan notification. Progress events carry the path most
// recently upserted; terminal events (completed/cancelled/failed) carry the
// final counters and, for failures, a reason.
type Event struct {
	Kind          EventKind `json:"kind"`
	ScanID        int64     `json:"scan_id"`
	RootPath      string    `json:"root_path"`
	CurrentTarget string    `json:"current_target,omitempty"`
	FilesSeen     int64     `json:"files_seen"`
	FilesInserted int64     `json:"files_inserted"`
	Errors        int64     `json:"errors"`
	Reason        string    `json:"reason,omitempty"`
}

// Terminal reports whether e ends a scan session.
func (e Event) Terminal() bool {
	return e.Kind != EventProgress
}

// subscriberBuffer is the per-subscriber channel depth. Slow subscribers
// lose progress events once their buffer fills; terminal events always land.
const subscriberBuffer = 64

// Notifier fans scan events out to subscribers in publish order. Only the
// scan goroutine publishes, so subscribers observe events in the order the
// coordinator emitted them, and a session's terminal event is always the
// last event they see for that session.
type Notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

// NewNotifier returns an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]chan Event)}
}

// Subscribe registers a new observer. The returned cancel function
// unregisters it and closes the channel; it is safe to call twice.
func (n *Notifier) Subscribe() (<-chan Event, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	ch := make(chan Event, subscriberBuffer)
	n.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if c, ok := n.subs[id]; ok {
				delete(n.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber. A full subscriber buffer drops
// the progress event for that subscriber only; for terminal events the
// oldest buffered event is evicted instead, so the terminal notification is
// never lost.
func (n *Notifier) Publish(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		if !ev.Terminal() {
			continue
		}
		// Make room: the subscriber is behind anyway, and a terminal event
		// supersedes any stale progress.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}
