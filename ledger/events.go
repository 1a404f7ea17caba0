package ledger

import (
	"sync"

	"github.com/ruteri/obscura-mint/interfaces"
)

const defaultSubscriptionBuffer = 64

// Events returns up to limit events starting at sequence number from.
// A zero limit returns everything after from.
func (l *Ledger) Events(from, limit uint64) []interfaces.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := uint64(len(l.events))
	if from >= total {
		return []interfaces.Event{}
	}
	end := total
	if limit > 0 && from+limit < total {
		end = from + limit
	}

	out := make([]interfaces.Event, end-from)
	copy(out, l.events[from:end])
	return out
}

// EventCount returns the sequence number the next event will get.
func (l *Ledger) EventCount() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.events))
}

// Subscription delivers events committed after it was created.
// The channel is closed when the subscriber falls behind by more than its
// buffer, on Unsubscribe and when the ledger closes. A lagging subscriber
// can resume from Events(lastSeq+1, ...).
type Subscription struct {
	ch     chan interfaces.Event
	owner  *subscribers
	closed bool
}

// Events returns the delivery channel.
func (s *Subscription) Events() <-chan interfaces.Event {
	return s.ch
}

func (s *Subscription) Unsubscribe() {
	s.owner.remove(s)
}

// Subscribe registers a new subscriber. buffer <= 0 selects the default size.
func (l *Ledger) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultSubscriptionBuffer
	}
	sub := &Subscription{ch: make(chan interfaces.Event, buffer), owner: &l.subs}
	l.subs.add(sub)
	return sub
}

type subscribers struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func (s *subscribers) add(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[*Subscription]struct{})
	}
	s.subs[sub] = struct{}{}
}

func (s *subscribers) remove(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(sub)
}

func (s *subscribers) dropLocked(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	delete(s.subs, sub)
	close(sub.ch)
}

// publish never blocks: a subscriber with a full buffer is dropped.
func (s *subscribers) publish(events []interfaces.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sub := range s.subs {
		for _, ev := range events {
			select {
			case sub.ch <- ev:
			default:
				s.dropLocked(sub)
			}
			if sub.closed {
				break
			}
		}
	}
}

func (s *subscribers) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		s.dropLocked(sub)
	}
}
