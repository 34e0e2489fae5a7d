package activation

import "sync"

// Reactivatable is a proxy that may have to rejoin scheduling after it was
// disabled.
type Reactivatable interface {
	ID() int
	IsAlive() bool

	// NeedsReactivation tells if the proxy still wants to be scheduled at
	// the time the pending set is flushed.
	NeedsReactivation() bool

	// Reactivate registers the proxy with the scheduler again.
	Reactivate()
}

// PendingSet collects disabled proxies until the main goroutine is known and
// then hands them back to the scheduler through the captured Dispatcher.
type PendingSet struct {
	lock       sync.Mutex
	items      []Reactivatable
	ids        map[int]bool
	dispatcher Dispatcher
	flushOwed  bool
}

// NewPendingSet creates an empty PendingSet.
func NewPendingSet() *PendingSet {
	return &PendingSet{ids: make(map[int]bool)}
}

// RegisterDisabledProxy queues p. The first item added to an empty set
// schedules a flush on the captured dispatcher, or marks the flush as owed if
// no dispatcher is known yet.
func (s *PendingSet) RegisterDisabledProxy(p Reactivatable) {
	s.lock.Lock()

	if s.ids[p.ID()] {
		s.lock.Unlock()
		return
	}

	s.ids[p.ID()] = true
	s.items = append(s.items, p)

	var dispatcher Dispatcher
	if len(s.items) == 1 {
		if s.dispatcher != nil {
			dispatcher = s.dispatcher
		} else {
			s.flushOwed = true
		}
	}

	s.lock.Unlock()

	if dispatcher != nil {
		dispatcher.Post(s.Flush)
	}
}

// OnContextCaptured records the main goroutine dispatcher. Only the first
// dispatcher is kept. A flush owed from earlier registrations is posted to it.
func (s *PendingSet) OnContextCaptured(d Dispatcher) {
	s.lock.Lock()

	if s.dispatcher != nil {
		s.lock.Unlock()
		return
	}

	s.dispatcher = d
	owed := s.flushOwed
	s.flushOwed = false

	s.lock.Unlock()

	if owed {
		d.Post(s.Flush)
	}
}

// IsCaptured tells if the dispatcher is known.
func (s *PendingSet) IsCaptured() bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.dispatcher != nil
}

// Len returns the number of proxies waiting for a flush.
func (s *PendingSet) Len() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return len(s.items)
}

// Flush empties the set and reactivates every proxy that is still alive and
// still wants to be scheduled. Proxies are called without holding the lock.
func (s *PendingSet) Flush() {
	s.lock.Lock()
	items := s.items
	s.items = nil
	s.ids = make(map[int]bool)
	s.lock.Unlock()

	for _, p := range items {
		if !p.IsAlive() || !p.NeedsReactivation() {
			continue
		}

		p.Reactivate()
	}
}
