package dispatcher

import (
	"sync"
	"time"
)

type breakerState int

const (
	stClosed breakerState = iota
	stOpen
	stHalfOpen
)

// MicroBreaker is a small per-endpoint circuit breaker: consecutive failures
// open it for a fixed interval, after which a single probe is let through.
type MicroBreaker struct {
	mu               sync.Mutex
	st               breakerState
	consecutiveFails int
	failThreshold    int
	openFor          time.Duration
	nextTryAt        time.Time
	probeInFlight    bool
}

func NewMicroBreaker(threshold int, openFor time.Duration) *MicroBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if openFor <= 0 {
		openFor = 15 * time.Second
	}
	return &MicroBreaker{failThreshold: threshold, openFor: openFor}
}

// TryAcquire reports whether a call may proceed, reserving the probe slot when
// the breaker is recovering.
func (b *MicroBreaker) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.st {
	case stClosed:
		return true
	case stOpen:
		if time.Now().After(b.nextTryAt) && !b.probeInFlight {
			b.st = stHalfOpen
			b.probeInFlight = true
			return true
		}
		return false
	case stHalfOpen:
		if !b.probeInFlight {
			b.probeInFlight = true
			return true
		}
		return false
	default:
		return true
	}
}

func (b *MicroBreaker) OnSuccess() {
	b.mu.Lock()
	b.consecutiveFails = 0
	b.st = stClosed
	b.probeInFlight = false
	b.mu.Unlock()
}

func (b *MicroBreaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.st == stHalfOpen {
		b.st = stOpen
		b.nextTryAt = time.Now().Add(b.openFor)
		b.probeInFlight = false
		return
	}

	b.consecutiveFails++
	if b.consecutiveFails >= b.failThreshold {
		b.st = stOpen
		b.nextTryAt = time.Now().Add(b.openFor)
	}
}

// breakerSet lazily tracks one breaker per subscription endpoint.
type breakerSet struct {
	mu        sync.Mutex
	byID      map[string]*MicroBreaker
	threshold int
	openFor   time.Duration
}

func newBreakerSet(threshold int, openFor time.Duration) *breakerSet {
	return &breakerSet{
		byID:      make(map[string]*MicroBreaker),
		threshold: threshold,
		openFor:   openFor,
	}
}

func (s *breakerSet) get(id string) *MicroBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	br, ok := s.byID[id]
	if !ok {
		br = NewMicroBreaker(s.threshold, s.openFor)
		s.byID[id] = br
	}
	return br
}
