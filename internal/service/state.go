package service

import (
	"sync"

	"github.com/sakif/devfolio-web/internal/apperror"
)

// Phase is where a fetch is in its lifecycle.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	PhaseFailed  Phase = "failed"
)

// RequestState is what a page renders for one fetched value: nothing yet, a
// skeleton, the data, or an error message.
//
// Data is only meaningful in PhaseReady and Err only in PhaseFailed.
type RequestState[T any] struct {
	Phase     Phase
	Data      T
	Err       error
	Key       string // what was requested: a token fingerprint or a username
	RequestID uint64
}

// Kind is the apperror.Kind of a failed state, KindNone otherwise.
func (s RequestState[T]) Kind() apperror.Kind {
	if s.Phase != PhaseFailed {
		return apperror.KindNone
	}
	return apperror.KindOf(s.Err)
}

// Terminal reports whether the request has settled.
func (s RequestState[T]) Terminal() bool {
	return s.Phase == PhaseReady || s.Phase == PhaseFailed
}

// Slot holds the RequestState of one logical request (for example "my
// profile") across repeated fetches.
//
// STALE RESPONSES:
// Two fetches for the same slot can be in flight at once and finish in any
// order. Begin hands every fetch a new, strictly increasing id; Settle only
// applies a result whose id is still the newest. A slow first response that
// arrives after the second one is therefore dropped instead of overwriting it.
type Slot[T any] struct {
	mu     sync.Mutex
	nextID uint64
	state  RequestState[T]
}

// Begin starts a new request for key, publishes PhaseLoading and returns the
// id the result must be settled with.
func (s *Slot[T]) Begin(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.state = RequestState[T]{Phase: PhaseLoading, Key: key, RequestID: s.nextID}
	return s.nextID
}

// Settle records the outcome of request id. It returns false, and changes
// nothing, when a newer request has begun since or id already settled.
func (s *Slot[T]) Settle(id uint64, data T, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != s.nextID || s.state.RequestID != id || s.state.Terminal() {
		return false
	}
	s.state = Outcome(s.state.Key, id, data, err)
	return true
}

// Outcome is the terminal state of request id for key. A request that lost
// the race for its slot still has an outcome; it is just not the slot's.
func Outcome[T any](key string, id uint64, data T, err error) RequestState[T] {
	if err != nil {
		return RequestState[T]{Phase: PhaseFailed, Err: apperror.From(err), Key: key, RequestID: id}
	}
	return RequestState[T]{Phase: PhaseReady, Data: data, Key: key, RequestID: id}
}

// Reset returns the slot to PhaseIdle. Any request still in flight becomes
// stale.
func (s *Slot[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.state = RequestState[T]{Phase: PhaseIdle, RequestID: s.nextID}
}

// State returns a copy of the current state.
func (s *Slot[T]) State() RequestState[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
