// Package notify delivers one-shot capture completion results to waiters.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/hpungsan/jot/internal/note"
)

// Result is the completion signal for one capture.
type Result struct {
	Classification note.Classification `json:"classification"`
	Category       note.Category       `json:"category"`
}

// TimeoutResult is delivered to a waiter whose bound expires first.
var TimeoutResult = Result{Classification: note.ClassTimeout, Category: note.CategoryUnknown}

// ResultFor builds the result reported for a finished capture.
func ResultFor(c *note.Capture) Result {
	res := Result{Category: note.CategoryUnknown}
	if c.Classification != nil {
		res.Classification = *c.Classification
	}
	if c.Category != nil && c.Category.Valid() {
		res.Category = *c.Category
	}
	return res
}

// Registry maps capture ids to waiting subscribers. Entries are removed on
// delivery or when the waiter gives up, so the map never outlives its waiters.
type Registry struct {
	timeout time.Duration

	mu      sync.Mutex
	waiters map[string]map[*Subscription]struct{}
}

// NewRegistry returns a registry whose waiters time out after timeout.
func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		timeout: timeout,
		waiters: make(map[string]map[*Subscription]struct{}),
	}
}

// Subscription is one registered waiter for a capture.
type Subscription struct {
	r  *Registry
	id string
	ch chan Result
}

// Subscribe registers a waiter for id. Callers should subscribe before
// checking whether the capture already finished, so no result slips between.
func (r *Registry) Subscribe(id string) *Subscription {
	s := &Subscription{r: r, id: id, ch: make(chan Result, 1)}
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.waiters[id]
	if !ok {
		set = make(map[*Subscription]struct{})
		r.waiters[id] = set
	}
	set[s] = struct{}{}
	return s
}

// Notify delivers res to every waiter on id and clears the entry.
// It returns how many waiters were notified.
func (r *Registry) Notify(id string, res Result) int {
	r.mu.Lock()
	set := r.waiters[id]
	delete(r.waiters, id)
	r.mu.Unlock()

	for s := range set {
		// Buffered with capacity 1 and only sent to once.
		s.ch <- res
	}
	return len(set)
}

// Pending returns the number of waiters registered for id.
func (r *Registry) Pending(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters[id])
}

// Wait blocks until the result arrives, the registry timeout elapses, or ctx
// ends. On timeout it unregisters and returns TimeoutResult.
func (s *Subscription) Wait(ctx context.Context) (Result, error) {
	timer := time.NewTimer(s.r.timeout)
	defer timer.Stop()

	select {
	case res := <-s.ch:
		return res, nil
	case <-timer.C:
		if s.cancel() {
			return TimeoutResult, nil
		}
		// Notify won the race; its value is already buffered.
		return <-s.ch, nil
	case <-ctx.Done():
		s.Cancel()
		return Result{}, ctx.Err()
	}
}

// Deliver completes the subscription directly, used when the capture turned
// out to be finished already. It also unregisters the waiter.
func (s *Subscription) Deliver(res Result) {
	if s.cancel() {
		s.ch <- res
	}
}

// Cancel unregisters the waiter without delivering anything.
func (s *Subscription) Cancel() {
	s.cancel()
}

// cancel removes s from the registry and reports whether it was still registered.
func (s *Subscription) cancel() bool {
	r := s.r
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.waiters[s.id]
	if !ok {
		return false
	}
	if _, ok := set[s]; !ok {
		return false
	}
	delete(set, s)
	if len(set) == 0 {
		delete(r.waiters, s.id)
	}
	return true
}
