package utils

import (
	"sync"
	"time"
)

// RateLimiter enforces a minimum delay between successive operations against
// the same listing site. Safe for concurrent use.
type RateLimiter struct {
	mu       sync.Mutex
	minDelay time.Duration
	last     time.Time
}

// NewRateLimiter creates a RateLimiter with the given minimum interval.
func NewRateLimiter(minDelay time.Duration) *RateLimiter {
	return &RateLimiter{minDelay: minDelay}
}

// Wait blocks until at least the minimum delay has passed since the previous
// call, then records the current time.
func (r *RateLimiter) Wait() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if elapsed := time.Since(r.last); elapsed < r.minDelay {
		time.Sleep(r.minDelay - elapsed)
	}
	r.last = time.Now()
}

// WorkerPool manages a bounded pool of goroutines sharing one rate limiter.
// Collectors use it to fan out to detail pages without hammering a site.
type WorkerPool struct {
	semaphore chan struct{}
	limiter   *RateLimiter
	wg        sync.WaitGroup
}

// NewWorkerPool creates a WorkerPool with the given concurrency and minimum
// delay between job starts.
func NewWorkerPool(maxWorkers int, minDelay time.Duration) *WorkerPool {
	return &WorkerPool{
		semaphore: make(chan struct{}, maxWorkers),
		limiter:   NewRateLimiter(minDelay),
	}
}

// Submit enqueues a job for execution in the pool.
func (wp *WorkerPool) Submit(job func()) {
	wp.wg.Add(1)
	wp.semaphore <- struct{}{}

	go func() {
		defer wp.wg.Done()
		defer func() { <-wp.semaphore }()

		wp.limiter.Wait()
		job()
	}()
}

// Wait blocks until all submitted jobs have completed.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// StringSet is a thread-safe set of strings, used for visited URLs and for
// the per-run seen-identity set.
type StringSet struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewStringSet creates an empty StringSet.
func NewStringSet() *StringSet {
	return &StringSet{seen: make(map[string]struct{})}
}

// Add returns true if the value was newly added, false if already present.
func (s *StringSet) Add(v string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[v]; exists {
		return false
	}
	s.seen[v] = struct{}{}
	return true
}

// Contains reports whether the value is present.
func (s *StringSet) Contains(v string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.seen[v]
	return exists
}

// Values returns a snapshot of the set contents.
func (s *StringSet) Values() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{}, len(s.seen))
	for v := range s.seen {
		out[v] = struct{}{}
	}
	return out
}

// Size returns the number of unique values tracked.
func (s *StringSet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}
