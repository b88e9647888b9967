package exam

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultRequestTTL is how long a finished tutor request stays pollable.
const DefaultRequestTTL = 10 * time.Minute

// RequestStatus is the state of an asynchronous tutor request.
type RequestStatus string

const (
	StatusProcessing RequestStatus = "processing"
	StatusSuccess    RequestStatus = "success"
	StatusError      RequestStatus = "error"
)

// RequestState is a snapshot of one tracked request.
type RequestState struct {
	ID         string        `json:"requestId"`
	Status     RequestStatus `json:"status"`
	Response   string        `json:"response,omitempty"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// RequestTracker holds the state of in-flight and recently finished tutor
// requests. Finished entries are evicted after the TTL.
type RequestTracker struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*RequestState
	now     func() time.Time
}

// NewRequestTracker creates a tracker; a non-positive ttl uses DefaultRequestTTL.
func NewRequestTracker(ttl time.Duration) *RequestTracker {
	if ttl <= 0 {
		ttl = DefaultRequestTTL
	}
	return &RequestTracker{
		ttl:     ttl,
		entries: make(map[string]*RequestState),
		now:     time.Now,
	}
}

// Start registers a new processing request and returns its ID.
func (t *RequestTracker) Start() string {
	id := uuid.NewString()
	t.mu.Lock()
	t.entries[id] = &RequestState{ID: id, Status: StatusProcessing, StartedAt: t.now().UTC()}
	t.mu.Unlock()
	return id
}

// Succeed marks a request finished with a response.
func (t *RequestTracker) Succeed(id, response string) {
	t.finish(id, StatusSuccess, response, "")
}

// Fail marks a request finished with an error message.
func (t *RequestTracker) Fail(id, msg string) {
	t.finish(id, StatusError, "", msg)
}

func (t *RequestTracker) finish(id string, status RequestStatus, response, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return
	}
	now := t.now().UTC()
	e.Status = status
	e.Response = response
	e.Error = msg
	e.FinishedAt = &now
}

func (t *RequestTracker) expired(e *RequestState, now time.Time) bool {
	return e.FinishedAt != nil && now.Sub(*e.FinishedAt) > t.ttl
}

// Get returns a copy of the request state. Expired entries are evicted and
// reported as missing.
func (t *RequestTracker) Get(id string) (RequestState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return RequestState{}, false
	}
	if t.expired(e, t.now()) {
		delete(t.entries, id)
		return RequestState{}, false
	}
	return *e, true
}

// Sweep evicts expired entries and returns how many were removed.
func (t *RequestTracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	n := 0
	for id, e := range t.entries {
		if t.expired(e, now) {
			delete(t.entries, id)
			n++
		}
	}
	return n
}

// Len returns the number of tracked requests.
func (t *RequestTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Run sweeps expired entries until ctx is canceled.
func (t *RequestTracker) Run(ctx context.Context) {
	interval := t.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}
