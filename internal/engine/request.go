// Package engine executes operation chains: hooks, static validation,
// handler dispatch and result binding between steps.
package engine

import (
	"slices"
	"sync"

	"github.com/google/uuid"
)

// User is the caller of a request.
type User struct {
	ID string `json:"userId"`
	// DataAuths are the visibility labels the user may read.
	DataAuths []string `json:"dataAuths,omitempty"`
}

// CanSee reports whether the user holds every label in required.
func (u User) CanSee(required []string) bool {
	for _, r := range required {
		if !slices.Contains(u.DataAuths, r) {
			return false
		}
	}
	return true
}

// Failure records a delegate graph that failed under a skip policy.
type Failure struct {
	GraphID   string
	Operation string
	Err       error
}

// Request carries per-execution state: the user, a correlation id, set
// exports and skipped failures. It is shared by every step of a chain and
// safe for concurrent use.
type Request struct {
	User  User
	JobID string

	executor *Executor

	mu       sync.Mutex
	exports  map[string][]any
	failures []Failure
}

// NewRequest returns a request for user with a fresh correlation id.
func NewRequest(user User) *Request {
	return &Request{User: user, JobID: uuid.NewString()}
}

// Derive returns a request for the same user and correlation id with
// empty exports, for delegated execution.
func (r *Request) Derive() *Request {
	return &Request{User: r.User, JobID: r.JobID}
}

// Executor returns the executor running the request.
func (r *Request) Executor() *Executor {
	return r.executor
}

// Export stores items under key, replacing any previous set.
func (r *Request) Export(key string, items []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exports == nil {
		r.exports = map[string][]any{}
	}
	r.exports[key] = items
}

// Exported returns the items stored under key.
func (r *Request) Exported(key string) ([]any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items, ok := r.exports[key]
	return items, ok
}

// RecordFailure notes a skipped delegate failure.
func (r *Request) RecordFailure(f Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, f)
}

// Failures returns the skipped failures recorded so far.
func (r *Request) Failures() []Failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.failures)
}
