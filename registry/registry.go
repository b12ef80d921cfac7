// Package registry allocates worker ids for the lifetime of a single
// coordinator process: worker_init hands back a fresh, collision-free
// id that the worker then presents on every subsequent request. Ids are
// drawn with math/rand/v2 since they are never security-sensitive, only
// unique.
package registry

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

// maxWorkerID bounds the allocatable id space; an id is not handed out
// again until it is released, so a generous range keeps collisions and
// retries rare even under sustained worker churn.
const maxWorkerID = 100000

const maxAllocAttempts = 10000

// Registry tracks the set of worker ids allocated since the coordinator
// started. It holds no durable state — a restart resets every worker's
// identity; worker ids are process-lifetime only.
type Registry struct {
	mu    sync.Mutex
	taken map[int]struct{}
}

// New returns an empty worker registry.
func New() *Registry {
	return &Registry{taken: make(map[int]struct{})}
}

// Allocate returns a fresh worker id not currently in use.
func (r *Registry) Allocate() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 0; attempt < maxAllocAttempts; attempt++ {
		id := rand.IntN(maxWorkerID)
		if _, taken := r.taken[id]; taken {
			continue
		}
		r.taken[id] = struct{}{}
		return id, nil
	}
	return 0, fmt.Errorf("registry: exhausted %d attempts allocating a worker id", maxAllocAttempts)
}

// Release frees a worker id, e.g. when a connection closes, so a
// long-running coordinator does not spuriously exhaust the id space.
func (r *Registry) Release(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.taken, id)
}

// Known reports whether id was allocated by this registry and has not
// since been released. The scheduler tracks "worker known to a job"
// against its own per-job batch_size map rather than this process-wide
// registry, since a worker can be known to the coordinator yet have
// never called get_work against a particular job; Known is exposed for
// callers (admin tooling, tests) that need the coarser, process-wide
// notion of liveness.
func (r *Registry) Known(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.taken[id]
	return ok
}
