// Package mirrorqueue durably queues and drains the render-mirroring
// work generated by completed frames: a pending task survives a
// coordinator restart since it lives in a pebble store, and the drain
// loop runs a bounded worker pool over it.
package mirrorqueue

import (
	"encoding/json"
	"fmt"
	"sync"

	pebble "github.com/cockroachdb/pebble"

	"renderfarm/credentials"
	"renderfarm/jobstore"
	"renderfarm/logger"
	"renderfarm/mirror"
	"renderfarm/models"
)

const (
	taskPrefix = "task:"
	specPrefix = "specs:"
)

type task struct {
	JobID string `json:"job_id"`
	Frame int    `json:"frame"`
}

// Queue is a durable FIFO of pending mirror tasks, plus the per-job set
// of mirror destinations registered at create_job time.
type Queue struct {
	db       *pebble.DB
	store    *jobstore.Store
	creds    *credentials.Store
	backends *mirror.Registry

	mu  sync.Mutex
	seq uint64
}

// Open opens (creating if absent) a mirror queue at dbPath, wired to
// the job store for reading rendered bytes, the credential store for
// resolving destinations, and a backend registry for performing the
// actual copy.
func Open(dbPath string, store *jobstore.Store, creds *credentials.Store, backends *mirror.Registry) (*Queue, error) {
	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("mirrorqueue: open %s: %w", dbPath, err)
	}
	q := &Queue{db: db, store: store, creds: creds, backends: backends}
	if err := q.loadSeq(); err != nil {
		db.Close()
		return nil, err
	}
	return q, nil
}

func (q *Queue) loadSeq() error {
	iter, err := q.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(taskPrefix),
		UpperBound: []byte(taskPrefix + "\xff"),
	})
	if err != nil {
		return fmt.Errorf("mirrorqueue: scan existing tasks: %w", err)
	}
	defer iter.Close()

	var max uint64
	for iter.First(); iter.Valid(); iter.Next() {
		var n uint64
		fmt.Sscanf(string(iter.Key()[len(taskPrefix):]), "%020d", &n)
		if n > max {
			max = n
		}
	}
	q.seq = max
	return iter.Error()
}

// Close closes the underlying store.
func (q *Queue) Close() error {
	return q.db.Close()
}

// RegisterJobMirrors persists the mirror destinations a job was created
// with, so later Enqueue calls know where to copy each completed frame.
func (q *Queue) RegisterJobMirrors(jobID string, specs []models.MirrorSpec) error {
	data, err := json.Marshal(specs)
	if err != nil {
		return fmt.Errorf("mirrorqueue: encode specs for %s: %w", jobID, err)
	}
	return q.db.Set([]byte(specPrefix+jobID), data, pebble.Sync)
}

func (q *Queue) jobMirrors(jobID string) ([]models.MirrorSpec, error) {
	value, closer, err := q.db.Get([]byte(specPrefix + jobID))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("mirrorqueue: read specs for %s: %w", jobID, err)
	}
	defer closer.Close()

	var specs []models.MirrorSpec
	if err := json.Unmarshal(value, &specs); err != nil {
		return nil, fmt.Errorf("mirrorqueue: decode specs for %s: %w", jobID, err)
	}
	return specs, nil
}

// Enqueue durably records that frame of jobID should be mirrored. A
// no-op (returns nil immediately) if the job has no registered mirror
// destinations.
func (q *Queue) Enqueue(jobID string, frame int) error {
	specs, err := q.jobMirrors(jobID)
	if err != nil {
		logger.Errorf("mirrorqueue: %v", err)
		return err
	}
	if len(specs) == 0 {
		return nil
	}

	q.mu.Lock()
	q.seq++
	key := fmt.Sprintf("%s%020d", taskPrefix, q.seq)
	q.mu.Unlock()

	data, err := json.Marshal(task{JobID: jobID, Frame: frame})
	if err != nil {
		return fmt.Errorf("mirrorqueue: encode task: %w", err)
	}
	return q.db.Set([]byte(key), data, pebble.Sync)
}
