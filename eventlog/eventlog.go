// Package eventlog is a durable, append-only record of job lifecycle
// events — creation and per-frame completion — kept alongside the
// filesystem job store for audit and monitoring purposes, in one
// pebble-backed ledger keyed by sequence number and filtered by job id
// on read.
package eventlog

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pebble "github.com/cockroachdb/pebble"

	"renderfarm/logger"
)

// Event records one notable occurrence in a job's life.
type Event struct {
	JobID     string    `json:"job_id"`
	Kind      string    `json:"kind"` // "created" or "frame_done"
	Frame     int       `json:"frame,omitempty"`
	Frames    []int     `json:"frames,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	KindCreated   = "created"
	KindFrameDone = "frame_done"
)

// Log is a pebble-backed append log, one key per event, ordered by a
// monotonically increasing sequence number prefix so iteration yields
// events in occurrence order. Handlers append concurrently from
// multiple connection goroutines, so seq is guarded by mu.
type Log struct {
	db *pebble.DB

	mu  sync.Mutex
	seq uint64
}

// Open opens (creating if absent) an event log at dbPath, resuming the
// sequence counter from the highest key already persisted so a restart
// never overwrites events from a prior run.
func Open(dbPath string) (*Log, error) {
	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", dbPath, err)
	}
	l := &Log{db: db}
	if err := l.loadSeq(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) loadSeq() error {
	iter, err := l.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return fmt.Errorf("eventlog: scan existing events: %w", err)
	}
	defer iter.Close()

	var max uint64
	for iter.First(); iter.Valid(); iter.Next() {
		var n uint64
		fmt.Sscanf(string(iter.Key()), "%020d", &n)
		if n > max {
			max = n
		}
	}
	l.seq = max
	return iter.Error()
}

// Close closes the underlying store.
func (l *Log) Close() error {
	return l.db.Close()
}

// RecordJobCreated appends a "created" event naming the job's full
// requested frame set.
func (l *Log) RecordJobCreated(jobID string, frames []int) {
	l.append(Event{JobID: jobID, Kind: KindCreated, Frames: frames, Timestamp: time.Now()})
}

// RecordFrameDone appends a "frame_done" event for one completed frame.
func (l *Log) RecordFrameDone(jobID string, frame int) {
	l.append(Event{JobID: jobID, Kind: KindFrameDone, Frame: frame, Timestamp: time.Now()})
}

func (l *Log) append(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Errorf("eventlog: marshal event for job %s: %v", ev.JobID, err)
		return
	}

	l.mu.Lock()
	l.seq++
	seq := l.seq
	l.mu.Unlock()

	key := fmt.Sprintf("%020d", seq)
	if err := l.db.Set([]byte(key), data, pebble.Sync); err != nil {
		logger.Errorf("eventlog: append event for job %s: %v", ev.JobID, err)
	}
}

// ForJob returns every recorded event for jobID, in occurrence order.
func (l *Log) ForJob(jobID string) ([]Event, error) {
	iter, err := l.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("eventlog: iterate: %w", err)
	}
	defer iter.Close()

	var events []Event
	for iter.First(); iter.Valid(); iter.Next() {
		var ev Event
		if err := json.Unmarshal(iter.Value(), &ev); err != nil {
			continue
		}
		if ev.JobID == jobID {
			events = append(events, ev)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("eventlog: iteration error: %w", err)
	}
	return events, nil
}
