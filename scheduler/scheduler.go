// Package scheduler implements the render-farm coordinator's work
// distribution: a worker's batch-size controller, its stall sweep, and
// the get_work/upload_render/status_update operations.
package scheduler

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"renderfarm/config"
	"renderfarm/jobstore"
	"renderfarm/logger"
	"renderfarm/models"
)

// ErrNoWork is returned when no job currently has frames available to
// dispatch — including when the stall sweep, or a race draining todo
// first, leaves the chosen job's batch empty.
var ErrNoWork = errors.New("scheduler: no work available")

// Scheduler dispatches frames to workers and records their completion,
// operating entirely through a Store's locked read-modify-write cycle.
type Scheduler struct {
	store *jobstore.Store
}

// New returns a Scheduler backed by store.
func New(store *jobstore.Store) *Scheduler {
	return &Scheduler{store: store}
}

// GetWork picks a random job with available frames, reclaims any frames
// stalled past the status-update timeout, and hands workerID a batch of
// up to its current batch_size frames. It returns ErrNoWork if no job
// has anything left to hand out, including when the stall sweep leaves
// the chosen job's todo empty.
func (s *Scheduler) GetWork(workerID int) (jobID string, frames []int, err error) {
	active, err := s.store.ListActive()
	if err != nil {
		return "", nil, fmt.Errorf("scheduler: list active jobs: %w", err)
	}
	if len(active) == 0 {
		return "", nil, ErrNoWork
	}

	jobID = active[rand.IntN(len(active))]

	unlock := s.store.Lock(jobID)
	defer unlock()

	status, err := s.store.ReadStatus(jobID)
	if err != nil {
		return "", nil, fmt.Errorf("scheduler: read status %s: %w", jobID, err)
	}

	if _, ok := status.BatchSize[workerID]; !ok {
		status.BatchSize[workerID] = 1
		status.LastBatchUpdate[workerID] = time.Now()
	}

	sweepStalled(jobID, status)

	batchSize := int(status.BatchSize[workerID])
	if batchSize > len(status.Todo) {
		batchSize = len(status.Todo)
	}
	if batchSize == 0 {
		if err := s.store.WriteStatus(jobID, status); err != nil {
			return "", nil, err
		}
		return "", nil, ErrNoWork
	}

	frames = append([]int(nil), status.Todo[:batchSize]...)
	status.Todo = status.Todo[batchSize:]

	now := time.Now()
	for _, frame := range frames {
		status.Pending[frame] = now
		status.LastStatusUpdate[frame] = now
	}

	if err := s.store.WriteStatus(jobID, status); err != nil {
		return "", nil, err
	}
	return jobID, frames, nil
}

// sweepStalled moves every pending frame whose last status update is
// older than config.StatusTimeout back onto todo, logging a reclaim for
// each. This is an internal-only condition: it never surfaces as an
// error to a caller.
func sweepStalled(jobID string, status *models.Status) {
	now := time.Now()
	var stalled []int
	for frame, last := range status.LastStatusUpdate {
		if now.Sub(last) <= config.StatusTimeout {
			continue
		}
		if _, pending := status.Pending[frame]; !pending {
			continue
		}
		stalled = append(stalled, frame)
	}
	// Reclaim in ascending frame order so dispatch stays deterministic
	// regardless of map iteration order.
	sort.Ints(stalled)
	for _, frame := range stalled {
		delete(status.Pending, frame)
		delete(status.LastStatusUpdate, frame)
		status.Todo = append(status.Todo, frame)
		logger.Warnf("scheduler: reclaimed stalled frame job=%s frame=%d", jobID, frame)
	}
}

// UploadRender records a worker's completed frame: it commits the image
// bytes and moves the frame from pending to done, then — debounced to
// at most once per config.BatchUpdateMinInterval — adjusts the worker's
// batch size toward config.TargetBatchTime via exponential smoothing.
//
// If frame is not currently pending (already reclaimed by the stall
// sweep, or this is a duplicate upload), the image is still committed,
// frame is removed from todo if it is still queued there, and it is
// added to done only if not already present; the
// batch-size arithmetic is skipped since there is no pending start time
// to measure against.
//
// If workerID is unknown to the job's status record (it never called
// get_work against this job, or the coordinator restarted since), the
// completion still commits but the controller update is skipped rather
// than faulting on a missing last_batch_update entry.
func (s *Scheduler) UploadRender(workerID int, jobID string, frame int, image []byte) error {
	unlock := s.store.Lock(jobID)
	defer unlock()

	status, err := s.store.ReadStatus(jobID)
	if err != nil {
		return fmt.Errorf("scheduler: read status %s: %w", jobID, err)
	}

	pendingSince, wasPending := status.Pending[frame]
	if _, known := status.BatchSize[workerID]; known && wasPending {
		adjustBatchSize(status, workerID, pendingSince)
	}

	delete(status.Pending, frame)
	delete(status.LastStatusUpdate, frame)
	for i, f := range status.Todo {
		if f == frame {
			status.Todo = append(status.Todo[:i:i], status.Todo[i+1:]...)
			break
		}
	}
	if !containsInt(status.Done, frame) {
		status.Done = append(status.Done, frame)
	}

	if err := s.store.WriteRender(jobID, frame, image); err != nil {
		return fmt.Errorf("scheduler: write render %s/%d: %w", jobID, frame, err)
	}
	if err := s.store.WriteStatus(jobID, status); err != nil {
		return err
	}
	return nil
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// adjustBatchSize nudges the worker's batch size halfway toward the
// size that would have made its last batch take config.TargetBatchTime,
// clamped to [1, config.MaxBatchSize].
func adjustBatchSize(status *models.Status, workerID int, frameStartedAt time.Time) {
	now := time.Now()
	since := now.Sub(status.LastBatchUpdate[workerID])
	if since <= config.BatchUpdateMinInterval {
		return
	}

	currentBatch := status.BatchSize[workerID]
	avgFrameTime := now.Sub(frameStartedAt).Seconds() / currentBatch
	if avgFrameTime <= 0 {
		return
	}

	nominal := config.TargetBatchTime.Seconds() / avgFrameTime
	newBatch := currentBatch + (nominal-currentBatch)*0.5
	if newBatch < 1 {
		newBatch = 1
	}
	if newBatch > config.MaxBatchSize {
		newBatch = config.MaxBatchSize
	}

	status.BatchSize[workerID] = newBatch
	status.LastBatchUpdate[workerID] = now
}

// StatusUpdate refreshes the liveness timestamp for every frame a
// worker is still actively rendering, preventing the stall sweep from
// reclaiming frames that are merely slow.
func (s *Scheduler) StatusUpdate(jobID string, frames []int) error {
	unlock := s.store.Lock(jobID)
	defer unlock()

	status, err := s.store.ReadStatus(jobID)
	if err != nil {
		return fmt.Errorf("scheduler: read status %s: %w", jobID, err)
	}

	now := time.Now()
	for _, frame := range frames {
		if _, pending := status.Pending[frame]; pending {
			status.LastStatusUpdate[frame] = now
		}
	}

	return s.store.WriteStatus(jobID, status)
}
