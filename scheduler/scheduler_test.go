package scheduler

import (
	"math"
	"testing"
	"time"

	"renderfarm/config"
	"renderfarm/jobstore"
)

func newTestScheduler(t *testing.T) (*Scheduler, *jobstore.Store) {
	t.Helper()
	store, err := jobstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("jobstore.New: %v", err)
	}
	return New(store), store
}

func TestGetWorkInitialBatchSizeIsOne(t *testing.T) {
	sched, store := newTestScheduler(t)

	jobID, err := store.Create([]byte("bundle"), []int{0, 1, 2, 3, 4}, true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	gotJob, frames, err := sched.GetWork(1)
	if err != nil {
		t.Fatalf("GetWork: %v", err)
	}
	if gotJob != jobID {
		t.Errorf("job id = %s, want %s", gotJob, jobID)
	}
	if len(frames) != 1 || frames[0] != 0 {
		t.Errorf("frames = %v, want [0] (initial batch size 1, lowest frame first)", frames)
	}
}

func TestGetWorkNoWorkWhenStoreEmpty(t *testing.T) {
	sched, _ := newTestScheduler(t)

	if _, _, err := sched.GetWork(1); err != ErrNoWork {
		t.Errorf("GetWork error = %v, want ErrNoWork", err)
	}
}

func TestUploadRenderMovesFrameToDone(t *testing.T) {
	sched, store := newTestScheduler(t)

	jobID, err := store.Create([]byte("bundle"), []int{0}, true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, _, err := sched.GetWork(1); err != nil {
		t.Fatalf("GetWork: %v", err)
	}

	if err := sched.UploadRender(1, jobID, 0, []byte("jpeg")); err != nil {
		t.Fatalf("UploadRender: %v", err)
	}

	status, err := store.ReadStatus(jobID)
	if err != nil {
		t.Fatalf("ReadStatus: %v", err)
	}
	if len(status.Done) != 1 || status.Done[0] != 0 {
		t.Errorf("done = %v, want [0]", status.Done)
	}
	if _, pending := status.Pending[0]; pending {
		t.Errorf("frame 0 still pending after upload")
	}

	data, err := store.ReadRender(jobID, 0)
	if err != nil {
		t.Fatalf("ReadRender: %v", err)
	}
	if string(data) != "jpeg" {
		t.Errorf("render bytes = %q, want jpeg", data)
	}
}

func TestUploadRenderIsIdempotentOnDuplicate(t *testing.T) {
	sched, store := newTestScheduler(t)

	jobID, err := store.Create([]byte("bundle"), []int{0}, true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, _, err := sched.GetWork(1); err != nil {
		t.Fatalf("GetWork: %v", err)
	}
	if err := sched.UploadRender(1, jobID, 0, []byte("jpeg-v1")); err != nil {
		t.Fatalf("first UploadRender: %v", err)
	}
	if err := sched.UploadRender(1, jobID, 0, []byte("jpeg-v2")); err != nil {
		t.Fatalf("second UploadRender: %v", err)
	}

	status, err := store.ReadStatus(jobID)
	if err != nil {
		t.Fatalf("ReadStatus: %v", err)
	}
	count := 0
	for _, f := range status.Done {
		if f == 0 {
			count++
		}
	}
	if count != 1 {
		t.Errorf("frame 0 appears %d times in done, want exactly 1", count)
	}

	data, err := store.ReadRender(jobID, 0)
	if err != nil {
		t.Fatalf("ReadRender: %v", err)
	}
	if string(data) != "jpeg-v2" {
		t.Errorf("render bytes after duplicate upload = %q, want jpeg-v2 (second upload overwrites)", data)
	}
}

func TestUploadRenderFromUnknownWorkerStillCommits(t *testing.T) {
	sched, store := newTestScheduler(t)

	jobID, err := store.Create([]byte("bundle"), []int{3}, true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Worker 42 never called GetWork against this job.
	if err := sched.UploadRender(42, jobID, 3, []byte("jpeg")); err != nil {
		t.Fatalf("UploadRender from unknown worker: %v", err)
	}

	status, err := store.ReadStatus(jobID)
	if err != nil {
		t.Fatalf("ReadStatus: %v", err)
	}
	if len(status.Done) != 1 || status.Done[0] != 3 {
		t.Errorf("done = %v, want [3]", status.Done)
	}
}

func TestStatusUpdateRefreshesLivenessForPendingFrames(t *testing.T) {
	sched, store := newTestScheduler(t)

	jobID, err := store.Create([]byte("bundle"), []int{0}, true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, _, err := sched.GetWork(1); err != nil {
		t.Fatalf("GetWork: %v", err)
	}

	before, err := store.ReadStatus(jobID)
	if err != nil {
		t.Fatalf("ReadStatus: %v", err)
	}
	firstSeen := before.LastStatusUpdate[0]

	if err := sched.StatusUpdate(jobID, []int{0}); err != nil {
		t.Fatalf("StatusUpdate: %v", err)
	}

	after, err := store.ReadStatus(jobID)
	if err != nil {
		t.Fatalf("ReadStatus: %v", err)
	}
	if !after.LastStatusUpdate[0].After(firstSeen) && !after.LastStatusUpdate[0].Equal(firstSeen) {
		t.Errorf("last_status_update for frame 0 did not advance")
	}
}

func TestTwoWorkersCompleteAllFramesExactlyOnce(t *testing.T) {
	sched, store := newTestScheduler(t)

	const total = 20
	frames := make([]int, total)
	for i := range frames {
		frames[i] = i
	}
	jobID, err := store.Create([]byte("bundle"), frames, true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	seen := make(map[int]int)
	for i := 0; i < total; i++ {
		worker := 1 + i%2
		_, got, err := sched.GetWork(worker)
		if err != nil {
			t.Fatalf("GetWork: %v", err)
		}
		for _, f := range got {
			if err := sched.UploadRender(worker, jobID, f, []byte("jpeg")); err != nil {
				t.Fatalf("UploadRender: %v", err)
			}
			seen[f]++
		}
	}

	if len(seen) != total {
		t.Fatalf("completed %d distinct frames, want %d", len(seen), total)
	}
	for f, n := range seen {
		if n != 1 {
			t.Errorf("frame %d completed %d times, want 1", f, n)
		}
	}
}

func TestStallReclaimReturnsFramesToWorkerB(t *testing.T) {
	orig := config.StatusTimeout
	config.StatusTimeout = 30 * time.Millisecond
	t.Cleanup(func() { config.StatusTimeout = orig })

	sched, store := newTestScheduler(t)

	jobID, err := store.Create([]byte("bundle"), []int{0}, true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Worker A takes the job's only frame, then vanishes: it never
	// uploads or sends a status update. The job's todo is now empty but
	// the frame stays pending, so the job remains eligible for the
	// stall sweep rather than being sealed.
	gotJob, frames, err := sched.GetWork(1)
	if err != nil {
		t.Fatalf("GetWork(A): %v", err)
	}
	if gotJob != jobID || len(frames) != 1 || frames[0] != 0 {
		t.Fatalf("GetWork(A) = (%s, %v), want (%s, [0])", gotJob, frames, jobID)
	}

	time.Sleep(2 * config.StatusTimeout)

	// Worker B's request triggers the stall sweep before taking its own
	// batch, so it should receive the reclaimed frame 0.
	gotJob, frames, err = sched.GetWork(2)
	if err != nil {
		t.Fatalf("GetWork(B): %v", err)
	}
	if gotJob != jobID || len(frames) != 1 || frames[0] != 0 {
		t.Fatalf("GetWork(B) after stall = (%s, %v), want (%s, [0])", gotJob, frames, jobID)
	}

	status, err := store.ReadStatus(jobID)
	if err != nil {
		t.Fatalf("ReadStatus: %v", err)
	}
	if _, stillPending := status.Pending[0]; !stillPending {
		t.Errorf("frame 0 not pending after reclaim+redispatch")
	}

	// A late upload from the vanished worker A is still accepted and
	// leaves done with frame 0 exactly once.
	if err := sched.UploadRender(1, jobID, 0, []byte("late-from-a")); err != nil {
		t.Fatalf("late UploadRender(A): %v", err)
	}
	status, err = store.ReadStatus(jobID)
	if err != nil {
		t.Fatalf("ReadStatus after late upload: %v", err)
	}
	count := 0
	for _, f := range status.Done {
		if f == 0 {
			count++
		}
	}
	if count != 1 {
		t.Errorf("frame 0 appears %d times in done after reclaim+late upload, want 1", count)
	}
}

func TestAdaptiveBatchSizeConvergesTowardTargetOverFrameTime(t *testing.T) {
	origTarget := config.TargetBatchTime
	origDebounce := config.BatchUpdateMinInterval
	config.TargetBatchTime = 40 * time.Millisecond
	config.BatchUpdateMinInterval = time.Millisecond
	t.Cleanup(func() {
		config.TargetBatchTime = origTarget
		config.BatchUpdateMinInterval = origDebounce
	})

	const frameTime = 4 * time.Millisecond
	nominal := config.TargetBatchTime.Seconds() / frameTime.Seconds() // 10

	sched, store := newTestScheduler(t)

	frames := make([]int, 200)
	for i := range frames {
		frames[i] = i
	}
	jobID, err := store.Create([]byte("bundle"), frames, true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	const worker = 1
	var batchSize float64
	const rounds = 8
	for i := 0; i < rounds; i++ {
		_, got, err := sched.GetWork(worker)
		if err != nil {
			t.Fatalf("round %d: GetWork: %v", i, err)
		}
		if len(got) == 0 {
			t.Fatalf("round %d: GetWork returned no frames", i)
		}

		// Simulate the worker rendering every frame in the batch at a
		// fixed per-frame rate before reporting the first completion;
		// the debounce (min interval shrunk to ~0) lets exactly this
		// one adjustment through per round, matching how a multi-frame
		// batch reported frame-by-frame produces one update per batch.
		time.Sleep(time.Duration(len(got)) * frameTime)
		for _, f := range got {
			if err := sched.UploadRender(worker, jobID, f, []byte("jpeg")); err != nil {
				t.Fatalf("round %d: UploadRender: %v", i, err)
			}
		}

		status, err := store.ReadStatus(jobID)
		if err != nil {
			t.Fatalf("round %d: ReadStatus: %v", i, err)
		}
		batchSize = status.BatchSize[worker]
		t.Logf("round %d: batch_size = %.3f (nominal %.1f)", i, batchSize, nominal)
	}

	if diff := math.Abs(batchSize - nominal); diff > 2.0 {
		t.Errorf("batch_size after %d rounds = %.3f, want within 2.0 of nominal %.1f", rounds, batchSize, nominal)
	}
}
