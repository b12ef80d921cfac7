package mirrorqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	pebble "github.com/cockroachdb/pebble"

	"renderfarm/logger"
)

// Run drains the queue with up to maxWorkers concurrent goroutines
// until ctx is cancelled. It checks the queue once a second and hands
// at most one task to the pool per tick, whether or not more tasks are
// waiting.
func (q *Queue) Run(ctx context.Context, maxWorkers int) {
	semaphore := make(chan struct{}, maxWorkers)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		key, t, ok, err := q.nextTask()
		if err != nil {
			logger.Errorf("mirrorqueue: fetch next task: %v", err)
			continue
		}
		if !ok {
			continue
		}

		semaphore <- struct{}{}
		go func(key string, t task) {
			defer func() { <-semaphore }()
			q.process(ctx, t)
			if err := q.db.Delete([]byte(key), pebble.Sync); err != nil {
				logger.Errorf("mirrorqueue: delete completed task %s: %v", key, err)
			}
		}(key, t)
	}
}

func (q *Queue) nextTask() (key string, t task, ok bool, err error) {
	iter, err := q.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(taskPrefix),
		UpperBound: []byte(taskPrefix + "\xff"),
	})
	if err != nil {
		return "", task{}, false, err
	}
	defer iter.Close()

	if !iter.First() {
		return "", task{}, false, iter.Error()
	}

	key = string(iter.Key())
	if err := json.Unmarshal(iter.Value(), &t); err != nil {
		return "", task{}, false, err
	}
	return key, t, true, nil
}

func (q *Queue) process(ctx context.Context, t task) {
	specs, err := q.jobMirrors(t.JobID)
	if err != nil {
		logger.Errorf("mirrorqueue: load specs for %s: %v", t.JobID, err)
		return
	}

	image, err := q.store.ReadRender(t.JobID, t.Frame)
	if err != nil {
		logger.Errorf("mirrorqueue: read render %s/%d: %v", t.JobID, t.Frame, err)
		return
	}

	for _, spec := range specs {
		creds, err := q.creds.Get(spec.CredentialKey)
		if err != nil {
			logger.Errorf("mirrorqueue: credentials %q for job %s: %v", spec.CredentialKey, t.JobID, err)
			continue
		}

		remotePath := expandFrame(spec.RemotePath, t.Frame)
		if err := q.backends.Write(ctx, spec.Type, creds, remotePath, bytes.NewReader(image)); err != nil {
			logger.Errorf("mirrorqueue: mirror job=%s frame=%d to %s: %v", t.JobID, t.Frame, spec.Type, err)
			continue
		}
		logger.Debugf("mirrorqueue: mirrored job=%s frame=%d to %s:%s", t.JobID, t.Frame, spec.Type, remotePath)
	}
}

// expandFrame substitutes "{frame}" in a remote path template with the
// frame number.
func expandFrame(template string, frame int) string {
	return strings.ReplaceAll(template, "{frame}", strconv.Itoa(frame))
}
