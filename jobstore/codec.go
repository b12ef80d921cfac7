package jobstore

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"renderfarm/config"
	"renderfarm/models"
)

// encodeStatus marshals a status record with the same MessagePack codec
// used on the wire, so a job's on-disk record and its wire
// representation share one encoding throughout the coordinator.
func encodeStatus(status *models.Status) ([]byte, error) {
	return msgpack.Marshal(status)
}

// decodeStatus unmarshals a status record and checks its invariants:
// done, pending's keys, and todo must be pairwise disjoint; every
// pending frame must carry a last_status_update entry; every worker's
// batch size must fall within [1, MaxBatchSize].
func decodeStatus(data []byte) (*models.Status, error) {
	var status models.Status
	if err := msgpack.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := checkInvariants(&status); err != nil {
		return nil, err
	}
	return &status, nil
}

func checkInvariants(s *models.Status) error {
	seen := make(map[int]string, len(s.Done)+len(s.Pending)+len(s.Todo))
	for _, f := range s.Done {
		if owner, dup := seen[f]; dup {
			return fmt.Errorf("frame %d present in both done and %s", f, owner)
		}
		seen[f] = "done"
	}
	for f := range s.Pending {
		if owner, dup := seen[f]; dup {
			return fmt.Errorf("frame %d present in both pending and %s", f, owner)
		}
		seen[f] = "pending"
		if _, ok := s.LastStatusUpdate[f]; !ok {
			return fmt.Errorf("pending frame %d has no last_status_update entry", f)
		}
	}
	for _, f := range s.Todo {
		if owner, dup := seen[f]; dup {
			return fmt.Errorf("frame %d present in both todo and %s", f, owner)
		}
		seen[f] = "todo"
	}
	for worker, size := range s.BatchSize {
		if size < 1 || size > config.MaxBatchSize {
			return fmt.Errorf("worker %d batch size %.2f out of range [1, %.2f]", worker, size, config.MaxBatchSize)
		}
	}
	return nil
}
