package jobstore

import "errors"

// ErrNotFound is returned when a job id, frame, or bundle does not
// exist.
var ErrNotFound = errors.New("jobstore: not found")

// ErrIntegrity is returned when a status record fails to decode, or
// decodes to a value violating the store's invariants — the
// pairwise-disjoint done/pending/todo partition, a last_status_update
// entry for every pending frame, and batch sizes within
// [1, MaxBatchSize].
var ErrIntegrity = errors.New("jobstore: integrity error")
