// Package dispatcher routes one decoded request per connection to its
// handler and encodes exactly one response.
package dispatcher

import (
	"errors"

	"renderfarm/eventlog"
	"renderfarm/jobstore"
	"renderfarm/logger"
	"renderfarm/mirrorqueue"
	"renderfarm/models"
	"renderfarm/protocol"
	"renderfarm/registry"
	"renderfarm/scheduler"
)

// Dispatcher holds every component a handler needs to serve a request.
type Dispatcher struct {
	store   *jobstore.Store
	sched   *scheduler.Scheduler
	workers *registry.Registry
	events  *eventlog.Log
	mirrorQ *mirrorqueue.Queue
}

// New builds a Dispatcher wired to the given components. events and
// mirrorQ may be nil, in which case job lifecycle events and render
// mirroring are silently skipped — useful for tests that only exercise
// the core protocol.
func New(store *jobstore.Store, sched *scheduler.Scheduler, workers *registry.Registry, events *eventlog.Log, mirrorQ *mirrorqueue.Queue) *Dispatcher {
	return &Dispatcher{store: store, sched: sched, workers: workers, events: events, mirrorQ: mirrorQ}
}

// Handle decodes one request and returns the response to encode, or
// ok=false if the connection must be closed without a response
// (malformed requests: not a map, or missing method).
func (d *Dispatcher) Handle(payload []byte) (protocol.Message, bool) {
	req, err := protocol.Decode(payload)
	if err != nil {
		logger.Warnf("dispatcher: malformed request: %v", err)
		return nil, false
	}

	method, ok := req.Method()
	if !ok {
		logger.Warnf("dispatcher: request missing method field")
		return nil, false
	}

	switch method {
	case protocol.MethodWorkerInit:
		return d.workerInit(req), true
	case protocol.MethodDownloadBlend:
		return d.downloadBlend(req), true
	case protocol.MethodDownloadRender:
		return d.downloadRender(req), true
	case protocol.MethodGetWork:
		return d.getWork(req), true
	case protocol.MethodUploadRender:
		return d.uploadRender(req), true
	case protocol.MethodStatusUpdate:
		return d.statusUpdate(req), true
	case protocol.MethodCreateJob:
		return d.createJob(req), true
	case protocol.MethodJobStatus:
		return d.jobStatus(req), true
	default:
		logger.Warnf("dispatcher: unknown method %q", method)
		return protocol.Err(protocol.StatusInvalid), true
	}
}

func (d *Dispatcher) workerInit(req protocol.Message) protocol.Message {
	id, err := d.workers.Allocate()
	if err != nil {
		logger.Errorf("dispatcher: worker_init: %v", err)
		return protocol.Err(protocol.StatusInvalid)
	}
	return protocol.OK(protocol.Message{"worker_id": id})
}

func (d *Dispatcher) downloadBlend(req protocol.Message) protocol.Message {
	jobID, ok := req.String("job_id")
	if !ok {
		return protocol.Err(protocol.StatusInvalid)
	}
	data, err := d.store.ReadBundle(jobID)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			return protocol.Err(protocol.StatusNotFound)
		}
		logger.Errorf("dispatcher: download_blend %s: %v", jobID, err)
		return protocol.Err(protocol.StatusInvalid)
	}
	return protocol.OK(protocol.Message{"data": data})
}

func (d *Dispatcher) downloadRender(req protocol.Message) protocol.Message {
	jobID, ok := req.String("job_id")
	if !ok {
		return protocol.Err(protocol.StatusInvalid)
	}
	frame, ok := req.Int("frame")
	if !ok {
		return protocol.Err(protocol.StatusInvalid)
	}
	data, err := d.store.ReadRender(jobID, frame)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			return protocol.Err(protocol.StatusNotFound)
		}
		logger.Errorf("dispatcher: download_render %s/%d: %v", jobID, frame, err)
		return protocol.Err(protocol.StatusInvalid)
	}
	return protocol.OK(protocol.Message{"data": data})
}

func (d *Dispatcher) getWork(req protocol.Message) protocol.Message {
	workerID, ok := req.Int("worker_id")
	if !ok {
		return protocol.Err(protocol.StatusInvalid)
	}
	jobID, frames, err := d.sched.GetWork(workerID)
	if err != nil {
		if errors.Is(err, scheduler.ErrNoWork) {
			return protocol.Err(protocol.StatusNoWork)
		}
		logger.Errorf("dispatcher: get_work worker=%d: %v", workerID, err)
		return protocol.Err(protocol.StatusInvalid)
	}
	return protocol.OK(protocol.Message{"job_id": jobID, "frames": frames})
}

func (d *Dispatcher) uploadRender(req protocol.Message) protocol.Message {
	workerID, ok := req.Int("worker_id")
	if !ok {
		return protocol.Err(protocol.StatusInvalid)
	}
	jobID, ok := req.String("job_id")
	if !ok {
		return protocol.Err(protocol.StatusInvalid)
	}
	frame, ok := req.Int("frame")
	if !ok {
		return protocol.Err(protocol.StatusInvalid)
	}
	data, ok := req.Bytes("data")
	if !ok {
		return protocol.Err(protocol.StatusInvalid)
	}

	if err := d.sched.UploadRender(workerID, jobID, frame, data); err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			return protocol.Err(protocol.StatusNotFound)
		}
		logger.Errorf("dispatcher: upload_render %s/%d: %v", jobID, frame, err)
		return protocol.Err(protocol.StatusInvalid)
	}

	if d.events != nil {
		d.events.RecordFrameDone(jobID, frame)
	}
	if d.mirrorQ != nil {
		d.mirrorQ.Enqueue(jobID, frame)
	}

	return protocol.OK(nil)
}

func (d *Dispatcher) statusUpdate(req protocol.Message) protocol.Message {
	jobID, ok := req.String("job_id")
	if !ok {
		return protocol.Err(protocol.StatusInvalid)
	}
	frames, ok := req.IntSlice("frames")
	if !ok {
		return protocol.Err(protocol.StatusInvalid)
	}
	if err := d.sched.StatusUpdate(jobID, frames); err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			return protocol.Err(protocol.StatusNotFound)
		}
		logger.Errorf("dispatcher: status_update %s: %v", jobID, err)
		return protocol.Err(protocol.StatusInvalid)
	}
	return protocol.OK(nil)
}

func (d *Dispatcher) createJob(req protocol.Message) protocol.Message {
	bundle, ok := req.Bytes("blend")
	if !ok {
		return protocol.Err(protocol.StatusInvalid)
	}
	frames, ok := req.IntSlice("frames")
	if !ok {
		return protocol.Err(protocol.StatusInvalid)
	}
	isTar, ok := req.Bool("is_tar")
	if !ok {
		return protocol.Err(protocol.StatusInvalid)
	}

	jobID, err := d.store.Create(bundle, frames, isTar)
	if err != nil {
		logger.Errorf("dispatcher: create_job: %v", err)
		return protocol.Err(protocol.StatusInvalid)
	}

	if mirrors, ok := req["mirrors"]; ok && d.mirrorQ != nil {
		registerMirrors(d.mirrorQ, jobID, mirrors)
	}

	if d.events != nil {
		d.events.RecordJobCreated(jobID, frames)
	}

	return protocol.OK(protocol.Message{"job_id": jobID})
}

func (d *Dispatcher) jobStatus(req protocol.Message) protocol.Message {
	jobID, ok := req.String("job_id")
	if !ok {
		return protocol.Err(protocol.StatusInvalid)
	}
	status, err := d.store.ReadStatus(jobID)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			return protocol.Err(protocol.StatusNotFound)
		}
		logger.Errorf("dispatcher: job_status %s: %v", jobID, err)
		return protocol.Err(protocol.StatusInvalid)
	}
	return protocol.OK(protocol.Message{
		"frames_done":      status.Done,
		"frames_requested": status.Requested(),
	})
}

// registerMirrors parses the optional, additive "mirrors" field of a
// create_job request and enqueues the job's mirror specs so future
// completed frames are copied to those destinations.
func registerMirrors(q *mirrorqueue.Queue, jobID string, raw any) {
	list, ok := raw.([]any)
	if !ok {
		return
	}
	var specs []models.MirrorSpec
	for _, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		spec := models.MirrorSpec{}
		if v, ok := m["type"].(string); ok {
			spec.Type = v
		}
		if v, ok := m["credential_key"].(string); ok {
			spec.CredentialKey = v
		}
		if v, ok := m["remote_path"].(string); ok {
			spec.RemotePath = v
		}
		if spec.Type != "" {
			specs = append(specs, spec)
		}
	}
	if len(specs) > 0 {
		q.RegisterJobMirrors(jobID, specs)
	}
}
