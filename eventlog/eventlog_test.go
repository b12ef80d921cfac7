package eventlog

import (
	"path/filepath"
	"testing"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "events"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordJobCreatedThenForJob(t *testing.T) {
	l := newTestLog(t)

	l.RecordJobCreated("job-1", []int{0, 1, 2})

	events, err := l.ForJob("job-1")
	if err != nil {
		t.Fatalf("ForJob: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %v, want 1 entry", events)
	}
	if events[0].Kind != KindCreated {
		t.Errorf("kind = %q, want %q", events[0].Kind, KindCreated)
	}
	if len(events[0].Frames) != 3 {
		t.Errorf("frames = %v, want 3 entries", events[0].Frames)
	}
}

func TestEventsPreserveOccurrenceOrder(t *testing.T) {
	l := newTestLog(t)

	l.RecordJobCreated("job-2", []int{0, 1})
	l.RecordFrameDone("job-2", 0)
	l.RecordFrameDone("job-2", 1)

	events, err := l.ForJob("job-2")
	if err != nil {
		t.Fatalf("ForJob: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("events = %v, want 3 entries", events)
	}
	wantKinds := []string{KindCreated, KindFrameDone, KindFrameDone}
	for i, want := range wantKinds {
		if events[i].Kind != want {
			t.Errorf("events[%d].Kind = %q, want %q", i, events[i].Kind, want)
		}
	}
	if events[1].Frame != 0 || events[2].Frame != 1 {
		t.Errorf("frame order = %d,%d want 0,1", events[1].Frame, events[2].Frame)
	}
}

func TestForJobFiltersByJobID(t *testing.T) {
	l := newTestLog(t)

	l.RecordJobCreated("job-a", []int{0})
	l.RecordJobCreated("job-b", []int{0})
	l.RecordFrameDone("job-a", 0)

	eventsA, err := l.ForJob("job-a")
	if err != nil {
		t.Fatalf("ForJob: %v", err)
	}
	if len(eventsA) != 2 {
		t.Errorf("job-a events = %v, want 2 entries", eventsA)
	}

	eventsB, err := l.ForJob("job-b")
	if err != nil {
		t.Fatalf("ForJob: %v", err)
	}
	if len(eventsB) != 1 {
		t.Errorf("job-b events = %v, want 1 entry", eventsB)
	}
}

func TestForJobUnknownReturnsEmpty(t *testing.T) {
	l := newTestLog(t)

	events, err := l.ForJob("never-created")
	if err != nil {
		t.Fatalf("ForJob: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events = %v, want none", events)
	}
}
