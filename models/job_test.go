package models

import "testing"

func TestNewStatusSortsNothingButStartsEmpty(t *testing.T) {
	s := NewStatus([]int{2, 0, 1})

	if len(s.Done) != 0 {
		t.Errorf("Done = %v, want empty", s.Done)
	}
	if len(s.Pending) != 0 {
		t.Errorf("Pending = %v, want empty", s.Pending)
	}
	if len(s.Todo) != 3 {
		t.Errorf("Todo = %v, want 3 entries", s.Todo)
	}
}

func TestRequestedUnionsDoneStillPendingAndTodo(t *testing.T) {
	s := NewStatus([]int{2, 3})
	s.Done = []int{0}
	s.Pending[1] = s.LastStatusUpdate[1]

	got := s.Requested()
	want := map[int]bool{0: true, 1: true, 2: true, 3: true}

	if len(got) != len(want) {
		t.Fatalf("Requested() = %v, want 4 distinct frames", got)
	}
	for _, f := range got {
		if !want[f] {
			t.Errorf("Requested() contains unexpected frame %d", f)
		}
	}
}

func TestRequestedDeduplicatesAcrossSets(t *testing.T) {
	s := NewStatus([]int{0})
	s.Done = []int{0}

	got := s.Requested()
	if len(got) != 1 || got[0] != 0 {
		t.Errorf("Requested() = %v, want exactly [0] (frame is in both done and todo)", got)
	}
}
