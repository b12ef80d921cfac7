package protocol

import "testing"

func TestEncodeDecodeRoundTrips(t *testing.T) {
	msg := Message{
		"method": MethodCreateJob,
		"blend":  []byte{1, 2, 3},
		"frames": []int{0, 1, 2},
		"is_tar": true,
		"job_id": "7",
	}

	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	method, ok := decoded.Method()
	if !ok || method != MethodCreateJob {
		t.Errorf("Method() = (%q, %v), want (%q, true)", method, ok, MethodCreateJob)
	}

	frames, ok := decoded.IntSlice("frames")
	if !ok {
		t.Fatalf("IntSlice(frames) ok = false")
	}
	for i, f := range []int{0, 1, 2} {
		if frames[i] != f {
			t.Errorf("frames[%d] = %d, want %d", i, frames[i], f)
		}
	}

	isTar, ok := decoded.Bool("is_tar")
	if !ok || !isTar {
		t.Errorf("Bool(is_tar) = (%v, %v), want (true, true)", isTar, ok)
	}

	jobID, ok := decoded.String("job_id")
	if !ok || jobID != "7" {
		t.Errorf("String(job_id) = (%q, %v), want (\"7\", true)", jobID, ok)
	}
}

func TestDecodeRejectsNonMapPayload(t *testing.T) {
	data, err := Encode(nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := Decode(data); err != nil {
		t.Fatalf("Decode of an empty map should succeed: %v", err)
	}

	// A msgpack-encoded list is not a map and must fail to decode.
	listPayload := []byte{0x93, 0x01, 0x02, 0x03} // fixarray of 3 ints
	if _, err := Decode(listPayload); err == nil {
		t.Errorf("expected Decode to reject a non-map payload")
	}
}

func TestMethodMissingReturnsNotOK(t *testing.T) {
	msg := Message{"job_id": "1"}
	if _, ok := msg.Method(); ok {
		t.Errorf("Method() ok = true for a request with no method field")
	}
}

func TestIntAcceptsEveryMsgpackIntegerShape(t *testing.T) {
	cases := []Message{
		{"frame": 5},
		{"frame": int32(5)},
		{"frame": uint64(5)},
		{"frame": float64(5)},
	}
	for _, m := range cases {
		n, ok := m.Int("frame")
		if !ok || n != 5 {
			t.Errorf("Int(frame) for %#v = (%d, %v), want (5, true)", m["frame"], n, ok)
		}
	}
}
