package protocol

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Message is the decoded form of one frame's payload: a self-describing
// tagged map of string to value, capable of carrying integers, strings,
// raw byte arrays, lists, and nested maps.
type Message map[string]any

// Method names.
const (
	MethodWorkerInit     = "worker_init"
	MethodDownloadBlend  = "download_blend"
	MethodDownloadRender = "download_render"
	MethodGetWork        = "get_work"
	MethodUploadRender   = "upload_render"
	MethodStatusUpdate   = "status_update"
	MethodCreateJob      = "create_job"
	MethodJobStatus      = "job_status"
)

// Status strings.
const (
	StatusOK      = "ok"
	StatusNotFound = "not_found"
	StatusNoWork  = "no_work"
	StatusInvalid = "invalid_request"
)

// Encode marshals a Message to its MessagePack payload bytes.
func Encode(msg Message) ([]byte, error) {
	data, err := msgpack.Marshal(map[string]any(msg))
	if err != nil {
		return nil, fmt.Errorf("protocol: encode: %w", err)
	}
	return data, nil
}

// Decode unmarshals payload bytes into a Message. It returns
// ErrBadRequest if the payload does not decode to a map.
func Decode(payload []byte) (Message, error) {
	var raw map[string]any
	if err := msgpack.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return Message(raw), nil
}

// Method returns the request's "method" field, and ok=false if it is
// missing or not a string — the dispatcher must close the connection
// without a response in that case.
func (m Message) Method() (string, bool) {
	v, present := m["method"]
	if !present {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// String returns m[key] as a string, or ok=false if absent/mistyped.
func (m Message) String(key string) (string, bool) {
	v, present := m[key]
	if !present {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Bytes returns m[key] as a raw byte slice, or ok=false if absent/mistyped.
func (m Message) Bytes(key string) ([]byte, bool) {
	v, present := m[key]
	if !present {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

// Int returns m[key] as an int, accepting any of msgpack's decoded
// integer representations.
func (m Message) Int(key string) (int, bool) {
	v, present := m[key]
	if !present {
		return 0, false
	}
	return toInt(v)
}

// IntSlice returns m[key] as a []int, or ok=false if absent/mistyped.
func (m Message) IntSlice(key string) ([]int, bool) {
	v, present := m[key]
	if !present {
		return nil, false
	}
	if ints, ok := v.([]int); ok {
		return ints, true
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]int, 0, len(raw))
	for _, elem := range raw {
		n, ok := toInt(elem)
		if !ok {
			return nil, false
		}
		out = append(out, n)
	}
	return out, true
}

// Bool returns m[key] as a bool, or ok=false if absent/mistyped.
func (m Message) Bool(key string) (bool, bool) {
	v, present := m[key]
	if !present {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float32:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// OK builds a successful response, merging fields into {"status": "ok"}.
func OK(fields Message) Message {
	out := Message{"status": StatusOK}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// Err builds a failure response carrying the given status string.
func Err(status string) Message {
	return Message{"status": status}
}
