package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"taskboard/internal/model"
)

// Fields is a partial document. A nil value removes the field.
type Fields map[string]any

type serverTimestamp struct{}

// ServerTimestamp may be used as a field value; the store replaces it with
// its own clock when the write is applied.
var ServerTimestamp any = serverTimestamp{}

const timestampKey = "__timestamp"

type taggedTimestamp struct {
	Timestamp model.Timestamp `json:"__timestamp"`
}

// encodeFields turns fields into JSON values. Keys with nil values are
// returned separately so a merge can drop them.
func encodeFields(fields Fields, now time.Time) (map[string]json.RawMessage, []string, error) {
	set := make(map[string]json.RawMessage, len(fields))
	var unset []string
	for key, value := range fields {
		v, ok := normalize(value, now)
		if !ok {
			unset = append(unset, key)
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, nil, fmt.Errorf("encode field %q: %w", key, err)
		}
		set[key] = raw
	}
	return set, unset, nil
}

func normalize(value any, now time.Time) (any, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case serverTimestamp:
		return taggedTimestamp{Timestamp: model.NewTimestamp(now)}, true
	case model.Timestamp:
		return taggedTimestamp{Timestamp: v}, true
	case time.Time:
		return taggedTimestamp{Timestamp: model.NewTimestamp(v)}, true
	case *time.Time:
		if v == nil {
			return nil, false
		}
		return taggedTimestamp{Timestamp: model.NewTimestamp(*v)}, true
	case *string:
		if v == nil {
			return nil, false
		}
		return *v, true
	default:
		return v, true
	}
}

// mergeBody applies set and unset to an existing JSON object body.
func mergeBody(body string, set map[string]json.RawMessage, unset []string) (string, error) {
	current := make(map[string]json.RawMessage)
	if body != "" {
		if err := json.Unmarshal([]byte(body), &current); err != nil {
			return "", fmt.Errorf("decode document: %w", err)
		}
	}
	for key, raw := range set {
		current[key] = raw
	}
	for _, key := range unset {
		delete(current, key)
	}
	out, err := json.Marshal(current)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(out), nil
}

// decodeBody reads a stored body back into loosely typed fields. Tagged
// timestamps come back as model.Timestamp and numbers as json.Number.
func decodeBody(body string) (map[string]any, error) {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	fields := make(map[string]any, len(raw))
	for key, value := range raw {
		if ts, ok := decodeTimestamp(value); ok {
			fields[key] = ts
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(value))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode field %q: %w", key, err)
		}
		fields[key] = v
	}
	return fields, nil
}

func decodeTimestamp(value json.RawMessage) (model.Timestamp, bool) {
	if !bytes.Contains(value, []byte(timestampKey)) {
		return model.Timestamp{}, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(value, &obj); err != nil || len(obj) != 1 {
		return model.Timestamp{}, false
	}
	inner, ok := obj[timestampKey]
	if !ok {
		return model.Timestamp{}, false
	}
	var ts model.Timestamp
	if err := json.Unmarshal(inner, &ts); err != nil {
		return model.Timestamp{}, false
	}
	return ts, true
}
