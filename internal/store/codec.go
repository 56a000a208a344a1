package store

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

// EncodeFields flattens a struct into one JSON value per hash field, keyed by
// the struct's json tags. Fields omitted by `omitempty` are not written.
func EncodeFields(v interface{}) (map[string]interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshal entity")
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, errors.Wrap(err, "entity is not an object")
	}
	fields := make(map[string]interface{}, len(raw))
	for k, r := range raw {
		fields[k] = string(r)
	}
	return fields, nil
}

// EncodeValue serializes a single field value.
func EncodeValue(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "marshal field")
	}
	return string(b), nil
}

// rawValue returns the stored text as JSON, falling back to a JSON string for
// text that was not written by EncodeValue.
func rawValue(v string) json.RawMessage {
	if json.Valid([]byte(v)) {
		return json.RawMessage(v)
	}
	b, _ := json.Marshal(v)
	return b
}

// DecodeFields fills out from a hash read with HGETALL. Absent fields stay
// unset. A field whose stored value does not fit the target type is skipped
// and reported in the returned slice rather than failing the whole entity.
func DecodeFields(data map[string]string, out interface{}) ([]string, error) {
	obj := make(map[string]json.RawMessage, len(data))
	for k, v := range data {
		obj[k] = rawValue(v)
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return nil, errors.Wrap(err, "marshal hash")
	}
	if err := json.Unmarshal(b, out); err == nil {
		return nil, nil
	}

	var skipped []string
	for k, r := range obj {
		one, _ := json.Marshal(map[string]json.RawMessage{k: r})
		if err := json.Unmarshal(one, out); err != nil {
			skipped = append(skipped, k)
		}
	}
	sort.Strings(skipped)
	return skipped, nil
}

// DecodeMap parses every field of a hash into a generic value, keeping
// unparseable text as a plain string.
func DecodeMap(data map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		var parsed interface{}
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			out[k] = v
			continue
		}
		out[k] = parsed
	}
	return out
}
