package dataset

import (
	"bytes"
	"encoding/json"
)

// EncodeExample serializes an Example as a single JSON object, the same
// shape the loader reads. Feature order in the output is by key.
func EncodeExample(ex Example) ([]byte, error) {
	return json.Marshal(map[string]any(ex))
}

// DecodeExample converts one JSON object into an Example. Strings stay
// strings, numbers become int64 token ids, homogeneous arrays become
// []string or []int64. Nested objects and nulls are dropped.
func DecodeExample(data []byte) (Example, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	ex := make(Example, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case string:
			ex[k] = t
		case bool:
			ex[k] = t
		case json.Number:
			if n, err := t.Int64(); err == nil {
				ex[k] = n
			} else if f, err := t.Float64(); err == nil {
				ex[k] = f
			}
		case []any:
			if decoded, ok := decodeList(t); ok {
				ex[k] = decoded
			}
		}
	}
	return ex, nil
}

// decodeList maps a homogeneous JSON array to []string or []int64.
func decodeList(items []any) (any, bool) {
	if len(items) == 0 {
		return []string{}, true
	}
	switch items[0].(type) {
	case string:
		out := make([]string, 0, len(items))
		for _, it := range items {
			s, ok := it.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	case json.Number:
		out := make([]int64, 0, len(items))
		for _, it := range items {
			num, ok := it.(json.Number)
			if !ok {
				return nil, false
			}
			n, err := num.Int64()
			if err != nil {
				return nil, false
			}
			out = append(out, n)
		}
		return out, true
	default:
		return nil, false
	}
}
