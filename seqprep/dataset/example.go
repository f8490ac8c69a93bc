package dataset

// Example is a single record flowing through a preprocessing pipeline.
// Feature values are string (plaintext), []string (plaintext lists), or
// []int64 (token-id sequences).
type Example map[string]any

// Has reports whether the feature is present.
func (e Example) Has(key string) bool {
	_, ok := e[key]
	return ok
}

// Text returns the string feature under key.
func (e Example) Text(key string) (string, bool) {
	s, ok := e[key].(string)
	return s, ok
}

// Texts returns the string-list feature under key.
func (e Example) Texts(key string) ([]string, bool) {
	s, ok := e[key].([]string)
	return s, ok
}

// Ints returns the token-id feature under key.
func (e Example) Ints(key string) ([]int64, bool) {
	v, ok := e[key].([]int64)
	return v, ok
}

// SetText stores a plaintext feature.
func (e Example) SetText(key, value string) {
	e[key] = value
}

// SetInts stores a token-id feature.
func (e Example) SetInts(key string, ids []int64) {
	e[key] = ids
}

// Len returns the length of the feature under key: token count for []int64,
// character count for string, element count for []string. Missing features
// report zero.
func (e Example) Len(key string) int {
	switch v := e[key].(type) {
	case []int64:
		return len(v)
	case string:
		return len([]rune(v))
	case []string:
		return len(v)
	default:
		return 0
	}
}

// Clone returns a copy that can be mutated without affecting the receiver.
// Token-id slices are copied; strings are immutable and shared.
func (e Example) Clone() Example {
	out := make(Example, len(e))
	for k, v := range e {
		switch t := v.(type) {
		case []int64:
			ids := make([]int64, len(t))
			copy(ids, t)
			out[k] = ids
		case []string:
			ss := make([]string, len(t))
			copy(ss, t)
			out[k] = ss
		default:
			out[k] = v
		}
	}
	return out
}
