package billing

import (
	"bytes"
	"encoding/json"
)

// probe extracts one candidate value from a decoded payload shape.
type probe[T any, V comparable] func(*T) V

// firstOf runs probes in order and returns the first non-zero value.
// A zero result means "not found"; probes never fail.
func firstOf[T any, V comparable](v *T, probes ...probe[T, V]) V {
	var zero V
	if v == nil {
		return zero
	}
	for _, p := range probes {
		if val := p(v); val != zero {
			return val
		}
	}
	return zero
}

// objectRef decodes a field that is either an ID string or an expanded object with an "id".
type objectRef string

func (r *objectRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*r = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = objectRef(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*r = objectRef(obj.ID)
	return nil
}

func (r objectRef) String() string { return string(r) }

// stringValue returns m[key] when it holds a string.
func stringValue[V any](m map[string]V, key string) string {
	if m == nil {
		return ""
	}
	s, _ := any(m[key]).(string)
	return s
}
