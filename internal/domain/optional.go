package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Optional is a physical reading that may be absent. The zero value is
// missing, so a struct literal that omits a field never reports a natural 0.
type Optional struct {
	value float64
	ok    bool
}

// Some wraps a present reading. Non-finite values are treated as missing.
func Some(v float64) Optional {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Optional{}
	}
	return Optional{value: v, ok: true}
}

// None returns a missing reading.
func None() Optional { return Optional{} }

// OptionalFromPtr converts a nullable decoded value.
func OptionalFromPtr(p *float64) Optional {
	if p == nil {
		return Optional{}
	}
	return Some(*p)
}

// Get returns the reading and whether it is present.
func (o Optional) Get() (float64, bool) { return o.value, o.ok }

// Valid reports whether the reading is present.
func (o Optional) Valid() bool { return o.ok }

// Or returns the reading, or def when missing.
func (o Optional) Or(def float64) float64 {
	if !o.ok {
		return def
	}
	return o.value
}

// Ptr returns nil for a missing reading.
func (o Optional) Ptr() *float64 {
	if !o.ok {
		return nil
	}
	v := o.value
	return &v
}

func (o Optional) String() string {
	if !o.ok {
		return "missing"
	}
	return fmt.Sprintf("%g", o.value)
}

// MarshalJSON encodes a missing reading as null.
func (o Optional) MarshalJSON() ([]byte, error) {
	if !o.ok {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// UnmarshalJSON decodes null as missing.
func (o *Optional) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Optional{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode optional reading: %w", err)
	}
	*o = Some(v)
	return nil
}
