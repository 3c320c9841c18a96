package config

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Limit is a concurrency ceiling: either a specific positive count or
// Unlimited. It is the tagged union spec.md §9 calls for — no sentinel
// value such as 0-means-unlimited.
type Limit struct {
	unlimited bool
	value     uint32
}

// Unlimited is the limit that never rejects.
var Unlimited = Limit{unlimited: true}

// Limited constructs a Limit with a concrete ceiling. n must be >= 1;
// callers that load n from untrusted input should validate first.
func Limited(n uint32) Limit {
	return Limit{value: n}
}

// IsUnlimited reports whether the limit is the unlimited tag.
func (l Limit) IsUnlimited() bool {
	return l.unlimited
}

// Value returns the numeric ceiling and whether one is set.
func (l Limit) Value() (uint32, bool) {
	if l.unlimited {
		return 0, false
	}
	return l.value, true
}

// Exceeded reports whether current is at or beyond the limit.
func (l Limit) Exceeded(current uint32) bool {
	if l.unlimited {
		return false
	}
	return current >= l.value
}

// MarshalJSON renders Unlimited as null and Limited(n) as the bare number.
func (l Limit) MarshalJSON() ([]byte, error) {
	if l.unlimited {
		return []byte("null"), nil
	}
	return json.Marshal(l.value)
}

// UnmarshalJSON accepts null (Unlimited) or a positive integer (Limited).
func (l *Limit) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*l = Unlimited
		return nil
	}
	var n uint32
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("limit: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("limit: 0 is not a valid limit, use null for unlimited")
	}
	*l = Limited(n)
	return nil
}

// MarshalYAML mirrors MarshalJSON so the two config surfaces agree.
func (l Limit) MarshalYAML() (any, error) {
	if l.unlimited {
		return nil, nil
	}
	return l.value, nil
}

// UnmarshalYAML accepts null/absent (Unlimited) or a positive integer.
func (l *Limit) UnmarshalYAML(unmarshal func(any) error) error {
	var raw *uint32
	if err := unmarshal(&raw); err != nil {
		return fmt.Errorf("limit: %w", err)
	}
	if raw == nil {
		*l = Unlimited
		return nil
	}
	if *raw == 0 {
		return fmt.Errorf("limit: 0 is not a valid limit, use null/omit for unlimited")
	}
	*l = Limited(*raw)
	return nil
}

// String renders "unlimited" or the numeric ceiling, for logging.
func (l Limit) String() string {
	if l.unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", l.value)
}
