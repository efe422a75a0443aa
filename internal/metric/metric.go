package metric

import (
	"fmt"
	"strconv"
)

// Type defines the semantic type of a metric.
type Type string

const (
	TypeCounter Type = "counter"
	TypeGauge   Type = "gauge"
)

// Value is one observation of a metric. Number is what the exporters
// render; it is exact for counters only up to 2^53. Count keeps the exact
// counter value.
type Value struct {
	Type   Type
	Number float64
	Count  uint64
}

// Gauge returns a gauge observation.
func Gauge(v float64) Value {
	return Value{Type: TypeGauge, Number: v}
}

// Counter returns a counter observation.
func Counter(v uint64) Value {
	return Value{Type: TypeCounter, Number: float64(v), Count: v}
}

func (v Value) String() string {
	if v.Type == TypeCounter {
		return strconv.FormatUint(v.Count, 10)
	}
	return strconv.FormatFloat(v.Number, 'g', -1, 64)
}

// ValidateName checks that name is non-empty and only uses [A-Za-z0-9_],
// which keeps it usable as a D-Bus object path element.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("metric name cannot be empty")
	}
	for _, c := range name {
		if !isNameChar(c) {
			return fmt.Errorf("metric name %q contains invalid character %q: may only use chars [A-Za-z0-9_]", name, c)
		}
	}
	return nil
}

func isNameChar(c rune) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
