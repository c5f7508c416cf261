package actions

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rendis/conduit/pkg/schema"
)

// Arguments are validated invocation arguments. Dates are RFC 3339 strings,
// numbers are float64 unless the caller passed native Go integers.
type Arguments map[string]any

// Has reports whether name is present and non-nil.
func (a Arguments) Has(name string) bool {
	v, ok := a[name]
	return ok && v != nil
}

// String returns a string argument or "".
func (a Arguments) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Int returns a numeric argument truncated to int, or 0.
func (a Arguments) Int(name string) int {
	switch v := a[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}

// Strings returns a string-array argument.
func (a Arguments) Strings(name string) []string {
	switch v := a[name].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Time parses a date argument.
func (a Arguments) Time(name string) (time.Time, error) {
	s := a.String(name)
	if s == "" {
		return time.Time{}, fmt.Errorf("argument %q is not set", name)
	}
	return time.Parse(time.RFC3339, s)
}

// Decode copies the arguments into a typed params struct.
func (a Arguments) Decode(into any) error {
	b, err := json.Marshal(a)
	if err != nil {
		return schema.NewError(schema.ErrCodeInternal, "encode arguments").WithCause(err)
	}
	if err := json.Unmarshal(b, into); err != nil {
		return schema.NewError(schema.ErrCodeInternal, "decode arguments").WithCause(err)
	}
	return nil
}

// Unavailable marks err as a downstream dependency failure so the dispatcher
// reports service_unavailable instead of internal_error.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return schema.NewError(schema.ErrCodeServiceUnavailable, err.Error()).WithCause(err)
}

// Unavailablef is Unavailable with a formatted message and no cause.
func Unavailablef(format string, args ...any) error {
	return schema.NewErrorf(schema.ErrCodeServiceUnavailable, format, args...)
}
