package wrapup

import (
	"sort"
	"strings"
)

// ValidationError rejects a wrap-up submission with field-level messages so
// the console can surface them next to the inputs without losing entered data.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "wrapup: invalid submission"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "wrapup: " + strings.Join(parts, "; ")
}
