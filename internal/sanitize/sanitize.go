// Package sanitize scrubs host detail from error output before it is
// surfaced to scripts or stored in results. Stack traces from the embedded
// runtime can reveal interpreter internals and filesystem layout; under the
// stricter security levels those are stripped.
package sanitize

import (
	"regexp"
	"strings"
)

// RedactedPathValue is the placeholder substituted for host filesystem paths.
const RedactedPathValue = "[redacted]"

// hostPathRegex matches absolute Unix and Windows paths.
var hostPathRegex = regexp.MustCompile(`(?:/[\w.\-]+){2,}|[A-Za-z]:\\[\w.\-\\]+`)

// goFrameRegex matches stack lines that point into Go source, which only
// ever come from the host runtime, never from a script.
var goFrameRegex = regexp.MustCompile(`\.go:\d+`)

// Sanitizer applies the configured trace policy to stacks, messages, and
// thrown values.
type Sanitizer struct {
	enabled bool
}

// New creates a Sanitizer. When enabled is false every method returns its
// input unchanged.
func New(enabled bool) *Sanitizer {
	return &Sanitizer{enabled: enabled}
}

// Stack removes host frames from a stack trace and redacts any remaining
// filesystem paths. Script-level frames are kept so authors can still find
// their own bug.
func (s *Sanitizer) Stack(stack string) string {
	if !s.enabled || stack == "" {
		return stack
	}
	lines := strings.Split(stack, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if goFrameRegex.MatchString(line) {
			continue
		}
		kept = append(kept, hostPathRegex.ReplaceAllString(line, RedactedPathValue))
	}
	return strings.Join(kept, "\n")
}

// Message redacts filesystem paths from an error message.
func (s *Sanitizer) Message(msg string) string {
	if !s.enabled || msg == "" {
		return msg
	}
	return hostPathRegex.ReplaceAllString(msg, RedactedPathValue)
}

// Value recursively walks a thrown value and redacts filesystem paths in any
// string it contains. The returned structure is new; the input is unchanged.
func (s *Sanitizer) Value(data interface{}) interface{} {
	if !s.enabled || data == nil {
		return data
	}
	return s.scrubRecursive(data)
}

func (s *Sanitizer) scrubRecursive(data interface{}) interface{} {
	switch v := data.(type) {
	case string:
		return hostPathRegex.ReplaceAllString(v, RedactedPathValue)

	case map[string]interface{}:
		if v == nil {
			return nil
		}
		newMap := make(map[string]interface{}, len(v))
		for key, val := range v {
			newMap[key] = s.scrubRecursive(val)
		}
		return newMap

	case []interface{}:
		if v == nil {
			return nil
		}
		newSlice := make([]interface{}, len(v))
		for i, val := range v {
			newSlice[i] = s.scrubRecursive(val)
		}
		return newSlice

	default:
		return data
	}
}
