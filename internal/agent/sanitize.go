package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	pyTrueRe  = regexp.MustCompile(`\bTrue\b`)
	pyFalseRe = regexp.MustCompile(`\bFalse\b`)
	pyNoneRe  = regexp.MustCompile(`\bNone\b`)

	// paramPrefixRe matches a stray "name=" a model puts before its payload.
	paramPrefixRe = regexp.MustCompile(`^[a-z_]+=`)
)

// SanitizeJSON rewrites Python-style literals (True, False, None) that models
// often emit into their JSON spelling.
func SanitizeJSON(s string) string {
	if s == "" {
		return s
	}
	s = pyTrueRe.ReplaceAllString(s, "true")
	s = pyFalseRe.ReplaceAllString(s, "false")
	return pyNoneRe.ReplaceAllString(s, "null")
}

// stripParamPrefix removes a leading "input_json=" or similar assignment.
func stripParamPrefix(s string) string {
	s = strings.TrimSpace(s)
	return strings.TrimSpace(paramPrefixRe.ReplaceAllString(s, ""))
}

// ParseObject decodes tool input as a JSON object, first as given and then
// after sanitizing. ok is false when neither attempt yields an object.
func ParseObject(input string) (map[string]any, bool) {
	cleaned := stripParamPrefix(input)
	if cleaned == "" {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(cleaned), &obj); err == nil && obj != nil {
		return obj, true
	}
	if err := json.Unmarshal([]byte(SanitizeJSON(cleaned)), &obj); err == nil && obj != nil {
		return obj, true
	}
	return nil, false
}

// errorObservation renders the structured failure fed back to the model.
func errorObservation(msg string) string {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return string(b)
}

// unquote trims the whitespace and wrapping quotes models put around plain
// text arguments.
func unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), "\"'`")
}
