package generation

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSONFound is returned when no valid JSON object/array is found in the input
var ErrNoJSONFound = errors.New("no valid JSON object or array found in response")

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.+?)\\s*```")

// ExtractJSON pulls the JSON document out of a model reply that may wrap it in
// markdown fences or surround it with prose.
func ExtractJSON(reply string) (string, error) {
	if strings.TrimSpace(reply) == "" {
		return "", ErrNoJSONFound
	}

	cleaned := stripMarkdown(reply)

	if candidate := matchBrackets(cleaned); candidate != "" && json.Valid([]byte(candidate)) {
		return candidate, nil
	}
	if json.Valid([]byte(cleaned)) {
		return cleaned, nil
	}
	if candidate := outermost(reply); candidate != "" {
		return candidate, nil
	}
	if candidate := dropControlChars(cleaned); json.Valid([]byte(candidate)) {
		return candidate, nil
	}

	return "", fmt.Errorf("%w: response length=%d", ErrNoJSONFound, len(reply))
}

// ExtractJSONTo extracts JSON from reply and unmarshals it into target.
func ExtractJSONTo(reply string, target interface{}) error {
	jsonStr, err := ExtractJSON(reply)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(jsonStr), target)
}

func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	if m := fencedBlock.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// matchBrackets returns the first balanced object or array, honoring strings.
func matchBrackets(s string) string {
	start := strings.IndexAny(s, "{[")
	if start == -1 {
		return ""
	}
	open := s[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == closer:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// outermost tries the span from the first opening to the last closing brace.
func outermost(s string) string {
	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		first := strings.Index(s, pair[0])
		last := strings.LastIndex(s, pair[1])
		if first != -1 && last > first {
			candidate := s[first : last+1]
			if json.Valid([]byte(candidate)) {
				return candidate
			}
		}
	}
	return ""
}

// dropControlChars removes control characters and keeps non-ASCII text.
func dropControlChars(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 32 || r == '\n' || r == '\r' || r == '\t' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
