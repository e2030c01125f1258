package deck

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	keySlides = "slides"
	fence     = "```"
)

// ErrMalformed matches every MalformedError via errors.Is.
var ErrMalformed = errors.New("deck: malformed model response")

// MalformedError reports why a model response could not be turned into a deck.
type MalformedError struct {
	Reason string
	Err    error
}

func (e *MalformedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("deck: malformed model response (%s)", e.Reason)
	}
	return fmt.Sprintf("deck: malformed model response (%s): %v", e.Reason, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

func (e *MalformedError) Is(target error) bool { return target == ErrMalformed }

func malformed(reason string, err error) *MalformedError {
	return &MalformedError{Reason: reason, Err: err}
}

// Sanitize extracts the {"slides":[...]} object from raw model output.
//
// Extraction tiers, first match wins: the interior of a fenced code block, the
// first balanced JSON object found by a string-aware brace scan, the raw text.
// The chosen candidate must parse as exactly one JSON object whose "slides"
// member is an array.
func Sanitize(raw string) (map[string]any, error) {
	tree, err := parseObject(extractCandidate(raw))
	if err != nil {
		return nil, err
	}
	if _, ok := tree[keySlides].([]any); !ok {
		return nil, malformed("missing_slides", nil)
	}
	return tree, nil
}

func extractCandidate(raw string) string {
	if body, ok := fencedBlock(raw); ok {
		return body
	}
	if obj, ok := balancedObject(raw); ok {
		return obj
	}
	return raw
}

// fencedBlock returns the interior of the first ``` block. An info string such
// as "json" is dropped. Unterminated fences do not match.
func fencedBlock(s string) (string, bool) {
	open := strings.Index(s, fence)
	if open < 0 {
		return "", false
	}
	rest := s[open+len(fence):]
	if len(rest) >= 4 && strings.EqualFold(rest[:4], "json") {
		rest = rest[4:]
	}
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.ContainsAny(rest[:nl], "{[") {
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, fence)
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// balancedObject returns the text from the first '{' to its matching '}'.
// Braces inside string literals are ignored. When the object never closes the
// tail is returned so the parse step reports the failure.
func balancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return s[start:], true
}

func parseObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(s)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, malformed("invalid_json", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, malformed("multiple_values", nil)
		}
		return nil, malformed("trailing_data", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, malformed("not_an_object", nil)
	}
	return obj, nil
}
