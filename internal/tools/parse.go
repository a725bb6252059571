package tools

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Call is a parsed tool invocation.
type Call struct {
	Tool string
	Args map[string]any
}

// Loose {"tool":"...","args":{...}} envelope buried in free-form text. The
// structured provider tool-call channel is preferred; this is the fallback.
var looseCallRe = regexp.MustCompile(`\{\s*"tool"\s*:\s*"[^"]+"\s*,\s*"args"\s*:`)

// ParseLooseCalls extracts tool-call envelopes from free-form model text.
func ParseLooseCalls(text string) []Call {
	var calls []Call
	for _, loc := range looseCallRe.FindAllStringIndex(text, -1) {
		candidate := balancedJSON(text[loc[0]:])
		if candidate == "" {
			continue
		}
		var envelope struct {
			Tool string          `json:"tool"`
			Args json.RawMessage `json:"args"`
		}
		if err := json.Unmarshal([]byte(candidate), &envelope); err != nil || envelope.Tool == "" {
			continue
		}

		args := map[string]any{}
		if len(envelope.Args) > 0 {
			// Args may be an object or a positional array; arrays are keyed
			// by index for the tool's CheckArgs to reject or map.
			var obj map[string]any
			if err := json.Unmarshal(envelope.Args, &obj); err == nil {
				args = obj
			} else {
				var arr []any
				if err := json.Unmarshal(envelope.Args, &arr); err == nil {
					for i, v := range arr {
						args[indexName(i)] = v
					}
				}
			}
		}
		calls = append(calls, Call{Tool: envelope.Tool, Args: args})
	}
	return calls
}

func indexName(i int) string {
	return fmt.Sprintf("arg%d", i)
}

// balancedJSON returns the shortest prefix of s that is a balanced JSON
// object, respecting strings and escapes.
func balancedJSON(s string) string {
	depth := 0
	inString := false
	escaped := false
	for i, r := range s {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[:i+1]
				}
			}
		}
	}
	return ""
}

// StripFence removes a leading Markdown code fence from a model response,
// returning the inner payload.
func StripFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	// Drop the opening fence line (``` or ```json).
	idx := strings.IndexByte(trimmed, '\n')
	if idx < 0 {
		return trimmed
	}
	rest := trimmed[idx+1:]
	if end := strings.LastIndex(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}
