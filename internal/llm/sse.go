package llm

import "strings"

// SSEDecoder incrementally splits a server-sent-event byte stream into data
// payloads. Partial lines are retained across pushes; no payload is ever
// emitted twice regardless of how the stream is chunked.
type SSEDecoder struct {
	buf strings.Builder
}

// NewSSEDecoder returns an empty decoder.
func NewSSEDecoder() *SSEDecoder {
	return &SSEDecoder{}
}

// Push appends a chunk and returns the complete data payloads it unlocked,
// with the "data: " prefix stripped and "[DONE]" markers discarded.
func (d *SSEDecoder) Push(chunk []byte) []string {
	d.buf.Write(chunk)
	s := d.buf.String()

	var out []string
	start := 0
	for {
		idx := strings.IndexByte(s[start:], '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSuffix(s[start:start+idx], "\r")
		start += idx + 1

		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			// Comments, event names, and blank keep-alive lines are skipped.
			continue
		}
		if payload == "[DONE]" {
			continue
		}
		out = append(out, payload)
	}

	leftover := s[start:]
	d.buf.Reset()
	d.buf.WriteString(leftover)
	return out
}
