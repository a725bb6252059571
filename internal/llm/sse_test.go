package llm

import (
	"math/rand"
	"reflect"
	"testing"
)

func TestSSEDecoderBasic(t *testing.T) {
	d := NewSSEDecoder()
	out := d.Push([]byte("data: {\"a\":1}\n\ndata: {\"b\":2}\n"))
	want := []string{`{"a":1}`, `{"b":2}`}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("got %v, want %v", out, want)
	}
}

func TestSSEDecoderDoneMarker(t *testing.T) {
	d := NewSSEDecoder()
	out := d.Push([]byte("data: {\"a\":1}\ndata: [DONE]\n"))
	if len(out) != 1 || out[0] != `{"a":1}` {
		t.Errorf("[DONE] should be discarded, got %v", out)
	}
}

func TestSSEDecoderPartialLineRetained(t *testing.T) {
	d := NewSSEDecoder()
	if out := d.Push([]byte("data: {\"a\"")); len(out) != 0 {
		t.Fatalf("partial line should emit nothing, got %v", out)
	}
	out := d.Push([]byte(":1}\n"))
	if len(out) != 1 || out[0] != `{"a":1}` {
		t.Errorf("got %v, want one payload", out)
	}
}

func TestSSEDecoderCRLF(t *testing.T) {
	d := NewSSEDecoder()
	out := d.Push([]byte("data: {\"a\":1}\r\n"))
	if len(out) != 1 || out[0] != `{"a":1}` {
		t.Errorf("CR should be stripped, got %v", out)
	}
}

func TestSSEDecoderIgnoresNonDataLines(t *testing.T) {
	d := NewSSEDecoder()
	out := d.Push([]byte("event: message\n: keep-alive\n\ndata: {\"x\":1}\n"))
	if len(out) != 1 || out[0] != `{"x":1}` {
		t.Errorf("got %v", out)
	}
}

// Decoding must be invariant under any partition of the byte stream into
// chunks.
func TestSSEDecoderChunkingInvariant(t *testing.T) {
	stream := []byte("data: {\"n\":1}\nevent: ping\ndata: {\"n\":2}\r\ndata: [DONE]\ndata: {\"n\":3}\n\n")

	whole := NewSSEDecoder().Push(stream)
	if len(whole) != 3 {
		t.Fatalf("expected 3 payloads from one-shot decode, got %d", len(whole))
	}

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		d := NewSSEDecoder()
		var got []string
		rest := stream
		for len(rest) > 0 {
			n := 1 + rng.Intn(len(rest))
			got = append(got, d.Push(rest[:n])...)
			rest = rest[n:]
		}
		if !reflect.DeepEqual(got, whole) {
			t.Fatalf("trial %d: chunked decode %v != whole decode %v", trial, got, whole)
		}
	}
}
