package audio

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

func pcm16(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func samples16(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

func TestMixedStreamSumsSamples(t *testing.T) {
	t.Parallel()

	a := bytes.NewReader(pcm16(100, -50, 0))
	b := bytes.NewReader(pcm16(23, 50, -7))

	mixed, err := io.ReadAll(newMixedStream(a, b))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	got := samples16(mixed)
	want := []int16{123, 0, -7}
	if len(got) != len(want) {
		t.Fatalf("unexpected sample count: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestMixedStreamClampsOverflow(t *testing.T) {
	t.Parallel()

	a := bytes.NewReader(pcm16(30000, -30000))
	b := bytes.NewReader(pcm16(10000, -10000))

	mixed, err := io.ReadAll(newMixedStream(a, b))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	got := samples16(mixed)
	if got[0] != 32767 {
		t.Fatalf("expected positive clamp, got %d", got[0])
	}
	if got[1] != -32768 {
		t.Fatalf("expected negative clamp, got %d", got[1])
	}
}

func TestMixedStreamPassesThroughAfterOneSideEnds(t *testing.T) {
	t.Parallel()

	a := bytes.NewReader(pcm16(1, 2))
	b := bytes.NewReader(pcm16(10, 20, 30, 40))

	mixed, err := io.ReadAll(newMixedStream(a, b))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	got := samples16(mixed)
	want := []int16{11, 22, 30, 40}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestMixedStreamBothEmpty(t *testing.T) {
	t.Parallel()

	mixed, err := io.ReadAll(newMixedStream(bytes.NewReader(nil), bytes.NewReader(nil)))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(mixed) != 0 {
		t.Fatalf("expected empty output, got %d bytes", len(mixed))
	}
}
