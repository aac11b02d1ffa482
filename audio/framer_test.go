package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func pcmBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(s))
	}
	return out
}

func constantPCM(value int16, count int) []byte {
	samples := make([]int16, count)
	for i := range samples {
		samples[i] = value
	}
	return pcmBytes(samples)
}

func TestFramerEmitsExactWindows(t *testing.T) {
	t.Parallel()

	const k = 3
	framer := NewFramer()
	windows := framer.Produce(constantPCM(16384, k*WindowSize))

	if len(windows) != k {
		t.Fatalf("expected %d windows, got %d", k, len(windows))
	}
	for idx, window := range windows {
		if len(window) != WindowSize {
			t.Fatalf("window %d has %d samples, expected %d", idx, len(window), WindowSize)
		}
		if math.Abs(window[0]-0.5) > 1e-9 {
			t.Fatalf("window %d sample 0 = %f, expected 0.5", idx, window[0])
		}
	}
	if framer.PendingSamples() != 0 {
		t.Fatalf("expected empty carry, got %d pending samples", framer.PendingSamples())
	}
}

func TestFramerDiscardsTrailingPartialWindow(t *testing.T) {
	t.Parallel()

	const k = 2
	const partial = 1234
	framer := NewFramer()
	windows := framer.Produce(constantPCM(100, k*WindowSize+partial))

	if len(windows) != k {
		t.Fatalf("expected %d windows, got %d", k, len(windows))
	}
	// The remainder stays buffered and is never emitted once the stream ends.
	if framer.PendingSamples() != partial {
		t.Fatalf("expected %d pending samples, got %d", partial, framer.PendingSamples())
	}
}

func TestFramerCarriesPartialBytesAcrossChunks(t *testing.T) {
	t.Parallel()

	data := constantPCM(-16384, WindowSize)
	framer := NewFramer()

	// Feed in uneven chunks, splitting one sample across a boundary.
	var windows [][]float64
	windows = append(windows, framer.Produce(data[:7])...)
	windows = append(windows, framer.Produce(data[7:7001])...)
	windows = append(windows, framer.Produce(data[7001:])...)

	if len(windows) != 1 {
		t.Fatalf("expected 1 window, got %d", len(windows))
	}
	if math.Abs(windows[0][0]+0.5) > 1e-9 {
		t.Fatalf("sample 0 = %f, expected -0.5", windows[0][0])
	}
	if math.Abs(windows[0][WindowSize-1]+0.5) > 1e-9 {
		t.Fatalf("last sample = %f, expected -0.5", windows[0][WindowSize-1])
	}
}

func TestFramerNormalizationRange(t *testing.T) {
	t.Parallel()

	framer := NewFramer()
	padded := make([]int16, WindowSize)
	padded[0] = math.MinInt16
	padded[1] = math.MaxInt16
	windows := framer.Produce(pcmBytes(padded))

	if len(windows) != 1 {
		t.Fatalf("expected 1 window, got %d", len(windows))
	}
	if windows[0][0] != -1.0 {
		t.Fatalf("min sample = %f, expected -1.0", windows[0][0])
	}
	if windows[0][1] >= 1.0 {
		t.Fatalf("max sample = %f, expected < 1.0", windows[0][1])
	}
}

func TestChunkClipPadsShortClips(t *testing.T) {
	t.Parallel()

	clip := make([]float64, 100)
	for i := range clip {
		clip[i] = 0.25
	}

	windows := ChunkClip(clip)
	if len(windows) != 1 {
		t.Fatalf("expected 1 window, got %d", len(windows))
	}
	if len(windows[0]) != WindowSize {
		t.Fatalf("window has %d samples, expected %d", len(windows[0]), WindowSize)
	}
	if windows[0][99] != 0.25 || windows[0][100] != 0 {
		t.Fatalf("expected zero padding after sample 99")
	}
}

func TestChunkClipOverlap(t *testing.T) {
	t.Parallel()

	clip := make([]float64, WindowSize*2)
	for i := range clip {
		clip[i] = float64(i)
	}

	windows := ChunkClip(clip)
	if len(windows) < 2 {
		t.Fatalf("expected multiple windows, got %d", len(windows))
	}
	// Second window must start one hop (25% of a window) into the clip.
	if windows[1][0] != float64(ClipHop) {
		t.Fatalf("second window starts at sample %f, expected %d", windows[1][0], ClipHop)
	}
	for _, window := range windows {
		if len(window) != WindowSize {
			t.Fatalf("window has %d samples, expected %d", len(window), WindowSize)
		}
	}
}
