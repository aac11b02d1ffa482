package audio

import "encoding/binary"

// ClipHop is the stride between overlapping clip windows (75% overlap).
const ClipHop = WindowSize / 4

// ChunkClip slices a clip into overlapping inference windows. Clips shorter
// than one window are zero-padded to exactly one window; the final partial
// stretch of a longer clip is likewise padded so no audio at the tail is
// lost during enrollment.
func ChunkClip(samples []float64) [][]float64 {
	if len(samples) == 0 {
		return nil
	}

	if len(samples) <= WindowSize {
		return [][]float64{PadWindow(samples)}
	}

	var windows [][]float64
	for start := 0; start < len(samples); start += ClipHop {
		end := start + WindowSize
		if end >= len(samples) {
			windows = append(windows, PadWindow(samples[start:]))
			break
		}
		window := make([]float64, WindowSize)
		copy(window, samples[start:end])
		windows = append(windows, window)
	}

	return windows
}

// PadWindow zero-pads (or copies) samples to exactly WindowSize.
func PadWindow(samples []float64) []float64 {
	window := make([]float64, WindowSize)
	copy(window, samples)
	return window
}

// DecodePCM16 converts a complete little-endian 16-bit PCM buffer into
// normalized samples, used for uploaded clips that arrive in one piece.
// A trailing odd byte is ignored.
func DecodePCM16(data []byte) []float64 {
	count := len(data) / BytesPerSample
	samples := make([]float64, 0, count)
	framer := NewFramer()
	// Reuse the framer's conversion for windows, then drain the remainder
	// manually so no sample of a decoded clip is lost.
	for _, window := range framer.Produce(data) {
		samples = append(samples, window...)
	}
	samples = append(samples, framer.drain()...)
	return samples
}

// drain returns the buffered samples without emitting a window.
func (f *Framer) drain() []float64 {
	out := make([]float64, len(f.samples))
	copy(out, f.samples)
	f.samples = f.samples[:0]
	return out
}

// StripWAVHeader returns the PCM data chunk of a RIFF/WAVE buffer. Buffers
// that are not WAV files come back unchanged, so callers can accept either
// raw PCM16 or a PCM16 WAV upload.
func StripWAVHeader(data []byte) []byte {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return data
	}

	// Walk the chunk list; the "data" chunk holds the samples.
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if id == "data" {
			end := body + size
			if end > len(data) {
				end = len(data)
			}
			return data[body:end]
		}
		// Chunks are word-aligned.
		offset = body + size + (size & 1)
	}

	return nil
}
