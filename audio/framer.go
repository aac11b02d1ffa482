package audio

// Streamed Audio Framing
//
// The capture device streams raw little-endian 16-bit signed PCM (mono,
// 16 kHz) with no application-level framing. The Framer reassembles that
// byte stream into the fixed-size normalized windows the inference engine
// expects:
//
// 1. Inbound chunks of arbitrary length are appended to a carry-over buffer.
// 2. Each complete pair of bytes becomes one sample, scaled to [-1, 1).
// 3. Every WindowSize samples are emitted as one window.
// 4. Whatever remains when the stream closes is dropped; a partial window is
//    never emitted.

import "encoding/binary"

const (
	// SampleRate is the fixed capture rate in Hz.
	SampleRate = 16000

	// WindowSize is the number of samples per inference window (~0.975 s).
	WindowSize = 15600

	// BytesPerSample for 16-bit PCM.
	BytesPerSample = 2
)

// Framer converts an inbound PCM byte stream into fixed-length float windows.
// It is not safe for concurrent use; exactly one session task feeds it.
type Framer struct {
	carry   []byte
	samples []float64
}

// NewFramer returns a framer with an empty carry-over buffer.
func NewFramer() *Framer {
	return &Framer{samples: make([]float64, 0, WindowSize)}
}

// Produce consumes one transport chunk and returns zero or more complete
// windows. Short or empty chunks are buffered, never an error.
func (f *Framer) Produce(chunk []byte) [][]float64 {
	if len(chunk) == 0 {
		return nil
	}

	data := chunk
	if len(f.carry) > 0 {
		data = append(f.carry, chunk...)
		f.carry = nil
	}

	usable := len(data) - len(data)%BytesPerSample
	if usable < len(data) {
		f.carry = append(f.carry, data[usable:]...)
	}

	for i := 0; i+BytesPerSample <= usable; i += BytesPerSample {
		sample := int16(binary.LittleEndian.Uint16(data[i : i+BytesPerSample]))
		f.samples = append(f.samples, float64(sample)/32768.0)
	}

	var windows [][]float64
	for len(f.samples) >= WindowSize {
		window := make([]float64, WindowSize)
		copy(window, f.samples[:WindowSize])
		windows = append(windows, window)
		f.samples = f.samples[:copy(f.samples, f.samples[WindowSize:])]
	}

	return windows
}

// PendingSamples reports how many buffered samples would be discarded if the
// stream ended now.
func (f *Framer) PendingSamples() int {
	return len(f.samples)
}

// Reset drops all carried state, ready for a fresh stream.
func (f *Framer) Reset() {
	f.carry = nil
	f.samples = f.samples[:0]
}
