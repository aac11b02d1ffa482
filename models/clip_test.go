package models

import "testing"

func TestClipSourceEqualSameVariant(t *testing.T) {
	t.Parallel()

	a := NewRecordingSource([]float64{0.1, 0.2, 0.3})
	b := NewRecordingSource([]float64{0.1, 0.2, 0.3})
	if !a.Equal(b) {
		t.Fatal("identical recording sources must be equal")
	}

	u1 := NewUploadSource("/tmp/knock.wav", []float64{0.5}, "knock.wav", 1.5)
	u2 := NewUploadSource("/tmp/knock.wav", []float64{0.5}, "knock.wav", 1.5)
	if !u1.Equal(u2) {
		t.Fatal("identical upload sources must be equal")
	}
}

func TestClipSourceEqualDifferentKind(t *testing.T) {
	t.Parallel()

	recording := NewRecordingSource([]float64{0.5})
	upload := NewUploadSource("", []float64{0.5}, "", 0)
	if recording.Equal(upload) || upload.Equal(recording) {
		t.Fatal("different variants must never compare equal")
	}
}

func TestClipSourceEqualSampleMismatch(t *testing.T) {
	t.Parallel()

	a := NewRecordingSource([]float64{0.1, 0.2})
	if a.Equal(NewRecordingSource([]float64{0.1})) {
		t.Fatal("different sample counts must not be equal")
	}
	if a.Equal(NewRecordingSource([]float64{0.1, 0.3})) {
		t.Fatal("different sample values must not be equal")
	}
}

func TestClipSourceEqualUploadFieldMismatch(t *testing.T) {
	t.Parallel()

	base := NewUploadSource("/tmp/knock.wav", []float64{0.5}, "knock.wav", 1.5)

	cases := map[string]ClipSource{
		"path":     NewUploadSource("/tmp/other.wav", []float64{0.5}, "knock.wav", 1.5),
		"filename": NewUploadSource("/tmp/knock.wav", []float64{0.5}, "other.wav", 1.5),
		"duration": NewUploadSource("/tmp/knock.wav", []float64{0.5}, "knock.wav", 2.0),
	}
	for field, other := range cases {
		if base.Equal(other) {
			t.Fatalf("uploads differing in %s must not be equal", field)
		}
	}
}
