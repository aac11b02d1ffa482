package models

// ClipSourceKind discriminates the origin of an audio clip submitted for
// analysis or enrollment.
type ClipSourceKind int

const (
	ClipFromRecording ClipSourceKind = iota
	ClipFromUpload
)

// ClipSource is a tagged union over the two ways a clip reaches the system:
// a live recording buffer, or an uploaded file. Only the fields belonging to
// the active kind are meaningful.
type ClipSource struct {
	Kind    ClipSourceKind
	Samples []float64

	// Upload-only fields.
	Path     string
	Filename string
	Duration float64
}

// NewRecordingSource wraps a live recording buffer.
func NewRecordingSource(samples []float64) ClipSource {
	return ClipSource{Kind: ClipFromRecording, Samples: samples}
}

// NewUploadSource wraps an uploaded audio file and its decoded samples.
func NewUploadSource(path string, samples []float64, filename string, duration float64) ClipSource {
	return ClipSource{
		Kind:     ClipFromUpload,
		Samples:  samples,
		Path:     path,
		Filename: filename,
		Duration: duration,
	}
}

// Equal compares two clip sources by value, per variant payload.
func (c ClipSource) Equal(other ClipSource) bool {
	if c.Kind != other.Kind {
		return false
	}
	if len(c.Samples) != len(other.Samples) {
		return false
	}
	for i := range c.Samples {
		if c.Samples[i] != other.Samples[i] {
			return false
		}
	}
	if c.Kind == ClipFromUpload {
		return c.Path == other.Path && c.Filename == other.Filename && c.Duration == other.Duration
	}
	return true
}
