package inference

// Dimensions of the external model's input/output contract. The engine is a
// black box: one fixed-length audio window in, either a raw taxonomy score
// vector or an embedding out.
const (
	// ScoreDim is the length of the raw taxonomy score vector.
	ScoreDim = 521

	// EmbeddingDim is the length of an audio embedding.
	EmbeddingDim = 1024
)

// Engine scores and embeds normalized audio windows. Implementations must be
// safe for sequential per-session use; callers never issue overlapping calls
// for the same stream.
type Engine interface {
	// Classify maps one window to the raw 521-class score vector.
	Classify(window []float64) ([]float64, error)

	// Embed maps one window to a 1024-dim embedding.
	Embed(window []float64) ([]float64, error)
}
