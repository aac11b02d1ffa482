package taxonomy

// Smoothed Taxonomy Classification
//
// Each audio window is scored by the external model into a 521-class raw
// vector, collapsed to ~40 semantic labels (MergeScores), then stabilised
// with an exponential moving average per label:
//
//	smoothed[label] = alpha*merged[label] + (1-alpha)*previous[label]
//
// The first observation of a label seeds the average with the merged score
// directly, so a fresh session has no artificial zero-start bias. The top
// prediction is the label with the maximum smoothed score; exact ties go to
// the lexicographically smallest label so repeated runs are deterministic.

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"soundsense/inference"
)

// DefaultAlpha is the smoothing constant used when none is configured.
const DefaultAlpha = 0.25

// Prediction is the stable per-window top pick for the built-in vocabulary.
// Confidence is a smoothed sum of raw class scores and is unbounded; it is
// not clamped to [0,1].
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classifier owns the smoothing state for one listening session.
type Classifier struct {
	engine inference.Engine
	alpha  float64

	mu       sync.Mutex
	smoothed map[string]float64
}

// ValidateAlpha checks that a smoothing constant lies in (0, 1].
func ValidateAlpha(alpha float64) error {
	if alpha <= 0 || alpha > 1 {
		return fmt.Errorf("invalid smoothing alpha %f, must be in (0, 1]", alpha)
	}
	return nil
}

// NewClassifier builds a classifier around the inference engine.
// Alpha must lie in (0, 1].
func NewClassifier(engine inference.Engine, alpha float64) (*Classifier, error) {
	if engine == nil {
		return nil, errors.New("inference engine is required")
	}
	if err := ValidateAlpha(alpha); err != nil {
		return nil, err
	}

	return &Classifier{
		engine:   engine,
		alpha:    alpha,
		smoothed: make(map[string]float64),
	}, nil
}

// ClassifyWindow scores one window and returns the smoothed top prediction.
// An engine failure leaves the smoothing state untouched.
func (c *Classifier) ClassifyWindow(window []float64) (Prediction, error) {
	raw, err := c.engine.Classify(window)
	if err != nil {
		return Prediction{}, fmt.Errorf("inference failed: %w", err)
	}

	merged := MergeScores(raw)
	return c.update(merged), nil
}

// update folds one merged score map into the running averages and picks the
// current top label. Updates are strictly sequential with window arrival.
func (c *Classifier) update(merged map[string]float64) Prediction {
	c.mu.Lock()
	defer c.mu.Unlock()

	labels := make([]string, 0, len(merged))
	for label := range merged {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	top := Prediction{Confidence: -1}
	for _, label := range labels {
		previous, seen := c.smoothed[label]
		if !seen {
			previous = merged[label]
		}
		value := c.alpha*merged[label] + (1-c.alpha)*previous
		c.smoothed[label] = value

		// Strict > on a sorted scan makes the tie-break lexicographic.
		if value > top.Confidence {
			top = Prediction{Label: label, Confidence: value}
		}
	}

	return top
}

// Smoothed returns the current running score for a label and whether the
// label has been observed this session.
func (c *Classifier) Smoothed(label string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.smoothed[label]
	return value, ok
}

// Reset clears all smoothing state; called when a new session starts.
func (c *Classifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.smoothed = make(map[string]float64)
}
