package match

// Custom Sound Matching
//
// User-enrolled sounds are stored as prototype embeddings on their
// SoundProfile. Live audio is embedded through the external model and
// compared against every enabled custom profile by cosine similarity; a
// profile only matches when its own threshold is cleared. Profiles whose
// stored prototypes are malformed or of the wrong dimension are skipped
// individually, never aborting the pass.

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"soundsense/audio"
	"soundsense/inference"
	"soundsense/models"
	"soundsense/utils"
)

// Match is an accepted custom-sound detection.
type Match struct {
	Profile    models.SoundProfile `json:"profile"`
	Similarity float64             `json:"similarity"`
}

// ProfileSimilarity is one row of the detail ranking used for tuning.
type ProfileSimilarity struct {
	ProfileID        string  `json:"profileId"`
	DisplayName      string  `json:"displayName"`
	Similarity       float64 `json:"similarity"`
	Threshold        float64 `json:"threshold"`
	ClearedThreshold bool    `json:"clearedThreshold"`
}

// Matcher embeds audio and ranks custom sound profiles against it.
type Matcher struct {
	engine inference.Engine
	logger *slog.Logger
}

// NewMatcher builds a matcher around the inference engine.
func NewMatcher(engine inference.Engine) (*Matcher, error) {
	if engine == nil {
		return nil, errors.New("inference engine is required")
	}
	return &Matcher{engine: engine, logger: utils.GetLogger()}, nil
}

// EmbedWindow embeds exactly one inference window.
func (m *Matcher) EmbedWindow(window []float64) ([]float64, error) {
	embedding, err := m.engine.Embed(window)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	return embedding, nil
}

// EmbedClip embeds an arbitrary-length clip. Clips longer than one window
// are chunked with 75% overlap and the chunk embeddings are averaged
// element-wise; shorter clips are zero-padded to a single window.
func (m *Matcher) EmbedClip(samples []float64) ([]float64, error) {
	windows := audio.ChunkClip(samples)
	if len(windows) == 0 {
		return nil, errors.New("clip is empty")
	}

	sum := make([]float64, 0, inference.EmbeddingDim)
	for _, window := range windows {
		embedding, err := m.engine.Embed(window)
		if err != nil {
			return nil, fmt.Errorf("embedding failed: %w", err)
		}
		if len(sum) == 0 {
			sum = make([]float64, len(embedding))
		}
		for i, v := range embedding {
			sum[i] += v
		}
	}

	for i := range sum {
		sum[i] /= float64(len(windows))
	}

	return sum, nil
}

// BestMatch finds the enabled custom profile with the highest cosine
// similarity to the embedding. The match is accepted only when the
// similarity clears that profile's own threshold; otherwise ok is false.
// Unusable prototypes are skipped per profile.
func (m *Matcher) BestMatch(embedding []float64, profiles []models.SoundProfile) (Match, bool) {
	best := Match{Similarity: -1}
	for _, profile := range profiles {
		if !profile.IsEnabled || profile.IsBuiltIn {
			continue
		}

		prototype, err := ParsePrototype(profile.Embedding)
		if err != nil {
			m.logger.Warn("skipping profile with unusable prototype",
				slog.String("profileID", profile.ID),
				slog.String("name", profile.Name),
				slog.Any("error", err))
			continue
		}

		similarity := Cosine(embedding, prototype)
		if similarity > best.Similarity {
			best = Match{Profile: profile, Similarity: similarity}
		}
	}

	if best.Similarity < 0 {
		return Match{}, false
	}
	if best.Similarity < best.Profile.Threshold {
		return Match{}, false
	}

	return best, true
}

// RankProfiles returns the similarity of every custom profile (enabled or
// not) against the embedding, sorted by descending similarity. Used by the
// tuning/debugging surface, not the primary detection path.
func (m *Matcher) RankProfiles(embedding []float64, profiles []models.SoundProfile) []ProfileSimilarity {
	ranked := make([]ProfileSimilarity, 0, len(profiles))
	for _, profile := range profiles {
		if profile.IsBuiltIn {
			continue
		}

		similarity := 0.0
		prototype, err := ParsePrototype(profile.Embedding)
		if err != nil {
			m.logger.Warn("profile prototype unusable in ranking",
				slog.String("profileID", profile.ID),
				slog.Any("error", err))
		} else {
			similarity = Cosine(embedding, prototype)
		}

		ranked = append(ranked, ProfileSimilarity{
			ProfileID:        profile.ID,
			DisplayName:      profile.DisplayName,
			Similarity:       similarity,
			Threshold:        profile.Threshold,
			ClearedThreshold: similarity >= profile.Threshold,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Similarity != ranked[j].Similarity {
			return ranked[i].Similarity > ranked[j].Similarity
		}
		return ranked[i].ProfileID < ranked[j].ProfileID
	})

	return ranked
}

// ParsePrototype decodes a stored prototype embedding (a JSON float array)
// and validates its dimension.
func ParsePrototype(serialized string) ([]float64, error) {
	if serialized == "" {
		return nil, errors.New("profile has no stored embedding")
	}

	var prototype []float64
	if err := json.Unmarshal([]byte(serialized), &prototype); err != nil {
		return nil, fmt.Errorf("failed to parse stored embedding: %w", err)
	}
	if len(prototype) != inference.EmbeddingDim {
		return nil, fmt.Errorf("stored embedding has %d dimensions, expected %d", len(prototype), inference.EmbeddingDim)
	}

	return prototype, nil
}

// SerializePrototype encodes an embedding for storage on a profile.
func SerializePrototype(embedding []float64) (string, error) {
	data, err := json.Marshal(embedding)
	if err != nil {
		return "", fmt.Errorf("failed to serialize embedding: %w", err)
	}
	return string(data), nil
}

// Cosine computes the cosine similarity between two vectors. It returns 0
// when the dimensions differ or either vector has zero norm; it never
// returns an error.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
