package inference

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPEngine communicates with the sidecar inference service that hosts the
// audio model. The service exposes /classify and /embed, both accepting one
// normalized window as a JSON float array.
type HTTPEngine struct {
	serviceURL string
	client     *http.Client
}

type windowRequest struct {
	Samples []float64 `json:"samples"`
}

type classifyResponse struct {
	Scores []float64 `json:"scores"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
	Dimension int       `json:"dimension"`
}

// NewHTTPEngine creates an engine client for the given base URL.
func NewHTTPEngine(serviceURL string) *HTTPEngine {
	if serviceURL == "" {
		serviceURL = "http://localhost:5002"
	}

	return &HTTPEngine{
		serviceURL: serviceURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// HealthCheck verifies the inference service is running.
func (e *HTTPEngine) HealthCheck() error {
	resp, err := e.client.Get(e.serviceURL + "/health")
	if err != nil {
		return fmt.Errorf("inference service not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service unhealthy: status %d", resp.StatusCode)
	}

	return nil
}

// Classify sends one window to /classify and returns the raw score vector.
func (e *HTTPEngine) Classify(window []float64) ([]float64, error) {
	var resp classifyResponse
	if err := e.post("/classify", window, &resp); err != nil {
		return nil, err
	}

	if len(resp.Scores) != ScoreDim {
		return nil, fmt.Errorf("inference service returned %d scores, expected %d", len(resp.Scores), ScoreDim)
	}

	return resp.Scores, nil
}

// Embed sends one window to /embed and returns the embedding vector.
func (e *HTTPEngine) Embed(window []float64) ([]float64, error) {
	var resp embedResponse
	if err := e.post("/embed", window, &resp); err != nil {
		return nil, err
	}

	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("received empty embedding")
	}
	if len(resp.Embedding) != EmbeddingDim {
		return nil, fmt.Errorf("inference service returned %d-dim embedding, expected %d", len(resp.Embedding), EmbeddingDim)
	}

	return resp.Embedding, nil
}

func (e *HTTPEngine) post(path string, window []float64, out interface{}) error {
	payload, err := json.Marshal(windowRequest{Samples: window})
	if err != nil {
		return fmt.Errorf("failed to marshal window: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, e.serviceURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("inference service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
