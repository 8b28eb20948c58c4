package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
)

// EmbeddingProvider scores chunks by cosine similarity of embeddings from an
// Ollama-compatible /api/embed endpoint.
type EmbeddingProvider struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewEmbeddingProvider creates a provider targeting the given base URL.
// Request deadlines come from the caller's context, not the client.
func NewEmbeddingProvider(baseURL, model string) *EmbeddingProvider {
	return &EmbeddingProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 0},
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// ScoreChunks embeds the question and every chunk in one call and returns the
// question-to-chunk cosine similarities.
func (p *EmbeddingProvider) ScoreChunks(ctx context.Context, question string, chunks []string) ([]float64, error) {
	input := make([]string, 0, len(chunks)+1)
	input = append(input, question)
	input = append(input, chunks...)

	body, err := json.Marshal(embedRequest{Model: p.model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshalling embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting embeddings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(out.Embeddings) != len(input) {
		return nil, fmt.Errorf("got %d embeddings for %d inputs", len(out.Embeddings), len(input))
	}

	q := out.Embeddings[0]
	scores := make([]float64, len(chunks))
	for i := range chunks {
		scores[i] = cosine(q, out.Embeddings[i+1])
	}
	return scores, nil
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
