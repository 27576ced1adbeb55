package nlu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// HTTPClassifier calls an external NLU endpoint over HTTP.
type HTTPClassifier struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClassifier builds a classifier against baseURL. The timeout bounds
// each call independently of the caller's context.
func NewHTTPClassifier(baseURL string, timeout time.Duration) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPClassifier{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type classifyRequest struct {
	Text  string   `json:"text"`
	Hints []string `json:"hints,omitempty"`
}

type classifyResponse struct {
	Category   string   `json:"category"`
	Indicators []string `json:"indicators"`
	Confidence float64  `json:"confidence"`
}

// Classify posts the report text to the endpoint and maps the response. A
// missing or unrecognized category yields ErrNoCategory.
func (c *HTTPClassifier) Classify(ctx context.Context, text string, hints []string) (*Result, error) {
	body, err := json.Marshal(classifyRequest{Text: text, Hints: hints})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var decoded classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	category := domain.IncidentCategory(decoded.Category)
	if decoded.Category == "" || !domain.ValidCategory(category) || category == domain.CategoryUnknown {
		return nil, ErrNoCategory
	}

	if decoded.Confidence < 0 {
		decoded.Confidence = 0
	}
	if decoded.Confidence > 1 {
		decoded.Confidence = 1
	}

	return &Result{
		Category:   category,
		Indicators: decoded.Indicators,
		Confidence: decoded.Confidence,
	}, nil
}
