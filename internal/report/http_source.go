package report

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/freelilwilly/polymarket-tracker/internal/model"
)

// HTTPSource reads the summary from a running tracker's
// GET /api/v1/summary endpoint.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource creates a source for the tracker at baseURL.
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPSource) GetSummary(ctx context.Context) (*model.Summary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/v1/summary", nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch summary: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch summary: status %d", resp.StatusCode)
	}
	var sm model.Summary
	if err := json.NewDecoder(resp.Body).Decode(&sm); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	return &sm, nil
}
