package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/examina/examina-backend/internal/model"
	"github.com/rs/zerolog"
)

// HTTPClient talks to the external code execution service over HTTP.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewHTTPClient creates an executor client against baseURL. timeout bounds a
// single execution round-trip.
func NewHTTPClient(baseURL string, timeout time.Duration, log zerolog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "executor_client").Logger(),
	}
}

// executeResponse is the collaborator's wire format.
type executeResponse struct {
	Results []struct {
		TestCaseID   string `json:"test_case_id"`
		ActualOutput string `json:"actual_output"`
		IsCorrect    bool   `json:"is_correct"`
		Error        string `json:"error,omitempty"`
	} `json:"results"`
	Passed int `json:"passed"`
	Total  int `json:"total"`
}

// Execute sends the source and test cases for execution and returns
// per-test-case results. Transport errors, non-2xx statuses, and malformed
// bodies are returned as errors; callers map them to synthesized failing
// results via FailedRun / ExecuteOrFail.
func (c *HTTPClient) Execute(ctx context.Context, req RunRequest) (*model.RunResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("executor returned status %d", resp.StatusCode)
	}

	var wire executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(wire.Results) != len(req.TestCases) {
		return nil, fmt.Errorf("executor returned %d results for %d test cases", len(wire.Results), len(req.TestCases))
	}

	result := &model.RunResult{
		Results: make([]model.TestCaseResult, len(wire.Results)),
		Total:   len(wire.Results),
	}
	for i, r := range wire.Results {
		result.Results[i] = model.TestCaseResult{
			TestCaseID:   r.TestCaseID,
			ActualOutput: r.ActualOutput,
			IsCorrect:    r.IsCorrect,
			Error:        r.Error,
		}
		if r.IsCorrect {
			result.Passed++
		}
	}

	c.log.Debug().
		Str("language", req.Language).
		Int("passed", result.Passed).
		Int("total", result.Total).
		Msg("Execution completed")

	return result, nil
}
