package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sathizz7/streetview-capturing-sys/internal/models"
)

// ErrFatal is a non-retryable oracle failure (bad credentials, malformed
// request). Terminal for the whole run.
var ErrFatal = errors.New("fatal oracle error")

// HTTPJudge talks to a vision-judgment service over JSON/HTTP. Transient
// failures (429, 5xx, network) are retried with exponential backoff.
type HTTPJudge struct {
	baseURL    string
	apiKey     string
	batch      bool
	httpClient *http.Client
	maxRetries uint64
}

// HTTPJudgeConfig configures an HTTPJudge.
type HTTPJudgeConfig struct {
	BaseURL    string
	APIKey     string
	Batch      bool // whether the service accepts batched screen calls
	Timeout    time.Duration
	MaxRetries uint64
}

// NewHTTPJudge creates a judge client for the given service.
func NewHTTPJudge(cfg HTTPJudgeConfig) *HTTPJudge {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	return &HTTPJudge{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		batch:      cfg.Batch,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
	}
}

// SupportsBatch implements Judge.
func (j *HTTPJudge) SupportsBatch() bool { return j.batch }

// Screen implements Judge.
func (j *HTTPJudge) Screen(ctx context.Context, reqs []ScreenRequest) ([]ScreenResponse, error) {
	var resp struct {
		Faces []ScreenResponse `json:"faces"`
	}
	payload := map[string]interface{}{"candidates": reqs}
	if err := j.postJSON(ctx, "/v1/screen", payload, &resp); err != nil {
		return nil, fmt.Errorf("screen: %w", err)
	}
	return resp.Faces, nil
}

// ProposeRefinement implements Judge.
func (j *HTTPJudge) ProposeRefinement(ctx context.Context, req RefinementRequest) (models.RefinementDelta, error) {
	var resp struct {
		Adjustments models.RefinementDelta `json:"parameter_adjustments"`
	}
	if err := j.postJSON(ctx, "/v1/refine", req, &resp); err != nil {
		return models.RefinementDelta{}, fmt.Errorf("propose refinement: %w", err)
	}
	return resp.Adjustments, nil
}

// Analyze implements Judge.
func (j *HTTPJudge) Analyze(ctx context.Context, req AnalyzeRequest) (models.BuildingAnalysis, error) {
	var resp models.BuildingAnalysis
	if err := j.postJSON(ctx, "/v1/analyze", req, &resp); err != nil {
		return models.BuildingAnalysis{}, fmt.Errorf("analyze: %w", err)
	}
	return resp, nil
}

func (j *HTTPJudge) postJSON(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("%w: marshal request: %v", ErrFatal, err))
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrFatal, err))
		}
		req.Header.Set("Content-Type", "application/json")
		if j.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+j.apiKey)
		}

		resp, err := j.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read body: %w", err)
			}
			if err := json.Unmarshal(data, out); err != nil {
				return backoff.Permanent(fmt.Errorf("%w: decode response: %v", ErrFatal, err))
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("oracle returned %d", resp.StatusCode)
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(fmt.Errorf("%w: oracle returned %d", ErrFatal, resp.StatusCode))
		default:
			return backoff.Permanent(fmt.Errorf("%w: oracle returned %d", ErrFatal, resp.StatusCode))
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), j.maxRetries), ctx)
	return backoff.Retry(op, policy)
}
