// Package tools holds the HTTP-backed implementations of the cycle
// engine's pluggable ports: the external forecast estimator and the
// dialogue renderer, each wrapping a transport client with its own
// rate limit and timeout.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kestrelsupply/replenisher-agent/core"
	"golang.org/x/time/rate"
)

// RemoteEstimator calls an external HTTP forecasting service implementing
// core.ExternalForecaster. It carries its own rate limiter independent of
// the per-cycle call budget enforced by pkg/cycle/forecast.go, guarding
// against bursts across concurrently running cycles.
type RemoteEstimator struct {
	BaseURL    string
	HTTPClient *http.Client
	limiter    *rate.Limiter
}

// NewRemoteEstimator constructs a client capped at ratePerSecond requests
// per second (burst of 1).
func NewRemoteEstimator(baseURL string, ratePerSecond float64) *RemoteEstimator {
	return &RemoteEstimator{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSecond), 1),
	}
}

type forecastRequest struct {
	Inventory core.InventorySnippet `json:"inventory"`
	Sales     core.SalesSnippet     `json:"sales"`
}

type forecastResponse struct {
	Daily       [7]float64 `json:"daily"`
	Confidence  float64    `json:"confidence"`
	Explanation string     `json:"explanation"`
}

// Forecast implements core.ExternalForecaster.
func (r *RemoteEstimator) Forecast(ctx context.Context, inv core.InventorySnippet, sales core.SalesSnippet) (core.ExternalForecastResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return core.ExternalForecastResult{}, fmt.Errorf("tools: estimator rate limit: %w", err)
	}

	body, err := json.Marshal(forecastRequest{Inventory: inv, Sales: sales})
	if err != nil {
		return core.ExternalForecastResult{}, fmt.Errorf("tools: marshal forecast request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/v1/forecast", bytes.NewReader(body))
	if err != nil {
		return core.ExternalForecastResult{}, fmt.Errorf("tools: build forecast request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return core.ExternalForecastResult{}, fmt.Errorf("tools: forecast request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return core.ExternalForecastResult{}, fmt.Errorf("tools: forecast estimator returned status %d", resp.StatusCode)
	}

	var out forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return core.ExternalForecastResult{}, fmt.Errorf("tools: decode forecast response: %w", err)
	}

	return core.ExternalForecastResult{Daily: out.Daily, Confidence: out.Confidence, Explanation: out.Explanation}, nil
}

// NilEstimator always errors, used when no external estimator is
// configured; ForecastStage's statistical fallback takes over.
type NilEstimator struct{}

func (NilEstimator) Forecast(context.Context, core.InventorySnippet, core.SalesSnippet) (core.ExternalForecastResult, error) {
	return core.ExternalForecastResult{}, errors.New("tools: no external estimator configured")
}
