package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kestrelsupply/replenisher-agent/core"
)

// RemoteDialogue calls an external HTTP service to render natural-language
// dialogue text for a DialogueRequest, implementing core.DialogueService.
// pkg/cycle/finance.go always has a templated fallback ready, so a failure
// or timeout here never blocks the pipeline.
type RemoteDialogue struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewRemoteDialogue constructs a client with the recommended 15s timeout
// (spec §5), matching the independent timeout the caller already applies.
func NewRemoteDialogue(baseURL string) *RemoteDialogue {
	return &RemoteDialogue{BaseURL: baseURL, HTTPClient: &http.Client{Timeout: 15 * time.Second}}
}

type dialogueResponse struct {
	Message string `json:"message"`
}

// Render implements core.DialogueService.
func (r *RemoteDialogue) Render(ctx context.Context, req core.DialogueRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("tools: marshal dialogue request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/v1/dialogue", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("tools: build dialogue request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.HTTPClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("tools: dialogue request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tools: dialogue service returned status %d", resp.StatusCode)
	}

	var out dialogueResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("tools: decode dialogue response: %w", err)
	}
	return out.Message, nil
}
