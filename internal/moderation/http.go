package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxResponseBytes caps how much of a moderation response is read.
const maxResponseBytes = 1 << 20

// HTTPChecker calls a word-list moderation service: POST {baseURL}/check with
// {"text": ...}, answered by {"blocked": bool, "word": string}.
type HTTPChecker struct {
	client  *http.Client
	baseURL string
}

// NewHTTPChecker creates a checker. A nil client gets an instrumented default
// transport; the gate's context supplies the deadline.
func NewHTTPChecker(baseURL string, client *http.Client) *HTTPChecker {
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &HTTPChecker{
		client:  client,
		baseURL: baseURL,
	}
}

type checkRequest struct {
	Text string `json:"text"`
}

type checkResponse struct {
	Blocked *bool   `json:"blocked"`
	Word    *string `json:"word"`
}

// Name returns the provider name.
func (c *HTTPChecker) Name() string {
	return "http"
}

// Check asks the service about text. Only a 200 with a decision counts as an answer.
func (c *HTTPChecker) Check(ctx context.Context, text string) (Verdict, error) {
	reqBody, err := json.Marshal(checkRequest{Text: text})
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to marshal moderation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/check", bytes.NewReader(reqBody))
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to create moderation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("moderation service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return Verdict{}, fmt.Errorf("moderation service returned status: %d", resp.StatusCode)
	}

	var res checkResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&res); err != nil {
		return Verdict{}, fmt.Errorf("failed to decode moderation response: %w", err)
	}
	if res.Blocked == nil {
		return Verdict{}, errors.New("moderation response has no decision")
	}

	if !*res.Blocked {
		return Verdict{}, nil
	}

	word := "unknown"
	if res.Word != nil {
		word = *res.Word
	}
	return Verdict{Blocked: true, Reason: "Matched: " + word}, nil
}
