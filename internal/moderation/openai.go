package moderation

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIChecker uses the OpenAI moderation endpoint.
type OpenAIChecker struct {
	client *openai.Client
}

// NewOpenAIChecker creates a checker. baseURL and httpClient are optional.
func NewOpenAIChecker(apiKey, baseURL string, httpClient *http.Client) *OpenAIChecker {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}

	return &OpenAIChecker{
		client: openai.NewClientWithConfig(cfg),
	}
}

// Name returns the provider name.
func (c *OpenAIChecker) Name() string {
	return "openai"
}

// Check blocks text when any moderation result is flagged.
func (c *OpenAIChecker) Check(ctx context.Context, text string) (Verdict, error) {
	resp, err := c.client.Moderations(ctx, openai.ModerationRequest{
		Input: text,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("openai moderation failed: %w", err)
	}
	if len(resp.Results) == 0 {
		return Verdict{}, fmt.Errorf("openai moderation returned no results")
	}

	for _, result := range resp.Results {
		if result.Flagged {
			return Verdict{
				Blocked: true,
				Reason:  "Flagged: " + flaggedCategories(result.Categories),
			}, nil
		}
	}

	return Verdict{}, nil
}

func flaggedCategories(c openai.ResultCategories) string {
	var names []string
	add := func(flag bool, name string) {
		if flag {
			names = append(names, name)
		}
	}

	add(c.Hate, "hate")
	add(c.HateThreatening, "hate/threatening")
	add(c.Harassment, "harassment")
	add(c.HarassmentThreatening, "harassment/threatening")
	add(c.SelfHarm, "self-harm")
	add(c.SelfHarmIntent, "self-harm/intent")
	add(c.SelfHarmInstructions, "self-harm/instructions")
	add(c.Sexual, "sexual")
	add(c.SexualMinors, "sexual/minors")
	add(c.Violence, "violence")
	add(c.ViolenceGraphic, "violence/graphic")

	if len(names) == 0 {
		return "unknown"
	}
	return strings.Join(names, ", ")
}
