// Package upstream talks to the chat API and relays its SSE stream verbatim.
package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/capitalize-ai/chat-proxy/internal/config"
	"github.com/capitalize-ai/chat-proxy/internal/model"
)

// ErrMissingConfig is returned when the chat API credentials are incomplete.
var ErrMissingConfig = errors.New("upstream: missing configuration")

// CallSpec is one upstream chat call. It is built per request and never reused.
type CallSpec struct {
	URL   string
	Token string
	Body  []byte
}

// BuildCallSpec derives the upstream call for req. The result depends only on
// its inputs, so equal inputs give byte-identical bodies.
func BuildCallSpec(cfg config.UpstreamConfig, req *model.ChatRequest) (*CallSpec, error) {
	if cfg.BaseURL == "" || cfg.BotID == "" || cfg.PATToken == "" {
		return nil, ErrMissingConfig
	}

	target := cfg.BaseURL + "/chat"
	if req.HasConversation() {
		target += "?conversation_id=" + url.QueryEscape(req.ConversationID)
	}

	body, err := json.Marshal(model.ChatPayload{
		BotID:           cfg.BotID,
		UserID:          req.UserID,
		Stream:          true,
		AutoSaveHistory: true,
		AdditionalMessages: []model.AdditionalMessage{
			{
				Role:        model.RoleUser,
				Content:     req.Message,
				ContentType: model.ContentTypeText,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat payload: %w", err)
	}

	return &CallSpec{
		URL:   target,
		Token: cfg.PATToken,
		Body:  body,
	}, nil
}
