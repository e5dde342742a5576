package upstream

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chat-proxy/internal/config"
	"github.com/capitalize-ai/chat-proxy/internal/model"
)

var testUpstream = config.UpstreamConfig{
	BaseURL:  "https://api.coze.cn/v3",
	BotID:    "bot-1",
	PATToken: "pat-secret",
}

func TestBuildCallSpec_NewConversation(t *testing.T) {
	spec, err := BuildCallSpec(testUpstream, &model.ChatRequest{Message: "hello", UserID: model.DefaultUserID})
	require.NoError(t, err)

	assert.Equal(t, "https://api.coze.cn/v3/chat", spec.URL)
	assert.Equal(t, "pat-secret", spec.Token)
	assert.JSONEq(t, `{
		"bot_id": "bot-1",
		"user_id": "guest_user",
		"stream": true,
		"auto_save_history": true,
		"additional_messages": [{"role": "user", "content": "hello", "content_type": "text"}]
	}`, string(spec.Body))
}

func TestBuildCallSpec_ConversationRoundTrip(t *testing.T) {
	ids := []string{"7412345678901234567", "a b&c=d", "会话/1"}

	for _, id := range ids {
		t.Run(id, func(t *testing.T) {
			spec, err := BuildCallSpec(testUpstream, &model.ChatRequest{Message: "hi", UserID: "u", ConversationID: id})
			require.NoError(t, err)

			u, err := url.Parse(spec.URL)
			require.NoError(t, err)
			assert.Equal(t, "/v3/chat", u.Path)
			assert.Equal(t, id, u.Query().Get("conversation_id"))
			assert.Len(t, u.Query(), 1)
		})
	}
}

func TestBuildCallSpec_Idempotent(t *testing.T) {
	req := &model.ChatRequest{Message: "same <message> & more", UserID: "u-1", ConversationID: "c-1"}

	first, err := BuildCallSpec(testUpstream, req)
	require.NoError(t, err)
	second, err := BuildCallSpec(testUpstream, req)
	require.NoError(t, err)

	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, first.URL, second.URL)
}

func TestBuildCallSpec_MissingConfig(t *testing.T) {
	req := &model.ChatRequest{Message: "hello", UserID: model.DefaultUserID}

	for name, cfg := range map[string]config.UpstreamConfig{
		"no base url": {BotID: "b", PATToken: "t"},
		"no bot id":   {BaseURL: "https://x", PATToken: "t"},
		"no token":    {BaseURL: "https://x", BotID: "b"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := BuildCallSpec(cfg, req)
			assert.ErrorIs(t, err, ErrMissingConfig)
		})
	}
}
