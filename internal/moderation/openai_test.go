package moderation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenAIServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/moderations"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestOpenAIChecker_Flagged(t *testing.T) {
	srv := newOpenAIServer(t, http.StatusOK, `{
		"id": "modr-1",
		"model": "text-moderation-latest",
		"results": [{
			"flagged": true,
			"categories": {"violence": true, "hate": true},
			"category_scores": {"violence": 0.98, "hate": 0.91}
		}]
	}`)

	verdict, err := NewOpenAIChecker("sk-test", srv.URL+"/v1", nil).Check(context.Background(), "text")
	require.NoError(t, err)

	assert.True(t, verdict.Blocked)
	assert.Equal(t, "Flagged: hate, violence", verdict.Reason)
}

func TestFlaggedCategories(t *testing.T) {
	tests := []struct {
		name string
		cats openai.ResultCategories
		want string
	}{
		{"harassment only", openai.ResultCategories{Harassment: true}, "harassment"},
		{"harassment threatening", openai.ResultCategories{HarassmentThreatening: true}, "harassment/threatening"},
		{"self-harm variants", openai.ResultCategories{SelfHarmIntent: true, SelfHarmInstructions: true}, "self-harm/intent, self-harm/instructions"},
		{"none set", openai.ResultCategories{}, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, flaggedCategories(tt.cats))
		})
	}
}

func TestOpenAIChecker_NotFlagged(t *testing.T) {
	srv := newOpenAIServer(t, http.StatusOK, `{
		"id": "modr-2",
		"model": "text-moderation-latest",
		"results": [{"flagged": false, "categories": {}, "category_scores": {}}]
	}`)

	verdict, err := NewOpenAIChecker("sk-test", srv.URL+"/v1", nil).Check(context.Background(), "text")
	require.NoError(t, err)
	assert.False(t, verdict.Blocked)
}

func TestOpenAIChecker_Errors(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		srv := newOpenAIServer(t, http.StatusUnauthorized, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)

		_, err := NewOpenAIChecker("sk-test", srv.URL+"/v1", nil).Check(context.Background(), "text")
		assert.Error(t, err)
	})

	t.Run("no results", func(t *testing.T) {
		srv := newOpenAIServer(t, http.StatusOK, `{"id":"modr-3","model":"m","results":[]}`)

		_, err := NewOpenAIChecker("sk-test", srv.URL+"/v1", nil).Check(context.Background(), "text")
		assert.Error(t, err)
	})
}
