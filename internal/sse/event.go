// Package sse writes Server-Sent Events in the framing the chat widget parses:
// an "event:" line, a "data:" line with a JSON payload, then a blank line.
package sse

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/capitalize-ai/chat-proxy/internal/model"
)

// Event names.
const (
	EventMessageDelta = "conversation.message.delta"
	EventDone         = "done"
	EventError        = "error"
)

// RefusalMessage is shown as the assistant's answer when moderation blocks a message.
const RefusalMessage = "很抱歉，您的输入包含潜在的敏感或违规内容，系统已拦截。请调整措辞后重试。"

// InvalidInputDetail is the error detail sent for malformed requests.
const InvalidInputDetail = "Invalid input"

// Event is a single SSE event. Terminal events end the stream.
type Event struct {
	Name     string
	Data     any
	Terminal bool
}

// MessageDelta is the payload of a conversation.message.delta event.
type MessageDelta struct {
	ConversationID string     `json:"conversation_id"`
	Role           model.Role `json:"role"`
	Content        string     `json:"content"`
	ContentType    string     `json:"content_type"`
	Type           string     `json:"type"`
}

// Notice is the payload of done and error events.
type Notice struct {
	Event string `json:"event"`
	Data  string `json:"data,omitempty"`
}

// BlockNotice renders the refusal as a regular assistant answer.
func BlockNotice(conversationID string) Event {
	return Event{
		Name: EventMessageDelta,
		Data: MessageDelta{
			ConversationID: conversationID,
			Role:           model.RoleAssistant,
			Content:        RefusalMessage,
			ContentType:    model.ContentTypeText,
			Type:           "answer",
		},
	}
}

// Done terminates a stream.
func Done() Event {
	return Event{
		Name:     EventDone,
		Data:     Notice{Event: EventDone},
		Terminal: true,
	}
}

// ErrorNotice terminates a stream with a failure detail.
func ErrorNotice(detail string) Event {
	return Event{
		Name:     EventError,
		Data:     Notice{Event: EventError, Data: detail},
		Terminal: true,
	}
}

// Encode serializes an event block.
func Encode(name string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", name, err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "event: %s\n", name)
	fmt.Fprintf(&buf, "data: %s\n\n", payload)
	return buf.Bytes(), nil
}
