// Package model defines data structures for the chat proxy.
package model

import (
	"encoding/json"
	"errors"
	"io"
)

// DefaultUserID is used when the client does not identify itself.
const DefaultUserID = "guest_user"

// ErrInvalidInput is returned for bodies that are not a chat request.
var ErrInvalidInput = errors.New("invalid input")

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentTypeText is the only content type the proxy sends or synthesizes.
const ContentTypeText = "text"

// ChatRequest is the inbound chat message. It is immutable once parsed.
type ChatRequest struct {
	Message        string
	UserID         string
	ConversationID string
}

// HasConversation reports whether the request continues an existing conversation.
func (r *ChatRequest) HasConversation() bool {
	return r.ConversationID != ""
}

type chatRequestBody struct {
	Message        *string `json:"message"`
	UserID         *string `json:"user_id"`
	ConversationID *string `json:"conversation_id"`
}

// DecodeChatRequest parses a chat request from r. A body that is not a JSON
// object, or has no string "message" field, yields ErrInvalidInput.
func DecodeChatRequest(r io.Reader) (*ChatRequest, error) {
	var body chatRequestBody
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return nil, errors.Join(ErrInvalidInput, err)
	}

	if body.Message == nil {
		return nil, ErrInvalidInput
	}

	req := &ChatRequest{
		Message: *body.Message,
		UserID:  DefaultUserID,
	}
	if body.UserID != nil {
		req.UserID = *body.UserID
	}
	if body.ConversationID != nil {
		req.ConversationID = *body.ConversationID
	}

	return req, nil
}

// AdditionalMessage is a message appended to the upstream conversation.
type AdditionalMessage struct {
	Role        Role   `json:"role"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
}

// ChatPayload is the body sent to the upstream chat API.
type ChatPayload struct {
	BotID              string              `json:"bot_id"`
	UserID             string              `json:"user_id"`
	Stream             bool                `json:"stream"`
	AutoSaveHistory    bool                `json:"auto_save_history"`
	AdditionalMessages []AdditionalMessage `json:"additional_messages"`
}
