package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Action describes what the proxy did with a request.
type Action string

const (
	ActionForwarded  Action = "Forwarding to Coze/API."
	ActionTerminated Action = "Request terminated."
)

// DecisionRecord is written once per valid request, whatever the outcome.
type DecisionRecord struct {
	ID             string    `json:"id"`
	Time           time.Time `json:"time"`
	CorrelationID  string    `json:"correlation_id,omitempty"`
	ClientIP       string    `json:"client_ip"`
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Blocked        bool      `json:"blocked"`
	Reason         string    `json:"reason,omitempty"`
	Outcome        string    `json:"outcome"`
	Message        string    `json:"message"`
	Action         Action    `json:"action"`
}

// Status renders the decision as ALLOWED or BLOCKED (reason).
func (r *DecisionRecord) Status() string {
	if r.Blocked {
		return "BLOCKED (" + r.Reason + ")"
	}
	return "ALLOWED"
}

// MaxLoggedInput is the byte limit for message text in decision records.
const MaxLoggedInput = 500

// TruncateInput shortens s to at most MaxLoggedInput bytes without splitting
// a UTF-8 sequence, and replaces CR and LF with spaces.
func TruncateInput(s string) string {
	if len(s) > MaxLoggedInput {
		cut := MaxLoggedInput
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
