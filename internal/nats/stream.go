package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/chat-proxy/internal/model"
)

const (
	// StreamName is the name of the decisions stream.
	StreamName = "CHAT_DECISIONS"

	// SubjectPrefix is the prefix for all decision subjects.
	SubjectPrefix = "chat.decision"

	sinkName = "nats"
)

// Publisher is the part of JetStream the decision stream uses.
type Publisher interface {
	PublishAsync(subject string, payload []byte, opts ...jetstream.PublishOpt) (jetstream.PubAckFuture, error)
}

// StreamManager handles the decisions stream.
type StreamManager struct {
	js Publisher
}

// NewStreamManager creates a stream manager publishing through js.
func NewStreamManager(js Publisher) *StreamManager {
	return &StreamManager{js: js}
}

// EnsureStream creates the decisions stream if it does not exist.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	// Check if stream exists
	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Chat moderation decisions",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// DecisionSubject returns the subject for a decision record.
func DecisionSubject(rec *model.DecisionRecord) string {
	if rec.Blocked {
		return SubjectPrefix + ".blocked"
	}
	return SubjectPrefix + ".allowed"
}

// Name returns the sink name.
func (m *StreamManager) Name() string {
	return sinkName
}

// Record publishes rec without waiting for the ack, so a slow or absent
// server never delays the chat response.
func (m *StreamManager) Record(_ context.Context, rec *model.DecisionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal decision: %w", err)
	}

	if _, err := m.js.PublishAsync(DecisionSubject(rec), data, jetstream.WithMsgID(rec.ID)); err != nil {
		return fmt.Errorf("failed to publish decision: %w", err)
	}

	return nil
}
