package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chat-proxy/internal/model"
)

type published struct {
	subject string
	payload []byte
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) PublishAsync(subject string, payload []byte, _ ...jetstream.PublishOpt) (jetstream.PubAckFuture, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.msgs = append(f.msgs, published{subject: subject, payload: payload})
	return nil, nil
}

func TestDecisionSubject(t *testing.T) {
	assert.Equal(t, "chat.decision.allowed", DecisionSubject(&model.DecisionRecord{}))
	assert.Equal(t, "chat.decision.blocked", DecisionSubject(&model.DecisionRecord{Blocked: true}))
}

func TestStreamManager_Record(t *testing.T) {
	pub := &fakePublisher{}
	m := NewStreamManager(pub)

	rec := &model.DecisionRecord{
		ID:      "abc",
		UserID:  "u1",
		Blocked: true,
		Reason:  "Matched: bad",
		Message: "bad words",
		Action:  model.ActionTerminated,
	}
	require.NoError(t, m.Record(context.Background(), rec))
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "chat.decision.blocked", pub.msgs[0].subject)

	var got model.DecisionRecord
	require.NoError(t, json.Unmarshal(pub.msgs[0].payload, &got))
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "Matched: bad", got.Reason)
	assert.Equal(t, "nats", m.Name())
}

func TestStreamManager_RecordPublishError(t *testing.T) {
	m := NewStreamManager(&fakePublisher{err: errors.New("no responders")})

	err := m.Record(context.Background(), &model.DecisionRecord{ID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no responders")
}
