package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type publisherStub struct {
	subject string
	data    []byte
	err     error
}

func (p *publisherStub) Publish(subject string, data []byte) error {
	p.subject = subject
	p.data = data
	return p.err
}

func TestNATSNotifierPublishesJSON(t *testing.T) {
	stub := &publisherStub{}
	n := NewNATSNotifier(stub, "")
	decidedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	err := n.Notify(context.Background(), Message{StudentID: "stu-1", SubmissionID: "sub-1", Decision: "approved", Feedback: "Nice work", DecidedAt: decidedAt})
	require.NoError(t, err)
	assert.Equal(t, "achievements.decisions", stub.subject)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(stub.data, &decoded))
	assert.Equal(t, "stu-1", decoded["student_id"])
	assert.Equal(t, "approved", decoded["decision"])
	assert.Equal(t, "2026-03-01T09:00:00Z", decoded["decided_at"])
}

func TestNATSNotifierWrapsPublishError(t *testing.T) {
	n := NewNATSNotifier(&publisherStub{err: errors.New("no responders")}, "subject")
	err := n.Notify(context.Background(), Message{SubmissionID: "sub-1"})
	assert.ErrorContains(t, err, "no responders")
}

func TestLogNotifierLogs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewLogNotifier(zap.New(core))
	require.NoError(t, n.Notify(context.Background(), Message{SubmissionID: "sub-9", Decision: "rejected"}))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "sub-9", logs.All()[0].ContextMap()["submission_id"])
}
