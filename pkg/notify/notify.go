package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Message is the decision notification delivered to the student-facing collaborators.
type Message struct {
	StudentID    string    `json:"student_id"`
	SubmissionID string    `json:"submission_id"`
	Decision     string    `json:"decision"`
	Feedback     string    `json:"feedback"`
	DecidedAt    time.Time `json:"decided_at"`
}

// Notifier delivers decision notifications.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Publisher is the subset of *nats.Conn used for delivery.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes JSON messages on a NATS subject.
type NATSNotifier struct {
	conn    Publisher
	subject string
}

// NewNATSNotifier binds a publisher to a subject.
func NewNATSNotifier(conn Publisher, subject string) *NATSNotifier {
	if subject == "" {
		subject = "achievements.decisions"
	}
	return &NATSNotifier{conn: conn, subject: subject}
}

// Notify encodes and publishes the message.
func (n *NATSNotifier) Notify(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := n.conn.Publish(n.subject, payload); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// LogNotifier writes notifications to the log when no broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a log-only notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the message.
func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.logger.Info("decision notification",
		zap.String("student_id", msg.StudentID),
		zap.String("submission_id", msg.SubmissionID),
		zap.String("decision", msg.Decision),
		zap.Time("decided_at", msg.DecidedAt),
	)
	return nil
}

// Connect dials NATS with reconnect handlers that log through zap.
func Connect(url string, logger *zap.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := nats.Connect(url,
		nats.Name("achievement-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return conn, nil
}
