// Package notify publishes user-facing notification events. Delivery to
// devices happens downstream of the topic and is not handled here.
package notify

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	skafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Type identifies the event that triggered a notification.
type Type string

const (
	TaskAssigned        Type = "TASK_ASSIGNED"
	TaskSubmitted       Type = "TASK_SUBMITTED"
	TaskApproved        Type = "TASK_APPROVED"
	TaskRejected        Type = "TASK_REJECTED"
	MembershipRequested Type = "MEMBERSHIP_REQUESTED"
	MembershipApproved  Type = "MEMBERSHIP_APPROVED"
	MembershipRejected  Type = "MEMBERSHIP_REJECTED"
	RewardSent          Type = "REWARD_SENT"
)

// Notification is one message addressed to one user.
type Notification struct {
	UserID    uint64                 `json:"user_id"`
	Type      Type                   `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Notifier accepts notifications for asynchronous delivery.
type Notifier interface {
	Enqueue(ctx context.Context, n Notification) error
}

// Writer is the subset of the kafka-go writer the notifier needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// KafkaNotifier publishes notifications as JSON messages keyed by user id,
// so one user's notifications stay ordered within a partition.
type KafkaNotifier struct {
	writer Writer
}

// NewKafkaNotifier creates a notifier writing to topic on brokers.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	w := &skafka.Writer{
		Addr:                   skafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &skafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return NewKafkaNotifierWithWriter(w)
}

// NewKafkaNotifierWithWriter creates a notifier on an existing writer.
func NewKafkaNotifierWithWriter(w Writer) *KafkaNotifier {
	return &KafkaNotifier{writer: w}
}

// Enqueue marshals the notification and writes it to the topic.
func (k *KafkaNotifier) Enqueue(ctx context.Context, n Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, skafka.Message{
		Key:   []byte(strconv.FormatUint(n.UserID, 10)),
		Value: b,
	})
}

// Close closes the underlying writer.
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}

// LogNotifier writes notifications to the log. Used when no broker is configured.
type LogNotifier struct {
	log logrus.FieldLogger
}

func NewLogNotifier(log logrus.FieldLogger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (l *LogNotifier) Enqueue(_ context.Context, n Notification) error {
	l.log.WithFields(logrus.Fields{
		"user_id": n.UserID,
		"type":    n.Type,
	}).Info(n.Title)
	return nil
}

// Send enqueues n and only logs a failure. Notification problems must never
// fail the state change that triggered them.
func Send(ctx context.Context, notifier Notifier, log logrus.FieldLogger, n Notification) {
	if notifier == nil {
		return
	}
	if err := notifier.Enqueue(ctx, n); err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"user_id": n.UserID,
			"type":    n.Type,
		}).Warn("notification enqueue failed")
	}
}
