package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/Skotchmaster/academy/internal/principal"
)

const publishTimeout = 5 * time.Second

const (
	TypeUserRegistered         = "user_registered"
	TypePasswordResetRequested = "password_reset_requested"
	TypeLogin                  = "login"
	TypeWorkerCreated          = "worker_created"
	TypeUserDeleted            = "user_deleted"
)

// Event is an account lifecycle notification. Data carries type specific
// values such as the verification code a mailer needs.
type Event struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	OccurredAt    time.Time         `json:"occurred_at"`
	PrincipalKind principal.Kind    `json:"principal_kind"`
	PrincipalID   uint              `json:"principal_id"`
	Username      string            `json:"username"`
	Email         string            `json:"email"`
	Data          map[string]string `json:"data,omitempty"`
}

func NewEvent(typ string, p principal.Principal, data map[string]string, now time.Time) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          typ,
		OccurredAt:    now.UTC(),
		PrincipalKind: p.Kind,
		PrincipalID:   p.ID,
		Username:      p.Username,
		Email:         p.Email,
		Data:          data,
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON, keyed by username so that all events
// of one account land on the same partition.
type KafkaPublisher struct {
	w     messageWriter
	topic string
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{w: w, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("kafka: marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(ev.Username),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: publish %s to %s: %w", ev.Type, p.topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// Nop drops every event. Used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// New returns a Kafka publisher, or Nop when brokers is empty.
func New(brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		return Nop{}
	}
	return NewKafkaPublisher(brokers, topic)
}
