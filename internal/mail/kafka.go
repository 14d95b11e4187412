package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/sakif/contacts-api/internal/metrics"
)

// Event is the payload published for the mail worker.
type Event struct {
	Template string            `json:"template"`
	To       string            `json:"to"`
	Subject  string            `json:"subject"`
	HTML     string            `json:"html"`
	Vars     map[string]string `json:"vars"`
	SentAt   time.Time         `json:"sent_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaMailer publishes rendered messages to a topic, keyed by recipient so
// one recipient's mail stays ordered within a partition.
type KafkaMailer struct {
	writer messageWriter
	logger *slog.Logger
}

func NewKafkaMailer(brokers []string, topic string, logger *slog.Logger) *KafkaMailer {
	return &KafkaMailer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			WriteTimeout:           10 * time.Second,
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}
}

func (m *KafkaMailer) Send(ctx context.Context, msg Message) error {
	subject, body, err := Render(msg)
	if err != nil {
		return err
	}

	value, err := json.Marshal(Event{
		Template: msg.Template,
		To:       msg.To,
		Subject:  subject,
		HTML:     body,
		Vars:     msg.Vars,
		SentAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("mail/kafka: encoding event: %w", err)
	}

	err = m.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.To),
		Value: value,
	})
	if err != nil {
		metrics.MailSent.WithLabelValues("kafka", "error").Inc()
		return fmt.Errorf("mail/kafka: publishing %s for %s: %w", msg.Template, msg.To, err)
	}

	metrics.MailSent.WithLabelValues("kafka", "ok").Inc()
	m.logger.InfoContext(ctx, "mail event published",
		slog.String("template", msg.Template),
		slog.String("to", msg.To),
	)
	return nil
}

func (m *KafkaMailer) Close() error {
	return m.writer.Close()
}
