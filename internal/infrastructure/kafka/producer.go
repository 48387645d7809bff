package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// HeaderEventType carries the event's "type" field so consumers can route
// without decoding the body.
const HeaderEventType = "event-type"

type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger
	now    func() time.Time
}

// NewProducer writes JSON events to topic, keyed by session id so one
// session's events stay ordered within a partition.
func NewProducer(brokers []string, topic string, logger *zap.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{writer: writer, logger: logger.Named("kafka.producer"), now: time.Now}
}

func (p *Producer) Publish(ctx context.Context, key string, event any) error {
	msg, err := newMessage(key, event, p.now())
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write %s: %w", eventType(msg), err)
	}
	p.logger.Debug("event published", zap.String("key", key), zap.String("type", eventType(msg)))
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func newMessage(key string, event any, now time.Time) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka: encode event: %w", err)
	}
	var envelope struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(data, &envelope)

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  now,
	}
	if envelope.Type != "" {
		msg.Headers = []kafka.Header{{Key: HeaderEventType, Value: []byte(envelope.Type)}}
	}
	return msg, nil
}

func eventType(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == HeaderEventType {
			return string(h.Value)
		}
	}
	return ""
}
