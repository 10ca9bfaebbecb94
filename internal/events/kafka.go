package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON, keyed by trip id so per-trip
// ordering holds within a partition
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaProducer creates a writer for topic on brokers
func NewKafkaProducer(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

// NewKafkaPublisher publishes through a writer for topic on brokers
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: NewKafkaProducer(brokers, topic)}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.TripID),
		Value: value,
		Time:  evt.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(evt.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write %s event: %w", evt.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
