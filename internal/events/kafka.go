package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/akylbek/payment-system/booking-verification/internal/models"
)

// publishBatchTimeout caps how long WriteMessages waits to fill a batch. The
// writer runs while the booking lock is held, and the kafka-go default is 1s.
const publishBatchTimeout = 10 * time.Millisecond

// KafkaPublisher writes booking state changes keyed by booking id, so every
// change of one booking lands on the same partition in order.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: publishBatchTimeout,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event models.StateChangeEvent) error {
	msg, err := kafkaMessage(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func kafkaMessage(event models.StateChangeEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(event.BookingID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(event.Event)},
		},
	}, nil
}
