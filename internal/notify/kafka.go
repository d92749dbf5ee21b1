package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"
)

// KafkaSender writes payloads to a Kafka topic keyed by booking id.
type KafkaSender struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaProducer creates a synchronous producer that waits for all
// in-sync replicas.
func NewKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	return producer, nil
}

// NewKafkaSender constructs a KafkaSender on an existing producer.
func NewKafkaSender(producer sarama.SyncProducer, topic string) *KafkaSender {
	return &KafkaSender{producer: producer, topic: topic}
}

// Send produces p to the topic. SyncProducer has no context support, so
// ctx is only checked before sending.
func (s *KafkaSender) Send(ctx context.Context, p Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     s.topic,
		Key:       sarama.StringEncoder(p.BookingID),
		Value:     sarama.ByteEncoder(data),
		Timestamp: time.Now(),
		Headers: []sarama.RecordHeader{
			{Key: []byte("source"), Value: []byte("slot-booking")},
		},
	}

	partition, offset, err := s.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	log.Debug().
		Str("topic", s.topic).
		Int32("partition", partition).
		Int64("offset", offset).
		Str("booking_id", p.BookingID).
		Msg("published booking notification")
	return nil
}

// Close closes the producer.
func (s *KafkaSender) Close() error {
	return s.producer.Close()
}
