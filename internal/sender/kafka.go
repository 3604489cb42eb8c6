package sender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"github.com/ylmrx/monyt/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	key    []byte
}

func NewKafkaPublisher(brokers []string, topic string, nodeID string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 5 * time.Second,
		},
		key: []byte(nodeID),
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events []models.FailoverEvent) (int, error) {
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		value, err := json.Marshal(ev)
		if err != nil {
			return 0, fmt.Errorf("failed to encode event %s: %w", ev.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   p.key,
			Value: value,
			Time:  ev.Timestamp,
		})
	}
	err := p.writer.WriteMessages(ctx, msgs...)
	if err == nil {
		return len(events), nil
	}
	// a batch failure reports which messages made it; count the delivered prefix
	var writeErrs kafka.WriteErrors
	if errors.As(err, &writeErrs) {
		done := 0
		for _, e := range writeErrs {
			if e != nil {
				break
			}
			done++
		}
		return done, fmt.Errorf("failed to write %d events: %w", writeErrs.Count(), err)
	}
	return 0, fmt.Errorf("failed to write events: %w", err)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
