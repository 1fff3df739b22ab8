package repository

import (
	"context"
	"fmt"

	"PortDelta/internal/domain/models"
	drepo "PortDelta/internal/domain/repository"
	pkgkafka "PortDelta/pkg/kafka"
)

type producer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaPublisher publishes valuation messages keyed by reference date, so
// one trading day's rounds stay ordered on a partition.
type KafkaPublisher struct {
	producer producer
	topic    string
}

var _ drepo.Publisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(p *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: p, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, r *models.ValuationResult) error {
	if r == nil {
		return nil
	}
	key := []byte(r.ReferenceDate.String())
	if err := p.producer.Publish(ctx, p.topic, key, r.Message(true)); err != nil {
		return fmt.Errorf("publish valuation: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
