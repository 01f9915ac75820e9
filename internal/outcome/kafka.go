package outcome

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaPublisher drains a stream subscription into a Kafka topic so
// external alerting can consume detections without touching the core.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
		logger: logger,
	}
}

// Run consumes the subscription until the context ends. Publish
// failures are logged and dropped; observability must never back up
// into the punishment path.
func (p *KafkaPublisher) Run(ctx context.Context, outcomes <-chan Outcome) {
	for {
		select {
		case <-ctx.Done():
			return
		case o, ok := <-outcomes:
			if !ok {
				return
			}
			payload, err := json.Marshal(o)
			if err != nil {
				p.logger.Error("marshal outcome", zap.Error(err))
				continue
			}
			msg := kafka.Message{
				Key:   []byte(strconv.FormatUint(o.TenantID, 10)),
				Value: payload,
			}
			if err := p.writer.WriteMessages(ctx, msg); err != nil {
				p.logger.Warn("publish outcome", zap.String("id", o.ID), zap.Error(err))
			}
		}
	}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
