package notification

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher emits notifications onto a topic keyed by recipient so a
// consumer sees one user's notifications in order.
type KafkaPublisher struct {
	client *kgo.Client
	logger *slog.Logger
}

// NewKafkaPublisher connects to the brokers and makes sure the topic
// exists. Topic creation failing because it already exists is fine.
func NewKafkaPublisher(ctx context.Context, brokers []string, topic string, logger *slog.Logger) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RecordRetries(3),
	)
	if err != nil {
		return nil, err
	}

	admCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	adm := kadm.NewClient(client)
	if _, err := adm.CreateTopic(admCtx, 3, 1, nil, topic); err != nil {
		logger.WarnContext(ctx, "topic create skipped", "topic", topic, "error", err)
	}

	return &KafkaPublisher{client: client, logger: logger}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, n *Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to encode notification", "error", err)
		return
	}
	record := &kgo.Record{
		Key:   []byte(n.RecipientID),
		Value: payload,
	}
	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.ErrorContext(ctx, "failed to publish notification",
				"error", err,
				"type", string(n.Type),
				"recipient_id", n.RecipientID,
			)
		}
	})
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}
