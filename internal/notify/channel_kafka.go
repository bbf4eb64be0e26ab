package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaChannel delivers events to a Kafka topic. Records are keyed by
// TargetID so consumers observe per-target order, matching the ledger's
// linearization of transactions per card.
type KafkaChannel struct {
	client *kgo.Client
	topic  string
}

// NewKafkaChannel connects to the brokers and ensures the topic exists.
func NewKafkaChannel(ctx context.Context, brokers []string, topic string) (*KafkaChannel, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopic(ctx, 3, 1, nil, topic)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		client.Close()
		return nil, fmt.Errorf("create topic %s: %w", topic, resp.Err)
	}

	return &KafkaChannel{client: client, topic: topic}, nil
}

// Name identifies the channel in metrics and logs.
func (c *KafkaChannel) Name() string { return "kafka" }

// Deliver produces the event synchronously. franz-go retries transient broker
// errors internally before surfacing one here.
func (c *KafkaChannel) Deliver(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	record := &kgo.Record{
		Topic: c.topic,
		Key:   []byte(event.TargetID),
		Value: value,
	}
	if err := c.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce event: %w", err)
	}
	return nil
}

// Close flushes buffered records and releases the client.
func (c *KafkaChannel) Close() {
	c.client.Close()
}
