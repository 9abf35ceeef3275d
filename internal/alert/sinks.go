package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

// Sink is a streaming destination that receives every dispatched event.
type Sink interface {
	Name() string
	Publish(ctx context.Context, event Event) error
	Close() error
}

// RedisSink publishes events as JSON on a pub/sub channel.
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedisSink connects to Redis and verifies the connection.
func NewRedisSink(ctx context.Context, cfg RedisConfig) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	channel := cfg.Channel
	if channel == "" {
		channel = "governor:decisions"
	}
	return &RedisSink{client: client, channel: channel}, nil
}

func (r *RedisSink) Name() string { return "redis" }

// Publish implements Sink.
func (r *RedisSink) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return r.client.Publish(ctx, r.channel, data).Err()
}

func (r *RedisSink) Close() error { return r.client.Close() }

// KafkaSink writes events to a topic, keyed by proposal id.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink creates a writer for the configured topic. Connections are
// established lazily on first write.
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = "governor.decisions"
	}
	return &KafkaSink{writer: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}}, nil
}

func (k *KafkaSink) Name() string { return "kafka" }

// Publish implements Sink.
func (k *KafkaSink) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ProposalID),
		Value: data,
	})
}

func (k *KafkaSink) Close() error { return k.writer.Close() }
