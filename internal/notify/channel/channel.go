// Package channel holds the notify.Sender implementations: a structured log
// line for development, a Redis pub/sub channel and a Kafka topic.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"

	"eda/internal/notify"
)

// LogSender writes each notification as a log record.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, req notify.NotificationRequest) error {
	if req.ChannelRef == "" {
		return notify.ErrMissingChannel
	}
	s.logger.InfoContext(ctx, "notification",
		"channel", req.ChannelRef,
		"subject", req.Subject,
		"message", req.Message,
	)
	return nil
}

// RedisPublisher is the subset of a go-redis client RedisSender needs.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisSender publishes the JSON request on the pub/sub channel named by
// ChannelRef. Zero subscribers is not an error.
type RedisSender struct {
	client RedisPublisher
}

func NewRedisSender(client RedisPublisher) *RedisSender {
	return &RedisSender{client: client}
}

func (s *RedisSender) Send(ctx context.Context, req notify.NotificationRequest) error {
	if req.ChannelRef == "" {
		return notify.ErrMissingChannel
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := s.client.Publish(ctx, req.ChannelRef, payload).Err(); err != nil {
		return fmt.Errorf("redis publish to %s: %w", req.ChannelRef, err)
	}
	return nil
}

// Producer is the subset of *kgo.Client KafkaSender needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaSender produces the JSON request to the topic named by ChannelRef.
type KafkaSender struct {
	producer Producer
}

func NewKafkaSender(producer Producer) *KafkaSender {
	return &KafkaSender{producer: producer}
}

func (s *KafkaSender) Send(ctx context.Context, req notify.NotificationRequest) error {
	if req.ChannelRef == "" {
		return notify.ErrMissingChannel
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	record := &kgo.Record{
		Topic:   req.ChannelRef,
		Value:   payload,
		Headers: []kgo.RecordHeader{{Key: "subject", Value: []byte(req.Subject)}},
	}
	if err := s.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("kafka produce to %s: %w", req.ChannelRef, err)
	}
	return nil
}
