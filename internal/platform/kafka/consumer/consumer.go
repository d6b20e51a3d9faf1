// Package consumer runs a poll loop over a franz-go group client and hands
// each record to a Handler as a transport-neutral Message.
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is one consumed record.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Header returns the value of header key, or "".
func (m *Message) Header(key string) string {
	return m.Headers[key]
}

// Handler processes one message. Returning an error is logged; the record is
// still committed, so handlers that want a skip should log and return nil.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// Client is the subset of *kgo.Client the loop needs.
type Client interface {
	PollFetches(ctx context.Context) kgo.Fetches
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
}

// Consumer polls records and commits them after the handler returns, which
// gives at-least-once delivery: a crash between handle and commit redelivers.
type Consumer struct {
	client  Client
	handler Handler
	logger  *slog.Logger
}

// New creates a consumer loop.
func New(client Client, handler Handler, logger *slog.Logger) *Consumer {
	return &Consumer{
		client:  client,
		handler: handler,
		logger:  logger,
	}
}

// Run polls until ctx is cancelled or the client is closed. Shutdown is not
// an error.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.ErrorContext(ctx, "kafka fetch failed",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		var handled []*kgo.Record
		fetches.EachRecord(func(rec *kgo.Record) {
			msg := toMessage(rec)
			if err := c.handler.Handle(ctx, msg); err != nil {
				c.logger.ErrorContext(ctx, "failed to handle kafka message",
					"topic", msg.Topic,
					"partition", msg.Partition,
					"offset", msg.Offset,
					"error", err,
				)
			}
			handled = append(handled, rec)
		})

		if len(handled) == 0 {
			continue
		}
		if err := c.client.CommitRecords(ctx, handled...); err != nil {
			c.logger.ErrorContext(ctx, "failed to commit kafka offsets",
				"records", len(handled),
				"error", err,
			)
		}
	}
}

func toMessage(rec *kgo.Record) *Message {
	headers := make(map[string]string, len(rec.Headers))
	for _, h := range rec.Headers {
		headers[h.Key] = string(h.Value)
	}
	return &Message{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Key:       rec.Key,
		Value:     rec.Value,
		Headers:   headers,
		Timestamp: rec.Timestamp,
	}
}
