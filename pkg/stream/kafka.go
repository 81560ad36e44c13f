// Package stream forwards committed ledger events to external consumers.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/uhyunpark/swappin/pkg/app/core/event"
)

// Publisher delivers a batch of events committed together
type Publisher interface {
	Publish(ctx context.Context, events []event.Event) error
	Close() error
}

// KafkaPublisher writes one message per event, keyed by token address so
// a token's events stay ordered within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events []event.Event) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		value, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal %s event: %w", ev.Kind, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.Token.Hex()),
			Value: value,
			Headers: []kafka.Header{
				{Key: "kind", Value: []byte(ev.Kind)},
				{Key: "height", Value: []byte(strconv.FormatUint(ev.Height, 10))},
			},
		})
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Forwarder decouples the commit path from the publisher. Commits enqueue without
// blocking; when the buffer is full the batch is dropped and logged.
type Forwarder struct {
	pub    Publisher
	queue  chan []event.Event
	logger *zap.SugaredLogger
}

func NewForwarder(pub Publisher, buffer int, logger *zap.SugaredLogger) *Forwarder {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Forwarder{
		pub:    pub,
		queue:  make(chan []event.Event, buffer),
		logger: logger,
	}
}

// Enqueue hands a committed batch to the forwarder
func (f *Forwarder) Enqueue(events []event.Event) {
	if len(events) == 0 {
		return
	}
	select {
	case f.queue <- events:
	default:
		f.logger.Warnw("stream_queue_full", "dropped", len(events), "height", events[0].Height)
	}
}

// Run publishes queued batches until ctx is done, then drains what is left
func (f *Forwarder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			f.drain()
			return
		case batch := <-f.queue:
			f.publish(ctx, batch)
		}
	}
}

func (f *Forwarder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case batch := <-f.queue:
			f.publish(ctx, batch)
		default:
			return
		}
	}
}

func (f *Forwarder) publish(ctx context.Context, batch []event.Event) {
	if err := f.pub.Publish(ctx, batch); err != nil {
		f.logger.Errorw("stream_publish_failed", "err", err, "events", len(batch), "height", batch[0].Height)
	}
}
