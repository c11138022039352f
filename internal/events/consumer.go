package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fathima-sithara/school-chat/internal/apperr"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// FanoutHandler turns school events into notifications.
type FanoutHandler interface {
	Announcement(ctx context.Context, ev AnnouncementEvent) error
	AssignmentCreated(ctx context.Context, ev AssignmentEvent) error
	Graded(ctx context.Context, ev GradeEvent) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads the school events topic. A record that still fails after the retry
// budget is copied to the dead-letter topic and committed. While neither the handler
// nor the dead-letter topic accepts a record, the partition stalls on it.
type Consumer struct {
	reader     messageReader
	dlq        messageWriter
	handler    FanoutHandler
	maxElapsed time.Duration
	initial    time.Duration
	stall      time.Duration
	log        *zap.SugaredLogger
}

func NewConsumer(brokers []string, topic, groupID, dlqTopic string, h FanoutHandler, maxElapsed time.Duration, log *zap.SugaredLogger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        dlqTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
	}
	return &Consumer{reader: r, dlq: w, handler: h, maxElapsed: maxElapsed, stall: 5 * time.Second, log: log}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warnw("kafka fetch failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if !c.settle(ctx, m) {
			return
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.log.Warnw("kafka commit failed", "offset", m.Offset, "error", err)
		}
	}
}

// settle processes m until it is handled or dead-lettered. Committing a later offset
// would skip m for good, so it reports false only when ctx ends first.
func (c *Consumer) settle(ctx context.Context, m kafka.Message) bool {
	for {
		err := c.process(ctx, m)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		c.log.Errorw("event not settled, partition stalled", "partition", m.Partition, "offset", m.Offset, "error", err)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.stall):
		}
	}
}

func (c *Consumer) process(ctx context.Context, m kafka.Message) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.maxElapsed
	if c.initial > 0 {
		b.InitialInterval = c.initial
	}

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := c.dispatch(ctx, m.Value)
		if err != nil {
			c.log.Warnw("event handling failed", "attempt", attempt, "error", err)
		}
		return err
	}, backoff.WithContext(b, ctx))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	c.log.Errorw("pushing event to DLQ", "attempts", attempt, "error", err)
	dlqErr := c.dlq.WriteMessages(ctx, kafka.Message{
		Key:     m.Key,
		Value:   m.Value,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "error", Value: []byte(err.Error())}},
	})
	if dlqErr != nil {
		return fmt.Errorf("dlq push failed: %w", dlqErr)
	}
	return nil
}

func (c *Consumer) dispatch(ctx context.Context, raw []byte) error {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return backoff.Permanent(fmt.Errorf("invalid event: %w", err))
	}
	var err error
	switch ev.Type {
	case TypeAnnouncementCreated:
		var p AnnouncementEvent
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return backoff.Permanent(err)
		}
		err = c.handler.Announcement(ctx, p)
	case TypeAssignmentCreated:
		var p AssignmentEvent
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return backoff.Permanent(err)
		}
		err = c.handler.AssignmentCreated(ctx, p)
	case TypeAssignmentGraded:
		var p GradeEvent
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return backoff.Permanent(err)
		}
		err = c.handler.Graded(ctx, p)
	default:
		c.log.Debugw("ignoring event", "type", ev.Type)
		return nil
	}
	// a malformed event will not get better by retrying
	if errors.Is(err, apperr.ErrValidation) {
		return backoff.Permanent(err)
	}
	return err
}

func (c *Consumer) Close() error {
	err := c.reader.Close()
	if werr := c.dlq.Close(); err == nil {
		err = werr
	}
	return err
}
