package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes domain events to Kafka behind a circuit breaker, so a broker
// outage fails publishes fast instead of stalling chat requests.
type Producer struct {
	writer messageWriter
	cb     *gobreaker.CircuitBreaker
	topic  string
	log    *zap.SugaredLogger
}

type BreakerConfig struct {
	MaxFailures uint32
	Timeout     time.Duration
}

func NewProducer(brokers []string, topic string, bc BreakerConfig, log *zap.SugaredLogger) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	return newProducer(w, topic, bc, log)
}

func newProducer(w messageWriter, topic string, bc BreakerConfig, log *zap.SugaredLogger) *Producer {
	if bc.MaxFailures == 0 {
		bc.MaxFailures = 5
	}
	st := gobreaker.Settings{
		Name:        "kafka:" + topic,
		MaxRequests: 1,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bc.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Infow("circuit breaker state", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &Producer{writer: w, cb: gobreaker.NewCircuitBreaker(st), topic: topic, log: log}
}

// Publish wraps payload in an Event and writes it keyed by key (a chat or user id, so
// one conversation stays on one partition).
func (p *Producer) Publish(ctx context.Context, key, typ string, payload any) error {
	ev, err := NewEvent(typ, payload)
	if err != nil {
		return err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := kafka.Message{Key: []byte(key), Value: b, Time: ev.At}
	_, err = p.cb.Execute(func() (interface{}, error) {
		return nil, p.writer.WriteMessages(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrUnavailable
	}
	return err
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

var ErrUnavailable = errors.New("event bus unavailable")

// Nop discards events; used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, string, any) error { return nil }
func (Nop) Close() error                                      { return nil }
