package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mentor-schedule-service/pkg/sl"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange is the topic exchange events are published to; the routing key
// is the event type.
const Exchange = "mentor.sessions"

func declareExchange(ch *amqp.Channel) error {
	return ch.ExchangeDeclare(Exchange, amqp.ExchangeTopic, true, false, false, false, nil)
}

// Rabbit publishes events as persistent JSON messages. The connection is
// re-dialled lazily after the broker drops it.
type Rabbit struct {
	url string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

var _ Publisher = (*Rabbit)(nil)

func NewRabbit(url string) (*Rabbit, error) {
	const op = "events.NewRabbit"

	r := &Rabbit{url: url}
	if err := r.connect(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return r, nil
}

func (r *Rabbit) connect() error {
	conn, err := amqp.Dial(r.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("channel: %w", err)
	}

	if err := declareExchange(ch); err != nil {
		_ = conn.Close()
		return fmt.Errorf("exchange declare: %w", err)
	}

	r.conn, r.ch = conn, ch
	return nil
}

func (r *Rabbit) Publish(ctx context.Context, e Event) error {
	const op = "events.Rabbit.Publish"

	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch == nil || r.ch.IsClosed() {
		if r.conn != nil {
			_ = r.conn.Close()
		}
		if err := r.connect(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	err = r.ch.PublishWithContext(ctx, Exchange, string(e.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.BookingID + ":" + string(e.Type),
		Timestamp:    e.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *Rabbit) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

// Handler processes one event. Returning an error wrapping ErrRetry puts the
// message back on the queue; any other error drops it.
type Handler func(ctx context.Context, e Event) error

var ErrRetry = errors.New("retry later")

// Consume binds queue to the given event types and feeds deliveries to
// handle until ctx is done, reconnecting with backoff when the broker goes away.
func Consume(ctx context.Context, log *slog.Logger, url, queue string, types []Type, handle Handler) error {
	const op = "events.Consume"

	log = log.With(slog.String("op", op), slog.String("queue", queue))

	backoff := time.Second
	for {
		err := consumeOnce(ctx, log, url, queue, types, handle)
		if ctx.Err() != nil {
			return nil
		}
		log.Error("consumer stopped, reconnecting", sl.Err(err), slog.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func consumeOnce(ctx context.Context, log *slog.Logger, url, queue string, types []Type, handle Handler) error {
	conn, err := amqp.Dial(url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}
	if err := declareExchange(ch); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	for _, t := range types {
		if err := ch.QueueBind(queue, string(t), Exchange, false, nil); err != nil {
			return fmt.Errorf("queue bind %s: %w", t, err)
		}
	}

	deliveries, err := ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	log.Info("consuming", slog.Any("types", types))

	for d := range deliveries {
		var e Event
		if err := json.Unmarshal(d.Body, &e); err != nil {
			log.Error("dropping malformed message", sl.Err(err))
			_ = d.Nack(false, false)
			continue
		}

		err := handle(ctx, e)
		switch {
		case err == nil:
			_ = d.Ack(false)
		case errors.Is(err, ErrRetry):
			log.Warn("event requeued", slog.String("booking_id", e.BookingID), sl.Err(err))
			time.Sleep(time.Second)
			_ = d.Nack(false, true)
		default:
			log.Error("event dropped", slog.String("booking_id", e.BookingID), sl.Err(err))
			_ = d.Nack(false, false)
		}
	}

	return errors.New("deliveries channel closed")
}
