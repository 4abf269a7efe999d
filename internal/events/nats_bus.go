package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"learnit-events/pkg/logger"

	"github.com/nats-io/nats.go"
)

// KeyHeader carries Message.Key on JetStream messages.
const KeyHeader = "Learnit-Key"

type NATSConfig struct {
	URL        string
	Stream     string
	Durable    string
	Subjects   []string
	AckWait    time.Duration
	MaxDeliver int
	FetchBatch int
	FetchWait  time.Duration
}

// NATSBus implements Bus on JetStream with a durable pull consumer. The
// producer event id goes into Nats-Msg-Id so the stream drops republished
// duplicates inside its de-duplication window.
type NATSBus struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	cfg  NATSConfig
	log  *logger.Logger
}

func NewNATSBus(ctx context.Context, cfg NATSConfig, log *logger.Logger) (*NATSBus, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats: url is required")
	}
	if cfg.Stream == "" || len(cfg.Subjects) == 0 {
		return nil, errors.New("nats: stream and subjects are required")
	}
	if cfg.FetchBatch <= 0 {
		cfg.FetchBatch = 50
	}
	if cfg.FetchWait <= 0 {
		cfg.FetchWait = 2 * time.Second
	}
	if cfg.MaxDeliver == 0 {
		cfg.MaxDeliver = -1
	}
	if log == nil {
		log = logger.NewNop()
	}

	conn, err := nats.Connect(cfg.URL, nats.Name("learnit-events"))
	if err != nil {
		return nil, err
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ensureStream(ctx, js, cfg); err != nil {
		conn.Close()
		return nil, err
	}
	return &NATSBus{conn: conn, js: js, cfg: cfg, log: log.Named("nats-bus")}, nil
}

func (b *NATSBus) Publish(ctx context.Context, msg Message) error {
	m := nats.NewMsg(msg.Topic)
	m.Data = msg.Body
	if msg.ID != "" {
		m.Header.Set(nats.MsgIdHdr, msg.ID)
	}
	if msg.Key != "" {
		m.Header.Set(KeyHeader, msg.Key)
	}
	if _, err := b.js.PublishMsg(m, nats.Context(ctx)); err != nil {
		return fmt.Errorf("nats: publish %s: %w", msg.Topic, err)
	}
	return nil
}

// Subscribe blocks until ctx is cancelled. Handler failures are Nak'ed and
// redelivered by the server.
func (b *NATSBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if err := b.ensureConsumer(ctx, topic); err != nil {
		return err
	}
	sub, err := b.js.PullSubscribe(topic, b.cfg.Durable, nats.Bind(b.cfg.Stream, b.cfg.Durable))
	if err != nil {
		return fmt.Errorf("nats: subscribe %s: %w", topic, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := sub.Fetch(b.cfg.FetchBatch, nats.MaxWait(b.cfg.FetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			if errors.Is(err, nats.ErrConnectionClosed) {
				return fmt.Errorf("nats: fetch %s: %w", topic, err)
			}
			b.log.Warnf("fetch failed: %v", err)
			if !sleepCtx(ctx, b.cfg.FetchWait) {
				return nil
			}
			continue
		}
		for _, m := range msgs {
			msg := Message{
				Topic: m.Subject,
				Key:   m.Header.Get(KeyHeader),
				ID:    m.Header.Get(nats.MsgIdHdr),
				Body:  m.Data,
			}
			if err := handler(ctx, msg); err != nil {
				b.log.Warnf("handler failed for event %s, nak: %v", msg.ID, err)
				_ = m.Nak()
				continue
			}
			_ = m.Ack()
		}
	}
}

// Ping reports whether the connection is up and JetStream answers.
func (b *NATSBus) Ping(ctx context.Context) error {
	if b == nil || b.conn == nil || !b.conn.IsConnected() {
		return errors.New("nats: not connected")
	}
	_, err := b.js.AccountInfo(nats.Context(ctx))
	return err
}

func (b *NATSBus) Close() error {
	if b == nil || b.conn == nil {
		return nil
	}
	b.conn.Close()
	return nil
}

func (b *NATSBus) ensureConsumer(ctx context.Context, topic string) error {
	if b.cfg.Durable == "" {
		return errors.New("nats: durable consumer name is required")
	}
	_, err := b.js.ConsumerInfo(b.cfg.Stream, b.cfg.Durable, nats.Context(ctx))
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrConsumerNotFound) {
		return err
	}
	_, err = b.js.AddConsumer(b.cfg.Stream, &nats.ConsumerConfig{
		Durable:       b.cfg.Durable,
		AckPolicy:     nats.AckExplicitPolicy,
		AckWait:       b.cfg.AckWait,
		MaxDeliver:    b.cfg.MaxDeliver,
		FilterSubject: topic,
	}, nats.Context(ctx))
	return err
}

func ensureStream(ctx context.Context, js nats.JetStreamContext, cfg NATSConfig) error {
	info, err := js.StreamInfo(cfg.Stream, nats.Context(ctx))
	if err == nil {
		if !sameSubjects(info.Config.Subjects, cfg.Subjects) {
			info.Config.Subjects = cfg.Subjects
			_, err = js.UpdateStream(&info.Config, nats.Context(ctx))
		}
		return err
	}
	if errors.Is(err, nats.ErrStreamNotFound) {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      cfg.Stream,
			Subjects:  cfg.Subjects,
			Storage:   nats.FileStorage,
			Retention: nats.LimitsPolicy,
		}, nats.Context(ctx))
	}
	return err
}

func sameSubjects(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, s := range a {
		seen[s]++
	}
	for _, s := range b {
		if seen[s] == 0 {
			return false
		}
		seen[s]--
	}
	return true
}
