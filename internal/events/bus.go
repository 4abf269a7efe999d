package events

import "context"

// Message is one unit on the bus. Key is the partition/routing key (the
// outbox aggregate id) and ID the producer event id used for de-duplication.
type Message struct {
	Topic string
	Key   string
	ID    string
	Body  []byte
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Handler returning an error leaves the message unacknowledged so the bus
// redelivers it.
type Handler func(ctx context.Context, msg Message) error

type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler Handler) error
}

type Bus interface {
	Publisher
	Subscriber
	Close() error
}
