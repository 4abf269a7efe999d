package analytics

import (
	"context"

	"learnit-events/internal/events"
	"learnit-events/internal/metrics"
	"learnit-events/pkg/logger"
)

// Consumer feeds bus messages to the Dispatcher. A handler error leaves the
// message unacknowledged so the bus delivers it again.
type Consumer struct {
	subscriber events.Subscriber
	dispatcher *Dispatcher
	topic      string
	log        *logger.Logger
}

func NewConsumer(subscriber events.Subscriber, dispatcher *Dispatcher, topic string, log *logger.Logger) *Consumer {
	if topic == "" {
		topic = events.DefaultTopic
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Consumer{
		subscriber: subscriber,
		dispatcher: dispatcher,
		topic:      topic,
		log:        log.Named("analytics-consumer"),
	}
}

// Run blocks until ctx is cancelled or the subscription fails.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Infof("consuming %s", c.topic)
	return c.subscriber.Subscribe(ctx, c.topic, c.Handle)
}

func (c *Consumer) Handle(ctx context.Context, msg events.Message) error {
	metrics.Consumed.Inc()

	env, err := events.ParseEnvelope(msg.Body)
	if err != nil {
		// Redelivering a body that is not an envelope can never succeed.
		metrics.Poison.Inc()
		c.log.Warnf("acknowledging unreadable message %s (key=%s): %v", msg.ID, msg.Key, err)
		return nil
	}

	c.log.Ctx(logger.WithEventID(ctx, env.EventID)).Infof("received %s event for key %s", env.EventType, msg.Key)
	_, err = c.dispatcher.Ingest(ctx, env)
	return err
}
