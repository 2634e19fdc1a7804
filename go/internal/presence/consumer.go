package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// ConsumerConfig holds configuration for the presence ledger consumer
type ConsumerConfig struct {
	URL           string
	StreamName    string
	ConsumerName  string
	SubjectFilter string
	MaxDeliver    int
	AckWait       time.Duration
	MaxAckPending int
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		URL:           nats.DefaultURL,
		StreamName:    "FOCUS_PRESENCE",
		ConsumerName:  "presence-ledger",
		SubjectFilter: "focus.presence.>",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		// one in flight keeps status changes applied in publish order
		MaxAckPending: 1,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// Consumer applies presence events from JetStream to a Recorder, usually the App
type Consumer struct {
	recorder Recorder
	nc       *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	config   ConsumerConfig
}

func NewConsumer(recorder Recorder, config ConsumerConfig) (*Consumer, error) {
	nc, js, err := connectNATS(config.URL, config.MaxReconnects, config.ReconnectWait)
	if err != nil {
		return nil, err
	}

	c := &Consumer{
		recorder: recorder,
		nc:       nc,
		js:       js,
		config:   config,
	}

	if err := c.ensureConsumer(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}

	return c, nil
}

func (c *Consumer) ensureConsumer(ctx context.Context) error {
	stream, err := c.js.Stream(ctx, c.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumer, err := stream.Consumer(ctx, c.config.ConsumerName)
	if err == nil {
		log.Info().
			Str("consumer", c.config.ConsumerName).
			Str("stream", c.config.StreamName).
			Msg("using existing JetStream consumer")
		c.consumer = consumer
		return nil
	}

	consumer, err = stream.CreateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          c.config.ConsumerName,
		Durable:       c.config.ConsumerName,
		Description:   "Presence ledger",
		FilterSubject: c.config.SubjectFilter,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    c.config.MaxDeliver,
		AckWait:       c.config.AckWait,
		MaxAckPending: c.config.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	log.Info().
		Str("consumer", c.config.ConsumerName).
		Str("stream", c.config.StreamName).
		Msg("created JetStream consumer")

	c.consumer = consumer
	return nil
}

// Start consumes until ctx is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	log.Info().
		Str("consumer", c.config.ConsumerName).
		Str("stream", c.config.StreamName).
		Msg("starting presence consumer")

	messageCh := make(chan jetstream.Msg, 100)

	consumeCtx, err := c.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("presence consumer shutting down")
			return nil
		case msg := <-messageCh:
			if err := c.processMessage(ctx, msg); err != nil {
				log.Error().
					Err(err).
					Str("subject", msg.Subject()).
					Msg("failed to apply presence event")
				if nakErr := msg.Nak(); nakErr != nil {
					log.Error().Err(nakErr).Msg("failed to NAK message")
				}
				continue
			}
			if ackErr := msg.Ack(); ackErr != nil {
				log.Error().Err(ackErr).Msg("failed to ACK message")
			}
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg jetstream.Msg) error {
	event, err := decodeEnvelope(msg.Data())
	if err != nil {
		// a malformed message never becomes valid, so it is dropped
		log.Warn().Err(err).Str("subject", msg.Subject()).Msg("dropping malformed presence event")
		return nil
	}
	return c.recorder.Record(ctx, event)
}

// Connected reports whether the NATS connection is up
func (c *Consumer) Connected() bool {
	return c.nc != nil && c.nc.IsConnected()
}

func (c *Consumer) Stop() error {
	log.Info().Msg("stopping presence consumer")
	if c.nc != nil {
		c.nc.Close()
	}
	return nil
}
