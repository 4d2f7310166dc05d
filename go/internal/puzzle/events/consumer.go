package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Handler processes one decoded event. A returned error NAKs the message.
type Handler func(ctx context.Context, event Event) error

// ConsumerConfig holds configuration for the durable JetStream consumer
type ConsumerConfig struct {
	URL           string
	StreamName    string
	ConsumerName  string
	SubjectFilter string        // e.g., "puzzle.events.PuzzleCompleted"
	MaxDeliver    int           // Max delivery attempts
	AckWait       time.Duration // How long to wait for ack
	MaxAckPending int           // Max messages pending ack
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultConsumerConfig() ConsumerConfig {
	js := DefaultJetStreamConfig()
	return ConsumerConfig{
		URL:           nats.DefaultURL,
		StreamName:    js.StreamName,
		ConsumerName:  "leaderboard-recorder",
		SubjectFilter: js.Subject(EventTypePuzzleCompleted),
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Consumer pulls lifecycle events from a durable consumer and hands them to a Handler
type Consumer struct {
	nc       *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	handler  Handler
	config   ConsumerConfig
}

func NewConsumer(config ConsumerConfig, handler Handler) (*Consumer, error) {
	nc, err := connect(config.URL, config.MaxReconnects, config.ReconnectWait)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	c := &Consumer{nc: nc, js: js, handler: handler, config: config}

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

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          c.config.ConsumerName,
		Durable:       c.config.ConsumerName,
		Description:   "Leaderboard completion recorder",
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
		Msg("JetStream consumer ready")

	c.consumer = consumer
	return nil
}

// Start consumes until ctx is done
func (c *Consumer) Start(ctx context.Context) error {
	log.Info().
		Str("consumer", c.config.ConsumerName).
		Str("stream", c.config.StreamName).
		Msg("starting JetStream event consumer")

	messageCh := make(chan jetstream.Msg, 100)

	consumeCtx, err := c.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			_ = msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event consumer shutting down")
			return nil
		case msg := <-messageCh:
			if err := c.process(ctx, msg.Data()); err != nil {
				log.Error().
					Err(err).
					Str("subject", msg.Subject()).
					Msg("failed to process message")
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

func (c *Consumer) process(ctx context.Context, data []byte) error {
	event, err := Decode(data)
	if err != nil {
		return err
	}

	log.Debug().
		Str("event_id", event.ID.String()).
		Str("session_id", event.SessionID).
		Str("event_type", string(event.Type)).
		Msg("processing JetStream event")

	return c.handler(ctx, event)
}

// Decode parses an event envelope
func Decode(data []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return Event{}, fmt.Errorf("unmarshal event envelope: %w", err)
	}
	if event.SessionID == "" || event.Type == "" {
		return Event{}, errors.New("event envelope missing session id or type")
	}
	return event, nil
}

func (c *Consumer) Stop() error {
	log.Info().Msg("stopping event consumer")
	if c.nc != nil {
		c.nc.Close()
	}
	return nil
}
