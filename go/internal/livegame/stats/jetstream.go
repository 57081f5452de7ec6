package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/courtside/go/internal/games"
	"github.com/mcdev12/courtside/go/internal/livegame/session"
)

type JetStreamConfig struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	ConsumerName    string
	MaxDeliver      int           // Max delivery attempts per message
	AckWait         time.Duration // How long to wait for ack
	MaxReconnects   int
	ReconnectWait   time.Duration
	DuplicateWindow time.Duration // Window for event id dedupe on the stream
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "PLAYER_STATS",
		SubjectPrefix:   "livegame.stats",
		ConsumerName:    "player-stat-applier",
		MaxDeliver:      10,
		AckWait:         30 * time.Second,
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		DuplicateWindow: 2 * time.Hour,
	}
}

// Connect opens a NATS connection and a JetStream context and makes sure
// the stat stream exists.
func Connect(ctx context.Context, cfg JetStreamConfig) (*nats.Conn, jetstream.JetStream, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "Player stat deltas from live game sessions",
		Subjects:    []string{cfg.SubjectPrefix + ".>"},
		Retention:   jetstream.WorkQueuePolicy,
		Storage:     jetstream.FileStorage,
		Duplicates:  cfg.DuplicateWindow,
	})
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("ensure stream: %w", err)
	}

	log.Info().
		Str("stream", cfg.StreamName).
		Str("url", cfg.URL).
		Msg("connected to JetStream")
	return nc, js, nil
}

// msgPublisher is the part of jetstream.JetStream the publisher needs
type msgPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// JetStreamPublisher is a Target that puts deltas on the stat stream. The
// message id is the event id, so the stream drops replays inside its
// duplicate window.
type JetStreamPublisher struct {
	js  msgPublisher
	cfg JetStreamConfig
}

func NewJetStreamPublisher(js jetstream.JetStream, cfg JetStreamConfig) *JetStreamPublisher {
	return &JetStreamPublisher{js: js, cfg: cfg}
}

func (p *JetStreamPublisher) Deliver(ctx context.Context, d session.PlayerStatDelta) error {
	data, err := json.Marshal(d)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("marshal stat delta: %w", err))
	}

	subject := fmt.Sprintf("%s.%s", p.cfg.SubjectPrefix, d.GameID)
	ack, err := p.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			nats.MsgIdHdr: []string{d.EventID},
			"Game-ID":     []string{d.GameID},
			"Player-ID":   []string{d.PlayerID},
		},
	},
		jetstream.WithMsgID(d.EventID),
		jetstream.WithExpectStream(p.cfg.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Str("event_id", d.EventID).
		Uint64("sequence", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("published stat delta")
	return nil
}

// JetStreamConsumer applies deltas from the stat stream to the store.
// Messages for unknown players are terminated, other failures redelivered.
type JetStreamConsumer struct {
	js    jetstream.JetStream
	store games.StatStore
	cfg   JetStreamConfig
}

func NewJetStreamConsumer(js jetstream.JetStream, store games.StatStore, cfg JetStreamConfig) *JetStreamConsumer {
	return &JetStreamConsumer{js: js, store: store, cfg: cfg}
}

// Start consumes until ctx is cancelled
func (c *JetStreamConsumer) Start(ctx context.Context) error {
	consumer, err := c.js.CreateOrUpdateConsumer(ctx, c.cfg.StreamName, jetstream.ConsumerConfig{
		Name:          c.cfg.ConsumerName,
		Durable:       c.cfg.ConsumerName,
		Description:   "Applies player stat deltas to the store",
		FilterSubject: c.cfg.SubjectPrefix + ".>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    c.cfg.MaxDeliver,
		AckWait:       c.cfg.AckWait,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	log.Info().
		Str("consumer", c.cfg.ConsumerName).
		Str("stream", c.cfg.StreamName).
		Msg("starting stat delta consumer")

	messageCh := make(chan jetstream.Msg, 100)
	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
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
			log.Info().Msg("stat delta consumer shutting down")
			return nil
		case msg := <-messageCh:
			c.handle(ctx, msg)
		}
	}
}

func (c *JetStreamConsumer) handle(ctx context.Context, msg jetstream.Msg) {
	var d session.PlayerStatDelta
	if err := json.Unmarshal(msg.Data(), &d); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("invalid stat delta, terminating")
		if termErr := msg.Term(); termErr != nil {
			log.Error().Err(termErr).Msg("failed to TERM message")
		}
		return
	}

	err := applyToStore(ctx, c.store, d)
	var permanent *backoff.PermanentError
	switch {
	case err == nil:
		if ackErr := msg.Ack(); ackErr != nil {
			log.Error().Err(ackErr).Msg("failed to ACK message")
		}
	case errors.As(err, &permanent):
		log.Error().Err(err).Str("event_id", d.EventID).Msg("stat delta rejected by store, terminating")
		if termErr := msg.Term(); termErr != nil {
			log.Error().Err(termErr).Msg("failed to TERM message")
		}
	default:
		log.Warn().Err(err).Str("event_id", d.EventID).Msg("failed to apply stat delta, redelivering")
		if nakErr := msg.Nak(); nakErr != nil {
			log.Error().Err(nakErr).Msg("failed to NAK message")
		}
	}
}
