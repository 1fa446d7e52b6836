package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/auctionhouse/go/internal/auction/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Message headers set on every relayed event
const (
	HeaderEventType     = "Event-Type"
	HeaderEventID       = "Event-ID"
	HeaderExcludeUserID = "Exclude-User-ID"
)

type JetStreamConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	MaxAge        time.Duration // How long to keep messages
	MaxMsgs       int64
	MaxPending    int // Max in-flight async publishes
	FlushTimeout  time.Duration
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:           nats.DefaultURL,
		StreamName:    "AUCTION_EVENTS",
		SubjectPrefix: "auction.events",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
		MaxAge:        time.Hour,
		MaxMsgs:       -1,
		MaxPending:    4096,
		FlushTimeout:  5 * time.Second,
	}
}

// NATSPublisher mirrors engine events onto a JetStream stream. It implements
// events.Publisher and never waits for acks, so a slow server does not hold up
// bid evaluation.
type NATSPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

func NewNATSPublisher(ctx context.Context, cfg JetStreamConfig) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("auctionhouse"),
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
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc,
		jetstream.WithPublishAsyncMaxPending(cfg.MaxPending),
		jetstream.WithPublishAsyncErrHandler(func(_ jetstream.JetStream, msg *nats.Msg, err error) {
			log.Error().
				Err(err).
				Str("subject", msg.Subject).
				Str("event_id", msg.Header.Get(HeaderEventID)).
				Msg("JetStream publish not acknowledged")
		}),
	)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := &NATSPublisher{nc: nc, js: js, config: cfg}

	if err := p.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	log.Info().
		Str("url", nc.ConnectedUrl()).
		Str("stream", cfg.StreamName).
		Str("subject_prefix", cfg.SubjectPrefix).
		Msg("NATS event relay connected")
	return p, nil
}

func (p *NATSPublisher) streamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        p.config.StreamName,
		Description: "Live auction events",
		Subjects:    []string{fmt.Sprintf("%s.>", p.config.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      p.config.MaxAge,
		MaxMsgs:     p.config.MaxMsgs,
		Storage:     jetstream.MemoryStorage,
		Replicas:    1,
	}
}

func (p *NATSPublisher) ensureStream(ctx context.Context) error {
	sc := p.streamConfig()

	stream, err := p.js.Stream(ctx, p.config.StreamName)
	if err != nil {
		if _, err = p.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().
			Str("stream", p.config.StreamName).
			Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !isStreamConfigEqual(info.Config, sc) {
		if _, err = p.js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().
			Str("stream", p.config.StreamName).
			Msg("updated JetStream stream")
	}
	return nil
}

// Publish queues env for asynchronous delivery. Ack failures are reported by
// the async error handler.
func (p *NATSPublisher) Publish(_ context.Context, env events.Envelope) error {
	msg, err := buildMsg(p.config.SubjectPrefix, env)
	if err != nil {
		return err
	}

	if _, err := p.js.PublishMsgAsync(msg,
		jetstream.WithMsgID(env.ID),
		jetstream.WithExpectStream(p.config.StreamName),
	); err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", msg.Subject).
		Str("event_id", env.ID).
		Msg("queued event for JetStream")
	return nil
}

// Close waits for in-flight publishes up to the flush timeout, then drains
// the connection.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}

	select {
	case <-p.js.PublishAsyncComplete():
	case <-time.After(p.config.FlushTimeout):
		log.Warn().
			Int("pending", p.js.PublishAsyncPending()).
			Msg("timed out waiting for JetStream acks")
	}
	return p.nc.Drain()
}

// Connected reports whether the underlying NATS connection is up
func (p *NATSPublisher) Connected() bool {
	return p.nc != nil && p.nc.IsConnected()
}

// Subject returns the subject an event type is published on
func Subject(prefix string, eventType events.EventType) string {
	return fmt.Sprintf("%s.%s", prefix, eventType)
}

func buildMsg(prefix string, env events.Envelope) (*nats.Msg, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}

	msg := nats.NewMsg(Subject(prefix, env.Type))
	msg.Data = data
	msg.Header.Set(HeaderEventType, string(env.Type))
	msg.Header.Set(HeaderEventID, env.ID)
	if env.ExcludeUserID != "" {
		msg.Header.Set(HeaderExcludeUserID, env.ExcludeUserID)
	}
	return msg, nil
}

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	if len(a.Subjects) != len(b.Subjects) {
		return false
	}
	for i := range a.Subjects {
		if a.Subjects[i] != b.Subjects[i] {
			return false
		}
	}
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.MaxMsgs == b.MaxMsgs &&
		a.Storage == b.Storage &&
		a.Replicas == b.Replicas
}
