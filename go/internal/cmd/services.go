package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/auctionhouse/go/internal/auction"
	"github.com/mcdev12/auctionhouse/go/internal/auction/events"
	"github.com/mcdev12/auctionhouse/go/internal/config"
	"github.com/mcdev12/auctionhouse/go/internal/eventbus"
	"github.com/mcdev12/auctionhouse/go/internal/gateway"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Engine  *auction.App
	Gateway *gateway.Service
	Relay   *eventbus.NATSPublisher
}

func setupServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	// Wire up the publisher chain first; the engine publishes into it.
	// WebSocket hub → optional NATS relay → engine → gateway handlers

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.AllowedOrigins = cfg.Server.AllowedOrigins
	hub := gateway.NewHub(gatewayConfig)

	publisher := events.NewMultiPublisher(hub)

	var relay *eventbus.NATSPublisher
	if cfg.NATS.URL != "" {
		jsConfig := eventbus.DefaultJetStreamConfig()
		jsConfig.URL = cfg.NATS.URL
		jsConfig.StreamName = cfg.NATS.Stream
		jsConfig.SubjectPrefix = cfg.NATS.Subject

		var err error
		relay, err = eventbus.NewNATSPublisher(ctx, jsConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect event relay: %w", err)
		}
		publisher.Add(relay)
	} else {
		log.Info().Msg("NATS_URL not set, event relay disabled")
	}

	engine, err := auction.NewApp(cfg.EngineConfig(), publisher, clockwork.NewRealClock(), cfg.Catalog())
	if err != nil {
		if relay != nil {
			relay.Close()
		}
		return nil, fmt.Errorf("failed to create auction engine: %w", err)
	}

	svc := gateway.NewService(gatewayConfig, hub, engine)
	if relay != nil {
		svc.AddHealthCheck("nats", relay.Connected)
	}

	return &Services{
		Engine:  engine,
		Gateway: svc,
		Relay:   relay,
	}, nil
}

// Close releases external connections
func (s *Services) Close() {
	if s.Relay != nil {
		if err := s.Relay.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close event relay")
		}
	}
}
