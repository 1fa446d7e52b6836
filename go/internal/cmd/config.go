package main

import (
	"os"

	"github.com/mcdev12/auctionhouse/go/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func setupLogging(cfg *config.Config) {
	if cfg.Log.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := cfg.LogLevel()
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("level", level.String()).
		Str("port", cfg.Server.Port).
		Dur("tick_interval", cfg.Auction.TickInterval).
		Dur("restart_delay", cfg.Auction.RestartDelay).
		Float64("min_increment", cfg.Auction.MinIncrement).
		Bool("nats_enabled", cfg.NATS.URL != "").
		Msg("configuration loaded")
}
