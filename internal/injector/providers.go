package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/cubesync/internal/config"
	"github.com/zeusync/cubesync/internal/core/observability/log"
	"github.com/zeusync/cubesync/internal/core/session"
	"github.com/zeusync/cubesync/internal/server"
)

// LoggerSet builds the process logger from the log section.
var LoggerSet = wire.NewSet(
	ProvideLogger,
	wire.Bind(new(log.Log), new(*log.Logger)),
)

var SessionSet = wire.NewSet(LoggerSet, ProvideSession)

var RelaySet = wire.NewSet(LoggerSet, ProvideRelayConfig, server.NewRelay)

func ProvideLogger(cfg *config.Config) (*log.Logger, func(), error) {
	logger, err := log.NewWithConfig(cfg.LogConfig())
	if err != nil {
		return nil, nil, err
	}
	return logger, func() { _ = logger.Sync() }, nil
}

func ProvideSession(cfg *config.Config, logger log.Log) (*session.Session, func(), error) {
	s, err := session.New(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { _ = s.Close() }, nil
}

func ProvideRelayConfig(cfg *config.Config) server.Config {
	return server.Config{
		ListenAddr:      cfg.Relay.Listen,
		DefaultRoom:     cfg.Peer.Room,
		ShutdownTimeout: cfg.Relay.ShutdownTimeout,
		Connection:      cfg.Relay.Connection,
		Metrics:         cfg.Metrics.Enabled,
	}
}
