//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/cubesync/internal/config"
	"github.com/zeusync/cubesync/internal/core/session"
	"github.com/zeusync/cubesync/internal/server"
)

func InitializeSession(cfg *config.Config) (*session.Session, func(), error) {
	wire.Build(SessionSet)
	return nil, nil, nil
}

func InitializeRelay(cfg *config.Config) (*server.Relay, func(), error) {
	wire.Build(RelaySet)
	return nil, nil, nil
}
