//go:build wireinject
// +build wireinject

package app

import (
	"context"

	"perpbot/internal/config"

	"github.com/google/wire"
)

func buildAppWithWire(ctx context.Context, cfg *config.Config, opts []AppBuilderOption) (*App, error) {
	wire.Build(providerSet)
	return nil, nil
}
