package app

import (
	"context"

	"perpbot/internal/config"

	"github.com/google/wire"
)

var providerSet = wire.NewSet(provideAppBuilder, provideAppFromBuilder)

func provideAppBuilder(cfg *config.Config, opts []AppBuilderOption) *AppBuilder {
	return NewAppBuilder(cfg, opts...)
}

func provideAppFromBuilder(ctx context.Context, b *AppBuilder) (*App, error) {
	return b.Build(ctx)
}
