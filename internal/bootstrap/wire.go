//go:build wireinject
// +build wireinject

//go:generate wire

package bootstrap

import (
	"context"

	"github.com/google/wire"
)

// InitializeApp builds the App: config and logger first, then the shared
// interaction cache, the REST client behind the comment and profile ports,
// the services and handlers, and the optional NATS subscriber.
// ctx bounds the config watchers and the subscriber connection.
func InitializeApp(ctx context.Context) (*App, func(), error) {
	wire.Build(ProviderSet)
	return nil, nil, nil
}
