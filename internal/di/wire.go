//go:build wireinject
// +build wireinject

package di

import (
	"FeedGate/pkg/config"
	"FeedGate/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,

		// Provider plumbing
		ProvideRegistry,
		ProvideTracker,
		ProvideBudget,
		ProvideBreaker,
		ProvideFetcher,

		// Feed pipeline
		ProvideRouter,
		ProvideKV,
		ProvideFeedCache,
		ProvideHub,
		ProvideFirehose,
		ProvideScheduler,

		// Transport
		ProvideWSHandler,
		ProvideAPIHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
