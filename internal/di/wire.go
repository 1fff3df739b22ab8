//go:build wireinject
// +build wireinject

package di

import (
	"PortDelta/pkg/config"
	"PortDelta/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideRegistry,
	ProvideMetrics,
	ProvideLocation,
	ProvideClickHouseClient,
	ProvideCacheStore,
	ProvideKafkaProducer,
)

var valuationSet = wire.NewSet(
	ProvidePortfolio,
	ProvideAlpacaClient,
	ProvideSessionSource,
	ProvideCalendar,
	ProvideTickStorage,
	ProvideQuoteBook,
	ProvidePriceSource,
	ProvidePriceCache,
	ProvideEngine,
)

var presentationSet = wire.NewSet(
	ProvideFormatter,
	ProvideLatestStore,
	ProvidePresenter,
	ProvideScheduler,
	ProvideQuoteCollector,
	ProvideHTTPHandler,
	ProvideHTTPServer,
)

// InitializeApp builds the application graph. The returned cleanup closes
// connections in reverse order of creation.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(infraSet, valuationSet, presentationSet, ProvideApp)
	return nil, nil, nil
}
