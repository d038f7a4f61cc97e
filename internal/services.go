package internal

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/datapipes/nyc-taxi-ingest/internal/config"
	"github.com/datapipes/nyc-taxi-ingest/internal/extract"
	"github.com/datapipes/nyc-taxi-ingest/internal/fetch"
	"github.com/datapipes/nyc-taxi-ingest/internal/pipeline"
)

type Services struct {
	Fetcher  FetcherInterface
	Resource ResourceInterface
	Runner   RunnerInterface
}

func InitServices(
	cfg config.Config,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (*Services, error) {
	f, err := fetch.NewFetcher(cfg, tracer, logger, meter)
	if err != nil {
		return nil, err
	}
	r, err := extract.NewResource(cfg, f, tracer, logger, meter)
	if err != nil {
		return nil, err
	}
	p, err := pipeline.NewRunner(cfg, tracer, logger, meter)
	if err != nil {
		return nil, err
	}
	return &Services{
		Fetcher:  f,
		Resource: r,
		Runner:   p,
	}, nil
}
