package internal

import (
	"context"
	"iter"

	IOE "github.com/IBM/fp-go/v2/ioeither"

	"github.com/datapipes/nyc-taxi-ingest/internal/models"
	"github.com/datapipes/nyc-taxi-ingest/internal/pipeline"
)

type FetcherInterface interface {
	Fetch(ctx context.Context, ref models.FileRef) IOE.IOEither[error, []byte]
}

type ResourceInterface interface {
	Name() string
	Batches(ctx context.Context) iter.Seq[models.Batch]
}

type RunnerInterface interface {
	Run(ctx context.Context, source pipeline.Source) (pipeline.Summary, error)
}
