package pipeline

import (
	"context"
	"fmt"
	"iter"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/datapipes/nyc-taxi-ingest/internal/config"
	"github.com/datapipes/nyc-taxi-ingest/internal/models"
)

// Source is the contract between the extraction adapter and a runner: a
// named, ordered, lazy sequence of row batches. The runner owns destination
// naming, schema materialization and write disposition; every loader here
// appends, it never replaces.
type Source interface {
	Name() string
	Batches(ctx context.Context) iter.Seq[models.Batch]
}

// Summary reports what a run persisted. A run that skipped every file
// completes with zero counts and no error.
type Summary struct {
	FilesLoaded int
	RowsLoaded  int64
}

// Runner consumes a source synchronously and persists its batches.
// Runner errors are fatal to the run, unlike per-file extraction failures.
type Runner interface {
	Run(ctx context.Context, source Source) (Summary, error)
}

// NewRunner selects the destination loader from config.
func NewRunner(
	cfg config.Config,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (Runner, error) {
	switch cfg.Pipeline.Destination {
	case "postgres":
		return NewPostgresRunner(cfg, tracer, logger)
	case "object_store":
		return NewObjectStoreRunner(cfg, tracer, logger)
	case "discard":
		return NewDiscardRunner(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown destination: %s", cfg.Pipeline.Destination)
	}
}

// columnKind is the reduced type lattice the loaders materialize from the
// reader's inference.
type columnKind int

const (
	kindString columnKind = iota
	kindInt
	kindFloat
	kindBool
	kindTime
)

func kindOf(v any) (columnKind, bool) {
	switch v.(type) {
	case int64:
		return kindInt, true
	case float64:
		return kindFloat, true
	case bool:
		return kindBool, true
	case time.Time:
		return kindTime, true
	case string:
		return kindString, true
	default:
		return kindString, false
	}
}

// columnKinds samples each column's first non-nil cell. Columns that are
// null through the whole batch fall back to string.
func columnKinds(batch models.Batch) map[string]columnKind {
	kinds := make(map[string]columnKind, len(batch.Columns))
	for _, col := range batch.Columns {
		kinds[col] = kindString
		for _, row := range batch.Rows {
			if row[col] == nil {
				continue
			}
			if k, ok := kindOf(row[col]); ok {
				kinds[col] = k
			}
			break
		}
	}
	return kinds
}
