package extract

import (
	"context"
	"fmt"
	"iter"
	"os"
	"time"

	ET "github.com/IBM/fp-go/v2/either"
	IOE "github.com/IBM/fp-go/v2/ioeither"
	"github.com/schollz/progressbar/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/datapipes/nyc-taxi-ingest/internal/config"
	"github.com/datapipes/nyc-taxi-ingest/internal/enumerate"
	"github.com/datapipes/nyc-taxi-ingest/internal/models"
	"github.com/datapipes/nyc-taxi-ingest/internal/parse"
)

// FileFetcher downloads one remote archive.
type FileFetcher interface {
	Fetch(ctx context.Context, ref models.FileRef) IOE.IOEither[error, []byte]
}

// Resource is the extraction source: it walks the month range in order and
// lazily yields one row batch per archive that downloads and parses cleanly.
// Files that fail either step are logged and skipped; one bad file never
// aborts the run. At most one file is in flight at a time.
type Resource struct {
	Cfg             config.Config
	Fetcher         FileFetcher
	Logger          *zap.SugaredLogger
	Tracer          trace.Tracer
	Meter           metric.Meter
	start           time.Time
	end             time.Time
	filesTotal      metric.Int64Counter
	filesLoaded     metric.Int64Counter
	filesSkipped    metric.Int64Counter
	rowsTotal       metric.Int64Counter
	fileDuration    metric.Int64Histogram
	sessionDuration metric.Int64Histogram
}

func NewResource(
	cfg config.Config,
	fetcher FileFetcher,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (*Resource, error) {
	start, err := enumerate.ParseMonth(cfg.Source.StartDate)
	if err != nil {
		return nil, fmt.Errorf("start_date: %w", err)
	}
	end, err := enumerate.ParseMonth(cfg.Source.EndDate)
	if err != nil {
		return nil, fmt.Errorf("end_date: %w", err)
	}

	r := &Resource{
		Cfg:     cfg,
		Fetcher: fetcher,
		Logger:  logger,
		Tracer:  tracer,
		Meter:   meter,
		start:   start,
		end:     end,
	}

	r.filesTotal, err = meter.Int64Counter(
		"extract.files.total",
		metric.WithDescription("Number of expected monthly files enumerated"),
	)
	if err != nil {
		return nil, err
	}

	r.filesLoaded, err = meter.Int64Counter(
		"extract.files.loaded",
		metric.WithDescription("Number of files downloaded and parsed into batches"),
	)
	if err != nil {
		return nil, err
	}

	r.filesSkipped, err = meter.Int64Counter(
		"extract.files.skipped",
		metric.WithDescription("Number of files skipped after a download or parse failure"),
	)
	if err != nil {
		return nil, err
	}

	r.rowsTotal, err = meter.Int64Counter(
		"extract.rows.total",
		metric.WithDescription("Total rows yielded across all batches"),
	)
	if err != nil {
		return nil, err
	}

	r.fileDuration, err = meter.Int64Histogram(
		"extract.file.duration",
		metric.WithDescription("Duration of individual file parse"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	r.sessionDuration, err = meter.Int64Histogram(
		"extract.session.duration",
		metric.WithDescription("Duration of the full extraction session"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return r, nil
}

// Name is the source name the pipeline runner keys the destination table on,
// e.g. "yellow_tripdata".
func (r *Resource) Name() string {
	return r.Cfg.Source.TaxiType + "_tripdata"
}

// Batches returns the lazy, forward-only batch sequence. Batches arrive
// strictly in month order; the next download does not start until the
// consumer returns from the previous batch. The sequence holds no state
// across invocations: ranging over it again re-runs enumerate, fetch and
// parse from scratch.
func (r *Resource) Batches(ctx context.Context) iter.Seq[models.Batch] {
	return func(yield func(models.Batch) bool) {
		ctx, span := r.Tracer.Start(ctx, "extract.session", trace.WithAttributes(
			attribute.String("taxi_type", r.Cfg.Source.TaxiType),
			attribute.String("start_date", r.Cfg.Source.StartDate),
			attribute.String("end_date", r.Cfg.Source.EndDate),
		))
		defer span.End()
		startTime := time.Now()

		refs := enumerate.FileRefs(r.Cfg.Source.TaxiType, r.start, r.end)
		names := make([]string, len(refs))
		for i, ref := range refs {
			names[i] = ref.Name
		}
		r.Logger.Infof("Generated file names: %v", names)
		r.filesTotal.Add(ctx, int64(len(refs)),
			metric.WithAttributes(attribute.String("taxi_type", r.Cfg.Source.TaxiType)),
		)

		progress := progressbar.NewOptions(len(refs),
			progressbar.OptionSetWriter(os.Stdout),
			progressbar.OptionSetWidth(60),
			progressbar.OptionSetDescription(
				fmt.Sprintf("[0/%d] Processing monthly files...", len(refs)),
			),
			progressbar.OptionShowIts(),
			progressbar.OptionSetElapsedTime(true),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionThrottle(50*time.Millisecond),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionUseANSICodes(true),
		)

		loaded := 0
		for i, ref := range refs {
			select {
			case <-ctx.Done():
				r.Logger.Warn("Extraction session cancelled")
				return
			default:
			}

			res := r.Fetcher.Fetch(ctx, ref)()
			body, err := ET.UnwrapError(res)
			if err != nil {
				// Fetcher already logged the warning
				r.filesSkipped.Add(ctx, 1,
					metric.WithAttributes(attribute.String("reason", "download")),
				)
				_ = progress.Add(1)
				continue
			}

			fileStart := time.Now()
			batch, err := parse.Batch(ref.Name, body)
			if err != nil {
				r.Logger.Errorf("Error processing %s: %v", ref.Name, err)
				span.RecordError(err)
				r.filesSkipped.Add(ctx, 1,
					metric.WithAttributes(attribute.String("reason", "parse")),
				)
				_ = progress.Add(1)
				continue
			}

			r.fileDuration.Record(ctx, time.Since(fileStart).Milliseconds(),
				metric.WithAttributes(attribute.String("status", "success")),
			)
			r.rowsTotal.Add(ctx, int64(len(batch.Rows)),
				metric.WithAttributes(attribute.String("file.name", ref.Name)),
			)
			r.filesLoaded.Add(ctx, 1)
			loaded++
			_ = progress.Add(1)
			progress.Describe(fmt.Sprintf("[%d/%d] Processing monthly files...", i+1, len(refs)))

			if !yield(batch) {
				return
			}
			r.Logger.Infof("Yielded %d rows from %s", len(batch.Rows), ref.Name)
		}

		progress.Describe("Extraction complete")
		_ = progress.Finish()

		status := "success"
		if loaded == 0 {
			status = "empty"
		}
		r.sessionDuration.Record(ctx, time.Since(startTime).Milliseconds(),
			metric.WithAttributes(attribute.String("status", status)),
		)
	}
}
