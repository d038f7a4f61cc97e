package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	ET "github.com/IBM/fp-go/v2/either"
	"github.com/IBM/fp-go/v2/function"
	IOE "github.com/IBM/fp-go/v2/ioeither"
	Http "github.com/IBM/fp-go/v2/ioeither/http"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/datapipes/nyc-taxi-ingest/internal/config"
	"github.com/datapipes/nyc-taxi-ingest/internal/models"
	T "github.com/datapipes/nyc-taxi-ingest/internal/typing"
)

// StatusError marks a completed request that came back with a non-200
// status. Per-file policy for these is log-and-skip, never run-fatal.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.Code)
}

// StatusCode extracts the HTTP status from a fetch failure, if the request
// completed at all. Transport failures return false.
func StatusCode(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

type Fetcher struct {
	Cfg             config.Config
	Logger          *zap.SugaredLogger
	Tracer          trace.Tracer
	Meter           metric.Meter
	client          Http.Client
	bytesTotal      metric.Int64Counter
	requestDuration metric.Int64Histogram
}

func NewFetcher(
	cfg config.Config,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (*Fetcher, error) {
	f := &Fetcher{
		Cfg:    cfg,
		Logger: logger,
		Tracer: tracer,
		Meter:  meter,
		client: Http.MakeClient(&http.Client{Timeout: cfg.Source.Timeout}),
	}

	var err error
	f.bytesTotal, err = meter.Int64Counter(
		"fetch.bytes.total",
		metric.WithDescription("Total bytes downloaded"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	f.requestDuration, err = meter.Int64Histogram(
		"fetch.request.duration",
		metric.WithDescription("Duration of individual file downloads"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return f, nil
}

// Fetch performs exactly one GET for the file. 200 yields the raw body;
// any other status yields a StatusError; transport errors pass through
// untouched. No retries.
func (f *Fetcher) Fetch(ctx context.Context, ref models.FileRef) IOE.IOEither[error, []byte] {
	ctx, span := f.Tracer.Start(ctx, "fetch.file", trace.WithAttributes(
		attribute.String("file.name", ref.Name),
		attribute.String("file.url", ref.URL),
	))
	select {
	case <-ctx.Done():
		span.End()
		return IOE.Left[[]byte](ctx.Err())
	default:
	}
	startTime := time.Now()
	f.Logger.Infof("Downloading: %s", ref.Name)
	f.Logger.Debugf("File URL: %s", ref.URL)
	request := IOE.Bracket(
		f.client.Do(Http.MakeGetRequest(ref.URL)),
		func(resp *http.Response) IOE.IOEither[error, []byte] {
			if resp.StatusCode != http.StatusOK {
				span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
				return IOE.Left[[]byte, error](&StatusError{Code: resp.StatusCode})
			}
			return IOE.TryCatchError(func() ([]byte, error) {
				return io.ReadAll(resp.Body)
			})
		},
		func(resp *http.Response, _ ET.Either[error, []byte]) IOE.IOEither[error, any] {
			return IOE.TryCatchError(func() (any, error) { return nil, resp.Body.Close() })
		},
	)
	return function.Pipe2(
		request,
		IOE.Tap(func(body []byte) IOE.IOEither[error, T.Unit] {
			durationMs := time.Since(startTime).Milliseconds()
			f.bytesTotal.Add(ctx, int64(len(body)),
				metric.WithAttributes(attribute.String("file.name", ref.Name)),
			)
			f.requestDuration.Record(ctx, durationMs,
				metric.WithAttributes(attribute.String("status", "success")),
			)
			f.Logger.Infof("Successfully downloaded %s", ref.Name)
			span.End()
			return IOE.Of[error](T.Unit{})
		}),
		IOE.TapLeft[[]byte](func(err error) IOE.IOEither[error, T.Unit] {
			durationMs := time.Since(startTime).Milliseconds()
			span.RecordError(err)
			f.requestDuration.Record(ctx, durationMs,
				metric.WithAttributes(attribute.String("status", "failed")),
			)
			if code, ok := StatusCode(err); ok {
				f.Logger.Warnf("Failed to download %s, Status Code: %d", ref.Name, code)
			} else {
				f.Logger.Warnf("Failed to download %s: %v", ref.Name, err)
			}
			span.End()
			return IOE.Of[error](T.Unit{})
		}),
	)
}
