package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync/atomic"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/datapipes/nyc-taxi-ingest/internal/config"
	"github.com/datapipes/nyc-taxi-ingest/internal/models"
)

// ObjectStoreRunner writes one SNAPPY parquet part per batch into an
// S3-compatible bucket under
// {prefix}/{source}/dt={load date}/run={run id}/part-NNNNNN.parquet.
// Parts are encoded on the consuming goroutine, in batch order; uploads run
// behind a bounded errgroup, which is runner-internal parallelism and does
// not affect the one-file-in-flight guarantee of the extraction side.
type ObjectStoreRunner struct {
	Cfg    config.Config
	Logger *zap.SugaredLogger
	Tracer trace.Tracer
}

func NewObjectStoreRunner(
	cfg config.Config,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
) (*ObjectStoreRunner, error) {
	return &ObjectStoreRunner{Cfg: cfg, Logger: logger, Tracer: tracer}, nil
}

func (r *ObjectStoreRunner) Run(ctx context.Context, source Source) (Summary, error) {
	ctx, span := r.Tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("destination", "object_store"),
		attribute.String("source", source.Name()),
	))
	defer span.End()

	osCfg := r.Cfg.Pipeline.ObjectStore
	client, err := minio.New(osCfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(osCfg.AccessKey, osCfg.SecretKey, ""),
		Secure: osCfg.UseSSL,
		Region: osCfg.Region,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, osCfg.Bucket)
	if err != nil {
		return Summary{}, fmt.Errorf("bucket check: %w", err)
	}
	if !exists {
		return Summary{}, fmt.Errorf("bucket %s not found", osCfg.Bucket)
	}

	loadDate := time.Now().UTC().Format("2006-01-02")
	runID := fmt.Sprintf("run-%d", time.Now().UnixNano())

	uploads := osCfg.Uploads
	if uploads <= 0 {
		uploads = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploads)

	// Counted on upload success only, so the summary never claims parts
	// that were still in flight when an upload failed.
	var filesLoaded, rowsLoaded atomic.Int64
	var encodeErr error
	part := 0
	for batch := range source.Batches(ctx) {
		if len(batch.Rows) == 0 {
			continue
		}
		data, err := encodeParquet(batch)
		if err != nil {
			encodeErr = fmt.Errorf("encode %s: %w", batch.File, err)
			break
		}
		key := path.Join(
			osCfg.Prefix,
			source.Name(),
			fmt.Sprintf("dt=%s", loadDate),
			fmt.Sprintf("run=%s", runID),
			fmt.Sprintf("part-%06d.parquet", part),
		)
		part++

		rows := len(batch.Rows)
		file := batch.File
		g.Go(func() error {
			_, err := client.PutObject(gctx, osCfg.Bucket, key,
				bytes.NewReader(data), int64(len(data)),
				minio.PutObjectOptions{ContentType: "application/octet-stream"},
			)
			if err != nil {
				return fmt.Errorf("upload %s: %w", key, err)
			}
			filesLoaded.Add(1)
			rowsLoaded.Add(int64(rows))
			r.Logger.Infof("Appended %d rows from %s as %s", rows, file, key)
			return nil
		})
	}

	err = g.Wait()
	if encodeErr != nil {
		err = encodeErr
	}
	summary := Summary{
		FilesLoaded: int(filesLoaded.Load()),
		RowsLoaded:  rowsLoaded.Load(),
	}
	if err != nil {
		span.RecordError(err)
		return summary, err
	}
	r.Logger.Infof("Pipeline %s completed: %d files, %d rows into %s/%s",
		r.Cfg.Pipeline.Name, summary.FilesLoaded, summary.RowsLoaded,
		osCfg.Bucket, path.Join(osCfg.Prefix, source.Name()))
	return summary, ctx.Err()
}

func parquetType(kind columnKind) string {
	switch kind {
	case kindInt:
		return "INT64"
	case kindFloat:
		return "DOUBLE"
	case kindBool:
		return "BOOLEAN"
	default:
		return "BYTE_ARRAY, convertedtype=UTF8"
	}
}

// parquetSchema builds the runtime JSON schema the parquet writer needs,
// one OPTIONAL field per batch column.
func parquetSchema(batch models.Batch) string {
	kinds := columnKinds(batch)
	fields := make([]map[string]string, 0, len(batch.Columns))
	for _, col := range batch.Columns {
		fields = append(fields, map[string]string{
			"Tag": fmt.Sprintf("name=%s, type=%s, repetitiontype=OPTIONAL",
				col, parquetType(kinds[col])),
		})
	}
	out := map[string]any{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": fields,
	}
	b, _ := json.Marshal(out)
	return string(b)
}

func encodeParquet(batch models.Batch) ([]byte, error) {
	buf := &bytes.Buffer{}
	pfw := writerfile.NewWriterFile(buf)
	pw, err := writer.NewJSONWriter(parquetSchema(batch), pfw, 4)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range batch.Rows {
		out := make(map[string]any, len(batch.Columns))
		for _, col := range batch.Columns {
			switch v := row[col].(type) {
			case time.Time:
				out[col] = v.UTC().Format(time.RFC3339)
			default:
				out[col] = v
			}
		}
		line, err := json.Marshal(out)
		if err != nil {
			_ = pw.WriteStop()
			_ = pfw.Close()
			return nil, err
		}
		if err := pw.Write(string(line)); err != nil {
			_ = pw.WriteStop()
			_ = pfw.Close()
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = pfw.Close()
		return nil, err
	}
	if err := pfw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
