package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/datapipes/nyc-taxi-ingest/internal/config"
	"github.com/datapipes/nyc-taxi-ingest/internal/models"
)

// PostgresRunner appends batches into a warehouse table named after the
// source via COPY. The table is created from the first batch's inferred
// column types; columns a later file introduces are added on the fly.
// Rows are never updated or deleted.
type PostgresRunner struct {
	Cfg    config.Config
	Logger *zap.SugaredLogger
	Tracer trace.Tracer
}

func NewPostgresRunner(
	cfg config.Config,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
) (*PostgresRunner, error) {
	return &PostgresRunner{Cfg: cfg, Logger: logger, Tracer: tracer}, nil
}

func sqlType(kind columnKind) string {
	switch kind {
	case kindInt:
		return "BIGINT"
	case kindFloat:
		return "DOUBLE PRECISION"
	case kindBool:
		return "BOOLEAN"
	case kindTime:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

func (r *PostgresRunner) Run(ctx context.Context, source Source) (Summary, error) {
	ctx, span := r.Tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("destination", "postgres"),
		attribute.String("source", source.Name()),
	))
	defer span.End()

	pool, err := pgxpool.New(ctx, r.Cfg.Pipeline.Postgres.DSN)
	if err != nil {
		return Summary{}, fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	table := source.Name()
	known := map[string]bool{}
	var summary Summary

	for batch := range source.Batches(ctx) {
		if len(batch.Rows) == 0 {
			continue
		}
		if err := r.ensureColumns(ctx, pool, table, batch, known); err != nil {
			span.RecordError(err)
			return summary, err
		}

		rows := make([][]any, len(batch.Rows))
		for i, row := range batch.Rows {
			vals := make([]any, len(batch.Columns))
			for j, col := range batch.Columns {
				vals[j] = row[col]
			}
			rows[i] = vals
		}

		copied, err := pool.CopyFrom(ctx,
			pgx.Identifier{table},
			batch.Columns,
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			span.RecordError(err)
			return summary, fmt.Errorf("copy %s into %s: %w", batch.File, table, err)
		}

		summary.FilesLoaded++
		summary.RowsLoaded += copied
		r.Logger.Infof("Appended %d rows from %s into %s", copied, batch.File, table)
	}

	r.Logger.Infof("Pipeline %s completed: %d files, %d rows into %s",
		r.Cfg.Pipeline.Name, summary.FilesLoaded, summary.RowsLoaded, table)
	return summary, ctx.Err()
}

// ensureColumns creates the table on first use and widens it when a batch
// carries columns not seen before. Types come from the batch's inferred
// cell types.
func (r *PostgresRunner) ensureColumns(
	ctx context.Context,
	pool *pgxpool.Pool,
	table string,
	batch models.Batch,
	known map[string]bool,
) error {
	kinds := columnKinds(batch)

	if len(known) == 0 {
		defs := make([]string, len(batch.Columns))
		for i, col := range batch.Columns {
			defs[i] = fmt.Sprintf("%s %s", pgx.Identifier{col}.Sanitize(), sqlType(kinds[col]))
		}
		ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
			pgx.Identifier{table}.Sanitize(), strings.Join(defs, ", "))
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}
		r.Logger.Debugf("Ensured table %s with %d columns", table, len(batch.Columns))
		for _, col := range batch.Columns {
			known[col] = true
		}
		return nil
	}

	for _, col := range batch.Columns {
		if known[col] {
			continue
		}
		ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s",
			pgx.Identifier{table}.Sanitize(),
			pgx.Identifier{col}.Sanitize(),
			sqlType(kinds[col]))
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("add column %s to %s: %w", col, table, err)
		}
		r.Logger.Debugf("Added column %s to %s", col, table)
		known[col] = true
	}
	return nil
}
