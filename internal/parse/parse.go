package parse

import (
	"bytes"
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	acsv "github.com/apache/arrow/go/v18/arrow/csv"

	"github.com/datapipes/nyc-taxi-ingest/internal/models"
)

// Batch decompresses a gzip csv archive and parses it into one row batch.
// The first line is the header; column types are inferred by the reader,
// no schema is supplied. Rows keep file order, keys keep header order via
// Batch.Columns. Any gzip or CSV failure is returned for the caller to
// log and skip; a reader panic is converted to an error the same way so a
// bad file never takes down the run.
func Batch(name string, raw []byte) (batch models.Batch, err error) {
	defer func() {
		if r := recover(); r != nil {
			batch = models.Batch{}
			err = fmt.Errorf("parse %s: %v", name, r)
		}
	}()

	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return models.Batch{}, fmt.Errorf("decompress %s: %w", name, err)
	}
	defer gz.Close()

	data, err := io.ReadAll(gz)
	if err != nil {
		return models.Batch{}, fmt.Errorf("decompress %s: %w", name, err)
	}

	batch = models.Batch{File: name}

	// The inferring reader requires at least one data row. A header-only
	// month file is still valid input and yields an empty batch with its
	// column names.
	if body := bytes.TrimRight(data, "\r\n"); bytes.IndexByte(body, '\n') < 0 {
		cols, err := csv.NewReader(bytes.NewReader(body)).Read()
		if err != nil && err != io.EOF {
			return models.Batch{}, fmt.Errorf("parse %s: %w", name, err)
		}
		batch.Columns = cols
		return batch, nil
	}

	rdr := acsv.NewInferringReader(bytes.NewReader(data),
		acsv.WithHeader(true),
		acsv.WithChunk(4096),
		acsv.WithNullReader(true, ""),
	)
	defer rdr.Release()

	for rdr.Next() {
		rec := rdr.Record()
		if batch.Columns == nil {
			for _, field := range rec.Schema().Fields() {
				batch.Columns = append(batch.Columns, field.Name)
			}
		}
		for i := range int(rec.NumRows()) {
			row := make(models.Row, len(batch.Columns))
			for j, col := range batch.Columns {
				row[col] = cellValue(rec.Column(j), i)
			}
			batch.Rows = append(batch.Rows, row)
		}
	}
	if err := rdr.Err(); err != nil {
		return models.Batch{}, fmt.Errorf("parse %s: %w", name, err)
	}
	return batch, nil
}

// cellValue narrows the inferred arrow column types down to the handful of
// Go types a row mapping carries.
func cellValue(col arrow.Array, i int) any {
	if col.IsNull(i) {
		return nil
	}
	switch c := col.(type) {
	case *array.Boolean:
		return c.Value(i)
	case *array.Int8:
		return int64(c.Value(i))
	case *array.Int16:
		return int64(c.Value(i))
	case *array.Int32:
		return int64(c.Value(i))
	case *array.Int64:
		return c.Value(i)
	case *array.Uint8:
		return int64(c.Value(i))
	case *array.Uint16:
		return int64(c.Value(i))
	case *array.Uint32:
		return int64(c.Value(i))
	case *array.Uint64:
		return int64(c.Value(i))
	case *array.Float32:
		return float64(c.Value(i))
	case *array.Float64:
		return c.Value(i)
	case *array.String:
		return c.Value(i)
	case *array.LargeString:
		return c.Value(i)
	case *array.Date32:
		return c.Value(i).ToTime()
	case *array.Timestamp:
		unit := c.DataType().(*arrow.TimestampType).Unit
		return c.Value(i).ToTime(unit)
	default:
		return col.ValueStr(i)
	}
}
