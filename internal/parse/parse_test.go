package parse

import (
	"bytes"
	"compress/gzip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipCSV(t *testing.T, csv string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(csv))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestBatchInfersColumnTypes(t *testing.T) {
	raw := gzipCSV(t, "VendorID,total_amount\n1,15.50\n")

	batch, err := Batch("yellow_tripdata_2023-01.csv.gz", raw)
	require.NoError(t, err)

	assert.Equal(t, "yellow_tripdata_2023-01.csv.gz", batch.File)
	assert.Equal(t, []string{"VendorID", "total_amount"}, batch.Columns)
	require.Len(t, batch.Rows, 1)
	assert.Equal(t, int64(1), batch.Rows[0]["VendorID"])
	assert.Equal(t, 15.50, batch.Rows[0]["total_amount"])
}

func TestBatchPreservesRowOrder(t *testing.T) {
	raw := gzipCSV(t, "trip_id,fare\n10,1.0\n20,2.0\n30,3.0\n")

	batch, err := Batch("f", raw)
	require.NoError(t, err)

	require.Len(t, batch.Rows, 3)
	assert.Equal(t, int64(10), batch.Rows[0]["trip_id"])
	assert.Equal(t, int64(20), batch.Rows[1]["trip_id"])
	assert.Equal(t, int64(30), batch.Rows[2]["trip_id"])
}

func TestBatchStringAndNullCells(t *testing.T) {
	raw := gzipCSV(t, "zone,note\nQueens,ok\nBronx,\n")

	batch, err := Batch("f", raw)
	require.NoError(t, err)

	require.Len(t, batch.Rows, 2)
	assert.Equal(t, "Queens", batch.Rows[0]["zone"])
	assert.Equal(t, "ok", batch.Rows[0]["note"])
	assert.Nil(t, batch.Rows[1]["note"])
}

func TestBatchHeaderOnly(t *testing.T) {
	batch, err := Batch("f", gzipCSV(t, "VendorID,total_amount\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"VendorID", "total_amount"}, batch.Columns)
	assert.Empty(t, batch.Rows)

	// Same with a CRLF header and with a completely empty file
	batch, err = Batch("f", gzipCSV(t, "VendorID,total_amount\r\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"VendorID", "total_amount"}, batch.Columns)
	assert.Empty(t, batch.Rows)

	batch, err = Batch("f", gzipCSV(t, ""))
	require.NoError(t, err)
	assert.Empty(t, batch.Columns)
	assert.Empty(t, batch.Rows)
}

func TestBatchInvalidGzip(t *testing.T) {
	_, err := Batch("broken.csv.gz", []byte("this is not gzip data"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.csv.gz")
}

func TestBatchTruncatedGzip(t *testing.T) {
	raw := gzipCSV(t, "a,b\n1,2\n3,4\n")
	_, err := Batch("truncated.csv.gz", raw[:len(raw)/2])
	assert.Error(t, err)
}

func TestBatchDeterministic(t *testing.T) {
	raw := gzipCSV(t, "VendorID,total_amount\n1,15.50\n2,7.25\n")

	a, err := Batch("f", raw)
	require.NoError(t, err)
	b, err := Batch("f", raw)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
