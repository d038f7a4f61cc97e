package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/datapipes/nyc-taxi-ingest/internal/config"
	"github.com/datapipes/nyc-taxi-ingest/internal/models"
)

func objectStoreConfig(endpoint string) config.Config {
	cfg := config.Config{}
	cfg.Pipeline.Name = "nyc_taxi_pipeline"
	cfg.Pipeline.Destination = "object_store"
	cfg.Pipeline.ObjectStore.Endpoint = strings.TrimPrefix(endpoint, "http://")
	cfg.Pipeline.ObjectStore.AccessKey = "test"
	cfg.Pipeline.ObjectStore.SecretKey = "test"
	cfg.Pipeline.ObjectStore.Bucket = "warehouse"
	cfg.Pipeline.ObjectStore.Prefix = "nyc_taxi_data"
	cfg.Pipeline.ObjectStore.Region = "us-east-1"
	cfg.Pipeline.ObjectStore.Uploads = 1
	return cfg
}

func objectStoreRunner(t *testing.T, endpoint string) *ObjectStoreRunner {
	t.Helper()
	r, err := NewObjectStoreRunner(objectStoreConfig(endpoint),
		tracenoop.NewTracerProvider().Tracer("test"),
		zap.NewNop().Sugar(),
	)
	require.NoError(t, err)
	return r
}

func rowBatch(file string, vendor int64) models.Batch {
	return models.Batch{
		File:    file,
		Columns: []string{"VendorID", "total_amount"},
		Rows:    []models.Row{{"VendorID": vendor, "total_amount": 15.50}},
	}
}

func TestObjectStoreRunUploadsAllParts(t *testing.T) {
	var mu sync.Mutex
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusOK)
		case http.MethodPut:
			mu.Lock()
			keys = append(keys, r.URL.Path)
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	src := &fakeSource{name: "yellow_tripdata", batches: []models.Batch{
		rowBatch("yellow_tripdata_2023-01.csv.gz", 1),
		rowBatch("yellow_tripdata_2023-02.csv.gz", 2),
	}}

	summary, err := objectStoreRunner(t, srv.URL).Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.FilesLoaded)
	assert.Equal(t, int64(2), summary.RowsLoaded)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, keys, 2)
	assert.Contains(t, keys[0], "/warehouse/nyc_taxi_data/yellow_tripdata/dt=")
	assert.Contains(t, keys[0], "part-000000.parquet")
	assert.Contains(t, keys[1], "part-000001.parquet")
}

func TestObjectStoreRunSummaryCountsOnlyUploadedParts(t *testing.T) {
	var mu sync.Mutex
	puts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusOK)
		case http.MethodPut:
			mu.Lock()
			puts++
			n := puts
			mu.Unlock()
			if n > 1 {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	src := &fakeSource{name: "yellow_tripdata", batches: []models.Batch{
		rowBatch("yellow_tripdata_2023-01.csv.gz", 1),
		rowBatch("yellow_tripdata_2023-02.csv.gz", 2),
		rowBatch("yellow_tripdata_2023-03.csv.gz", 3),
	}}

	summary, err := objectStoreRunner(t, srv.URL).Run(context.Background(), src)
	require.Error(t, err)
	assert.Equal(t, 1, summary.FilesLoaded)
	assert.Equal(t, int64(1), summary.RowsLoaded)
}

func TestObjectStoreRunMissingBucket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := objectStoreRunner(t, srv.URL).Run(context.Background(), &fakeSource{name: "s"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
