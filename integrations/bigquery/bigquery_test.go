// --------------------------------------------------------------------------------
// Author: Thomas F McGeehan V
//
// This file is part of a software project developed by Thomas F McGeehan V.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
// For more information about the MIT License, please visit:
// https://opensource.org/licenses/MIT
//
// Acknowledgment appreciated but not required.
// --------------------------------------------------------------------------------

package bigquery

import (
	"context"
	"errors"
	"os"
	"regexp"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/arrowarc/tripload/pkg/schema"
	"github.com/arrowarc/tripload/pkg/sink"
	"github.com/arrowarc/tripload/pkg/tripdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableName(t *testing.T) {
	assert.Equal(t, "yellow_tripdata", TableName(tripdata.Yellow))
	assert.Equal(t, "green_tripdata", TableName(tripdata.Green))
	assert.Equal(t, "stg_fhv_tripdata", TableName(tripdata.FHV))
}

func TestParquetWildcard(t *testing.T) {
	assert.Equal(t, "gs://taxi-data/parquet/yellow_tripdata_*.parquet", ParquetWildcard("taxi-data", "parquet", tripdata.Yellow))
	assert.Equal(t, "gs://taxi-data/fhv_tripdata_*.parquet", ParquetWildcard("taxi-data", "", tripdata.FHV))
}

func TestWriteDisposition(t *testing.T) {
	d, err := WriteDisposition(sink.Replace)
	require.NoError(t, err)
	assert.Equal(t, bigquery.WriteTruncate, d)

	d, err = WriteDisposition(sink.Append)
	require.NoError(t, err)
	assert.Equal(t, bigquery.WriteAppend, d)

	_, err = WriteDisposition(sink.Merge)
	assert.True(t, errors.Is(err, sink.ErrUnsupportedMode))
}

func TestUniqueName(t *testing.T) {
	name, err := UniqueName("tripload-test")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^tripload_test_[a-f0-9_]{36}$`), name)
}

func TestLoadParquet(t *testing.T) {
	if os.Getenv("CI") == "true" {
		t.Skip("Skipping BigQuery test in CI environment")
	}
	project := os.Getenv("BQ_PROJECT")
	uri := os.Getenv("BQ_TEST_PARQUET_URI")
	if project == "" || uri == "" {
		t.Skip("BQ_PROJECT and BQ_TEST_PARQUET_URI not set")
	}

	ctx := context.Background()
	dataset, err := UniqueName("tripload_test")
	require.NoError(t, err)

	l, err := NewLoader(ctx, Config{Project: project, Dataset: dataset, CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")}, nil)
	require.NoError(t, err, "Error should be nil when creating BigQuery loader")
	defer l.Close()
	defer l.client.Dataset(dataset).DeleteWithContents(ctx)

	require.NoError(t, l.EnsureDataset(ctx))
	require.NoError(t, l.EnsureDataset(ctx), "ensuring an existing dataset should be a no-op")

	res, err := l.LoadParquet(ctx, "yellow_tripdata", uri, schema.Yellow, sink.Replace)
	require.NoError(t, err)
	assert.Positive(t, res.Rows)
}
