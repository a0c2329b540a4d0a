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

package gcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/arrowarc/tripload/pkg/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestObjectNameAndURI(t *testing.T) {
	assert.Equal(t, "parquet/yellow_tripdata_2019-01.parquet", objectName("parquet", "/tmp/data/parquet/yellow_tripdata_2019-01.parquet"))
	assert.Equal(t, "fhv_tripdata_2019-01.parquet", objectName("", "fhv_tripdata_2019-01.parquet"))
	assert.Equal(t, "gs://taxi-data/parquet/a.parquet", URI("taxi-data", "parquet/a.parquet"))
}

func TestIsStatus(t *testing.T) {
	err := fmt.Errorf("lookup: %w", &googleapi.Error{Code: 403})
	assert.True(t, isStatus(err, 403))
	assert.False(t, isStatus(err, 404))
	assert.False(t, isStatus(errors.New("plain"), 403))
}

func TestUploadMergeUnsupported(t *testing.T) {
	c, err := NewClient(context.Background(), Config{Bucket: "taxi-data", Endpoint: "http://127.0.0.1:1/storage/v1/"}, nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Upload(context.Background(), "missing.parquet", "parquet/missing.parquet", sink.Merge)
	var we *sink.WriteError
	require.True(t, errors.As(err, &we))
	assert.ErrorIs(t, err, sink.ErrUnsupportedMode)
	assert.Equal(t, "gs://taxi-data/parquet/missing.parquet", we.Target.Name)
}

func TestUploadReplace(t *testing.T) {
	if os.Getenv("CI") == "true" {
		t.Skip("Skipping GCS test in CI environment")
	}
	bucket := os.Getenv("GCS_BUCKET")
	creds := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	if bucket == "" || creds == "" {
		t.Skip("GCS_BUCKET and GOOGLE_APPLICATION_CREDENTIALS not set")
	}

	ctx := context.Background()
	c, err := NewClient(ctx, Config{Bucket: bucket, CredentialsFile: creds, Prefix: "tripload-test"}, nil)
	require.NoError(t, err, "Error should be nil when creating GCS client")
	defer c.Close()

	local := filepath.Join(t.TempDir(), "zones.parquet")
	require.NoError(t, os.WriteFile(local, []byte("PAR1"), 0o644))

	object := c.ObjectName(local)
	for i := 0; i < 2; i++ {
		res, err := c.Upload(ctx, local, object, sink.Replace)
		require.NoError(t, err, "replace should overwrite an existing object")
		assert.Equal(t, int64(4), res.Bytes)
	}

	_, err = c.Upload(ctx, local, object, sink.Append)
	assert.Error(t, err, "append must not overwrite an existing object")
}
