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

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/arrowarc/tripload/integrations/download"
	"github.com/arrowarc/tripload/integrations/filesystem"
	"github.com/arrowarc/tripload/internal/ledger"
	"github.com/arrowarc/tripload/pkg/normalize"
	"github.com/arrowarc/tripload/pkg/schema"
	"github.com/arrowarc/tripload/pkg/sink"
	"github.com/arrowarc/tripload/pkg/tripdata"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const greenCSV = "VendorID,lpep_pickup_datetime,lpep_dropoff_datetime,passenger_count,trip_distance,fare_amount,PULocationID\n" +
	"2,2019-01-01 00:10:16,2019-01-01 00:16:32,1,1.25,6.5,97\n" +
	"1,2019-01-01 00:27:11,2019-01-01 00:31:38,not-a-number,0.9,4.5,49\n"

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

// tripServer serves every requested csv.gz file except the missing ones,
// and garbage for the corrupt ones.
func tripServer(t *testing.T, missing, corrupt map[string]bool) *httptest.Server {
	t.Helper()
	body := gzipBytes(t, greenCSV)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Base(r.URL.Path)
		switch {
		case missing[name]:
			http.NotFound(w, r)
		case corrupt[name]:
			w.Write([]byte("definitely not gzip"))
		default:
			w.Write(body)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fakeUploader struct {
	mu    sync.Mutex
	files []NormalizedFile
	fail  string
}

func (u *fakeUploader) Upload(_ context.Context, f NormalizedFile) (sink.WriteResult, error) {
	target := sink.Target{Name: "gs://bucket/" + path.Base(f.Path), Mode: sink.Replace}
	if f.Descriptor.FileName == u.fail {
		return sink.WriteResult{Target: target}, errors.New("permission denied")
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.files = append(u.files, f)
	return sink.WriteResult{Target: target, Rows: f.Rows, Bytes: 100}, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []ledger.Entry
}

func (r *fakeRecorder) Record(_ context.Context, e ledger.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *fakeRecorder) count(stage ledger.Stage, status ledger.Status) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Stage == stage && e.Status == status {
			n++
		}
	}
	return n
}

func csvSource(base string) tripdata.Source {
	return tripdata.Source{BaseURL: base, Format: tripdata.CSVGzip, PerTypeDir: true}
}

func newLoader(t *testing.T, srv *httptest.Server, up Uploader, rec Recorder) *Loader {
	dir := t.TempDir()
	return &Loader{
		Fetcher:  download.NewFetcher(dir, srv.Client(), nil),
		Uploader: up,
		OutDir:   dir + "/parquet",
		Workers:  4,
		Recorder: rec,
		RunID:    "run-1",
	}
}

func TestLoaderLogsEachDownloadOnce(t *testing.T) {
	srv := tripServer(t, nil, nil)
	plan := tripdata.Plan(csvSource(srv.URL), []tripdata.DataType{tripdata.Green}, 2019, 2019)[:3]

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	l := newLoader(t, srv, &fakeUploader{}, nil)
	l.Fetcher = download.NewFetcher(t.TempDir(), srv.Client(), logger)
	l.Logger = logger

	_, err := l.Run(context.Background(), plan)
	require.NoError(t, err)

	downloading := logs.FilterMessage("downloading")
	require.Equal(t, len(plan), downloading.Len())
	for _, d := range plan {
		assert.Equal(t, 1, downloading.FilterField(zap.String("file", d.FileName)).Len(), d.FileName)
	}
}

func TestLoaderSkipsFailedFetch(t *testing.T) {
	srv := tripServer(t, map[string]bool{"green_tripdata_2019-03.csv.gz": true}, nil)
	plan := tripdata.Plan(csvSource(srv.URL), []tripdata.DataType{tripdata.Green}, 2019, 2019)
	require.Len(t, plan, 12)

	up := &fakeUploader{}
	rec := &fakeRecorder{}
	report, err := newLoader(t, srv, up, rec).Run(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, 12, report.Planned)
	assert.Equal(t, 11, report.Fetched)
	assert.Equal(t, 11, report.Transformed)
	assert.Equal(t, 11, report.Uploaded)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "green_tripdata_2019-03.csv.gz", report.Failures[0].File)
	assert.Equal(t, ledger.StageDownload, report.Failures[0].Stage)
	assert.Equal(t, int64(22), report.Rows())

	assert.Len(t, up.files, 11)
	assert.Equal(t, 1, rec.count(ledger.StageDownload, ledger.StatusFailed))
	assert.Equal(t, 11, rec.count(ledger.StageUpload, ledger.StatusOK))
	assert.Contains(t, report.JSON(), `"uploaded": 11`)
}

func TestLoaderDropsFailedTransform(t *testing.T) {
	srv := tripServer(t, nil, map[string]bool{"green_tripdata_2019-02.csv.gz": true})
	plan := tripdata.Plan(csvSource(srv.URL), []tripdata.DataType{tripdata.Green}, 2019, 2019)[:3]

	up := &fakeUploader{}
	l := newLoader(t, srv, up, nil)
	report, err := l.Run(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Fetched)
	assert.Equal(t, 2, report.Transformed)
	assert.Equal(t, 2, report.Uploaded)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, ledger.StageTransform, report.Failures[0].Stage)

	_, statErr := os.Stat(l.OutDir + "/green_tripdata_2019-02.parquet")
	assert.True(t, os.IsNotExist(statErr), "a failed transform leaves no output file")

	names := make([]string, 0, len(up.files))
	for _, f := range up.files {
		names = append(names, f.Descriptor.Key())
	}
	sort.Strings(names)
	assert.Equal(t, []string{"green_tripdata_2019-01", "green_tripdata_2019-03"}, names)
}

func TestLoaderAbortsOnUploadError(t *testing.T) {
	srv := tripServer(t, nil, nil)
	plan := tripdata.Plan(csvSource(srv.URL), []tripdata.DataType{tripdata.Green}, 2019, 2019)[:4]

	up := &fakeUploader{fail: "green_tripdata_2019-02.csv.gz"}
	report, err := newLoader(t, srv, up, nil).Run(context.Background(), plan)
	require.Error(t, err)

	var we *sink.WriteError
	require.True(t, errors.As(err, &we))
	assert.ErrorContains(t, err, "permission denied")
	assert.Zero(t, report.Uploaded)
}

func TestLoaderNormalizesOutput(t *testing.T) {
	srv := tripServer(t, nil, nil)
	plan := tripdata.Plan(csvSource(srv.URL), []tripdata.DataType{tripdata.Green}, 2020, 2020)[:1]

	up := &fakeUploader{}
	_, err := newLoader(t, srv, up, nil).Run(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, up.files, 1)

	f := up.files[0]
	assert.Equal(t, int64(2), f.Rows)
	assert.Equal(t, 1, f.Stats.Coerced["passenger_count"])

	r, err := filesystem.NewParquetReader(context.Background(), f.Path, nil)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, schema.Green.Names(), fieldNames(r.Schema()))

	rec, err := r.Read()
	require.NoError(t, err)
	defer rec.Release()
	year := rec.Column(rec.Schema().FieldIndices(schema.DataFileYear)[0])
	assert.Equal(t, "2020", year.ValueStr(0))
}

func fieldNames(s *arrow.Schema) []string {
	names := make([]string, 0, s.NumFields())
	for _, f := range s.Fields() {
		names = append(names, f.Name)
	}
	return names
}

type memSink struct {
	mu       sync.Mutex
	prepared int
	prepErr  error
	rows     int64
	failAt   int
	writes   int
}

func (s *memSink) Prepare(context.Context, sink.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prepared++
	return s.prepErr
}

func (s *memSink) Write(_ context.Context, target sink.Target, rec arrow.Record) (sink.WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.failAt > 0 && s.writes == s.failAt {
		return sink.WriteResult{Target: target}, errors.New("connection reset")
	}
	s.rows += rec.NumRows()
	return sink.WriteResult{Target: target, Rows: rec.NumRows()}, nil
}

func (s *memSink) Close() error { return nil }

func TestTableUploaderPreparesOnce(t *testing.T) {
	srv := tripServer(t, nil, nil)
	plan := tripdata.Plan(csvSource(srv.URL), []tripdata.DataType{tripdata.Green}, 2019, 2019)

	ms := &memSink{}
	session := sink.NewSession(ms, sink.Target{Name: "green_tripdata", Mode: sink.Replace, Schema: schema.Green})
	report, err := newLoader(t, srv, &TableUploader{Session: session, ChunkSize: 1}, nil).Run(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, 1, ms.prepared, "replace must run once per run, not once per file")
	assert.Equal(t, int64(24), ms.rows)
	assert.Equal(t, 24, ms.writes, "chunk size 1 should write row by row")
	assert.Equal(t, int64(24), session.Rows())
	assert.Equal(t, int64(24), report.Rows())
	assert.Positive(t, report.Metrics.TotalBytes)
}

func newStreamLoader(t *testing.T, srv *httptest.Server, ms *memSink) (*StreamLoader, *memory.CheckedAllocator) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	return &StreamLoader{
		Fetcher: download.NewFetcher(t.TempDir(), srv.Client(), nil),
		Session: sink.NewSession(ms, sink.Target{Name: "ingestion.trips", Mode: sink.Append, Schema: schema.Window}),
		Schema:  schema.Window,
		Mem:     mem,
	}, mem
}

func TestStreamLoaderSkipsFailedFetch(t *testing.T) {
	srv := tripServer(t, map[string]bool{"green_tripdata_2019-02.csv.gz": true}, nil)
	start, end := mustDate(t, "2019-01-15"), mustDate(t, "2019-03-01")
	plan := tripdata.PlanWindow(csvSource(srv.URL), []tripdata.DataType{tripdata.Green}, start, end)
	require.Len(t, plan, 3)

	ms := &memSink{}
	l, mem := newStreamLoader(t, srv, ms)
	defer mem.AssertSize(t, 0)
	rec := &fakeRecorder{}
	l.Recorder = rec

	report, err := l.Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Fetched)
	assert.Equal(t, 2, report.Uploaded)
	assert.Equal(t, int64(4), ms.rows)
	assert.Equal(t, 1, ms.prepared)
	assert.Equal(t, 1, rec.count(ledger.StageDownload, ledger.StatusFailed))
	assert.Equal(t, 2, rec.count(ledger.StageUpload, ledger.StatusOK))
}

func TestStreamLoaderNothingFetched(t *testing.T) {
	srv := tripServer(t, map[string]bool{"green_tripdata_2019-01.csv.gz": true}, nil)
	plan := tripdata.Plan(csvSource(srv.URL), []tripdata.DataType{tripdata.Green}, 2019, 2019)[:1]

	ms := &memSink{}
	l, _ := newStreamLoader(t, srv, ms)
	_, err := l.Run(context.Background(), plan)
	assert.ErrorIs(t, err, ErrNothingFetched)
	assert.Zero(t, ms.prepared)

	_, err = l.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNothingFetched)
}

func headerOnlyServer(t *testing.T) *httptest.Server {
	t.Helper()
	body := gzipBytes(t, "VendorID,lpep_pickup_datetime,fare_amount\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStreamLoaderReplacesWithoutRows(t *testing.T) {
	srv := headerOnlyServer(t)
	plan := tripdata.Plan(csvSource(srv.URL), []tripdata.DataType{tripdata.Green}, 2019, 2019)[:2]

	ms := &memSink{}
	l, mem := newStreamLoader(t, srv, ms)
	defer mem.AssertSize(t, 0)
	l.Session = sink.NewSession(ms, sink.Target{Name: "green_tripdata", Mode: sink.Replace, Schema: schema.Green})
	l.Schema = schema.Green

	report, err := l.Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Fetched)
	assert.Equal(t, 1, ms.prepared, "an empty month still replaces the table")
	assert.Zero(t, ms.writes)
}

func TestStreamLoaderPrepareErrorAborts(t *testing.T) {
	srv := tripServer(t, nil, nil)
	plan := tripdata.Plan(csvSource(srv.URL), []tripdata.DataType{tripdata.Green}, 2019, 2019)[:2]

	ms := &memSink{prepErr: errors.New("permission denied for schema ingestion")}
	l, _ := newStreamLoader(t, srv, ms)

	report, err := l.Run(context.Background(), plan)
	var we *sink.WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, 1, report.Fetched)
	assert.Zero(t, ms.writes)
}

func TestDrainEmptySourceReplaces(t *testing.T) {
	path := t.TempDir() + "/taxi_zone_lookup.csv"
	require.NoError(t, os.WriteFile(path, []byte("LocationID,Borough,Zone,service_zone\n"), 0o644))

	r, err := filesystem.NewCSVReader(context.Background(), path, filesystem.CSVReadOptions{})
	require.NoError(t, err)
	defer r.Close()

	ms := &memSink{}
	session := sink.NewSession(ms, sink.Target{Name: schema.Zones.Name, Mode: sink.Replace, Schema: schema.Zones})
	rows, err := Drain(context.Background(), nil, session, schema.Zones, r, normalize.Options{})
	require.NoError(t, err)
	assert.Zero(t, rows)
	assert.Equal(t, 1, ms.prepared)
	assert.Zero(t, ms.writes)
}

func TestStreamLoaderWriteErrorAborts(t *testing.T) {
	srv := tripServer(t, nil, nil)
	plan := tripdata.Plan(csvSource(srv.URL), []tripdata.DataType{tripdata.Green}, 2019, 2019)[:3]

	ms := &memSink{failAt: 2}
	l, mem := newStreamLoader(t, srv, ms)
	defer mem.AssertSize(t, 0)

	report, err := l.Run(context.Background(), plan)
	var we *sink.WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, "ingestion.trips", we.Target.Name)
	assert.Equal(t, 1, report.Uploaded)
	assert.Equal(t, 2, report.Fetched, "the third file is never fetched")
}

func TestStreamLoaderStampsTaxiType(t *testing.T) {
	srv := tripServer(t, nil, nil)
	plan := tripdata.Plan(csvSource(srv.URL), []tripdata.DataType{tripdata.Green}, 2019, 2019)[:1]

	var got []string
	ms := &inspectSink{fn: func(rec arrow.Record) {
		col := rec.Column(rec.Schema().FieldIndices(schema.TaxiType)[0])
		for i := 0; i < col.Len(); i++ {
			got = append(got, col.ValueStr(i))
		}
	}}
	l := &StreamLoader{
		Fetcher: download.NewFetcher(t.TempDir(), srv.Client(), nil),
		Session: sink.NewSession(ms, sink.Target{Name: "trips", Mode: sink.Append, Schema: schema.Window}),
		Schema:  schema.Window,
	}
	_, err := l.Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, []string{"green", "green"}, got)
}

type inspectSink struct {
	fn func(arrow.Record)
}

func (s *inspectSink) Prepare(context.Context, sink.Target) error { return nil }
func (s *inspectSink) Write(_ context.Context, target sink.Target, rec arrow.Record) (sink.WriteResult, error) {
	s.fn(rec)
	return sink.WriteResult{Target: target, Rows: rec.NumRows()}, nil
}
func (s *inspectSink) Close() error { return nil }

func TestObjectUploader(t *testing.T) {
	store := &fakeStore{}
	u := ObjectUploader{Store: store, Mode: sink.Replace}
	res, err := u.Upload(context.Background(), NormalizedFile{Path: "/tmp/out/yellow_tripdata_2019-01.parquet", Rows: 7})
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.Rows)
	assert.Equal(t, "parquet/yellow_tripdata_2019-01.parquet", store.object)
	assert.Equal(t, sink.Replace, store.mode)
}

type fakeStore struct {
	object string
	mode   sink.WriteMode
}

func (s *fakeStore) ObjectName(localPath string) string { return "parquet/" + path.Base(localPath) }
func (s *fakeStore) Upload(_ context.Context, _, object string, mode sink.WriteMode) (sink.WriteResult, error) {
	s.object, s.mode = object, mode
	return sink.WriteResult{Target: sink.Target{Name: fmt.Sprintf("gs://b/%s", object), Mode: mode}}, nil
}

func TestTransformErrorUnwraps(t *testing.T) {
	d := tripdata.NewDescriptor(csvSource("http://x/"), tripdata.FHV, 2019, 1)
	err := error(&TransformError{Descriptor: d, Err: filesystem.ErrEmptyFile})
	assert.ErrorIs(t, err, filesystem.ErrEmptyFile)
	assert.True(t, strings.HasPrefix(err.Error(), "transform fhv_tripdata_2019-01.csv.gz"))
}
