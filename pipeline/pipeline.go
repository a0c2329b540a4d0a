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

// Package pipeline moves planned trip files through fetch, normalize and
// write, either as three barrier-separated stages over a worker pool
// (Loader) or one file at a time into a single table (StreamLoader).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/arrowarc/tripload/integrations/download"
	"github.com/arrowarc/tripload/integrations/filesystem"
	"github.com/arrowarc/tripload/internal/arrio"
	"github.com/arrowarc/tripload/internal/ledger"
	"github.com/arrowarc/tripload/pkg/normalize"
	"github.com/arrowarc/tripload/pkg/schema"
	"github.com/arrowarc/tripload/pkg/sink"
	"github.com/arrowarc/tripload/pkg/tripdata"
	"go.uber.org/zap"
)

// ErrNothingFetched is returned by StreamLoader when no planned file could
// be fetched.
var ErrNothingFetched = errors.New("no data was fetched; check the date range and taxi types")

// Fetcher downloads one planned file. *download.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, d tripdata.SourceDescriptor) (download.RawFile, error)
}

// Recorder is told about every file at every stage. *ledger.Ledger
// implements it.
type Recorder interface {
	Record(ctx context.Context, e ledger.Entry) error
}

// SchemaFunc picks the output schema of a data type.
type SchemaFunc func(tripdata.DataType) (*schema.Schema, error)

// TransformError drops one file from the upload stage.
type TransformError struct {
	Descriptor tripdata.SourceDescriptor
	Err        error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s: %v", e.Descriptor.FileName, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// NormalizedFile is a transformed file ready for upload.
type NormalizedFile struct {
	Descriptor tripdata.SourceDescriptor
	Path       string
	Rows       int64
	Stats      normalize.Stats
}

// Constants returns the metadata columns stamped on every row of d.
// Schemas without the columns ignore them.
func Constants(d tripdata.SourceDescriptor) map[string]string {
	return map[string]string{
		schema.DataFileYear:  fmt.Sprint(d.Year),
		schema.DataFileMonth: fmt.Sprint(d.Month),
		schema.TaxiType:      d.DataType.String(),
	}
}

// NormalizeReader normalizes every record of src into dst and returns the
// number of rows written.
func NormalizeReader(ctx context.Context, mem memory.Allocator, dst arrio.Writer, src arrio.Reader, s *schema.Schema, opts normalize.Options) (int64, error) {
	return arrio.Transform(dst, src, func(rec arrow.Record) (arrow.Record, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return normalize.Normalize(ctx, mem, rec, s, opts)
	})
}

// TransformFile converts a raw download into a normalized Parquet file in
// outDir named after the descriptor key. A failed transform leaves no file
// behind.
func TransformFile(ctx context.Context, mem memory.Allocator, raw download.RawFile, s *schema.Schema, outDir string, chunkSize int) (NormalizedFile, error) {
	d := raw.Descriptor
	out := NormalizedFile{Descriptor: d, Path: filepath.Join(outDir, d.Key()+".parquet")}

	src, err := filesystem.OpenRaw(ctx, raw.Path, d.Format, chunkSize)
	if err != nil {
		return out, &TransformError{Descriptor: d, Err: err}
	}
	defer src.Close()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return out, &TransformError{Descriptor: d, Err: err}
	}
	dst, err := filesystem.NewParquetWriter(out.Path, s.ArrowSchema(), nil)
	if err != nil {
		return out, &TransformError{Descriptor: d, Err: err}
	}

	opts := normalize.Options{Constants: Constants(d), Stats: &out.Stats}
	rows, err := NormalizeReader(ctx, mem, dst, src, s, opts)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(out.Path)
		return out, &TransformError{Descriptor: d, Err: err}
	}
	out.Rows = rows
	return out, nil
}

// Uploader writes one normalized file to its destination.
type Uploader interface {
	Upload(ctx context.Context, f NormalizedFile) (sink.WriteResult, error)
}

// ObjectStore is a bucket taking whole files. *gcs.Client implements it.
type ObjectStore interface {
	ObjectName(localPath string) string
	Upload(ctx context.Context, localPath, object string, mode sink.WriteMode) (sink.WriteResult, error)
}

// ObjectUploader uploads normalized files as objects.
type ObjectUploader struct {
	Store ObjectStore
	Mode  sink.WriteMode
}

func (u ObjectUploader) Upload(ctx context.Context, f NormalizedFile) (sink.WriteResult, error) {
	res, err := u.Store.Upload(ctx, f.Path, u.Store.ObjectName(f.Path), u.Mode)
	res.Rows = f.Rows
	return res, err
}

func record(ctx context.Context, r Recorder, logger *zap.Logger, e ledger.Entry) {
	if r == nil {
		return
	}
	if err := r.Record(ctx, e); err != nil {
		logger.Warn("failed to record ledger entry", zap.String("file", e.File), zap.Error(err))
	}
}
