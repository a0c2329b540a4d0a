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
	"context"
	"errors"

	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/arrowarc/tripload/integrations/download"
	"github.com/arrowarc/tripload/internal/ledger"
	"github.com/arrowarc/tripload/pkg/schema"
	"github.com/arrowarc/tripload/pkg/sink"
	"github.com/arrowarc/tripload/pkg/tripdata"
	"go.uber.org/zap"
)

// Loader runs a plan as three stages. Every download finishes before any
// transform starts, and every transform before any upload. Failed fetches
// and transforms drop their file; the first failed upload aborts the run.
type Loader struct {
	Fetcher  Fetcher
	Uploader Uploader
	// Schemas defaults to schema.ForDataType.
	Schemas SchemaFunc
	// OutDir receives the normalized Parquet files.
	OutDir    string
	Workers   int
	ChunkSize int
	Mem       memory.Allocator
	Logger    *zap.Logger
	Recorder  Recorder
	RunID     string
}

// Run loads plan and returns what happened. A non-nil error is always a
// *sink.WriteError or a context error; the report is filled either way.
func (l *Loader) Run(ctx context.Context, plan []tripdata.SourceDescriptor) (*Report, error) {
	logger := l.logger()
	report := newReport(l.RunID, len(plan))
	defer report.Metrics.Finish()

	raws := l.download(ctx, plan, report)
	if err := ctx.Err(); err != nil {
		return report, err
	}
	files := l.transform(ctx, raws, report)
	if err := ctx.Err(); err != nil {
		return report, err
	}

	_, err := RunStageFailFast(ctx, l.Workers, files, func(ctx context.Context, f NormalizedFile) (sink.WriteResult, error) {
		res, err := l.Uploader.Upload(ctx, f)
		entry := ledger.Entry{RunID: l.RunID, File: f.Descriptor.Key(), Stage: ledger.StageUpload, Rows: res.Rows, Bytes: res.Bytes}
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, context.Canceled) {
				// another upload failed first
				return res, err
			}
			entry.Status, entry.Error = ledger.StatusFailed, err.Error()
			record(context.WithoutCancel(ctx), l.Recorder, logger, entry)
			logger.Error("upload failed", zap.String("file", f.Descriptor.FileName), zap.Error(err))
			var we *sink.WriteError
			if !errors.As(err, &we) {
				err = &sink.WriteError{Target: res.Target, Err: err}
			}
			return res, err
		}
		entry.Status = ledger.StatusOK
		record(ctx, l.Recorder, logger, entry)
		report.Metrics.Add(res.Rows, res.Bytes)
		logger.Info("uploaded", zap.String("file", f.Descriptor.FileName), zap.String("target", res.Target.Name), zap.Int64("rows", res.Rows))
		return res, nil
	})
	if err != nil {
		return report, err
	}
	report.Uploaded = len(files)
	return report, nil
}

func (l *Loader) download(ctx context.Context, plan []tripdata.SourceDescriptor, report *Report) []download.RawFile {
	logger := l.logger()
	outcomes := RunStage(ctx, l.Workers, plan, func(ctx context.Context, d tripdata.SourceDescriptor) (download.RawFile, error) {
		logger.Info("downloading", zap.String("file", d.FileName), zap.String("url", d.URL))
		return l.Fetcher.Fetch(ctx, d)
	})

	raws := make([]download.RawFile, 0, len(outcomes))
	for i, o := range outcomes {
		d := plan[i]
		entry := ledger.Entry{RunID: l.RunID, File: d.Key(), Stage: ledger.StageDownload}
		if o.Err != nil {
			logger.Warn("skipping file", zap.String("url", d.URL), zap.Error(o.Err))
			report.fail(d.FileName, ledger.StageDownload, o.Err)
			entry.Status, entry.Error = ledger.StatusFailed, o.Err.Error()
			record(ctx, l.Recorder, logger, entry)
			continue
		}
		entry.Status, entry.Bytes, entry.Checksum = ledger.StatusOK, o.Value.Bytes, o.Value.Checksum
		if o.Value.Reused {
			entry.Status = ledger.StatusSkipped
		}
		record(ctx, l.Recorder, logger, entry)
		raws = append(raws, o.Value)
	}
	report.Fetched = len(raws)
	return raws
}

func (l *Loader) transform(ctx context.Context, raws []download.RawFile, report *Report) []NormalizedFile {
	logger := l.logger()
	schemas := l.Schemas
	if schemas == nil {
		schemas = schema.ForDataType
	}

	outcomes := RunStage(ctx, l.Workers, raws, func(ctx context.Context, raw download.RawFile) (NormalizedFile, error) {
		logger.Info("transforming", zap.String("file", raw.Descriptor.FileName))
		s, err := schemas(raw.Descriptor.DataType)
		if err != nil {
			return NormalizedFile{Descriptor: raw.Descriptor}, &TransformError{Descriptor: raw.Descriptor, Err: err}
		}
		return TransformFile(ctx, l.Mem, raw, s, l.OutDir, l.ChunkSize)
	})

	files := make([]NormalizedFile, 0, len(outcomes))
	for i, o := range outcomes {
		d := raws[i].Descriptor
		entry := ledger.Entry{RunID: l.RunID, File: d.Key(), Stage: ledger.StageTransform}
		if o.Err != nil {
			logger.Error("transform failed, file excluded from upload", zap.String("file", d.FileName), zap.Error(o.Err))
			report.fail(d.FileName, ledger.StageTransform, o.Err)
			entry.Status, entry.Error = ledger.StatusFailed, o.Err.Error()
			record(ctx, l.Recorder, logger, entry)
			continue
		}
		if n := o.Value.Stats.FilteredRows; n > 0 {
			logger.Info("dropped rows with missing required columns", zap.String("file", d.FileName), zap.Int64("rows", n))
		}
		entry.Status, entry.Rows = ledger.StatusOK, o.Value.Rows
		record(ctx, l.Recorder, logger, entry)
		files = append(files, o.Value)
	}
	report.Transformed = len(files)
	return files
}

func (l *Loader) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}
