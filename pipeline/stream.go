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
	"os"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/arrowarc/tripload/integrations/filesystem"
	"github.com/arrowarc/tripload/internal/arrio"
	"github.com/arrowarc/tripload/internal/ledger"
	"github.com/arrowarc/tripload/pkg/normalize"
	"github.com/arrowarc/tripload/pkg/schema"
	"github.com/arrowarc/tripload/pkg/sink"
	"github.com/arrowarc/tripload/pkg/tripdata"
	"go.uber.org/zap"
)

// StreamLoader loads a plan one file at a time into a single table: fetch,
// then read, normalize and write chunk by chunk. Failed fetches are
// skipped. A failed transform drops the rest of that file. Any write error
// ends the run.
type StreamLoader struct {
	Fetcher Fetcher
	Session *sink.Session
	// Schema is the output schema shared by every file.
	Schema *schema.Schema
	// Constants adds per-file metadata columns, Constants(d) by default.
	Constants func(tripdata.SourceDescriptor) map[string]string
	ChunkSize int
	// KeepRaw leaves downloaded files on disk.
	KeepRaw  bool
	Mem      memory.Allocator
	Logger   *zap.Logger
	Recorder Recorder
	RunID    string
}

// Run loads plan. It returns ErrNothingFetched when no file was fetched,
// including for an empty plan.
func (l *StreamLoader) Run(ctx context.Context, plan []tripdata.SourceDescriptor) (*Report, error) {
	logger := l.logger()
	report := newReport(l.RunID, len(plan))
	defer report.Metrics.Finish()

	for _, d := range plan {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		logger.Info("downloading", zap.String("file", d.FileName), zap.String("url", d.URL))
		raw, err := l.Fetcher.Fetch(ctx, d)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			logger.Warn("failed to fetch, skipping", zap.String("url", d.URL), zap.Error(err))
			report.fail(d.FileName, ledger.StageDownload, err)
			record(ctx, l.Recorder, logger, ledger.Entry{RunID: l.RunID, File: d.Key(), Stage: ledger.StageDownload, Status: ledger.StatusFailed, Error: err.Error()})
			continue
		}
		report.Fetched++
		report.Metrics.Add(0, raw.Bytes)
		record(ctx, l.Recorder, logger, ledger.Entry{RunID: l.RunID, File: d.Key(), Stage: ledger.StageDownload, Status: ledger.StatusOK, Bytes: raw.Bytes, Checksum: raw.Checksum})

		// The target is replaced once there is a file to load, even when
		// it turns out to hold no rows.
		if err := l.Session.Prepare(ctx); err != nil {
			if !l.KeepRaw {
				os.Remove(raw.Path)
			}
			report.fail(d.FileName, ledger.StageUpload, err)
			record(context.WithoutCancel(ctx), l.Recorder, logger, ledger.Entry{RunID: l.RunID, File: d.Key(), Stage: ledger.StageUpload, Status: ledger.StatusFailed, Error: err.Error()})
			return report, err
		}

		rows, err := l.loadFile(ctx, raw.Path, d, report)
		if !l.KeepRaw {
			os.Remove(raw.Path)
		}
		entry := ledger.Entry{RunID: l.RunID, File: d.Key(), Stage: ledger.StageUpload, Rows: rows, Status: ledger.StatusOK}
		if err != nil {
			entry.Status, entry.Error = ledger.StatusFailed, err.Error()
			var we *sink.WriteError
			if errors.As(err, &we) {
				report.fail(d.FileName, ledger.StageUpload, err)
				record(context.WithoutCancel(ctx), l.Recorder, logger, entry)
				return report, err
			}
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			logger.Error("transform failed", zap.String("file", d.FileName), zap.Int64("rows_written", rows), zap.Error(err))
			report.fail(d.FileName, ledger.StageTransform, err)
			entry.Stage = ledger.StageTransform
			record(ctx, l.Recorder, logger, entry)
			continue
		}
		report.Transformed++
		report.Uploaded++
		record(ctx, l.Recorder, logger, entry)
		logger.Info("loaded", zap.String("file", d.FileName), zap.String("target", l.Session.Target().Name), zap.Int64("rows", rows))
	}

	if report.Fetched == 0 {
		return report, ErrNothingFetched
	}
	return report, nil
}

// loadFile returns the rows written before any error. Read and normalize
// failures are *TransformError, write failures *sink.WriteError.
func (l *StreamLoader) loadFile(ctx context.Context, path string, d tripdata.SourceDescriptor, report *Report) (int64, error) {
	constants := Constants
	if l.Constants != nil {
		constants = l.Constants
	}
	opts := normalize.Options{Constants: constants(d)}

	rows, err := WriteFile(ctx, l.Mem, l.Session, l.Schema, path, d.Format, l.ChunkSize, opts)
	report.Metrics.Add(rows, 0)
	if err != nil {
		var we *sink.WriteError
		if !errors.As(err, &we) {
			err = &TransformError{Descriptor: d, Err: err}
		}
		return rows, err
	}
	return rows, nil
}

// WriteFile normalizes a local raw file into session. It returns the rows
// written before any error; write failures are *sink.WriteError.
func WriteFile(ctx context.Context, mem memory.Allocator, session *sink.Session, s *schema.Schema, path string, format tripdata.Format, chunkSize int, opts normalize.Options) (int64, error) {
	src, err := filesystem.OpenRaw(ctx, path, format, chunkSize)
	if err != nil {
		return 0, err
	}
	defer src.Close()
	return Drain(ctx, mem, session, s, src, opts)
}

// Drain normalizes every record of src and writes it to session. The
// session is prepared once src is exhausted without error, so an empty
// source still replaces the target.
func Drain(ctx context.Context, mem memory.Allocator, session *sink.Session, s *schema.Schema, src arrio.Reader, opts normalize.Options) (int64, error) {
	rows, err := NormalizeReader(ctx, mem, sessionWriter{ctx: ctx, session: session}, src, s, opts)
	if err != nil {
		return rows, err
	}
	return rows, session.Prepare(ctx)
}

// sessionWriter adapts a session to arrio.Writer.
type sessionWriter struct {
	ctx     context.Context
	session *sink.Session
}

func (w sessionWriter) Write(rec arrow.Record) error {
	_, err := w.session.Write(w.ctx, rec)
	return err
}

func (l *StreamLoader) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}
