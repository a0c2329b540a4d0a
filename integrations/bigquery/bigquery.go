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

// Package bigquery loads normalized Parquet files from Cloud Storage into
// BigQuery tables with load jobs.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/arrowarc/tripload/pkg/schema"
	"github.com/arrowarc/tripload/pkg/sink"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DefaultLocation is where datasets are created.
const DefaultLocation = "US"

// Config selects the project, dataset and credentials.
type Config struct {
	Project         string `yaml:"project" validate:"required"`
	Dataset         string `yaml:"dataset" validate:"required"`
	Location        string `yaml:"location"`
	CredentialsFile string `yaml:"credentials_file"`
}

// LoadResult describes a finished load job.
type LoadResult struct {
	Table string
	JobID string
	// Rows is the table's row count after the load.
	Rows int64
}

// Loader runs load jobs into one dataset.
type Loader struct {
	client   *bigquery.Client
	dataset  string
	location string
	logger   *zap.Logger
}

// NewLoader creates the BigQuery client. The caller closes the loader.
func NewLoader(ctx context.Context, cfg Config, logger *zap.Logger) (*Loader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := bigquery.NewClient(ctx, cfg.Project, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create BigQuery client: %w", err)
	}
	location := cfg.Location
	if location == "" {
		location = DefaultLocation
	}
	return &Loader{client: client, dataset: cfg.Dataset, location: location, logger: logger}, nil
}

// EnsureDataset creates the dataset when it does not exist.
func (l *Loader) EnsureDataset(ctx context.Context) error {
	ds := l.client.Dataset(l.dataset)
	_, err := ds.Metadata(ctx)
	if err == nil {
		l.logger.Info("dataset already exists", zap.String("dataset", l.dataset))
		return nil
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr.Code != http.StatusNotFound {
		return fmt.Errorf("failed to look up dataset %s: %w", l.dataset, err)
	}
	if err := ds.Create(ctx, &bigquery.DatasetMetadata{Location: l.location}); err != nil {
		return fmt.Errorf("failed to create dataset %s: %w", l.dataset, err)
	}
	l.logger.Info("created dataset", zap.String("dataset", l.dataset), zap.String("location", l.location))
	return nil
}

// WriteDisposition maps a write mode onto a load job disposition.
func WriteDisposition(mode sink.WriteMode) (bigquery.TableWriteDisposition, error) {
	switch mode {
	case sink.Replace:
		return bigquery.WriteTruncate, nil
	case sink.Append:
		return bigquery.WriteAppend, nil
	}
	return "", fmt.Errorf("bigquery load %s: %w", mode, sink.ErrUnsupportedMode)
}

// LoadParquet loads the Parquet objects matching uri (wildcards allowed)
// into table with an explicit schema, waits for the job and reports the
// table's row count.
func (l *Loader) LoadParquet(ctx context.Context, table, uri string, s *schema.Schema, mode sink.WriteMode) (LoadResult, error) {
	res := LoadResult{Table: table}
	target := sink.Target{Name: fmt.Sprintf("%s.%s", l.dataset, table), Mode: mode, Schema: s}

	disposition, err := WriteDisposition(mode)
	if err != nil {
		return res, &sink.WriteError{Target: target, Err: err}
	}

	ref := bigquery.NewGCSReference(uri)
	ref.SourceFormat = bigquery.Parquet
	if s != nil {
		ref.Schema = s.BigQuerySchema()
	}
	ref.AutoDetect = false

	loader := l.client.Dataset(l.dataset).Table(table).LoaderFrom(ref)
	loader.WriteDisposition = disposition
	loader.CreateDisposition = bigquery.CreateIfNeeded

	l.logger.Info("starting load job", zap.String("table", table), zap.String("uri", uri))
	job, err := loader.Run(ctx)
	if err != nil {
		return res, &sink.WriteError{Target: target, Err: fmt.Errorf("failed to start load job: %w", err)}
	}
	res.JobID = job.ID()

	status, err := job.Wait(ctx)
	if err != nil {
		return res, &sink.WriteError{Target: target, Err: fmt.Errorf("load job %s: %w", job.ID(), err)}
	}
	if err := status.Err(); err != nil {
		return res, &sink.WriteError{Target: target, Err: fmt.Errorf("load job %s failed: %w", job.ID(), err)}
	}

	rows, err := l.NumRows(ctx, table)
	if err != nil {
		return res, err
	}
	res.Rows = rows
	l.logger.Info("loaded table", zap.String("table", table), zap.Int64("rows", rows))
	return res, nil
}

// NumRows returns a table's row count from its metadata.
func (l *Loader) NumRows(ctx context.Context, table string) (int64, error) {
	md, err := l.client.Dataset(l.dataset).Table(table).Metadata(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read metadata of %s: %w", table, err)
	}
	return int64(md.NumRows), nil
}

// Close closes the BigQuery client.
func (l *Loader) Close() error {
	return l.client.Close()
}
