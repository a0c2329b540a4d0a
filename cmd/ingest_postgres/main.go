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

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/arrowarc/tripload/integrations/download"
	"github.com/arrowarc/tripload/integrations/filesystem"
	"github.com/arrowarc/tripload/integrations/postgres"
	"github.com/arrowarc/tripload/internal/cli"
	"github.com/arrowarc/tripload/pipeline"
	"github.com/arrowarc/tripload/pkg/config"
	"github.com/arrowarc/tripload/pkg/normalize"
	"github.com/arrowarc/tripload/pkg/schema"
	"github.com/arrowarc/tripload/pkg/sink"
	"github.com/arrowarc/tripload/pkg/tripdata"
	"go.uber.org/zap"
)

func main() {
	usage := `Ingest one month of NYC taxi trips into PostgreSQL, replacing the table.

Usage:
  ingest_postgres [--config=<file>] [--env-file=<file>] [--pg-user=<user>] [--pg-pass=<pass>] [--pg-host=<host>] [--pg-port=<port>] [--pg-db=<db>] [--type=<type>] [--year=<year>] [--month=<month>] [--chunksize=<rows>] [--target-table=<table>] [--mode=<mode>] [--zones=<csv>] [--base-url=<url>] [--dir=<path>]
  ingest_postgres -h | --help

Options:
  -h --help                Show this screen.
  --config=<file>          YAML configuration file.
  --env-file=<file>        Environment file loaded before the config [default: .env].
  --pg-user=<user>         PostgreSQL username (PG_USER).
  --pg-pass=<pass>         PostgreSQL password (PG_PASSWORD).
  --pg-host=<host>         PostgreSQL host (PG_HOST).
  --pg-port=<port>         PostgreSQL port (PG_PORT).
  --pg-db=<db>             PostgreSQL database name (PG_DB).
  --type=<type>            Data type to ingest [default: green].
  --year=<year>            Data year [default: 2025].
  --month=<month>          Data month [default: 11].
  --chunksize=<rows>       Rows per write.
  --target-table=<table>   Target table, <type>_tripdata by default.
  --mode=<mode>            replace, append or merge [default: replace].
  --zones=<csv>            Taxi zone lookup CSV, loaded into taxi_zone_lookup.
  --base-url=<url>         Override the TLC Parquet base URL.
  --dir=<path>             Download directory.
`
	flags := cli.Parse(usage)
	cfg, err := cli.LoadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(2)
	}
	flags.String("--pg-user", &cfg.Postgres.User)
	flags.String("--pg-pass", &cfg.Postgres.Password)
	flags.String("--pg-host", &cfg.Postgres.Host)
	flags.Int("--pg-port", &cfg.Postgres.Port)
	flags.String("--pg-db", &cfg.Postgres.Database)
	flags.Int("--chunksize", &cfg.Download.ChunkSize)
	flags.String("--base-url", &cfg.Download.BaseURL)
	flags.String("--dir", &cfg.Download.Dir)

	var typeFlag, table, modeFlag, zones string
	var year, month int
	flags.String("--type", &typeFlag)
	flags.Int("--year", &year)
	flags.Int("--month", &month)
	flags.String("--target-table", &table)
	flags.String("--mode", &modeFlag)
	flags.String("--zones", &zones)

	logger := cli.Logger(cfg)
	defer logger.Sync()

	if err := flags.Err(); err != nil {
		logger.Fatal("invalid flags", zap.Error(err))
	}
	dataType, err := tripdata.ParseDataType(typeFlag)
	if err != nil {
		logger.Fatal("invalid data type", zap.Error(err))
	}
	mode, err := sink.ParseWriteMode(modeFlag)
	if err != nil {
		logger.Fatal("invalid write mode", zap.Error(err))
	}
	if month < 1 || month > 12 {
		logger.Fatal("month must be between 1 and 12", zap.Int("month", month))
	}
	if table == "" {
		table = dataType.String() + "_tripdata"
	}
	if err := cfg.Validate(config.SectionPostgres); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := cli.Context(cfg.Download.Timeout)
	defer cancel()

	pg, err := postgres.Open(ctx, postgres.DSN(cfg.Postgres), logger)
	if err != nil {
		logger.Fatal("failed to connect to PostgreSQL", zap.String("host", cfg.Postgres.Host), zap.Error(err))
	}
	defer pg.Close()

	s, err := schema.ForDataType(dataType)
	if err != nil {
		logger.Fatal("no schema for data type", zap.Error(err))
	}

	run, err := cli.BeginRun(ctx, cfg, "ingest_postgres", logger)
	if err != nil {
		logger.Fatal("failed to open ledger", zap.Error(err))
	}

	src := tripdata.CloudFrontSource
	if cfg.Download.BaseURL != "" {
		src.BaseURL = cfg.Download.BaseURL
	}
	dir := filepath.Join(cfg.Download.Dir, "raw")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Fatal("failed to create download directory", zap.Error(err))
	}

	loader := &pipeline.StreamLoader{
		Fetcher:   download.NewFetcher(dir, nil, logger),
		Session:   sink.NewSession(pg, sink.Target{Name: table, Mode: mode, Schema: s}),
		Schema:    s,
		ChunkSize: cfg.Download.ChunkSize,
		Logger:    logger,
		Recorder:  run.Recorder(),
		RunID:     run.ID,
	}
	logger.Info("loading trips", zap.String("table", table), zap.String("mode", string(mode)))
	report, err := loader.Run(ctx, []tripdata.SourceDescriptor{tripdata.NewDescriptor(src, dataType, year, month)})
	if err != nil {
		run.End(err)
		logger.Fatal("ingestion failed", zap.String("file", src.FileName(dataType, year, month)), zap.Error(err))
	}
	logger.Info("trips loaded", zap.String("table", table), zap.Int64("rows", report.Rows()))

	if zones != "" {
		logger.Info("loading zone lookup", zap.String("file", zones))
		session := sink.NewSession(pg, sink.Target{Name: schema.Zones.Name, Mode: sink.Replace, Schema: schema.Zones})
		rows, err := loadZones(ctx, session, zones, cfg.Download.ChunkSize)
		if err != nil {
			run.End(err)
			logger.Fatal("zone lookup ingestion failed", zap.Error(err))
		}
		logger.Info("zone lookup loaded", zap.String("table", schema.Zones.Name), zap.Int64("rows", rows))
	}
	run.End(nil)
}

// loadZones reads the zone lookup CSV, plain or gzipped, into session.
func loadZones(ctx context.Context, session *sink.Session, path string, chunkSize int) (int64, error) {
	r, err := filesystem.NewCSVReader(ctx, path, filesystem.CSVReadOptions{ChunkSize: chunkSize})
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return pipeline.Drain(ctx, nil, session, schema.Zones, r, normalize.Options{})
}
