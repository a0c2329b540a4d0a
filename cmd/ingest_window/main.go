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
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/arrowarc/tripload/integrations/download"
	"github.com/arrowarc/tripload/integrations/duckdb"
	"github.com/arrowarc/tripload/internal/cli"
	"github.com/arrowarc/tripload/pipeline"
	"github.com/arrowarc/tripload/pkg/config"
	"github.com/arrowarc/tripload/pkg/schema"
	"github.com/arrowarc/tripload/pkg/sink"
	"github.com/arrowarc/tripload/pkg/tripdata"
	"go.uber.org/zap"
)

func main() {
	usage := `Append the trips of a date window to a DuckDB table.

Every month touched by [start, end] is fetched for each taxi type. Dates
default to BRUIN_START_DATE and BRUIN_END_DATE, taxi types to the
taxi_types key of BRUIN_VARS.

Usage:
  ingest_window [--config=<file>] [--env-file=<file>] [--start=<date>] [--end=<date>] [--types=<list>] [--table=<name>] [--database=<path>] [--base-url=<url>] [--dir=<path>] [--chunksize=<rows>]
  ingest_window -h | --help

Options:
  -h --help            Show this screen.
  --config=<file>      YAML configuration file.
  --env-file=<file>    Environment file loaded before the config [default: .env].
  --start=<date>       Window start, YYYY-MM-DD.
  --end=<date>         Window end, YYYY-MM-DD.
  --types=<list>       Comma separated taxi types.
  --table=<name>       Destination table.
  --database=<path>    DuckDB database file (DUCKDB_PATH).
  --base-url=<url>     Override the TLC Parquet base URL.
  --dir=<path>         Download directory.
  --chunksize=<rows>   Rows per write.
`
	flags := cli.Parse(usage)
	cfg, err := cli.LoadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(2)
	}
	flags.String("--start", &cfg.Window.Start)
	flags.String("--end", &cfg.Window.End)
	flags.List("--types", &cfg.Window.TaxiTypes)
	flags.String("--table", &cfg.Window.Table)
	flags.String("--database", &cfg.DuckDB.Path)
	flags.String("--base-url", &cfg.Download.BaseURL)
	flags.String("--dir", &cfg.Download.Dir)
	flags.Int("--chunksize", &cfg.Download.ChunkSize)

	logger := cli.Logger(cfg)
	defer logger.Sync()

	if err := flags.Err(); err != nil {
		logger.Fatal("invalid flags", zap.Error(err))
	}
	start, end, err := cfg.Window.Range()
	if err != nil {
		logger.Fatal("invalid window", zap.Error(err))
	}
	dataTypes, err := cfg.Window.DataTypes()
	if err != nil {
		logger.Fatal("invalid taxi types", zap.Error(err))
	}
	if err := cfg.Validate(config.SectionWindow, config.SectionDuckDB); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := cli.Context(cfg.Download.Timeout)
	defer cancel()

	db, err := duckdb.Open(ctx, cfg.DuckDB, logger)
	if err != nil {
		logger.Fatal("failed to open DuckDB", zap.String("path", cfg.DuckDB.Path), zap.Error(err))
	}
	defer db.Close()

	run, err := cli.BeginRun(ctx, cfg, "ingest_window", logger)
	if err != nil {
		logger.Fatal("failed to open ledger", zap.Error(err))
	}

	src := tripdata.CloudFrontSource
	if cfg.Download.BaseURL != "" {
		src.BaseURL = cfg.Download.BaseURL
	}
	plan := tripdata.PlanWindow(src, dataTypes, start, end)
	logger.Info("planned files", zap.Int("files", len(plan)),
		zap.String("start", cfg.Window.Start), zap.String("end", cfg.Window.End))

	dir := filepath.Join(cfg.Download.Dir, "raw")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Fatal("failed to create download directory", zap.Error(err))
	}

	extractedAt := time.Now().UTC().Format(time.RFC3339Nano)
	loader := &pipeline.StreamLoader{
		Fetcher: download.NewFetcher(dir, nil, logger),
		Session: sink.NewSession(duckdb.NewSink(db), sink.Target{Name: cfg.Window.Table, Mode: sink.Append, Schema: schema.Window}),
		Schema:  schema.Window,
		Constants: func(d tripdata.SourceDescriptor) map[string]string {
			return map[string]string{
				schema.TaxiType:    d.DataType.String(),
				schema.ExtractedAt: extractedAt,
			}
		},
		ChunkSize: cfg.Download.ChunkSize,
		Logger:    logger,
		Recorder:  run.Recorder(),
		RunID:     run.ID,
	}
	report, err := loader.Run(ctx, plan)
	run.End(err)
	fmt.Print(report.JSON())
	if err != nil {
		logger.Fatal("window ingestion failed", zap.String("table", cfg.Window.Table), zap.Error(err))
	}
	logger.Info("window loaded", zap.String("table", cfg.Window.Table), zap.Int64("rows", report.Rows()))
}
