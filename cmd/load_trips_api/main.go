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
	"net/http"
	"os"

	"github.com/arrowarc/tripload/integrations/api/trips"
	"github.com/arrowarc/tripload/integrations/duckdb"
	"github.com/arrowarc/tripload/internal/cli"
	"github.com/arrowarc/tripload/pipeline"
	"github.com/arrowarc/tripload/pkg/config"
	"github.com/arrowarc/tripload/pkg/normalize"
	"github.com/arrowarc/tripload/pkg/report"
	"github.com/arrowarc/tripload/pkg/schema"
	"github.com/arrowarc/tripload/pkg/sink"
	"go.uber.org/zap"
)

func main() {
	usage := `Load the paged NYC taxi trips API into a DuckDB table.

Pages are requested from page 1 until an empty page is returned. The table
is replaced on every run.

Usage:
  load_trips_api [--config=<file>] [--env-file=<file>] [--url=<url>] [--page-size=<n>] [--table=<name>] [--database=<path>] [--report]
  load_trips_api -h | --help

Options:
  -h --help            Show this screen.
  --config=<file>      YAML configuration file.
  --env-file=<file>    Environment file loaded before the config [default: .env].
  --url=<url>          API base URL.
  --page-size=<n>      Records requested per page [default: 1000].
  --table=<name>       Destination table [default: trips].
  --database=<path>    DuckDB database file (DUCKDB_PATH).
  --report             Print the trip summary after loading.
`
	flags := cli.Parse(usage)
	cfg, err := cli.LoadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(2)
	}
	flags.String("--database", &cfg.DuckDB.Path)

	var baseURL, table string
	var pageSize int
	var printReport bool
	flags.String("--url", &baseURL)
	flags.Int("--page-size", &pageSize)
	flags.String("--table", &table)
	flags.Bool("--report", &printReport)

	logger := cli.Logger(cfg)
	defer logger.Sync()

	if err := flags.Err(); err != nil {
		logger.Fatal("invalid flags", zap.Error(err))
	}
	if err := cfg.Validate(config.SectionDuckDB); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := cli.Context(cfg.Download.Timeout)
	defer cancel()

	db, err := duckdb.Open(ctx, cfg.DuckDB, logger)
	if err != nil {
		logger.Fatal("failed to open DuckDB", zap.String("path", cfg.DuckDB.Path), zap.Error(err))
	}
	defer db.Close()

	src := trips.NewReader(ctx, baseURL, &http.Client{Timeout: cfg.Download.Timeout},
		trips.WithPageSize(pageSize), trips.WithLogger(logger))
	defer src.Close()

	stats := &normalize.Stats{}
	session := sink.NewSession(duckdb.NewSink(db), sink.Target{Name: table, Mode: sink.Replace, Schema: schema.TripsAPI})
	rows, err := pipeline.Drain(ctx, nil, session, schema.TripsAPI, src, normalize.Options{Stats: stats})
	if err != nil {
		logger.Fatal("API load failed", zap.String("table", table), zap.Int64("rows_written", rows), zap.Error(err))
	}
	logger.Info("API trips loaded", zap.String("table", table), zap.Int64("rows", rows), zap.Any("coerced", stats.Coerced))

	if !printReport {
		return
	}
	summary, err := report.Run(ctx, db, table, report.TripsAPIColumns)
	if err != nil {
		logger.Fatal("report failed", zap.Error(err))
	}
	fmt.Print(summary.String())
}
