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

	"github.com/arrowarc/tripload/integrations/duckdb"
	"github.com/arrowarc/tripload/internal/cli"
	"github.com/arrowarc/tripload/pkg/config"
	"github.com/arrowarc/tripload/pkg/report"
	"go.uber.org/zap"
)

func main() {
	usage := `Summarize a loaded trips table: date range, payment type shares and total tips.

Usage:
  trip_report [--config=<file>] [--env-file=<file>] [--database=<path>] [--table=<name>] [--pickup=<col>] [--dropoff=<col>] [--payment=<col>] [--tip=<col>]
  trip_report -h | --help

Options:
  -h --help            Show this screen.
  --config=<file>      YAML configuration file.
  --env-file=<file>    Environment file loaded before the config [default: .env].
  --database=<path>    DuckDB database file (DUCKDB_PATH).
  --table=<name>       Table to summarize [default: trips].
  --pickup=<col>       Pickup timestamp column.
  --dropoff=<col>      Dropoff timestamp column.
  --payment=<col>      Payment type column.
  --tip=<col>          Tip amount column.
`
	flags := cli.Parse(usage)
	cfg, err := cli.LoadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(2)
	}
	flags.String("--database", &cfg.DuckDB.Path)

	var table string
	cols := report.TripsAPIColumns
	flags.String("--table", &table)
	flags.String("--pickup", &cols.Pickup)
	flags.String("--dropoff", &cols.Dropoff)
	flags.String("--payment", &cols.Payment)
	flags.String("--tip", &cols.Tip)

	logger := cli.Logger(cfg)
	defer logger.Sync()

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

	summary, err := report.Run(ctx, db, table, cols)
	if err != nil {
		logger.Fatal("report failed", zap.String("table", table), zap.Error(err))
	}
	fmt.Print(summary.String())
}
