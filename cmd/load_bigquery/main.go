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

	"github.com/arrowarc/tripload/integrations/bigquery"
	"github.com/arrowarc/tripload/internal/cli"
	"github.com/arrowarc/tripload/pkg/config"
	"github.com/arrowarc/tripload/pkg/schema"
	"github.com/arrowarc/tripload/pkg/sink"
	"go.uber.org/zap"
)

func main() {
	usage := `Load the normalized Parquet files of a bucket into BigQuery tables.

Every data type is loaded from gs://<bucket>/<prefix>/<type>_tripdata_*.parquet
into <type>_tripdata (stg_fhv_tripdata for fhv), replacing the table.

Usage:
  load_bigquery [--config=<file>] [--env-file=<file>] [--types=<list>] [--project=<id>] [--dataset=<name>] [--location=<loc>] [--bucket=<name>] [--prefix=<prefix>] [--mode=<mode>]
  load_bigquery -h | --help

Options:
  -h --help            Show this screen.
  --config=<file>      YAML configuration file.
  --env-file=<file>    Environment file loaded before the config [default: .env].
  --types=<list>       Comma separated data types.
  --project=<id>       GCP project (BQ_PROJECT).
  --dataset=<name>     Dataset, created when missing (BQ_DATASET).
  --location=<loc>     Dataset location.
  --bucket=<name>      Source bucket (GCS_BUCKET).
  --prefix=<prefix>    Object name prefix of the Parquet files.
  --mode=<mode>        replace or append [default: replace].
`
	flags := cli.Parse(usage)
	cfg, err := cli.LoadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(2)
	}
	flags.List("--types", &cfg.Download.Types)
	flags.String("--project", &cfg.BigQuery.Project)
	flags.String("--dataset", &cfg.BigQuery.Dataset)
	flags.String("--location", &cfg.BigQuery.Location)
	flags.String("--bucket", &cfg.GCS.Bucket)
	flags.String("--prefix", &cfg.GCS.Prefix)
	modeFlag := string(sink.Replace)
	flags.String("--mode", &modeFlag)

	logger := cli.Logger(cfg)
	defer logger.Sync()

	mode, err := sink.ParseWriteMode(modeFlag)
	if err != nil {
		logger.Fatal("invalid write mode", zap.Error(err))
	}
	dataTypes, err := cfg.Download.DataTypes()
	if err != nil {
		logger.Fatal("invalid data types", zap.Error(err))
	}
	if err := cfg.Validate(config.SectionBigQuery, config.SectionGCS); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := cli.Context(cfg.Download.Timeout)
	defer cancel()

	loader, err := bigquery.NewLoader(ctx, cfg.BigQuery, logger)
	if err != nil {
		logger.Fatal("failed to create BigQuery client", zap.Error(err))
	}
	defer loader.Close()

	if err := loader.EnsureDataset(ctx); err != nil {
		logger.Fatal("dataset check failed", zap.String("dataset", cfg.BigQuery.Dataset), zap.Error(err))
	}

	for _, t := range dataTypes {
		s, err := schema.ForDataType(t)
		if err != nil {
			logger.Fatal("no schema for data type", zap.Error(err))
		}
		table := bigquery.TableName(t)
		uri := bigquery.ParquetWildcard(cfg.GCS.Bucket, cfg.GCS.Prefix, t)

		res, err := loader.LoadParquet(ctx, table, uri, s, mode)
		if err != nil {
			logger.Fatal("load failed", zap.String("table", table), zap.String("uri", uri), zap.Error(err))
		}
		fmt.Printf("%s.%s: %d rows (job %s)\n", cfg.BigQuery.Dataset, res.Table, res.Rows, res.JobID)
	}
}
