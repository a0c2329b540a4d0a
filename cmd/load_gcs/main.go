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
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/arrowarc/tripload/integrations/api/github"
	"github.com/arrowarc/tripload/integrations/download"
	"github.com/arrowarc/tripload/integrations/gcs"
	"github.com/arrowarc/tripload/internal/cli"
	"github.com/arrowarc/tripload/pipeline"
	"github.com/arrowarc/tripload/pkg/config"
	"github.com/arrowarc/tripload/pkg/sink"
	"github.com/arrowarc/tripload/pkg/tripdata"
	"go.uber.org/zap"
)

func main() {
	usage := `Load monthly NYC taxi trip files into a GCS bucket as normalized Parquet.

Usage:
  load_gcs [--config=<file>] [--env-file=<file>] [--types=<list>] [--start-year=<year>] [--end-year=<year>] [--workers=<n>] [--bucket=<name>] [--prefix=<prefix>] [--dir=<path>] [--source=<name>] [--base-url=<url>] [--skip-existing] [--check-release]
  load_gcs -h | --help

Options:
  -h --help              Show this screen.
  --config=<file>        YAML configuration file.
  --env-file=<file>      Environment file loaded before the config [default: .env].
  --types=<list>         Comma separated data types, e.g. yellow,green or fhv.
  --start-year=<year>    First year to load.
  --end-year=<year>      Last year to load, inclusive.
  --workers=<n>          Workers per stage.
  --bucket=<name>        Destination bucket (GCS_BUCKET).
  --prefix=<prefix>      Object name prefix.
  --dir=<path>           Local download and output directory.
  --source=<name>        github (gzip CSV) or cloudfront (Parquet).
  --base-url=<url>       Override the source base URL.
  --skip-existing        Reuse files already downloaded to --dir.
  --check-release        Skip files missing from the GitHub release (GITHUB_TOKEN).
`
	flags := cli.Parse(usage)
	cfg, err := cli.LoadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(2)
	}

	flags.List("--types", &cfg.Download.Types)
	flags.Int("--start-year", &cfg.Download.StartYear)
	flags.Int("--end-year", &cfg.Download.EndYear)
	flags.Int("--workers", &cfg.Download.Workers)
	flags.String("--bucket", &cfg.GCS.Bucket)
	flags.String("--prefix", &cfg.GCS.Prefix)
	flags.String("--dir", &cfg.Download.Dir)
	flags.String("--source", &cfg.Download.Source)
	flags.String("--base-url", &cfg.Download.BaseURL)
	flags.Bool("--skip-existing", &cfg.Download.SkipExisting)
	flags.Bool("--check-release", &cfg.Download.CheckRelease)

	logger := cli.Logger(cfg)
	defer logger.Sync()

	if err := flags.Err(); err != nil {
		logger.Fatal("invalid flags", zap.Error(err))
	}
	dataTypes, err := cfg.Download.DataTypes()
	if err != nil {
		logger.Fatal("invalid data types", zap.Error(err))
	}
	if err := cfg.Validate(config.SectionDownload, config.SectionGCS); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := cli.Context(cfg.Download.Timeout)
	defer cancel()

	client, err := gcs.NewClient(ctx, cfg.GCS, logger)
	if err != nil {
		logger.Fatal("failed to create storage client", zap.Error(err))
	}
	defer client.Close()

	if err := client.EnsureBucket(ctx); err != nil {
		logger.Fatal("bucket check failed", zap.String("bucket", cfg.GCS.Bucket), zap.Error(err))
	}

	run, err := cli.BeginRun(ctx, cfg, "load_gcs", logger)
	if err != nil {
		logger.Fatal("failed to open ledger", zap.Error(err))
	}

	fetcher := download.NewFetcher(filepath.Join(cfg.Download.Dir, "raw"), &http.Client{}, logger)
	fetcher.SkipExisting = cfg.Download.SkipExisting
	if err := os.MkdirAll(fetcher.Dir, 0o755); err != nil {
		logger.Fatal("failed to create download directory", zap.Error(err))
	}

	plan := tripdata.Plan(cfg.Download.TripSource(), dataTypes, cfg.Download.StartYear, cfg.Download.EndYear)
	logger.Info("planned files", zap.Int("files", len(plan)), zap.Strings("types", cfg.Download.Types))

	if cfg.Download.CheckRelease && cfg.Download.Source == "github" {
		releases := github.NewReleases(github.NewClient(ctx, cfg.Download.GitHubToken, nil), logger)
		available, missing, err := releases.FilterPlan(ctx, plan)
		if err != nil {
			logger.Fatal("release check failed", zap.Error(err))
		}
		for _, d := range missing {
			logger.Warn("file not in release, skipping", zap.String("file", d.FileName))
		}
		plan = available
	}

	loader := &pipeline.Loader{
		Fetcher:   fetcher,
		Uploader:  pipeline.ObjectUploader{Store: client, Mode: sink.Replace},
		OutDir:    filepath.Join(cfg.Download.Dir, "parquet"),
		Workers:   cfg.Download.Workers,
		ChunkSize: cfg.Download.ChunkSize,
		Logger:    logger,
		Recorder:  run.Recorder(),
		RunID:     run.ID,
	}
	report, err := loader.Run(ctx, plan)
	run.End(err)
	fmt.Print(report.JSON())
	if err != nil {
		var we *sink.WriteError
		if errors.As(err, &we) {
			logger.Fatal("upload failed, run aborted", zap.String("target", we.Target.Name), zap.Error(we.Err))
		}
		logger.Fatal("run aborted", zap.Error(err))
	}
	logger.Info("run complete",
		zap.Int("uploaded", report.Uploaded),
		zap.Int("failed", len(report.Failures)),
		zap.Int64("rows", report.Rows()))
}
