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

// Package config provides configuration utilities.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/arrowarc/tripload/integrations/bigquery"
	"github.com/arrowarc/tripload/integrations/duckdb"
	"github.com/arrowarc/tripload/integrations/gcs"
	"github.com/arrowarc/tripload/integrations/postgres"
	"github.com/arrowarc/tripload/internal/json"
	"github.com/arrowarc/tripload/pkg/tripdata"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DateLayout is the layout of window dates.
const DateLayout = "2006-01-02"

type Config struct {
	Download DownloadConfig  `yaml:"download"`
	Postgres postgres.Config `yaml:"postgres"`
	GCS      gcs.Config      `yaml:"gcs"`
	BigQuery bigquery.Config `yaml:"bigquery"`
	DuckDB   duckdb.Config   `yaml:"duckdb"`
	Window   WindowConfig    `yaml:"window"`
	Log      LogConfig       `yaml:"log"`
	Ledger   LedgerConfig    `yaml:"ledger"`
}

type DownloadConfig struct {
	Dir string `yaml:"dir" validate:"required"`
	// Source is "github" for the gzip CSV mirror or "cloudfront" for the
	// TLC Parquet files.
	Source       string        `yaml:"source" validate:"oneof=github cloudfront"`
	BaseURL      string        `yaml:"base_url" validate:"omitempty,url"`
	Types        []string      `yaml:"types" validate:"min=1,dive,oneof=yellow green fhv"`
	StartYear    int           `yaml:"start_year" validate:"gte=2009"`
	EndYear      int           `yaml:"end_year" validate:"gtefield=StartYear"`
	Workers      int           `yaml:"workers" validate:"gte=1,lte=64"`
	ChunkSize    int           `yaml:"chunk_size" validate:"gte=1"`
	Timeout      time.Duration `yaml:"timeout"`
	SkipExisting bool          `yaml:"skip_existing"`
	// CheckRelease drops files missing from the GitHub release before
	// fetching. Only used with the github source.
	CheckRelease bool          `yaml:"check_release"`
	GitHubToken  string        `yaml:"github_token"`
}

// WindowConfig is the date window of a scheduled run.
type WindowConfig struct {
	Start     string   `yaml:"start" validate:"required,datetime=2006-01-02"`
	End       string   `yaml:"end" validate:"required,datetime=2006-01-02"`
	TaxiTypes []string `yaml:"taxi_types" validate:"min=1,dive,oneof=yellow green fhv"`
	Table     string   `yaml:"table" validate:"required"`
}

type LogConfig struct {
	Level    string `yaml:"level" validate:"oneof=debug info warn error"`
	Encoding string `yaml:"encoding" validate:"oneof=json console"`
}

type LedgerConfig struct {
	// Path of the SQLite run ledger; empty disables it.
	Path string `yaml:"path"`
}

// Section names a part of the configuration a command depends on.
type Section string

const (
	SectionDownload Section = "download"
	SectionPostgres Section = "postgres"
	SectionGCS      Section = "gcs"
	SectionBigQuery Section = "bigquery"
	SectionDuckDB   Section = "duckdb"
	SectionWindow   Section = "window"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Download: DownloadConfig{
			Dir:       "data",
			Source:    "github",
			Types:     []string{"yellow", "green"},
			StartYear: 2019,
			EndYear:   2020,
			Workers:   4,
			ChunkSize: 100_000,
			Timeout:   10 * time.Minute,
		},
		Postgres: postgres.Config{
			User:     "root",
			Password: "root",
			Host:     "localhost",
			Port:     5432,
			Database: "ny_taxi",
			SSLMode:  "disable",
		},
		GCS:      gcs.Config{Prefix: "parquet"},
		BigQuery: bigquery.Config{Dataset: "trips_data_all", Location: bigquery.DefaultLocation},
		DuckDB:   duckdb.Config{Path: "taxi_pipeline.duckdb"},
		Window: WindowConfig{
			TaxiTypes: []string{"yellow"},
			Table:     "ingestion.trips",
		},
		Log: LogConfig{Level: "info", Encoding: "console"},
	}
}

// ParseConfig reads a YAML file over the defaults.
func ParseConfig(configPath string) (*Config, error) {
	cfg := Default()
	configFile, err := os.Open(configPath)
	if err != nil {
		return nil, err
	}
	defer configFile.Close()

	decoder := yaml.NewDecoder(configFile)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load loads .env files, reads configPath over the defaults when it is not
// empty and applies environment overrides.
func Load(configPath string, envFiles ...string) (*Config, error) {
	if err := LoadEnv(envFiles...); err != nil {
		return nil, err
	}
	cfg := Default()
	if configPath != "" {
		var err error
		if cfg, err = ParseConfig(configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnv loads variables from the given .env files, ".env" by default.
// Missing files are ignored and variables already set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

// ApplyEnv overrides settings from environment variables read through
// lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("PG_USER", &c.Postgres.User)
	str("PG_PASSWORD", &c.Postgres.Password)
	str("PG_HOST", &c.Postgres.Host)
	str("PG_DB", &c.Postgres.Database)
	if v, ok := lookup("PG_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PG_PORT: %w", err)
		}
		c.Postgres.Port = port
	}

	str("GCS_BUCKET", &c.GCS.Bucket)
	str("GOOGLE_APPLICATION_CREDENTIALS", &c.GCS.CredentialsFile)
	str("GOOGLE_APPLICATION_CREDENTIALS", &c.BigQuery.CredentialsFile)
	str("BQ_PROJECT", &c.BigQuery.Project)
	str("BQ_DATASET", &c.BigQuery.Dataset)
	if c.GCS.Project == "" {
		c.GCS.Project = c.BigQuery.Project
	}

	str("GITHUB_TOKEN", &c.Download.GitHubToken)

	str("DUCKDB_PATH", &c.DuckDB.Path)
	str("DUCKDB_DRIVER", &c.DuckDB.Driver)

	str("BRUIN_START_DATE", &c.Window.Start)
	str("BRUIN_END_DATE", &c.Window.End)
	if v, ok := lookup("BRUIN_VARS"); ok && strings.TrimSpace(v) != "" {
		var vars struct {
			TaxiTypes []string `json:"taxi_types"`
		}
		if err := json.Unmarshal([]byte(v), &vars); err != nil {
			return fmt.Errorf("BRUIN_VARS: %w", err)
		}
		if len(vars.TaxiTypes) > 0 {
			c.Window.TaxiTypes = vars.TaxiTypes
		}
	}
	return nil
}

// Validate checks the log settings and every named section.
func (c *Config) Validate(sections ...Section) error {
	v := validator.New()
	if err := v.Struct(c.Log); err != nil {
		return validationError("log", err)
	}
	for _, s := range sections {
		var section interface{}
		switch s {
		case SectionDownload:
			section = c.Download
		case SectionPostgres:
			section = c.Postgres
		case SectionGCS:
			section = c.GCS
		case SectionBigQuery:
			section = c.BigQuery
		case SectionDuckDB:
			section = c.DuckDB
		case SectionWindow:
			section = c.Window
		default:
			return fmt.Errorf("unknown config section %q", s)
		}
		if err := v.Struct(section); err != nil {
			return validationError(string(s), err)
		}
	}
	if contains(sections, SectionWindow) {
		if _, _, err := c.Window.Range(); err != nil {
			return err
		}
	}
	return nil
}

func validationError(section string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%s: %w", section, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s.%s: failed %q", section, fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg += fmt.Sprintf(" (%s)", fe.Param())
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func contains(sections []Section, s Section) bool {
	for _, x := range sections {
		if x == s {
			return true
		}
	}
	return false
}

// DataTypes parses the configured data types.
func (d DownloadConfig) DataTypes() ([]tripdata.DataType, error) {
	return tripdata.ParseDataTypes(strings.Join(d.Types, ","))
}

// TripSource returns the configured source, with BaseURL overriding the
// default endpoint.
func (d DownloadConfig) TripSource() tripdata.Source {
	src := tripdata.GitHubReleaseSource
	if d.Source == "cloudfront" {
		src = tripdata.CloudFrontSource
	}
	if d.BaseURL != "" {
		src.BaseURL = d.BaseURL
	}
	return src
}

// Range parses the window dates.
func (w WindowConfig) Range() (time.Time, time.Time, error) {
	if w.Start == "" || w.End == "" {
		return time.Time{}, time.Time{}, errors.New("window start and end dates must be set (BRUIN_START_DATE, BRUIN_END_DATE)")
	}
	start, err := time.Parse(DateLayout, w.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("window start: %w", err)
	}
	end, err := time.Parse(DateLayout, w.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("window end: %w", err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("window end %s is before start %s", w.End, w.Start)
	}
	return start, end, nil
}

// DataTypes parses the window's taxi types.
func (w WindowConfig) DataTypes() ([]tripdata.DataType, error) {
	return tripdata.ParseDataTypes(strings.Join(w.TaxiTypes, ","))
}
