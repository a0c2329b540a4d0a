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

// Package duckdb loads normalized trip batches into DuckDB through its ADBC
// driver and runs the summary queries against the loaded tables.
package duckdb

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/apache/arrow-adbc/go/adbc/drivermgr"
	"github.com/apache/arrow/go/v17/arrow"
	"github.com/arrowarc/tripload/pkg/sink"
	"go.uber.org/zap"
)

// optionKeyIngestTargetDBSchema selects the schema of an ingest target.
const optionKeyIngestTargetDBSchema = "adbc.ingest.target_db_schema"

// Config selects the database file and the driver library.
type Config struct {
	Path       string      `yaml:"path" validate:"required"`
	Driver     string      `yaml:"driver"`
	Extensions []Extension `yaml:"extensions"`
}

// Extension is a DuckDB extension installed and loaded at open.
type Extension struct {
	Name          string `yaml:"name"`
	LoadByDefault bool   `yaml:"load"`
}

// DefaultDriverPath is where the DuckDB shared library is looked up when
// Config.Driver is empty.
func DefaultDriverPath() string {
	if runtime.GOOS == "darwin" {
		return "/usr/local/lib/libduckdb.dylib"
	}
	return "/usr/local/lib/libduckdb.so"
}

// DB is a single ADBC connection to a DuckDB database. ADBC connections
// are not safe for concurrent use, so every call holds mu.
type DB struct {
	mu     sync.Mutex
	db     adbc.Database
	conn   adbc.Connection
	logger *zap.Logger
}

// Open loads the driver, opens the database file and loads extensions.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	driver := cfg.Driver
	if driver == "" {
		driver = DefaultDriverPath()
	}

	var drv drivermgr.Driver
	db, err := drv.NewDatabase(map[string]string{
		"driver":     driver,
		"entrypoint": "duckdb_adbc_init",
		"path":       cfg.Path,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB database: %w", err)
	}

	conn, err := db.Open(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open connection to DuckDB database: %w", err)
	}

	d := &DB{db: db, conn: conn, logger: logger}
	for _, ext := range cfg.Extensions {
		if !ext.LoadByDefault {
			continue
		}
		if err := d.Exec(ctx, fmt.Sprintf("INSTALL %s; LOAD %s;", ext.Name, ext.Name)); err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to install/load extension '%s': %w", ext.Name, err)
		}
	}
	return d, nil
}

// Exec runs a statement that returns no rows.
func (d *DB) Exec(ctx context.Context, sql string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	stmt, err := d.conn.NewStatement()
	if err != nil {
		return fmt.Errorf("failed to create statement: %w", err)
	}
	defer stmt.Close()

	if err := stmt.SetSqlQuery(sql); err != nil {
		return fmt.Errorf("failed to set SQL query: %w", err)
	}
	if _, err := stmt.ExecuteUpdate(ctx); err != nil {
		return fmt.Errorf("failed to execute %q: %w", firstLine(sql), err)
	}
	return nil
}

// RunSQL runs a query and returns its result records. The caller releases them.
func (d *DB) RunSQL(ctx context.Context, sql string) ([]arrow.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	stmt, err := d.conn.NewStatement()
	if err != nil {
		return nil, fmt.Errorf("failed to create new statement: %w", err)
	}
	defer stmt.Close()

	if err := stmt.SetSqlQuery(sql); err != nil {
		return nil, fmt.Errorf("failed to set SQL query: %w", err)
	}

	out, _, err := stmt.ExecuteQuery(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer out.Release()

	var result []arrow.Record
	for out.Next() {
		rec := out.Record()
		rec.Retain()
		result = append(result, rec)
	}
	if err := out.Err(); err != nil {
		for _, rec := range result {
			rec.Release()
		}
		return nil, err
	}
	return result, nil
}

// Close closes the connection and the database.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.conn.Close()
	if cerr := d.db.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Sink ingests records into DuckDB tables. Table names may be schema
// qualified ("ingestion.trips"); the schema is created when missing.
type Sink struct {
	db *DB
}

var _ sink.RecordSink = (*Sink)(nil)

// NewSink returns a sink over db. Closing the sink closes db.
func NewSink(db *DB) *Sink {
	return &Sink{db: db}
}

// Prepare drops the table for replace. Merge is not supported.
func (s *Sink) Prepare(ctx context.Context, target sink.Target) error {
	if target.Mode == sink.Merge {
		return fmt.Errorf("duckdb %s: %w", target.Mode, sink.ErrUnsupportedMode)
	}
	dbSchema, table := splitTable(target.Name)
	if dbSchema != "" {
		if err := s.db.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", quote(dbSchema))); err != nil {
			return err
		}
	}
	if target.Mode == sink.Replace {
		s.db.logger.Info("replacing table", zap.String("table", target.Name))
		name := quote(table)
		if dbSchema != "" {
			name = quote(dbSchema) + "." + name
		}
		return s.db.Exec(ctx, "DROP TABLE IF EXISTS "+name)
	}
	return nil
}

// Write bulk ingests rec, creating the table on first use.
func (s *Sink) Write(ctx context.Context, target sink.Target, rec arrow.Record) (sink.WriteResult, error) {
	res := sink.WriteResult{Target: target}
	if target.Mode == sink.Merge {
		return res, fmt.Errorf("duckdb %s: %w", target.Mode, sink.ErrUnsupportedMode)
	}
	if rec.NumRows() == 0 {
		return res, nil
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	stmt, err := s.db.conn.NewStatement()
	if err != nil {
		return res, fmt.Errorf("failed to create statement: %w", err)
	}
	defer stmt.Close()

	dbSchema, table := splitTable(target.Name)
	if err := stmt.SetOption(adbc.OptionKeyIngestMode, adbc.OptionValueIngestModeCreateAppend); err != nil {
		return res, fmt.Errorf("failed to set ingest mode: %w", err)
	}
	if err := stmt.SetOption(adbc.OptionKeyIngestTargetTable, table); err != nil {
		return res, fmt.Errorf("failed to set target table: %w", err)
	}
	if dbSchema != "" {
		if err := stmt.SetOption(optionKeyIngestTargetDBSchema, dbSchema); err != nil {
			return res, fmt.Errorf("failed to set target schema: %w", err)
		}
	}
	if err := stmt.Bind(ctx, rec); err != nil {
		return res, fmt.Errorf("failed to bind record: %w", err)
	}
	if _, err := stmt.ExecuteUpdate(ctx); err != nil {
		return res, fmt.Errorf("failed to ingest into %s: %w", target.Name, err)
	}
	res.Rows = rec.NumRows()
	return res, nil
}

func (s *Sink) Close() error {
	return s.db.Close()
}

func splitTable(name string) (string, string) {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func firstLine(sql string) string {
	sql = strings.TrimSpace(sql)
	if i := strings.IndexByte(sql, '\n'); i >= 0 {
		return sql[:i]
	}
	return sql
}
