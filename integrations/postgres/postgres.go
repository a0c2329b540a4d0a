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

// Package postgres writes normalized trip batches into PostgreSQL tables
// with COPY, and upserts them through a staging table in merge mode.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/arrowarc/tripload/pkg/schema"
	"github.com/arrowarc/tripload/pkg/sink"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Config holds connection settings. Field names follow the ingest flags.
type Config struct {
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password"`
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"gte=1,lte=65535"`
	Database string `yaml:"database" validate:"required"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN renders cfg as a postgresql:// connection URL.
func DSN(cfg Config) string {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   cfg.Host + ":" + strconv.Itoa(port),
		Path:   "/" + cfg.Database,
	}
	mode := cfg.SSLMode
	if mode == "" {
		mode = "disable"
	}
	u.RawQuery = url.Values{"sslmode": {mode}}.Encode()
	return u.String()
}

// Sink is a sink.RecordSink over a PostgreSQL database.
type Sink struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ sink.RecordSink = (*Sink)(nil)

// Open connects with lib/pq and pings the server.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Sink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return NewSink(db, logger), nil
}

// NewSink wraps an open database. The sink owns db and closes it.
func NewSink(db *sql.DB, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{db: db, logger: logger}
}

// Prepare drops and recreates the table for replace, and creates it when
// missing for append and merge. Merge needs a primary key.
func (s *Sink) Prepare(ctx context.Context, target sink.Target) error {
	if target.Schema == nil {
		return fmt.Errorf("target %s has no schema", target.Name)
	}
	table := quoteTable(target.Name)

	switch target.Mode {
	case sink.Replace:
		s.logger.Info("replacing table", zap.String("table", target.Name))
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("failed to drop %s: %w", target.Name, err)
		}
		if _, err := s.db.ExecContext(ctx, createTableSQL(table, target.Schema, false)); err != nil {
			return fmt.Errorf("failed to create %s: %w", target.Name, err)
		}
	case sink.Append:
		if _, err := s.db.ExecContext(ctx, createTableSQL(table, target.Schema, false)); err != nil {
			return fmt.Errorf("failed to create %s: %w", target.Name, err)
		}
	case sink.Merge:
		if len(target.Schema.PrimaryKey) == 0 {
			return fmt.Errorf("merge into %s without a primary key: %w", target.Name, sink.ErrUnsupportedMode)
		}
		if _, err := s.db.ExecContext(ctx, createTableSQL(table, target.Schema, true)); err != nil {
			return fmt.Errorf("failed to create %s: %w", target.Name, err)
		}
	default:
		return fmt.Errorf("mode %q: %w", target.Mode, sink.ErrUnsupportedMode)
	}
	return nil
}

// Write copies rec into the table in one transaction. In merge mode the
// rows go through a temporary staging table and are upserted.
func (s *Sink) Write(ctx context.Context, target sink.Target, rec arrow.Record) (sink.WriteResult, error) {
	res := sink.WriteResult{Target: target}
	if target.Schema == nil {
		return res, fmt.Errorf("target %s has no schema", target.Name)
	}
	if target.Mode == sink.Merge && len(target.Schema.PrimaryKey) == 0 {
		return res, fmt.Errorf("merge into %s without a primary key: %w", target.Name, sink.ErrUnsupportedMode)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	cols := target.Schema.Names()
	copyTable := target.Name
	if target.Mode == sink.Merge {
		copyTable = "tripload_stage_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		stmt := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
			pq.QuoteIdentifier(copyTable), quoteTable(target.Name))
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return res, fmt.Errorf("failed to create staging table: %w", err)
		}
	}

	rows, err := copyRecord(ctx, tx, copyTable, cols, rec)
	if err != nil {
		return res, err
	}

	if target.Mode == sink.Merge {
		if _, err := tx.ExecContext(ctx, upsertSQL(quoteTable(target.Name), pq.QuoteIdentifier(copyTable), target.Schema)); err != nil {
			return res, fmt.Errorf("failed to merge into %s: %w", target.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("failed to commit: %w", err)
	}
	res.Rows = rows
	s.logger.Debug("wrote batch", zap.String("table", target.Name), zap.Int64("rows", rows))
	return res, nil
}

func (s *Sink) Close() error {
	return s.db.Close()
}

func copyRecord(ctx context.Context, tx *sql.Tx, table string, cols []string, rec arrow.Record) (int64, error) {
	copyTable, copySchema := table, ""
	if i := strings.Index(table, "."); i >= 0 {
		copySchema, copyTable = table[:i], table[i+1:]
	}
	query := pq.CopyIn(copyTable, cols...)
	if copySchema != "" {
		query = pq.CopyInSchema(copySchema, copyTable, cols...)
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare copy into %s: %w", table, err)
	}
	defer stmt.Close()

	columns := make([]arrow.Array, len(cols))
	for i, name := range cols {
		idx := rec.Schema().FieldIndices(name)
		if len(idx) == 0 {
			return 0, fmt.Errorf("record has no column %q", name)
		}
		columns[i] = rec.Column(idx[0])
	}

	n := int(rec.NumRows())
	args := make([]interface{}, len(cols))
	for row := 0; row < n; row++ {
		for i, col := range columns {
			args[i] = value(col, row)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("failed to copy row %d into %s: %w", row, table, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return 0, fmt.Errorf("failed to flush copy into %s: %w", table, err)
	}
	return int64(n), nil
}

// value converts one cell of a normalized column to a driver value.
func value(arr arrow.Array, i int) interface{} {
	if arr.IsNull(i) {
		return nil
	}
	switch a := arr.(type) {
	case *array.String:
		return a.Value(i)
	case *array.Int64:
		return a.Value(i)
	case *array.Float64:
		return a.Value(i)
	case *array.Decimal128:
		return a.Value(i).ToString(a.DataType().(*arrow.Decimal128Type).Scale)
	case *array.Timestamp:
		return a.Value(i).ToTime(a.DataType().(*arrow.TimestampType).Unit).UTC()
	}
	return arr.ValueStr(i)
}

func quoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

func createTableSQL(table string, s *schema.Schema, withKey bool) string {
	defs := make([]string, 0, len(s.Columns)+1)
	for _, c := range s.Columns {
		defs = append(defs, pq.QuoteIdentifier(c.Name)+" "+c.Type.PostgresType())
	}
	if withKey && len(s.PrimaryKey) > 0 {
		defs = append(defs, "PRIMARY KEY ("+quoteList(s.PrimaryKey)+")")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(defs, ", "))
}

func upsertSQL(table, staging string, s *schema.Schema) string {
	key := make(map[string]bool, len(s.PrimaryKey))
	for _, k := range s.PrimaryKey {
		key[k] = true
	}
	var sets []string
	for _, c := range s.Columns {
		if key[c.Name] {
			continue
		}
		q := pq.QuoteIdentifier(c.Name)
		sets = append(sets, q+" = EXCLUDED."+q)
	}
	cols := quoteList(s.Names())
	conflict := "DO NOTHING"
	if len(sets) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		table, cols, cols, staging, quoteList(s.PrimaryKey), conflict)
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = pq.QuoteIdentifier(n)
	}
	return strings.Join(quoted, ", ")
}
