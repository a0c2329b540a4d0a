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

// Package schema holds the static column specifications that normalization
// conforms raw trip files to, and their renditions for each sink.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/apache/arrow/go/v17/arrow"
)

// ColumnType is the logical type of a normalized column.
type ColumnType string

const (
	String    ColumnType = "string"
	Timestamp ColumnType = "timestamp"
	Int64     ColumnType = "int64"
	Decimal   ColumnType = "decimal"
	Float64   ColumnType = "float64"
)

// Decimal columns use BigQuery NUMERIC precision and scale.
const (
	DecimalPrecision = 38
	DecimalScale     = 9
)

var (
	timestampType = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}
	decimalType   = &arrow.Decimal128Type{Precision: DecimalPrecision, Scale: DecimalScale}
)

// ArrowType returns the Arrow type a column of this type is emitted as.
// Timestamps are always microsecond precision.
func (t ColumnType) ArrowType() (arrow.DataType, error) {
	switch t {
	case String:
		return arrow.BinaryTypes.String, nil
	case Timestamp:
		return timestampType, nil
	case Int64:
		return arrow.PrimitiveTypes.Int64, nil
	case Decimal:
		return decimalType, nil
	case Float64:
		return arrow.PrimitiveTypes.Float64, nil
	}
	return nil, fmt.Errorf("unknown column type %q", string(t))
}

// BigQueryType returns the BigQuery field type for this column type.
func (t ColumnType) BigQueryType() bigquery.FieldType {
	switch t {
	case Timestamp:
		return bigquery.TimestampFieldType
	case Int64:
		return bigquery.IntegerFieldType
	case Decimal:
		return bigquery.NumericFieldType
	case Float64:
		return bigquery.FloatFieldType
	default:
		return bigquery.StringFieldType
	}
}

// PostgresType returns the column definition type used in CREATE TABLE.
func (t ColumnType) PostgresType() string {
	switch t {
	case Timestamp:
		return "TIMESTAMPTZ"
	case Int64:
		return "BIGINT"
	case Decimal:
		return fmt.Sprintf("NUMERIC(%d,%d)", DecimalPrecision, DecimalScale)
	case Float64:
		return "DOUBLE PRECISION"
	default:
		return "TEXT"
	}
}

// Column is one output column of a schema.
type Column struct {
	Name string
	Type ColumnType
}

// Schema is the static specification of one dataset variant: how raw
// column names map to output names, and the ordered, typed output columns.
type Schema struct {
	Name      string
	RenameMap map[string]string
	Columns   []Column
	// LowercaseNames lowercases and trims raw column names before renaming.
	LowercaseNames bool
	// Required columns must be non-null; rows failing this are dropped.
	Required []string
	// Defaults fills a column with a raw value when the source does not
	// carry it at all. Nulls in a present column are kept.
	Defaults map[string]string
	// PrimaryKey is the upsert key for sinks that support merge.
	PrimaryKey []string
}

// Names returns the output column names in order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Column looks up an output column by name.
func (s *Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnsOfType returns the names of the output columns with type t.
func (s *Schema) ColumnsOfType(t ColumnType) []string {
	var names []string
	for _, c := range s.Columns {
		if c.Type == t {
			names = append(names, c.Name)
		}
	}
	return names
}

// Rename maps a raw column name to its output name. Unmapped names pass through.
func (s *Schema) Rename(raw string) string {
	name := raw
	if s.LowercaseNames {
		name = strings.ToLower(strings.TrimSpace(name))
	}
	if renamed, ok := s.RenameMap[name]; ok {
		return renamed
	}
	return name
}

// ArrowSchema returns the Arrow schema every normalized batch conforms to.
func (s *Schema) ArrowSchema() *arrow.Schema {
	fields := make([]arrow.Field, len(s.Columns))
	for i, c := range s.Columns {
		dt, err := c.Type.ArrowType()
		if err != nil {
			// Validate rejects unknown types; the predefined tables never hit this.
			dt = arrow.BinaryTypes.String
		}
		fields[i] = arrow.Field{Name: c.Name, Type: dt, Nullable: true}
	}
	md := arrow.NewMetadata([]string{"tripload.schema"}, []string{s.Name})
	return arrow.NewSchema(fields, &md)
}

// BigQuerySchema returns the explicit load schema for BigQuery.
func (s *Schema) BigQuerySchema() bigquery.Schema {
	out := make(bigquery.Schema, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = &bigquery.FieldSchema{Name: c.Name, Type: c.Type.BigQueryType()}
	}
	return out
}

// Validate checks that column names are unique and non-empty, that every
// type is known, and that Required and PrimaryKey only name output columns.
func (s *Schema) Validate() error {
	if s.Name == "" {
		return errors.New("schema name cannot be empty")
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("schema %q has no columns", s.Name)
	}
	seen := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		if c.Name == "" {
			return fmt.Errorf("schema %q has a column without a name", s.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("schema %q declares column %q twice", s.Name, c.Name)
		}
		seen[c.Name] = true
		if _, err := c.Type.ArrowType(); err != nil {
			return fmt.Errorf("schema %q column %q: %w", s.Name, c.Name, err)
		}
	}
	for _, name := range s.Required {
		if !seen[name] {
			return fmt.Errorf("schema %q requires unknown column %q", s.Name, name)
		}
	}
	for _, name := range s.PrimaryKey {
		if !seen[name] {
			return fmt.Errorf("schema %q primary key names unknown column %q", s.Name, name)
		}
	}
	for name := range s.Defaults {
		if !seen[name] {
			return fmt.Errorf("schema %q defaults unknown column %q", s.Name, name)
		}
	}
	return nil
}
