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

package filesystem

import (
	"context"
	stdcsv "encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/csv"
	"github.com/apache/arrow/go/v17/arrow/memory"
	pool "github.com/arrowarc/tripload/internal/memory"
	"github.com/klauspost/compress/gzip"
)

// DefaultChunkSize is the number of rows per record batch read from a file.
const DefaultChunkSize = 100_000

// ErrEmptyFile is returned when a CSV file has no header row.
var ErrEmptyFile = errors.New("file has no header row")

// CSVReadOptions defines options for reading CSV files.
type CSVReadOptions struct {
	ChunkSize int
	Delimiter rune
	// Gzip forces gzip decoding. Files ending in .gz are always decoded.
	Gzip bool
}

func (o CSVReadOptions) withDefaults(path string) CSVReadOptions {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Delimiter == 0 {
		o.Delimiter = ','
	}
	if strings.HasSuffix(path, ".gz") {
		o.Gzip = true
	}
	return o
}

// CSVReader reads a CSV file with a header row as record batches. Every
// column is read as a nullable string; empty cells are nulls. Typing is
// left to normalization.
type CSVReader struct {
	file   *os.File
	gz     *gzip.Reader
	reader *csv.Reader
	schema *arrow.Schema
	alloc  memory.Allocator
	ctx    context.Context
}

// NewCSVReader opens filePath and reads its header to build the schema.
func NewCSVReader(ctx context.Context, filePath string, opts CSVReadOptions) (*CSVReader, error) {
	opts = opts.withDefaults(filePath)

	header, err := readCSVHeader(filePath, opts)
	if err != nil {
		return nil, err
	}

	fields := make([]arrow.Field, len(header))
	for i, name := range header {
		fields[i] = arrow.Field{Name: name, Type: arrow.BinaryTypes.String, Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	file, r, gz, err := openMaybeGzip(filePath, opts.Gzip)
	if err != nil {
		return nil, err
	}

	alloc := pool.GetAllocator()
	reader := csv.NewReader(r, schema,
		csv.WithAllocator(alloc),
		csv.WithChunk(opts.ChunkSize),
		csv.WithComma(opts.Delimiter),
		csv.WithHeader(true),
		csv.WithNullReader(true, ""),
	)

	return &CSVReader{file: file, gz: gz, reader: reader, schema: schema, alloc: alloc, ctx: ctx}, nil
}

func openMaybeGzip(filePath string, compressed bool) (*os.File, io.Reader, *gzip.Reader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	if !compressed {
		return file, file, nil, nil
	}
	gz, err := gzip.NewReader(file)
	if err != nil {
		file.Close()
		return nil, nil, nil, fmt.Errorf("failed to open gzip stream of %s: %w", filePath, err)
	}
	return file, gz, gz, nil
}

func readCSVHeader(filePath string, opts CSVReadOptions) ([]string, error) {
	file, r, gz, err := openMaybeGzip(filePath, opts.Gzip)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if gz != nil {
		defer gz.Close()
	}

	cr := stdcsv.NewReader(r)
	cr.Comma = opts.Delimiter
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: %w", filePath, ErrEmptyFile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header of %s: %w", filePath, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return header, nil
}

// Read returns the next batch, or io.EOF.
func (r *CSVReader) Read() (arrow.Record, error) {
	if err := r.ctx.Err(); err != nil {
		return nil, err
	}
	if !r.reader.Next() {
		if err := r.reader.Err(); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("error reading CSV record: %w", err)
		}
		return nil, io.EOF
	}

	record := r.reader.Record()
	if record == nil {
		return nil, io.EOF
	}
	record.Retain()
	return record, nil
}

func (r *CSVReader) Schema() *arrow.Schema {
	return r.schema
}

// Close releases resources associated with the CSV reader.
func (r *CSVReader) Close() error {
	defer pool.PutAllocator(r.alloc)
	r.reader.Release()
	if r.gz != nil {
		r.gz.Close()
	}
	return r.file.Close()
}

// CSVWriteOptions defines options for writing CSV files.
type CSVWriteOptions struct {
	Delimiter rune
	Gzip      bool
}

// CSVWriter writes records to a CSV file with a header row. Nulls are
// written as empty cells.
type CSVWriter struct {
	file   *os.File
	gz     *gzip.Writer
	writer *csv.Writer
}

// NewCSVWriter creates filePath. Files ending in .gz are always compressed.
func NewCSVWriter(filePath string, schema *arrow.Schema, opts CSVWriteOptions) (*CSVWriter, error) {
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV file: %w", err)
	}

	w := &CSVWriter{file: file}
	var out io.Writer = file
	if opts.Gzip || strings.HasSuffix(filePath, ".gz") {
		w.gz = gzip.NewWriter(file)
		out = w.gz
	}
	w.writer = csv.NewWriter(out, schema,
		csv.WithComma(opts.Delimiter),
		csv.WithHeader(true),
		csv.WithNullWriter(""),
	)
	return w, nil
}

// Write writes a record to the CSV file.
func (w *CSVWriter) Write(record arrow.Record) error {
	if err := w.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write record to CSV: %w", err)
	}
	return nil
}

// Close flushes the CSV writer and the gzip stream, then closes the file.
func (w *CSVWriter) Close() error {
	w.writer.Flush()
	err := w.writer.Error()
	if w.gz != nil {
		if cerr := w.gz.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if cerr := w.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to close CSV writer: %w", err)
	}
	return nil
}
