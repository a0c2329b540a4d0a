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
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/compress"
	"github.com/apache/arrow/go/v17/parquet/file"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
	pool "github.com/arrowarc/tripload/internal/memory"
)

// ParquetReader reads Parquet files as record batches.
type ParquetReader struct {
	recordReader pqarrow.RecordReader
	fileReader   *file.Reader
	schema       *arrow.Schema
	alloc        memory.Allocator
}

// ParquetReadOptions defines options for reading Parquet files.
type ParquetReadOptions struct {
	MemoryMap     bool
	ColumnIndices []int
	RowGroups     []int
	Parallel      bool
	ChunkSize     int64
}

func (o *ParquetReadOptions) toArrowReadProperties() pqarrow.ArrowReadProperties {
	batch := o.ChunkSize
	if batch <= 0 {
		batch = DefaultChunkSize
	}
	return pqarrow.ArrowReadProperties{
		Parallel:  o.Parallel,
		BatchSize: batch,
	}
}

// NewDefaultParquetWriterProperties returns the writer properties of every
// normalized file: snappy, one row group per 1M rows.
func NewDefaultParquetWriterProperties(alloc memory.Allocator) *parquet.WriterProperties {
	return parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
		parquet.WithAllocator(pool.OrDefault(alloc)),
		parquet.WithVersion(parquet.V2_LATEST),
		parquet.WithDataPageSize(1024*1024),
		parquet.WithMaxRowGroupLength(1024*1024),
		parquet.WithCreatedBy("tripload"),
	)
}

// NewDefaultArrowWriterProperties stores the Arrow schema in the file and
// keeps timestamps at microsecond precision.
func NewDefaultArrowWriterProperties() pqarrow.ArrowWriterProperties {
	return pqarrow.NewArrowWriterProperties(
		pqarrow.WithStoreSchema(),
		pqarrow.WithCoerceTimestamps(arrow.Microsecond),
		pqarrow.WithTruncatedTimestamps(true),
	)
}

// NewParquetReader opens a Parquet file reader.
func NewParquetReader(ctx context.Context, filePath string, opts *ParquetReadOptions) (*ParquetReader, error) {
	if opts == nil {
		opts = &ParquetReadOptions{}
	}
	alloc := pool.GetAllocator()

	rdr, err := file.OpenParquetFile(filePath, opts.MemoryMap)
	if err != nil {
		pool.PutAllocator(alloc)
		return nil, fmt.Errorf("failed to open Parquet file: %w", err)
	}

	fileReader, err := pqarrow.NewFileReader(rdr, opts.toArrowReadProperties(), alloc)
	if err != nil {
		pool.PutAllocator(alloc)
		rdr.Close()
		return nil, fmt.Errorf("failed to create Arrow file reader: %w", err)
	}

	schema, err := fileReader.Schema()
	if err != nil {
		pool.PutAllocator(alloc)
		rdr.Close()
		return nil, fmt.Errorf("failed to get schema: %w", err)
	}

	recordReader, err := fileReader.GetRecordReader(ctx, opts.ColumnIndices, opts.RowGroups)
	if err != nil {
		pool.PutAllocator(alloc)
		rdr.Close()
		return nil, fmt.Errorf("failed to create record reader: %w", err)
	}

	return &ParquetReader{
		recordReader: recordReader,
		fileReader:   rdr,
		schema:       schema,
		alloc:        alloc,
	}, nil
}

func (p *ParquetReader) Read() (arrow.Record, error) {
	if p.recordReader.Next() {
		record := p.recordReader.Record()
		record.Retain()
		return record, nil
	}
	if err := p.recordReader.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return nil, io.EOF
}

// NumRows is the row count recorded in the file footer.
func (p *ParquetReader) NumRows() int64 {
	return p.fileReader.NumRows()
}

func (p *ParquetReader) Close() error {
	defer pool.PutAllocator(p.alloc)
	p.recordReader.Release()
	return p.fileReader.Close()
}

func (p *ParquetReader) Schema() *arrow.Schema {
	return p.schema
}

// ParquetWriter writes records to a Parquet file.
type ParquetWriter struct {
	writer *pqarrow.FileWriter
	file   *os.File
	alloc  memory.Allocator
	rows   int64
}

// NewParquetWriter creates filePath. Nil properties select the defaults.
func NewParquetWriter(filePath string, schema *arrow.Schema, props *parquet.WriterProperties) (*ParquetWriter, error) {
	alloc := pool.GetAllocator()
	if props == nil {
		props = NewDefaultParquetWriterProperties(alloc)
	}

	f, err := os.Create(filePath)
	if err != nil {
		pool.PutAllocator(alloc)
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	writer, err := pqarrow.NewFileWriter(schema, f, props, NewDefaultArrowWriterProperties())
	if err != nil {
		f.Close()
		pool.PutAllocator(alloc)
		return nil, fmt.Errorf("failed to create Parquet writer: %w", err)
	}

	return &ParquetWriter{
		writer: writer,
		file:   f,
		alloc:  alloc,
	}, nil
}

func (p *ParquetWriter) Write(record arrow.Record) error {
	if err := p.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	p.rows += record.NumRows()
	return nil
}

// Rows is the number of rows written so far.
func (p *ParquetWriter) Rows() int64 {
	return p.rows
}

// Close writes the footer and closes the file.
func (p *ParquetWriter) Close() error {
	defer pool.PutAllocator(p.alloc)
	if err := p.writer.Close(); err != nil {
		p.file.Close()
		return fmt.Errorf("failed to close Parquet writer: %w", err)
	}
	// the parquet writer usually closes the file itself
	if err := p.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("failed to close Parquet file: %w", err)
	}
	return nil
}
