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

// Package arrio defines the record stream interfaces shared by the file
// readers, API sources and sinks.
package arrio

import (
	"errors"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
)

// Reader is the interface that wraps the Read method. Read returns io.EOF
// once the stream is exhausted. The caller owns the returned record and
// must release it.
type Reader interface {
	Read() (arrow.Record, error)
}

// Writer is the interface that wraps the Write method. Write does not take
// ownership of rec.
type Writer interface {
	Write(rec arrow.Record) error
}

// ReadCloser is a Reader with a known schema that holds resources.
type ReadCloser interface {
	Reader
	Schema() *arrow.Schema
	Close() error
}

// WriteCloser is a Writer that must be closed to flush.
type WriteCloser interface {
	Writer
	Close() error
}

// Copy copies every record from src to dst, releasing each one after it is
// written. It returns the number of rows copied.
//
// A successful Copy returns err == nil, not err == EOF.
func Copy(dst Writer, src Reader) (rows int64, err error) {
	return Transform(dst, src, nil)
}

// Transform is Copy with fn applied to every record before it is written.
// fn returns a new record reference; a nil fn copies records unchanged.
func Transform(dst Writer, src Reader, fn func(arrow.Record) (arrow.Record, error)) (rows int64, err error) {
	for {
		rec, err := src.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return rows, nil
			}
			return rows, err
		}
		if fn != nil {
			out, err := fn(rec)
			rec.Release()
			if err != nil {
				return rows, err
			}
			rec = out
		}
		err = dst.Write(rec)
		n := rec.NumRows()
		rec.Release()
		if err != nil {
			return rows, err
		}
		rows += n
	}
}
