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

// Package filesystem reads and writes the local trip files of a run: raw
// downloads in either published format and the normalized Parquet output.
package filesystem

import (
	"context"
	"fmt"

	"github.com/arrowarc/tripload/internal/arrio"
	"github.com/arrowarc/tripload/pkg/tripdata"
)

// OpenRaw opens a downloaded trip file as a record stream, picking the
// reader by its published format.
func OpenRaw(ctx context.Context, filePath string, format tripdata.Format, chunkSize int) (arrio.ReadCloser, error) {
	switch format {
	case tripdata.Parquet:
		r, err := NewParquetReader(ctx, filePath, &ParquetReadOptions{ChunkSize: int64(chunkSize)})
		if err != nil {
			return nil, err
		}
		return r, nil
	case tripdata.CSVGzip:
		r, err := NewCSVReader(ctx, filePath, CSVReadOptions{ChunkSize: chunkSize, Gzip: true})
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	return nil, fmt.Errorf("unsupported file format %q", format)
}
