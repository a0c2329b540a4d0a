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

package pipeline

import (
	"context"
	"errors"
	"io"

	"github.com/arrowarc/tripload/integrations/filesystem"
	"github.com/arrowarc/tripload/pkg/sink"
)

// TableUploader streams normalized Parquet files into a table, ChunkSize
// rows per write. Concurrent uploads share the session, so the table is
// prepared once for the whole run.
type TableUploader struct {
	Session   *sink.Session
	ChunkSize int
}

func (u *TableUploader) Upload(ctx context.Context, f NormalizedFile) (sink.WriteResult, error) {
	total := sink.WriteResult{Target: u.Session.Target()}
	if err := u.Session.Prepare(ctx); err != nil {
		return total, err
	}

	r, err := filesystem.NewParquetReader(ctx, f.Path, &filesystem.ParquetReadOptions{ChunkSize: int64(u.ChunkSize)})
	if err != nil {
		return total, &sink.WriteError{Target: total.Target, Err: err}
	}
	defer r.Close()

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, &sink.WriteError{Target: total.Target, Err: err}
		}
		res, err := u.Session.Write(ctx, rec)
		if res.Bytes == 0 {
			res.Bytes = recordSize(rec)
		}
		rec.Release()
		if err != nil {
			return total, err
		}
		total.Rows += res.Rows
		total.Bytes += res.Bytes
	}
}
