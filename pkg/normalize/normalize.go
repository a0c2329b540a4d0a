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

// Package normalize conforms raw trip batches to a static schema: columns
// are renamed, reordered, added as nulls when missing, dropped when extra,
// and every cell is coerced to its declared type.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/compute"
	"github.com/apache/arrow/go/v17/arrow/memory"
	intmem "github.com/arrowarc/tripload/internal/memory"
	"github.com/arrowarc/tripload/pkg/schema"
)

// Options tunes a single Normalize call.
type Options struct {
	// Constants sets a column to the same raw value on every row. Values
	// are coerced like any source cell, and override source columns of the
	// same output name.
	Constants map[string]string
	// Stats, when set, is filled with what normalization did to the batch.
	Stats *Stats
}

// Stats describes the changes made to one batch. A Stats shared across
// batches lists each missing or dropped column once.
type Stats struct {
	// Missing lists output columns absent from the source and without a
	// default, emitted as nulls.
	Missing []string
	// Dropped lists source columns not in the schema.
	Dropped []string
	// Coerced counts, per column, non-null cells nulled because they could
	// not be converted.
	Coerced map[string]int
	// FilteredRows counts rows removed for a null required column.
	FilteredRows int64
}

// Normalize returns a new record whose schema equals s.ArrowSchema(). The
// input is not released. Coercion failures produce nulls rather than
// errors; an error means the batch as a whole could not be built.
func Normalize(ctx context.Context, mem memory.Allocator, rec arrow.Record, s *schema.Schema, opts Options) (arrow.Record, error) {
	if rec == nil {
		return nil, errors.New("normalize: nil record")
	}
	if s == nil {
		return nil, errors.New("normalize: nil schema")
	}
	mem = intmem.OrDefault(mem)

	stats := opts.Stats
	if stats == nil {
		stats = &Stats{}
	}
	if stats.Coerced == nil {
		stats.Coerced = make(map[string]int)
	}

	sources := make(map[string]arrow.Array, rec.NumCols())
	for i, f := range rec.Schema().Fields() {
		name := s.Rename(f.Name)
		if _, ok := s.Column(name); !ok {
			if !slices.Contains(stats.Dropped, f.Name) {
				stats.Dropped = append(stats.Dropped, f.Name)
			}
			continue
		}
		// first occurrence wins when two raw names map to the same column
		if _, dup := sources[name]; !dup {
			sources[name] = rec.Column(i)
		}
	}

	n := int(rec.NumRows())
	cols := make([]arrow.Array, 0, len(s.Columns))
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	for _, c := range s.Columns {
		var get func(i int) (cell, bool)
		if v, ok := opts.Constants[c.Name]; ok {
			constant := cell{kind: kindString, s: v}
			get = func(int) (cell, bool) { return constant, true }
		} else if src, ok := sources[c.Name]; ok {
			read := accessor(src)
			get = func(i int) (cell, bool) {
				if src.IsNull(i) {
					return cell{}, false
				}
				return read(i)
			}
		} else if v, ok := s.Defaults[c.Name]; ok {
			fill := cell{kind: kindString, s: v}
			get = func(int) (cell, bool) { return fill, true }
		} else {
			if !slices.Contains(stats.Missing, c.Name) {
				stats.Missing = append(stats.Missing, c.Name)
			}
			get = func(int) (cell, bool) { return cell{}, false }
		}

		arr, failed, err := column(mem, c.Type, n, get)
		if err != nil {
			return nil, fmt.Errorf("normalize %s.%s: %w", s.Name, c.Name, err)
		}
		cols = append(cols, arr)
		if failed > 0 {
			stats.Coerced[c.Name] += failed
		}
	}

	out := array.NewRecord(s.ArrowSchema(), cols, int64(n))
	if len(s.Required) == 0 {
		return out, nil
	}

	filtered, err := dropMissingRequired(ctx, mem, out, s)
	out.Release()
	if err != nil {
		return nil, fmt.Errorf("normalize %s: %w", s.Name, err)
	}
	stats.FilteredRows += int64(n) - filtered.NumRows()
	return filtered, nil
}

// dropMissingRequired removes rows with a null in any required column. The
// returned record is always a new reference.
func dropMissingRequired(ctx context.Context, mem memory.Allocator, rec arrow.Record, s *schema.Schema) (arrow.Record, error) {
	required := make([]arrow.Array, 0, len(s.Required))
	nulls := 0
	for i, f := range rec.Schema().Fields() {
		for _, name := range s.Required {
			if f.Name == name {
				required = append(required, rec.Column(i))
				nulls += rec.Column(i).NullN()
			}
		}
	}
	if nulls == 0 {
		rec.Retain()
		return rec, nil
	}

	mask := array.NewBooleanBuilder(mem)
	defer mask.Release()
	mask.Reserve(int(rec.NumRows()))
	for row := 0; row < int(rec.NumRows()); row++ {
		keep := true
		for _, col := range required {
			if col.IsNull(row) {
				keep = false
				break
			}
		}
		mask.UnsafeAppend(keep)
	}
	filter := mask.NewBooleanArray()
	defer filter.Release()

	return compute.FilterRecordBatch(compute.WithAllocator(ctx, mem), rec, filter, compute.DefaultFilterOptions())
}
