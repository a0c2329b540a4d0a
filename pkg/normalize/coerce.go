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

package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/decimal128"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/arrowarc/tripload/pkg/schema"
)

type kind uint8

const (
	kindString kind = iota
	kindInt
	kindUint
	kindFloat
	kindBool
	kindTime
	kindDecimal
)

// cell is one non-null source value, whatever the raw column's type.
type cell struct {
	kind  kind
	s     string
	i     int64
	u     uint64
	f     float64
	b     bool
	t     time.Time
	d     decimal128.Num
	scale int32
}

// accessor returns a reader for the non-null cells of arr. The second
// result is false for array types normalization does not understand;
// those cells become nulls.
func accessor(arr arrow.Array) func(i int) (cell, bool) {
	switch a := arr.(type) {
	case *array.String:
		return func(i int) (cell, bool) { return cell{kind: kindString, s: a.Value(i)}, true }
	case *array.LargeString:
		return func(i int) (cell, bool) { return cell{kind: kindString, s: a.Value(i)}, true }
	case *array.Int8:
		return func(i int) (cell, bool) { return cell{kind: kindInt, i: int64(a.Value(i))}, true }
	case *array.Int16:
		return func(i int) (cell, bool) { return cell{kind: kindInt, i: int64(a.Value(i))}, true }
	case *array.Int32:
		return func(i int) (cell, bool) { return cell{kind: kindInt, i: int64(a.Value(i))}, true }
	case *array.Int64:
		return func(i int) (cell, bool) { return cell{kind: kindInt, i: a.Value(i)}, true }
	case *array.Uint8:
		return func(i int) (cell, bool) { return cell{kind: kindUint, u: uint64(a.Value(i))}, true }
	case *array.Uint16:
		return func(i int) (cell, bool) { return cell{kind: kindUint, u: uint64(a.Value(i))}, true }
	case *array.Uint32:
		return func(i int) (cell, bool) { return cell{kind: kindUint, u: uint64(a.Value(i))}, true }
	case *array.Uint64:
		return func(i int) (cell, bool) { return cell{kind: kindUint, u: a.Value(i)}, true }
	case *array.Float32:
		return func(i int) (cell, bool) { return cell{kind: kindFloat, f: float64(a.Value(i))}, true }
	case *array.Float64:
		return func(i int) (cell, bool) { return cell{kind: kindFloat, f: a.Value(i)}, true }
	case *array.Boolean:
		return func(i int) (cell, bool) { return cell{kind: kindBool, b: a.Value(i)}, true }
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return func(i int) (cell, bool) { return cell{kind: kindTime, t: a.Value(i).ToTime(unit)}, true }
	case *array.Date32:
		return func(i int) (cell, bool) { return cell{kind: kindTime, t: a.Value(i).ToTime()}, true }
	case *array.Date64:
		return func(i int) (cell, bool) { return cell{kind: kindTime, t: a.Value(i).ToTime()}, true }
	case *array.Decimal128:
		scale := a.DataType().(*arrow.Decimal128Type).Scale
		return func(i int) (cell, bool) { return cell{kind: kindDecimal, d: a.Value(i), scale: scale}, true }
	case *array.Dictionary:
		values := accessor(a.Dictionary())
		dict := a.Dictionary()
		return func(i int) (cell, bool) {
			idx := a.GetValueIndex(i)
			if dict.IsNull(idx) {
				return cell{}, false
			}
			return values(idx)
		}
	}
	return func(int) (cell, bool) { return cell{}, false }
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"01/02/2006 03:04:05 PM",
	"01/02/2006 15:04",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func toString(c cell) (string, bool) {
	switch c.kind {
	case kindString:
		return c.s, true
	case kindInt:
		return strconv.FormatInt(c.i, 10), true
	case kindUint:
		return strconv.FormatUint(c.u, 10), true
	case kindFloat:
		if math.IsNaN(c.f) || math.IsInf(c.f, 0) {
			return "", false
		}
		return strconv.FormatFloat(c.f, 'f', -1, 64), true
	case kindBool:
		return strconv.FormatBool(c.b), true
	case kindTime:
		return c.t.UTC().Format("2006-01-02 15:04:05.999999"), true
	case kindDecimal:
		return c.d.ToString(c.scale), true
	}
	return "", false
}

func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func toInt64(c cell) (int64, bool) {
	switch c.kind {
	case kindString:
		s := strings.TrimSpace(c.s)
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return v, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return floatToInt(f)
	case kindInt:
		return c.i, true
	case kindUint:
		if c.u > math.MaxInt64 {
			return 0, false
		}
		return int64(c.u), true
	case kindFloat:
		return floatToInt(c.f)
	case kindBool:
		if c.b {
			return 1, true
		}
		return 0, true
	case kindDecimal:
		return floatToInt(c.d.ToFloat64(c.scale))
	}
	return 0, false
}

func toFloat64(c cell) (float64, bool) {
	var f float64
	switch c.kind {
	case kindString:
		v, err := strconv.ParseFloat(strings.TrimSpace(c.s), 64)
		if err != nil {
			return 0, false
		}
		f = v
	case kindInt:
		f = float64(c.i)
	case kindUint:
		f = float64(c.u)
	case kindFloat:
		f = c.f
	case kindBool:
		if c.b {
			f = 1
		}
	case kindDecimal:
		f = c.d.ToFloat64(c.scale)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// toDecimal renders the value in its shortest decimal form first, so a
// float64 0.1 becomes exactly 0.100000000 rather than its binary expansion.
func toDecimal(c cell) (decimal128.Num, bool) {
	var s string
	switch c.kind {
	case kindString:
		s = strings.TrimSpace(c.s)
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return decimal128.Num{}, false
		}
	case kindInt, kindUint, kindFloat, kindDecimal:
		var ok bool
		if s, ok = toString(c); !ok {
			return decimal128.Num{}, false
		}
	case kindBool:
		s = "0"
		if c.b {
			s = "1"
		}
	default:
		return decimal128.Num{}, false
	}
	n, err := decimal128.FromString(s, schema.DecimalPrecision, schema.DecimalScale)
	if err != nil {
		return decimal128.Num{}, false
	}
	return n, true
}

// toTimestamp truncates to microseconds.
func toTimestamp(c cell) (arrow.Timestamp, bool) {
	var t time.Time
	switch c.kind {
	case kindString:
		var ok bool
		if t, ok = parseTimestamp(c.s); !ok {
			return 0, false
		}
	case kindTime:
		t = c.t
	default:
		return 0, false
	}
	return arrow.Timestamp(t.UnixMicro()), true
}

// column builds one output column of n rows. get yields the source cell of
// row i, or false for a null. It returns the number of cells that had a
// value but could not be coerced and were nulled.
func column(mem memory.Allocator, t schema.ColumnType, n int, get func(i int) (cell, bool)) (arrow.Array, int, error) {
	dt, err := t.ArrowType()
	if err != nil {
		return nil, 0, err
	}
	bldr := array.NewBuilder(mem, dt)
	defer bldr.Release()
	bldr.Reserve(n)

	failed := 0
	for i := 0; i < n; i++ {
		c, ok := get(i)
		if !ok {
			bldr.AppendNull()
			continue
		}
		if !appendCell(bldr, t, c) {
			bldr.AppendNull()
			failed++
		}
	}
	return bldr.NewArray(), failed, nil
}

func appendCell(bldr array.Builder, t schema.ColumnType, c cell) bool {
	switch t {
	case schema.String:
		v, ok := toString(c)
		if ok {
			bldr.(*array.StringBuilder).Append(v)
		}
		return ok
	case schema.Int64:
		v, ok := toInt64(c)
		if ok {
			bldr.(*array.Int64Builder).Append(v)
		}
		return ok
	case schema.Float64:
		v, ok := toFloat64(c)
		if ok {
			bldr.(*array.Float64Builder).Append(v)
		}
		return ok
	case schema.Decimal:
		v, ok := toDecimal(c)
		if ok {
			bldr.(*array.Decimal128Builder).Append(v)
		}
		return ok
	case schema.Timestamp:
		v, ok := toTimestamp(c)
		if ok {
			bldr.(*array.TimestampBuilder).Append(v)
		}
		return ok
	}
	return false
}
