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

// Package report runs the summary queries over a loaded trips table.
package report

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
)

// Querier runs a query and returns its result batches. *duckdb.DB
// implements it.
type Querier interface {
	RunSQL(ctx context.Context, sql string) ([]arrow.Record, error)
}

// Columns names the columns the queries read.
type Columns struct {
	Pickup  string
	Dropoff string
	Payment string
	Tip     string
}

// TripsAPIColumns are the column names of the paged API table.
var TripsAPIColumns = Columns{
	Pickup:  "trip_pickup_date_time",
	Dropoff: "trip_dropoff_date_time",
	Payment: "payment_type",
	Tip:     "tip_amt",
}

// PaymentShare is one payment type's part of all trips.
type PaymentShare struct {
	PaymentType string
	Trips       int64
	Percent     float64
}

// Summary answers the questions asked of a freshly loaded table.
type Summary struct {
	Table     string
	Start     time.Time
	End       time.Time
	Payments  []PaymentShare
	TotalTips float64
}

// Run executes the three summary queries against table.
func Run(ctx context.Context, q Querier, table string, cols Columns) (Summary, error) {
	s := Summary{Table: table}

	err := each(ctx, q, fmt.Sprintf(
		"SELECT MIN(%s) AS start_date, MAX(%s) AS end_date FROM %s",
		cols.Pickup, cols.Dropoff, table),
		func(rec arrow.Record, i int) {
			s.Start, _ = timeAt(rec.Column(0), i)
			s.End, _ = timeAt(rec.Column(1), i)
		})
	if err != nil {
		return s, fmt.Errorf("date range: %w", err)
	}

	err = each(ctx, q, fmt.Sprintf(
		`SELECT CAST(%[1]s AS VARCHAR) AS payment_type,
		        COUNT(*) AS trips,
		        CAST(ROUND(100.0 * COUNT(*) / SUM(COUNT(*)) OVER (), 2) AS DOUBLE) AS pct
		 FROM %[2]s
		 GROUP BY %[1]s
		 ORDER BY trips DESC`,
		cols.Payment, table),
		func(rec arrow.Record, i int) {
			p := PaymentShare{}
			if !rec.Column(0).IsNull(i) {
				p.PaymentType = rec.Column(0).ValueStr(i)
			}
			p.Trips, _ = int64At(rec.Column(1), i)
			p.Percent, _ = float64At(rec.Column(2), i)
			s.Payments = append(s.Payments, p)
		})
	if err != nil {
		return s, fmt.Errorf("payment types: %w", err)
	}

	err = each(ctx, q, fmt.Sprintf(
		"SELECT CAST(SUM(%s) AS DOUBLE) AS total_tips FROM %s", cols.Tip, table),
		func(rec arrow.Record, i int) {
			s.TotalTips, _ = float64At(rec.Column(0), i)
		})
	if err != nil {
		return s, fmt.Errorf("total tips: %w", err)
	}
	return s, nil
}

// String renders the summary as aligned text.
func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "table:      %s\n", s.Table)
	fmt.Fprintf(&b, "start date: %s\n", formatTime(s.Start))
	fmt.Fprintf(&b, "end date:   %s\n", formatTime(s.End))
	fmt.Fprintf(&b, "total tips: %.2f\n\n", s.TotalTips)

	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "payment_type\ttrips\tpct\t")
	for _, p := range s.Payments {
		name := p.PaymentType
		if name == "" {
			name = "(null)"
		}
		fmt.Fprintf(w, "%s\t%d\t%.2f\t\n", name, p.Trips, p.Percent)
	}
	w.Flush()
	return b.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

// each calls fn for every result row and releases the batches.
func each(ctx context.Context, q Querier, sql string, fn func(rec arrow.Record, i int)) error {
	recs, err := q.RunSQL(ctx, sql)
	if err != nil {
		return err
	}
	defer func() {
		for _, rec := range recs {
			rec.Release()
		}
	}()
	for _, rec := range recs {
		for i := 0; i < int(rec.NumRows()); i++ {
			fn(rec, i)
		}
	}
	return nil
}

func timeAt(arr arrow.Array, i int) (time.Time, bool) {
	if arr.IsNull(i) {
		return time.Time{}, false
	}
	switch a := arr.(type) {
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit), true
	case *array.Date32:
		return a.Value(i).ToTime(), true
	case *array.String:
		t, err := time.Parse("2006-01-02 15:04:05", a.Value(i))
		return t, err == nil
	}
	return time.Time{}, false
}

func int64At(arr arrow.Array, i int) (int64, bool) {
	if arr.IsNull(i) {
		return 0, false
	}
	switch a := arr.(type) {
	case *array.Int64:
		return a.Value(i), true
	case *array.Int32:
		return int64(a.Value(i)), true
	case *array.Uint64:
		return int64(a.Value(i)), true
	}
	return 0, false
}

func float64At(arr arrow.Array, i int) (float64, bool) {
	if arr.IsNull(i) {
		return 0, false
	}
	switch a := arr.(type) {
	case *array.Float64:
		return a.Value(i), true
	case *array.Float32:
		return float64(a.Value(i)), true
	case *array.Int64:
		return float64(a.Value(i)), true
	case *array.Decimal128:
		scale := a.DataType().(*arrow.Decimal128Type).Scale
		return a.Value(i).ToFloat64(scale), true
	}
	return 0, false
}
