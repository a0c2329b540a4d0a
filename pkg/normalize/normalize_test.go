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
	"context"
	"math"
	"testing"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/arrowarc/tripload/internal/testutil"
	"github.com/arrowarc/tripload/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stringRecord builds an all-string batch; empty cells are nulls.
func stringRecord(mem memory.Allocator, names []string, rows [][]string) arrow.Record {
	fields := make([]arrow.Field, len(names))
	for i, n := range names {
		fields[i] = arrow.Field{Name: n, Type: arrow.BinaryTypes.String, Nullable: true}
	}
	b := array.NewRecordBuilder(mem, arrow.NewSchema(fields, nil))
	defer b.Release()
	for _, row := range rows {
		for i, v := range row {
			fb := b.Field(i).(*array.StringBuilder)
			if v == "" {
				fb.AppendNull()
			} else {
				fb.Append(v)
			}
		}
	}
	return b.NewRecord()
}

func columnByName(t *testing.T, rec arrow.Record, name string) arrow.Array {
	t.Helper()
	idx := rec.Schema().FieldIndices(name)
	require.NotEmpty(t, idx, "column %s not found", name)
	return rec.Column(idx[0])
}

func TestNormalizeSupersetDropsExtraColumns(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rec := stringRecord(mem,
		[]string{"VendorID", "tpep_pickup_datetime", "passenger_count", "fare_amount", "unexpected"},
		[][]string{{"1", "2019-01-01 00:46:40", "2", "7.5", "x"}},
	)
	defer rec.Release()

	var stats Stats
	out, err := Normalize(context.Background(), mem, rec, schema.Yellow, Options{Stats: &stats})
	require.NoError(t, err)
	defer out.Release()

	assert.True(t, out.Schema().Equal(schema.Yellow.ArrowSchema()), "schema should match the yellow table")
	assert.Equal(t, int64(1), out.NumRows())
	assert.Equal(t, []string{"unexpected"}, stats.Dropped)
	assert.Contains(t, stats.Missing, "dropoff_datetime")

	vendor := columnByName(t, out, "vendor_id").(*array.String)
	assert.Equal(t, "1", vendor.Value(0))
	passengers := columnByName(t, out, "passenger_count").(*array.Int64)
	assert.Equal(t, int64(2), passengers.Value(0))
	fare := columnByName(t, out, "fare_amount").(*array.Decimal128)
	assert.Equal(t, "7.500000000", fare.Value(0).ToString(schema.DecimalScale))
}

func TestNormalizeSubsetFillsNulls(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rec := stringRecord(mem, []string{"lpep_pickup_datetime"}, [][]string{{"2020-03-01 10:00:00"}, {"2020-03-01 11:00:00"}})
	defer rec.Release()

	out, err := Normalize(context.Background(), mem, rec, schema.Green, Options{})
	require.NoError(t, err)
	defer out.Release()

	assert.Equal(t, int64(len(schema.Green.Columns)), out.NumCols())
	assert.Equal(t, int64(2), out.NumRows())
	assert.Equal(t, 2, columnByName(t, out, "ehail_fee").NullN())
	assert.Equal(t, 2, columnByName(t, out, "vendor_id").NullN())
	assert.Equal(t, 0, columnByName(t, out, "pickup_datetime").NullN())
}

func TestNormalizeExactColumnsReordered(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rec := stringRecord(mem,
		[]string{"service_zone", "Zone", "Borough", "LocationID"},
		[][]string{{"EWR", "Newark Airport", "EWR", "1"}},
	)
	defer rec.Release()

	out, err := Normalize(context.Background(), mem, rec, schema.Zones, Options{})
	require.NoError(t, err)
	defer out.Release()

	for i, name := range schema.Zones.Names() {
		assert.Equal(t, name, out.Schema().Field(i).Name)
	}
	assert.Equal(t, int64(1), out.Column(0).(*array.Int64).Value(0))
	assert.Equal(t, "Newark Airport", out.Column(2).(*array.String).Value(0))
}

func TestNormalizeTimestampsAreMicroseconds(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	when := time.Date(2021, 7, 4, 12, 30, 15, 123456789, time.UTC)

	b := array.NewRecordBuilder(mem, arrow.NewSchema([]arrow.Field{
		{Name: "tpep_pickup_datetime", Type: &arrow.TimestampType{Unit: arrow.Nanosecond}, Nullable: true},
		{Name: "tpep_dropoff_datetime", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil))
	b.Field(0).(*array.TimestampBuilder).Append(arrow.Timestamp(when.UnixNano()))
	b.Field(1).(*array.StringBuilder).Append("2021-07-04T12:45:00Z")
	rec := b.NewRecord()
	b.Release()
	defer rec.Release()

	out, err := Normalize(context.Background(), mem, rec, schema.Yellow, Options{})
	require.NoError(t, err)
	defer out.Release()

	pickup := columnByName(t, out, "pickup_datetime").(*array.Timestamp)
	assert.Equal(t, arrow.Microsecond, pickup.DataType().(*arrow.TimestampType).Unit)
	assert.Equal(t, arrow.Timestamp(when.UnixMicro()), pickup.Value(0))

	dropoff := columnByName(t, out, "dropoff_datetime").(*array.Timestamp)
	assert.Equal(t, time.Date(2021, 7, 4, 12, 45, 0, 0, time.UTC), dropoff.Value(0).ToTime(arrow.Microsecond))
}

func TestNormalizeCoercionFailureBecomesNull(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rec := stringRecord(mem,
		[]string{"passenger_count", "tip_amount", "tpep_pickup_datetime"},
		[][]string{
			{"abc", "1.25", "not a date"},
			{"3", "lots", "2019-02-01 08:00:00"},
			{"2.0", "", ""},
		},
	)
	defer rec.Release()

	var stats Stats
	out, err := Normalize(context.Background(), mem, rec, schema.Yellow, Options{Stats: &stats})
	require.NoError(t, err)
	defer out.Release()

	passengers := columnByName(t, out, "passenger_count").(*array.Int64)
	assert.True(t, passengers.IsNull(0))
	assert.Equal(t, int64(3), passengers.Value(1))
	assert.Equal(t, int64(2), passengers.Value(2))

	tips := columnByName(t, out, "tip_amount")
	assert.False(t, tips.IsNull(0))
	assert.True(t, tips.IsNull(1))
	assert.True(t, tips.IsNull(2))

	pickup := columnByName(t, out, "pickup_datetime")
	assert.True(t, pickup.IsNull(0))
	assert.False(t, pickup.IsNull(1))

	assert.Equal(t, 1, stats.Coerced["passenger_count"])
	assert.Equal(t, 1, stats.Coerced["tip_amount"])
	assert.Equal(t, 1, stats.Coerced["pickup_datetime"])
}

func TestNormalizeDropsRowsMissingRequired(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rec := stringRecord(mem,
		[]string{"dispatching_base_num", "pickup_datetime", "SR_Flag"},
		[][]string{
			{"B00001", "2019-01-01 00:30:00", ""},
			{"", "2019-01-01 00:45:00", "1"},
			{"B00013", "2019-01-01 01:00:00", "1"},
		},
	)
	defer rec.Release()

	var stats Stats
	out, err := Normalize(context.Background(), mem, rec, schema.FHV, Options{Stats: &stats})
	require.NoError(t, err)
	defer out.Release()

	require.Equal(t, int64(2), out.NumRows())
	assert.Equal(t, int64(1), stats.FilteredRows)
	bases := out.Column(0).(*array.String)
	assert.Equal(t, "B00001", bases.Value(0))
	assert.Equal(t, "B00013", bases.Value(1))

	flag := columnByName(t, out, "sr_flag").(*array.Decimal128)
	assert.True(t, flag.IsNull(0))
	assert.Equal(t, "1.000000000", flag.Value(1).ToString(schema.DecimalScale))
}

func TestNormalizeConstants(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rec := stringRecord(mem, []string{"VendorID", "data_file_year"}, [][]string{{"2", "1999"}, {"1", "1999"}})
	defer rec.Release()

	out, err := Normalize(context.Background(), mem, rec, schema.Yellow, Options{
		Constants: map[string]string{
			schema.DataFileYear:  "2019",
			schema.DataFileMonth: "4",
		},
	})
	require.NoError(t, err)
	defer out.Release()

	year := columnByName(t, out, schema.DataFileYear).(*array.Int64)
	month := columnByName(t, out, schema.DataFileMonth).(*array.Int64)
	for i := 0; i < int(out.NumRows()); i++ {
		assert.Equal(t, int64(2019), year.Value(i))
		assert.Equal(t, int64(4), month.Value(i))
	}
}

func TestNormalizeStatsListColumnsOnceAcrossBatches(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	stats := &Stats{}
	for _, pickup := range []string{"2019-01-01 00:46:40", "2019-01-01 01:10:00", "2019-01-01 02:30:00"} {
		rec := stringRecord(mem, []string{"VendorID", "tpep_pickup_datetime", "unexpected"}, [][]string{{"1", pickup, "x"}})
		out, err := Normalize(context.Background(), mem, rec, schema.Yellow, Options{Stats: stats})
		rec.Release()
		require.NoError(t, err)
		out.Release()
	}

	assert.Equal(t, []string{"unexpected"}, stats.Dropped)
	seen := make(map[string]int, len(stats.Missing))
	for _, name := range stats.Missing {
		seen[name]++
	}
	assert.Equal(t, 1, seen["dropoff_datetime"])
	for name, n := range seen {
		assert.Equal(t, 1, n, name)
	}
}

func TestNormalizeWindowDefaultsMoneyColumns(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rec := stringRecord(mem,
		[]string{"VendorID", "tpep_pickup_datetime", "tip_amount"},
		[][]string{{"2", "2022-01-01 00:35:40", "1.5"}, {"1", "2022-01-01 00:50:00", ""}},
	)
	defer rec.Release()

	var stats Stats
	out, err := Normalize(context.Background(), mem, rec, schema.Window, Options{
		Constants: map[string]string{schema.TaxiType: "yellow"},
		Stats:     &stats,
	})
	require.NoError(t, err)
	defer out.Release()

	for _, name := range []string{"fare_amount", "total_amount"} {
		col := columnByName(t, out, name).(*array.Float64)
		assert.Equal(t, 0, col.NullN(), name)
		assert.Equal(t, 0.0, col.Value(0), name)
		assert.Equal(t, 0.0, col.Value(1), name)
		assert.NotContains(t, stats.Missing, name)
	}

	// a present column keeps its nulls
	tip := columnByName(t, out, "tip_amount").(*array.Float64)
	assert.Equal(t, 1.5, tip.Value(0))
	assert.True(t, tip.IsNull(1))

	// other missing columns stay null
	assert.Equal(t, 2, columnByName(t, out, "passenger_count").NullN())
	assert.Contains(t, stats.Missing, "passenger_count")
}

func TestNormalizeLowercasesNames(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b := array.NewRecordBuilder(mem, arrow.NewSchema([]arrow.Field{
		{Name: "VendorID", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
		{Name: "PULocationID", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
		{Name: "Payment_Type", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "Fare_Amount", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	}, nil))
	b.Field(0).(*array.Int32Builder).Append(2)
	b.Field(1).(*array.Int32Builder).Append(132)
	b.Field(2).(*array.Int64Builder).Append(1)
	b.Field(3).(*array.Float64Builder).Append(52)
	rec := b.NewRecord()
	b.Release()
	defer rec.Release()

	out, err := Normalize(context.Background(), mem, rec, schema.Window, Options{
		Constants: map[string]string{schema.TaxiType: "yellow"},
	})
	require.NoError(t, err)
	defer out.Release()

	assert.Equal(t, 2.0, columnByName(t, out, "vendorid").(*array.Float64).Value(0))
	assert.Equal(t, int64(132), columnByName(t, out, "pulocationid").(*array.Int64).Value(0))
	assert.Equal(t, 1.0, columnByName(t, out, "payment_type").(*array.Float64).Value(0))
	assert.Equal(t, 52.0, columnByName(t, out, "fare_amount").(*array.Float64).Value(0))
	assert.Equal(t, "yellow", columnByName(t, out, schema.TaxiType).(*array.String).Value(0))
}

func TestNormalizeIsIdempotent(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rec := stringRecord(mem,
		[]string{"LocationID", "Borough", "Zone", "service_zone"},
		[][]string{{"1", "EWR", "Newark Airport", "EWR"}, {"264", "Unknown", "NV", ""}},
	)
	defer rec.Release()

	once, err := Normalize(context.Background(), mem, rec, schema.Zones, Options{})
	require.NoError(t, err)
	defer once.Release()
	twice, err := Normalize(context.Background(), mem, once, schema.Zones, Options{})
	require.NoError(t, err)
	defer twice.Release()

	assert.Empty(t, testutil.Diff(once, twice))
}

func TestNormalizeRejectsNilInputs(t *testing.T) {
	_, err := Normalize(context.Background(), nil, nil, schema.Yellow, Options{})
	assert.Error(t, err)

	mem := memory.NewGoAllocator()
	rec := stringRecord(mem, []string{"a"}, [][]string{{"1"}})
	defer rec.Release()
	_, err = Normalize(context.Background(), mem, rec, nil, Options{})
	assert.Error(t, err)
}

func TestCoerceHelpers(t *testing.T) {
	tests := []struct {
		name string
		in   cell
		typ  schema.ColumnType
		ok   bool
	}{
		{"int from float string", cell{kind: kindString, s: "4.0"}, schema.Int64, true},
		{"int from fractional string", cell{kind: kindString, s: "4.5"}, schema.Int64, false},
		{"float from NaN", cell{kind: kindFloat, f: math.NaN()}, schema.Float64, false},
		{"decimal from int", cell{kind: kindInt, i: 12}, schema.Decimal, true},
		{"decimal from word", cell{kind: kindString, s: "N"}, schema.Decimal, false},
		{"timestamp from int", cell{kind: kindInt, i: 1}, schema.Timestamp, false},
		{"timestamp from US layout", cell{kind: kindString, s: "01/15/2019 07:05:00 PM"}, schema.Timestamp, true},
		{"string from bool", cell{kind: kindBool, b: true}, schema.String, true},
	}

	mem := memory.NewGoAllocator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dt, err := tt.typ.ArrowType()
			require.NoError(t, err)
			b := array.NewBuilder(mem, dt)
			defer b.Release()
			assert.Equal(t, tt.ok, appendCell(b, tt.typ, tt.in))
		})
	}
}

func TestToDecimalUsesShortestForm(t *testing.T) {
	n, ok := toDecimal(cell{kind: kindFloat, f: 0.1})
	require.True(t, ok)
	assert.Equal(t, "0.100000000", n.ToString(schema.DecimalScale))
}
