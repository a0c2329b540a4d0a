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

// Package generator writes synthetic monthly trip files shaped like the
// published TLC files, for tests and local runs without network access.
package generator

import (
	"fmt"
	"strconv"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/arrowarc/tripload/integrations/filesystem"
	"github.com/arrowarc/tripload/internal/arrio"
	"github.com/arrowarc/tripload/pkg/tripdata"
	"github.com/go-faker/faker/v4"
)

const batchSize = 1000

// Headers are the raw column names of each published data type.
var Headers = map[tripdata.DataType][]string{
	tripdata.Yellow: {
		"VendorID", "tpep_pickup_datetime", "tpep_dropoff_datetime", "passenger_count",
		"trip_distance", "RatecodeID", "store_and_fwd_flag", "PULocationID", "DOLocationID",
		"payment_type", "fare_amount", "extra", "mta_tax", "tip_amount", "tolls_amount",
		"improvement_surcharge", "total_amount", "congestion_surcharge",
	},
	tripdata.Green: {
		"VendorID", "lpep_pickup_datetime", "lpep_dropoff_datetime", "store_and_fwd_flag",
		"RatecodeID", "PULocationID", "DOLocationID", "passenger_count", "trip_distance",
		"fare_amount", "extra", "mta_tax", "tip_amount", "tolls_amount", "ehail_fee",
		"improvement_surcharge", "total_amount", "payment_type", "trip_type", "congestion_surcharge",
	},
	tripdata.FHV: {
		"dispatching_base_num", "pickup_datetime", "dropOff_datetime", "PUlocationID",
		"DOlocationID", "SR_Flag", "Affiliated_base_number",
	},
}

// fakeTrip holds the random parts of one trip. Money is in cents.
type fakeTrip struct {
	VendorID       int    `faker:"boundary_start=1, boundary_end=2"`
	PassengerCount int    `faker:"boundary_start=1, boundary_end=6"`
	DistanceHecto  int    `faker:"boundary_start=10, boundary_end=3000"`
	RateCode       int    `faker:"boundary_start=1, boundary_end=6"`
	StoreAndFwd    string `faker:"oneof: N, Y"`
	PULocationID   int    `faker:"boundary_start=1, boundary_end=265"`
	DOLocationID   int    `faker:"boundary_start=1, boundary_end=265"`
	PaymentType    int    `faker:"boundary_start=1, boundary_end=5"`
	FareCents      int    `faker:"boundary_start=250, boundary_end=12000"`
	TipCents       int    `faker:"boundary_start=0, boundary_end=2500"`
	TollsCents     int    `faker:"boundary_start=0, boundary_end=1200"`
	OffsetSeconds  int    `faker:"boundary_start=0, boundary_end=2419199"`
	DurationSecs   int    `faker:"boundary_start=60, boundary_end=5400"`
	DispatchBase   string `faker:"oneof: B00001, B00013, B00254, B02510, B02764"`
	MissingBase    int    `faker:"boundary_start=0, boundary_end=49"`
}

// Options controls generated content.
type Options struct {
	Year  int
	Month int
	// Rows is the number of trips to generate.
	Rows int
}

func (o Options) monthStart() time.Time {
	year, month := o.Year, o.Month
	if year == 0 {
		year = 2019
	}
	if month < 1 || month > 12 {
		month = 1
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
}

// RawSchema is the all-string schema of a raw file of data type t.
func RawSchema(t tripdata.DataType) (*arrow.Schema, error) {
	headers, ok := Headers[t]
	if !ok {
		return nil, fmt.Errorf("no headers for data type %q", t)
	}
	fields := make([]arrow.Field, len(headers))
	for i, h := range headers {
		fields[i] = arrow.Field{Name: h, Type: arrow.BinaryTypes.String, Nullable: true}
	}
	return arrow.NewSchema(fields, nil), nil
}

// NewRecord generates rows trips of data type t as a raw string record.
// Empty values are nulls: green ehail_fee is always null, and about one
// FHV trip in fifty has no dispatching base.
func NewRecord(mem memory.Allocator, t tripdata.DataType, opts Options, rows int) (arrow.Record, error) {
	sc, err := RawSchema(t)
	if err != nil {
		return nil, err
	}
	b := array.NewRecordBuilder(mem, sc)
	defer b.Release()

	start := opts.monthStart()
	for i := 0; i < rows; i++ {
		var ft fakeTrip
		if err := faker.FakeData(&ft); err != nil {
			return nil, fmt.Errorf("failed to generate trip: %w", err)
		}
		for col, v := range values(t, ft, start) {
			fb := b.Field(col).(*array.StringBuilder)
			if v == "" {
				fb.AppendNull()
				continue
			}
			fb.Append(v)
		}
	}
	return b.NewRecord(), nil
}

func values(t tripdata.DataType, ft fakeTrip, monthStart time.Time) []string {
	pickup := monthStart.Add(time.Duration(ft.OffsetSeconds) * time.Second)
	dropoff := pickup.Add(time.Duration(ft.DurationSecs) * time.Second)
	ts := func(t time.Time) string { return t.Format("2006-01-02 15:04:05") }
	itoa := strconv.Itoa
	money := func(cents int) string { return strconv.FormatFloat(float64(cents)/100, 'f', 2, 64) }

	extra, mta, surcharge, congestion := 50, 50, 30, 250
	total := ft.FareCents + extra + mta + ft.TipCents + ft.TollsCents + surcharge + congestion

	switch t {
	case tripdata.Yellow:
		return []string{
			itoa(ft.VendorID), ts(pickup), ts(dropoff), itoa(ft.PassengerCount),
			money(ft.DistanceHecto), itoa(ft.RateCode), ft.StoreAndFwd, itoa(ft.PULocationID), itoa(ft.DOLocationID),
			itoa(ft.PaymentType), money(ft.FareCents), money(extra), money(mta), money(ft.TipCents), money(ft.TollsCents),
			money(surcharge), money(total), money(congestion),
		}
	case tripdata.Green:
		return []string{
			itoa(ft.VendorID), ts(pickup), ts(dropoff), ft.StoreAndFwd,
			itoa(ft.RateCode), itoa(ft.PULocationID), itoa(ft.DOLocationID), itoa(ft.PassengerCount), money(ft.DistanceHecto),
			money(ft.FareCents), money(extra), money(mta), money(ft.TipCents), money(ft.TollsCents), "",
			money(surcharge), money(total), itoa(ft.PaymentType), "1", money(congestion),
		}
	default:
		base := ft.DispatchBase
		if ft.MissingBase == 0 {
			base = ""
		}
		return []string{
			base, ts(pickup), ts(dropoff), itoa(ft.PULocationID),
			itoa(ft.DOLocationID), "", base,
		}
	}
}

// GenerateTripsCSV writes a gzip CSV file (by the .gz suffix) of opts.Rows
// trips with the published raw headers.
func GenerateTripsCSV(path string, t tripdata.DataType, opts Options) error {
	sc, err := RawSchema(t)
	if err != nil {
		return err
	}
	w, err := filesystem.NewCSVWriter(path, sc, filesystem.CSVWriteOptions{})
	if err != nil {
		return err
	}
	return generate(w, t, opts)
}

// GenerateTripsParquet writes a Parquet file of opts.Rows trips with the
// published raw column names.
func GenerateTripsParquet(path string, t tripdata.DataType, opts Options) error {
	sc, err := RawSchema(t)
	if err != nil {
		return err
	}
	w, err := filesystem.NewParquetWriter(path, sc, nil)
	if err != nil {
		return err
	}
	return generate(w, t, opts)
}

func generate(w arrio.WriteCloser, t tripdata.DataType, opts Options) error {
	mem := memory.NewGoAllocator()
	for written := 0; written < opts.Rows; written += batchSize {
		n := min(batchSize, opts.Rows-written)
		rec, err := NewRecord(mem, t, opts, n)
		if err != nil {
			w.Close()
			return err
		}
		err = w.Write(rec)
		rec.Release()
		if err != nil {
			w.Close()
			return fmt.Errorf("failed to write trips: %w", err)
		}
	}
	return w.Close()
}
