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

package schema

import (
	"fmt"

	"github.com/arrowarc/tripload/pkg/tripdata"
)

// Metadata columns stamped onto every normalized row by the loaders.
const (
	DataFileYear  = "data_file_year"
	DataFileMonth = "data_file_month"
	TaxiType      = "taxi_type"
	ExtractedAt   = "extracted_at"
)

var Yellow = &Schema{
	Name: "yellow_tripdata",
	RenameMap: map[string]string{
		"VendorID":              "vendor_id",
		"tpep_pickup_datetime":  "pickup_datetime",
		"tpep_dropoff_datetime": "dropoff_datetime",
		"RatecodeID":            "rate_code",
		"improvement_surcharge": "imp_surcharge",
		"Airport_fee":           "airport_fee",
		"PULocationID":          "pickup_location_id",
		"DOLocationID":          "dropoff_location_id",
	},
	Columns: []Column{
		{"vendor_id", String},
		{"pickup_datetime", Timestamp},
		{"dropoff_datetime", Timestamp},
		{"passenger_count", Int64},
		{"trip_distance", Decimal},
		{"rate_code", String},
		{"store_and_fwd_flag", String},
		{"payment_type", String},
		{"fare_amount", Decimal},
		{"extra", Decimal},
		{"mta_tax", Decimal},
		{"tip_amount", Decimal},
		{"tolls_amount", Decimal},
		{"imp_surcharge", Decimal},
		{"airport_fee", Decimal},
		{"total_amount", Decimal},
		{"pickup_location_id", String},
		{"dropoff_location_id", String},
		{DataFileYear, Int64},
		{DataFileMonth, Int64},
	},
}

var Green = &Schema{
	Name: "green_tripdata",
	RenameMap: map[string]string{
		"VendorID":              "vendor_id",
		"lpep_pickup_datetime":  "pickup_datetime",
		"lpep_dropoff_datetime": "dropoff_datetime",
		"RatecodeID":            "rate_code",
		"improvement_surcharge": "imp_surcharge",
		"Airport_fee":           "airport_fee",
		"PULocationID":          "pickup_location_id",
		"DOLocationID":          "dropoff_location_id",
	},
	Columns: []Column{
		{"vendor_id", String},
		{"pickup_datetime", Timestamp},
		{"dropoff_datetime", Timestamp},
		{"store_and_fwd_flag", String},
		{"rate_code", String},
		{"passenger_count", Int64},
		{"trip_distance", Decimal},
		{"fare_amount", Decimal},
		{"extra", Decimal},
		{"mta_tax", Decimal},
		{"tip_amount", Decimal},
		{"tolls_amount", Decimal},
		{"ehail_fee", Decimal},
		{"airport_fee", Decimal},
		{"total_amount", Decimal},
		{"payment_type", String},
		{"distance_between_service", Decimal},
		{"time_between_service", Int64},
		{"trip_type", String},
		{"imp_surcharge", Decimal},
		{"pickup_location_id", String},
		{"dropoff_location_id", String},
		{DataFileYear, Int64},
		{DataFileMonth, Int64},
	},
}

// FHV drops rows without a dispatching base; sr_flag is NUMERIC in the
// warehouse, so it is a decimal here too.
var FHV = &Schema{
	Name: "fhv_tripdata",
	RenameMap: map[string]string{
		"dropOff_datetime":       "dropoff_datetime",
		"PUlocationID":           "pickup_location_id",
		"DOlocationID":           "dropoff_location_id",
		"SR_Flag":                "sr_flag",
		"Affiliated_base_number": "affiliated_base_number",
	},
	Columns: []Column{
		{"dispatching_base_num", String},
		{"pickup_datetime", Timestamp},
		{"dropoff_datetime", Timestamp},
		{"pickup_location_id", String},
		{"dropoff_location_id", String},
		{"sr_flag", Decimal},
		{"affiliated_base_number", String},
	},
	Required: []string{"dispatching_base_num"},
}

// Window is the raw-ingestion layout of the scheduled loader: source
// columns lowercased, both yellow and green timestamp names kept side by
// side, plus lineage columns.
var Window = &Schema{
	Name:           "trips",
	LowercaseNames: true,
	Columns: []Column{
		{"vendorid", Float64},
		{"tpep_pickup_datetime", Timestamp},
		{"lpep_pickup_datetime", Timestamp},
		{"tpep_dropoff_datetime", Timestamp},
		{"lpep_dropoff_datetime", Timestamp},
		{"pulocationid", Int64},
		{"dolocationid", Int64},
		{TaxiType, String},
		{ExtractedAt, Timestamp},
		{"passenger_count", Float64},
		{"trip_distance", Float64},
		{"store_and_fwd_flag", String},
		{"payment_type", Float64},
		{"fare_amount", Float64},
		{"tip_amount", Float64},
		{"total_amount", Float64},
	},
	Defaults: map[string]string{
		"fare_amount":  "0",
		"tip_amount":   "0",
		"total_amount": "0",
	},
}

// TripsAPI is the layout of the paged zoomcamp trips API, with field names
// snake_cased.
var TripsAPI = &Schema{
	Name: "trips",
	RenameMap: map[string]string{
		"Trip_Pickup_DateTime":  "trip_pickup_date_time",
		"Trip_Dropoff_DateTime": "trip_dropoff_date_time",
		"Passenger_Count":       "passenger_count",
		"Trip_Distance":         "trip_distance",
		"Start_Lon":             "start_lon",
		"Start_Lat":             "start_lat",
		"Rate_Code":             "rate_code",
		"End_Lon":               "end_lon",
		"End_Lat":               "end_lat",
		"Payment_Type":          "payment_type",
		"Fare_Amt":              "fare_amt",
		"Tip_Amt":               "tip_amt",
		"Tolls_Amt":             "tolls_amt",
		"Total_Amt":             "total_amt",
	},
	Columns: []Column{
		{"vendor_name", String},
		{"trip_pickup_date_time", Timestamp},
		{"trip_dropoff_date_time", Timestamp},
		{"passenger_count", Int64},
		{"trip_distance", Float64},
		{"start_lon", Float64},
		{"start_lat", Float64},
		{"rate_code", String},
		{"store_and_forward", String},
		{"end_lon", Float64},
		{"end_lat", Float64},
		{"payment_type", String},
		{"fare_amt", Float64},
		{"surcharge", Float64},
		{"mta_tax", Float64},
		{"tip_amt", Float64},
		{"tolls_amt", Float64},
		{"total_amt", Float64},
	},
}

// Zones is the taxi zone lookup CSV, loaded with its source column names.
var Zones = &Schema{
	Name: "taxi_zone_lookup",
	Columns: []Column{
		{"LocationID", Int64},
		{"Borough", String},
		{"Zone", String},
		{"service_zone", String},
	},
	PrimaryKey: []string{"LocationID"},
}

// ForDataType returns the warehouse schema of a data type.
func ForDataType(t tripdata.DataType) (*Schema, error) {
	switch t {
	case tripdata.Yellow:
		return Yellow, nil
	case tripdata.Green:
		return Green, nil
	case tripdata.FHV:
		return FHV, nil
	}
	return nil, fmt.Errorf("no schema for data type %q", t)
}
