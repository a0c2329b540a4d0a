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

package bigquery

import (
	"fmt"
	"regexp"

	"github.com/arrowarc/tripload/pkg/tripdata"
	"github.com/google/uuid"
)

// TableName returns the warehouse table a data type is loaded into. FHV
// lands in a staging table.
func TableName(t tripdata.DataType) string {
	if t == tripdata.FHV {
		return "stg_fhv_tripdata"
	}
	return fmt.Sprintf("%s_tripdata", t)
}

// ParquetWildcard returns the URI matching every normalized file of a data
// type under prefix in bucket.
func ParquetWildcard(bucket, prefix string, t tripdata.DataType) string {
	if prefix == "" {
		return fmt.Sprintf("gs://%s/%s_tripdata_*.parquet", bucket, t)
	}
	return fmt.Sprintf("gs://%s/%s/%s_tripdata_*.parquet", bucket, prefix, t)
}

// UniqueName returns prefix joined with a random suffix, valid as a
// dataset or table name.
func UniqueName(prefix string) (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate bq uuid: %w", err)
	}
	return fmt.Sprintf("%s_%s", sanitize(prefix), sanitize(u.String())), nil
}

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

func sanitize(s string) string {
	return invalidNameChars.ReplaceAllString(s, "_")
}
