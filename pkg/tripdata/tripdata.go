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

// Package tripdata describes the NYC TLC trip files tripload can fetch and
// plans which of them a run should load.
package tripdata

import (
	"fmt"
	"strings"
)

// DataType is the taxi service a trip file belongs to.
type DataType string

const (
	Yellow DataType = "yellow"
	Green  DataType = "green"
	FHV    DataType = "fhv"
)

// AllDataTypes lists every known data type in plan order.
var AllDataTypes = []DataType{Yellow, Green, FHV}

func (t DataType) String() string { return string(t) }

// ParseDataType parses a single data type tag, case-insensitively.
func ParseDataType(s string) (DataType, error) {
	switch DataType(strings.ToLower(strings.TrimSpace(s))) {
	case Yellow:
		return Yellow, nil
	case Green:
		return Green, nil
	case FHV:
		return FHV, nil
	}
	return "", fmt.Errorf("unknown data type %q (want yellow, green or fhv)", s)
}

// ParseDataTypes parses a comma separated list such as "yellow,green".
// Duplicates are dropped and the first occurrence wins.
func ParseDataTypes(s string) ([]DataType, error) {
	var types []DataType
	seen := make(map[DataType]bool)
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		t, err := ParseDataType(part)
		if err != nil {
			return nil, err
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		types = append(types, t)
	}
	return types, nil
}

// Format is the encoding of a trip file as published.
type Format string

const (
	Parquet Format = "parquet"
	CSVGzip Format = "csv.gz"
)

// Source is a public endpoint serving monthly trip files.
type Source struct {
	BaseURL string
	Format  Format
	// PerTypeDir places each data type under its own path segment,
	// as the GitHub release mirror does ({base}{type}/{file}).
	PerTypeDir bool
}

var (
	// CloudFrontSource serves the current TLC Parquet files.
	CloudFrontSource = Source{
		BaseURL: "https://d37ci6vzurychx.cloudfront.net/trip-data/",
		Format:  Parquet,
	}
	// GitHubReleaseSource serves the gzip CSV snapshots of 2019-2021.
	GitHubReleaseSource = Source{
		BaseURL:    "https://github.com/DataTalksClub/nyc-tlc-data/releases/download/",
		Format:     CSVGzip,
		PerTypeDir: true,
	}
)

// FileName returns the published file name for one month of a data type.
func (s Source) FileName(t DataType, year, month int) string {
	return fmt.Sprintf("%s_tripdata_%04d-%02d.%s", t, year, month, s.Format)
}

// URL returns the download URL for one month of a data type.
func (s Source) URL(t DataType, year, month int) string {
	base := s.BaseURL
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}
	if s.PerTypeDir {
		return fmt.Sprintf("%s%s/%s", base, t, s.FileName(t, year, month))
	}
	return base + s.FileName(t, year, month)
}

// SourceDescriptor identifies one fetchable monthly file.
type SourceDescriptor struct {
	DataType DataType
	Year     int
	Month    int
	Format   Format
	FileName string
	URL      string
}

// Key is the file name without its format extension, e.g. "yellow_tripdata_2019-01".
func (d SourceDescriptor) Key() string {
	return fmt.Sprintf("%s_tripdata_%04d-%02d", d.DataType, d.Year, d.Month)
}

func (d SourceDescriptor) String() string { return d.FileName }

// NewDescriptor resolves one month of a data type against src.
func NewDescriptor(src Source, t DataType, year, month int) SourceDescriptor {
	return SourceDescriptor{
		DataType: t,
		Year:     year,
		Month:    month,
		Format:   src.Format,
		FileName: src.FileName(t, year, month),
		URL:      src.URL(t, year, month),
	}
}
