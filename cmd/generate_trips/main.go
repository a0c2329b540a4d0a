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

package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/arrowarc/tripload/generator"
	"github.com/arrowarc/tripload/pkg/tripdata"
	"github.com/docopt/docopt-go"
)

func main() {
	usage := `Generate a fake monthly trip file in the published TLC layout.

Usage:
  generate_trips --out=<dir> [--type=<type>] [--year=<year>] [--month=<month>] [--rows=<n>] [--format=<format>]
  generate_trips -h | --help

Options:
  -h --help            Show this screen.
  --out=<dir>          Output directory.
  --type=<type>        yellow, green or fhv [default: yellow].
  --year=<year>        Trip year [default: 2019].
  --month=<month>      Trip month [default: 1].
  --rows=<n>           Number of trips [default: 10000].
  --format=<format>    parquet or csv.gz [default: parquet].
`
	arguments, err := docopt.ParseDoc(usage)
	if err != nil {
		log.Fatalf("Error parsing arguments: %v", err)
	}

	outDir, _ := arguments.String("--out")
	typeFlag, _ := arguments.String("--type")
	formatFlag, _ := arguments.String("--format")

	t, err := tripdata.ParseDataType(typeFlag)
	if err != nil {
		log.Fatalf("Invalid type: %v", err)
	}
	opts := generator.Options{
		Year:  mustInt(arguments, "--year"),
		Month: mustInt(arguments, "--month"),
		Rows:  mustInt(arguments, "--rows"),
	}
	if opts.Month < 1 || opts.Month > 12 {
		log.Fatalf("Invalid month: %d", opts.Month)
	}

	format := tripdata.Format(formatFlag)
	src := tripdata.Source{Format: format}
	path := filepath.Join(outDir, src.FileName(t, opts.Year, opts.Month))

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	start := time.Now()
	switch format {
	case tripdata.Parquet:
		err = generator.GenerateTripsParquet(path, t, opts)
	case tripdata.CSVGzip:
		err = generator.GenerateTripsCSV(path, t, opts)
	default:
		log.Fatalf("Unsupported format %q", formatFlag)
	}
	if err != nil {
		log.Fatalf("Failed to generate trips: %v", err)
	}
	fmt.Printf("Wrote %d %s trips to %s in %v\n", opts.Rows, t, path, time.Since(start))
}

func mustInt(arguments docopt.Opts, flag string) int {
	v, _ := arguments.String(flag)
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("Invalid %s: %v", flag, err)
	}
	return n
}
