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
	"fmt"
	"sync"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/arrowarc/tripload/internal/json"
	"github.com/arrowarc/tripload/internal/ledger"
)

// Metrics stores pipeline processing metrics
type Metrics struct {
	sync.Mutex
	RecordsProcessed int64
	TotalBytes       int64
	StartTime        time.Time
	EndTime          time.Time
	TotalDuration    time.Duration
	Throughput       float64
	ThroughputBytes  float64
}

func newMetrics() *Metrics {
	return &Metrics{StartTime: time.Now()}
}

// Add counts rows and bytes written.
func (m *Metrics) Add(rows, bytes int64) {
	m.Lock()
	defer m.Unlock()
	m.RecordsProcessed += rows
	m.TotalBytes += bytes
}

// Finish stamps the end time and calculates duration and throughput.
func (m *Metrics) Finish() {
	m.Lock()
	defer m.Unlock()

	m.EndTime = time.Now()
	m.TotalDuration = m.EndTime.Sub(m.StartTime)

	// Avoid division by zero in throughput calculation
	if m.TotalDuration > 0 {
		m.Throughput = float64(m.RecordsProcessed) / m.TotalDuration.Seconds()
		m.ThroughputBytes = float64(m.TotalBytes) / m.TotalDuration.Seconds()
	} else {
		m.Throughput = 0
		m.ThroughputBytes = 0
	}
}

// Failure is a file dropped from a run.
type Failure struct {
	File  string       `json:"file"`
	Stage ledger.Stage `json:"stage"`
	Error string       `json:"error"`
}

// Report summarizes a run.
type Report struct {
	RunID       string
	Planned     int
	Fetched     int
	Transformed int
	Uploaded    int
	Failures    []Failure
	Metrics     *Metrics
}

func newReport(runID string, planned int) *Report {
	return &Report{RunID: runID, Planned: planned, Metrics: newMetrics()}
}

func (r *Report) fail(file string, stage ledger.Stage, err error) {
	r.Failures = append(r.Failures, Failure{File: file, Stage: stage, Error: err.Error()})
}

// Rows is the number of rows written.
func (r *Report) Rows() int64 {
	r.Metrics.Lock()
	defer r.Metrics.Unlock()
	return r.Metrics.RecordsProcessed
}

// JSON renders the report for the run summary log line and CLI output.
func (r *Report) JSON() string {
	m := r.Metrics
	m.Lock()
	defer m.Unlock()

	report := struct {
		RunID           string    `json:"run_id,omitempty"`
		Planned         int       `json:"planned"`
		Fetched         int       `json:"fetched"`
		Transformed     int       `json:"transformed"`
		Uploaded        int       `json:"uploaded"`
		Failures        []Failure `json:"failures,omitempty"`
		Rows            int64     `json:"rows"`
		TotalBytes      int64     `json:"total_bytes"`
		TotalDuration   string    `json:"total_duration"`
		Throughput      float64   `json:"throughput_records_per_second"`
		ThroughputBytes float64   `json:"throughput_bytes_per_second"`
	}{
		RunID:           r.RunID,
		Planned:         r.Planned,
		Fetched:         r.Fetched,
		Transformed:     r.Transformed,
		Uploaded:        r.Uploaded,
		Failures:        r.Failures,
		Rows:            m.RecordsProcessed,
		TotalBytes:      m.TotalBytes,
		TotalDuration:   m.TotalDuration.String(),
		Throughput:      m.Throughput,
		ThroughputBytes: m.ThroughputBytes,
	}

	out, err := json.PrettyPrint(report)
	if err != nil {
		return fmt.Sprintf("Error generating report: %v", err)
	}
	return out
}

// recordSize approximates the in-memory size of a record from its buffers.
func recordSize(record arrow.Record) int64 {
	size := int64(0)
	for _, col := range record.Columns() {
		for _, buf := range col.Data().Buffers() {
			if buf != nil {
				size += int64(buf.Len())
			}
		}
	}
	return size
}
