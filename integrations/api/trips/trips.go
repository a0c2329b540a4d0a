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

// Package trips reads the paged NYC taxi trips JSON API as record batches,
// one batch per page.
package trips

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/arrowarc/tripload/internal/json"
	memoryPool "github.com/arrowarc/tripload/internal/memory"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL  = "https://us-central1-dlthub-analytics.cloudfunctions.net/data_engineering_zoomcamp_api"
	DefaultPageSize = 1000
)

// Reader pages through the API until it returns an empty page. Each page
// becomes one record of nullable string columns named after the union of
// the page's keys, in sorted order. Typing is left to normalization.
type Reader struct {
	ctx      context.Context
	client   *http.Client
	baseURL  string
	pageSize int
	page     int
	done     bool
	schema   *arrow.Schema
	alloc    memory.Allocator
	logger   *zap.Logger
}

// Option configures a Reader.
type Option func(*Reader)

// WithPageSize sets the per_page parameter.
func WithPageSize(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.pageSize = n
		}
	}
}

// WithLogger logs one line per fetched page.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Reader) { r.logger = logger }
}

// NewReader returns a reader starting at page 1. An empty baseURL selects
// DefaultBaseURL and a nil client http.DefaultClient.
func NewReader(ctx context.Context, baseURL string, client *http.Client, opts ...Option) *Reader {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	r := &Reader{
		ctx:      ctx,
		client:   client,
		baseURL:  baseURL,
		pageSize: DefaultPageSize,
		page:     1,
		alloc:    memoryPool.GetAllocator(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Schema returns the schema of the last page read, or nil before the first.
func (r *Reader) Schema() *arrow.Schema {
	return r.schema
}

// Read fetches the next page. It returns io.EOF after the first empty page.
func (r *Reader) Read() (arrow.Record, error) {
	if r.done {
		return nil, io.EOF
	}

	rows, err := r.fetchPage(r.page)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		r.done = true
		return nil, io.EOF
	}
	r.logger.Info("fetched page", zap.Int("page", r.page), zap.Int("rows", len(rows)))
	r.page++

	rec, err := buildRecord(r.alloc, rows)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", r.page-1, err)
	}
	r.schema = rec.Schema()
	return rec, nil
}

// Close releases any resources associated with the Reader.
func (r *Reader) Close() error {
	memoryPool.PutAllocator(r.alloc)
	return nil
}

func (r *Reader) fetchPage(page int) ([]map[string]interface{}, error) {
	u, err := url.Parse(r.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(r.pageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call trips API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trips API error on page %d: %s", page, resp.Status)
	}

	var rows []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode API response: %w", err)
	}
	return rows, nil
}

func buildRecord(mem memory.Allocator, rows []map[string]interface{}) (arrow.Record, error) {
	keySet := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			keySet[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]arrow.Field, len(keys))
	for i, k := range keys {
		fields[i] = arrow.Field{Name: k, Type: arrow.BinaryTypes.String, Nullable: true}
	}
	b := array.NewRecordBuilder(mem, arrow.NewSchema(fields, nil))
	defer b.Release()

	for _, row := range rows {
		for i, k := range keys {
			fb := b.Field(i).(*array.StringBuilder)
			s, ok, err := cellString(row[k])
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", k, err)
			}
			if !ok {
				fb.AppendNull()
				continue
			}
			fb.Append(s)
		}
	}
	return b.NewRecord(), nil
}

func cellString(v interface{}) (string, bool, error) {
	switch x := v.(type) {
	case nil:
		return "", false, nil
	case string:
		return x, true, nil
	case json.Number:
		return x.String(), true, nil
	case bool:
		return strconv.FormatBool(x), true, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true, nil
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return "", false, err
		}
		return string(b), true, nil
	}
}
