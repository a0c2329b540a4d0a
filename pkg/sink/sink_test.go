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

package sink

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/arrowarc/tripload/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu       sync.Mutex
	prepared int
	prepErr  error
	writeErr error
	rows     int64
	events   []string
}

func (f *fakeSink) Prepare(ctx context.Context, target Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prepared++
	f.events = append(f.events, "prepare")
	return f.prepErr
}

func (f *fakeSink) Write(ctx context.Context, target Target, rec arrow.Record) (WriteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return WriteResult{Target: target}, f.writeErr
	}
	f.rows += rec.NumRows()
	f.events = append(f.events, "write")
	return WriteResult{Target: target, Rows: rec.NumRows()}, nil
}

func (f *fakeSink) Close() error { return nil }

func zoneRecord(mem memory.Allocator, n int) arrow.Record {
	b := array.NewRecordBuilder(mem, schema.Zones.ArrowSchema())
	defer b.Release()
	for i := 0; i < n; i++ {
		b.Field(0).(*array.Int64Builder).Append(int64(i + 1))
		b.Field(1).AppendNull()
		b.Field(2).AppendNull()
		b.Field(3).AppendNull()
	}
	return b.NewRecord()
}

func TestParseWriteMode(t *testing.T) {
	for in, want := range map[string]WriteMode{"replace": Replace, " Append": Append, "MERGE": Merge} {
		got, err := ParseWriteMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseWriteMode("truncate")
	assert.Error(t, err)
}

func TestSessionPreparesOnceAcrossConcurrentWriters(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	fs := &fakeSink{}
	s := NewSession(fs, Target{Name: "taxi_zone_lookup", Mode: Replace, Schema: schema.Zones})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := zoneRecord(mem, 10)
			defer rec.Release()
			_, err := s.Write(context.Background(), rec)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fs.prepared)
	assert.Equal(t, "prepare", fs.events[0], "prepare must precede every write")
	assert.Equal(t, int64(80), fs.rows)
	assert.Equal(t, int64(80), s.Rows())
}

func TestSessionPrepareFailureFailsEveryWrite(t *testing.T) {
	mem := memory.NewGoAllocator()
	boom := errors.New("permission denied")
	fs := &fakeSink{prepErr: boom}
	s := NewSession(fs, Target{Name: "trips", Mode: Replace})

	rec := zoneRecord(mem, 1)
	defer rec.Release()

	for i := 0; i < 3; i++ {
		_, err := s.Write(context.Background(), rec)
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		var we *WriteError
		require.True(t, errors.As(err, &we))
		assert.Equal(t, "trips", we.Target.Name)
	}
	assert.Equal(t, 1, fs.prepared)
	assert.Zero(t, fs.rows)
}

func TestSessionWrapsWriteErrors(t *testing.T) {
	mem := memory.NewGoAllocator()
	fs := &fakeSink{writeErr: ErrUnsupportedMode}
	s := NewSession(fs, Target{Name: "trips", Mode: Merge})

	rec := zoneRecord(mem, 1)
	defer rec.Release()

	_, err := s.Write(context.Background(), rec)
	var we *WriteError
	require.True(t, errors.As(err, &we))
	assert.ErrorIs(t, err, ErrUnsupportedMode)
}
