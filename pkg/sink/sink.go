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

// Package sink defines how normalized batches are written to a destination
// and the write-mode contract every destination honours.
package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/arrowarc/tripload/pkg/schema"
)

// WriteMode selects what a run does with existing destination data.
type WriteMode string

const (
	// Replace drops and recreates the destination once per run; every
	// batch of the run then appends.
	Replace WriteMode = "replace"
	// Append never drops.
	Append WriteMode = "append"
	// Merge upserts by the schema's primary key.
	Merge WriteMode = "merge"
)

// ErrUnsupportedMode is returned by sinks that cannot honour a write mode.
var ErrUnsupportedMode = errors.New("write mode not supported by sink")

// ParseWriteMode parses replace, append or merge.
func ParseWriteMode(s string) (WriteMode, error) {
	switch m := WriteMode(strings.ToLower(strings.TrimSpace(s))); m {
	case Replace, Append, Merge:
		return m, nil
	}
	return "", fmt.Errorf("unknown write mode %q (want replace, append or merge)", s)
}

// Target is a destination table or object plus how to write it.
type Target struct {
	Name   string
	Mode   WriteMode
	Schema *schema.Schema
}

func (t Target) String() string { return fmt.Sprintf("%s (%s)", t.Name, t.Mode) }

// WriteResult describes one completed write.
type WriteResult struct {
	Target Target
	Rows   int64
	Bytes  int64
}

// WriteError reports a failed write. It aborts the run.
type WriteError struct {
	Target Target
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Target.Name, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// RecordSink writes normalized records to a table-like destination.
type RecordSink interface {
	// Prepare applies the target's write mode before any data is written:
	// replace drops and recreates, append and merge create when missing.
	Prepare(ctx context.Context, target Target) error
	// Write appends rec, or upserts it in merge mode.
	Write(ctx context.Context, target Target, rec arrow.Record) (WriteResult, error)
	Close() error
}

// Session binds a sink to one target for the duration of a run. It calls
// Prepare exactly once, before the first write, so concurrent writers never
// race a replace against each other's appends.
type Session struct {
	sink   RecordSink
	target Target

	once    sync.Once
	prepErr error

	mu   sync.Mutex
	rows int64
}

// NewSession returns a session writing to target through s.
func NewSession(s RecordSink, target Target) *Session {
	return &Session{sink: s, target: target}
}

// Target returns the session's destination.
func (s *Session) Target() Target { return s.target }

// Prepare runs the sink's prepare step if it has not run yet and returns
// its result. Every caller sees the same error.
func (s *Session) Prepare(ctx context.Context) error {
	s.once.Do(func() {
		if err := s.sink.Prepare(ctx, s.target); err != nil {
			s.prepErr = &WriteError{Target: s.target, Err: err}
		}
	})
	return s.prepErr
}

// Write prepares the target if needed and writes rec. Failures are *WriteError.
func (s *Session) Write(ctx context.Context, rec arrow.Record) (WriteResult, error) {
	if err := s.Prepare(ctx); err != nil {
		return WriteResult{Target: s.target}, err
	}
	res, err := s.sink.Write(ctx, s.target, rec)
	if err != nil {
		var we *WriteError
		if errors.As(err, &we) {
			return res, err
		}
		return res, &WriteError{Target: s.target, Err: err}
	}
	s.mu.Lock()
	s.rows += res.Rows
	s.mu.Unlock()
	return res, nil
}

// Rows is the total number of rows written through the session.
func (s *Session) Rows() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}
