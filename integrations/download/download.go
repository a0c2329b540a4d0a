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

// Package download fetches published trip files to local disk.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/arrowarc/tripload/pkg/tripdata"
	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// RawFile is a downloaded, not yet decoded, trip file.
type RawFile struct {
	Descriptor tripdata.SourceDescriptor
	Path       string
	Bytes      int64
	// Checksum is the xxhash64 of the file contents.
	Checksum uint64
	// Reused is set when an existing local copy was kept instead of downloading.
	Reused bool
}

// FetchError reports a descriptor that could not be downloaded. StatusCode
// is zero for network failures.
type FetchError struct {
	Descriptor tripdata.SourceDescriptor
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.Descriptor.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Descriptor.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher downloads descriptors into Dir with one GET each. It never retries.
type Fetcher struct {
	Client *http.Client
	Dir    string
	// SkipExisting keeps a file already present in Dir instead of fetching it again.
	SkipExisting bool
	Logger       *zap.Logger
}

// NewFetcher returns a Fetcher writing to dir. A nil client selects
// http.DefaultClient and a nil logger discards logs.
func NewFetcher(dir string, client *http.Client, logger *zap.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{Client: client, Dir: dir, Logger: logger}
}

// Fetch downloads d to Dir/d.FileName. Any failure is a *FetchError and no
// partial file is left behind.
func (f *Fetcher) Fetch(ctx context.Context, d tripdata.SourceDescriptor) (RawFile, error) {
	path := filepath.Join(f.Dir, d.FileName)
	raw := RawFile{Descriptor: d, Path: path}

	if f.SkipExisting {
		if _, err := os.Stat(path); err == nil {
			sum, n, err := checksumFile(path)
			if err != nil {
				return raw, &FetchError{Descriptor: d, Err: err}
			}
			f.logger().Info("reusing existing file", zap.String("file", d.FileName), zap.String("path", path))
			raw.Checksum, raw.Bytes, raw.Reused = sum, n, true
			return raw, nil
		}
	}

	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return raw, &FetchError{Descriptor: d, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return raw, &FetchError{Descriptor: d, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return raw, &FetchError{Descriptor: d, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return raw, &FetchError{Descriptor: d, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected response %s", resp.Status)}
	}

	part := path + ".part"
	out, err := os.Create(part)
	if err != nil {
		return raw, &FetchError{Descriptor: d, Err: err}
	}

	h := xxhash.New()
	n, err := io.Copy(io.MultiWriter(out, h), resp.Body)
	if cerr := out.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(part)
		return raw, &FetchError{Descriptor: d, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	if err := os.Rename(part, path); err != nil {
		os.Remove(part)
		return raw, &FetchError{Descriptor: d, Err: err}
	}

	raw.Bytes = n
	raw.Checksum = h.Sum64()
	f.logger().Debug("downloaded", zap.String("file", d.FileName), zap.Int64("bytes", n))
	return raw, nil
}

func (f *Fetcher) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

func checksumFile(path string) (uint64, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer file.Close()
	h := xxhash.New()
	n, err := io.Copy(h, file)
	if err != nil {
		return 0, 0, err
	}
	return h.Sum64(), n, nil
}

// IsFetchError reports whether err is or wraps a *FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
