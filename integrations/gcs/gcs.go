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

// Package gcs uploads normalized trip files to a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"

	"cloud.google.com/go/storage"
	"github.com/arrowarc/tripload/pkg/sink"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// ChunkSize is the resumable upload chunk size.
const ChunkSize = 8 * 1024 * 1024

// ErrBucketForbidden means the bucket exists but belongs to someone else.
var ErrBucketForbidden = errors.New("bucket exists but is not accessible; choose another name")

// Config selects the bucket and how to authenticate.
type Config struct {
	Bucket          string `yaml:"bucket" validate:"required"`
	Project         string `yaml:"project"`
	CredentialsFile string `yaml:"credentials_file"`
	// Prefix is prepended to every object name, e.g. "parquet".
	Prefix string `yaml:"prefix"`
	// Endpoint points the client at an emulator; authentication is then skipped.
	Endpoint string `yaml:"endpoint"`
}

// Client uploads files to one bucket.
type Client struct {
	client  *storage.Client
	bucket  string
	project string
	prefix  string
	logger  *zap.Logger
}

// NewClient creates the storage client. The caller closes it.
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &Client{
		client:  client,
		bucket:  cfg.Bucket,
		project: cfg.Project,
		prefix:  cfg.Prefix,
		logger:  logger,
	}, nil
}

// EnsureBucket creates the bucket when it does not exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	bucket := c.client.Bucket(c.bucket)
	_, err := bucket.Attrs(ctx)
	switch {
	case err == nil:
		c.logger.Info("bucket exists", zap.String("bucket", c.bucket))
		return nil
	case errors.Is(err, storage.ErrBucketNotExist):
		if err := bucket.Create(ctx, c.project, nil); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", c.bucket, err)
		}
		c.logger.Info("created bucket", zap.String("bucket", c.bucket))
		return nil
	case isStatus(err, http.StatusForbidden):
		return fmt.Errorf("%s: %w", c.bucket, ErrBucketForbidden)
	}
	return fmt.Errorf("failed to look up bucket %s: %w", c.bucket, err)
}

// ObjectName returns the object name a local file is uploaded as.
func (c *Client) ObjectName(localPath string) string {
	return objectName(c.prefix, localPath)
}

func objectName(prefix, localPath string) string {
	return path.Join(prefix, path.Base(localPath))
}

// URI returns the gs:// URI of an object in the bucket.
func (c *Client) URI(object string) string {
	return URI(c.bucket, object)
}

// URI returns the gs:// URI of object in bucket.
func URI(bucket, object string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, object)
}

// Upload copies localPath to object. Replace deletes an existing object
// first; append refuses to overwrite one; merge is not supported.
func (c *Client) Upload(ctx context.Context, localPath, object string, mode sink.WriteMode) (sink.WriteResult, error) {
	target := sink.Target{Name: c.URI(object), Mode: mode}
	res := sink.WriteResult{Target: target}

	obj := c.client.Bucket(c.bucket).Object(object)
	switch mode {
	case sink.Replace:
		if err := obj.Delete(ctx); err == nil {
			c.logger.Info("deleted existing object", zap.String("object", object))
		} else if !errors.Is(err, storage.ErrObjectNotExist) {
			return res, &sink.WriteError{Target: target, Err: fmt.Errorf("failed to delete existing object: %w", err)}
		}
	case sink.Append:
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	default:
		return res, &sink.WriteError{Target: target, Err: fmt.Errorf("gcs %s: %w", mode, sink.ErrUnsupportedMode)}
	}

	f, err := os.Open(localPath)
	if err != nil {
		return res, &sink.WriteError{Target: target, Err: err}
	}
	defer f.Close()

	c.logger.Info("uploading", zap.String("file", path.Base(localPath)), zap.String("uri", target.Name))

	w := obj.NewWriter(ctx)
	w.ChunkSize = ChunkSize
	n, err := io.Copy(w, f)
	if err != nil {
		w.CloseWithError(err)
		return res, &sink.WriteError{Target: target, Err: fmt.Errorf("failed to upload: %w", err)}
	}
	if err := w.Close(); err != nil {
		if isStatus(err, http.StatusPreconditionFailed) {
			err = fmt.Errorf("object already exists: %w", err)
		}
		return res, &sink.WriteError{Target: target, Err: err}
	}

	res.Bytes = n
	c.logger.Info("uploaded", zap.String("uri", target.Name), zap.Int64("bytes", n))
	return res, nil
}

// Close closes the storage client.
func (c *Client) Close() error {
	return c.client.Close()
}

func isStatus(err error, code int) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == code
}
