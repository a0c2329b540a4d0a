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

// Package cli holds the start-up plumbing shared by the tripload commands:
// config and flag overrides, logging, signals and the run ledger.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/arrowarc/tripload/internal/ledger"
	"github.com/arrowarc/tripload/internal/logging"
	"github.com/arrowarc/tripload/pipeline"
	"github.com/arrowarc/tripload/pkg/config"
	"github.com/docopt/docopt-go"
	"go.uber.org/zap"
)

// Flags wraps parsed docopt arguments. Unset flags leave the configured
// value alone.
type Flags struct {
	docopt.Opts
	errs []error
}

// Parse parses os.Args against usage.
func Parse(usage string) *Flags {
	opts, err := docopt.ParseDoc(usage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing arguments: %v\n", err)
		os.Exit(2)
	}
	return &Flags{Opts: opts}
}

// String overrides dst with flag when it was given.
func (f *Flags) String(flag string, dst *string) {
	if v, ok := f.Opts[flag].(string); ok && v != "" {
		*dst = v
	}
}

// Int overrides dst with flag when it was given.
func (f *Flags) Int(flag string, dst *int) {
	v, ok := f.Opts[flag].(string)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		f.errs = append(f.errs, fmt.Errorf("%s: %w", flag, err))
		return
	}
	*dst = n
}

// List overrides dst with the comma separated values of flag when it was
// given.
func (f *Flags) List(flag string, dst *[]string) {
	v, ok := f.Opts[flag].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	*dst = out
}

// Bool sets dst when a boolean flag was given.
func (f *Flags) Bool(flag string, dst *bool) {
	if v, ok := f.Opts[flag].(bool); ok && v {
		*dst = true
	}
}

// Err returns the first malformed flag.
func (f *Flags) Err() error {
	if len(f.errs) > 0 {
		return f.errs[0]
	}
	return nil
}

// LoadConfig loads the config file named by --config, if any, and the
// .env file named by --env-file, ".env" by default.
func LoadConfig(f *Flags) (*config.Config, error) {
	var path, envFile string
	f.String("--config", &path)
	f.String("--env-file", &envFile)
	if envFile == "" {
		return config.Load(path)
	}
	return config.Load(path, envFile)
}

// Logger builds the command logger from the config.
func Logger(cfg *config.Config) *zap.Logger {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(2)
	}
	return logger
}

// Context is canceled on SIGINT, SIGTERM or after timeout when positive.
func Context(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	return tctx, func() {
		cancel()
		stop()
	}
}

// Run is an open ledger run. A Run without a ledger records nothing.
type Run struct {
	Ledger *ledger.Ledger
	ID     string
	logger *zap.Logger
}

// BeginRun opens the configured ledger and starts a run named name.
func BeginRun(ctx context.Context, cfg *config.Config, name string, logger *zap.Logger) (Run, error) {
	if cfg.Ledger.Path == "" {
		return Run{logger: logger}, nil
	}
	l, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return Run{}, err
	}
	id, err := l.Begin(ctx, name)
	if err != nil {
		l.Close()
		return Run{}, err
	}
	logger.Info("ledger run started", zap.String("run_id", id), zap.String("ledger", cfg.Ledger.Path))
	return Run{Ledger: l, ID: id, logger: logger}, nil
}

// Recorder returns the ledger as a pipeline recorder, or nil.
func (r Run) Recorder() pipeline.Recorder {
	if r.Ledger == nil {
		return nil
	}
	return r.Ledger
}

// End finishes the run with the status matching err and closes the ledger.
func (r Run) End(err error) {
	if r.Ledger == nil {
		return
	}
	status := ledger.StatusOK
	if err != nil {
		status = ledger.StatusFailed
	}
	if ferr := r.Ledger.Finish(context.Background(), r.ID, status); ferr != nil {
		r.logger.Warn("failed to finish ledger run", zap.Error(ferr))
	}
	r.Ledger.Close()
}
