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
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the per-stage pool size used when none is configured.
const DefaultWorkers = 4

// Outcome is the result of one item of a stage.
type Outcome[T any] struct {
	Value T
	Err   error
}

// RunStage applies fn to every item with at most workers calls in flight
// and returns once all of them have finished. Outcomes are in input order.
// A failing item does not stop the others.
func RunStage[In, Out any](ctx context.Context, workers int, items []In, fn func(context.Context, In) (Out, error)) []Outcome[Out] {
	out := make([]Outcome[Out], len(items))
	if len(items) == 0 {
		return out
	}

	var g errgroup.Group
	g.SetLimit(poolSize(workers))
	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				out[i].Err = err
				return nil
			}
			v, err := fn(ctx, item)
			out[i] = Outcome[Out]{Value: v, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// RunStageFailFast is RunStage for stages where any failure is fatal: the
// first error cancels the context seen by the remaining items and is
// returned once every started item has finished.
func RunStageFailFast[In, Out any](ctx context.Context, workers int, items []In, fn func(context.Context, In) (Out, error)) ([]Out, error) {
	out := make([]Out, len(items))
	if len(items) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(poolSize(workers))
	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := fn(gctx, item)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

func poolSize(workers int) int {
	if workers <= 0 {
		return DefaultWorkers
	}
	return workers
}
