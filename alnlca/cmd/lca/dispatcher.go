// Copyright © 2020-2021 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package lca

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shenwei356/alnlca/alnlca/cmd/evidence"
	"golang.org/x/sync/errgroup"
)

// Classifier classifies one query.
type Classifier interface {
	Classify(q *evidence.Query) Result
}

// Dispatcher classifies queries concurrently and returns results in query order.
type Dispatcher struct {
	c       Classifier
	threads int

	// OnDone is called with the elapsed time after each query, from worker goroutines.
	OnDone func(time.Duration)

	failed int64
}

// NewDispatcher creates a Dispatcher with at most threads concurrent tasks.
func NewDispatcher(c Classifier, threads int) *Dispatcher {
	if threads < 1 {
		threads = 1
	}
	return &Dispatcher{c: c, threads: threads}
}

// Failed returns the number of queries whose classification panicked.
func (d *Dispatcher) Failed() int64 { return atomic.LoadInt64(&d.failed) }

// Run classifies all queries. Result i belongs to queries[i].
// After ctx is cancelled, queries not yet started are reported as unclassified.
func (d *Dispatcher) Run(ctx context.Context, queries []*evidence.Query) []Result {
	results := make([]Result, len(queries))

	g := new(errgroup.Group)
	g.SetLimit(d.threads)

	var started int
	for i, q := range queries {
		if ctx.Err() != nil {
			break
		}
		i, q := i, q
		g.Go(func() error {
			start := time.Now()
			results[i] = d.classify(q)
			if d.OnDone != nil {
				d.OnDone(time.Since(start))
			}
			return nil
		})
		started++
	}
	g.Wait()

	for i := started; i < len(queries); i++ {
		results[i] = Unclassified(queries[i].ID)
	}
	return results
}

func (d *Dispatcher) classify(q *evidence.Query) (r Result) {
	defer func() {
		if e := recover(); e != nil {
			atomic.AddInt64(&d.failed, 1)
			r = Unclassified(q.ID)
		}
	}()
	return d.c.Classify(q)
}
