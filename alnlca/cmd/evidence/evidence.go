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

package evidence

import (
	"github.com/zeebo/wyhash"
)

// Hit is one alignment of a query against a reference sequence.
type Hit struct {
	Target string  // reference token
	QCov   float64 // query coverage, [0, 1]
	Ident  float64 // identity, [0, 1]
	Exact  bool    // the query and target are the same sequence
}

// Score ranks hits of the same query.
func (h *Hit) Score() float64 { return h.QCov * h.Ident }

// Query is a query sequence with its hits in input order.
type Query struct {
	ID   string
	Hits []Hit
}

// Stats counts lines seen while loading.
type Stats struct {
	Lines     int // data lines, not counting blanks, comments and headers
	Records   int // accepted hits
	Malformed int // lines with too few fields or unparsable numbers
	Filtered  int // hits below coverage or identity thresholds
}

// Add merges counts of another Stats.
func (s *Stats) Add(o Stats) {
	s.Lines += o.Lines
	s.Records += o.Records
	s.Malformed += o.Malformed
	s.Filtered += o.Filtered
}

// Abundance counts hits per reference token across all queries.
// It is a prior weight, not a probability.
type Abundance struct {
	m map[uint64]uint32
}

// NewAbundance creates an empty table.
func NewAbundance() *Abundance {
	return &Abundance{m: make(map[uint64]uint32, 1024)}
}

// Add counts one hit on a reference token.
func (a *Abundance) Add(token string) {
	a.m[wyhash.HashString(token, 1)]++
}

// Count returns the number of hits on a reference token.
func (a *Abundance) Count(token string) uint32 {
	return a.m[wyhash.HashString(token, 1)]
}

// Weight returns the hit count of a token, or 1 for unseen ones.
func (a *Abundance) Weight(token string) float64 {
	if a == nil {
		return 1
	}
	if n, ok := a.m[wyhash.HashString(token, 1)]; ok {
		return float64(n)
	}
	return 1
}

// Len returns the number of distinct tokens.
func (a *Abundance) Len() int { return len(a.m) }

// Evidence is everything loaded from alignment files.
type Evidence struct {
	Queries   []*Query // in order of first appearance
	Abundance *Abundance
	Stats     Stats
}
