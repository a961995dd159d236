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
	"math"
	"sync/atomic"

	"github.com/shenwei356/alnlca/alnlca/cmd/evidence"
	"github.com/shenwei356/alnlca/alnlca/cmd/taxon"
)

// Unknown is the lineage of unclassified queries.
const Unknown = "Unknown"

// Result is the classification of one query.
type Result struct {
	Query      string
	Lineage    string
	Level      string // a rank, or "root"
	Confidence float64
	Exact      bool // resolved by an exact hit
}

// Unclassified returns the result of a query without usable evidence.
func Unclassified(query string) Result {
	return Result{Query: query, Lineage: Unknown, Level: taxon.RankRoot}
}

// Classified tells whether a lineage was assigned.
func (r *Result) Classified() bool { return r.Level != taxon.RankRoot }

// Options of an Engine.
type Options struct {
	Separator string  // between "rank:name" entries
	NoExact   bool    // disable the exact-match shortcut
	Tolerance float64 // keep hits scoring >= best*(1-Tolerance), 0 for all
	MinShare  float64 // a rank whose best share is below it ends the walk
}

// Engine computes weighted LCA consensus lineages.
// It only reads its tables and is safe for concurrent use.
type Engine struct {
	tables    *taxon.Tables
	abundance *evidence.Abundance
	opt       Options

	unresolved int64
}

// NewEngine creates an Engine. A nil abundance table gives every reference weight 1.
func NewEngine(tables *taxon.Tables, abundance *evidence.Abundance, opt Options) *Engine {
	if opt.Separator == "" {
		opt.Separator = ";"
	}
	return &Engine{tables: tables, abundance: abundance, opt: opt}
}

// Unresolved returns the number of hits whose reference could not be resolved.
func (e *Engine) Unresolved() int64 { return atomic.LoadInt64(&e.unresolved) }

// taxonWeight is the accumulated evidence of one taxon.
type taxonWeight struct {
	taxid   uint32
	lineage *taxon.Lineage
	weight  float64
}

// nameWeight is the accumulated evidence of one name at a rank.
type nameWeight struct {
	slot   taxon.Slot
	weight float64
}

// Classify assigns a lineage to a query.
func (e *Engine) Classify(q *evidence.Query) Result {
	hits := q.Hits

	if !e.opt.NoExact {
		for i := range hits {
			if !hits[i].Exact {
				continue
			}
			_, l, ok := e.tables.Lookup(hits[i].Target)
			if !ok || l.Empty() {
				continue
			}
			rank, _ := l.Deepest()
			return Result{
				Query:      q.ID,
				Lineage:    l.Format(e.opt.Separator),
				Level:      rank.String(),
				Confidence: 1,
				Exact:      true,
			}
		}
	}

	if e.opt.Tolerance > 0 {
		hits = NearBest(hits, e.opt.Tolerance)
	}

	// weights per taxon, in order of first appearance
	taxa := make([]taxonWeight, 0, len(hits))
	pos := make(map[uint32]int, len(hits))
	var unresolved int64
	var taxid uint32
	var l *taxon.Lineage
	var ok bool
	var i int
	var w float64
	for _, h := range hits {
		taxid, l, ok = e.tables.Lookup(h.Target)
		if !ok {
			unresolved++
			continue
		}
		w = h.QCov * e.abundance.Weight(h.Target)
		if math.IsNaN(w) || w < 0 {
			w = 0
		}
		if i, ok = pos[taxid]; ok {
			taxa[i].weight += w
			continue
		}
		pos[taxid] = len(taxa)
		taxa = append(taxa, taxonWeight{taxid: taxid, lineage: l, weight: w})
	}
	if unresolved > 0 {
		atomic.AddInt64(&e.unresolved, unresolved)
	}
	if len(taxa) == 0 {
		return Unclassified(q.ID)
	}

	var chosen taxon.Lineage
	var level taxon.Rank
	var found bool
	confidence := 1.0

	names := make([]nameWeight, 0, len(taxa))
	npos := make(map[string]int, len(taxa))
	var slot taxon.Slot
	var total, share float64
	var best int
	for _, rank := range taxon.Ranks {
		names = names[:0]
		for k := range npos {
			delete(npos, k)
		}
		total = 0

		for _, t := range taxa {
			slot = t.lineage[rank]
			if slot.Name == "" { // no opinion at this rank
				continue
			}
			total += t.weight
			if i, ok = npos[slot.Name]; ok {
				names[i].weight += t.weight
				continue
			}
			npos[slot.Name] = len(names)
			names = append(names, nameWeight{slot: slot, weight: t.weight})
		}
		if len(names) == 0 || !(total > 0) { // also catches NaN
			break
		}

		best = 0
		for i = 1; i < len(names); i++ {
			if names[i].weight > names[best].weight { // ties keep the earlier name
				best = i
			}
		}

		share = names[best].weight / total
		if share < e.opt.MinShare {
			break
		}
		confidence *= share
		chosen[rank] = names[best].slot
		level, found = rank, true
	}

	if !found {
		return Unclassified(q.ID)
	}
	if confidence > 1 {
		confidence = 1
	} else if !(confidence >= 0) {
		confidence = 0
	}
	return Result{
		Query:      q.ID,
		Lineage:    chosen.Format(e.opt.Separator),
		Level:      level.String(),
		Confidence: confidence,
	}
}

// NearBest keeps hits whose score (coverage x identity) is at least
// best*(1-tol), in their original order.
func NearBest(hits []evidence.Hit, tol float64) []evidence.Hit {
	if len(hits) < 2 {
		return hits
	}
	var best float64
	for i := range hits {
		if s := hits[i].Score(); s > best {
			best = s
		}
	}
	if best <= 0 {
		return hits
	}
	threshold := best * (1 - tol)
	kept := make([]evidence.Hit, 0, len(hits))
	for i := range hits {
		if hits[i].Score() >= threshold {
			kept = append(kept, hits[i])
		}
	}
	return kept
}
