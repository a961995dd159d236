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
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/shenwei356/alnlca/alnlca/cmd/evidence"
	"github.com/shenwei356/alnlca/alnlca/cmd/taxon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prefix = "superkingdom:Bacteria;phylum:P;class:C;order:O;family:F;"

func newTables(t *testing.T, refs map[string]uint32, lineages map[uint32]string) *taxon.Tables {
	idx := taxon.NewIdentifierIndex(len(refs))
	for ref, taxid := range refs {
		idx.AddWithAliases(ref, taxid)
	}
	tbl := taxon.NewTables(idx, taxon.NewHierarchyFromLineages(lineages, ";"))
	_, err := tbl.Freeze()
	require.NoError(t, err)
	return tbl
}

func hit(target string, qcov float64) evidence.Hit {
	return evidence.Hit{Target: target, QCov: qcov, Ident: 1}
}

func TestSameGenus(t *testing.T) {
	tbl := newTables(t,
		map[string]uint32{"A": 1, "B": 2},
		map[uint32]string{
			1: prefix + "genus:G;species:x",
			2: prefix + "genus:G;species:y",
		})
	q := &evidence.Query{ID: "Q1", Hits: []evidence.Hit{hit("A", 0.9), hit("B", 0.3)}}

	r := NewEngine(tbl, nil, Options{}).Classify(q)
	assert.Equal(t, "species", r.Level)
	assert.InDelta(t, 0.75, r.Confidence, 1e-9)
	assert.Equal(t, prefix+"genus:G;species:x", r.Lineage)

	r = NewEngine(tbl, nil, Options{MinShare: 0.8}).Classify(q)
	assert.Equal(t, "genus", r.Level)
	assert.Equal(t, 1.0, r.Confidence)
	assert.Equal(t, prefix+"genus:G", r.Lineage)
}

func TestAbundancePrior(t *testing.T) {
	tbl := newTables(t,
		map[string]uint32{"R1": 1, "R2": 2},
		map[uint32]string{
			1: "superkingdom:Bacteria;phylum:P1",
			2: "superkingdom:Bacteria;phylum:P2",
		})
	ab := evidence.NewAbundance()
	for i := 0; i < 5; i++ {
		ab.Add("R1")
	}
	ab.Add("R2")

	q := &evidence.Query{ID: "Q", Hits: []evidence.Hit{hit("R2", 0.5), hit("R1", 0.2)}}
	r := NewEngine(tbl, ab, Options{}).Classify(q)
	assert.Equal(t, "superkingdom:Bacteria;phylum:P1", r.Lineage)
	assert.Equal(t, "phylum", r.Level)
	assert.InDelta(t, 1.0/1.5, r.Confidence, 1e-9)
}

func TestExactShortcut(t *testing.T) {
	tbl := newTables(t,
		map[string]uint32{"A": 1, "B": 2, "C": 3},
		map[uint32]string{
			1: prefix + "genus:G;species:x;strain:x1",
			2: prefix + "genus:H;species:y",
		})
	exact := hit("A", 1)
	exact.Exact = true
	q := &evidence.Query{ID: "Q", Hits: []evidence.Hit{hit("B", 1), exact}}

	r := NewEngine(tbl, nil, Options{}).Classify(q)
	assert.True(t, r.Exact)
	assert.Equal(t, 1.0, r.Confidence)
	assert.Equal(t, "strain", r.Level)
	assert.Equal(t, prefix+"genus:G;species:x;strain:x1", r.Lineage)

	// genus and species split evenly, only A has a strain
	r = NewEngine(tbl, nil, Options{NoExact: true}).Classify(q)
	assert.False(t, r.Exact)
	assert.Equal(t, "strain", r.Level)
	assert.InDelta(t, 0.25, r.Confidence, 1e-9)

	// an exact hit without lineage falls through to the consensus
	orphan := hit("C", 1)
	orphan.Exact = true
	q = &evidence.Query{ID: "Q", Hits: []evidence.Hit{orphan, hit("B", 0.5)}}
	r = NewEngine(tbl, nil, Options{}).Classify(q)
	assert.False(t, r.Exact)
	assert.Equal(t, "species", r.Level)
	assert.Equal(t, 1.0, r.Confidence)
}

func TestUnresolvable(t *testing.T) {
	tbl := newTables(t, map[string]uint32{"A": 1}, map[uint32]string{1: prefix})
	e := NewEngine(tbl, nil, Options{})

	r := e.Classify(&evidence.Query{ID: "Q", Hits: []evidence.Hit{hit("nope", 1), hit("neither", 1)}})
	assert.Equal(t, Unclassified("Q"), r)
	assert.Equal(t, Unknown, r.Lineage)
	assert.Equal(t, "root", r.Level)
	assert.Equal(t, 0.0, r.Confidence)
	assert.False(t, r.Classified())
	assert.Equal(t, int64(2), e.Unresolved())

	// zero coverage carries no evidence
	r = e.Classify(&evidence.Query{ID: "Q", Hits: []evidence.Hit{hit("A", 0)}})
	assert.Equal(t, "root", r.Level)
}

func TestPerRankDenominator(t *testing.T) {
	tbl := newTables(t,
		map[string]uint32{"A": 1, "B": 2},
		map[uint32]string{
			1: prefix + "genus:G;species:x",
			2: prefix,
		})
	q := &evidence.Query{ID: "Q", Hits: []evidence.Hit{hit("A", 0.5), hit("B", 0.5)}}
	r := NewEngine(tbl, nil, Options{}).Classify(q)
	assert.Equal(t, "species", r.Level)
	assert.Equal(t, 1.0, r.Confidence)
}

func TestTieKeepsFirst(t *testing.T) {
	tbl := newTables(t,
		map[string]uint32{"A": 1, "B": 2},
		map[uint32]string{
			1: "superkingdom:Bacteria;phylum:First",
			2: "superkingdom:Bacteria;phylum:Second",
		})
	e := NewEngine(tbl, nil, Options{})

	r := e.Classify(&evidence.Query{ID: "Q", Hits: []evidence.Hit{hit("B", 0.4), hit("A", 0.4)}})
	assert.Equal(t, "superkingdom:Bacteria;phylum:Second", r.Lineage)
	assert.InDelta(t, 0.5, r.Confidence, 1e-9)

	r = e.Classify(&evidence.Query{ID: "Q", Hits: []evidence.Hit{hit("A", 0.4), hit("B", 0.4)}})
	assert.Equal(t, "superkingdom:Bacteria;phylum:First", r.Lineage)
}

func TestGapStopsWalk(t *testing.T) {
	tbl := newTables(t,
		map[string]uint32{"A": 1},
		map[uint32]string{1: "superkingdom:Bacteria;class:C;species:S"})
	r := NewEngine(tbl, nil, Options{Separator: "|"}).Classify(
		&evidence.Query{ID: "Q", Hits: []evidence.Hit{hit("A", 1)}})
	assert.Equal(t, "superkingdom", r.Level)
	assert.Equal(t, "superkingdom:Bacteria", r.Lineage)
}

func TestConfidenceMonotonic(t *testing.T) {
	tbl := newTables(t,
		map[string]uint32{"A": 1, "B": 2, "C": 3},
		map[uint32]string{
			1: "superkingdom:Bacteria;phylum:P1;class:C1",
			2: "superkingdom:Bacteria;phylum:P1;class:C2",
			3: "superkingdom:Archaea;phylum:P2;class:C3",
		})
	hits := []evidence.Hit{hit("A", 0.6), hit("B", 0.3), hit("C", 0.1)}
	tests := []struct {
		minShare   float64
		level      string
		confidence float64
	}{
		{0, "class", 0.9 * 0.9 * 0.6},
		{0.85, "phylum", 0.9 * 0.9},
		{0.95, "root", 0},
	}
	prev := 0.0
	for _, tt := range tests {
		r := NewEngine(tbl, nil, Options{MinShare: tt.minShare}).Classify(&evidence.Query{ID: "Q", Hits: hits})
		assert.Equal(t, tt.level, r.Level)
		assert.InDelta(t, tt.confidence, r.Confidence, 1e-9)
		if tt.level != "root" {
			// fewer ranks, higher confidence
			assert.True(t, r.Confidence >= prev)
			prev = r.Confidence
		}
	}
}

func TestNearBest(t *testing.T) {
	hits := []evidence.Hit{hit("a", 0.9), hit("b", 0.5), hit("c", 0.85)}
	kept := NearBest(hits, 0.1)
	require.Len(t, kept, 2)
	assert.Equal(t, "a", kept[0].Target)
	assert.Equal(t, "c", kept[1].Target)

	assert.Len(t, NearBest(hits, 1), 3)
	assert.Len(t, NearBest([]evidence.Hit{hit("z", 0)}, 0.1), 1)
}

func TestNonFiniteCoverage(t *testing.T) {
	tbl := newTables(t,
		map[string]uint32{"A": 1, "B": 2},
		map[uint32]string{
			1: "superkingdom:Bacteria;phylum:P1",
			2: "superkingdom:Bacteria;phylum:P2",
		})
	e := NewEngine(tbl, nil, Options{})

	nan := hit("A", math.NaN())
	r := e.Classify(&evidence.Query{ID: "Q", Hits: []evidence.Hit{nan, hit("B", 0.5)}})
	assert.Equal(t, "phylum", r.Level)
	assert.Equal(t, "superkingdom:Bacteria;phylum:P2", r.Lineage)
	assert.Equal(t, 1.0, r.Confidence)

	r = e.Classify(&evidence.Query{ID: "Q", Hits: []evidence.Hit{nan}})
	assert.Equal(t, Unclassified("Q"), r)
}

type panicky struct {
	e *Engine
}

func (p panicky) Classify(q *evidence.Query) Result {
	if q.ID == "boom" {
		panic("boom")
	}
	return p.e.Classify(q)
}

func TestDispatcher(t *testing.T) {
	refs := make(map[string]uint32, 20)
	lineages := make(map[uint32]string, 20)
	for i := 1; i <= 20; i++ {
		refs[fmt.Sprintf("ref%d", i)] = uint32(i)
		lineages[uint32(i)] = fmt.Sprintf("superkingdom:Bacteria;phylum:P%d", i%3)
	}
	tbl := newTables(t, refs, lineages)
	e := NewEngine(tbl, nil, Options{})

	queries := make([]*evidence.Query, 200)
	for i := range queries {
		queries[i] = &evidence.Query{
			ID: fmt.Sprintf("q%d", i),
			Hits: []evidence.Hit{
				hit(fmt.Sprintf("ref%d", i%20+1), 0.5),
				hit(fmt.Sprintf("ref%d", (i*7)%20+1), 0.3),
			},
		}
	}
	queries[17].ID = "boom"

	var baseline []Result
	for _, threads := range []int{1, 4, 16} {
		d := NewDispatcher(panicky{e}, threads)
		var done int64
		d.OnDone = func(time.Duration) { done++ }
		if threads > 1 {
			d.OnDone = nil
		}
		results := d.Run(context.Background(), queries)
		require.Len(t, results, len(queries))
		for i, r := range results {
			assert.Equal(t, queries[i].ID, r.Query)
		}
		assert.Equal(t, Unclassified("boom"), results[17])
		assert.Equal(t, int64(1), d.Failed())

		if threads == 1 {
			assert.Equal(t, int64(len(queries)), done)
			baseline = results
			continue
		}
		assert.Equal(t, baseline, results)
	}
}

func TestDispatcherCancelled(t *testing.T) {
	tbl := newTables(t, map[string]uint32{"A": 1}, map[uint32]string{1: prefix})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	queries := []*evidence.Query{{ID: "a", Hits: []evidence.Hit{hit("A", 1)}}, {ID: "b"}}
	results := NewDispatcher(NewEngine(tbl, nil, Options{}), 2).Run(ctx, queries)
	assert.Equal(t, []Result{Unclassified("a"), Unclassified("b")}, results)
}
