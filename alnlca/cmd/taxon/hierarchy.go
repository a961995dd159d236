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

package taxon

import (
	"github.com/pkg/errors"
	"github.com/shenwei356/bio/taxdump"
)

// ErrUnknownTaxID means the taxon id is absent from the hierarchy.
var ErrUnknownTaxID = errors.New("alnlca: taxid not found in hierarchy")

// ErrRankSpelling means unknown rank spellings were met in strict mode.
var ErrRankSpelling = errors.New("alnlca: unknown rank spellings in hierarchy")

// TaxonRecord is a node of a taxonomy tree. The root points to itself or to 0.
type TaxonRecord struct {
	TaxID  uint32
	Parent uint32
	Rank   string
	Name   string
}

// lineageSource produces the lineage of a taxon from the raw hierarchy data.
type lineageSource interface {
	lineage(taxid uint32, issues RankIssues) (*Lineage, bool)
	size() int
}

// HierarchyIndex gives the canonical-rank lineage of a taxon.
// Lineages are computed on first request and memoized.
// After Freeze, the index only reads its cache and is safe for concurrent use.
type HierarchyIndex struct {
	src    lineageSource
	cache  map[uint32]*Lineage
	frozen bool

	// Strict makes Freeze fail on unknown rank spellings.
	Strict bool
	// UnknownRanks counts unrecognized rank spellings met so far.
	UnknownRanks RankIssues
	// Cycles counts parent chains that looped back onto themselves.
	Cycles int
}

func newHierarchyIndex(src lineageSource) *HierarchyIndex {
	return &HierarchyIndex{
		src:          src,
		cache:        make(map[uint32]*Lineage, 1024),
		UnknownRanks: make(RankIssues),
	}
}

// Size returns the number of taxa in the underlying hierarchy.
func (h *HierarchyIndex) Size() int { return h.src.size() }

// Lineage returns the lineage of a taxon.
func (h *HierarchyIndex) Lineage(taxid uint32) (*Lineage, bool) {
	if l, ok := h.cache[taxid]; ok {
		return l, l != nil
	}
	if h.frozen {
		return nil, false
	}
	l, ok := h.src.lineage(taxid, h.UnknownRanks)
	if !ok {
		h.cache[taxid] = nil
		return nil, false
	}
	h.cache[taxid] = l
	return l, true
}

// Freeze computes lineages of the given taxa and stops further memoization.
// It returns the number of taxa missing from the hierarchy.
func (h *HierarchyIndex) Freeze(taxids []uint32) (int, error) {
	var missing int
	for _, taxid := range taxids {
		if _, ok := h.Lineage(taxid); !ok {
			missing++
		}
	}
	h.frozen = true
	if h.Strict && len(h.UnknownRanks) > 0 {
		return missing, errors.Wrapf(ErrRankSpelling, "%d spelling(s)", len(h.UnknownRanks))
	}
	return missing, nil
}

// Frozen tells whether Freeze has been called.
func (h *HierarchyIndex) Frozen() bool { return h.frozen }

// ------------------------------------------------------------------------

// flattened "rank:name;rank:name" strings.
type flatSource struct {
	sep      string
	lineages map[uint32]string
}

// NewHierarchyFromLineages creates a HierarchyIndex from flattened lineage strings.
func NewHierarchyFromLineages(lineages map[uint32]string, sep string) *HierarchyIndex {
	if sep == "" {
		sep = ";"
	}
	return newHierarchyIndex(&flatSource{sep: sep, lineages: lineages})
}

func (s *flatSource) lineage(taxid uint32, issues RankIssues) (*Lineage, bool) {
	str, ok := s.lineages[taxid]
	if !ok {
		return nil, false
	}
	return ParseLineage(str, s.sep, issues), true
}

func (s *flatSource) size() int { return len(s.lineages) }

// ------------------------------------------------------------------------

// parent/rank/name records.
type recordSource struct {
	nodes  map[uint32]*TaxonRecord
	cycles *int
}

// NewHierarchyFromRecords creates a HierarchyIndex from taxon records,
// rebuilding lineages by walking parent links.
func NewHierarchyFromRecords(records []*TaxonRecord) *HierarchyIndex {
	src := &recordSource{nodes: make(map[uint32]*TaxonRecord, len(records))}
	for _, r := range records {
		src.nodes[r.TaxID] = r
	}
	h := newHierarchyIndex(src)
	src.cycles = &h.Cycles
	return h
}

func (s *recordSource) lineage(taxid uint32, issues RankIssues) (*Lineage, bool) {
	node, ok := s.nodes[taxid]
	if !ok {
		return nil, false
	}

	visited := make(map[uint32]struct{}, 32)
	path := make([]chainNode, 0, 32) // leaf to root
	for {
		if _, ok = visited[node.TaxID]; ok {
			*s.cycles++
			break
		}
		visited[node.TaxID] = struct{}{}
		path = append(path, chainNode{taxid: node.TaxID, rank: node.Rank, name: node.Name})

		if node.Parent == 0 || node.Parent == node.TaxID {
			break
		}
		if node, ok = s.nodes[node.Parent]; !ok {
			break
		}
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return lineageFromChain(path, issues), true
}

func (s *recordSource) size() int { return len(s.nodes) }

// ------------------------------------------------------------------------

// NCBI taxdump.
type taxdumpSource struct {
	db *taxdump.Taxonomy
}

// NewHierarchyFromTaxdump creates a HierarchyIndex on a loaded NCBI taxonomy.
// Merged taxids are followed to their new ones.
func NewHierarchyFromTaxdump(db *taxdump.Taxonomy) *HierarchyIndex {
	return newHierarchyIndex(&taxdumpSource{db: db})
}

func (s *taxdumpSource) lineage(taxid uint32, issues RankIssues) (*Lineage, bool) {
	taxid, ok := s.db.TaxId(taxid)
	if !ok {
		return nil, false
	}
	taxids := s.db.LineageTaxIds(taxid) // root to leaf
	if len(taxids) == 0 {
		return nil, false
	}
	path := make([]chainNode, len(taxids))
	for i, t := range taxids {
		path[i] = chainNode{taxid: t, rank: s.db.Rank(t), name: s.db.Name(t)}
	}
	return lineageFromChain(path, issues), true
}

func (s *taxdumpSource) size() int { return len(s.db.Nodes) }
