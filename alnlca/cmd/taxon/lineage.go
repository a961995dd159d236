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
	"strings"
)

// Slot is the ancestor of a taxon at one canonical rank.
// TaxID is 0 when the source only provides names.
type Slot struct {
	TaxID uint32
	Name  string
}

// Lineage holds one slot per canonical rank, indexed by Rank.
// An empty Name means the taxon has no ancestor at that rank.
type Lineage [NumRanks]Slot

// Name returns the name at rank r.
func (l *Lineage) Name(r Rank) string {
	return l[r].Name
}

// Empty tells whether no rank is filled.
func (l *Lineage) Empty() bool {
	for i := range l {
		if l[i].Name != "" {
			return false
		}
	}
	return true
}

// Deepest returns the finest rank with a name.
func (l *Lineage) Deepest() (Rank, bool) {
	for i := NumRanks - 1; i >= 0; i-- {
		if l[i].Name != "" {
			return Rank(i), true
		}
	}
	return 0, false
}

// Format joins the filled slots as "rank:name" in rank order.
func (l *Lineage) Format(sep string) string {
	var b strings.Builder
	for i := range l {
		if l[i].Name == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(rankNames[i])
		b.WriteByte(':')
		b.WriteString(l[i].Name)
	}
	return b.String()
}

// set fills a slot only once, so the coarsest alias (e.g. superkingdom before kingdom) wins.
func (l *Lineage) set(r Rank, taxid uint32, name string) {
	if l[r].Name != "" || name == "" {
		return
	}
	l[r] = Slot{TaxID: taxid, Name: name}
}

// RankIssues counts rank spellings that were neither canonical nor intermediate.
type RankIssues map[string]int

// ParseLineage parses a flattened lineage like
// "superkingdom:Bacteria;phylum:Proteobacteria;...;species:Escherichia coli".
// Entries without a colon and intermediate ranks are skipped,
// unknown rank spellings are recorded in issues when it is not nil.
func ParseLineage(s string, sep string, issues RankIssues) *Lineage {
	var l Lineage
	var part, rank, name string
	var i int
	var r Rank
	var err error
	for _, part = range strings.Split(s, sep) {
		i = strings.IndexByte(part, ':')
		if i < 0 {
			continue
		}
		rank, name = strings.TrimSpace(part[:i]), strings.TrimSpace(part[i+1:])
		if name == "" {
			continue
		}
		r, err = ParseRank(rank)
		if err != nil {
			if !IsIntermediateRank(rank) && issues != nil {
				issues[rank]++
			}
			continue
		}
		l.set(r, 0, name)
	}
	return &l
}

// chainNode is one ancestor in a root-to-leaf path.
type chainNode struct {
	taxid uint32
	rank  string
	name  string
}

// lineageFromChain fills a Lineage from a root-to-leaf path.
// A "no rank" node below a species is taken as the strain.
func lineageFromChain(chain []chainNode, issues RankIssues) *Lineage {
	var l Lineage
	var r Rank
	var err error
	for _, n := range chain {
		r, err = ParseRank(n.rank)
		if err == nil {
			l.set(r, n.taxid, n.name)
			continue
		}
		if strings.EqualFold(n.rank, "no rank") && l[Species].Name != "" {
			l.set(Strain, n.taxid, n.name)
			continue
		}
		if !IsIntermediateRank(n.rank) && issues != nil {
			issues[n.rank]++
		}
	}
	return &l
}
