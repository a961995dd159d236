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

package cmd

import (
	"bufio"
	"fmt"
	"io"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/shenwei356/alnlca/alnlca/cmd/lca"
	"github.com/shenwei356/alnlca/alnlca/cmd/taxon"
	"github.com/shenwei356/util/stats"
	"github.com/tatsushid/go-prettytable"
	"github.com/twotwotwo/sorts"
)

// resultHeader is the header line of classification results.
const resultHeader = "Query\tLineage\tTaxonomic Level\tConfidence\n"

// writeResults writes one line per query, in the order of results.
func writeResults(w io.Writer, results []lca.Result) error {
	bw, ok := w.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriterSize(w, BufferSize)
	}
	if _, err := bw.WriteString(resultHeader); err != nil {
		return err
	}
	var err error
	for i := range results {
		r := &results[i]
		_, err = fmt.Fprintf(bw, "%s\t%s\t%s\t%.4f\n", r.Query, r.Lineage, r.Level, r.Confidence)
		if err != nil {
			return err
		}
	}
	if !ok {
		return bw.Flush()
	}
	return nil
}

// levelSummary counts results assigned at one taxonomic level.
type levelSummary struct {
	Level string
	Order int // position of the rank, root last

	Queries int
	Exact   int
	Conf    *stats.Quantiler
}

// classifySummary summarizes results of a run.
type classifySummary struct {
	Queries    int
	Classified int
	Exact      int

	Levels []*levelSummary // sorted by rank
}

func summarizeResults(results []lca.Result) *classifySummary {
	s := &classifySummary{Queries: len(results)}

	m := make(map[string]*levelSummary, taxon.NumRanks+1)
	var ls *levelSummary
	var ok bool
	for i := range results {
		r := &results[i]
		if ls, ok = m[r.Level]; !ok {
			ls = &levelSummary{Level: r.Level, Order: levelOrder(r.Level), Conf: stats.NewQuantiler()}
			m[r.Level] = ls
		}
		ls.Queries++
		ls.Conf.Add(r.Confidence)

		if r.Classified() {
			s.Classified++
		}
		if r.Exact {
			ls.Exact++
			s.Exact++
		}
	}

	s.Levels = make([]*levelSummary, 0, len(m))
	for _, ls = range m {
		s.Levels = append(s.Levels, ls)
	}
	sorts.Quicksort(levelSummaries(s.Levels))
	return s
}

func levelOrder(level string) int {
	r, err := taxon.ParseRank(level)
	if err != nil {
		return int(taxon.NumRanks)
	}
	return int(r)
}

type levelSummaries []*levelSummary

func (s levelSummaries) Len() int           { return len(s) }
func (s levelSummaries) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
func (s levelSummaries) Less(i, j int) bool { return s[i].Order < s[j].Order }

var _ sort.Interface = levelSummaries(nil)

// Table formats the summary as a table of taxonomic levels.
func (s *classifySummary) Table() ([]byte, error) {
	tbl, err := prettytable.NewTable([]prettytable.Column{
		{Header: "level"},
		{Header: "queries", AlignRight: true},
		{Header: "percentage", AlignRight: true},
		{Header: "exact", AlignRight: true},
		{Header: "conf-median", AlignRight: true},
		{Header: "conf-p90", AlignRight: true},
	}...)
	if err != nil {
		return nil, err
	}
	tbl.Separator = "  "

	for _, ls := range s.Levels {
		tbl.AddRow(
			ls.Level,
			humanize.Comma(int64(ls.Queries)),
			fmt.Sprintf("%.2f%%", percentage(ls.Queries, s.Queries)),
			humanize.Comma(int64(ls.Exact)),
			fmt.Sprintf("%.4f", ls.Conf.Percentile(50)),
			fmt.Sprintf("%.4f", ls.Conf.Percentile(90)),
		)
	}
	return tbl.Bytes(), nil
}

func percentage(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
