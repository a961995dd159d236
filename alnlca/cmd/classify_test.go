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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shenwei356/alnlca/alnlca/cmd/evidence"
	"github.com/shenwei356/alnlca/alnlca/cmd/lca"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrefix = "superkingdom:Bacteria;phylum:P;class:C;order:O;family:F;genus:G;"

func writeFile(t *testing.T, dir, name, data string) string {
	file := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(file, []byte(data), 0644))
	return file
}

func TestClassifyPipeline(t *testing.T) {
	dir := t.TempDir()
	idTable := writeFile(t, dir, "ids.tsv",
		"TaxID\tIdentifiers\tGCF\n"+
			"1\tNZ_CP000001.1 Escherichia coli\tGCF_000001.1\n"+
			"2\tNZ_CP000002.1\t\n"+
			"Unknown TaxID\tNZ_CP000009.1\tGCF_000009.1\n")
	hierarchy := writeFile(t, dir, "hierarchy.tsv",
		"TaxID\tLineage\n"+
			"1\t"+testPrefix+"species:x\n"+
			"2\t"+testPrefix+"species:y\n")
	paf := writeFile(t, dir, "aln.paf",
		"q1\t1000\t0\t900\t+\tNZ_CP000001.1\t5000\t0\t900\t900\t900\t60\n"+
			"q1\t1000\t0\t300\t+\tNZ_CP000002.1\t5000\t0\t300\t300\t300\t60\n"+
			"q2\t500\t0\t400\t+\tref|NZ_CP000002.1|\t5000\t0\t400\t400\t400\t60\n"+
			"q3\t500\t0\t400\t+\tunknown_ref\t5000\t0\t400\t400\t400\t60\n")

	opt := &Options{NumCPUs: 2}
	tables := loadTables(opt, &taxonomyFiles{
		IDTables:  []string{idTable},
		Hierarchy: hierarchy,
		Separator: ";",
	})

	loader, err := evidence.NewLoader(evidence.Options{Schema: evidence.PAF, Threads: 2, ChunkSize: 2})
	require.NoError(t, err)
	ev, err := loader.LoadFiles([]string{paf})
	require.NoError(t, err)
	require.Len(t, ev.Queries, 3)

	engine := lca.NewEngine(tables, ev.Abundance, lca.Options{})
	results := lca.NewDispatcher(engine, opt.NumCPUs).Run(context.Background(), ev.Queries)

	var buf bytes.Buffer
	require.NoError(t, writeResults(&buf, results))
	assert.Equal(t,
		resultHeader+
			"q1\t"+testPrefix+"species:x\tspecies\t0.7500\n"+
			"q2\t"+testPrefix+"species:y\tspecies\t1.0000\n"+
			"q3\tUnknown\troot\t0.0000\n",
		buf.String())
	assert.Equal(t, int64(1), engine.Unresolved())

	s := summarizeResults(results)
	assert.Equal(t, 3, s.Queries)
	assert.Equal(t, 2, s.Classified)
	assert.Equal(t, 0, s.Exact)
	require.Len(t, s.Levels, 2)
	assert.Equal(t, "species", s.Levels[0].Level)
	assert.Equal(t, 2, s.Levels[0].Queries)
	assert.Equal(t, "root", s.Levels[1].Level)

	data, err := s.Table()
	require.NoError(t, err)
	var species string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "species") {
			species = line
		}
	}
	assert.Contains(t, species, "66.67%")
}

func TestSummaryOrder(t *testing.T) {
	results := []lca.Result{
		lca.Unclassified("a"),
		{Query: "b", Lineage: "superkingdom:Bacteria", Level: "superkingdom", Confidence: 1, Exact: true},
		{Query: "c", Lineage: testPrefix, Level: "genus", Confidence: 0.5},
		{Query: "d", Lineage: testPrefix, Level: "genus", Confidence: 0.7},
	}
	s := summarizeResults(results)
	levels := make([]string, len(s.Levels))
	for i, ls := range s.Levels {
		levels[i] = ls.Level
	}
	assert.Equal(t, []string{"superkingdom", "genus", "root"}, levels)
	assert.Equal(t, 3, s.Classified)
	assert.Equal(t, 1, s.Exact)
}

func TestWrapText(t *testing.T) {
	assert.Equal(t, "aaa bbb\n  ccc", wrapText("aaa bbb ccc", 7, "  "))
	assert.Equal(t, "aaa", wrapText("  aaa  ", 7, "  "))
	assert.Equal(t, "", wrapText("", 7, "  "))
}
