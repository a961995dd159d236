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
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/shenwei356/alnlca/alnlca/cmd/taxon"
	"github.com/shenwei356/bio/taxdump"
	"github.com/shenwei356/util/pathutil"
	"github.com/spf13/cobra"
	"github.com/twotwotwo/sorts"
)

func loadTaxonomy(opt *Options, path string) *taxdump.Taxonomy {
	if opt.Verbose || opt.Log2File {
		log.Infof("loading Taxonomy from: %s", path)
	}
	var t *taxdump.Taxonomy
	var err error

	t, err = taxdump.NewTaxonomyWithRankFromNCBI(filepath.Join(path, "nodes.dmp"))
	if err != nil {
		checkError(fmt.Errorf("err on loading Taxonomy nodes: %s", err))
	}

	if opt.Verbose || opt.Log2File {
		log.Infof("  %d nodes in %d ranks loaded", len(t.Nodes), len(t.Ranks))
	}

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		file := filepath.Join(path, "names.dmp")
		existed, err := pathutil.Exists(file)
		if err != nil {
			checkError(fmt.Errorf("err on checking file names.dmp: %s", err))
		}
		if !existed {
			checkError(fmt.Errorf("names.dmp not found in: %s", path))
		}
		if err = t.LoadNamesFromNCBI(file); err != nil {
			checkError(fmt.Errorf("err on loading Taxonomy names: %s", err))
		}
		if opt.Verbose || opt.Log2File {
			log.Infof("  %d names loaded", len(t.Names))
		}
	}()

	go func() {
		defer wg.Done()
		file := filepath.Join(path, "delnodes.dmp")
		existed, err := pathutil.Exists(file)
		if err != nil {
			checkError(fmt.Errorf("err on checking file delnodes.dmp: %s", err))
		}
		if existed {
			if err = t.LoadDeletedNodesFromNCBI(file); err != nil {
				checkError(fmt.Errorf("err on loading Taxonomy deleted nodes: %s", err))
			}
		}
		if opt.Verbose || opt.Log2File {
			log.Infof("  %d deleted nodes loaded", len(t.DelNodes))
		}
	}()

	go func() {
		defer wg.Done()
		file := filepath.Join(path, "merged.dmp")
		existed, err := pathutil.Exists(file)
		if err != nil {
			checkError(fmt.Errorf("err on checking file merged.dmp: %s", err))
		}
		if existed {
			if err = t.LoadMergedNodesFromNCBI(file); err != nil {
				checkError(fmt.Errorf("err on loading Taxonomy merged nodes: %s", err))
			}
		}
		if opt.Verbose || opt.Log2File {
			log.Infof("  %d merged nodes loaded", len(t.MergeNodes))
		}
	}()

	wg.Wait()

	return t
}

// ------------------------------------------------------------------------

// taxonomyFiles are the sources of the identifier index and the hierarchy.
type taxonomyFiles struct {
	IDTables   []string
	TaxidMaps  []string
	Hierarchy  string
	TaxdumpDir string

	Separator   string
	StrictRanks bool
}

func addTaxonomyFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceP("id-table", "I", []string{},
		formatFlagUsage(`Identifier table(s) with a header line and columns of "TaxID", "Identifiers" (separated by ';', '|', ',' or spaces), and optional "GCF" and "GCA". Can be given multiple times.`))
	cmd.Flags().StringSliceP("taxid-map", "T", []string{},
		formatFlagUsage(`Tabular two-column file(s) mapping reference IDs to TaxIds. Can be given multiple times.`))
	cmd.Flags().StringP("hierarchy", "H", "",
		formatFlagUsage(`Hierarchy table with a header line and columns of "TaxID" and "Lineage" (flattened "rank:name" entries), or "TaxID", "ParentTaxID", "Rank" and "Name".`))
	cmd.Flags().StringP("taxdump", "X", "",
		formatFlagUsage(`Directory containing NCBI taxonomy files, including nodes.dmp, names.dmp, merged.dmp and delnodes.dmp. It is used when -H/--hierarchy is not given.`))
	cmd.Flags().StringP("separator", "S", ";",
		formatFlagUsage(`Separator of "rank:name" entries in input and output lineages.`))
	cmd.Flags().BoolP("strict-ranks", "", false,
		formatFlagUsage(`Stop when the hierarchy contains unknown rank names, instead of ignoring them.`))
}

func getTaxonomyFiles(cmd *cobra.Command) *taxonomyFiles {
	f := &taxonomyFiles{
		IDTables:    getFlagStringSlice(cmd, "id-table"),
		TaxidMaps:   getFlagStringSlice(cmd, "taxid-map"),
		Hierarchy:   expandPath(getFlagString(cmd, "hierarchy")),
		TaxdumpDir:  expandPath(getFlagString(cmd, "taxdump")),
		Separator:   getFlagString(cmd, "separator"),
		StrictRanks: getFlagBool(cmd, "strict-ranks"),
	}
	for i, file := range f.IDTables {
		f.IDTables[i] = expandPath(file)
	}
	for i, file := range f.TaxidMaps {
		f.TaxidMaps[i] = expandPath(file)
	}
	if f.Separator == "" {
		checkError(fmt.Errorf("the value of -S/--separator should not be empty"))
	}
	if len(f.IDTables)+len(f.TaxidMaps) == 0 {
		checkError(fmt.Errorf("at least one of -I/--id-table and -T/--taxid-map is needed"))
	}
	return f
}

// loadIdentifierIndex builds the identifier index, identifier tables first.
func loadIdentifierIndex(opt *Options, f *taxonomyFiles) *taxon.IdentifierIndex {
	idx := taxon.NewIdentifierIndex(1 << 16)

	var n, invalid int
	var err error
	for _, file := range f.IDTables {
		if opt.Verbose || opt.Log2File {
			log.Infof("loading identifier table: %s", file)
		}
		n, invalid, err = taxon.ReadIdentifierTableFile(file, idx)
		checkError(err)
		if opt.Verbose || opt.Log2File {
			log.Infof("  %d rows loaded", n)
		}
		if invalid > 0 {
			log.Warningf("%d row(s) with invalid TaxIds skipped in %s", invalid, file)
		}
	}
	for _, file := range f.TaxidMaps {
		if opt.Verbose || opt.Log2File {
			log.Infof("loading TaxId mapping file: %s", file)
		}
		n, err = taxon.ReadTaxidMapFile(file, idx)
		checkError(err)
		if opt.Verbose || opt.Log2File {
			log.Infof("  %d pairs of TaxId mapping values loaded", n)
		}
	}

	if opt.Verbose || opt.Log2File {
		log.Infof("%d identifiers indexed, %d conflicting assignments ignored", idx.Len(), idx.Conflicts)
	}
	return idx
}

// loadTables builds the identifier index and the hierarchy, and freezes them.
func loadTables(opt *Options, f *taxonomyFiles) *taxon.Tables {
	idx := loadIdentifierIndex(opt, f)

	var h *taxon.HierarchyIndex
	var err error
	switch {
	case f.Hierarchy != "":
		if opt.Verbose || opt.Log2File {
			log.Infof("loading hierarchy table: %s", f.Hierarchy)
		}
		h, err = taxon.ReadHierarchyTableFile(f.Hierarchy, f.Separator)
		checkError(err)
	case f.TaxdumpDir != "":
		h = taxon.NewHierarchyFromTaxdump(loadTaxonomy(opt, f.TaxdumpDir))
	default:
		checkError(fmt.Errorf("one of -H/--hierarchy and -X/--taxdump is needed"))
	}
	h.Strict = f.StrictRanks

	if opt.Verbose || opt.Log2File {
		log.Infof("  %d taxa in hierarchy", h.Size())
	}

	tables := taxon.NewTables(idx, h)
	missing, err := tables.Freeze()

	if len(h.UnknownRanks) > 0 {
		logRankIssues(h.UnknownRanks)
	}
	checkError(err)

	if h.Cycles > 0 {
		log.Warningf("%d parent chain(s) with cycles were cut", h.Cycles)
	}
	if missing > 0 {
		log.Warningf("%d TaxId(s) in identifier tables are absent from the hierarchy", missing)
	}
	return tables
}

func logRankIssues(issues taxon.RankIssues) {
	ranks := make([]string, 0, len(issues))
	for r := range issues {
		ranks = append(ranks, r)
	}
	sorts.Quicksort(sort.StringSlice(ranks))

	log.Warningf("%d unknown rank name(s) found in hierarchy:", len(ranks))
	for _, r := range ranks {
		log.Warningf("  %s: %d", r, issues[r])
	}
}

// checkFileExists checks that a required input file exists.
func checkFileExists(file string) {
	if file == "-" {
		return
	}
	existed, err := pathutil.Exists(file)
	checkError(errors.Wrap(err, file))
	if !existed {
		checkError(fmt.Errorf("file not found: %s", file))
	}
}
