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
	"bufio"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shenwei356/util/cliutil"
	"github.com/shenwei356/xopen"
	"github.com/twotwotwo/sorts"
)

// ErrMissingColumn means a required column is absent from a table header.
var ErrMissingColumn = errors.New("alnlca: missing required column")

// maximum line length of tables, some identifier lists are long.
const maxLineSize = 256 << 20

// header maps lower-cased column names to their indices.
type header map[string]int

func parseHeader(line string) header {
	h := make(header, 8)
	for i, col := range strings.Split(line, "\t") {
		col = strings.ToLower(strings.TrimSpace(col))
		if _, ok := h[col]; !ok {
			h[col] = i
		}
	}
	return h
}

func (h header) index(col string) int {
	if i, ok := h[strings.ToLower(col)]; ok {
		return i
	}
	return -1
}

func (h header) require(cols ...string) ([]int, error) {
	idx := make([]int, len(cols))
	for i, col := range cols {
		idx[i] = h.index(col)
		if idx[i] < 0 {
			return nil, errors.Wrap(ErrMissingColumn, col)
		}
	}
	return idx, nil
}

// scanTable calls fn for every non-empty line after the header.
func scanTable(r io.Reader, fn func(h header, fields []string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<16), maxLineSize)

	var h header
	var line string
	for scanner.Scan() {
		line = strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		if h == nil {
			h = parseHeader(line)
			if err := fn(h, nil); err != nil {
				return err
			}
			continue
		}
		if err := fn(h, strings.Split(line, "\t")); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func field(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

// ParseTaxID parses a taxon id.
func ParseTaxID(s string) (uint32, error) {
	taxid, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, errors.Errorf("invalid TaxId: %s", s)
	}
	return uint32(taxid), nil
}

// ------------------------------------------------------------------------

// ReadIdentifierTable adds tokens of an identifier table to idx.
// The table has a header with the required columns TaxID and Identifiers,
// and optional GCF/GCA columns. Rows with an empty TaxID are skipped silently,
// rows with an invalid one (e.g., "Unknown TaxID") are skipped and counted.
// It returns the numbers of rows used and of invalid rows.
func ReadIdentifierTable(r io.Reader, idx *IdentifierIndex) (rows int, invalid int, err error) {
	var iTaxid, iIDs, iGCF, iGCA int
	var taxid uint32
	err = scanTable(r, func(h header, fields []string) error {
		if fields == nil {
			cols, err := h.require("TaxID", "Identifiers")
			if err != nil {
				return err
			}
			iTaxid, iIDs = cols[0], cols[1]
			iGCF, iGCA = h.index("GCF"), h.index("GCA")
			return nil
		}

		s := field(fields, iTaxid)
		if s == "" {
			return nil
		}
		var e error
		if taxid, e = ParseTaxID(s); e != nil {
			invalid++
			return nil
		}
		rows++

		idx.AddWithAliases(field(fields, iGCF), taxid)
		idx.AddWithAliases(field(fields, iGCA), taxid)
		for _, token := range SplitIdentifiers(field(fields, iIDs)) {
			idx.AddWithAliases(token, taxid)
		}
		return nil
	})
	return rows, invalid, err
}

// ReadIdentifierTableFile reads an identifier table from a (compressed) file.
func ReadIdentifierTableFile(file string, idx *IdentifierIndex) (int, int, error) {
	fh, err := xopen.Ropen(file)
	if err != nil {
		return 0, 0, errors.Wrap(err, file)
	}
	defer fh.Close()

	n, invalid, err := ReadIdentifierTable(fh, idx)
	return n, invalid, errors.Wrap(err, file)
}

// ReadTaxidMapFile adds a two-column (reference, taxid) mapping file to idx.
// References are added in sorted order to keep alias assignment stable.
func ReadTaxidMapFile(file string, idx *IdentifierIndex) (int, error) {
	kvs, err := cliutil.ReadKVs(file, false)
	if err != nil {
		return 0, errors.Wrap(err, file)
	}
	keys := make([]string, 0, len(kvs))
	for k := range kvs {
		keys = append(keys, k)
	}
	sorts.Quicksort(sort.StringSlice(keys))

	var taxid uint32
	for _, k := range keys {
		taxid, err = ParseTaxID(kvs[k])
		if err != nil {
			return 0, errors.Wrap(err, file)
		}
		idx.AddWithAliases(k, taxid)
	}
	return len(keys), nil
}

// ------------------------------------------------------------------------

// ReadHierarchyTable reads a hierarchy table with a header and a TaxID column,
// plus either a Lineage column of flattened lineages,
// or ParentTaxID, Rank and Name columns.
func ReadHierarchyTable(r io.Reader, sep string) (*HierarchyIndex, error) {
	var iTaxid, iLineage, iParent, iRank, iName int
	var flat bool
	lineages := make(map[uint32]string, 1024)
	records := make([]*TaxonRecord, 0, 1024)

	var taxid, parent uint32
	var err error
	err = scanTable(r, func(h header, fields []string) error {
		if fields == nil {
			cols, err := h.require("TaxID")
			if err != nil {
				return err
			}
			iTaxid = cols[0]
			if iLineage = h.index("Lineage"); iLineage >= 0 {
				flat = true
				return nil
			}
			cols, err = h.require("ParentTaxID", "Rank", "Name")
			if err != nil {
				return errors.Wrap(err, "either Lineage or ParentTaxID+Rank+Name are needed")
			}
			iParent, iRank, iName = cols[0], cols[1], cols[2]
			return nil
		}

		taxid, err = ParseTaxID(field(fields, iTaxid))
		if err != nil {
			return err
		}
		if flat {
			if _, ok := lineages[taxid]; !ok {
				lineages[taxid] = field(fields, iLineage)
			}
			return nil
		}

		s := field(fields, iParent)
		parent = 0
		if s != "" {
			if parent, err = ParseTaxID(s); err != nil {
				return err
			}
		}
		records = append(records, &TaxonRecord{
			TaxID:  taxid,
			Parent: parent,
			Rank:   field(fields, iRank),
			Name:   field(fields, iName),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if flat {
		return NewHierarchyFromLineages(lineages, sep), nil
	}
	return NewHierarchyFromRecords(records), nil
}

// ReadHierarchyTableFile reads a hierarchy table from a (compressed) file.
func ReadHierarchyTableFile(file string, sep string) (*HierarchyIndex, error) {
	fh, err := xopen.Ropen(file)
	if err != nil {
		return nil, errors.Wrap(err, file)
	}
	defer fh.Close()

	h, err := ReadHierarchyTable(fh, sep)
	if err != nil {
		return nil, errors.Wrap(err, file)
	}
	return h, nil
}
