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

	"github.com/pkg/errors"
)

// Rank is one of the canonical taxonomic ranks, ordered from the coarsest to the finest.
type Rank uint8

const (
	Superkingdom Rank = iota
	Phylum
	Class
	Order
	Family
	Genus
	Species
	Strain
)

// NumRanks is the number of canonical ranks.
const NumRanks = 8

// RankRoot is the level reported when no rank could be resolved.
const RankRoot = "root"

// ErrUnknownRank means the rank spelling is neither canonical nor a known alias.
var ErrUnknownRank = errors.New("alnlca: unknown rank")

var rankNames = [NumRanks]string{
	"superkingdom",
	"phylum",
	"class",
	"order",
	"family",
	"genus",
	"species",
	"strain",
}

// Ranks lists all canonical ranks in order.
var Ranks = [NumRanks]Rank{Superkingdom, Phylum, Class, Order, Family, Genus, Species, Strain}

func (r Rank) String() string {
	if int(r) < NumRanks {
		return rankNames[r]
	}
	return "unknown"
}

var rankAliases = map[string]Rank{
	"superkingdom": Superkingdom,
	"domain":       Superkingdom,
	"kingdom":      Superkingdom,
	"sk":           Superkingdom,
	"k":            Superkingdom,
	"d":            Superkingdom,
	"phylum":       Phylum,
	"p":            Phylum,
	"class":        Class,
	"c":            Class,
	"order":        Order,
	"o":            Order,
	"family":       Family,
	"f":            Family,
	"genus":        Genus,
	"g":            Genus,
	"species":      Species,
	"s":            Species,
	"strain":       Strain,
	"t":            Strain,

	"subspecies-strain": Strain,
}

// ParseRank normalizes a rank spelling or alias (case-insensitive).
func ParseRank(s string) (Rank, error) {
	r, ok := rankAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, errors.Wrap(ErrUnknownRank, s)
	}
	return r, nil
}

// NCBI ranks that sit between the canonical ones, and which are skipped on purpose.
var intermediateRanks = map[string]struct{}{
	"no rank":          {},
	"clade":            {},
	"cellular root":    {},
	"acellular root":   {},
	"realm":            {},
	"subrealm":         {},
	"subkingdom":       {},
	"superphylum":      {},
	"subphylum":        {},
	"infraphylum":      {},
	"superclass":       {},
	"subclass":         {},
	"infraclass":       {},
	"cohort":           {},
	"subcohort":        {},
	"superorder":       {},
	"suborder":         {},
	"infraorder":       {},
	"parvorder":        {},
	"superfamily":      {},
	"subfamily":        {},
	"tribe":            {},
	"subtribe":         {},
	"subgenus":         {},
	"section":          {},
	"subsection":       {},
	"series":           {},
	"species group":    {},
	"species subgroup": {},
	"subspecies":       {},
	"varietas":         {},
	"forma":            {},
	"forma specialis":  {},
	"morph":            {},
	"pathogroup":       {},
	"serogroup":        {},
	"serotype":         {},
	"genotype":         {},
	"biotype":          {},
	"isolate":          {},
}

// IsIntermediateRank tells whether s is a known non-canonical NCBI rank.
func IsIntermediateRank(s string) bool {
	_, ok := intermediateRanks[strings.ToLower(strings.TrimSpace(s))]
	return ok
}
