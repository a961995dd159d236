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
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// ErrUnknownSchema means no built-in schema has the given name or version.
var ErrUnknownSchema = errors.New("alnlca: unknown alignment schema")

// ErrMissingColumn means a column required by the schema is absent from the header.
var ErrMissingColumn = errors.New("alnlca: missing required column")

// ErrInvalidSchema means a schema descriptor is incomplete or contradictory.
var ErrInvalidSchema = errors.New("alnlca: invalid alignment schema")

// Columns locates fields of an alignment record.
// A value is either a 0-based column index or a header name, empty for absent.
type Columns struct {
	Query    string `yaml:"query"`
	QueryLen string `yaml:"qlen"`
	Target   string `yaml:"target"`
	AlnLen   string `yaml:"alen"`    // alignment block length
	Matches  string `yaml:"matches"` // number of matching bases
	QStart   string `yaml:"qstart"`
	QEnd     string `yaml:"qend"`
	QCov     string `yaml:"qcov"`
	Identity string `yaml:"identity"`
}

// Schema describes one alignment format.
//
// Coverage comes from the first available of: AlnLen/QueryLen,
// (QEnd-QStart)/QueryLen, QCov/CoverageScale.
// Identity comes from the first available of: Identity/IdentityScale,
// 1 - divergence tag, Matches/AlnLen; otherwise it is 1.
type Schema struct {
	Name    string  `yaml:"name"`
	Version int     `yaml:"version"`
	Header  bool    `yaml:"header"`     // the first non-comment line names the columns
	Fields  int     `yaml:"min_fields"` // records with fewer fields are malformed
	Columns Columns `yaml:"columns"`

	OneBased      bool    `yaml:"one_based"` // inclusive 1-based coordinates
	IdentityScale float64 `yaml:"identity_scale"`
	CoverageScale float64 `yaml:"coverage_scale"`
	DivergenceTag string  `yaml:"divergence_tag"` // SAM-like tag prefix, e.g. "dv:f:"
}

// ID returns name/vVersion.
func (s *Schema) ID() string {
	return fmt.Sprintf("%s/v%d", s.Name, s.Version)
}

// IdentityBearing tells whether records carry an explicit identity column.
func (s *Schema) IdentityBearing() bool {
	return s.Columns.Identity != ""
}

// PAF is the Pairwise mApping Format written by minimap2.
var PAF = &Schema{
	Name:    "paf",
	Version: 1,
	Fields:  11,
	Columns: Columns{
		Query:    "0",
		QueryLen: "1",
		QStart:   "2",
		QEnd:     "3",
		Target:   "5",
		Matches:  "9",
		AlnLen:   "10",
	},
	DivergenceTag: "dv:f:",
}

// LexicMap is the tabular output of "lexicmap search".
var LexicMap = &Schema{
	Name:    "lexicmap",
	Version: 1,
	Header:  true,
	Columns: Columns{
		Query:    "query",
		QueryLen: "qlen",
		Target:   "sseqid",
		QStart:   "qstart",
		QEnd:     "qend",
		Identity: "pident",
	},
	OneBased:      true,
	IdentityScale: 100,
}

// BuiltinSchemas lists built-in schemas by name.
var BuiltinSchemas = map[string]*Schema{
	PAF.Name:      PAF,
	LexicMap.Name: LexicMap,
}

// GetSchema returns a built-in schema by "name" or "name/vN".
func GetSchema(id string) (*Schema, error) {
	name, version := strings.ToLower(id), 0
	if i := strings.IndexByte(name, '/'); i >= 0 {
		v, err := strconv.Atoi(strings.TrimPrefix(name[i+1:], "v"))
		if err != nil {
			return nil, errors.Wrap(ErrUnknownSchema, id)
		}
		name, version = name[:i], v
	}
	s, ok := BuiltinSchemas[name]
	if !ok || (version > 0 && version != s.Version) {
		return nil, errors.Wrap(ErrUnknownSchema, id)
	}
	return s, nil
}

// ParseSchema parses a YAML schema descriptor.
func ParseSchema(data []byte) (*Schema, error) {
	s := &Schema{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, errors.Wrap(err, "parsing schema")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadSchemaFile reads a YAML schema descriptor.
func LoadSchemaFile(file string) (*Schema, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrap(err, file)
	}
	s, err := ParseSchema(data)
	if err != nil {
		return nil, errors.Wrap(err, file)
	}
	return s, nil
}

// Validate checks that the schema can produce query, target and coverage.
func (s *Schema) Validate() error {
	if s.Name == "" {
		return errors.Wrap(ErrInvalidSchema, "name needed")
	}
	if s.Version <= 0 {
		s.Version = 1
	}
	c := &s.Columns
	if c.Query == "" || c.Target == "" {
		return errors.Wrapf(ErrInvalidSchema, "%s: query and target columns needed", s.ID())
	}
	if !(c.AlnLen != "" && c.QueryLen != "" ||
		c.QStart != "" && c.QEnd != "" && c.QueryLen != "" ||
		c.QCov != "") {
		return errors.Wrapf(ErrInvalidSchema, "%s: no way to compute query coverage", s.ID())
	}
	if !s.Header {
		for _, col := range c.list() {
			if col == "" {
				continue
			}
			if _, err := strconv.Atoi(col); err != nil {
				return errors.Wrapf(ErrInvalidSchema, "%s: column name %q needs a header", s.ID(), col)
			}
		}
	}
	return nil
}

func (c *Columns) list() []string {
	return []string{c.Query, c.QueryLen, c.Target, c.AlnLen, c.Matches, c.QStart, c.QEnd, c.QCov, c.Identity}
}

// ------------------------------------------------------------------------

// binding is a schema resolved to column indices, -1 for absent.
type binding struct {
	schema *Schema
	header string // raw header line, to skip repeated headers

	query, qlen, target, alen, matches, qstart, qend, qcov, ident int

	fields        int
	identScale    float64
	covScale      float64
	oneBased      bool
	divTag        string
	identityInCol bool
}

// bind resolves column names against a header line (empty for headerless schemas).
func (s *Schema) bind(headerLine string) (*binding, error) {
	var names map[string]int
	if s.Header {
		names = make(map[string]int, 32)
		for i, col := range strings.Split(headerLine, "\t") {
			col = strings.ToLower(strings.TrimSpace(col))
			if _, ok := names[col]; !ok {
				names[col] = i
			}
		}
	}

	b := &binding{
		schema:        s,
		header:        headerLine,
		identScale:    s.IdentityScale,
		covScale:      s.CoverageScale,
		oneBased:      s.OneBased,
		divTag:        s.DivergenceTag,
		identityInCol: s.IdentityBearing(),
	}
	if b.identScale <= 0 {
		b.identScale = 1
	}
	if b.covScale <= 0 {
		b.covScale = 1
	}

	maxIdx := -1
	resolve := func(col string, dst *int) error {
		*dst = -1
		if col == "" {
			return nil
		}
		if i, err := strconv.Atoi(col); err == nil {
			*dst = i
		} else if i, ok := names[strings.ToLower(col)]; ok {
			*dst = i
		} else {
			return errors.Wrapf(ErrMissingColumn, "%s: %s", s.ID(), col)
		}
		if *dst > maxIdx {
			maxIdx = *dst
		}
		return nil
	}

	c := &s.Columns
	for _, p := range []struct {
		col string
		dst *int
	}{
		{c.Query, &b.query},
		{c.QueryLen, &b.qlen},
		{c.Target, &b.target},
		{c.AlnLen, &b.alen},
		{c.Matches, &b.matches},
		{c.QStart, &b.qstart},
		{c.QEnd, &b.qend},
		{c.QCov, &b.qcov},
		{c.Identity, &b.ident},
	} {
		if err := resolve(p.col, p.dst); err != nil {
			return nil, err
		}
	}

	b.fields = s.Fields
	if maxIdx+1 > b.fields {
		b.fields = maxIdx + 1
	}
	return b, nil
}
