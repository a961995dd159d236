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
	"regexp"
	"strings"
)

// IdentifierIndex maps reference tokens to taxon ids.
// The first mapping of a token is kept, later ones are ignored.
type IdentifierIndex struct {
	m      map[string]uint32
	tokens []string // insertion order

	Conflicts int // tokens seen again with a different taxon id
}

// NewIdentifierIndex creates an empty index.
func NewIdentifierIndex(size int) *IdentifierIndex {
	return &IdentifierIndex{
		m:      make(map[string]uint32, size),
		tokens: make([]string, 0, size),
	}
}

// Add inserts token if absent. It returns false if the token was already there.
func (idx *IdentifierIndex) Add(token string, taxid uint32) bool {
	if token == "" {
		return false
	}
	if v, ok := idx.m[token]; ok {
		if v != taxid {
			idx.Conflicts++
		}
		return false
	}
	idx.m[token] = taxid
	idx.tokens = append(idx.tokens, token)
	return true
}

// AddWithAliases inserts the token, its versionless form,
// and every accession embedded in it (also versionless).
// It returns the number of new tokens.
func (idx *IdentifierIndex) AddWithAliases(token string, taxid uint32) int {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0
	}
	var n int
	if idx.Add(token, taxid) {
		n++
	}
	if v := Versionless(token); v != token && idx.Add(v, taxid) {
		n++
	}
	for _, acc := range reAccession.FindAllString(token, -1) {
		if acc == token {
			continue
		}
		if idx.Add(acc, taxid) {
			n++
		}
		if v := Versionless(acc); v != acc && idx.Add(v, taxid) {
			n++
		}
	}
	return n
}

// Get returns the taxon id of a token.
func (idx *IdentifierIndex) Get(token string) (uint32, bool) {
	taxid, ok := idx.m[token]
	return taxid, ok
}

// Len returns the number of tokens.
func (idx *IdentifierIndex) Len() int { return len(idx.tokens) }

// Tokens returns all tokens in insertion order.
func (idx *IdentifierIndex) Tokens() []string { return idx.tokens }

// TaxIDs returns the distinct taxon ids in order of first appearance.
func (idx *IdentifierIndex) TaxIDs() []uint32 {
	seen := make(map[uint32]struct{}, 1024)
	taxids := make([]uint32, 0, 1024)
	var taxid uint32
	var ok bool
	for _, token := range idx.tokens {
		taxid = idx.m[token]
		if _, ok = seen[taxid]; ok {
			continue
		}
		seen[taxid] = struct{}{}
		taxids = append(taxids, taxid)
	}
	return taxids
}

// Versionless strips the version suffix after the last dot, e.g. NC_014743.1 -> NC_014743.
func Versionless(token string) string {
	i := strings.LastIndexByte(token, '.')
	if i <= 0 {
		return token
	}
	return token[:i]
}

// accession shapes of RefSeq/GenBank assemblies and sequences.
var reAccession = regexp.MustCompile(`GC[AF]_\d+(?:\.\d+)?|N[CZTGW]_[A-Z]{0,6}\d+(?:\.\d+)?|C[PM]\d+(?:\.\d+)?|[A-Z]{2}_\d+(?:\.\d+)?`)

// separators inside identifier cells.
var reIdentifierSep = regexp.MustCompile(`[;|,\s]+`)

// SplitIdentifiers splits an identifier cell into tokens.
func SplitIdentifiers(s string) []string {
	parts := reIdentifierSep.Split(s, -1)
	tokens := parts[:0]
	for _, p := range parts {
		if p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}
