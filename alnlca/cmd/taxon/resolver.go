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

// Resolver maps reference tokens found in alignments to taxon ids,
// trying progressively looser forms of the token.
type Resolver struct {
	ids *IdentifierIndex
}

// NewResolver creates a Resolver on a built IdentifierIndex.
func NewResolver(ids *IdentifierIndex) *Resolver {
	return &Resolver{ids: ids}
}

// Resolve returns the taxon id of the first candidate present in the index.
func (r *Resolver) Resolve(token string) (uint32, bool) {
	if taxid, ok := r.ids.Get(token); ok { // fast path
		return taxid, true
	}
	for _, c := range Candidates(token) {
		if taxid, ok := r.ids.Get(c); ok {
			return taxid, true
		}
	}
	return 0, false
}

// Candidates lists the lookup keys of a token in order, without duplicates:
// the token, its versionless form, the first whitespace/pipe-delimited
// sub-token and its versionless form, then embedded accessions
// (each followed by its versionless form).
func Candidates(token string) []string {
	cands := make([]string, 0, 8)
	add := func(s string) {
		if s == "" {
			return
		}
		for _, c := range cands {
			if c == s {
				return
			}
		}
		cands = append(cands, s)
	}

	add(token)
	add(Versionless(token))

	if i := strings.IndexFunc(token, isSubTokenSep); i >= 0 {
		first := token[:i]
		add(first)
		add(Versionless(first))
	}

	for _, acc := range reAccession.FindAllString(token, -1) {
		add(acc)
		add(Versionless(acc))
	}
	return cands
}

func isSubTokenSep(r rune) bool {
	switch r {
	case ' ', '\t', '|':
		return true
	}
	return false
}
