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

// Tables bundles the identifier index and the hierarchy.
// Build it once, call Freeze, then share it by pointer among workers.
type Tables struct {
	IDs       *IdentifierIndex
	Hierarchy *HierarchyIndex
	Resolver  *Resolver
}

// NewTables creates Tables.
func NewTables(ids *IdentifierIndex, h *HierarchyIndex) *Tables {
	return &Tables{
		IDs:       ids,
		Hierarchy: h,
		Resolver:  NewResolver(ids),
	}
}

// Freeze computes the lineages of all taxa reachable from the identifier index.
// It returns the number of those taxa absent from the hierarchy.
func (t *Tables) Freeze() (int, error) {
	return t.Hierarchy.Freeze(t.IDs.TaxIDs())
}

// Lookup resolves a reference token to its taxon id and lineage.
func (t *Tables) Lookup(token string) (uint32, *Lineage, bool) {
	taxid, ok := t.Resolver.Resolve(token)
	if !ok {
		return 0, nil, false
	}
	l, ok := t.Hierarchy.Lineage(taxid)
	return taxid, l, ok
}
