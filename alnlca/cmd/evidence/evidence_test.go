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
	"compress/gzip"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pafData = `# minimap2 output
q1	1000	0	900	+	NC_000913.3	4641652	10	910	880	900	60	tp:A:P
q1	1000	0	300	+	NZ_CP1.1	5000	10	310	270	300	60	dv:f:0.0500
q2	500	0	500	+	q2	500	0	500	500	500	60

q3	100	0	90	+
q2	500	0	100	+	NC_000913.3	4641652	0	100	100	abc	60
q3	0	0	90	+	NC_000913.3	4641652	0	90	90	90	60
`

func TestLoadPAF(t *testing.T) {
	l, err := NewLoader(Options{Schema: PAF})
	require.NoError(t, err)
	require.NoError(t, l.Load(strings.NewReader(pafData)))
	ev := l.Evidence()

	assert.Equal(t, Stats{Lines: 6, Records: 4, Malformed: 2}, ev.Stats)
	require.Len(t, ev.Queries, 3)
	assert.Equal(t, "q1", ev.Queries[0].ID)
	assert.Equal(t, "q2", ev.Queries[1].ID)
	assert.Equal(t, "q3", ev.Queries[2].ID)

	q1 := ev.Queries[0]
	require.Len(t, q1.Hits, 2)
	assert.InDelta(t, 0.9, q1.Hits[0].QCov, 1e-9)
	assert.InDelta(t, 880.0/900, q1.Hits[0].Ident, 1e-9)
	assert.False(t, q1.Hits[0].Exact)
	assert.InDelta(t, 0.3, q1.Hits[1].QCov, 1e-9)
	assert.InDelta(t, 0.95, q1.Hits[1].Ident, 1e-9)

	q2 := ev.Queries[1]
	require.Len(t, q2.Hits, 1)
	assert.True(t, q2.Hits[0].Exact)
	assert.Equal(t, 1.0, q2.Hits[0].QCov)

	// zero query length
	assert.Equal(t, 0.0, ev.Queries[2].Hits[0].QCov)

	assert.Equal(t, uint32(2), ev.Abundance.Count("NC_000913.3"))
	assert.Equal(t, 2.0, ev.Abundance.Weight("NC_000913.3"))
	assert.Equal(t, 1.0, ev.Abundance.Weight("never.seen"))
	assert.Equal(t, 3, ev.Abundance.Len())
}

const lexicmapData = `query	qlen	hits	sgenome	sseqid	qcovGnm	cls	hsp	qcovHSP	alenHSP	pident	gaps	qstart	qend	sstart	send	sstr	slen	evalue	bitscore
r1	200	2	GCF_1	NC_1.1	100.000	1	1	100.000	200	99.500	0	1	200	10	209	+	5000	1e-50	300
r1	200	2	GCF_2	NC_2.1	50.000	2	1	50.000	100	90.000	0	1	100	10	109	+	5000	1e-20	100
r2	1000	1	GCF_3	NC_3.1	30.000	1	1	30.000	300	95.000	0	101	400	1	300	+	5000	1e-20	100
`

func TestLoadLexicMap(t *testing.T) {
	l, err := NewLoader(Options{Schema: LexicMap})
	require.NoError(t, err)
	require.NoError(t, l.Load(strings.NewReader(lexicmapData)))
	ev := l.Evidence()

	assert.Equal(t, 3, ev.Stats.Records)
	require.Len(t, ev.Queries, 2)

	r1 := ev.Queries[0]
	assert.Equal(t, "NC_1.1", r1.Hits[0].Target)
	assert.Equal(t, 1.0, r1.Hits[0].QCov)
	assert.InDelta(t, 0.995, r1.Hits[0].Ident, 1e-9)
	assert.True(t, r1.Hits[0].Exact)
	assert.InDelta(t, 0.5, r1.Hits[1].QCov, 1e-9)
	assert.False(t, r1.Hits[1].Exact)

	assert.InDelta(t, 0.3, ev.Queries[1].Hits[0].QCov, 1e-9)
}

func TestLoadMissingColumn(t *testing.T) {
	l, err := NewLoader(Options{Schema: LexicMap})
	require.NoError(t, err)
	err = l.Load(strings.NewReader("query\tqlen\tsseqid\tqstart\tqend\nr1\t10\tx\t1\t10\n"))
	assert.True(t, errors.Is(err, ErrMissingColumn))
}

func TestFilters(t *testing.T) {
	l, err := NewLoader(Options{Schema: PAF, MinQCov: 0.5, MinIdent: 0.96})
	require.NoError(t, err)
	require.NoError(t, l.Load(strings.NewReader(pafData)))
	ev := l.Evidence()

	// q1 hit 1: identity 0.978; q1 hit 2: coverage 0.3; q3: coverage 0
	assert.Equal(t, 2, ev.Stats.Filtered)
	assert.Equal(t, 2, ev.Stats.Records)
	require.Len(t, ev.Queries, 2)
	assert.Equal(t, "q1", ev.Queries[0].ID)
	assert.Equal(t, 2, ev.Abundance.Len())
}

func TestLoadNonFinite(t *testing.T) {
	data := "q1\t100\t0\t90\t+\tA\t1000\t0\t90\t90\tnan\t60\n" +
		"q1\t100\t0\t90\t+\tB\t1000\t0\t90\t90\t90\t60\n" +
		"q2\tinf\t0\t90\t+\tA\t1000\t0\t90\t90\t90\t60\n" +
		"q3\t100\t0\t90\t+\tC\t1000\t0\t90\t90\t90\t60\tdv:f:NaN\n" +
		"q4\t100\t0\t90\t+\tD\t1000\t0\t90\t-Inf\t90\t60\n"
	l, err := NewLoader(Options{Schema: PAF})
	require.NoError(t, err)
	require.NoError(t, l.Load(strings.NewReader(data)))
	ev := l.Evidence()

	assert.Equal(t, Stats{Lines: 5, Records: 1, Malformed: 4}, ev.Stats)
	require.Len(t, ev.Queries, 1)
	q1 := ev.Queries[0]
	require.Len(t, q1.Hits, 1)
	assert.Equal(t, "B", q1.Hits[0].Target)
	assert.InDelta(t, 0.9, q1.Hits[0].QCov, 1e-9)
	assert.Equal(t, 1.0, q1.Hits[0].Ident)
	assert.Equal(t, 1, ev.Abundance.Len())

	assert.Equal(t, 0.0, clamp01(math.NaN()))
	assert.Equal(t, 1.0, clamp01(math.Inf(1)))
	assert.Equal(t, 0.0, clamp01(-0.5))
}

func TestGetSchema(t *testing.T) {
	for _, id := range []string{"paf", "PAF", "paf/v1", "lexicmap/1"} {
		_, err := GetSchema(id)
		assert.NoError(t, err, id)
	}
	for _, id := range []string{"sam", "paf/v2", "paf/x"} {
		_, err := GetSchema(id)
		assert.True(t, errors.Is(err, ErrUnknownSchema), id)
	}
}

func TestParseSchema(t *testing.T) {
	blast := `
name: blast6
version: 2
min_fields: 13
columns:
  query: "0"
  target: "1"
  identity: "2"
  qstart: "6"
  qend: "7"
  qlen: "12"
one_based: true
identity_scale: 100
`
	s, err := ParseSchema([]byte(blast))
	require.NoError(t, err)
	assert.Equal(t, "blast6/v2", s.ID())
	assert.True(t, s.IdentityBearing())

	l, err := NewLoader(Options{Schema: s})
	require.NoError(t, err)
	line := "c1\tNC_9.1\t99.5\t100\t0\t0\t1\t95\t1\t95\t1e-40\t180\t100\n"
	require.NoError(t, l.Load(strings.NewReader(line)))
	h := l.Evidence().Queries[0].Hits[0]
	assert.InDelta(t, 0.95, h.QCov, 1e-9)
	assert.True(t, h.Exact)

	_, err = ParseSchema([]byte("name: x\ncolumns:\n  query: \"0\"\n  target: \"1\"\n"))
	assert.True(t, errors.Is(err, ErrInvalidSchema))

	_, err = ParseSchema([]byte("name: x\ncolumns:\n  query: qseqid\n  target: \"1\"\n  qcov: \"2\"\n"))
	assert.True(t, errors.Is(err, ErrInvalidSchema))
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()

	file1 := filepath.Join(dir, "a.paf")
	require.NoError(t, os.WriteFile(file1, []byte(pafData), 0644))

	file2 := filepath.Join(dir, "b.paf.gz")
	fh, err := os.Create(file2)
	require.NoError(t, err)
	gw := gzip.NewWriter(fh)
	_, err = gw.Write([]byte("q4\t100\t0\t100\t+\tNZ_CP1.1\t5000\t0\t100\t100\t100\t60\n"))
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	require.NoError(t, fh.Close())

	l, err := NewLoader(Options{Schema: PAF, Threads: 4, ChunkSize: 2})
	require.NoError(t, err)
	ev, err := l.LoadFiles([]string{file1, file2})
	require.NoError(t, err)

	require.Len(t, ev.Queries, 4)
	for i, id := range []string{"q1", "q2", "q3", "q4"} {
		assert.Equal(t, id, ev.Queries[i].ID)
	}
	assert.Equal(t, 2, ev.Stats.Malformed)
	assert.Equal(t, uint32(2), ev.Abundance.Count("NZ_CP1.1"))

	lm := filepath.Join(dir, "lexicmap.tsv")
	require.NoError(t, os.WriteFile(lm, []byte(lexicmapData), 0644))
	l, err = NewLoader(Options{Schema: LexicMap, Threads: 2})
	require.NoError(t, err)
	ev, err = l.LoadFiles([]string{lm, lm})
	require.NoError(t, err)
	require.Len(t, ev.Queries, 2)
	assert.Len(t, ev.Queries[0].Hits, 4)
	assert.Equal(t, 6, ev.Stats.Records)
}
