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
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shenwei356/breader"
	"github.com/shenwei356/xopen"
)

// ExactRule decides whether a hit is an exact match.
type ExactRule struct {
	QCov      float64 // same-name hits: minimum coverage
	Ident     float64 // identity-bearing formats: minimum identity
	IdentQCov float64 // identity-bearing formats: minimum coverage
}

// DefaultExactRule is the default exact-match rule.
var DefaultExactRule = ExactRule{QCov: 0.99, Ident: 0.99, IdentQCov: 0.9}

// Options for a Loader.
type Options struct {
	Schema *Schema

	MinQCov  float64
	MinIdent float64
	Exact    ExactRule

	Threads   int // for parsing files
	ChunkSize int // lines per chunk
}

// Loader collects hits of one or more alignment files.
type Loader struct {
	opt Options
	b   *binding

	ev    *Evidence
	index map[string]int // query id -> position in ev.Queries
}

// NewLoader creates a Loader.
func NewLoader(opt Options) (*Loader, error) {
	if opt.Schema == nil {
		opt.Schema = PAF
	}
	if err := opt.Schema.Validate(); err != nil {
		return nil, err
	}
	if opt.Exact == (ExactRule{}) {
		opt.Exact = DefaultExactRule
	}
	if opt.Threads <= 0 {
		opt.Threads = 1
	}
	if opt.ChunkSize <= 0 {
		opt.ChunkSize = 5000
	}

	l := &Loader{
		opt: opt,
		ev: &Evidence{
			Queries:   make([]*Query, 0, 1024),
			Abundance: NewAbundance(),
		},
		index: make(map[string]int, 1024),
	}
	if !opt.Schema.Header {
		b, err := opt.Schema.bind("")
		if err != nil {
			return nil, err
		}
		l.b = b
	}
	return l, nil
}

// Evidence returns what has been loaded so far.
func (l *Loader) Evidence() *Evidence { return l.ev }

// status of a parsed line.
type status uint8

const (
	skipped status = iota
	accepted
	malformed
	filtered
)

type parsed struct {
	status status
	query  string
	hit    Hit
}

func isSkippable(line string) bool {
	return line == "" || line[0] == '#'
}

// parse parses one line. Headers must have been bound already.
func (l *Loader) parse(line string) parsed {
	line = strings.TrimRight(line, "\r\n")
	if isSkippable(line) || (l.b.schema.Header && line == l.b.header) {
		return parsed{status: skipped}
	}
	b := l.b

	items := strings.Split(line, "\t")
	if len(items) < b.fields {
		return parsed{status: malformed}
	}

	p := parsed{status: accepted, query: items[b.query]}
	h := &p.hit
	h.Target = items[b.target]
	if p.query == "" || h.Target == "" {
		return parsed{status: malformed}
	}

	var err error
	var qlen, alen, start, end, matches float64
	if b.qlen >= 0 {
		if qlen, err = parseFloat(items[b.qlen], 64); err != nil {
			return parsed{status: malformed}
		}
	}
	if b.alen >= 0 {
		if alen, err = parseFloat(items[b.alen], 64); err != nil {
			return parsed{status: malformed}
		}
	}

	// coverage
	switch {
	case b.alen >= 0 && b.qlen >= 0:
		if qlen > 0 {
			h.QCov = alen / qlen
		}
	case b.qstart >= 0 && b.qend >= 0 && b.qlen >= 0:
		if start, err = parseFloat(items[b.qstart], 64); err != nil {
			return parsed{status: malformed}
		}
		if end, err = parseFloat(items[b.qend], 64); err != nil {
			return parsed{status: malformed}
		}
		span := end - start
		if span < 0 {
			span = -span
		}
		if b.oneBased {
			span++
		}
		if qlen > 0 {
			h.QCov = span / qlen
		}
	case b.qcov >= 0:
		if h.QCov, err = parseFloat(items[b.qcov], 64); err != nil {
			return parsed{status: malformed}
		}
		h.QCov /= b.covScale
	}
	h.QCov = clamp01(h.QCov)

	// identity
	h.Ident = 1
	switch {
	case b.ident >= 0:
		if h.Ident, err = parseFloat(items[b.ident], 64); err != nil {
			return parsed{status: malformed}
		}
		h.Ident /= b.identScale
	case b.divTag != "" && hasTag(items[b.fields:], b.divTag):
		dv, err := parseFloat(tagValue(items[b.fields:], b.divTag), 64)
		if err != nil {
			return parsed{status: malformed}
		}
		h.Ident = 1 - dv
	case b.matches >= 0 && b.alen >= 0:
		if matches, err = parseFloat(items[b.matches], 64); err != nil {
			return parsed{status: malformed}
		}
		if alen > 0 {
			h.Ident = matches / alen
		}
	}
	h.Ident = clamp01(h.Ident)

	if b.identityInCol {
		h.Exact = h.Ident >= l.opt.Exact.Ident && h.QCov >= l.opt.Exact.IdentQCov
	} else {
		h.Exact = p.query == h.Target && h.QCov >= l.opt.Exact.QCov
	}

	if h.QCov < l.opt.MinQCov || h.Ident < l.opt.MinIdent {
		p.status = filtered
	}
	return p
}

// parseFloat parses a number. NaN and infinities are rejected.
func parseFloat(s string, bitSize int) (float64, error) {
	v, err := strconv.ParseFloat(s, bitSize)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.Errorf("non-finite number: %s", s)
	}
	return v, nil
}

func hasTag(items []string, prefix string) bool {
	for _, item := range items {
		if strings.HasPrefix(item, prefix) {
			return true
		}
	}
	return false
}

func tagValue(items []string, prefix string) string {
	for _, item := range items {
		if strings.HasPrefix(item, prefix) {
			return item[len(prefix):]
		}
	}
	return ""
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// collect adds a parsed line. Only called from one goroutine.
func (l *Loader) collect(p parsed) {
	s := &l.ev.Stats
	switch p.status {
	case skipped:
		return
	case malformed:
		s.Lines++
		s.Malformed++
		return
	case filtered:
		s.Lines++
		s.Filtered++
		return
	}
	s.Lines++
	s.Records++

	i, ok := l.index[p.query]
	if !ok {
		i = len(l.ev.Queries)
		l.index[p.query] = i
		l.ev.Queries = append(l.ev.Queries, &Query{ID: p.query, Hits: make([]Hit, 0, 4)})
	}
	q := l.ev.Queries[i]
	q.Hits = append(q.Hits, p.hit)
	l.ev.Abundance.Add(p.hit.Target)
}

// bindHeader binds a header-bearing schema on the first data line.
func (l *Loader) bindHeader(line string) error {
	b, err := l.opt.Schema.bind(strings.TrimRight(line, "\r\n"))
	if err != nil {
		return err
	}
	l.b = b
	return nil
}

// Load reads alignment records from r sequentially.
func (l *Loader) Load(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<30)

	needHeader := l.opt.Schema.Header
	var line string
	for scanner.Scan() {
		line = scanner.Text()
		if needHeader {
			if isSkippable(line) {
				continue
			}
			if err := l.bindHeader(line); err != nil {
				return err
			}
			needHeader = false
			continue
		}
		l.collect(l.parse(line))
	}
	return scanner.Err()
}

// peekHeader returns the first line that is neither blank nor a comment.
func peekHeader(file string) (string, error) {
	fh, err := xopen.Ropen(file)
	if err != nil {
		return "", err
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<30)
	var line string
	for scanner.Scan() {
		line = strings.TrimRight(scanner.Text(), "\r\n")
		if !isSkippable(line) {
			return line, nil
		}
	}
	if err = scanner.Err(); err != nil {
		return "", err
	}
	return "", nil
}

// LoadFile reads a (compressed) alignment file, parsing chunks of lines in parallel.
// Records are collected in file order. Stdin ("-") is read sequentially.
func (l *Loader) LoadFile(file string) error {
	if file == "-" {
		fh, err := xopen.Ropen(file)
		if err != nil {
			return errors.Wrap(err, "stdin")
		}
		defer fh.Close()
		return l.Load(fh)
	}

	if l.opt.Schema.Header {
		line, err := peekHeader(file)
		if err != nil {
			return errors.Wrap(err, file)
		}
		if line == "" { // empty file
			return nil
		}
		if err = l.bindHeader(line); err != nil {
			return errors.Wrap(err, file)
		}
	}

	fn := func(line string) (interface{}, bool, error) {
		p := l.parse(line)
		if p.status == skipped {
			return nil, false, nil
		}
		return p, true, nil
	}

	reader, err := breader.NewBufferedReader(file, l.opt.Threads, l.opt.ChunkSize, fn)
	if err != nil {
		return errors.Wrap(err, file)
	}
	var data interface{}
	for chunk := range reader.Ch {
		if chunk.Err != nil {
			return errors.Wrap(chunk.Err, file)
		}
		for _, data = range chunk.Data {
			l.collect(data.(parsed))
		}
	}
	return nil
}

// LoadFiles loads files in order and returns the merged evidence.
func (l *Loader) LoadFiles(files []string) (*Evidence, error) {
	for _, file := range files {
		if err := l.LoadFile(file); err != nil {
			return nil, err
		}
	}
	return l.ev, nil
}
