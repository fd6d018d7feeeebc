// Package rewrite replaces references to old asset URLs in raw document text.
//
// Matching is literal and case-sensitive. Old URLs are escaped before they
// are compiled into a single alternation, and the text is scanned once, so a
// replacement is never re-matched by a later pair.
package rewrite

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/hpungsan/wpswap/internal/errors"
)

// Pair maps one old URL to its replacement.
type Pair struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// Mapping is an ordered list of pairs. Earlier pairs take precedence when
// two old URLs could match at the same position.
type Mapping []Pair

// Document is a caller-owned copy of a piece of content.
type Document struct {
	ID      string `json:"id"`
	Kind    string `json:"kind,omitempty"`
	Title   string `json:"title,omitempty"`
	RawText string `json:"raw_text"`
}

// Result is the rewritten text of one document.
type Result struct {
	DocumentID string         `json:"document_id"`
	Kind       string         `json:"kind,omitempty"`
	Title      string         `json:"title,omitempty"`
	Text       string         `json:"text"`
	Count      int            `json:"replacement_count"`
	PerURL     map[string]int `json:"per_url,omitempty"`
}

// Changed reports whether any replacement was made. Callers skip persisting
// unchanged documents.
func (r Result) Changed() bool {
	return r.Count > 0
}

// Rewriter applies a validated mapping. It is safe for concurrent use.
type Rewriter struct {
	pairs   Mapping
	index   map[string]int
	pattern *regexp.Regexp
}

// Compile validates m and builds a Rewriter.
// It fails with INVALID_MAPPING if any entry has an empty old or new URL,
// maps a URL to itself, or maps the same old URL to two different targets.
// Exact duplicate pairs are collapsed.
func Compile(m Mapping) (*Rewriter, error) {
	rw := &Rewriter{
		pairs: make(Mapping, 0, len(m)),
		index: make(map[string]int, len(m)),
	}

	for i, p := range m {
		switch {
		case p.Old == "":
			return nil, errors.NewInvalidMapping(i, p.Old, p.New, "old URL is empty")
		case p.New == "":
			return nil, errors.NewInvalidMapping(i, p.Old, p.New, "new URL is empty")
		case p.Old == p.New:
			return nil, errors.NewInvalidMapping(i, p.Old, p.New, "old and new URL are identical")
		}
		if j, ok := rw.index[p.Old]; ok {
			if rw.pairs[j].New != p.New {
				return nil, errors.NewInvalidMapping(i, p.Old, p.New, "old URL is already mapped to "+rw.pairs[j].New)
			}
			continue
		}
		rw.index[p.Old] = len(rw.pairs)
		rw.pairs = append(rw.pairs, p)
	}

	if len(rw.pairs) == 0 {
		return rw, nil
	}

	quoted := make([]string, len(rw.pairs))
	for i, p := range rw.pairs {
		quoted[i] = regexp.QuoteMeta(p.Old)
	}
	pattern, err := regexp.Compile(strings.Join(quoted, "|"))
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	rw.pattern = pattern

	return rw, nil
}

// Pairs returns the effective mapping after duplicate collapsing.
func (rw *Rewriter) Pairs() Mapping {
	return append(Mapping(nil), rw.pairs...)
}

// Contains reports whether text references any old URL.
func (rw *Rewriter) Contains(text string) bool {
	return rw.pattern != nil && rw.pattern.MatchString(text)
}

// Apply rewrites one document. doc is not modified.
func (rw *Rewriter) Apply(doc Document) Result {
	res := Result{
		DocumentID: doc.ID,
		Kind:       doc.Kind,
		Title:      doc.Title,
		Text:       doc.RawText,
	}
	if rw.pattern == nil {
		return res
	}

	perURL := make(map[string]int)
	res.Text = rw.pattern.ReplaceAllStringFunc(doc.RawText, func(found string) string {
		perURL[found]++
		res.Count++
		return rw.pairs[rw.index[found]].New
	})
	if res.Count > 0 {
		res.PerURL = perURL
	}
	return res
}

// Inverse returns a Rewriter mapping every new URL back to its old URL.
// It fails with INVALID_MAPPING when several old URLs share one new URL.
func (rw *Rewriter) Inverse() (*Rewriter, error) {
	inv := make(Mapping, len(rw.pairs))
	for i, p := range rw.pairs {
		inv[i] = Pair{Old: p.New, New: p.Old}
	}
	return Compile(inv)
}

// Rewrite validates mapping, then rewrites every document in order.
// On an invalid mapping no document is processed.
func Rewrite(mapping Mapping, docs []Document) ([]Result, error) {
	rw, err := Compile(mapping)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(docs))
	for i, doc := range docs {
		results[i] = rw.Apply(doc)
	}
	return results, nil
}

// RewriteParallel is Rewrite spread over workers goroutines. Results keep
// input order. Cancellation is checked before each document is started.
func RewriteParallel(ctx context.Context, mapping Mapping, docs []Document, workers int) ([]Result, error) {
	rw, err := Compile(mapping)
	if err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(docs) {
		workers = len(docs)
	}

	results := make([]Result, len(docs))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = rw.Apply(docs[i])
			}
		}()
	}

	var canceled bool
feed:
	for i := range docs {
		if ctx.Err() != nil {
			canceled = true
			break
		}
		select {
		case <-ctx.Done():
			canceled = true
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if canceled {
		return nil, errors.NewCanceled("next document")
	}
	return results, nil
}
