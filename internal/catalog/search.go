// Topic-content search.
//
// A small, deterministic, in-memory index over the info options' content,
// built once when the catalog is parsed and read-only afterwards (safe for
// concurrent use). Scoring is Jaccard similarity between the query token set
// and each document's token set: score = |Q ∩ D| / |Q ∪ D|. Ties break by
// shorter document, then slug, so result order is stable.
package catalog

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// SearchResult is a ranked info option with its similarity score.
type SearchResult struct {
	Slug    string  `json:"slug"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

type searchDoc struct {
	slug    string
	title   string
	text    string
	snippet string
	tokens  map[string]struct{}
}

var searchStopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {},
	"in": {}, "is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "by": {},
	"from": {}, "at": {}, "as": {}, "that": {}, "this": {}, "it": {},
	"you": {}, "your": {}, "we": {}, "our": {}, "can": {}, "how": {},
	"do": {}, "does": {}, "what": {},
}

var searchWordRE = regexp.MustCompile(`\p{L}+\p{N}*`)

// buildSearchDocs flattens each info option's content into one document:
// title, body, bullet points and additional info joined as plain text.
func (c *Catalog) buildSearchDocs() {
	docs := make([]searchDoc, 0, len(c.bySlug))
	for _, cat := range c.categories {
		for _, opt := range cat.Options {
			info, ok := opt.(InfoOption)
			if !ok {
				continue
			}
			parts := []string{info.Content.Title, info.Content.Body}
			parts = append(parts, info.Content.BulletPoints...)
			if info.Content.AdditionalInfo != "" {
				parts = append(parts, info.Content.AdditionalInfo)
			}
			text := strings.TrimSpace(strings.Join(parts, "\n"))
			toks := searchTokenize(text)
			if len(toks) == 0 {
				continue
			}
			snippet := info.Content.Body
			if snippet == "" {
				snippet = info.Content.Title
			}
			docs = append(docs, searchDoc{
				slug:    info.M.Slug,
				title:   info.M.Title,
				text:    text,
				snippet: snippet,
				tokens:  toks,
			})
		}
	}
	c.searchDocs = docs
}

// Search returns up to k info options ranked by similarity to q. A blank
// query, an unmatched query, or a catalog without info content yields nil.
func (c *Catalog) Search(q string, k int) []SearchResult {
	if len(c.searchDocs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	if k <= 0 {
		k = 3
	}
	qTokens := searchTokenize(q)
	if len(qTokens) == 0 {
		return nil
	}

	type scored struct {
		doc   searchDoc
		score float64
		runes int
	}
	buf := make([]scored, 0, len(c.searchDocs))
	for _, d := range c.searchDocs {
		inter := 0
		for t := range qTokens {
			if _, ok := d.tokens[t]; ok {
				inter++
			}
		}
		if inter == 0 {
			continue
		}
		union := len(qTokens) + len(d.tokens) - inter
		buf = append(buf, scored{
			doc:   d,
			score: float64(inter) / float64(union),
			runes: utf8.RuneCountInString(d.text),
		})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(i, j int) bool {
		if buf[i].score != buf[j].score {
			return buf[i].score > buf[j].score
		}
		if buf[i].runes != buf[j].runes {
			return buf[i].runes < buf[j].runes
		}
		return buf[i].doc.slug < buf[j].doc.slug
	})

	if k > len(buf) {
		k = len(buf)
	}
	out := make([]SearchResult, k)
	for i := 0; i < k; i++ {
		out[i] = SearchResult{
			Slug:    buf[i].doc.slug,
			Title:   buf[i].doc.title,
			Snippet: buf[i].doc.snippet,
			Score:   buf[i].score,
		}
	}
	return out
}

func searchTokenize(s string) map[string]struct{} {
	words := searchWordRE.FindAllString(strings.ToLower(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, skip := searchStopwords[w]; skip {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}
