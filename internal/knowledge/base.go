// Package knowledge loads a markdown FAQ corpus and answers keyword
// relevance queries against it.
package knowledge

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"unicode"
)

// Relevance weights. A query word found in an entry title counts for more
// than one found only in the body.
const (
	titleWeight   = 0.7
	contentWeight = 0.3
)

// DefaultMaxResults bounds Search output when the caller passes <= 0.
const DefaultMaxResults = 3

// Base is an immutable in-memory knowledge corpus. Load it once at process
// start; Search is safe for concurrent use.
type Base struct {
	entries []Entry
	logger  *slog.Logger
}

// Load reads a markdown FAQ file and parses it into a Base. A missing file
// yields an empty Base, not an error: searches against it return no matches
// and the gap handling downstream takes over.
func Load(path string, log *slog.Logger) (*Base, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("service", "knowledge"))

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("knowledge base file missing, starting empty", slog.String("path", path))
			return &Base{logger: log}, nil
		}
		return nil, fmt.Errorf("read knowledge base %s: %w", path, err)
	}

	b := Parse(string(raw))
	b.logger = log
	log.Info("knowledge base loaded",
		slog.String("path", path),
		slog.Int("entries", len(b.entries)))
	return b, nil
}

// Parse builds a Base from markdown text. Every heading line starts a new
// entry titled by the heading; the following non-heading lines form its
// content. Entries with no content are dropped.
func Parse(content string) *Base {
	var (
		entries      []Entry
		currentTitle string
		currentBody  []string
	)

	flush := func() {
		if currentTitle == "" || len(currentBody) == 0 {
			return
		}
		entries = append(entries, Entry{
			ID:      len(entries) + 1,
			Title:   currentTitle,
			Content: strings.Join(currentBody, " "),
		})
	}

	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "#") {
			flush()
			currentTitle = strings.TrimSpace(strings.TrimLeft(line, "#"))
			currentBody = nil
			continue
		}
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			currentBody = append(currentBody, trimmed)
		}
	}
	flush()

	return &Base{entries: entries, logger: slog.Default()}
}

// Len reports the number of loaded entries.
func (b *Base) Len() int { return len(b.entries) }

// Search scores every entry against the query and returns up to maxResults
// matches in descending relevance, ties kept in corpus order. An empty
// result is a normal outcome, never an error.
func (b *Base) Search(query string, maxResults int) []Match {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	var matches []Match
	for _, entry := range b.entries {
		titleTokens := tokenize(entry.Title)
		contentTokens := tokenize(entry.Content)

		var titleHits, contentHits int
		for token := range queryTokens {
			if _, ok := titleTokens[token]; ok {
				titleHits++
			}
			if _, ok := contentTokens[token]; ok {
				contentHits++
			}
		}

		score := (float64(titleHits)*titleWeight + float64(contentHits)*contentWeight) /
			float64(len(queryTokens))
		if score <= 0 {
			continue
		}
		if score > 1 {
			score = 1
		}
		matches = append(matches, Match{Entry: entry, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches
}

// stopwords are excluded from relevance scoring; without this, function
// words shared by nearly every sentence would make every query "match".
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "any": {}, "about": {}, "are": {},
	"as": {}, "at": {}, "be": {}, "by": {}, "can": {}, "do": {},
	"does": {}, "for": {}, "from": {}, "get": {}, "how": {}, "i": {},
	"if": {}, "in": {}, "is": {}, "it": {}, "my": {}, "of": {},
	"on": {}, "or": {}, "our": {}, "the": {}, "this": {}, "to": {},
	"we": {}, "what": {}, "when": {}, "where": {}, "why": {}, "will": {},
	"with": {}, "you": {}, "your": {},
}

func tokenize(text string) map[string]struct{} {
	tokens := map[string]struct{}{}
	for _, field := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if _, skip := stopwords[field]; skip {
			continue
		}
		tokens[field] = struct{}{}
	}
	return tokens
}
