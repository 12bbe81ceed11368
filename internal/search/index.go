// Package search ranks unit names against a query. It backs the "did you
// mean" suggestions attached to NotFound failures.
package search

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/morozRed/unitsmith/internal/parser"
)

var (
	tokenPattern  = regexp.MustCompile(`[a-z0-9]+`)
	camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)
)

type Document struct {
	Name   string
	Kind   string
	Line   int
	Length int
	Terms  map[string]int
}

type Index struct {
	DocumentCount int
	AvgDocLength  float64
	DocFreq       map[string]int
	Documents     []Document
}

type Result struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Build indexes units by name and alias. Duplicate names are indexed once.
func Build(units []parser.SourceUnit) *Index {
	documents := make([]Document, 0, len(units))
	docFreq := make(map[string]int)
	totalLength := 0
	seen := make(map[string]bool)

	for _, unit := range units {
		if seen[unit.Name] {
			continue
		}
		seen[unit.Name] = true

		terms := make(map[string]int)
		addWeighted(terms, unit.Name, 4)
		for _, alias := range unit.Aliases {
			addWeighted(terms, alias, 2)
		}
		addWeighted(terms, unit.Kind.String(), 1)
		length := 0
		for _, count := range terms {
			length += count
		}
		if length == 0 {
			continue
		}

		documents = append(documents, Document{
			Name:   unit.Name,
			Kind:   unit.Kind.String(),
			Line:   unit.StartLine,
			Length: length,
			Terms:  terms,
		})
		totalLength += length
		for term := range terms {
			docFreq[term]++
		}
	}

	sort.Slice(documents, func(i, j int) bool {
		return documents[i].Name < documents[j].Name
	})

	avgDocLength := 0.0
	if len(documents) > 0 {
		avgDocLength = float64(totalLength) / float64(len(documents))
	}
	return &Index{
		DocumentCount: len(documents),
		AvgDocLength:  avgDocLength,
		DocFreq:       docFreq,
		Documents:     documents,
	}
}

// Search scores documents with BM25 and falls back to edit distance on
// the whole name when no term matches.
func Search(index *Index, query string, limit int) []Result {
	if index == nil || len(index.Documents) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = 10
	}

	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		return nil
	}
	seenTerms := make(map[string]bool, len(queryTerms))
	uniqueTerms := make([]string, 0, len(queryTerms))
	for _, term := range queryTerms {
		if seenTerms[term] {
			continue
		}
		seenTerms[term] = true
		uniqueTerms = append(uniqueTerms, term)
	}

	k1 := 1.2
	b := 0.75
	n := float64(index.DocumentCount)
	avgLen := index.AvgDocLength
	if avgLen <= 0 {
		avgLen = 1
	}

	results := make([]Result, 0)
	for _, doc := range index.Documents {
		score := 0.0
		docLen := float64(doc.Length)
		for _, term := range uniqueTerms {
			tf := float64(doc.Terms[term])
			if tf <= 0 {
				continue
			}
			df := float64(index.DocFreq[term])
			if df <= 0 {
				continue
			}
			idf := math.Log(1.0 + ((n - df + 0.5) / (df + 0.5)))
			score += idf * (tf * (k1 + 1.0)) / (tf + k1*(1.0-b+b*(docLen/avgLen)))
		}
		if score > 0 {
			results = append(results, Result{Name: doc.Name, Score: score})
		}
	}
	sortResults(results)

	if len(results) > limit {
		results = results[:limit]
	}
	if len(results) == 0 {
		return fuzzyNameFallback(index.Documents, query, limit)
	}
	return results
}

// Suggest returns up to limit unit names resembling name, excluding name
// itself.
func Suggest(units []parser.SourceUnit, name string, limit int) []string {
	results := Search(Build(units), name, limit+1)
	out := make([]string, 0, limit)
	for _, result := range results {
		if result.Name == name {
			continue
		}
		out = append(out, result.Name)
		if len(out) == limit {
			break
		}
	}
	return out
}

func addWeighted(terms map[string]int, value string, weight int) {
	for _, token := range tokenize(value) {
		terms[token] += weight
	}
}

// tokenize splits identifiers on case changes, underscores and other
// separators: "getWeather_v2" yields get, weather, v2.
func tokenize(value string) []string {
	if value == "" {
		return nil
	}
	value = camelBoundary.ReplaceAllString(value, "${1} ${2}")
	return tokenPattern.FindAllString(strings.ToLower(value), -1)
}

func fuzzyNameFallback(documents []Document, query string, limit int) []Result {
	needle := normalizeForFuzzy(query)
	if needle == "" {
		return nil
	}

	results := make([]Result, 0)
	for _, doc := range documents {
		candidate := normalizeForFuzzy(doc.Name)
		if candidate == "" {
			continue
		}
		distance := levenshteinDistance(needle, candidate)
		threshold := len(candidate) / 3
		if threshold < 2 {
			threshold = 2
		}
		if distance > threshold {
			continue
		}
		results = append(results, Result{Name: doc.Name, Score: 1.0 / float64(1+distance)})
	}
	sortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Name < results[j].Name
	})
}

func normalizeForFuzzy(value string) string {
	return strings.Join(tokenize(value), "")
}

func levenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		current := make([]int, len(b)+1)
		current[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			current[j] = min(current[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev = current
	}
	return prev[len(b)]
}
