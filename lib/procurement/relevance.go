// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package procurement

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// Okapi BM25 parameters.
const (
	bm25K1      = 1.2
	bm25B       = 0.75
	bm25Epsilon = 0.25
)

// Field weights: an item's tokens are repeated this many times in its
// composite document, so a name match outranks a description match.
const (
	nameWeight        = 3
	categoryWeight    = 2
	descriptionWeight = 1
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// relevanceIndex scores catalog items against free-text queries. It
// is built once with the catalog and read-only afterwards.
type relevanceIndex struct {
	termFrequencies []map[string]int
	lengths         []int
	averageLength   float64
	idf             map[string]float64
}

func newRelevanceIndex(items []Item) *relevanceIndex {
	index := &relevanceIndex{
		termFrequencies: make([]map[string]int, len(items)),
		lengths:         make([]int, len(items)),
		idf:             make(map[string]float64),
	}

	documentFrequency := make(map[string]int)
	total := 0
	for i, item := range items {
		tokens := itemTokens(item)
		index.lengths[i] = len(tokens)
		total += len(tokens)

		frequencies := make(map[string]int)
		for _, token := range tokens {
			if frequencies[token] == 0 {
				documentFrequency[token]++
			}
			frequencies[token]++
		}
		index.termFrequencies[i] = frequencies
	}
	if len(items) > 0 {
		index.averageLength = float64(total) / float64(len(items))
	}

	count := float64(len(items))
	for term, frequency := range documentFrequency {
		idf := math.Log(1 + (count-float64(frequency)+0.5)/(float64(frequency)+0.5))
		if idf < 0 {
			idf = bm25Epsilon
		}
		index.idf[term] = idf
	}
	return index
}

// score is the BM25 score of item i; zero means no query term occurs.
func (index *relevanceIndex) score(i int, queryTokens []string) float64 {
	frequencies := index.termFrequencies[i]
	length := float64(index.lengths[i])

	var score float64
	for _, token := range queryTokens {
		frequency := float64(frequencies[token])
		if frequency == 0 {
			continue
		}
		numerator := frequency * (bm25K1 + 1)
		denominator := frequency + bm25K1*(1-bm25B+bm25B*length/index.averageLength)
		score += index.idf[token] * numerator / denominator
	}
	return score
}

func itemTokens(item Item) []string {
	var tokens []string
	for _, field := range []struct {
		text   string
		weight int
	}{
		{item.Name, nameWeight},
		{item.Category, categoryWeight},
		{item.Description, descriptionWeight},
	} {
		fieldTokens := tokenize(field.text)
		for range field.weight {
			tokens = append(tokens, fieldTokens...)
		}
	}
	return tokens
}

// tokenize lowercases text, splits it into alphanumeric runs of at
// least two characters, and folds plurals the way Search does.
func tokenize(text string) []string {
	var tokens []string
	for _, match := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if len(match) < 2 {
			continue
		}
		tokens = append(tokens, singular(match))
	}
	return tokens
}

// Rank returns items sharing at least one word with query, most
// relevant first. Ties go to the cheaper item, then the lower SKU.
// maxPrice and limit behave as in Search.
func (catalog *Catalog) Rank(query string, maxPrice float64, limit int) []Item {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	type hit struct {
		item  Item
		score float64
	}
	var hits []hit
	for i, item := range catalog.items {
		if maxPrice > 0 && item.Price > maxPrice {
			continue
		}
		if score := catalog.relevance.score(i, queryTokens); score > 0 {
			hits = append(hits, hit{item: item, score: score})
		}
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		if hits[a].item.Price != hits[b].item.Price {
			return hits[a].item.Price < hits[b].item.Price
		}
		return hits[a].item.SKU < hits[b].item.SKU
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	items := make([]Item, len(hits))
	for i, hit := range hits {
		items[i] = hit.item
	}
	return items
}
