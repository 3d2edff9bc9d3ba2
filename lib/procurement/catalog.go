// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package procurement

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
)

// Item is one catalog entry.
type Item struct {
	SKU         string  `json:"sku"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category,omitempty"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
}

func (item Item) priceCents() int64 {
	return int64(math.Round(item.Price * 100))
}

// Catalog is an immutable set of items indexed by SKU.
type Catalog struct {
	items     []Item
	bySKU     map[string]int
	relevance *relevanceIndex
}

// NewCatalog indexes items. SKUs must be unique and non-empty, and
// prices non-negative.
func NewCatalog(items []Item) (*Catalog, error) {
	catalog := &Catalog{
		items: make([]Item, len(items)),
		bySKU: make(map[string]int, len(items)),
	}
	copy(catalog.items, items)
	for i, item := range catalog.items {
		if item.SKU == "" {
			return nil, fmt.Errorf("procurement: catalog item %d has no sku", i)
		}
		if _, duplicate := catalog.bySKU[item.SKU]; duplicate {
			return nil, fmt.Errorf("procurement: duplicate sku %q", item.SKU)
		}
		if item.Price < 0 {
			return nil, fmt.Errorf("procurement: sku %q has negative price", item.SKU)
		}
		catalog.bySKU[item.SKU] = i
	}
	catalog.relevance = newRelevanceIndex(catalog.items)
	return catalog, nil
}

// ParseCatalog parses a JSONC document of the form {"items": [...]}.
func ParseCatalog(data []byte) (*Catalog, error) {
	var document struct {
		Items []Item `json:"items"`
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &document); err != nil {
		return nil, fmt.Errorf("procurement: parsing catalog: %w", err)
	}
	return NewCatalog(document.Items)
}

// LoadCatalog reads and parses a JSONC catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("procurement: reading catalog: %w", err)
	}
	catalog, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return catalog, nil
}

// Lookup returns the item with the given SKU.
func (catalog *Catalog) Lookup(sku string) (Item, bool) {
	index, ok := catalog.bySKU[sku]
	if !ok {
		return Item{}, false
	}
	return catalog.items[index], true
}

// Len returns the number of items.
func (catalog *Catalog) Len() int {
	return len(catalog.items)
}

// Search returns items matching every term of query, cheapest first.
// A term matches when it occurs in the name, description, or category,
// ignoring case and a trailing plural "s". maxPrice <= 0 means no
// price limit; limit <= 0 means no count limit.
func (catalog *Catalog) Search(query string, maxPrice float64, limit int) []Item {
	terms := searchTerms(query)
	var matches []Item
	for _, item := range catalog.items {
		if maxPrice > 0 && item.Price > maxPrice {
			continue
		}
		if !matchesAll(item, terms) {
			continue
		}
		matches = append(matches, item)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Price != matches[j].Price {
			return matches[i].Price < matches[j].Price
		}
		return matches[i].SKU < matches[j].SKU
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func searchTerms(query string) []string {
	var terms []string
	for _, field := range strings.Fields(strings.ToLower(query)) {
		terms = append(terms, singular(field))
	}
	return terms
}

// singular drops a plural "s" from words longer than three letters.
func singular(word string) string {
	if len(word) > 3 && strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss") {
		return strings.TrimSuffix(word, "s")
	}
	return word
}

func matchesAll(item Item, terms []string) bool {
	haystack := strings.ToLower(item.Name + " " + item.Description + " " + item.Category)
	for _, term := range terms {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}
