// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package procurement

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/concierge/lib/toolexec"
)

// Operation names registered by Register.
const (
	ToolSearchCatalog  = "search_catalog"
	ToolAddToCart      = "add_to_cart"
	ToolRemoveFromCart = "remove_from_cart"
	ToolViewCart       = "view_cart"
	ToolCreateCheckout = "create_checkout"
)

const defaultSearchLimit = 10

// Orderings accepted by search_catalog.
const (
	SortPrice     = "price"
	SortRelevance = "relevance"
)

// SearchResult is the payload of search_catalog.
type SearchResult struct {
	Items []Item `json:"items"`
	Count int    `json:"count"`
}

// Register adds the procurement operations to registry.
func Register(registry *toolexec.Registry, catalog *Catalog, carts *Carts) error {
	skuProperty := toolexec.Property{
		Type:        toolexec.TypeString,
		Description: "Catalog SKU, as returned by search_catalog.",
		MinLength:   1,
	}
	quantityProperty := toolexec.Property{
		Type:    toolexec.TypeInteger,
		Minimum: toolexec.Bound(1),
		Maximum: toolexec.Bound(1000),
	}

	operations := []toolexec.Operation{
		{
			Name:        ToolSearchCatalog,
			Description: "Search the office supply catalog. By default returns items matching every word, cheapest first; " +
				"with sort=relevance returns items matching any word, best match first.",
			Schema: toolexec.Schema{
				Properties: map[string]toolexec.Property{
					"query": {
						Type:        toolexec.TypeString,
						Description: "Words to match against item names, descriptions and categories.",
						MinLength:   1,
					},
					"maxPrice": {
						Type:        toolexec.TypeNumber,
						Description: "Only return items at or below this unit price.",
						Minimum:     toolexec.Bound(0),
					},
					"limit": {
						Type:        toolexec.TypeInteger,
						Description: "Maximum number of items to return (default 10).",
						Minimum:     toolexec.Bound(1),
						Maximum:     toolexec.Bound(50),
					},
					"sort": {
						Type:        toolexec.TypeString,
						Description: "Result order (default price).",
						Enum:        []string{SortPrice, SortRelevance},
					},
				},
				Required: []string{"query"},
			},
			Attach: true,
			Handler: func(ctx context.Context, scope toolexec.Scope, arguments toolexec.Arguments) (any, error) {
				search := catalog.Search
				if arguments.String("sort", SortPrice) == SortRelevance {
					search = catalog.Rank
				}
				items := search(
					arguments.String("query", ""),
					arguments.Float("maxPrice", 0),
					arguments.Int("limit", defaultSearchLimit),
				)
				if items == nil {
					items = []Item{}
				}
				return SearchResult{Items: items, Count: len(items)}, nil
			},
		},
		{
			Name:        ToolAddToCart,
			Description: "Add an item to the user's cart.",
			Schema: toolexec.Schema{
				Properties: map[string]toolexec.Property{
					"sku":      skuProperty,
					"quantity": withDescription(quantityProperty, "Units to add (default 1)."),
				},
				Required: []string{"sku"},
			},
			Attach: true,
			Handler: func(ctx context.Context, scope toolexec.Scope, arguments toolexec.Arguments) (any, error) {
				return carts.Add(scope.UserID, arguments.String("sku", ""), arguments.Int("quantity", 1))
			},
		},
		{
			Name:        ToolRemoveFromCart,
			Description: "Remove an item from the user's cart. Without quantity the whole line is removed.",
			Schema: toolexec.Schema{
				Properties: map[string]toolexec.Property{
					"sku":      skuProperty,
					"quantity": withDescription(quantityProperty, "Units to remove."),
				},
				Required: []string{"sku"},
			},
			Attach: true,
			Handler: func(ctx context.Context, scope toolexec.Scope, arguments toolexec.Arguments) (any, error) {
				return carts.Remove(scope.UserID, arguments.String("sku", ""), arguments.Int("quantity", 0))
			},
		},
		{
			Name:        ToolViewCart,
			Description: "Show the user's cart with prices and total.",
			Attach:      true,
			Handler: func(ctx context.Context, scope toolexec.Scope, arguments toolexec.Arguments) (any, error) {
				return carts.View(scope.UserID), nil
			},
		},
		{
			Name:        ToolCreateCheckout,
			Description: "Place an order for everything in the user's cart and empty it.",
			Attach:      true,
			Handler: func(ctx context.Context, scope toolexec.Scope, arguments toolexec.Arguments) (any, error) {
				return carts.Checkout(scope.UserID)
			},
		},
	}

	for _, operation := range operations {
		if err := registry.Register(operation); err != nil {
			return fmt.Errorf("procurement: %w", err)
		}
	}
	return nil
}

func withDescription(property toolexec.Property, description string) toolexec.Property {
	property.Description = description
	return property
}
