// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package procurement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/concierge/lib/clock"
)

var (
	ErrUnknownSKU        = errors.New("procurement: unknown sku")
	ErrInsufficientStock = errors.New("procurement: insufficient stock")
	ErrNotInCart         = errors.New("procurement: item not in cart")
	ErrEmptyCart         = errors.New("procurement: cart is empty")
)

// Line is one cart entry.
type Line struct {
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Subtotal  float64 `json:"subtotal"`
}

// CartView is a priced snapshot of a user's cart.
type CartView struct {
	Lines []Line  `json:"lines"`
	Items int     `json:"items"`
	Total float64 `json:"total"`
}

// Checkout is a placed order.
type Checkout struct {
	ID        string    `json:"checkout_id"`
	UserID    string    `json:"user_id"`
	Lines     []Line    `json:"lines"`
	Total     float64   `json:"total"`
	CreatedAt time.Time `json:"created_at"`
}

// Carts holds one cart per user. Safe for concurrent use.
type Carts struct {
	catalog *Catalog
	clock   clock.Clock

	mu        sync.Mutex
	carts     map[string]map[string]int
	checkouts []Checkout
}

// NewCarts creates an empty cart set over catalog. A nil clock means
// clock.Real().
func NewCarts(catalog *Catalog, clk clock.Clock) *Carts {
	if clk == nil {
		clk = clock.Real()
	}
	return &Carts{
		catalog: catalog,
		clock:   clk,
		carts:   make(map[string]map[string]int),
	}
}

// Add increases the quantity of sku in the user's cart. The resulting
// quantity may not exceed the item's stock.
func (carts *Carts) Add(userID, sku string, quantity int) (CartView, error) {
	if quantity <= 0 {
		return CartView{}, fmt.Errorf("procurement: quantity must be positive, got %d", quantity)
	}
	item, ok := carts.catalog.Lookup(sku)
	if !ok {
		return CartView{}, fmt.Errorf("%w: %s", ErrUnknownSKU, sku)
	}

	carts.mu.Lock()
	defer carts.mu.Unlock()
	cart := carts.carts[userID]
	if cart == nil {
		cart = make(map[string]int)
		carts.carts[userID] = cart
	}
	if cart[sku]+quantity > item.Stock {
		return CartView{}, fmt.Errorf("%w: %s has %d in stock, cart would hold %d",
			ErrInsufficientStock, sku, item.Stock, cart[sku]+quantity)
	}
	cart[sku] += quantity
	return carts.viewLocked(userID), nil
}

// Remove decreases the quantity of sku. quantity <= 0 removes the
// line entirely.
func (carts *Carts) Remove(userID, sku string, quantity int) (CartView, error) {
	carts.mu.Lock()
	defer carts.mu.Unlock()
	cart := carts.carts[userID]
	if cart[sku] == 0 {
		return CartView{}, fmt.Errorf("%w: %s", ErrNotInCart, sku)
	}
	if quantity <= 0 || quantity >= cart[sku] {
		delete(cart, sku)
	} else {
		cart[sku] -= quantity
	}
	return carts.viewLocked(userID), nil
}

// View returns the user's cart.
func (carts *Carts) View(userID string) CartView {
	carts.mu.Lock()
	defer carts.mu.Unlock()
	return carts.viewLocked(userID)
}

// Checkout converts the user's cart into an order and empties the
// cart.
func (carts *Carts) Checkout(userID string) (Checkout, error) {
	carts.mu.Lock()
	defer carts.mu.Unlock()
	view := carts.viewLocked(userID)
	if len(view.Lines) == 0 {
		return Checkout{}, ErrEmptyCart
	}
	checkout := Checkout{
		ID:        uuid.NewString(),
		UserID:    userID,
		Lines:     view.Lines,
		Total:     view.Total,
		CreatedAt: carts.clock.Now(),
	}
	carts.checkouts = append(carts.checkouts, checkout)
	delete(carts.carts, userID)
	return checkout, nil
}

// Checkouts returns every order placed by userID, oldest first.
func (carts *Carts) Checkouts(userID string) []Checkout {
	carts.mu.Lock()
	defer carts.mu.Unlock()
	var result []Checkout
	for _, checkout := range carts.checkouts {
		if checkout.UserID == userID {
			result = append(result, checkout)
		}
	}
	return result
}

// Snapshot renders the user's cart as short text for the model's
// pinned context. An empty cart renders as the empty string.
func (carts *Carts) Snapshot(ctx context.Context, userID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	view := carts.View(userID)
	if len(view.Lines) == 0 {
		return "", nil
	}
	var builder strings.Builder
	for _, line := range view.Lines {
		fmt.Fprintf(&builder, "- %s %s x%d @ %.2f = %.2f\n",
			line.SKU, line.Name, line.Quantity, line.UnitPrice, line.Subtotal)
	}
	fmt.Fprintf(&builder, "Total: %.2f (%d items)", view.Total, view.Items)
	return builder.String(), nil
}

func (carts *Carts) viewLocked(userID string) CartView {
	cart := carts.carts[userID]
	skus := make([]string, 0, len(cart))
	for sku := range cart {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	view := CartView{Lines: []Line{}}
	var totalCents int64
	for _, sku := range skus {
		item, _ := carts.catalog.Lookup(sku)
		quantity := cart[sku]
		subtotalCents := item.priceCents() * int64(quantity)
		view.Lines = append(view.Lines, Line{
			SKU:       sku,
			Name:      item.Name,
			Quantity:  quantity,
			UnitPrice: item.Price,
			Subtotal:  float64(subtotalCents) / 100,
		})
		view.Items += quantity
		totalCents += subtotalCents
	}
	view.Total = float64(totalCents) / 100
	return view
}
