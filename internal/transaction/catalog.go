package transaction

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/shopspring/decimal"
)

// Product is the slice of catalog data the engine needs. A nil price means
// the product is not offered that way.
type Product struct {
	ID            string
	OwnerID       string
	Title         string
	RentUnit      string
	PurchasePrice *decimal.Decimal
	RentalPrice   *decimal.Decimal
}

// Catalog looks up products. Implementations return ErrProductNotFound for unknown ids.
type Catalog interface {
	FindProduct(ctx context.Context, productID string) (*Product, error)
}

// LocalCatalog is an in-memory Catalog.
type LocalCatalog struct {
	mu sync.RWMutex
	m  map[string]Product
}

// NewLocalCatalog instantiates an empty LocalCatalog.
func NewLocalCatalog() *LocalCatalog {
	return &LocalCatalog{
		m: map[string]Product{},
	}
}

// Put adds or replaces a product.
func (c *LocalCatalog) Put(p Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[p.ID] = p
}

// Remove drops a product from the catalog.
func (c *LocalCatalog) Remove(productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, productID)
}

// SetPurchasePrice changes a product's purchase price. It reports false for unknown products.
func (c *LocalCatalog) SetPurchasePrice(productID string, price *decimal.Decimal) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.m[productID]
	if !ok {
		return false
	}
	p.PurchasePrice = price
	c.m[productID] = p
	return true
}

func (c *LocalCatalog) FindProduct(_ context.Context, productID string) (*Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.m[productID]
	if !ok {
		return nil, ErrProductNotFound
	}
	return &p, nil
}

type productSeed struct {
	ID            string           `json:"id"`
	OwnerID       string           `json:"ownerId"`
	Title         string           `json:"title"`
	RentUnit      string           `json:"rentUnit"`
	PurchasePrice *decimal.Decimal `json:"purchasePrice"`
	RentalPrice   *decimal.Decimal `json:"rentalPrice"`
}

// ReadProducts decodes a JSON array of catalog products.
func ReadProducts(r io.Reader) ([]Product, error) {
	var seeds []productSeed
	if err := json.NewDecoder(r).Decode(&seeds); err != nil {
		return nil, fmt.Errorf("error decoding products: %w", err)
	}

	products := make([]Product, 0, len(seeds))
	seen := make(map[string]bool, len(seeds))
	for i, ps := range seeds {
		if ps.ID == "" || ps.OwnerID == "" {
			return nil, fmt.Errorf("product #%d: id and ownerId are required", i)
		}
		if seen[ps.ID] {
			return nil, fmt.Errorf("product %s: duplicate id", ps.ID)
		}
		if (ps.PurchasePrice != nil && ps.PurchasePrice.IsNegative()) ||
			(ps.RentalPrice != nil && ps.RentalPrice.IsNegative()) {
			return nil, fmt.Errorf("product %s: prices must not be negative", ps.ID)
		}
		seen[ps.ID] = true
		products = append(products, Product{
			ID:            ps.ID,
			OwnerID:       ps.OwnerID,
			Title:         ps.Title,
			RentUnit:      ps.RentUnit,
			PurchasePrice: ps.PurchasePrice,
			RentalPrice:   ps.RentalPrice,
		})
	}
	return products, nil
}

// LoadProductsFile reads a product seed file.
func LoadProductsFile(path string) ([]Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening product seed: %w", err)
	}
	defer f.Close()

	products, err := ReadProducts(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return products, nil
}
