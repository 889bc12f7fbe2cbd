package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-pos/internal/pricing"
)

// ErrNotFound indicates no item matches the requested code or id.
var ErrNotFound = errors.New("catalog: item not found")

// ErrSKUConflict indicates the SKU is already taken by another item.
var ErrSKUConflict = errors.New("catalog: sku already exists")

// Item is a sellable catalog entry. Prices are fixed-point Money; the
// engine snapshots the unit price when an item enters a cart, so later
// edits here never alter an open transaction.
type Item struct {
	ID                string
	SKU               string
	Name              string
	Description       string
	Price             pricing.Money
	Stock             int
	LowStockThreshold int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// LowStock reports whether the item is at or below its threshold.
func (it Item) LowStock() bool {
	return it.Stock <= it.LowStockThreshold
}

// Store keeps the catalog in memory, guarded by a RWMutex. Listing
// preserves insertion order. There is no durable backing by design:
// the deployment runs on mock inventory.
type Store struct {
	mu    sync.RWMutex
	items map[string]Item
	order []string
	now   func() time.Time
	newID func() string
}

// NewStore builds a store seeded with the provided items. Seed entries
// keep their ids; entries without one are assigned.
func NewStore(seed []Item) *Store {
	s := &Store{
		items: make(map[string]Item, len(seed)),
		order: make([]string, 0, len(seed)),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, it := range seed {
		if it.ID == "" {
			it.ID = s.newID()
		}
		if _, dup := s.items[it.ID]; dup {
			continue
		}
		s.items[it.ID] = it
		s.order = append(s.order, it.ID)
	}
	return s
}

// FindByCode resolves a scanned code to an item, matching the SKU or
// the internal id. The match is exact and case-sensitive: no trimming,
// no case folding. Side-effect free.
func (s *Store) FindByCode(_ context.Context, code string) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if it, ok := s.items[code]; ok {
		return it, nil
	}
	for _, id := range s.order {
		if s.items[id].SKU == code {
			return s.items[id], nil
		}
	}
	return Item{}, ErrNotFound
}

// Get returns the item with the given id.
func (s *Store) Get(_ context.Context, id string) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return it, nil
}

// List returns all items in insertion order.
func (s *Store) List(_ context.Context) []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Item, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}

// Create inserts a new item. A blank SKU is auto-generated from the
// clock, mirroring the register's "auto-generated if empty" behavior.
func (s *Store) Create(_ context.Context, it Item) (Item, error) {
	if it.Price < 0 {
		return Item{}, fmt.Errorf("catalog: price must not be negative")
	}
	if it.Stock < 0 {
		return Item{}, fmt.Errorf("catalog: stock must not be negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if it.SKU == "" {
		it.SKU = "SKU" + strconv.FormatInt(s.now().UnixMilli(), 10)
	}
	for _, existing := range s.items {
		if existing.SKU == it.SKU {
			return Item{}, ErrSKUConflict
		}
	}
	it.ID = s.newID()
	it.CreatedAt = s.now()
	it.UpdatedAt = it.CreatedAt
	s.items[it.ID] = it
	s.order = append(s.order, it.ID)
	return it, nil
}

// Update replaces the mutable fields of an existing item.
func (s *Store) Update(_ context.Context, id string, update Item) (Item, error) {
	if update.Price < 0 {
		return Item{}, fmt.Errorf("catalog: price must not be negative")
	}
	if update.Stock < 0 {
		return Item{}, fmt.Errorf("catalog: stock must not be negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	if update.SKU != "" && update.SKU != current.SKU {
		for _, existing := range s.items {
			if existing.ID != id && existing.SKU == update.SKU {
				return Item{}, ErrSKUConflict
			}
		}
		current.SKU = update.SKU
	}
	current.Name = update.Name
	current.Description = update.Description
	current.Price = update.Price
	current.Stock = update.Stock
	current.LowStockThreshold = update.LowStockThreshold
	current.UpdatedAt = s.now()
	s.items[id] = current
	return current, nil
}

// Delete removes the item with the given id.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}
