package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/events"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

// Service orchestrates catalog queries, DTO assembly, and caching.
type Service struct {
	store        *Store
	cache        *Cache
	events       *events.Bus
	validate     *validator.Validate
	defaultLimit int
	maxLimit     int
	defaultLow   int
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store        *Store
	Cache        *Cache
	Events       *events.Bus
	DefaultLimit int
	MaxLimit     int
	// DefaultLowStock is applied when a create payload leaves the
	// threshold unset.
	DefaultLowStock int
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("catalog: store is required")
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit <= 0 {
		defaultLimit = 20
	}
	maxLimit := cfg.MaxLimit
	if maxLimit <= 0 {
		maxLimit = 100
	}
	return &Service{
		store:        cfg.Store,
		cache:        cfg.Cache,
		events:       cfg.Events,
		validate:     validator.New(),
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		defaultLow:   cfg.DefaultLowStock,
	}, nil
}

// ListParams captures filters for product listing.
type ListParams struct {
	Query string
	Sort  string
	Order string
	Page  int
	Limit int
}

// Product is the catalog DTO exposed over HTTP. Amounts travel as
// formatted decimal strings to keep floats out of the money path.
type Product struct {
	ID                string `json:"id"`
	SKU               string `json:"sku"`
	Name              string `json:"name"`
	Description       string `json:"description,omitempty"`
	Price             string `json:"price"`
	Stock             int    `json:"stock"`
	LowStockThreshold int    `json:"lowStockThreshold"`
	LowStock          bool   `json:"lowStock"`
}

// ProductInput carries create/update payloads.
type ProductInput struct {
	Name              string `json:"name" validate:"required,min=1,max=200"`
	SKU               string `json:"sku" validate:"omitempty,max=64"`
	Price             string `json:"price" validate:"required"`
	Stock             int    `json:"stock" validate:"gte=0"`
	LowStockThreshold int    `json:"lowStockThreshold" validate:"gte=0"`
	Description       string `json:"description" validate:"max=2000"`
}

// ListResult bundles a listing page with its total count.
type ListResult struct {
	Items []Product
	Total int
	Page  int
	Limit int
}

// ParseListParams normalises query parameters for ListProducts.
func (s *Service) ParseListParams(values url.Values, page, limit int) (ListParams, error) {
	params := ListParams{
		Query: strings.TrimSpace(values.Get("q")),
		Sort:  strings.ToLower(strings.TrimSpace(values.Get("sort"))),
		Order: strings.ToLower(strings.TrimSpace(values.Get("order"))),
		Page:  page,
		Limit: limit,
	}
	switch params.Sort {
	case "":
		params.Sort = "name"
	case "name", "sku", "price", "stock":
	default:
		return ListParams{}, common.NewAppError("BAD_REQUEST", "unsupported sort field", http.StatusBadRequest, nil)
	}
	switch params.Order {
	case "":
		params.Order = "asc"
	case "asc", "desc":
	default:
		return ListParams{}, common.NewAppError("BAD_REQUEST", "order must be asc or desc", http.StatusBadRequest, nil)
	}
	if params.Page <= 0 {
		params.Page = 1
	}
	if params.Limit <= 0 {
		params.Limit = s.defaultLimit
	}
	if params.Limit > s.maxLimit {
		params.Limit = s.maxLimit
	}
	return params, nil
}

// ListProducts returns a filtered, sorted, paginated listing, served
// from cache when possible.
func (s *Service) ListProducts(ctx context.Context, params ListParams) (ListResult, error) {
	key := ListKey(params)
	var cached ListResult
	if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}

	items := s.store.List(ctx)
	if params.Query != "" {
		needle := strings.ToLower(params.Query)
		filtered := items[:0:0]
		for _, it := range items {
			if strings.Contains(strings.ToLower(it.Name), needle) ||
				strings.Contains(strings.ToLower(it.SKU), needle) {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}

	asc := params.Order != "desc"
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !asc {
			a, b = b, a
		}
		switch params.Sort {
		case "sku":
			return a.SKU < b.SKU
		case "price":
			return a.Price < b.Price
		case "stock":
			return a.Stock < b.Stock
		default:
			return a.Name < b.Name
		}
	})

	total := len(items)
	start := (params.Page - 1) * params.Limit
	if start > total {
		start = total
	}
	end := start + params.Limit
	if end > total {
		end = total
	}

	result := ListResult{
		Items: make([]Product, 0, end-start),
		Total: total,
		Page:  params.Page,
		Limit: params.Limit,
	}
	for _, it := range items[start:end] {
		result.Items = append(result.Items, toProduct(it))
	}
	_ = s.cache.SetJSON(ctx, key, result)
	return result, nil
}

// GetProduct returns a single catalog entry.
func (s *Service) GetProduct(ctx context.Context, id string) (Product, error) {
	it, err := s.store.Get(ctx, id)
	if err != nil {
		return Product{}, wrapStoreErr(err)
	}
	return toProduct(it), nil
}

// CreateProduct validates and inserts a new catalog entry.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	item, err := s.itemFromInput(in)
	if err != nil {
		return Product{}, err
	}
	created, err := s.store.Create(ctx, item)
	if err != nil {
		return Product{}, wrapStoreErr(err)
	}
	s.cache.Invalidate(ctx)
	product := toProduct(created)
	if s.events != nil {
		_, _ = s.events.Emit(ctx, events.TopicProductCreated, created.ID, product)
	}
	return product, nil
}

// UpdateProduct validates and applies an update.
func (s *Service) UpdateProduct(ctx context.Context, id string, in ProductInput) (Product, error) {
	item, err := s.itemFromInput(in)
	if err != nil {
		return Product{}, err
	}
	updated, err := s.store.Update(ctx, id, item)
	if err != nil {
		return Product{}, wrapStoreErr(err)
	}
	s.cache.Invalidate(ctx)
	product := toProduct(updated)
	if s.events != nil {
		_, _ = s.events.Emit(ctx, events.TopicProductUpdated, updated.ID, product)
	}
	return product, nil
}

// DeleteProduct removes a catalog entry.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return wrapStoreErr(err)
	}
	s.cache.Invalidate(ctx)
	if s.events != nil {
		_, _ = s.events.Emit(ctx, events.TopicProductDeleted, id, map[string]string{"id": id})
	}
	return nil
}

// Store exposes the backing store for collaborators that need the
// lookup contract (the sales engine, the stock report).
func (s *Service) Store() *Store {
	return s.store
}

func (s *Service) itemFromInput(in ProductInput) (Item, error) {
	if err := s.validate.Struct(in); err != nil {
		return Item{}, common.NewAppError("VALIDATION", "invalid product payload", http.StatusUnprocessableEntity, err)
	}
	price, err := pricing.Parse(in.Price)
	if err != nil {
		return Item{}, common.NewAppError("VALIDATION", "price must be a decimal amount", http.StatusUnprocessableEntity, err)
	}
	if price < 0 {
		return Item{}, common.NewAppError("VALIDATION", "price must not be negative", http.StatusUnprocessableEntity, nil)
	}
	threshold := in.LowStockThreshold
	if threshold <= 0 {
		threshold = s.defaultLow
	}
	return Item{
		SKU:               in.SKU,
		Name:              in.Name,
		Description:       in.Description,
		Price:             price,
		Stock:             in.Stock,
		LowStockThreshold: threshold,
	}, nil
}

func toProduct(it Item) Product {
	return Product{
		ID:                it.ID,
		SKU:               it.SKU,
		Name:              it.Name,
		Description:       it.Description,
		Price:             pricing.Format(it.Price),
		Stock:             it.Stock,
		LowStockThreshold: it.LowStockThreshold,
		LowStock:          it.LowStock(),
	}
}

func wrapStoreErr(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return common.NewAppError("NOT_FOUND", "product not found", http.StatusNotFound, err)
	case errors.Is(err, ErrSKUConflict):
		return common.NewAppError("CONFLICT", "sku already exists", http.StatusConflict, err)
	default:
		return common.NewAppError("VALIDATION", err.Error(), http.StatusUnprocessableEntity, err)
	}
}
