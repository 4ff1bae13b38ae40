package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/peerloop/marketplace/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for product reads. Writes go to the primary store and invalidate
// the cache; reads check Redis first then fall back to the primary.
// Purchase and delete invalidate before returning so no client can read a
// stale for-sale product after the transaction commits.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateProduct(ctx context.Context, p *model.Product) error {
	if err := s.primary.CreateProduct(ctx, p); err != nil {
		return err
	}
	s.cacheProduct(ctx, p)
	return nil
}

func (s *CachedStore) PurchaseProduct(ctx context.Context, productID, buyerID string) (*model.Product, error) {
	p, err := s.primary.PurchaseProduct(ctx, productID, buyerID)
	if err != nil {
		return nil, err
	}
	// Invalidate; next read re-populates with the sold record.
	s.rdb.Del(ctx, productKey(productID))
	return p, nil
}

func (s *CachedStore) DeleteProduct(ctx context.Context, productID, sellerID string) (*model.Product, error) {
	p, err := s.primary.DeleteProduct(ctx, productID, sellerID)
	if err != nil {
		return nil, err
	}
	s.rdb.Del(ctx, productKey(productID))
	return p, nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	data, err := s.rdb.Get(ctx, productKey(id)).Bytes()
	if err == nil {
		var p model.Product
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	// Cache miss: read from primary.
	p, err := s.primary.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheProduct(ctx, p)
	return p, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.primary.ListProducts(ctx)
}

func (s *CachedStore) ListBySeller(ctx context.Context, sellerID, status string) ([]model.Product, error) {
	return s.primary.ListBySeller(ctx, sellerID, status)
}

func (s *CachedStore) ListByBuyer(ctx context.Context, buyerID string) ([]model.Product, error) {
	return s.primary.ListByBuyer(ctx, buyerID)
}

func (s *CachedStore) CreateUser(ctx context.Context, u *model.User) error {
	return s.primary.CreateUser(ctx, u)
}

func (s *CachedStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.primary.GetUser(ctx, id)
}

func (s *CachedStore) GetUserByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	return s.primary.GetUserByIdentifier(ctx, identifier)
}

func (s *CachedStore) GetUserByWallet(ctx context.Context, wallet string) (*model.User, error) {
	return s.primary.GetUserByWallet(ctx, wallet)
}

func (s *CachedStore) GetCart(ctx context.Context, userID string) ([]model.Product, error) {
	return s.primary.GetCart(ctx, userID)
}

func (s *CachedStore) AddToCart(ctx context.Context, userID, productID string) error {
	return s.primary.AddToCart(ctx, userID, productID)
}

func (s *CachedStore) RemoveFromCart(ctx context.Context, userID, productID string) error {
	return s.primary.RemoveFromCart(ctx, userID, productID)
}

// --- Cache helpers ---

func (s *CachedStore) cacheProduct(ctx context.Context, p *model.Product) {
	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, productKey(p.ID), data, s.ttl)
	}
}

func productKey(id string) string { return fmt.Sprintf("product:%s", id) }
