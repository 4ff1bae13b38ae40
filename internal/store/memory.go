package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/peerloop/marketplace/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence). The single
// mutex gives the same all-or-nothing guarantee for purchase/delete that
// the Postgres transaction provides.
type MemoryStore struct {
	mu       sync.Mutex
	products map[string]*model.Product
	users    map[string]*model.User
	carts    map[string][]string // userID -> product IDs in insertion order
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[string]*model.Product),
		users:    make(map[string]*model.User),
		carts:    make(map[string][]string),
	}
}

func (s *MemoryStore) CreateProduct(_ context.Context, p *model.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.products[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetProduct(_ context.Context, id string) (*model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, id)
	}
	cp := s.withNames(*p)
	return &cp, nil
}

func (s *MemoryStore) ListProducts(_ context.Context) ([]model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	products := make([]model.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, s.withNames(*p))
	}
	sortNewestFirst(products)
	return products, nil
}

func (s *MemoryStore) ListBySeller(_ context.Context, sellerID, status string) ([]model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var products []model.Product
	for _, p := range s.products {
		if p.SellerID != sellerID {
			continue
		}
		if status != "" && p.Status != status {
			continue
		}
		products = append(products, s.withNames(*p))
	}
	sortNewestFirst(products)
	return products, nil
}

func (s *MemoryStore) ListByBuyer(_ context.Context, buyerID string) ([]model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var products []model.Product
	for _, p := range s.products {
		if p.BuyerID == buyerID && p.Status == model.StatusSold {
			products = append(products, s.withNames(*p))
		}
	}
	sortNewestFirst(products)
	return products, nil
}

func (s *MemoryStore) PurchaseProduct(_ context.Context, productID, buyerID string) (*model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, productID)
	}
	if p.SellerID == buyerID {
		return nil, fmt.Errorf("%w: cannot buy your own product", ErrForbidden)
	}
	if p.Status == model.StatusSold {
		return nil, fmt.Errorf("%w: product already sold", ErrConflict)
	}

	p.Status = model.StatusSold
	p.BuyerID = buyerID
	s.removeFromAllCarts(productID)

	cp := s.withNames(*p)
	return &cp, nil
}

func (s *MemoryStore) DeleteProduct(_ context.Context, productID, sellerID string) (*model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, productID)
	}
	if p.SellerID != sellerID {
		return nil, fmt.Errorf("%w: only the seller can delist a product", ErrForbidden)
	}
	if p.Status == model.StatusSold {
		return nil, fmt.Errorf("%w: cannot delist a sold product", ErrConflict)
	}

	cp := s.withNames(*p)
	delete(s.products, productID)
	s.removeFromAllCarts(productID)
	return &cp, nil
}

func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Name == u.Name ||
			(u.Email != "" && existing.Email == u.Email) ||
			(u.WalletAddress != "" && existing.WalletAddress == u.WalletAddress) {
			return fmt.Errorf("%w: user already exists", ErrConflict)
		}
	}

	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user", ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GetUserByIdentifier(_ context.Context, identifier string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Name == identifier || (u.Email != "" && u.Email == identifier) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: user", ErrNotFound)
}

func (s *MemoryStore) GetUserByWallet(_ context.Context, wallet string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.WalletAddress != "" && u.WalletAddress == wallet {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: user", ErrNotFound)
}

func (s *MemoryStore) GetCart(_ context.Context, userID string) ([]model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return nil, fmt.Errorf("%w: user", ErrNotFound)
	}

	cart := make([]model.Product, 0, len(s.carts[userID]))
	for _, pid := range s.carts[userID] {
		if p, ok := s.products[pid]; ok {
			cart = append(cart, s.withNames(*p))
		}
	}
	return cart, nil
}

func (s *MemoryStore) AddToCart(_ context.Context, userID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return fmt.Errorf("%w: user", ErrNotFound)
	}
	p, ok := s.products[productID]
	if !ok {
		return fmt.Errorf("%w: product %s", ErrNotFound, productID)
	}
	if p.Status == model.StatusSold {
		return fmt.Errorf("%w: product already sold", ErrConflict)
	}
	for _, pid := range s.carts[userID] {
		if pid == productID {
			return fmt.Errorf("%w: product already in cart", ErrConflict)
		}
	}

	s.carts[userID] = append(s.carts[userID], productID)
	return nil
}

func (s *MemoryStore) RemoveFromCart(_ context.Context, userID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.carts[userID]
	for i, pid := range cart {
		if pid == productID {
			s.carts[userID] = append(cart[:i], cart[i+1:]...)
			break
		}
	}
	return nil
}

// removeFromAllCarts must be called with the lock held.
func (s *MemoryStore) removeFromAllCarts(productID string) {
	for userID, cart := range s.carts {
		for i, pid := range cart {
			if pid == productID {
				s.carts[userID] = append(cart[:i], cart[i+1:]...)
				break
			}
		}
	}
}

// withNames must be called with the lock held.
func (s *MemoryStore) withNames(p model.Product) model.Product {
	if u, ok := s.users[p.SellerID]; ok {
		p.SellerName = u.Name
	}
	if p.BuyerID != "" {
		if u, ok := s.users[p.BuyerID]; ok {
			p.BuyerName = u.Name
		}
	}
	return p
}

func sortNewestFirst(products []model.Product) {
	sort.SliceStable(products, func(i, j int) bool {
		return products[i].CreatedAt.After(products[j].CreatedAt)
	})
}
