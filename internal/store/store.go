// Package store defines the persistence interface for the marketplace.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/peerloop/marketplace/internal/model"
)

// Business-rule errors. Handlers translate these into HTTP statuses; store
// implementations wrap them with context via fmt.Errorf("%w").
var (
	// ErrNotFound is returned when the referenced product or user does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrForbidden is returned when the requester is not allowed to perform
	// the operation (buying an own product, delisting someone else's).
	ErrForbidden = errors.New("store: forbidden")

	// ErrConflict is returned when the operation lost a race or violates a
	// uniqueness rule (product already sold, duplicate cart entry, taken name).
	ErrConflict = errors.New("store: conflict")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
//
// PurchaseProduct and DeleteProduct are the transactional operations: the
// product mutation and the removal from every cart commit atomically or not
// at all, and concurrent purchases of the same product are serialized so
// that exactly one succeeds.
type Store interface {
	// --- Product operations ---

	// CreateProduct persists a new listing.
	CreateProduct(ctx context.Context, p *model.Product) error

	// GetProduct retrieves a product by its ID.
	GetProduct(ctx context.Context, id string) (*model.Product, error)

	// ListProducts returns all products, newest first.
	ListProducts(ctx context.Context) ([]model.Product, error)

	// ListBySeller returns a seller's products with the given status, newest
	// first. An empty status matches all.
	ListBySeller(ctx context.Context, sellerID, status string) ([]model.Product, error)

	// ListByBuyer returns the products a user has purchased, newest first.
	ListByBuyer(ctx context.Context, buyerID string) ([]model.Product, error)

	// PurchaseProduct marks a product sold by buyerID and removes it from
	// every cart, atomically. Fails with ErrNotFound, ErrForbidden (own
	// product), or ErrConflict (already sold).
	PurchaseProduct(ctx context.Context, productID, buyerID string) (*model.Product, error)

	// DeleteProduct delists a product on behalf of its seller and removes it
	// from every cart, atomically. Fails with ErrNotFound, ErrForbidden (not
	// the seller), or ErrConflict (already sold).
	DeleteProduct(ctx context.Context, productID, sellerID string) (*model.Product, error)

	// --- User operations ---

	// CreateUser persists a new user. Returns ErrConflict when the name,
	// email, or wallet address is already taken.
	CreateUser(ctx context.Context, u *model.User) error

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, id string) (*model.User, error)

	// GetUserByIdentifier retrieves a user by display name or email.
	GetUserByIdentifier(ctx context.Context, identifier string) (*model.User, error)

	// GetUserByWallet retrieves a user by wallet address.
	GetUserByWallet(ctx context.Context, wallet string) (*model.User, error)

	// --- Cart operations ---

	// GetCart returns the products in a user's cart in insertion order.
	GetCart(ctx context.Context, userID string) ([]model.Product, error)

	// AddToCart inserts a product into a user's cart. Fails with ErrNotFound
	// (no such user or product) or ErrConflict (sold, or already in cart).
	AddToCart(ctx context.Context, userID, productID string) error

	// RemoveFromCart removes a product from a user's cart. Removing an
	// absent entry is a no-op.
	RemoveFromCart(ctx context.Context, userID, productID string) error
}
