// Package market provides the HTTP handlers and business logic for product
// listings, purchases, delisting, and carts, plus the websocket fan-out of
// product updates.
package market

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/peerloop/marketplace/internal/auth"
	"github.com/peerloop/marketplace/internal/metrics"
	"github.com/peerloop/marketplace/internal/model"
	"github.com/peerloop/marketplace/internal/notify"
	"github.com/peerloop/marketplace/internal/store"
)

// Service handles marketplace operations. Atomicity of the buy and delist
// flows is delegated to the store's transaction; the service only maps
// results onto HTTP and emits update notifications after a commit.
type Service struct {
	store    store.Store
	notifier notify.Notifier // may be nil
	rpcURL   string
}

// NewService creates a marketplace service. Pass nil for notifier if no
// real-time broadcasting is needed.
func NewService(st store.Store, notifier notify.Notifier, rpcURL string) *Service {
	return &Service{
		store:    st,
		notifier: notifier,
		rpcURL:   rpcURL,
	}
}

// --- Request types ---

// CreateProductRequest is the JSON body for POST /api/products.
type CreateProductRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	ImageURL    string          `json:"image_url"`
}

// --- HTTP Handlers ---

// ListProducts handles GET /api/products.
// Returns all products, optionally filtered by ?category=<name>.
func (s *Service) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.store.ListProducts(r.Context())
	if err != nil {
		writeError(w, "failed to list products", http.StatusInternalServerError)
		return
	}
	if products == nil {
		products = []model.Product{}
	}

	if category := r.URL.Query().Get("category"); category != "" {
		filtered := []model.Product{}
		for _, p := range products {
			if p.Category == category {
				filtered = append(filtered, p)
			}
		}
		products = filtered
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(products)
}

// CreateProduct handles POST /api/products.
func (s *Service) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	fields := map[string]string{}
	if req.Name == "" {
		fields["name"] = "name is required"
	}
	if req.Description == "" {
		fields["description"] = "description is required"
	}
	if req.Category == "" {
		fields["category"] = "category is required"
	}
	if req.ImageURL == "" {
		fields["image_url"] = "image_url is required"
	}
	if req.Price.LessThanOrEqual(decimal.Zero) {
		fields["price"] = "price must be positive"
	}
	if len(fields) > 0 {
		writeFieldErrors(w, fields)
		return
	}

	product := &model.Product{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
		SellerID:    auth.UserID(r.Context()),
		Status:      model.StatusForSale,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateProduct(r.Context(), product); err != nil {
		writeError(w, "failed to create product", http.StatusInternalServerError)
		return
	}

	slog.Info("product listed", "id", product.ID, "name", product.Name, "seller", product.SellerID)
	s.emit(notify.Event{Kind: notify.KindListed, SubjectID: product.ID, DisplayName: product.Name})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(product)
}

// GetProduct handles GET /api/products/{productID}.
func (s *Service) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.store.GetProduct(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(product)
}

// BuyProduct handles POST /api/products/{productID}/buy.
// The status check-and-set and the cart cleanup commit atomically; under
// concurrent requests exactly one buyer wins, the rest get 409.
func (s *Service) BuyProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	buyerID := auth.UserID(r.Context())

	product, err := s.store.PurchaseProduct(r.Context(), productID, buyerID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	slog.Info("product purchased", "id", product.ID, "name", product.Name, "buyer", buyerID)
	metrics.PurchasesTotal.Inc()
	s.emit(notify.Event{Kind: notify.KindSold, SubjectID: product.ID, DisplayName: product.Name})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(product)
}

// DeleteProduct handles DELETE /api/products/{productID}.
// Seller-only delisting of an unsold product, with the same cascading cart
// cleanup as a purchase.
func (s *Service) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	sellerID := auth.UserID(r.Context())

	product, err := s.store.DeleteProduct(r.Context(), productID, sellerID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	slog.Info("product delisted", "id", product.ID, "name", product.Name)
	s.emit(notify.Event{Kind: notify.KindDeleted, SubjectID: product.ID, DisplayName: product.Name})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "deleted", "id": product.ID})
}

// GetCart handles GET /api/users/cart.
func (s *Service) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := s.store.GetCart(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if cart == nil {
		cart = []model.Product{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cart)
}

// AddToCart handles POST /api/users/cart/{productID}.
func (s *Service) AddToCart(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if err := s.store.AddToCart(r.Context(), userID, chi.URLParam(r, "productID")); err != nil {
		writeStoreError(w, err)
		return
	}
	s.GetCart(w, r)
}

// RemoveFromCart handles DELETE /api/users/cart/{productID}.
func (s *Service) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if err := s.store.RemoveFromCart(r.Context(), userID, chi.URLParam(r, "productID")); err != nil {
		writeStoreError(w, err)
		return
	}
	s.GetCart(w, r)
}

// MyListings handles GET /api/users/me/listings.
func (s *Service) MyListings(w http.ResponseWriter, r *http.Request) {
	s.writeSellerProducts(w, r, auth.UserID(r.Context()), model.StatusForSale)
}

// MySold handles GET /api/users/me/sold.
func (s *Service) MySold(w http.ResponseWriter, r *http.Request) {
	s.writeSellerProducts(w, r, auth.UserID(r.Context()), model.StatusSold)
}

// MyPurchases handles GET /api/users/me/purchased.
func (s *Service) MyPurchases(w http.ResponseWriter, r *http.Request) {
	products, err := s.store.ListByBuyer(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, "failed to load purchases", http.StatusInternalServerError)
		return
	}
	if products == nil {
		products = []model.Product{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(products)
}

// SellerProducts handles GET /api/users/{userID}/products.
// Public endpoint returning the seller's profile and their for-sale products.
func (s *Service) SellerProducts(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	seller, err := s.store.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, "seller not found", http.StatusNotFound)
		return
	}

	products, err := s.store.ListBySeller(r.Context(), userID, model.StatusForSale)
	if err != nil {
		writeError(w, "failed to load seller products", http.StatusInternalServerError)
		return
	}
	if products == nil {
		products = []model.Product{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"seller":   map[string]string{"id": seller.ID, "name": seller.Name},
		"products": products,
	})
}

// RPCConfig handles GET /api/config/rpc-url.
// Exposes the read-only RPC endpoint the browser uses for contract calls.
func (s *Service) RPCConfig(w http.ResponseWriter, r *http.Request) {
	if s.rpcURL == "" {
		writeError(w, "RPC URL not configured on server", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"rpc_url": s.rpcURL})
}

// --- Helpers ---

func (s *Service) writeSellerProducts(w http.ResponseWriter, r *http.Request, sellerID, status string) {
	products, err := s.store.ListBySeller(r.Context(), sellerID, status)
	if err != nil {
		writeError(w, "failed to load listings", http.StatusInternalServerError)
		return
	}
	if products == nil {
		products = []model.Product{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(products)
}

func (s *Service) emit(ev notify.Event) {
	if s.notifier != nil {
		s.notifier.Emit(ev)
	}
}

// writeStoreError maps the store's business-rule errors onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrForbidden):
		writeError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, store.ErrConflict):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeFieldErrors writes a 400 with per-field validation messages.
func writeFieldErrors(w http.ResponseWriter, fields map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]any{
		"error":  "validation failed",
		"fields": fields,
	})
}
