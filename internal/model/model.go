// Package model defines the core domain types shared across the marketplace
// backend. All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product statuses.
const (
	StatusForSale = "for-sale"
	StatusSold    = "sold"
)

// Product is a marketplace listing. BuyerID is set if and only if the status
// is "sold"; once sold, price, seller, and buyer never change.
type Product struct {
	ID          string          `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Category    string          `json:"category" db:"category"`
	ImageURL    string          `json:"image_url" db:"image_url"`
	SellerID    string          `json:"seller_id" db:"seller_id"`
	SellerName  string          `json:"seller_name,omitempty" db:"seller_name"`
	Status      string          `json:"status" db:"status"` // "for-sale" or "sold"
	BuyerID     string          `json:"buyer_id,omitempty" db:"buyer_id"`
	BuyerName   string          `json:"buyer_name,omitempty" db:"buyer_name"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// User is a marketplace account. Email and password are optional: wallet
// users are keyed by WalletAddress and carry a generated display name.
type User struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Email         string    `json:"email,omitempty" db:"email"`
	PasswordHash  string    `json:"-" db:"password_hash"`
	WalletAddress string    `json:"wallet_address,omitempty" db:"wallet_address"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
