package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/peerloop/marketplace/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Prices are stored as NUMERIC for exact decimal precision. Carts live in a
// cart_items join table so that sale-time cleanup is a single DELETE inside
// the purchase transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const productColumns = `p.id, p.name, p.description, p.price::TEXT, p.category, p.image_url,
	        p.seller_id, s.name, p.status, COALESCE(p.buyer_id, ''), COALESCE(b.name, ''), p.created_at`

const productJoins = ` FROM products p
	 JOIN users s ON s.id = p.seller_id
	 LEFT JOIN users b ON b.id = p.buyer_id`

func (s *PostgresStore) CreateProduct(ctx context.Context, p *model.Product) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO products (id, name, description, price, category, image_url, seller_id, status, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6, $7, $8, $9)`,
		p.ID, p.Name, p.Description, p.Price.String(), p.Category, p.ImageURL,
		p.SellerID, p.Status, p.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+productColumns+productJoins+` WHERE p.id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: product %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	return p, nil
}

func (s *PostgresStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+productColumns+productJoins+` ORDER BY p.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanProducts(rows)
}

func (s *PostgresStore) ListBySeller(ctx context.Context, sellerID, status string) ([]model.Product, error) {
	query := `SELECT ` + productColumns + productJoins + ` WHERE p.seller_id = $1`
	args := []any{sellerID}
	if status != "" {
		query += ` AND p.status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY p.created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanProducts(rows)
}

func (s *PostgresStore) ListByBuyer(ctx context.Context, buyerID string) ([]model.Product, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+productColumns+productJoins+` WHERE p.buyer_id = $1 AND p.status = $2 ORDER BY p.created_at DESC`,
		buyerID, model.StatusSold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanProducts(rows)
}

// PurchaseProduct runs the buy flow in one transaction. The FOR UPDATE read
// serializes concurrent buyers on the product row: the first to commit wins,
// every other transaction re-reads status = sold and fails with ErrConflict.
func (s *PostgresStore) PurchaseProduct(ctx context.Context, productID, buyerID string) (*model.Product, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin purchase: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := lockProduct(ctx, tx, productID)
	if err != nil {
		return nil, err
	}
	if p.SellerID == buyerID {
		return nil, fmt.Errorf("%w: cannot buy your own product", ErrForbidden)
	}
	if p.Status == model.StatusSold {
		return nil, fmt.Errorf("%w: product already sold", ErrConflict)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE products SET status = $2, buyer_id = $3 WHERE id = $1`,
		productID, model.StatusSold, buyerID); err != nil {
		return nil, fmt.Errorf("mark sold: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM cart_items WHERE product_id = $1`, productID); err != nil {
		return nil, fmt.Errorf("clear carts: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit purchase: %w", err)
	}

	p.Status = model.StatusSold
	p.BuyerID = buyerID
	return p, nil
}

// DeleteProduct delists a for-sale product and clears it from all carts in
// one transaction. Only the seller may delist, and only while unsold.
func (s *PostgresStore) DeleteProduct(ctx context.Context, productID, sellerID string) (*model.Product, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := lockProduct(ctx, tx, productID)
	if err != nil {
		return nil, err
	}
	if p.SellerID != sellerID {
		return nil, fmt.Errorf("%w: only the seller can delist a product", ErrForbidden)
	}
	if p.Status == model.StatusSold {
		return nil, fmt.Errorf("%w: cannot delist a sold product", ErrConflict)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM cart_items WHERE product_id = $1`, productID); err != nil {
		return nil, fmt.Errorf("clear carts: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM products WHERE id = $1`, productID); err != nil {
		return nil, fmt.Errorf("delete product: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit delete: %w", err)
	}
	return p, nil
}

func lockProduct(ctx context.Context, tx pgx.Tx, productID string) (*model.Product, error) {
	var p model.Product
	var priceS string
	err := tx.QueryRow(ctx,
		`SELECT id, name, description, price::TEXT, category, image_url,
		        seller_id, status, COALESCE(buyer_id, ''), created_at
		 FROM products WHERE id = $1 FOR UPDATE`, productID).
		Scan(&p.ID, &p.Name, &p.Description, &priceS, &p.Category, &p.ImageURL,
			&p.SellerID, &p.Status, &p.BuyerID, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: product %s", ErrNotFound, productID)
		}
		return nil, fmt.Errorf("lock product %s: %w", productID, err)
	}
	p.Price, _ = decimal.NewFromString(priceS)
	return &p, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, name, email, password_hash, wallet_address, created_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), $6)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.WalletAddress, u.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: user already exists", ErrConflict)
	}
	return err
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.getUser(ctx, `id = $1`, id)
}

func (s *PostgresStore) GetUserByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	return s.getUser(ctx, `name = $1 OR email = $1`, identifier)
}

func (s *PostgresStore) GetUserByWallet(ctx context.Context, wallet string) (*model.User, error) {
	return s.getUser(ctx, `wallet_address = $1`, wallet)
}

func (s *PostgresStore) getUser(ctx context.Context, where string, arg string) (*model.User, error) {
	var u model.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, COALESCE(email, ''), COALESCE(password_hash, ''), COALESCE(wallet_address, ''), created_at
		 FROM users WHERE `+where, arg).
		Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.WalletAddress, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user", ErrNotFound)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) GetCart(ctx context.Context, userID string) ([]model.Product, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+productColumns+productJoins+`
		 JOIN cart_items c ON c.product_id = p.id
		 WHERE c.user_id = $1 ORDER BY c.added_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanProducts(rows)
}

func (s *PostgresStore) AddToCart(ctx context.Context, userID, productID string) error {
	p, err := s.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if p.Status == model.StatusSold {
		return fmt.Errorf("%w: product already sold", ErrConflict)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO cart_items (user_id, product_id, added_at) VALUES ($1, $2, NOW())`,
		userID, productID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: product already in cart", ErrConflict)
	}
	return err
}

func (s *PostgresStore) RemoveFromCart(ctx context.Context, userID, productID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`,
		userID, productID)
	return err
}

// scanProducts reads pgx rows into Product slices.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanProducts(rows pgxRows) ([]model.Product, error) {
	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row scannable) (*model.Product, error) {
	var p model.Product
	var priceS string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &priceS, &p.Category, &p.ImageURL,
		&p.SellerID, &p.SellerName, &p.Status, &p.BuyerID, &p.BuyerName, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Price, _ = decimal.NewFromString(priceS)
	return &p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
