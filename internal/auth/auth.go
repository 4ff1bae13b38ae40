// Package auth provides the HTTP handlers for account registration, password
// login, and wallet login, plus JWT issuance and verification.
//
// Wallet signature verification is delegated to the wallet provider; the
// wallet endpoint trusts the presented address and auto-provisions an
// account for it on first sight.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/peerloop/marketplace/internal/model"
	"github.com/peerloop/marketplace/internal/store"
)

// walletAddressRegex matches a 0x-prefixed 20-byte hex address.
var walletAddressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// maxNameRetries bounds the numeric-suffix search for a free generated name.
const maxNameRetries = 10

// Service handles authentication operations.
type Service struct {
	store    store.Store
	secret   []byte
	tokenTTL time.Duration
}

// NewService creates an auth service signing tokens with secret.
func NewService(st store.Store, secret []byte, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Service{
		store:    st,
		secret:   secret,
		tokenTTL: tokenTTL,
	}
}

// --- Request/Response types ---

// RegisterRequest is the JSON body for POST /api/auth/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the JSON body for POST /api/auth/login. Identifier is a
// display name or an email address.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// WalletRequest is the JSON body for POST /api/auth/metamask.
type WalletRequest struct {
	WalletAddress string `json:"wallet_address"`
}

// TokenResponse is returned from every successful auth call.
type TokenResponse struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// --- HTTP Handlers ---

// Register handles POST /api/auth/register.
func (s *Service) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	fields := map[string]string{}
	if req.Name == "" {
		fields["name"] = "name is required"
	}
	if req.Email == "" {
		fields["email"] = "email is required"
	}
	if len(req.Password) < 6 {
		fields["password"] = "password must be at least 6 characters"
	}
	if len(fields) > 0 {
		writeFieldErrors(w, fields)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, "failed to hash password", http.StatusInternalServerError)
		return
	}

	user := &model.User{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, "user with this email or name already exists", http.StatusConflict)
			return
		}
		writeError(w, "failed to create user", http.StatusInternalServerError)
		return
	}

	slog.Info("user registered", "id", user.ID, "name", user.Name)
	s.respondWithToken(w, user)
}

// Login handles POST /api/auth/login.
func (s *Service) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Identifier == "" || req.Password == "" {
		writeError(w, "identifier and password are required", http.StatusBadRequest)
		return
	}

	user, err := s.store.GetUserByIdentifier(r.Context(), req.Identifier)
	if err != nil {
		writeError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	s.respondWithToken(w, user)
}

// Wallet handles POST /api/auth/metamask. First-time addresses are
// auto-provisioned with a generated display name; on a name collision the
// name is retried with a numeric suffix.
func (s *Service) Wallet(w http.ResponseWriter, r *http.Request) {
	var req WalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !walletAddressRegex.MatchString(req.WalletAddress) {
		writeError(w, "valid wallet address is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	user, err := s.store.GetUserByWallet(ctx, req.WalletAddress)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			writeError(w, "failed to look up wallet", http.StatusInternalServerError)
			return
		}
		user, err = s.provisionWalletUser(r, req.WalletAddress)
		if err != nil {
			writeError(w, "failed to create wallet user", http.StatusInternalServerError)
			return
		}
		slog.Info("wallet user provisioned", "id", user.ID, "name", user.Name)
	}

	s.respondWithToken(w, user)
}

func (s *Service) provisionWalletUser(r *http.Request, wallet string) (*model.User, error) {
	// The address itself stands in for a credential so the record shape
	// matches password users; wallet users never log in with it.
	hash, err := bcrypt.GenerateFromPassword([]byte(wallet), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	base := fmt.Sprintf("User-%s", wallet[2:8])
	name := base
	for attempt := 2; ; attempt++ {
		user := &model.User{
			ID:            uuid.New().String(),
			Name:          name,
			Email:         fmt.Sprintf("%s@peerloop.io", wallet),
			PasswordHash:  string(hash),
			WalletAddress: wallet,
			CreatedAt:     time.Now().UTC(),
		}
		err := s.store.CreateUser(r.Context(), user)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, store.ErrConflict) || attempt > maxNameRetries {
			return nil, err
		}
		name = fmt.Sprintf("%s-%d", base, attempt)
	}
}

func (s *Service) respondWithToken(w http.ResponseWriter, user *model.User) {
	token, err := s.issueToken(user.ID)
	if err != nil {
		writeError(w, "failed to issue token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(TokenResponse{Token: token, User: *user})
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
