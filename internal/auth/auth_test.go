package auth_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/peerloop/marketplace/internal/auth"
	"github.com/peerloop/marketplace/internal/store"
)

func newTestRouter(t *testing.T) (chi.Router, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	svc := auth.NewService(ms, []byte("test-secret"), time.Hour)

	r := chi.NewRouter()
	r.Post("/api/auth/register", svc.Register)
	r.Post("/api/auth/login", svc.Login)
	r.Post("/api/auth/metamask", svc.Wallet)
	r.Group(func(r chi.Router) {
		r.Use(svc.Middleware)
		r.Get("/api/whoami", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"user_id": auth.UserID(r.Context())})
		})
	})
	return r, ms
}

func post(t *testing.T, router chi.Router, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeToken(t *testing.T, w *httptest.ResponseRecorder) auth.TokenResponse {
	t.Helper()
	var resp auth.TokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode token response: %v: %s", err, w.Body.String())
	}
	return resp
}

func registerAlice(t *testing.T, router chi.Router) auth.TokenResponse {
	t.Helper()
	w := post(t, router, "/api/auth/register", auth.RegisterRequest{
		Name:     "alice",
		Email:    "alice@example.com",
		Password: "secret123",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("register: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	return decodeToken(t, w)
}

// --- Register / Login ---

func TestRegister_IssuesToken(t *testing.T) {
	router, _ := newTestRouter(t)
	resp := registerAlice(t, router)

	if resp.Token == "" {
		t.Error("expected a token")
	}
	if resp.User.ID == "" || resp.User.Name != "alice" {
		t.Errorf("unexpected user: %+v", resp.User)
	}
}

func TestRegister_Validation(t *testing.T) {
	router, _ := newTestRouter(t)

	w := post(t, router, "/api/auth/register", auth.RegisterRequest{Name: "alice", Password: "short"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var resp struct {
		Fields map[string]string `json:"fields"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Fields["email"] == "" || resp.Fields["password"] == "" {
		t.Errorf("expected email and password messages, got %+v", resp.Fields)
	}
}

func TestRegister_DuplicateConflict(t *testing.T) {
	router, _ := newTestRouter(t)
	registerAlice(t, router)

	w := post(t, router, "/api/auth/register", auth.RegisterRequest{
		Name:     "alice",
		Email:    "other@example.com",
		Password: "secret123",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate name, got %d", w.Code)
	}
}

func TestLogin_ByNameOrEmail(t *testing.T) {
	router, _ := newTestRouter(t)
	registered := registerAlice(t, router)

	for _, identifier := range []string{"alice", "alice@example.com"} {
		w := post(t, router, "/api/auth/login", auth.LoginRequest{
			Identifier: identifier,
			Password:   "secret123",
		})
		if w.Code != http.StatusOK {
			t.Fatalf("login by %q: expected 200, got %d: %s", identifier, w.Code, w.Body.String())
		}
		if resp := decodeToken(t, w); resp.User.ID != registered.User.ID {
			t.Errorf("login by %q returned a different user", identifier)
		}
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	router, _ := newTestRouter(t)
	registerAlice(t, router)

	w := post(t, router, "/api/auth/login", auth.LoginRequest{Identifier: "alice", Password: "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", w.Code)
	}

	w = post(t, router, "/api/auth/login", auth.LoginRequest{Identifier: "nobody", Password: "secret123"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unknown user: expected 401, got %d", w.Code)
	}
}

// --- Wallet login ---

const testWallet = "0xAbCdEf1234567890aBcDeF1234567890abCDef12"

func TestWallet_ProvisionsOnFirstSight(t *testing.T) {
	router, _ := newTestRouter(t)

	w := post(t, router, "/api/auth/metamask", auth.WalletRequest{WalletAddress: testWallet})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeToken(t, w)
	if resp.User.Name != "User-AbCdEf" {
		t.Errorf("expected generated name User-AbCdEf, got %q", resp.User.Name)
	}
	if resp.User.WalletAddress != testWallet {
		t.Errorf("wallet address not stored: %+v", resp.User)
	}

	// Same wallet logs back into the same account.
	w = post(t, router, "/api/auth/metamask", auth.WalletRequest{WalletAddress: testWallet})
	if w.Code != http.StatusOK {
		t.Fatalf("second wallet login: expected 200, got %d", w.Code)
	}
	if again := decodeToken(t, w); again.User.ID != resp.User.ID {
		t.Error("second wallet login provisioned a new account")
	}
}

func TestWallet_NameCollisionGetsSuffix(t *testing.T) {
	router, _ := newTestRouter(t)

	w := post(t, router, "/api/auth/register", auth.RegisterRequest{
		Name:     "User-AbCdEf",
		Email:    "squatter@example.com",
		Password: "secret123",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("seed register failed: %d", w.Code)
	}

	w = post(t, router, "/api/auth/metamask", auth.WalletRequest{WalletAddress: testWallet})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp := decodeToken(t, w); resp.User.Name != "User-AbCdEf-2" {
		t.Errorf("expected suffixed name User-AbCdEf-2, got %q", resp.User.Name)
	}
}

func TestWallet_InvalidAddress(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, addr := range []string{"", "0x123", "not-an-address", "0xZZcdEf1234567890aBcDeF1234567890abCDef12"} {
		w := post(t, router, "/api/auth/metamask", auth.WalletRequest{WalletAddress: addr})
		if w.Code != http.StatusBadRequest {
			t.Errorf("address %q: expected 400, got %d", addr, w.Code)
		}
	}
}

// --- Middleware ---

func TestMiddleware(t *testing.T) {
	router, _ := newTestRouter(t)
	resp := registerAlice(t, router)

	req := httptest.NewRequest("GET", "/api/whoami", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no header: expected 401, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/api/whoami", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: expected 401, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/api/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("valid token: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var who map[string]string
	json.Unmarshal(w.Body.Bytes(), &who)
	if who["user_id"] != resp.User.ID {
		t.Errorf("expected user %s, got %q", resp.User.ID, who["user_id"])
	}
}
