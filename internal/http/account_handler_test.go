package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"user-auth/internal/password"
	"user-auth/internal/repository"
	"user-auth/internal/service"
)

type mockEmailSender struct {
	lastTo   string
	lastCode string
	err      error
}

func (m *mockEmailSender) SendVerificationOTP(_ context.Context, toEmail string, code string, _ time.Time) error {
	m.lastTo = toEmail
	m.lastCode = code
	return m.err
}

func setupAccountRouter(t *testing.T) (*gin.Engine, *mockEmailSender) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hasher, err := password.NewHasher(password.Params{MemoryKB: 8192, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	repo := repository.NewMemoryAccountRepository()
	sender := &mockEmailSender{}
	svc := service.NewAccountService(
		zap.NewNop(),
		repo,
		hasher,
		service.NewOTPManager(repo, 5*time.Minute),
		service.NewTokenService("secret", "user-auth", 30*time.Minute),
		sender,
	)
	return NewRouter(zap.NewNop(), NewAccountHandler(zap.NewNop(), svc)), sender
}

func doJSON(r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func signupAndLogin(t *testing.T, r *gin.Engine, sender *mockEmailSender) string {
	t.Helper()
	rec := doJSON(r, http.MethodPost, "/auth/signup/request", "", map[string]string{
		"username": "alice", "email": "alice@x.com", "password": "s3cret!",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("signup request: expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(r, http.MethodPost, "/auth/signup/verify", "", map[string]string{
		"email": "alice@x.com", "code": sender.lastCode,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup verify: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(r, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "alice", "password": "s3cret!",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	token, _ := decode(t, rec)["access_token"].(string)
	if token == "" {
		t.Fatalf("expected access token")
	}
	return token
}

func TestAccountHandler_FullFlow(t *testing.T) {
	r, sender := setupAccountRouter(t)

	rec := doJSON(r, http.MethodPost, "/auth/signup/request", "", map[string]string{
		"username": "alice", "email": "alice@x.com", "password": "s3cret!",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if sender.lastTo != "alice@x.com" || len(sender.lastCode) != 6 {
		t.Fatalf("expected otp dispatched, got %+v", sender)
	}

	rec = doJSON(r, http.MethodPost, "/auth/signup/verify", "", map[string]string{
		"email": "alice@x.com", "code": sender.lastCode,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	account, _ := decode(t, rec)["account"].(map[string]any)
	if account["username"] != "alice" || account["email"] != "alice@x.com" || account["id"] == "" {
		t.Fatalf("unexpected account body: %v", account)
	}
	if _, leaked := account["password_hash"]; leaked {
		t.Fatalf("password hash must not be exposed")
	}

	rec = doJSON(r, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "alice", "password": "s3cret!",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["token_type"] != "bearer" {
		t.Fatalf("expected bearer token type, got %v", body["token_type"])
	}
	if exp, _ := body["expires_in"].(float64); exp <= 0 || exp > 1800 {
		t.Fatalf("unexpected expires_in %v", body["expires_in"])
	}
	token := body["access_token"].(string)

	rec = doJSON(r, http.MethodGet, "/users/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	profile := decode(t, rec)
	if profile["username"] != "alice" || profile["email"] != "alice@x.com" {
		t.Fatalf("unexpected profile: %v", profile)
	}
	if bio, present := profile["bio"]; !present || bio != nil {
		t.Fatalf("expected bio null, got %v", profile)
	}

	rec = doJSON(r, http.MethodPut, "/users/me/bio", token, map[string]string{"bio": "hello"})
	if rec.Code != http.StatusOK || decode(t, rec)["bio"] != "hello" {
		t.Fatalf("expected bio set, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(r, http.MethodDelete, "/users/me/bio", token, nil)
	if rec.Code != http.StatusOK || decode(t, rec)["bio"] != nil {
		t.Fatalf("expected bio cleared, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAccountHandler_SignupErrors(t *testing.T) {
	r, sender := setupAccountRouter(t)
	signupAndLogin(t, r, sender)

	rec := doJSON(r, http.MethodPost, "/auth/signup/request", "", map[string]string{
		"username": "alice", "email": "another@x.com", "password": "pw",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	rec = doJSON(r, http.MethodPost, "/auth/signup/request", "", map[string]string{
		"username": "bob", "email": "not-an-email", "password": "pw",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/signup/request", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", rr.Code)
	}

	sender.err = errors.New("smtp down")
	rec = doJSON(r, http.MethodPost, "/auth/signup/request", "", map[string]string{
		"username": "bob", "email": "bob@x.com", "password": "pw",
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestAccountHandler_VerifyErrors(t *testing.T) {
	r, sender := setupAccountRouter(t)

	rec := doJSON(r, http.MethodPost, "/auth/signup/verify", "", map[string]string{
		"email": "ghost@x.com", "code": "123456",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = doJSON(r, http.MethodPost, "/auth/signup/request", "", map[string]string{
		"username": "bob", "email": "bob@x.com", "password": "pw",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	wrong := "000000"
	if sender.lastCode == wrong {
		wrong = "111111"
	}
	rec = doJSON(r, http.MethodPost, "/auth/signup/verify", "", map[string]string{
		"email": "bob@x.com", "code": wrong,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for wrong code, got %d", rec.Code)
	}
}

func TestAccountHandler_LoginFailuresAreIndistinguishable(t *testing.T) {
	r, sender := setupAccountRouter(t)
	signupAndLogin(t, r, sender)

	wrong := doJSON(r, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "nope"})
	unknown := doJSON(r, http.MethodPost, "/auth/login", "", map[string]string{"username": "ghost", "password": "nope"})
	if wrong.Code != http.StatusUnauthorized || unknown.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401s, got %d and %d", wrong.Code, unknown.Code)
	}
	if wrong.Body.String() != unknown.Body.String() {
		t.Fatalf("expected identical bodies, got %s vs %s", wrong.Body.String(), unknown.Body.String())
	}
}

func TestAccountHandler_ProfileRequiresValidToken(t *testing.T) {
	r, _ := setupAccountRouter(t)

	if rec := doJSON(r, http.MethodGet, "/users/me", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := doJSON(r, http.MethodGet, "/users/me", "not.a.token", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rec.Code)
	}
	if rec := doJSON(r, http.MethodDelete, "/users/me/bio", "not.a.token", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for clear with bad token, got %d", rec.Code)
	}
}

func TestAccountHandler_BioValidation(t *testing.T) {
	r, sender := setupAccountRouter(t)
	token := signupAndLogin(t, r, sender)

	cases := []any{
		map[string]string{"bio": ""},
		map[string]string{"bio": strings.Repeat("x", 1001)},
		map[string]string{},
	}
	for _, body := range cases {
		if rec := doJSON(r, http.MethodPost, "/users/me/bio", token, body); rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %v, got %d", body, rec.Code)
		}
	}

	rec := doJSON(r, http.MethodPost, "/users/me/bio", token, map[string]string{"bio": strings.Repeat("x", 1000)})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for 1000 chars, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	r, _ := setupAccountRouter(t)
	rec := doJSON(r, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("expected json content type, got %q", ct)
	}
}
