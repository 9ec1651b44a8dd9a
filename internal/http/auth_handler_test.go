package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"otp-auth/internal/clock"
	"otp-auth/internal/repository"
	"otp-auth/internal/service"
)

var codePattern = regexp.MustCompile(`>(\d{6})</h2>`)

type mockEmailSender struct {
	mu       sync.Mutex
	lastTo   string
	lastBody string
	sent     int
	err      error
}

func (m *mockEmailSender) Send(_ context.Context, toEmail, _, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTo = toEmail
	m.lastBody = htmlBody
	m.sent++
	return m.err
}

func (m *mockEmailSender) code(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	match := codePattern.FindStringSubmatch(m.lastBody)
	if match == nil {
		t.Fatalf("no code in last email")
	}
	return match[1]
}

type testServer struct {
	router *gin.Engine
	sender *mockEmailSender
	clock  *clock.Fake
}

func setupRouter(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	clk := clock.NewFake(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))
	sender := &mockEmailSender{}
	otp := service.NewOTPService(zap.NewNop(), repository.NewMemoryCodeRepository(), sender, clk, 5*time.Minute, "otp-secret")
	jwtSvc := service.NewJWTService("jwt-secret", 0, 0, clk)
	auth := service.NewAuthService(zap.NewNop(), repository.NewMemoryUserRepository(), otp, service.NewBcryptHasher(bcrypt.MinCost), jwtSvc, clk)
	r := NewRouter(zap.NewNop(), NewAuthHandler(zap.NewNop(), auth), jwtSvc, nil)
	return &testServer{router: r, sender: sender, clock: clk}
}

type response struct {
	StatusCode           int    `json:"status_code"`
	Details              string `json:"details"`
	IsSuccess            bool   `json:"is_success"`
	Token                string `json:"token"`
	ResetToken           string `json:"reset_token"`
	Error                string `json:"error"`
	VerificationRequired bool   `json:"verification_required"`
	User                 *struct {
		ID         string `json:"id"`
		Email      string `json:"email"`
		Name       string `json:"name"`
		Username   string `json:"username"`
		Bio        string `json:"bio"`
		IsVerified bool   `json:"is_verified"`
	} `json:"user"`
}

func performRequest(r http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) response {
	t.Helper()
	var out response
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	if out.StatusCode != rec.Code {
		t.Fatalf("envelope status %d differs from http status %d", out.StatusCode, rec.Code)
	}
	return out
}

func (s *testServer) registerAndVerify(t *testing.T, email, password string) string {
	t.Helper()
	rec := performRequest(s.router, http.MethodPost, "/auth/register", map[string]string{"email": email, "password": password})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", rec.Code)
	}
	rec = performRequest(s.router, http.MethodPost, "/auth/verify-email", map[string]string{"email": email, "code": s.sender.code(t)})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d", rec.Code)
	}
	return decode(t, rec).Token
}

func TestAuthHandler_RegisterVerifyLoginProfile(t *testing.T) {
	s := setupRouter(t)

	rec := performRequest(s.router, http.MethodPost, "/auth/register", map[string]string{
		"email":    "a@x.com",
		"password": "P@ssw0rd",
		"name":     "Ana",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}
	body := decode(t, rec)
	if !body.IsSuccess || body.Token != "" || body.User == nil || body.User.IsVerified {
		t.Fatalf("unexpected register body %+v", body)
	}
	if s.sender.lastTo != "a@x.com" {
		t.Fatalf("expected email to a@x.com")
	}

	rec = performRequest(s.router, http.MethodPost, "/auth/login", map[string]string{"email": "a@x.com", "password": "P@ssw0rd"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202 before verification, got %d", rec.Code)
	}
	if body := decode(t, rec); !body.VerificationRequired || body.Token != "" {
		t.Fatalf("unexpected login body %+v", body)
	}

	rec = performRequest(s.router, http.MethodPost, "/auth/verify-email", map[string]string{"email": "a@x.com", "code": s.sender.code(t)})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if body := decode(t, rec); body.Token == "" || body.User == nil || !body.User.IsVerified {
		t.Fatalf("unexpected verify body %+v", body)
	}

	rec = performRequest(s.router, http.MethodPost, "/auth/login", map[string]string{"email": "a@x.com", "password": "P@ssw0rd"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	token := decode(t, rec).Token
	if token == "" {
		t.Fatalf("expected token")
	}

	rec = performRequest(s.router, http.MethodGet, "/users/profile", nil, "Authorization", "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if body := decode(t, rec); body.User == nil || body.User.Email != "a@x.com" || body.User.Name != "Ana" {
		t.Fatalf("unexpected profile %+v", body)
	}
}

func TestAuthHandler_RegisterDuplicate(t *testing.T) {
	s := setupRouter(t)
	req := map[string]string{"email": "b@x.com", "password": "pw"}
	if rec := performRequest(s.router, http.MethodPost, "/auth/register", req); rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}
	rec := performRequest(s.router, http.MethodPost, "/auth/register", req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}
	if body := decode(t, rec); body.Error != "DUPLICATE_EMAIL" || body.IsSuccess {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestAuthHandler_InvalidRequests(t *testing.T) {
	s := setupRouter(t)
	cases := []struct {
		path string
		body map[string]string
	}{
		{"/auth/register", map[string]string{"email": "not-an-email", "password": "pw"}},
		{"/auth/register", map[string]string{"email": "a@x.com"}},
		{"/auth/login", map[string]string{}},
		{"/auth/verify-email", map[string]string{"email": "a@x.com"}},
		{"/auth/forgot-password", map[string]string{}},
		{"/auth/reset-password", map[string]string{"email": "a@x.com"}},
		{"/auth/resend-code", map[string]string{"email": "nope"}},
	}
	for _, tc := range cases {
		rec := performRequest(s.router, http.MethodPost, tc.path, tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", tc.path, rec.Code)
		}
		if body := decode(t, rec); body.Error != "VALIDATION" {
			t.Fatalf("%s: expected VALIDATION, got %+v", tc.path, body)
		}
	}
}

func TestAuthHandler_VerifyErrors(t *testing.T) {
	s := setupRouter(t)
	rec := performRequest(s.router, http.MethodPost, "/auth/verify-email", map[string]string{"email": "missing@x.com", "code": "000000"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}

	performRequest(s.router, http.MethodPost, "/auth/register", map[string]string{"email": "a@x.com", "password": "pw"})
	code := s.sender.code(t)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	rec = performRequest(s.router, http.MethodPost, "/auth/verify-email", map[string]string{"email": "a@x.com", "code": wrong})
	if rec.Code != http.StatusBadRequest || decode(t, rec).Error != "MISMATCH" {
		t.Fatalf("expected 400 MISMATCH, got %d", rec.Code)
	}

	s.clock.Advance(5 * time.Minute)
	rec = performRequest(s.router, http.MethodPost, "/auth/verify-email", map[string]string{"email": "a@x.com", "code": code})
	if rec.Code != http.StatusGone || decode(t, rec).Error != "EXPIRED" {
		t.Fatalf("expected 410 EXPIRED, got %d", rec.Code)
	}
}

func TestAuthHandler_LoginInvalidCredentials(t *testing.T) {
	s := setupRouter(t)
	s.registerAndVerify(t, "a@x.com", "secret")

	for _, body := range []map[string]string{
		{"email": "a@x.com", "password": "wrong"},
		{"email": "ghost@x.com", "password": "secret"},
	} {
		rec := performRequest(s.router, http.MethodPost, "/auth/login", body)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected status 401, got %d", rec.Code)
		}
		if got := decode(t, rec); got.Error != "INVALID_CREDENTIALS" || got.Token != "" {
			t.Fatalf("unexpected body %+v", got)
		}
	}
}

func TestAuthHandler_PasswordResetFlow(t *testing.T) {
	s := setupRouter(t)
	s.registerAndVerify(t, "a@x.com", "old-pass")

	rec := performRequest(s.router, http.MethodPost, "/auth/reset-password", map[string]string{
		"email":        "a@x.com",
		"new_password": "new-pass",
	})
	if rec.Code != http.StatusUnauthorized || decode(t, rec).Error != "UNAUTHORIZED_RESET" {
		t.Fatalf("expected 401 UNAUTHORIZED_RESET, got %d", rec.Code)
	}

	rec = performRequest(s.router, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "a@x.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	rec = performRequest(s.router, http.MethodPost, "/auth/verify-email", map[string]string{
		"email":   "a@x.com",
		"code":    s.sender.code(t),
		"purpose": "RESET_PASSWORD",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	verify := decode(t, rec)
	if verify.ResetToken == "" || verify.Token != "" {
		t.Fatalf("expected reset token only, got %+v", verify)
	}

	rec = performRequest(s.router, http.MethodPost, "/auth/reset-password", map[string]string{
		"email":        "a@x.com",
		"new_password": "new-pass",
		"reset_token":  verify.ResetToken,
	})
	if rec.Code != http.StatusOK || decode(t, rec).Token == "" {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}

	if rec := performRequest(s.router, http.MethodPost, "/auth/login", map[string]string{"email": "a@x.com", "password": "new-pass"}); rec.Code != http.StatusOK {
		t.Fatalf("new password: expected 200, got %d", rec.Code)
	}
	if rec := performRequest(s.router, http.MethodPost, "/auth/login", map[string]string{"email": "a@x.com", "password": "old-pass"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("old password: expected 401, got %d", rec.Code)
	}
}

func TestAuthHandler_ForgotPasswordUnknownEmail(t *testing.T) {
	s := setupRouter(t)
	rec := performRequest(s.router, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "ghost@x.com"})
	if rec.Code != http.StatusOK || !decode(t, rec).IsSuccess {
		t.Fatalf("expected generic 200, got %d", rec.Code)
	}
	if s.sender.sent != 0 {
		t.Fatalf("no email must be sent")
	}
}

func TestAuthHandler_ResendCode(t *testing.T) {
	s := setupRouter(t)
	performRequest(s.router, http.MethodPost, "/auth/register", map[string]string{"email": "a@x.com", "password": "pw"})
	rec := performRequest(s.router, http.MethodPost, "/auth/resend-code", map[string]string{"email": "a@x.com"})
	if rec.Code != http.StatusOK || s.sender.sent != 2 {
		t.Fatalf("expected resend, got %d with %d emails", rec.Code, s.sender.sent)
	}
	rec = performRequest(s.router, http.MethodPost, "/auth/resend-code", map[string]string{"email": "a@x.com", "purpose": "NOPE"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for bad purpose, got %d", rec.Code)
	}
}

func TestAuthHandler_EmailSendFailure(t *testing.T) {
	s := setupRouter(t)
	s.sender.err = errors.New("smtp down")

	rec := performRequest(s.router, http.MethodPost, "/auth/register", map[string]string{"email": "a@x.com", "password": "pw"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
	if body := decode(t, rec); body.Error != "INTERNAL" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestAuthHandler_UpdateProfile(t *testing.T) {
	s := setupRouter(t)
	token := s.registerAndVerify(t, "a@x.com", "secret")
	other := s.registerAndVerify(t, "b@x.com", "secret")
	auth := []string{"Authorization", "Bearer " + token}

	rec := performRequest(s.router, http.MethodPut, "/users/profile", map[string]string{
		"name":     "Ana",
		"username": "Ana_01",
		"bio":      "hola",
	}, auth...)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body.User == nil || body.User.Username != "ana_01" || body.User.Bio != "hola" || body.User.Name != "Ana" {
		t.Fatalf("unexpected update body %+v", body)
	}

	rec = performRequest(s.router, http.MethodGet, "/users/profile", nil, auth...)
	if body := decode(t, rec); body.User == nil || body.User.Username != "ana_01" {
		t.Fatalf("profile should reflect update, got %+v", body)
	}

	rec = performRequest(s.router, http.MethodPut, "/users/profile", map[string]string{"username": "ANA_01"}, "Authorization", "Bearer "+other)
	if rec.Code != http.StatusConflict || decode(t, rec).Error != "DUPLICATE_USERNAME" {
		t.Fatalf("expected 409 DUPLICATE_USERNAME, got %d", rec.Code)
	}

	rec = performRequest(s.router, http.MethodPut, "/users/profile", map[string]string{"username": "ab"}, auth...)
	if rec.Code != http.StatusBadRequest || decode(t, rec).Error != "VALIDATION" {
		t.Fatalf("expected 400 VALIDATION, got %d", rec.Code)
	}

	rec = performRequest(s.router, http.MethodPut, "/users/profile", map[string]string{"name": "x"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := NewAuthHandler(nil, nil)

	r := NewRouter(zap.NewNop(), auth, nil, nil)
	if rec := performRequest(r, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	r = NewRouter(zap.NewNop(), auth, nil, func(context.Context) error { return errors.New("db down") })
	if rec := performRequest(r, http.MethodGet, "/healthz", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
}
