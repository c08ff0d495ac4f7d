package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/campushub/accounts/internal/auth"
	"github.com/campushub/accounts/internal/config"
	"github.com/campushub/accounts/internal/domain/user"
	"github.com/campushub/accounts/internal/http/handlers"
	"github.com/campushub/accounts/internal/http/middlewares"
	repo "github.com/campushub/accounts/internal/repo/mongo"
	"github.com/campushub/accounts/internal/security"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Make sure Gin does not spam the console during the test

func init() {
	gin.SetMode(gin.TestMode)
}

// Fake implementation of the handlers.UserStore interface

type fakeUserStore struct {
	createFn          func(ctx context.Context, rollNo, name, email, passwordHash string) (user.User, error)
	existsFn          func(ctx context.Context, email, rollNo string) (bool, error)
	getByIdentifierFn func(ctx context.Context, email, rollNo string) (user.User, error)
	getByIDFn         func(ctx context.Context, id string) (user.User, error)
	getWithRefreshFn  func(ctx context.Context, id string) (user.User, error)
	getWithPasswordFn func(ctx context.Context, id string) (user.User, error)
	setRefreshFn      func(ctx context.Context, id, token string) error
	clearRefreshFn    func(ctx context.Context, id string) error
	updateProfileFn   func(ctx context.Context, id, name, email string) (user.User, error)
	updatePasswordFn  func(ctx context.Context, id, passwordHash string) error
}

func (f *fakeUserStore) Create(ctx context.Context, rollNo, name, email, passwordHash string) (user.User, error) {
	if f.createFn != nil {
		return f.createFn(ctx, rollNo, name, email, passwordHash)
	}
	return user.User{}, nil
}

func (f *fakeUserStore) ExistsByEmailOrRoll(ctx context.Context, email, rollNo string) (bool, error) {
	if f.existsFn != nil {
		return f.existsFn(ctx, email, rollNo)
	}
	return false, nil
}

func (f *fakeUserStore) GetByEmailOrRollWithPassword(ctx context.Context, email, rollNo string) (user.User, error) {
	if f.getByIdentifierFn != nil {
		return f.getByIdentifierFn(ctx, email, rollNo)
	}
	return user.User{}, nil
}

func (f *fakeUserStore) GetByID(ctx context.Context, id string) (user.User, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return user.User{}, nil
}

func (f *fakeUserStore) GetByIDWithRefreshToken(ctx context.Context, id string) (user.User, error) {
	if f.getWithRefreshFn != nil {
		return f.getWithRefreshFn(ctx, id)
	}
	return user.User{}, nil
}

func (f *fakeUserStore) GetByIDWithPassword(ctx context.Context, id string) (user.User, error) {
	if f.getWithPasswordFn != nil {
		return f.getWithPasswordFn(ctx, id)
	}
	return user.User{}, nil
}

func (f *fakeUserStore) SetRefreshToken(ctx context.Context, id, token string) error {
	if f.setRefreshFn != nil {
		return f.setRefreshFn(ctx, id, token)
	}
	return nil
}

func (f *fakeUserStore) ClearRefreshToken(ctx context.Context, id string) error {
	if f.clearRefreshFn != nil {
		return f.clearRefreshFn(ctx, id)
	}
	return nil
}

func (f *fakeUserStore) UpdateProfile(ctx context.Context, id, name, email string) (user.User, error) {
	if f.updateProfileFn != nil {
		return f.updateProfileFn(ctx, id, name, email)
	}
	return user.User{}, nil
}

func (f *fakeUserStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if f.updatePasswordFn != nil {
		return f.updatePasswordFn(ctx, id, passwordHash)
	}
	return nil
}

// test fixtures

func testManager() *auth.Manager {
	return auth.NewManager("test-access-secret", "test-refresh-secret", 15*time.Minute, 240*time.Hour)
}

func testUser(t *testing.T, password string) user.User {
	t.Helper()

	hash, err := security.HashPassword(password)

	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	return user.User{
		ID:           primitive.NewObjectID(),
		RollNo:       "100",
		Name:         "Ada",
		Email:        "ada@x.com",
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
}

// small helper that returns the gin engine to mount one handler per test

func setupRouter(method, path string, h gin.HandlerFunc, mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()

	hs := append(mw, h)

	r.Handle(method, path, hs...)

	return r
}

// withUser fakes what RequireAuth does: attach the public view.

func withUser(u user.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middlewares.CtxUser, u.Public())
		c.Next()
	}
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader

	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
	Errors     []interface{}   `json:"errors"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()

	var env envelope

	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, w.Body.String())
	}

	return env
}

// Register tests

func TestRegister(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		exists     bool
		createErr  error
		wantStatus int
	}{
		{
			name:       "success",
			body:       `{"roll_no":"100","name":"Ada","email_id":"ada@x.com","password":"password1"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "missing field",
			body:       `{"roll_no":"100","name":"Ada","password":"password1"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "whitespace only name",
			body:       `{"roll_no":"100","name":"   ","email_id":"ada@x.com","password":"password1"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad email",
			body:       `{"roll_no":"100","name":"Ada","email_id":"not-an-email","password":"password1"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "short password",
			body:       `{"roll_no":"100","name":"Ada","email_id":"ada@x.com","password":"short"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "duplicate via fast path",
			body:       `{"roll_no":"100","name":"Ada","email_id":"ada@x.com","password":"password1"}`,
			exists:     true,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "duplicate via unique index",
			body:       `{"roll_no":"100","name":"Ada","email_id":"ada@x.com","password":"password1"}`,
			createErr:  repo.ErrDuplicateUser,
			wantStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeUserStore{
				existsFn: func(ctx context.Context, email, rollNo string) (bool, error) {
					return tt.exists, nil
				},
				createFn: func(ctx context.Context, rollNo, name, email, passwordHash string) (user.User, error) {
					if tt.createErr != nil {
						return user.User{}, tt.createErr
					}
					return user.User{
						ID:     primitive.NewObjectID(),
						RollNo: rollNo,
						Name:   name,
						Email:  email,
					}, nil
				},
			}

			h := handlers.NewAuthHandler(store, testManager(), config.Config{Env: "test"})
			r := setupRouter(http.MethodPost, "/register", h.Register)

			w := doJSON(t, r, http.MethodPost, "/register", tt.body)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}

			env := decodeEnvelope(t, w)

			if env.Success != (tt.wantStatus == http.StatusCreated) {
				t.Fatalf("success = %v for status %d", env.Success, w.Code)
			}
		})
	}
}

func TestRegister_StoresHashNotPlaintext(t *testing.T) {
	var storedHash string

	store := &fakeUserStore{
		createFn: func(ctx context.Context, rollNo, name, email, passwordHash string) (user.User, error) {
			storedHash = passwordHash
			return user.User{ID: primitive.NewObjectID(), RollNo: rollNo, Name: name, Email: email}, nil
		},
	}

	h := handlers.NewAuthHandler(store, testManager(), config.Config{Env: "test"})
	r := setupRouter(http.MethodPost, "/register", h.Register)

	w := doJSON(t, r, http.MethodPost, "/register",
		`{"roll_no":"100","name":"Ada","email_id":"ada@x.com","password":"password1"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d (body %s)", w.Code, w.Body.String())
	}

	if storedHash == "password1" || storedHash == "" {
		t.Fatalf("plaintext or empty password reached the store: %q", storedHash)
	}

	if err := security.CheckPassword(storedHash, "password1"); err != nil {
		t.Fatalf("stored hash does not verify: %v", err)
	}

	// public view must not leak credential fields
	if strings.Contains(w.Body.String(), "password") || strings.Contains(w.Body.String(), "refreshToken") {
		t.Fatalf("credential fields leaked in response: %s", w.Body.String())
	}
}

// Login tests

func TestLogin(t *testing.T) {
	u := testUser(t, "password1")

	tests := []struct {
		name       string
		body       string
		notFound   bool
		wantStatus int
	}{
		{
			name:       "success with email",
			body:       `{"email_id":"ada@x.com","password":"password1"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "success with roll number",
			body:       `{"roll_no":"100","password":"password1"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "no identifier",
			body:       `{"password":"password1"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown user",
			body:       `{"email_id":"ghost@x.com","password":"password1"}`,
			notFound:   true,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "wrong password",
			body:       `{"email_id":"ada@x.com","password":"password2"}`,
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var persisted string

			store := &fakeUserStore{
				getByIdentifierFn: func(ctx context.Context, email, rollNo string) (user.User, error) {
					if tt.notFound {
						return user.User{}, repo.ErrUserNotFound
					}
					return u, nil
				},
				setRefreshFn: func(ctx context.Context, id, token string) error {
					persisted = token
					return nil
				},
			}

			h := handlers.NewAuthHandler(store, testManager(), config.Config{Env: "test"})
			r := setupRouter(http.MethodPost, "/login", h.Login)

			w := doJSON(t, r, http.MethodPost, "/login", tt.body)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantStatus != http.StatusOK {
				return
			}

			env := decodeEnvelope(t, w)

			var data struct {
				User         map[string]interface{} `json:"user"`
				AccessToken  string                 `json:"accessToken"`
				RefreshToken string                 `json:"refreshToken"`
			}

			if err := json.Unmarshal(env.Data, &data); err != nil {
				t.Fatalf("decode data: %v", err)
			}

			if data.AccessToken == "" || data.RefreshToken == "" {
				t.Fatalf("tokens missing in response: %s", env.Data)
			}

			// the token returned is the token now stored
			if persisted != data.RefreshToken {
				t.Fatalf("stored refresh token %q != returned %q", persisted, data.RefreshToken)
			}

			if _, ok := data.User["password"]; ok {
				t.Fatalf("password leaked in login response")
			}

			if _, ok := data.User["refreshToken"]; ok {
				t.Fatalf("refresh token leaked in user view")
			}

			cookies := w.Result().Cookies()

			var gotAccess, gotRefresh bool

			for _, c := range cookies {
				switch c.Name {
				case "accessToken":
					gotAccess = c.HttpOnly
				case "refreshToken":
					gotRefresh = c.HttpOnly
				}
			}

			if !gotAccess || !gotRefresh {
				t.Fatalf("expected http-only accessToken and refreshToken cookies, got %v", cookies)
			}
		})
	}
}

// Refresh tests

func TestRefresh_RotatesToken(t *testing.T) {
	u := testUser(t, "password1")
	m := testManager()

	original, err := m.GenerateRefreshToken(u.ID.Hex())

	if err != nil {
		t.Fatalf("generate refresh token: %v", err)
	}

	u.RefreshToken = original

	stored := original

	store := &fakeUserStore{
		getWithRefreshFn: func(ctx context.Context, id string) (user.User, error) {
			cur := u
			cur.RefreshToken = stored
			return cur, nil
		},
		setRefreshFn: func(ctx context.Context, id, token string) error {
			stored = token
			return nil
		},
	}

	h := handlers.NewAuthHandler(store, m, config.Config{Env: "test"})
	r := setupRouter(http.MethodPost, "/refresh-token", h.Refresh)

	cookie := &http.Cookie{Name: "refreshToken", Value: original}

	// first use succeeds and rotates
	w := doJSON(t, r, http.MethodPost, "/refresh-token", "", cookie)

	if w.Code != http.StatusOK {
		t.Fatalf("first refresh status = %d (body %s)", w.Code, w.Body.String())
	}

	if stored == original {
		t.Fatalf("refresh token was not rotated")
	}

	env := decodeEnvelope(t, w)

	var data struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}

	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}

	if data.RefreshToken == original {
		t.Fatalf("new refresh token equals the old one")
	}

	// reusing the superseded token must fail
	w = doJSON(t, r, http.MethodPost, "/refresh-token", "", cookie)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh status = %d, want 401 (body %s)", w.Code, w.Body.String())
	}
}

func TestRefresh_Unauthorized(t *testing.T) {
	u := testUser(t, "password1")
	m := testManager()

	valid, err := m.GenerateRefreshToken(u.ID.Hex())

	if err != nil {
		t.Fatalf("generate refresh token: %v", err)
	}

	tests := []struct {
		name     string
		cookie   *http.Cookie
		body     string
		userGone bool
		stored   string
	}{
		{
			name: "missing token",
		},
		{
			name:   "malformed token",
			cookie: &http.Cookie{Name: "refreshToken", Value: "not.a.jwt"},
		},
		{
			name:     "user no longer exists",
			cookie:   &http.Cookie{Name: "refreshToken", Value: valid},
			userGone: true,
		},
		{
			name:   "token mismatch after logout",
			cookie: &http.Cookie{Name: "refreshToken", Value: valid},
			stored: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeUserStore{
				getWithRefreshFn: func(ctx context.Context, id string) (user.User, error) {
					if tt.userGone {
						return user.User{}, repo.ErrUserNotFound
					}
					cur := u
					cur.RefreshToken = tt.stored
					return cur, nil
				},
			}

			h := handlers.NewAuthHandler(store, m, config.Config{Env: "test"})
			r := setupRouter(http.MethodPost, "/refresh-token", h.Refresh)

			var cookies []*http.Cookie

			if tt.cookie != nil {
				cookies = append(cookies, tt.cookie)
			}

			w := doJSON(t, r, http.MethodPost, "/refresh-token", tt.body, cookies...)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401 (body %s)", w.Code, w.Body.String())
			}
		})
	}
}

func TestRefresh_TokenFromBody(t *testing.T) {
	u := testUser(t, "password1")
	m := testManager()

	original, err := m.GenerateRefreshToken(u.ID.Hex())

	if err != nil {
		t.Fatalf("generate refresh token: %v", err)
	}

	store := &fakeUserStore{
		getWithRefreshFn: func(ctx context.Context, id string) (user.User, error) {
			cur := u
			cur.RefreshToken = original
			return cur, nil
		},
	}

	h := handlers.NewAuthHandler(store, m, config.Config{Env: "test"})
	r := setupRouter(http.MethodPost, "/refresh-token", h.Refresh)

	w := doJSON(t, r, http.MethodPost, "/refresh-token", `{"refreshToken":"`+original+`"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", w.Code, w.Body.String())
	}
}

// Logout tests

func TestLogout(t *testing.T) {
	u := testUser(t, "password1")

	var clearedID string

	store := &fakeUserStore{
		clearRefreshFn: func(ctx context.Context, id string) error {
			clearedID = id
			return nil
		},
	}

	h := handlers.NewAuthHandler(store, testManager(), config.Config{Env: "test"})
	r := setupRouter(http.MethodPost, "/logout", h.Logout, withUser(u))

	w := doJSON(t, r, http.MethodPost, "/logout", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", w.Code, w.Body.String())
	}

	if clearedID != u.ID.Hex() {
		t.Fatalf("cleared id = %q, want %q", clearedID, u.ID.Hex())
	}

	// both cookies must be expired
	var cleared int

	for _, c := range w.Result().Cookies() {
		if (c.Name == "accessToken" || c.Name == "refreshToken") && c.MaxAge < 0 {
			cleared++
		}
	}

	if cleared != 2 {
		t.Fatalf("expected both auth cookies cleared, got %v", w.Result().Cookies())
	}
}

func TestLogout_Idempotent(t *testing.T) {
	u := testUser(t, "password1")

	store := &fakeUserStore{
		clearRefreshFn: func(ctx context.Context, id string) error {
			// user already gone; still not an error for logout
			return repo.ErrUserNotFound
		},
	}

	h := handlers.NewAuthHandler(store, testManager(), config.Config{Env: "test"})
	r := setupRouter(http.MethodPost, "/logout", h.Logout, withUser(u))

	w := doJSON(t, r, http.MethodPost, "/logout", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", w.Code, w.Body.String())
	}
}
