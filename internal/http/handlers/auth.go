package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/campushub/accounts/internal/auth"
	"github.com/campushub/accounts/internal/config"
	"github.com/campushub/accounts/internal/domain/user"
	"github.com/campushub/accounts/internal/http/middlewares"
	repo "github.com/campushub/accounts/internal/repo/mongo"
	"github.com/campushub/accounts/internal/security"
	"github.com/gin-gonic/gin"
)

// UserStore is the credential store as the session handlers see it. The
// mongo repo implements it; tests substitute a fake.
type UserStore interface {
	Create(ctx context.Context, rollNo, name, email, passwordHash string) (user.User, error)
	ExistsByEmailOrRoll(ctx context.Context, email, rollNo string) (bool, error)
	GetByEmailOrRollWithPassword(ctx context.Context, email, rollNo string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	GetByIDWithRefreshToken(ctx context.Context, id string) (user.User, error)
	GetByIDWithPassword(ctx context.Context, id string) (user.User, error)
	SetRefreshToken(ctx context.Context, id, token string) error
	ClearRefreshToken(ctx context.Context, id string) error
	UpdateProfile(ctx context.Context, id, name, email string) (user.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

type TokenManager interface {
	GenerateAccessToken(userID, rollNo, email, name string) (string, error)
	GenerateRefreshToken(userID string) (string, error)
	VerifyRefreshToken(token string) (*auth.RefreshClaims, error)
	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}

type AuthHandler struct {
	users UserStore
	jwt   TokenManager
	cfg   config.Config
}

func NewAuthHandler(users UserStore, jwt TokenManager, cfg config.Config) *AuthHandler {
	return &AuthHandler{
		users: users,
		jwt:   jwt,
		cfg:   cfg,
	}
}

type RegisterRequest struct {
	RollNo   string `json:"roll_no" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email_id" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email_id"`
	RollNo   string `json:"roll_no"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	// binding catches absent fields; whitespace-only ones get here
	if strings.TrimSpace(req.RollNo) == "" || strings.TrimSpace(req.Name) == "" ||
		strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Password) == "" {
		RespondBadRequest(ctx, "All fields are required")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	// fast path; the unique indexes are the real guard against the
	// concurrent-register race
	exists, err := h.users.ExistsByEmailOrRoll(cctx, req.Email, req.RollNo)

	if err != nil {
		RespondInternal(ctx, "Something went wrong while registering user")
		return
	}

	if exists {
		RespondConflict(ctx, "User with email or roll number already exists")
		return
	}

	hash, err := security.HashPassword(req.Password)

	if err != nil {
		RespondInternal(ctx, "Something went wrong while registering user")
		return
	}

	created, err := h.users.Create(cctx, req.RollNo, req.Name, req.Email, hash)

	if err != nil {
		if errors.Is(err, repo.ErrDuplicateUser) {
			RespondConflict(ctx, "User with email or roll number already exists")
			return
		}

		RespondInternal(ctx, "Something went wrong while registering user")
		return
	}

	Respond(ctx, http.StatusCreated, created.Public(), "User registered successfully")
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	if req.Email == "" && req.RollNo == "" {
		RespondBadRequest(ctx, "Email or Roll Number is required")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	foundUser, err := h.users.GetByEmailOrRollWithPassword(cctx, req.Email, req.RollNo)

	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			RespondNotFound(ctx, "User does not exist")
			return
		}

		RespondInternal(ctx, "Something went wrong while logging in")
		return
	}

	err = security.CheckPassword(foundUser.PasswordHash, req.Password)

	if err != nil {
		RespondUnauthorized(ctx, "Invalid credentials")
		return
	}

	accessToken, refreshToken, err := h.issueTokenPair(cctx, foundUser)

	if err != nil {
		RespondInternal(ctx, "Something went wrong while generating tokens")
		return
	}

	h.setAuthCookies(ctx, accessToken, refreshToken)

	Respond(ctx, http.StatusOK, gin.H{
		"user":         foundUser.Public(),
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
	}, "User logged in successfully")
}

func (h *AuthHandler) Refresh(ctx *gin.Context) {
	incoming := h.incomingRefreshToken(ctx)

	if incoming == "" {
		RespondUnauthorized(ctx, "Unauthorized request")
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(incoming)

	if err != nil {
		RespondUnauthorized(ctx, "Invalid refresh token")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	foundUser, err := h.users.GetByIDWithRefreshToken(cctx, claims.UserID)

	if err != nil {
		RespondUnauthorized(ctx, "Invalid refresh token")
		return
	}

	// byte-for-byte match against the stored value; a superseded token
	// fails here even though its signature still verifies
	if foundUser.RefreshToken == "" ||
		subtle.ConstantTimeCompare([]byte(incoming), []byte(foundUser.RefreshToken)) != 1 {
		RespondUnauthorized(ctx, "Refresh token is expired or used")
		return
	}

	accessToken, refreshToken, err := h.issueTokenPair(cctx, foundUser)

	if err != nil {
		RespondInternal(ctx, "Something went wrong while generating tokens")
		return
	}

	h.setAuthCookies(ctx, accessToken, refreshToken)

	Respond(ctx, http.StatusOK, gin.H{
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
	}, "Access token refreshed")
}

func (h *AuthHandler) Logout(ctx *gin.Context) {
	u, ok := middlewares.UserFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "Unauthorized request")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	err := h.users.ClearRefreshToken(cctx, u.ID)

	// logging out an already logged-out (or meanwhile deleted) user is
	// not an error
	if err != nil && !errors.Is(err, repo.ErrUserNotFound) {
		RespondInternal(ctx, "Something went wrong while logging out")
		return
	}

	h.clearAuthCookies(ctx)

	Respond(ctx, http.StatusOK, gin.H{}, "User logged out successfully")
}

// issueTokenPair mints a fresh access/refresh pair and persists the new
// refresh token, rotating out whatever was stored before.
func (h *AuthHandler) issueTokenPair(ctx context.Context, u user.User) (string, string, error) {
	accessToken, err := h.jwt.GenerateAccessToken(u.ID.Hex(), u.RollNo, u.Email, u.Name)

	if err != nil {
		return "", "", err
	}

	refreshToken, err := h.jwt.GenerateRefreshToken(u.ID.Hex())

	if err != nil {
		return "", "", err
	}

	err = h.users.SetRefreshToken(ctx, u.ID.Hex(), refreshToken)

	if err != nil {
		return "", "", err
	}

	return accessToken, refreshToken, nil
}

func (h *AuthHandler) incomingRefreshToken(ctx *gin.Context) string {
	if cookie, err := ctx.Cookie(RefreshTokenCookie); err == nil && cookie != "" {
		return cookie
	}

	var req refreshRequest

	// body is optional; a bad or absent one just means no token
	_ = ctx.ShouldBindJSON(&req)

	return req.RefreshToken
}

const RefreshTokenCookie = "refreshToken"

func (h *AuthHandler) setAuthCookies(ctx *gin.Context, accessToken, refreshToken string) {
	secure := h.cfg.Env == "prod"

	ctx.SetSameSite(http.SameSiteStrictMode)

	ctx.SetCookie(
		middlewares.AccessTokenCookie,
		accessToken,
		int(h.jwt.AccessTTL().Seconds()),
		"/",
		"",
		secure,
		true, // HttpOnly.
	)

	ctx.SetCookie(
		RefreshTokenCookie,
		refreshToken,
		int(h.jwt.RefreshTTL().Seconds()),
		"/",
		"",
		secure,
		true,
	)
}

func (h *AuthHandler) clearAuthCookies(ctx *gin.Context) {
	secure := h.cfg.Env == "prod"

	ctx.SetSameSite(http.SameSiteStrictMode)

	ctx.SetCookie(middlewares.AccessTokenCookie, "", -1, "/", "", secure, true)
	ctx.SetCookie(RefreshTokenCookie, "", -1, "/", "", secure, true)
}
