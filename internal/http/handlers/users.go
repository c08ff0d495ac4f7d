package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/campushub/accounts/internal/config"
	"github.com/campushub/accounts/internal/http/middlewares"
	repo "github.com/campushub/accounts/internal/repo/mongo"
	"github.com/campushub/accounts/internal/security"
	"github.com/gin-gonic/gin"
)

// UsersHandler serves the profile operations behind RequireAuth.
type UsersHandler struct {
	users UserStore
}

func NewUsersHandler(users UserStore) *UsersHandler {
	return &UsersHandler{users: users}
}

type UpdateAccountRequest struct {
	Name  string `json:"name"`
	Email string `json:"email_id" binding:"omitempty,email"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// CurrentUser returns the view RequireAuth already resolved; no extra
// store lookup.
func (h *UsersHandler) CurrentUser(ctx *gin.Context) {
	u, ok := middlewares.UserFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "Unauthorized request")
		return
	}

	Respond(ctx, http.StatusOK, u, "User details fetched successfully")
}

func (h *UsersHandler) UpdateAccount(ctx *gin.Context) {
	u, ok := middlewares.UserFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "Unauthorized request")
		return
	}

	var req UpdateAccountRequest

	if !BindJSON(ctx, &req) {
		return
	}

	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)

	if name == "" && email == "" {
		RespondBadRequest(ctx, "At least one field is required to update")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	updated, err := h.users.UpdateProfile(cctx, u.ID, name, email)

	if err != nil {
		if errors.Is(err, repo.ErrDuplicateUser) {
			RespondConflict(ctx, "Email is already in use")
			return
		}

		if errors.Is(err, repo.ErrUserNotFound) {
			RespondNotFound(ctx, "User does not exist")
			return
		}

		RespondInternal(ctx, "Something went wrong while updating account")
		return
	}

	Respond(ctx, http.StatusOK, updated.Public(), "User details updated successfully")
}

func (h *UsersHandler) ChangePassword(ctx *gin.Context) {
	u, ok := middlewares.UserFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "Unauthorized request")
		return
	}

	var req ChangePasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	if req.OldPassword == "" || req.NewPassword == "" {
		RespondBadRequest(ctx, "Both old and new passwords are required")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	full, err := h.users.GetByIDWithPassword(cctx, u.ID)

	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			RespondNotFound(ctx, "User does not exist")
			return
		}

		RespondInternal(ctx, "Something went wrong while updating password")
		return
	}

	err = security.CheckPassword(full.PasswordHash, req.OldPassword)

	if err != nil {
		RespondBadRequest(ctx, "Invalid old password")
		return
	}

	hash, err := security.HashPassword(req.NewPassword)

	if err != nil {
		RespondInternal(ctx, "Something went wrong while updating password")
		return
	}

	err = h.users.UpdatePassword(cctx, u.ID, hash)

	if err != nil {
		RespondInternal(ctx, "Something went wrong while updating password")
		return
	}

	Respond(ctx, http.StatusOK, gin.H{}, "Password updated successfully")
}
