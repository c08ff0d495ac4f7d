package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIResponse is the success envelope every endpoint returns.
type APIResponse struct {
	StatusCode int         `json:"statusCode"`
	Data       interface{} `json:"data"`
	Message    string      `json:"message"`
	Success    bool        `json:"success"`
}

// APIErrorResponse is the failure envelope. Errors carries field-level
// detail when binding produced any; otherwise it stays empty.
type APIErrorResponse struct {
	StatusCode int           `json:"statusCode"`
	Message    string        `json:"message"`
	Success    bool          `json:"success"`
	Errors     []interface{} `json:"errors"`
}

func Respond(ctx *gin.Context, status int, data interface{}, message string) {
	ctx.JSON(status, APIResponse{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    true,
	})
}

func RespondError(ctx *gin.Context, status int, message string, errs ...interface{}) {
	if errs == nil {
		errs = []interface{}{}
	}

	ctx.JSON(status, APIErrorResponse{
		StatusCode: status,
		Message:    message,
		Success:    false,
		Errors:     errs,
	})
}

func RespondBadRequest(ctx *gin.Context, message string, errs ...interface{}) {
	RespondError(ctx, http.StatusBadRequest, message, errs...)
}

func RespondUnauthorized(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusUnauthorized, message)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, message)
}

func RespondConflict(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusConflict, message)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, message)
}
