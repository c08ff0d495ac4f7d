package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func RequireJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			if c.Request.ContentLength == 0 {
				// logout and refresh-from-cookie carry no body
				break
			}

			ct := c.GetHeader("Content-Type")
			// allow "application/json; charset=utf-8"
			if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
				c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
					"statusCode": http.StatusUnsupportedMediaType,
					"message":    "Content-Type must be application/json",
					"success":    false,
					"errors":     []string{},
				})
				return
			}
		}
		c.Next()
	}
}
