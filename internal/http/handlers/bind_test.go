package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/campushub/accounts/internal/http/handlers"
	"github.com/gin-gonic/gin"
)

type bindTarget struct {
	Email string `json:"email_id" binding:"required,email"`
	Count int    `json:"count"`
}

func bindRouter() *gin.Engine {
	r := gin.New()

	r.POST("/bind", func(c *gin.Context) {
		var out bindTarget

		if !handlers.BindJSON(c, &out) {
			return
		}

		c.JSON(http.StatusOK, out)
	})

	return r
}

func postBind(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/bind", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	bindRouter().ServeHTTP(w, req)

	return w
}

func TestBindJSON_Valid(t *testing.T) {
	w := postBind(t, `{"email_id":"ada@x.com","count":3}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", w.Code, w.Body.String())
	}
}

func TestBindJSON_ValidationErrors(t *testing.T) {
	w := postBind(t, `{"email_id":"not-an-email"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var resp struct {
		Success bool `json:"success"`
		Errors  []struct {
			Field string `json:"field"`
			Rule  string `json:"rule"`
		} `json:"errors"`
	}

	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if resp.Success {
		t.Fatalf("success = true on a 400")
	}

	if len(resp.Errors) != 1 {
		t.Fatalf("errors = %v, want one entry", resp.Errors)
	}

	// the wire name, not the Go field name
	if resp.Errors[0].Field != "email_id" || resp.Errors[0].Rule != "email" {
		t.Fatalf("unexpected field error: %+v", resp.Errors[0])
	}
}

func TestBindJSON_TypeMismatch(t *testing.T) {
	w := postBind(t, `{"email_id":"ada@x.com","count":"three"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestBindJSON_BadSyntax(t *testing.T) {
	w := postBind(t, `{"email_id":`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
