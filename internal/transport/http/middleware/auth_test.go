package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func adminRouter(token string) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(EnrichContext())
	router.POST("/admin/ping", RequireAdmin(token), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestRequireAdminRejectsBadToken(t *testing.T) {
	router := adminRouter("operator-token")

	req := httptest.NewRequest(http.MethodPost, "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["error"] != "invalid admin token" {
		t.Fatalf("unexpected error message %q", body["error"])
	}
	if body["trace_id"] == "" {
		t.Fatal("expected a trace_id in the error payload")
	}
}

func TestRequireAdminUnconfiguredDisablesEndpoints(t *testing.T) {
	router := adminRouter("")

	req := httptest.NewRequest(http.MethodPost, "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when no admin token is configured, got %d", rr.Code)
	}
}

func TestRequireTicketWithoutServiceReturnsUnavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(EnrichContext())
	router.GET("/identity/me", RequireTicket(nil), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/identity/me", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["error"] != "ticketing is not configured" {
		t.Fatalf("unexpected error message %q", body["error"])
	}
}
