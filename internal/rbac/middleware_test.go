package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"ab-caller/internal/auth"

	"github.com/gin-gonic/gin"
)

func serveAs(role string, allowed ...string) int {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		if role != "" {
			c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), "u", role))
		}
		c.Next()
	}, RequireAnyRole(allowed...), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w.Code
}

func TestRequireAnyRole_AdminBypasses(t *testing.T) {
	if code := serveAs(RoleAdmin, RoleOperator); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_AllowedRole(t *testing.T) {
	if code := serveAs(RoleOperator, RoleOperator); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_Forbidden(t *testing.T) {
	if code := serveAs(RoleAnalyst, RoleOperator); code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAnyRole_MissingIdentity(t *testing.T) {
	if code := serveAs("", RoleOperator); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestIsKnown(t *testing.T) {
	if !IsKnown(RoleOperator) || IsKnown("network_operator") {
		t.Fatalf("unexpected role classification")
	}
}
