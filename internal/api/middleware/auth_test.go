package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestIdentify(t *testing.T) {
	r := gin.New()
	r.Use(Identify())
	r.GET("/whoami", func(c *gin.Context) {
		identity := GetIdentity(c)
		if identity == nil {
			c.JSON(http.StatusOK, gin.H{"anonymous": true})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": identity.UserID, "user_name": identity.UserName})
	})

	t.Run("with identity headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("X-User-ID", "u1")
		req.Header.Set("X-User-Name", "Test User")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if body := w.Body.String(); body != `{"user_id":"u1","user_name":"Test User"}` {
			t.Errorf("unexpected body: %s", body)
		}
	})

	t.Run("without headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if body := w.Body.String(); body != `{"anonymous":true}` {
			t.Errorf("unexpected body: %s", body)
		}
	})
}

func TestRequireUser(t *testing.T) {
	r := gin.New()
	r.Use(Identify())
	r.GET("/protected", func(c *gin.Context) {
		if user := RequireUser(c); user == nil {
			return
		}
		c.Status(http.StatusOK)
	})

	t.Run("authenticated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("X-User-ID", "u1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", w.Code)
		}
	})

	t.Run("anonymous", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", w.Code)
		}
	})
}

func TestNewRateLimiter(t *testing.T) {
	t.Run("invalid period", func(t *testing.T) {
		if _, err := NewRateLimiter(10, "sometimes"); err == nil {
			t.Error("expected error for invalid period")
		}
	})

	t.Run("enforces the limit", func(t *testing.T) {
		mw, err := NewRateLimiter(2, "1m")
		if err != nil {
			t.Fatal(err)
		}
		r := gin.New()
		r.Use(mw)
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		statuses := make([]int, 0, 3)
		for i := 0; i < 3; i++ {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "10.1.1.1:1234"
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			statuses = append(statuses, w.Code)
		}
		if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
			t.Errorf("first two requests should pass: %v", statuses)
		}
		if statuses[2] != http.StatusTooManyRequests {
			t.Errorf("third request should be limited: %v", statuses)
		}
	})
}
