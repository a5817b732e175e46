package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"docweave-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthRouter(m *token.JWTManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(m), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": c.MustGet("userID")})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	m := token.NewJWTManager("secret", 1)
	good, err := m.GenerateToken(42, "alice")
	require.NoError(t, err)
	forged, err := token.NewJWTManager("other", 1).GenerateToken(42, "alice")
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Token " + good, http.StatusUnauthorized},
		{"bad signature", "Bearer " + forged, http.StatusUnauthorized},
		{"ok", "Bearer " + good, http.StatusOK},
	}
	r := newAuthRouter(m)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.JSONEq(t, `{"userId":42}`, w.Body.String())
			}
		})
	}
}
