package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/mind-weather/internal/auth"
)

func serve(r *gin.Engine, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(RequestIDKey)) })

	w := serve(r, http.MethodGet, "/", nil)
	id := w.Header().Get(RequestIDHeader)
	require.Len(t, id, 36)
	assert.Equal(t, id, w.Body.String())

	w = serve(r, http.MethodGet, "/", http.Header{RequestIDHeader: {"abc"}})
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), AccessLog(zerolog.Nop()), Recovery(zerolog.Nop()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := serve(r, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"code":50001,"message":"internal error","data":null}`, w.Body.String())
}

func TestSessionToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	signer := auth.NewSigner("s", time.Hour)
	r := gin.New()
	r.GET("/sessions/:id", SessionToken(signer), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(SessionIDKey))
	})
	tok, err := signer.Sign("abc")
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/sessions/abc", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/sessions/abc", http.Header{"Authorization": {tok}}).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/sessions/xyz", http.Header{"Authorization": {"Bearer " + tok}}).Code)

	w := serve(r, http.MethodGet, "/sessions/abc", http.Header{"Authorization": {"Bearer " + tok}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc", w.Body.String())
}

func TestAdminToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }

	disabled := gin.New()
	disabled.DELETE("/data", AdminToken(""), ok)
	assert.Equal(t, http.StatusForbidden, serve(disabled, http.MethodDelete, "/data", http.Header{"Authorization": {"Bearer "}}).Code)

	r := gin.New()
	r.DELETE("/data", AdminToken("root"), ok)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodDelete, "/data", http.Header{"Authorization": {"Bearer nope"}}).Code)
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodDelete, "/data", http.Header{"Authorization": {"Bearer root"}}).Code)
}
