package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-library-api/internal/middleware"
	appErrors "github.com/noah-isme/sma-library-api/pkg/errors"
)

type stubChecker struct{ pin string }

func (s stubChecker) Enabled() bool { return s.pin != "" }

func (s stubChecker) Check(_ context.Context, pin string) error {
	if pin != s.pin {
		return appErrors.ErrInvalidCapability
	}
	return nil
}

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }

func newTestRouter(pinger Pinger) (*gin.Engine, *fakeBookSrv) {
	gin.SetMode(gin.TestMode)
	books := &fakeBookSrv{}
	r := gin.New()
	RegisterRoutes(r, "/api/v1", Handlers{
		Books:  NewBookHandler(books),
		System: NewSystemHandler(nil, pinger),
	}, stubChecker{pin: "1234"})
	return r, books
}

func TestRouterRequiresPINForMutations(t *testing.T) {
	r, books := newTestRouter(nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/books/1", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, books.deleted)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/books/1", nil)
	req.Header.Set(middleware.PINHeader, "1234")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(1), books.deleted)
}

func TestRouterReadsSkipPIN(t *testing.T) {
	r, _ := newTestRouter(nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/books", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterProbes(t *testing.T) {
	r, _ := newTestRouter(stubPinger{err: errors.New("closed")})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
