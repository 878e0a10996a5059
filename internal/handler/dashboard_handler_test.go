package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-library-api/internal/middleware"
	"github.com/noah-isme/sma-library-api/internal/models"
)

type fakeDashboardSrv struct {
	summary *models.DashboardSummary
	hit     bool
	err     error
}

func (f *fakeDashboardSrv) Summary(context.Context) (*models.DashboardSummary, bool, error) {
	return f.summary, f.hit, f.err
}

func TestDashboardHandlerSummaryReportsCacheHit(t *testing.T) {
	h := NewDashboardHandler(&fakeDashboardSrv{summary: &models.DashboardSummary{TotalTitles: 4, ActiveLoans: 2}, hit: true})
	c, rec := newTestContext(http.MethodGet, "/dashboard", nil)
	middleware.ResponseMeta()(c)

	h.Summary(c)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, true, env.Meta["cache_hit"])
	assert.Contains(t, env.Meta, "processing_time_ms")
	var summary models.DashboardSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, 4, summary.TotalTitles)
}

func TestDashboardHandlerSummaryError(t *testing.T) {
	h := NewDashboardHandler(&fakeDashboardSrv{err: errors.New("db down")})
	c, rec := newTestContext(http.MethodGet, "/dashboard", nil)

	h.Summary(c)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDashboardHandlerWithoutService(t *testing.T) {
	h := NewDashboardHandler(nil)
	c, rec := newTestContext(http.MethodGet, "/dashboard", nil)

	h.Summary(c)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
