package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/stocklens/internal/config"
	"github.com/andresuchdata/stocklens/internal/domain"
	"github.com/andresuchdata/stocklens/internal/service"
)

type stubPlatform struct {
	variants []domain.InventoryItem
	levels   map[int64]int
}

func (s *stubPlatform) Variants(ctx context.Context) ([]domain.InventoryItem, error) {
	return s.variants, nil
}

func (s *stubPlatform) InventoryLevel(ctx context.Context, itemID int64) (int64, int, bool, error) {
	available, ok := s.levels[itemID]
	return 1, available, ok, nil
}

func (s *stubPlatform) InventoryAdjustments(ctx context.Context, itemID int64, since time.Time) ([]domain.StockEvent, error) {
	return nil, nil
}

func (s *stubPlatform) Orders(ctx context.Context, since time.Time) ([]domain.SaleEvent, error) {
	return nil, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	platform := &stubPlatform{
		variants: []domain.InventoryItem{{ItemID: 101, SKU: "ABC"}},
		levels:   map[int64]int{101: 5},
	}
	svc := service.NewReportService(platform, nil, nil, nil, config.ReportConfig{Policy: "backward", BatchWidth: 1}, false)
	return NewRouter(&Services{ReportService: svc}, nil)
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestGetAvailability(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/report/availability?months=1", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var report domain.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.True(t, report.OK)
	assert.Equal(t, 1, report.RangeMonths)
	assert.Contains(t, report.Items, "ABC")
}

func TestNormalizeAllowedOrigins(t *testing.T) {
	parsed, allowAll := normalizeAllowedOrigins([]string{"https://a.example.com, https://b.example.com", " "})
	assert.False(t, allowAll)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, parsed)

	parsed, allowAll = normalizeAllowedOrigins([]string{"*"})
	assert.True(t, allowAll)
	assert.Empty(t, parsed)
}
