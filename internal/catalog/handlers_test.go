package catalog

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func testRouter(t *testing.T) *chi.Mux {
	t.Helper()
	h := NewHandler(testService(t, nil))
	r := chi.NewRouter()
	r.Get("/products", h.Products)
	r.Post("/products", h.Create)
	r.Get("/products/{id}", h.Product)
	r.Put("/products/{id}", h.Update)
	r.Delete("/products/{id}", h.Delete)
	return r
}

func TestProductsEndpoint(t *testing.T) {
	r := testRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products?q=jeans", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1", rec.Header().Get("X-Total-Count"))

	var out struct {
		Data []Product `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Data, 1)
	require.Equal(t, "DJ002", out.Data[0].SKU)
	require.Equal(t, "79.99", out.Data[0].Price)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products?sort=color", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProductLifecycleEndpoints(t *testing.T) {
	r := testRouter(t)

	body := `{"name":"Rain Jacket","price":"89.99","stock":7,"lowStockThreshold":3}`
	req := httptest.NewRequest(http.MethodPost, "/products", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Data Product `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Data.ID)
	require.True(t, strings.HasPrefix(created.Data.SKU, "SKU"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/"+created.Data.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/products/"+created.Data.ID, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/"+created.Data.ID, nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "NOT_FOUND")
}
