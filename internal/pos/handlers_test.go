package pos

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/catalog"
	"github.com/noah-isme/backend-pos/internal/lock"
	"github.com/noah-isme/backend-pos/internal/obs"
)

func newTestRouter(t *testing.T) (*chi.Mux, *Handler) {
	t.Helper()
	obsRegisterForTests()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := &Handler{
		Registry: NewRegistry(time.Hour),
		Engine: &Engine{
			Catalog: catalog.NewStore(catalog.MockInventory()),
			TaxBps:  1000,
		},
		Locker:  lock.Locker{R: client},
		LockTTL: 5 * time.Second,
	}

	r := chi.NewRouter()
	r.Post("/sessions", h.CreateSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Delete("/", h.DeleteSession)
		r.Post("/scan", h.Scan)
		r.Patch("/items/{productId}", h.SetQuantity)
		r.Delete("/items/{productId}", h.RemoveItem)
		r.Put("/discount", h.SetDiscount)
		r.Put("/payment", h.SetPayment)
		r.Post("/complete", h.Complete)
		r.Post("/cancel", h.CancelSale)
	})
	return r, h
}

// collectors are process-global; a throwaway registry keeps test runs
// independent of the default one
func obsRegisterForTests() {
	obs.MustRegisterDomainMetrics("pos_test", prometheus.NewRegistry())
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, r http.Handler) string {
	t.Helper()
	rec := do(t, r, http.MethodPost, "/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var out struct {
		Data sessionView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(t, out.Data.ID)
	return out.Data.ID
}

func TestHandlerFullCashFlow(t *testing.T) {
	r, _ := newTestRouter(t)
	id := createSession(t, r)

	rec := do(t, r, http.MethodPost, "/sessions/"+id+"/scan", `{"code":"CT001"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, r, http.MethodPost, "/sessions/"+id+"/scan", `{"code":"DJ002"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Data sessionView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Data.Items, 2)
	require.Equal(t, "109.98", out.Data.Totals.Subtotal)
	require.Equal(t, "11.00", out.Data.Totals.Tax)
	require.Equal(t, "120.98", out.Data.Totals.Total)

	rec = do(t, r, http.MethodPut, "/sessions/"+id+"/discount", `{"value":"10"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "10.00", out.Data.Totals.Discount)
	require.Equal(t, "110.98", out.Data.Totals.Total)

	rec = do(t, r, http.MethodPut, "/sessions/"+id+"/payment", `{"method":"cash","amountReceived":"112.00"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "1.02", out.Data.ChangeDue)

	rec = do(t, r, http.MethodPost, "/sessions/"+id+"/complete", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sale struct {
		Data saleView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sale))
	require.True(t, strings.HasPrefix(sale.Data.TransactionID, "TXN"))
	require.Equal(t, "110.98", sale.Data.Totals.Total)
	require.Equal(t, "1.02", sale.Data.ChangeDue)

	// session is reset and ready for the next customer
	rec = do(t, r, http.MethodGet, "/sessions/"+id+"/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Empty(t, out.Data.Items)
	require.Equal(t, "0.00", out.Data.Totals.Total)
}

func TestHandlerErrorCodes(t *testing.T) {
	r, _ := newTestRouter(t)
	id := createSession(t, r)

	rec := do(t, r, http.MethodPost, "/sessions/"+id+"/scan", `{"code":"XX000"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "ITEM_NOT_FOUND")

	rec = do(t, r, http.MethodPost, "/sessions/"+id+"/complete", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "EMPTY_CART")

	rec = do(t, r, http.MethodPost, "/sessions/"+id+"/scan", `{"code":"SD003"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, r, http.MethodPost, "/sessions/"+id+"/complete", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "PAYMENT_METHOD_REQUIRED")

	rec = do(t, r, http.MethodPut, "/sessions/"+id+"/payment", `{"method":"cash","amountReceived":"5.00"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, r, http.MethodPost, "/sessions/"+id+"/complete", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "INSUFFICIENT_PAYMENT")

	rec = do(t, r, http.MethodPut, "/sessions/"+id+"/payment", `{"method":"wire"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, r, http.MethodGet, "/sessions/nope/", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "SESSION_NOT_FOUND")
}

func TestHandlerQuantityAndCancel(t *testing.T) {
	r, _ := newTestRouter(t)
	id := createSession(t, r)

	rec := do(t, r, http.MethodPost, "/sessions/"+id+"/scan", `{"code":"PS005"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, r, http.MethodPatch, "/sessions/"+id+"/items/5", `{"quantity":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Data sessionView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, 3, out.Data.Items[0].Quantity)
	require.Equal(t, "119.97", out.Data.Items[0].LineTotal)

	rec = do(t, r, http.MethodPatch, "/sessions/"+id+"/items/5", `{"quantity":0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Empty(t, out.Data.Items)

	rec = do(t, r, http.MethodPost, "/sessions/"+id+"/scan", `{"code":"LJ004"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, r, http.MethodPost, "/sessions/"+id+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Empty(t, out.Data.Items)

	rec = do(t, r, http.MethodDelete, "/sessions/"+id+"/", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, r, http.MethodGet, "/sessions/"+id+"/", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
