package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conciliacion-service/internal/core/conciliacion"
	"conciliacion-service/internal/core/ingest"
	"conciliacion-service/internal/metrics"
	"conciliacion-service/internal/store"
)

const (
	ordersCSV = "# Orden;Venta total;Pago inicial;Fecha de compra;Cuota 1;Fecha cuota 1;Estado cuota 1\n" +
		"1001;400;100;15/02/2025;100;01/03/2025;scheduled\n"
	paymentsCSV = "Orden;# Cuota Pagada;# Referencia;Fecha de Transaccion;Monto Pagado en USD\n" +
		"1001;1;555555551234;01/03/2025;100\n"
	bankCSV = "Fecha;Referencia;Debe;Haber\n" +
		"01/03/2025;99555555551234;100;\n" +
		"02/03/2025;31313131;;12\n"
)

type uploadCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (u *uploadCounter) ObserveUpload(kind, result string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.counts[kind+"/"+result]++
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Errors  []string        `json:"errors"`
	Data    json.RawMessage `json:"data"`
}

type harness struct {
	router  *gin.Engine
	handler *ReconciliationHandler
	service *conciliacion.Service
	uploads *uploadCounter
}

func newHarness(t *testing.T, maxBytes int64) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := store.Open("sqlite", filepath.Join(t.TempDir(), "handlers.db"))
	require.NoError(t, err)
	st, err := store.New(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	svc := conciliacion.NewService(conciliacion.DefaultOptions(), store.NewMemoryCache(4), nil, nil)
	counter := &uploadCounter{counts: map[string]int{}}
	h := NewReconciliationHandler(ingest.NewService(), st, svc, counter, nil, maxBytes)
	h.now = func() time.Time { return time.Date(2025, 2, 26, 12, 0, 0, 0, time.UTC) }

	r := gin.New()
	h.RegisterRoutes(r.Group("/api/v1"))
	return &harness{router: r, handler: h, service: svc, uploads: counter}
}

func (h *harness) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func uploadRequest(t *testing.T, kind, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload/"+kind, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (h *harness) uploadAll(t *testing.T) {
	t.Helper()
	for _, u := range []struct{ kind, name, body string }{
		{"orders", "ordenes.csv", ordersCSV},
		{"payments", "pagos.csv", paymentsCSV},
		{"bank", "banco.csv", bankCSV},
	} {
		w, env := h.do(t, uploadRequest(t, u.kind, u.name, u.body))
		require.Equal(t, http.StatusOK, w.Code, "%s: %v", u.kind, env.Errors)
	}
}

func TestHandleUpload(t *testing.T) {
	h := newHarness(t, 1<<20)

	w, env := h.do(t, uploadRequest(t, "orders", "ordenes.csv", ordersCSV))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", env.Status)

	var data struct {
		BatchID string `json:"batchId"`
		Stats   struct {
			Received int `json:"received"`
			Inserted int `json:"inserted"`
			Total    int `json:"total"`
		} `json:"stats"`
		Counts Counts `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Len(t, data.BatchID, 36)
	assert.Equal(t, 1, data.Stats.Received)
	assert.Equal(t, 1, data.Stats.Inserted)
	assert.Equal(t, 1, data.Counts.Installments)

	// Re-uploading the same order updates it in place.
	w, env = h.do(t, uploadRequest(t, "orders", "ordenes.csv", ordersCSV))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 1, data.Stats.Total)
	assert.Equal(t, 0, data.Stats.Inserted)

	assert.Equal(t, 2, h.uploads.counts["orders/"+metrics.UploadAccepted])
}

func TestHandleUploadRejections(t *testing.T) {
	h := newHarness(t, 1<<20)

	t.Run("unknown kind", func(t *testing.T) {
		w, env := h.do(t, uploadRequest(t, "invoices", "x.csv", ordersCSV))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "error", env.Status)
	})

	t.Run("missing file field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/upload/orders", strings.NewReader(""))
		w, _ := h.do(t, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		w, env := h.do(t, uploadRequest(t, "orders", "ordenes.pdf", ordersCSV))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		require.NotEmpty(t, env.Errors)
		assert.Contains(t, env.Errors[0], "unsupported file format")
	})

	t.Run("missing required column", func(t *testing.T) {
		body := "Orden;Monto Pagado en USD\n1001;100\n"
		w, env := h.do(t, uploadRequest(t, "payments", "pagos.csv", body))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		require.NotEmpty(t, env.Errors)
		assert.Contains(t, env.Errors[0], "not found")
	})

	assert.Equal(t, 2, h.uploads.counts["orders/"+metrics.UploadRejected])
	assert.Equal(t, 1, h.uploads.counts["payments/"+metrics.UploadRejected])
}

func TestHandleUploadTooLarge(t *testing.T) {
	h := newHarness(t, 64)

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, uploadRequest(t, "orders", "ordenes.csv", strings.Repeat(ordersCSV, 20)))
	assert.GreaterOrEqual(t, w.Code, http.StatusBadRequest)
	assert.Less(t, w.Code, http.StatusInternalServerError)
}

func TestResultEndpoints(t *testing.T) {
	h := newHarness(t, 1<<20)
	h.uploadAll(t)

	t.Run("payments carry verification", func(t *testing.T) {
		w, env := h.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/payments", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var data struct {
			Payments []store.PaymentDTO `json:"payments"`
			Splits   []store.SplitDTO   `json:"splits"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &data))
		require.Len(t, data.Payments, 1)
		assert.Equal(t, "SI", data.Payments[0].Verificacion)
		assert.Equal(t, "2025-03-01", data.Payments[0].FechaTransaccion)
		assert.Equal(t, "100", data.Payments[0].MontoUSD)
		assert.Empty(t, data.Splits)
	})

	t.Run("bank lines carry conciliation", func(t *testing.T) {
		w, env := h.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/bank", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var data struct {
			BankLines []store.BankLineDTO `json:"bankLines"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &data))
		require.Len(t, data.BankLines, 2)
		assert.Equal(t, "SI", data.BankLines[0].Conciliado)
		assert.Equal(t, "1001", data.BankLines[0].Orden)
		assert.Equal(t, "NO", data.BankLines[1].Conciliado)
		assert.Equal(t, "", data.BankLines[0].Haber)
	})

	t.Run("installments filtered by order", func(t *testing.T) {
		w, env := h.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/installments?orden=1001", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var data struct {
			Installments []store.InstallmentDTO `json:"installments"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &data))
		require.Len(t, data.Installments, 1)
		assert.Equal(t, "A TIEMPO", data.Installments[0].Status)
		assert.Equal(t, "SI", data.Installments[0].Verificacion)

		_, env = h.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/installments?orden=9999", nil))
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Empty(t, data.Installments)
	})

	t.Run("weekly expectation", func(t *testing.T) {
		w, env := h.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/report/weekly", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var data store.WeeklyDTO
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Equal(t, "2025-02-24", data.Monday)
		assert.Equal(t, "2025-03-02", data.Sunday)
		assert.Equal(t, 0, data.WeekCount)
	})
}

func TestHandleReconcile(t *testing.T) {
	h := newHarness(t, 1<<20)
	h.uploadAll(t)

	body := `{"master":{"from":"2025-02-01","to":"28/02/2025"},"overrides":{"iva":"10"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconcile", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w, env := h.do(t, req)
	require.Equal(t, http.StatusOK, w.Code, env.Errors)

	var data struct {
		Summary map[string]any `json:"summary"`
		Counts  Counts         `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "400", data.Summary["ventasTotales"])
	assert.Equal(t, "75", data.Summary["porcentajeFinanciado"])
	assert.Equal(t, "0", data.Summary["recibidoEnBanco"], "the payment falls outside February")
	assert.Equal(t, "-10", data.Summary["resultado"])
	assert.Equal(t, 1, data.Counts.VerifiedPayments)
	assert.Equal(t, 1, data.Counts.ConciliatedLines)

	t.Run("open filters with no body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/reconcile", nil)
		w, env := h.do(t, req)
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Equal(t, "100", data.Summary["recibidoEnBanco"])
	})

	t.Run("invalid date", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/reconcile", strings.NewReader(`{"local":{"from":"ayer"}}`))
		req.Header.Set("Content-Type", "application/json")
		w, _ := h.do(t, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestEndpointsBeforeAnyUpload(t *testing.T) {
	h := newHarness(t, 1<<20)

	w, env := h.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/bank", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"bankLines":[]}`, string(env.Data))
	assert.NotNil(t, h.service.Current())
}
