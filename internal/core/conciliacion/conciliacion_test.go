package conciliacion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conciliacion-service/internal/domain"
)

func scenario() domain.Sources {
	var src domain.Sources
	src.Set(domain.KindOrders, domain.Dataset{
		Headers: []string{"# Orden", "Status Orden", "Venta total", "Pago inicial", "Fecha de compra", "Cuota 1", "Fecha cuota 1", "Estado cuota 1"},
		Rows: []domain.Row{
			{"# Orden": "1001", "Status Orden": "ACTIVE", "Venta total": 400.0, "Pago inicial": 100.0,
				"Fecha de compra": "15/02/2025", "Cuota 1": 100.0, "Fecha cuota 1": "2025-03-01", "Estado cuota 1": "scheduled"},
			{"# Orden": "1002", "Status Orden": "CANCELLED", "Venta total": 900.0,
				"Cuota 1": 300.0, "Fecha cuota 1": "2025-03-01"},
		},
	})
	src.Set(domain.KindPayments, domain.Dataset{
		Headers: []string{"Orden", "# Cuota Pagada", "# Referencia", "Fecha de Transaccion", "Monto Pagado en USD"},
		Rows: []domain.Row{
			{"Orden": "1001", "# Cuota Pagada": "1", "# Referencia": "555555551234", "Fecha de Transaccion": "2025-03-01", "Monto Pagado en USD": 100.0},
			{"Orden": "1002", "# Cuota Pagada": "1", "# Referencia": "777777770000", "Fecha de Transaccion": "2025-03-01", "Monto Pagado en USD": 300.0},
			{"Orden": "5000", "# Cuota Pagada": "", "# Referencia": "424242424242", "Fecha de Transaccion": "2025-03-05", "Monto Pagado en USD": 50.0},
		},
	})
	src.Set(domain.KindBank, domain.Dataset{
		Headers: []string{"Fecha", "Referencia", "Debe", "Haber"},
		Rows: []domain.Row{
			{"Fecha": "01/03/2025", "Referencia": "99555555551234", "Debe": 100.0},
			{"Fecha": "05/03/2025", "Referencia": "424242424242", "Haber": "50,00"},
			{"Fecha": "06/03/2025", "Referencia": "31313131", "Haber": 12.0},
		},
	})
	return src
}

func fixedNow() time.Time { return time.Date(2025, 2, 26, 10, 0, 0, 0, time.UTC) }

func TestRunEndToEnd(t *testing.T) {
	res := Run(scenario(), Options{Now: fixedNow})

	require.Len(t, res.Installments, 1, "cancelled order is not extracted")
	inst := res.Installments[0]
	assert.Equal(t, "1001", inst.Orden)
	assert.Equal(t, 1, inst.NumeroCuota)
	assert.Equal(t, domain.VerifiedYes, inst.Verificacion)
	assert.Equal(t, domain.StatusATiempo, inst.Status)
	require.NotNil(t, inst.PaymentDetails)
	assert.Equal(t, "555555551234", inst.PaymentDetails.Referencia)

	require.Len(t, res.PaymentInstallments, 2, "payments of cancelled orders are not synthesized")
	assert.Equal(t, "1001", res.PaymentInstallments[0].Orden)
	assert.Equal(t, domain.StatusATiempo, res.PaymentInstallments[0].Status)
	other := res.PaymentInstallments[1]
	assert.Equal(t, "5000", other.Orden)
	assert.Equal(t, domain.UnassignedInstallment, other.NumeroCuota)
	assert.Equal(t, domain.StatusOtroAliado, other.Status)
	assert.Equal(t, domain.VerifiedYes, other.Verificacion)

	require.Len(t, res.BankLines, 3)
	assert.Equal(t, domain.VerifiedYes, res.BankLines[0].Conciliado)
	assert.Equal(t, "1001", res.BankLines[0].Orden)
	assert.Equal(t, "1", res.BankLines[0].CuotaPagada)
	assert.Equal(t, domain.VerifiedYes, res.BankLines[1].Conciliado)
	assert.Equal(t, domain.VerifiedNo, res.BankLines[2].Conciliado)

	assert.Equal(t, 2, res.VerifiedPayments())
	assert.Empty(t, res.Splits)

	s := res.Summary
	assert.Equal(t, "400.00", s.VentasTotales.StringFixed(2))
	assert.Equal(t, "150.00", s.RecibidoEnBanco.StringFixed(2))
	assert.Equal(t, "50.00", s.DepositosOtrosAliados.StringFixed(2))
	assert.Equal(t, "100.00", s.BancoNeto.StringFixed(2))
	assert.Equal(t, "100.00", s.CuentasPorCobrar.StringFixed(2))
	assert.Equal(t, "0.00", s.Subtotal.StringFixed(2))

	assert.Equal(t, time.Date(2025, 2, 24, 0, 0, 0, 0, time.UTC), res.Weekly.Monday)
	assert.Equal(t, 0, res.Weekly.WeekCount, "the installment due Saturday 1 March is already paid")
}

func sharedDeposit(status2 string) domain.Sources {
	var src domain.Sources
	src.Set(domain.KindOrders, domain.Dataset{
		Headers: []string{"# Orden", "Status Orden", "Venta total"},
		Rows: []domain.Row{
			{"# Orden": "1", "Status Orden": "ACTIVE", "Venta total": 60.0},
			{"# Orden": "2", "Status Orden": status2, "Venta total": 40.0},
		},
	})
	src.Set(domain.KindPayments, domain.Dataset{
		Headers: []string{"Orden", "# Cuota Pagada", "# Referencia", "Fecha de Transaccion", "Monto Pagado en USD"},
		Rows: []domain.Row{
			{"Orden": "1", "# Cuota Pagada": "1", "# Referencia": "123456789012", "Fecha de Transaccion": "2025-03-01", "Monto Pagado en USD": 60.0},
			{"Orden": "2", "# Cuota Pagada": "1", "# Referencia": "123456789012", "Fecha de Transaccion": "2025-03-01", "Monto Pagado en USD": 40.0},
		},
	})
	src.Set(domain.KindBank, domain.Dataset{
		Headers: []string{"Fecha", "Referencia", "Debe"},
		Rows:    []domain.Row{{"Fecha": "01/03/2025", "Referencia": "123456789012", "Debe": 100.0}},
	})
	return src
}

func TestRunSplitDepositConciliatesBankLineOnly(t *testing.T) {
	res := Run(sharedDeposit("ACTIVE"), Options{Now: fixedNow})

	require.Len(t, res.BankLines, 1)
	assert.Equal(t, domain.VerifiedYes, res.BankLines[0].Conciliado)
	assert.Equal(t, "1", res.BankLines[0].Orden)
	assert.Equal(t, 0, res.VerifiedPayments(), "members of a split keep their own verification")
	assert.Len(t, res.Splits, 1)
	assert.True(t, res.Summary.RecibidoEnBanco.IsZero())
}

func TestRunSplitDepositIgnoresCancelledOrders(t *testing.T) {
	res := Run(sharedDeposit("CANCELLED"), Options{Now: fixedNow})

	require.Len(t, res.Payments, 2)
	assert.Equal(t, domain.VerifiedNo, res.Payments[0].Verificacion)
	require.Len(t, res.BankLines, 1)
	assert.Equal(t, domain.VerifiedNo, res.BankLines[0].Conciliado)
	assert.Empty(t, res.BankLines[0].Orden)
	assert.Empty(t, res.Splits)
	assert.True(t, res.Summary.RecibidoEnBanco.IsZero())
}

func TestRunEmptySources(t *testing.T) {
	res := Run(domain.Sources{}, DefaultOptions())
	assert.Empty(t, res.Installments)
	assert.Empty(t, res.PaymentInstallments)
	assert.True(t, res.Summary.Resultado.IsZero())
}

func TestContentHash(t *testing.T) {
	a := scenario()
	b := scenario()
	assert.Equal(t, ContentHash(a), ContentHash(b))
	assert.Len(t, ContentHash(a), 64)

	b.Bank.Rows[2]["Haber"] = 13.0
	assert.NotEqual(t, ContentHash(a), ContentHash(b))

	c := scenario()
	c.Bank.Rows[2]["Haber"] = "12"
	assert.NotEqual(t, ContentHash(a), ContentHash(c), "value type is part of the content")
}

type memCache struct {
	mu   sync.Mutex
	data map[string]*domain.Result
}

func (m *memCache) Get(_ context.Context, hash string) (*domain.Result, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.data[hash]
	return r, ok, nil
}

func (m *memCache) Set(_ context.Context, hash string, res *domain.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[hash] = res
	return nil
}

type countingRecorder struct {
	mu     sync.Mutex
	passes map[string]int
}

func (r *countingRecorder) ObservePass(result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.passes[result]++
}

func (r *countingRecorder) ObserveResult(int, int) {}

func TestServiceReconcileCachesByContent(t *testing.T) {
	cache := &memCache{data: map[string]*domain.Result{}}
	rec := &countingRecorder{passes: map[string]int{}}
	svc := NewService(Options{Now: fixedNow}, cache, nil, rec)
	ctx := context.Background()

	assert.Nil(t, svc.Current())

	first, err := svc.Reconcile(ctx, scenario())
	require.NoError(t, err)
	assert.Equal(t, ContentHash(scenario()), first.Hash)
	assert.Same(t, first, svc.Current())

	again, err := svc.Reconcile(ctx, scenario())
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, 1, rec.passes[PassComputed])
	assert.Equal(t, 1, rec.passes[PassCached])

	// A fresh service finds the result in the shared cache.
	other := NewService(Options{Now: fixedNow}, cache, nil, rec)
	fromCache, err := other.Reconcile(ctx, scenario())
	require.NoError(t, err)
	assert.Same(t, first, fromCache)
	assert.Equal(t, 1, rec.passes[PassComputed])
}

func TestServiceCacheHitLeavesResultUntouched(t *testing.T) {
	hash := ContentHash(scenario())
	stored := &domain.Result{ID: "from-cache", Hash: hash}
	cache := &memCache{data: map[string]*domain.Result{hash: stored}}
	svc := NewService(Options{Now: fixedNow}, cache, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Reconcile(context.Background(), scenario())
			if assert.NoError(t, err) {
				assert.Same(t, stored, res)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, domain.Result{ID: "from-cache", Hash: hash}, *stored)
}

func TestServiceSkipsStalePass(t *testing.T) {
	svc := NewService(DefaultOptions(), nil, nil, nil)
	src := scenario()

	gen := svc.request(ContentHash(src))
	svc.request("newer content")

	_, err := svc.pass(context.Background(), gen, ContentHash(src), src)
	assert.True(t, errors.Is(err, ErrStalePass))
	assert.Nil(t, svc.Current())
}

func TestServiceHonoursCancelledContext(t *testing.T) {
	svc := NewService(DefaultOptions(), nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Reconcile(ctx, scenario())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestServicePublishKeepsNewest(t *testing.T) {
	svc := NewService(DefaultOptions(), nil, nil, nil)
	newer := &domain.Result{ID: "newer"}
	older := &domain.Result{ID: "older"}

	svc.publish(5, newer)
	svc.publish(3, older)
	assert.Equal(t, "newer", svc.Current().ID)
}

func TestServiceConcurrentRequestsForSameContent(t *testing.T) {
	svc := NewService(Options{Now: fixedNow}, nil, nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Reconcile(context.Background(), scenario())
			if assert.NoError(t, err) {
				assert.Len(t, res.Installments, 1)
			}
		}()
	}
	wg.Wait()
	require.NotNil(t, svc.Current())
}
