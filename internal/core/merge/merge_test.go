package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conciliacion-service/internal/domain"
)

func TestOrdersLastWriteWins(t *testing.T) {
	existing := domain.Dataset{
		Headers: []string{"# Orden", "Venta total"},
		Rows: []domain.Row{
			{"# Orden": "1001", "Venta total": 100.0},
			{"# Orden": "1002", "Venta total": 200.0},
		},
	}
	incoming := domain.Dataset{
		Headers: []string{"Orden", "Venta total", "Status Orden"},
		Rows: []domain.Row{
			{"Orden": "1002", "Venta total": 250.0, "Status Orden": "CANCELLED"},
			{"Orden": "1003", "Venta total": 300.0},
			{"Orden": "", "Venta total": 1.0},
		},
	}

	got, st := Orders(existing, incoming)
	assert.Equal(t, []string{"# Orden", "Venta total", "Status Orden"}, got.Headers)
	require.Len(t, got.Rows, 3)
	assert.Equal(t, 250.0, got.Rows[1]["Venta total"])
	assert.Equal(t, "CANCELLED", got.Rows[1]["Status Orden"])
	assert.Equal(t, "1003", got.Rows[2]["# Orden"], "incoming column renamed onto the stored header")

	assert.Equal(t, Stats{Kind: domain.KindOrders, Received: 3, Inserted: 1, Updated: 1, Rejected: 1, Total: 3}, st)
}

func TestPaymentsUpsertByOrderAndCuota(t *testing.T) {
	hs := []string{"Orden", "Cuota pagada", "Referencia", "Monto USD"}
	existing := domain.Dataset{
		Headers: hs,
		Rows: []domain.Row{
			{"Orden": "1001", "Cuota pagada": "1", "Referencia": "A", "Monto USD": 100.0},
			{"Orden": "1001", "Cuota pagada": "2,3", "Referencia": "B", "Monto USD": 200.0},
		},
	}
	incoming := domain.Dataset{
		Headers: hs,
		Rows: []domain.Row{
			{"Orden": "1001", "Cuota pagada": "2, 3", "Referencia": "B2", "Monto USD": 210.0},
			{"Orden": "1001", "Cuota pagada": "4", "Referencia": "C", "Monto USD": 100.0},
			{"Orden": "1001", "Cuota pagada": "", "Referencia": "D"},
			{"Orden": "", "Cuota pagada": "1", "Referencia": "E"},
		},
	}

	got, st := Payments(existing, incoming)
	require.Len(t, got.Rows, 3)
	assert.Equal(t, "B2", got.Rows[1]["Referencia"])
	assert.Equal(t, "C", got.Rows[2]["Referencia"])
	assert.Equal(t, 1, st.Inserted)
	assert.Equal(t, 1, st.Updated)
	assert.Equal(t, 2, st.Rejected)
	assert.Equal(t, 3, st.Total)
}

func TestBankDedupLastWins(t *testing.T) {
	incoming := domain.Dataset{
		Headers: []string{"Fecha", "Referencia", "Debe"},
		Rows: []domain.Row{
			{"Referencia": "00123", "Debe": 1.0},
			{"Referencia": "456", "Debe": 2.0},
			{"Referencia": "", "Debe": 3.0},
			{"Referencia": "123", "Debe": 4.0},
			{"Referencia": "", "Debe": 5.0},
		},
	}

	got, st := Bank(incoming)
	require.Len(t, got.Rows, 4)
	assert.Equal(t, 2.0, got.Rows[0]["Debe"])
	assert.Equal(t, 3.0, got.Rows[1]["Debe"])
	assert.Equal(t, 4.0, got.Rows[2]["Debe"])
	assert.Equal(t, 5.0, got.Rows[3]["Debe"])
	assert.Equal(t, 1, st.Duplicates)
	assert.Equal(t, domain.KindBank, got.Kind)
}

func TestMarketplaceReplaces(t *testing.T) {
	incoming := domain.Dataset{Headers: []string{"Orden"}, Rows: []domain.Row{{"Orden": "M1"}}}
	got, st := Apply(domain.KindMarketplace, domain.Dataset{Rows: []domain.Row{{"Orden": "old"}}}, incoming)
	require.Len(t, got.Rows, 1)
	assert.Equal(t, "M1", got.Rows[0]["Orden"])
	assert.Equal(t, 1, st.Total)
}

func TestApplyDispatch(t *testing.T) {
	hs := []string{"Orden"}
	got, _ := Apply(domain.KindOrders,
		domain.Dataset{Headers: hs, Rows: []domain.Row{{"Orden": "1"}}},
		domain.Dataset{Headers: hs, Rows: []domain.Row{{"Orden": "2"}}})
	assert.Len(t, got.Rows, 2)
}
