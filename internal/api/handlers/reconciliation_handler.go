package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"conciliacion-service/internal/api/responses"
	"conciliacion-service/internal/core/conciliacion"
	"conciliacion-service/internal/core/ingest"
	"conciliacion-service/internal/core/merge"
	"conciliacion-service/internal/core/normalize"
	"conciliacion-service/internal/core/report"
	"conciliacion-service/internal/domain"
	"conciliacion-service/internal/metrics"
	"conciliacion-service/internal/store"
)

// DatasetStore persists uploaded datasets and result snapshots.
type DatasetStore interface {
	SaveDataset(ctx context.Context, ds domain.Dataset) (string, error)
	LoadDataset(ctx context.Context, kind domain.SourceKind) (domain.Dataset, error)
	LoadSources(ctx context.Context) (domain.Sources, error)
	SaveSnapshot(ctx context.Context, res *domain.Result) error
}

// Reconciler runs passes and holds the current result.
type Reconciler interface {
	Reconcile(ctx context.Context, src domain.Sources) (*domain.Result, error)
	Current() *domain.Result
}

// UploadRecorder counts uploads by kind and outcome.
type UploadRecorder interface {
	ObserveUpload(kind, result string)
}

// ReconciliationHandler serves uploads, reconciliation summaries and the
// cached-shape result rows.
type ReconciliationHandler struct {
	ingest     ingest.Service
	store      DatasetStore
	reconciler Reconciler
	recorder   UploadRecorder
	logger     *zap.Logger
	maxBytes   int64
	now        func() time.Time

	// uploads serializes load-merge-save of the stored datasets.
	uploads sync.Mutex
}

// NewReconciliationHandler creates the handler. recorder and logger may be nil.
func NewReconciliationHandler(svc ingest.Service, st DatasetStore, rec Reconciler, recorder UploadRecorder, logger *zap.Logger, maxBytes int64) *ReconciliationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationHandler{
		ingest:     svc,
		store:      st,
		reconciler: rec,
		recorder:   recorder,
		logger:     logger,
		maxBytes:   maxBytes,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes mounts the API under r.
func (h *ReconciliationHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/upload/:kind", h.HandleUpload)
	r.POST("/reconcile", h.HandleReconcile)
	r.GET("/installments", h.HandleInstallments)
	r.GET("/payments", h.HandlePayments)
	r.GET("/bank", h.HandleBank)
	r.GET("/report/weekly", h.HandleWeekly)
}

func (h *ReconciliationHandler) observeUpload(kind domain.SourceKind, result string) {
	if h.recorder != nil {
		h.recorder.ObserveUpload(string(kind), result)
	}
}

// HandleUpload parses a spreadsheet, merges it into the stored dataset of its
// kind and runs a reconciliation pass over the four stored sources.
func (h *ReconciliationHandler) HandleUpload(c *gin.Context) {
	kind := domain.SourceKind(strings.ToLower(c.Param("kind")))
	if !kind.IsValid() {
		responses.Error(c, http.StatusBadRequest, fmt.Sprintf("Tipo de archivo no soportado: %s", kind))
		return
	}

	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.observeUpload(kind, metrics.UploadRejected)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			responses.Error(c, http.StatusRequestEntityTooLarge, "El archivo excede el tamaño máximo permitido")
			return
		}
		responses.Error(c, http.StatusBadRequest, "Archivo (.xlsx, .xls, .csv) no encontrado o inválido")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.observeUpload(kind, metrics.UploadFailed)
		responses.Error(c, http.StatusInternalServerError, "No se pudo abrir el archivo")
		return
	}
	defer file.Close()

	incoming, err := h.ingest.Load(kind, file, fileHeader.Filename)
	if err != nil {
		h.observeUpload(kind, metrics.UploadRejected)
		responses.Error(c, http.StatusBadRequest, "Error al procesar el archivo", err.Error())
		return
	}

	ctx := c.Request.Context()
	stats, batchID, src, err := h.mergeAndSave(ctx, kind, incoming)
	if err != nil {
		h.observeUpload(kind, metrics.UploadFailed)
		h.logger.Error("failed to store upload", zap.String("kind", string(kind)), zap.Error(err))
		responses.Error(c, http.StatusInternalServerError, "Error al guardar los datos", err.Error())
		return
	}
	h.observeUpload(kind, metrics.UploadAccepted)
	h.logger.Info("upload merged",
		zap.String("kind", string(kind)),
		zap.String("batch_id", batchID),
		zap.String("filename", fileHeader.Filename),
		zap.Int("received", stats.Received),
		zap.Int("inserted", stats.Inserted),
		zap.Int("updated", stats.Updated),
		zap.Int("rejected", stats.Rejected),
	)

	data := gin.H{"batchId": batchID, "stats": stats}
	res, err := h.reconcile(ctx, src)
	switch {
	case errors.Is(err, conciliacion.ErrStalePass):
		data["reconciliation"] = "superseded"
	case err != nil:
		responses.Error(c, http.StatusInternalServerError, "Error al conciliar los datos", err.Error())
		return
	default:
		data["resultId"] = res.ID
		data["hash"] = res.Hash
		data["counts"] = countsOf(res)
	}
	responses.Success(c, data, "Archivo procesado")
}

func (h *ReconciliationHandler) mergeAndSave(ctx context.Context, kind domain.SourceKind, incoming domain.Dataset) (merge.Stats, string, domain.Sources, error) {
	h.uploads.Lock()
	defer h.uploads.Unlock()

	existing, err := h.store.LoadDataset(ctx, kind)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return merge.Stats{}, "", domain.Sources{}, err
	}
	merged, stats := merge.Apply(kind, existing, incoming)
	batchID, err := h.store.SaveDataset(ctx, merged)
	if err != nil {
		return stats, "", domain.Sources{}, err
	}
	src, err := h.store.LoadSources(ctx)
	if err != nil {
		return stats, batchID, domain.Sources{}, err
	}
	return stats, batchID, src, nil
}

// reconcile runs a pass and persists the snapshot when it is new.
func (h *ReconciliationHandler) reconcile(ctx context.Context, src domain.Sources) (*domain.Result, error) {
	prev := h.reconciler.Current()
	res, err := h.reconciler.Reconcile(ctx, src)
	if err != nil {
		return nil, err
	}
	if prev == nil || prev.Hash != res.Hash {
		if err := h.store.SaveSnapshot(ctx, res); err != nil {
			h.logger.Warn("failed to save snapshot", zap.String("hash", res.Hash), zap.Error(err))
		}
	}
	return res, nil
}

// current returns the published result, running a pass over the stored
// sources when none exists yet.
func (h *ReconciliationHandler) current(ctx context.Context) (*domain.Result, error) {
	if res := h.reconciler.Current(); res != nil {
		return res, nil
	}
	src, err := h.store.LoadSources(ctx)
	if err != nil {
		return nil, err
	}
	return h.reconcile(ctx, src)
}

func (h *ReconciliationHandler) currentOrError(c *gin.Context) (*domain.Result, bool) {
	res, err := h.current(c.Request.Context())
	if err != nil {
		responses.Error(c, http.StatusInternalServerError, "Error al obtener la conciliación", err.Error())
		return nil, false
	}
	return res, true
}

// DateRangeRequest is a day range with YYYY-MM-DD or DD/MM/YYYY bounds.
type DateRangeRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (r DateRangeRequest) parse() (report.DateRange, error) {
	var out report.DateRange
	if s := strings.TrimSpace(r.From); s != "" {
		if out.From = normalize.ParseDatePtr(s); out.From == nil {
			return out, fmt.Errorf("fecha inválida: %q", s)
		}
	}
	if s := strings.TrimSpace(r.To); s != "" {
		if out.To = normalize.ParseDatePtr(s); out.To == nil {
			return out, fmt.Errorf("fecha inválida: %q", s)
		}
	}
	return out, nil
}

// ReconcileRequest selects the period, orders and external line items of a
// summary.
type ReconcileRequest struct {
	Master    DateRangeRequest `json:"master"`
	Local     DateRangeRequest `json:"local"`
	Orders    []string         `json:"orders"`
	Overrides report.Overrides `json:"overrides"`
}

// HandleReconcile computes the monthly summary of the current result.
func (h *ReconciliationHandler) HandleReconcile(c *gin.Context) {
	var req ReconcileRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			responses.Error(c, http.StatusBadRequest, "Solicitud inválida", err.Error())
			return
		}
	}
	master, err := req.Master.parse()
	if err != nil {
		responses.Error(c, http.StatusBadRequest, "Periodo maestro inválido", err.Error())
		return
	}
	local, err := req.Local.parse()
	if err != nil {
		responses.Error(c, http.StatusBadRequest, "Periodo local inválido", err.Error())
		return
	}

	res, ok := h.currentOrError(c)
	if !ok {
		return
	}
	filters := report.Filters{Master: master, Local: local, Orders: req.Orders}
	summary := report.Compute(report.InputFromResult(res), filters, req.Overrides)

	responses.Success(c, gin.H{
		"resultId": res.ID,
		"hash":     res.Hash,
		"summary":  summary,
		"counts":   countsOf(res),
	}, "Conciliación calculada")
}

// HandleInstallments lists the schedule and payment-based installments,
// optionally for one order.
func (h *ReconciliationHandler) HandleInstallments(c *gin.Context) {
	res, ok := h.currentOrError(c)
	if !ok {
		return
	}
	orden := strings.TrimSpace(c.Query("orden"))
	responses.Success(c, gin.H{
		"installments":        store.NewInstallmentDTOs(filterByOrder(res.Installments, orden)),
		"paymentInstallments": store.NewInstallmentDTOs(filterByOrder(res.PaymentInstallments, orden)),
	}, "")
}

func filterByOrder(in []domain.Installment, orden string) []domain.Installment {
	if orden == "" {
		return in
	}
	out := make([]domain.Installment, 0)
	for _, inst := range in {
		if inst.Orden == orden {
			out = append(out, inst)
		}
	}
	return out
}

// HandlePayments lists the payment records with their verification flag
// and the split reference groups.
func (h *ReconciliationHandler) HandlePayments(c *gin.Context) {
	res, ok := h.currentOrError(c)
	if !ok {
		return
	}
	responses.Success(c, gin.H{
		"payments": store.NewPaymentDTOs(res.Payments),
		"splits":   store.NewSplitDTOs(res.Splits),
	}, "")
}

// HandleBank lists the bank lines with their conciliation flag.
func (h *ReconciliationHandler) HandleBank(c *gin.Context) {
	res, ok := h.currentOrError(c)
	if !ok {
		return
	}
	responses.Success(c, gin.H{"bankLines": store.NewBankLineDTOs(res.BankLines)}, "")
}

// HandleWeekly reports the income expected in the current week.
func (h *ReconciliationHandler) HandleWeekly(c *gin.Context) {
	res, ok := h.currentOrError(c)
	if !ok {
		return
	}
	weekly := report.Weekly(res.Installments, h.now())
	responses.Success(c, store.NewWeeklyDTO(weekly), "")
}

// Counts summarizes the size of a result.
type Counts struct {
	Orders              int `json:"orders"`
	Installments        int `json:"installments"`
	PaymentInstallments int `json:"paymentInstallments"`
	Payments            int `json:"payments"`
	VerifiedPayments    int `json:"verifiedPayments"`
	BankLines           int `json:"bankLines"`
	ConciliatedLines    int `json:"conciliatedLines"`
	Splits              int `json:"splits"`
}

func countsOf(res *domain.Result) Counts {
	out := Counts{
		Orders:              len(res.Orders),
		Installments:        len(res.Installments),
		PaymentInstallments: len(res.PaymentInstallments),
		Payments:            len(res.Payments),
		VerifiedPayments:    res.VerifiedPayments(),
		BankLines:           len(res.BankLines),
		Splits:              len(res.Splits),
	}
	for _, b := range res.BankLines {
		if b.Conciliado.IsVerified() {
			out.ConciliatedLines++
		}
	}
	return out
}
