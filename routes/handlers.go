// routes/handlers.go
package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/LilVoxy/rental_warehouse/ETL/archive"
	"github.com/LilVoxy/rental_warehouse/ETL/models"
	"github.com/LilVoxy/rental_warehouse/ETL/utils"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
	defaultTopLimit  = 10
	maxTopLimit      = 100
)

// Handlers обработчики API отчетов
type Handlers struct {
	store  ReportStore
	logger *utils.ETLLogger
}

// NewHandlers создает новый экземпляр Handlers
func NewHandlers(store ReportStore, logger *utils.ETLLogger) *Handlers {
	return &Handlers{store: store, logger: logger.WithField("component", "api")}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Ошибка при кодировании JSON: %v", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "Ошибка при получении данных"

	switch {
	case errors.Is(err, models.ErrRunNotFound):
		status, message = http.StatusNotFound, "Запуск не найден"
	case errors.Is(err, archive.ErrReportNotFound):
		status, message = http.StatusNotFound, "Отчет запуска не найден"
	default:
		h.logger.Error("%s %s: %v", r.Method, r.URL.Path, err)
	}

	h.writeJSON(w, status, map[string]string{"error": message})
}

// intParam читает целый параметр запроса в пределах [1, max]
func intParam(r *http.Request, name string, def, max int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	if n > max {
		n = max
	}
	return n, true
}

func runID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}

// GetSummary GET /api/summary
func (h *Handlers) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.store.Summary()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// GetMonthlySales GET /api/sales/monthly?year=2005
func (h *Handlers) GetMonthlySales(w http.ResponseWriter, r *http.Request) {
	year := 0
	if raw := r.URL.Query().Get("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil || y < 1900 || y > 9999 {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Неверный формат года"})
			return
		}
		year = y
	}

	sales, err := h.store.MonthlySales(year)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"months": sales})
}

// GetTopFilms GET /api/films/top?limit=10
func (h *Handlers) GetTopFilms(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(r, "limit", defaultTopLimit, maxTopLimit)
	if !ok {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Неверный параметр limit"})
		return
	}

	films, err := h.store.TopFilms(limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"films": films})
}

// GetCategoryPerformance GET /api/categories/performance
func (h *Handlers) GetCategoryPerformance(w http.ResponseWriter, r *http.Request) {
	categories, err := h.store.CategoryPerformance()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"categories": categories})
}

// GetRuns GET /api/runs?limit=20
func (h *Handlers) GetRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(r, "limit", defaultRunsLimit, maxRunsLimit)
	if !ok {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Неверный параметр limit"})
		return
	}

	runs, err := h.store.Runs(limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []models.RunRecord{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// GetRun GET /api/runs/{id}
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(r)
	if !ok {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Неверный ID запуска"})
		return
	}

	run, err := h.store.Run(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

// GetRunAudit GET /api/runs/{id}/audit
func (h *Handlers) GetRunAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(r)
	if !ok {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Неверный ID запуска"})
		return
	}

	checks, err := h.store.Audit(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if checks == nil {
		checks = []models.QualityCheck{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"runId": id, "checks": checks})
}

// GetRunReport GET /api/runs/{id}/report
func (h *Handlers) GetRunReport(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(r)
	if !ok {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Неверный ID запуска"})
		return
	}

	report, _, err := h.store.Report(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(report)
}
