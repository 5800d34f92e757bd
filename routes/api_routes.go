// routes/api_routes.go
package routes

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/LilVoxy/rental_warehouse/ETL/models"
	"github.com/LilVoxy/rental_warehouse/database"
)

// ReportStore источник данных API отчетов
type ReportStore interface {
	Summary() (database.SalesSummary, error)
	MonthlySales(year int) ([]database.MonthlySales, error)
	TopFilms(limit int) ([]database.FilmSales, error)
	CategoryPerformance() ([]database.CategorySales, error)
	Runs(limit int) ([]models.RunRecord, error)
	Run(id int64) (*models.RunRecord, error)
	Audit(runID int64) ([]models.QualityCheck, error)
	Report(runID int64) (json.RawMessage, bool, error)
}

// SetupRoutes настраивает маршруты API; ws может быть nil
func SetupRoutes(router *mux.Router, h *Handlers, ws http.Handler) {
	router.Use(CORSMiddleware)

	if ws != nil {
		router.Handle("/ws/runs", ws)
	}

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/summary", h.GetSummary).Methods("GET", "OPTIONS")
	api.HandleFunc("/sales/monthly", h.GetMonthlySales).Methods("GET", "OPTIONS")
	api.HandleFunc("/films/top", h.GetTopFilms).Methods("GET", "OPTIONS")
	api.HandleFunc("/categories/performance", h.GetCategoryPerformance).Methods("GET", "OPTIONS")

	api.HandleFunc("/runs", h.GetRuns).Methods("GET", "OPTIONS")
	api.HandleFunc("/runs/{id:[0-9]+}", h.GetRun).Methods("GET", "OPTIONS")
	api.HandleFunc("/runs/{id:[0-9]+}/audit", h.GetRunAudit).Methods("GET", "OPTIONS")
	api.HandleFunc("/runs/{id:[0-9]+}/report", h.GetRunReport).Methods("GET", "OPTIONS")
	api.HandleFunc("/runs/{id:[0-9]+}/report.xlsx", h.GetRunReportXLSX).Methods("GET", "OPTIONS")
}

// CORSMiddleware разрешает запросы с любого источника
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
