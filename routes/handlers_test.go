package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/LilVoxy/rental_warehouse/ETL/memstore"
	"github.com/LilVoxy/rental_warehouse/ETL/models"
	"github.com/LilVoxy/rental_warehouse/ETL/utils"
	"github.com/LilVoxy/rental_warehouse/database"
)

var _ ReportStore = (*database.Store)(nil)

type fakeStore struct {
	runs    *memstore.Runs
	audit   *memstore.Audit
	archive *memstore.Archive

	summaryErr error
	lastYear   int
	lastLimit  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{runs: memstore.NewRuns(), audit: memstore.NewAudit(), archive: memstore.NewArchive()}
}

func (s *fakeStore) Summary() (database.SalesSummary, error) {
	if s.summaryErr != nil {
		return database.SalesSummary{}, s.summaryErr
	}
	return database.SalesSummary{Rentals: 16044, TotalAmount: decimal.RequireFromString("67416.51"), Stores: 2}, nil
}

func (s *fakeStore) MonthlySales(year int) ([]database.MonthlySales, error) {
	s.lastYear = year
	return []database.MonthlySales{{Year: 2005, Month: 5, MonthName: "May", Rentals: 1156}}, nil
}

func (s *fakeStore) TopFilms(limit int) ([]database.FilmSales, error) {
	s.lastLimit = limit
	return []database.FilmSales{{FilmID: 879, Title: "TELEGRAPH VOYAGE", Rentals: 27}}, nil
}

func (s *fakeStore) CategoryPerformance() ([]database.CategorySales, error) {
	return []database.CategorySales{{CategoryID: 15, Name: "Sports"}}, nil
}

func (s *fakeStore) Runs(limit int) ([]models.RunRecord, error) {
	s.lastLimit = limit
	return s.runs.Recent(limit)
}

func (s *fakeStore) Run(id int64) (*models.RunRecord, error) {
	return s.runs.Get(id)
}

func (s *fakeStore) Audit(runID int64) ([]models.QualityCheck, error) {
	return s.audit.ForRun(runID)
}

func (s *fakeStore) Report(runID int64) (json.RawMessage, bool, error) {
	return s.archive.Load(runID)
}

func newServer(store ReportStore) *mux.Router {
	router := mux.NewRouter()
	SetupRoutes(router, NewHandlers(store, utils.Discard()), nil)
	return router
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

// seedRun создает завершенный запуск с проверкой качества и архивным отчетом
func seedRun(t *testing.T, s *fakeStore) int64 {
	t.Helper()
	started := time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC)
	id, err := s.runs.Start(models.ProcessExtractionFull, started)
	require.NoError(t, err)
	require.NoError(t, s.runs.Finish(id, models.RunOutcome{EndedAt: started.Add(time.Minute), Status: models.RunCompleted, RowsRead: 10, RowsWritten: 9, RowsErrored: 1}))
	require.NoError(t, s.audit.Record(models.QualityCheck{RunID: id, SourceTable: "rental", TargetTable: "rental", Check: "uniqueness", Result: models.CheckPass}))
	require.NoError(t, s.archive.Save(id, true, []byte(`{"run_id":1,"success":true,"phases":[{"phase":"EXTRACTION","state":"FINISHED","seconds":1.5}]}`)))
	return id
}

func TestSummaryEndpoint(t *testing.T) {
	rec := get(t, newServer(newFakeStore()), "/api/summary")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 16044, body["rentals"])
	assert.Equal(t, "67416.51", body["totalAmount"])
}

func TestStoreErrorIsInternalError(t *testing.T) {
	store := newFakeStore()
	store.summaryErr = errors.New("connection refused")

	rec := get(t, newServer(store), "/api/summary")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestQueryParameters(t *testing.T) {
	store := newFakeStore()
	router := newServer(store)

	assert.Equal(t, http.StatusOK, get(t, router, "/api/sales/monthly?year=2005").Code)
	assert.Equal(t, 2005, store.lastYear)
	assert.Equal(t, http.StatusBadRequest, get(t, router, "/api/sales/monthly?year=abc").Code)

	assert.Equal(t, http.StatusOK, get(t, router, "/api/films/top").Code)
	assert.Equal(t, defaultTopLimit, store.lastLimit)
	assert.Equal(t, http.StatusOK, get(t, router, "/api/films/top?limit=5000").Code)
	assert.Equal(t, maxTopLimit, store.lastLimit)
	assert.Equal(t, http.StatusBadRequest, get(t, router, "/api/films/top?limit=-1").Code)

	assert.Equal(t, http.StatusOK, get(t, router, "/api/categories/performance").Code)
}

func TestRunEndpoints(t *testing.T) {
	store := newFakeStore()
	id := seedRun(t, store)
	router := newServer(store)

	rec := get(t, router, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs struct {
		Runs []models.RunRecord `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs.Runs, 1)
	assert.Equal(t, models.RunCompleted, runs.Runs[0].Status)

	rec = get(t, router, "/api/runs/1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"rows_errored":1`)

	rec = get(t, router, "/api/runs/1/audit")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"check":"uniqueness"`)

	rec = get(t, router, "/api/runs/1/report")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"run_id":1,"success":true,"phases":[{"phase":"EXTRACTION","state":"FINISHED","seconds":1.5}]}`, rec.Body.String())

	assert.Equal(t, int64(1), id)
}

func TestMissingRunIsNotFound(t *testing.T) {
	router := newServer(newFakeStore())

	assert.Equal(t, http.StatusNotFound, get(t, router, "/api/runs/99").Code)
	assert.Equal(t, http.StatusNotFound, get(t, router, "/api/runs/99/report").Code)
	assert.Equal(t, http.StatusNotFound, get(t, router, "/api/runs/abc").Code, "route pattern accepts digits only")
}

func TestRunReportWorkbook(t *testing.T) {
	store := newFakeStore()
	seedRun(t, store)

	rec := get(t, newServer(store), "/api/runs/1/report.xlsx")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "attachment; filename=run_1.xlsx", rec.Header().Get("Content-Disposition"))

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{runSheet, qualitySheet, phasesSheet}, f.GetSheetList())

	status, err := f.GetCellValue(runSheet, "B3")
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", status)

	check, err := f.GetCellValue(qualitySheet, "A2")
	require.NoError(t, err)
	assert.Equal(t, "uniqueness", check)

	phase, err := f.GetCellValue(phasesSheet, "A2")
	require.NoError(t, err)
	assert.Equal(t, "EXTRACTION", phase)
}

func TestWorkbookWithoutArchivedReport(t *testing.T) {
	store := newFakeStore()
	_, err := store.runs.Start(models.ProcessTransformation, time.Now())
	require.NoError(t, err)

	rec := get(t, newServer(store), "/api/runs/1/report.xlsx")
	require.Equal(t, http.StatusOK, rec.Code)

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{runSheet, qualitySheet}, f.GetSheetList())
}

func TestPreflightRequest(t *testing.T) {
	rec := httptest.NewRecorder()
	newServer(newFakeStore()).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/runs", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}
