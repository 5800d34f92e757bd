// database/store.go
package database

import (
	"database/sql"
	"encoding/json"

	"github.com/LilVoxy/rental_warehouse/ETL/archive"
	"github.com/LilVoxy/rental_warehouse/ETL/models"
)

// Store объединяет отчеты хранилища и служебные таблицы staging
type Store struct {
	*Warehouse
	runs    *models.MySQLRunRegistry
	audit   *models.MySQLQualityAudit
	reports *archive.MySQLArchive
}

// NewStore создает хранилище отчетов поверх баз хранилища и staging
func NewStore(warehouseDB, stagingDB *sql.DB) *Store {
	return &Store{
		Warehouse: NewWarehouse(warehouseDB),
		runs:      models.NewMySQLRunRegistry(stagingDB),
		audit:     models.NewMySQLQualityAudit(stagingDB),
		reports:   archive.NewMySQLArchive(stagingDB),
	}
}

// Runs возвращает последние запуски
func (s *Store) Runs(limit int) ([]models.RunRecord, error) {
	return s.runs.Recent(limit)
}

// Run возвращает запуск по ID
func (s *Store) Run(id int64) (*models.RunRecord, error) {
	return s.runs.Get(id)
}

// Audit возвращает проверки качества запуска
func (s *Store) Audit(runID int64) ([]models.QualityCheck, error) {
	return s.audit.ForRun(runID)
}

// Report возвращает архивный отчет запуска
func (s *Store) Report(runID int64) (json.RawMessage, bool, error) {
	return s.reports.Load(runID)
}
