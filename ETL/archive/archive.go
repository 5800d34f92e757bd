package archive

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/LilVoxy/rental_warehouse/processor"
)

// ErrReportNotFound отчет запуска отсутствует в архиве
var ErrReportNotFound = errors.New("отчет не найден")

// MySQLArchive хранит сжатые отчеты запусков в таблице etl_report
type MySQLArchive struct {
	db  *sql.DB
	now func() time.Time
}

// NewMySQLArchive создает новый экземпляр MySQLArchive
func NewMySQLArchive(db *sql.DB) *MySQLArchive {
	return &MySQLArchive{db: db, now: time.Now}
}

// CreateTable создает таблицу архива, если она не существует
func (a *MySQLArchive) CreateTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS etl_report (
		run_id BIGINT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		success BOOLEAN NOT NULL,
		payload MEDIUMBLOB NOT NULL
	)
	`
	if _, err := a.db.Exec(query); err != nil {
		return fmt.Errorf("ошибка при создании таблицы etl_report: %w", err)
	}
	return nil
}

// Save сохраняет JSON отчета в сжатом виде; повторное сохранение перезаписывает отчет
func (a *MySQLArchive) Save(runID int64, success bool, report []byte) error {
	_, err := a.db.Exec(`
		INSERT INTO etl_report (run_id, created_at, success, payload)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
		created_at = VALUES(created_at),
		success = VALUES(success),
		payload = VALUES(payload)
	`, runID, a.now(), success, processor.CompressReport(report))
	if err != nil {
		return fmt.Errorf("ошибка при сохранении отчета запуска %d: %w", runID, err)
	}
	return nil
}

// Load возвращает распакованный отчет запуска и признак успеха
func (a *MySQLArchive) Load(runID int64) (json.RawMessage, bool, error) {
	var success bool
	var payload []byte

	err := a.db.QueryRow("SELECT success, payload FROM etl_report WHERE run_id = ?", runID).Scan(&success, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("запуск %d: %w", runID, ErrReportNotFound)
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка при чтении отчета запуска %d: %w", runID, err)
	}

	raw, err := processor.DecodeReport(payload)
	if err != nil {
		return nil, false, fmt.Errorf("отчет запуска %d поврежден: %w", runID, err)
	}
	return raw, success, nil
}
