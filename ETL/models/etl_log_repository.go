package models

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// MySQLRunRegistry реализация RunRegistry для MySQL (таблица etl_control в staging)
type MySQLRunRegistry struct {
	db *sql.DB
}

// NewMySQLRunRegistry создает новый экземпляр MySQLRunRegistry
func NewMySQLRunRegistry(db *sql.DB) *MySQLRunRegistry {
	return &MySQLRunRegistry{
		db: db,
	}
}

// CreateTable создает таблицу журнала запусков, если она не существует
func (r *MySQLRunRegistry) CreateTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS etl_control (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		process_name VARCHAR(64) NOT NULL,
		start_time DATETIME NOT NULL,
		end_time DATETIME NULL,
		status ENUM('STARTED', 'COMPLETED', 'ERROR') NOT NULL DEFAULT 'STARTED',
		rows_read INT DEFAULT 0,
		rows_written INT DEFAULT 0,
		rows_errored INT DEFAULT 0,
		error_message TEXT,
		duration_seconds DOUBLE DEFAULT 0,
		INDEX idx_process_status (process_name, status)
	)
	`

	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("ошибка при создании таблицы etl_control: %w", err)
	}

	return nil
}

// Start создает новую запись о запуске
func (r *MySQLRunRegistry) Start(process string, startedAt time.Time) (int64, error) {
	result, err := r.db.Exec(
		"INSERT INTO etl_control (process_name, start_time, status) VALUES (?, ?, 'STARTED')",
		process, startedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("ошибка при создании записи о запуске %s: %w", process, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("ошибка при получении ID созданной записи: %w", err)
	}

	return id, nil
}

// Finish закрывает запись, длительность рассчитывается от start_time
func (r *MySQLRunRegistry) Finish(id int64, outcome RunOutcome) error {
	record, err := r.Get(id)
	if err != nil {
		return err
	}
	if record.Closed() {
		return fmt.Errorf("запуск %d: %w", id, ErrRunClosed)
	}

	duration := outcome.EndedAt.Sub(record.StartedAt).Seconds()
	if duration < 0 {
		duration = 0
	}

	query := `
	UPDATE etl_control
	SET
		end_time = ?,
		status = ?,
		rows_read = ?,
		rows_written = ?,
		rows_errored = ?,
		error_message = ?,
		duration_seconds = ?
	WHERE id = ? AND status = 'STARTED'
	`

	result, err := r.db.Exec(
		query,
		outcome.EndedAt,
		string(outcome.Status),
		outcome.RowsRead,
		outcome.RowsWritten,
		outcome.RowsErrored,
		nullString(outcome.ErrorMessage),
		duration,
		id,
	)
	if err != nil {
		return fmt.Errorf("ошибка при обновлении записи о запуске %d: %w", id, err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("запуск %d: %w", id, ErrRunClosed)
	}

	return nil
}

// LastCompleted возвращает время окончания последнего успешного запуска процесса
func (r *MySQLRunRegistry) LastCompleted(prefix string) (time.Time, bool, error) {
	var last sql.NullTime
	err := r.db.QueryRow(
		"SELECT MAX(end_time) FROM etl_control WHERE status = 'COMPLETED' AND process_name LIKE CONCAT(?, '%')",
		prefix,
	).Scan(&last)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("ошибка при получении последнего успешного запуска: %w", err)
	}

	if !last.Valid {
		return time.Time{}, false, nil // Нет успешных запусков
	}

	return last.Time, true, nil
}

const runColumns = `
	id, process_name, start_time, end_time, status,
	rows_read, rows_written, rows_errored,
	IFNULL(error_message, ''), IFNULL(duration_seconds, 0)
`

// Get получает запись по ID
func (r *MySQLRunRegistry) Get(id int64) (*RunRecord, error) {
	row := r.db.QueryRow("SELECT "+runColumns+" FROM etl_control WHERE id = ?", id)

	record, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("запуск %d: %w", id, ErrRunNotFound)
		}
		return nil, fmt.Errorf("ошибка при получении запуска %d: %w", id, err)
	}

	return &record, nil
}

// Recent получает последние запуски
func (r *MySQLRunRegistry) Recent(limit int) ([]RunRecord, error) {
	rows, err := r.db.Query("SELECT "+runColumns+" FROM etl_control ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении списка запусков: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка при сканировании записи о запуске: %w", err)
		}
		records = append(records, record)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка после итерации по записям о запусках: %w", err)
	}

	return records, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s rowScanner) (RunRecord, error) {
	var (
		record RunRecord
		ended  sql.NullTime
		status string
	)

	err := s.Scan(
		&record.ID, &record.Process, &record.StartedAt, &ended, &status,
		&record.RowsRead, &record.RowsWritten, &record.RowsErrored,
		&record.ErrorMessage, &record.DurationSeconds,
	)
	if err != nil {
		return RunRecord{}, err
	}

	record.Status = RunStatus(status)
	if ended.Valid {
		t := ended.Time
		record.EndedAt = &t
	}

	return record, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
