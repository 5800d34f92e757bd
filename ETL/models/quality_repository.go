package models

import (
	"database/sql"
	"fmt"
)

// MySQLQualityAudit реализация QualityAudit для MySQL (таблица audit_quality в staging)
type MySQLQualityAudit struct {
	db *sql.DB
}

// NewMySQLQualityAudit создает новый экземпляр MySQLQualityAudit
func NewMySQLQualityAudit(db *sql.DB) *MySQLQualityAudit {
	return &MySQLQualityAudit{db: db}
}

// CreateTable создает таблицу аудита, если она не существует
func (a *MySQLQualityAudit) CreateTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_quality (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		run_id BIGINT NOT NULL,
		source_table VARCHAR(64),
		target_table VARCHAR(64),
		check_name VARCHAR(128) NOT NULL,
		result ENUM('PASS', 'FAIL', 'WARNING') NOT NULL,
		expected_value TEXT,
		observed_value TEXT,
		message TEXT,
		checked_at DATETIME NOT NULL,
		INDEX idx_run (run_id)
	)
	`

	if _, err := a.db.Exec(query); err != nil {
		return fmt.Errorf("ошибка при создании таблицы audit_quality: %w", err)
	}

	return nil
}

// Record добавляет запись аудита
func (a *MySQLQualityAudit) Record(check QualityCheck) error {
	query := `
	INSERT INTO audit_quality
		(run_id, source_table, target_table, check_name, result,
		 expected_value, observed_value, message, checked_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := a.db.Exec(
		query,
		check.RunID, check.SourceTable, check.TargetTable, check.Check, string(check.Result),
		check.Expected, check.Observed, check.Message, check.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка при записи проверки %s: %w", check.Check, err)
	}

	return nil
}

// ForRun получает записи аудита запуска в порядке добавления
func (a *MySQLQualityAudit) ForRun(runID int64) ([]QualityCheck, error) {
	rows, err := a.db.Query(`
		SELECT id, run_id, IFNULL(source_table, ''), IFNULL(target_table, ''), check_name, result,
		       IFNULL(expected_value, ''), IFNULL(observed_value, ''), IFNULL(message, ''), checked_at
		FROM audit_quality
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении аудита запуска %d: %w", runID, err)
	}
	defer rows.Close()

	var checks []QualityCheck
	for rows.Next() {
		var (
			c      QualityCheck
			result string
		)
		if err := rows.Scan(
			&c.ID, &c.RunID, &c.SourceTable, &c.TargetTable, &c.Check, &result,
			&c.Expected, &c.Observed, &c.Message, &c.CheckedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка при сканировании записи аудита: %w", err)
		}
		c.Result = CheckResult(result)
		checks = append(checks, c)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка после итерации по записям аудита: %w", err)
	}

	return checks, nil
}
