package models

import (
	"strings"
	"time"
)

// RunStatus статус записи журнала запусков
type RunStatus string

const (
	RunStarted   RunStatus = "STARTED"
	RunCompleted RunStatus = "COMPLETED"
	RunError     RunStatus = "ERROR"
)

// Префиксы имен процессов в журнале запусков
const (
	ProcessExtraction          = "EXTRACTION"
	ProcessExtractionFull      = "EXTRACTION_FULL"
	ProcessExtractionIncrement = "EXTRACTION_INCREMENTAL"
	ProcessTransformation      = "TRANSFORMATION"
)

// RunRecord представляет запись о запуске фазы ETL
type RunRecord struct {
	ID              int64      `json:"id"`
	Process         string     `json:"process"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	Status          RunStatus  `json:"status"`
	RowsRead        int        `json:"rows_read"`
	RowsWritten     int        `json:"rows_written"`
	RowsErrored     int        `json:"rows_errored"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	DurationSeconds float64    `json:"duration_seconds"`
}

// Closed сообщает, закрыта ли запись
func (r RunRecord) Closed() bool {
	return r.Status != RunStarted
}

// IsExtraction сообщает, относится ли запись к извлечению
func (r RunRecord) IsExtraction() bool {
	return strings.HasPrefix(r.Process, ProcessExtraction)
}

// RunOutcome итог фазы, которым закрывается запись
type RunOutcome struct {
	EndedAt      time.Time
	Status       RunStatus
	RowsRead     int
	RowsWritten  int
	RowsErrored  int
	ErrorMessage string
}

// RunRegistry журнал запусков ETL
type RunRegistry interface {
	// Start регистрирует новый запуск со статусом STARTED
	Start(process string, startedAt time.Time) (int64, error)

	// Finish закрывает запись; закрытую запись изменить нельзя
	Finish(id int64, outcome RunOutcome) error

	// LastCompleted возвращает максимальное время окончания COMPLETED запусков
	// с именем процесса, начинающимся с prefix
	LastCompleted(prefix string) (time.Time, bool, error)

	Get(id int64) (*RunRecord, error)

	// Recent возвращает последние запуски, новые первыми
	Recent(limit int) ([]RunRecord, error)
}
