package extractors

import (
	"fmt"
	"strings"
	"time"

	"github.com/LilVoxy/rental_warehouse/ETL/models"
	"github.com/LilVoxy/rental_warehouse/ETL/schema"
	"github.com/LilVoxy/rental_warehouse/ETL/utils"
)

// LoadMode режим записи в staging
type LoadMode string

const (
	ModeReplace LoadMode = "REPLACE"
	ModeAppend  LoadMode = "APPEND"
)

// StagingWriter область staging со стороны извлечения
type StagingWriter interface {
	EnsureTable(t *schema.Table) error
	Truncate(t *schema.Table) error
	// Insert записывает строки пакетами и возвращает число записанных
	Insert(t *schema.Table, rows []schema.StagedRecord, batchSize int) (int, error)
}

// TableStats статистика извлечения одной таблицы
type TableStats struct {
	Table    string `json:"table"`
	Read     int    `json:"read"`
	Written  int    `json:"written"`
	Rejected int    `json:"rejected"`
	Error    string `json:"error,omitempty"`
}

// Summary итог фазы извлечения
type Summary struct {
	RunID        int64        `json:"run_id"`
	Process      string       `json:"process"`
	Incremental  bool         `json:"incremental"`
	Since        *time.Time   `json:"since,omitempty"`
	Tables       []TableStats `json:"tables"`
	RowsRead     int          `json:"rows_read"`
	RowsWritten  int          `json:"rows_written"`
	RowsErrored  int          `json:"rows_errored"`
	FailedTables int          `json:"failed_tables"`
}

// Extractor координирует извлечение данных из источника в staging
type Extractor struct {
	source    Source
	staging   StagingWriter
	runs      models.RunRegistry
	logger    *utils.ETLLogger
	batchSize int
	tables    []*schema.Table
	now       func() time.Time

	runID int64
}

// NewExtractor создает новый экземпляр Extractor
func NewExtractor(source Source, staging StagingWriter, runs models.RunRegistry, logger *utils.ETLLogger, batchSize int) *Extractor {
	return &Extractor{
		source:    source,
		staging:   staging,
		runs:      runs,
		logger:    logger.WithField("component", "extractor"),
		batchSize: batchSize,
		tables:    schema.ExtractionOrder,
		now:       time.Now,
	}
}

// WithClock подменяет источник времени
func (e *Extractor) WithClock(now func() time.Time) *Extractor {
	e.now = now
	return e
}

// RunID возвращает ID текущего запуска извлечения
func (e *Extractor) RunID() int64 {
	return e.runID
}

// DetermineWatermark возвращает время окончания последнего успешного извлечения
func (e *Extractor) DetermineWatermark() (time.Time, bool, error) {
	ts, ok, err := e.runs.LastCompleted(models.ProcessExtraction)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("ошибка определения watermark: %w", err)
	}

	if ok {
		e.logger.Info("Watermark: %s", ts.Format("2006-01-02 15:04:05"))
	} else {
		e.logger.Info("Успешных извлечений не найдено, watermark отсутствует")
	}

	return ts, ok, nil
}

// ExtractTable читает одну таблицу источника
func (e *Extractor) ExtractTable(t *schema.Table, since *time.Time) ([]schema.Record, error) {
	rows, err := e.source.ReadTable(t, since)
	if err != nil {
		return nil, fmt.Errorf("ошибка извлечения %s: %w", t.Name, err)
	}

	e.logger.Debug("Извлечено %d строк из %s", len(rows), t.Name)
	return rows, nil
}

// LoadToStaging нормализует строки по реестру и записывает их в staging.
// Строки, не прошедшие нормализацию, отбрасываются и считаются ошибочными.
func (e *Extractor) LoadToStaging(t *schema.Table, rows []schema.Record, mode LoadMode) (written, rejected int, err error) {
	if mode == ModeReplace {
		if err := e.staging.Truncate(t); err != nil {
			return 0, 0, fmt.Errorf("ошибка очистки %s: %w", t.Staging, err)
		}
	}

	loadedAt := e.now()
	staged := make([]schema.StagedRecord, 0, len(rows))
	for _, raw := range rows {
		rec, err := t.Normalize(raw)
		if err != nil {
			rejected++
			e.logger.Warn("Строка %s отклонена: %v", t.Name, err)
			continue
		}
		staged = append(staged, schema.StagedRecord{
			LoadedAt: loadedAt,
			RunID:    e.runID,
			Valid:    true,
			Values:   rec,
		})
	}

	written, err = e.staging.Insert(t, staged, e.batchSize)
	if err != nil {
		return written, rejected, fmt.Errorf("ошибка записи в %s: %w", t.Staging, err)
	}

	return written, rejected, nil
}

// ExtractAll извлекает все таблицы в фиксированном порядке.
// Ошибка отдельной таблицы учитывается и не прерывает извлечение остальных.
func (e *Extractor) ExtractAll(incremental bool, since *time.Time) (summary Summary, err error) {
	incremental = incremental && since != nil
	process := models.ProcessExtractionFull
	mode := ModeReplace
	if incremental {
		process = models.ProcessExtractionIncrement
		mode = ModeAppend
	} else {
		since = nil
	}

	runID, err := e.runs.Start(process, e.now())
	if err != nil {
		return Summary{}, fmt.Errorf("ошибка регистрации запуска %s: %w", process, err)
	}
	e.runID = runID
	summary = Summary{RunID: runID, Process: process, Incremental: incremental, Since: since}

	e.logger.Info("Запуск %d: %s (режим %s)", runID, process, mode)

	defer func() {
		if r := recover(); r != nil {
			e.finish(summary, models.RunError, fmt.Sprintf("panic: %v", r))
			panic(r)
		}
	}()

	// Подготовка staging: ошибка здесь означает ошибку всей фазы
	for _, t := range e.tables {
		if err := e.staging.EnsureTable(t); err != nil {
			err = fmt.Errorf("ошибка подготовки %s: %w", t.Staging, err)
			e.finish(summary, models.RunError, err.Error())
			return summary, err
		}
	}

	for _, t := range e.tables {
		stats := TableStats{Table: t.Name}

		rows, err := e.ExtractTable(t, since)
		if err == nil {
			stats.Read = len(rows)
			stats.Written, stats.Rejected, err = e.LoadToStaging(t, rows, mode)
		}
		if err != nil {
			stats.Error = err.Error()
			summary.FailedTables++
			e.logger.Error("Таблица %s: %v", t.Name, err)
		}

		summary.Tables = append(summary.Tables, stats)
		summary.RowsRead += stats.Read
		summary.RowsWritten += stats.Written
		summary.RowsErrored += stats.Rejected
		e.logger.LogTableStats(t.Name, stats.Read, stats.Written, stats.Rejected)
	}

	if err := e.finish(summary, models.RunCompleted, failedTablesMessage(summary)); err != nil {
		return summary, err
	}

	e.logger.Info("Извлечение завершено: прочитано %d, записано %d, ошибок %d, таблиц с ошибкой %d",
		summary.RowsRead, summary.RowsWritten, summary.RowsErrored, summary.FailedTables)

	return summary, nil
}

// failedTablesMessage перечисляет таблицы, извлечение которых не удалось
func failedTablesMessage(summary Summary) string {
	var failed []string
	for _, t := range summary.Tables {
		if t.Error != "" {
			failed = append(failed, fmt.Sprintf("%s: %s", t.Table, t.Error))
		}
	}
	if len(failed) == 0 {
		return ""
	}
	return fmt.Sprintf("таблиц с ошибкой %d: %s", len(failed), strings.Join(failed, "; "))
}

// finish закрывает запись о запуске; rows_errored считает только отклоненные строки
func (e *Extractor) finish(summary Summary, status models.RunStatus, message string) error {
	err := e.runs.Finish(summary.RunID, models.RunOutcome{
		EndedAt:      e.now(),
		Status:       status,
		RowsRead:     summary.RowsRead,
		RowsWritten:  summary.RowsWritten,
		RowsErrored:  summary.RowsErrored,
		ErrorMessage: message,
	})
	if err != nil {
		e.logger.Error("Не удалось закрыть запуск %d: %v", summary.RunID, err)
		return fmt.Errorf("ошибка закрытия запуска %d: %w", summary.RunID, err)
	}
	return nil
}
