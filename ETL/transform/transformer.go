package transform

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LilVoxy/rental_warehouse/ETL/config"
	"github.com/LilVoxy/rental_warehouse/ETL/models"
	"github.com/LilVoxy/rental_warehouse/ETL/schema"
	"github.com/LilVoxy/rental_warehouse/ETL/utils"
)

// StagingReader чтение очищенных строк staging
type StagingReader interface {
	Rows(t *schema.Table, validOnly bool) ([]schema.StagedRecord, error)
}

// Warehouse звездная схема хранилища
type Warehouse interface {
	// ReplaceTimeDimension полностью заменяет календарь
	ReplaceTimeDimension(days []models.TimeDimension) (int, error)

	// ActiveFilm возвращает активную версию фильма или models.ErrNoActiveVersion
	ActiveFilm(filmID int) (*models.FilmDimension, error)
	InsertFilm(f models.FilmDimension) (int64, error)

	// CloseAndInsertFilm в одной транзакции закрывает версию closeKey и вставляет next
	CloseAndInsertFilm(closeKey int64, validTo time.Time, next models.FilmDimension) (int64, error)

	ReplaceCategories(rows []models.CategoryDimension) (int, error)
	ReplaceStores(rows []models.StoreDimension) (int, error)
	ActiveKeys() (models.ActiveKeys, error)

	// AppendSalesFacts только добавляет строки фактов
	AppendSalesFacts(facts []models.SalesFact) (int, error)
}

// Summary итог фазы преобразования
type Summary struct {
	RunID           int64     `json:"run_id"`
	TransformRunID  int64     `json:"transform_run_id,omitempty"`
	Days            int       `json:"days"`
	Films           FilmStats `json:"films"`
	Categories      int       `json:"categories"`
	Stores          int       `json:"stores"`
	Facts           FactStats `json:"facts"`
	DurationSeconds float64   `json:"duration_seconds"`
}

func (s Summary) rowsWritten() int {
	return s.Days + s.Films.Inserted + s.Films.Versioned + s.Categories + s.Stores + s.Facts.Facts
}

// Transformer заполняет измерения и факты хранилища из очищенного staging
type Transformer struct {
	staging   StagingReader
	warehouse Warehouse
	runs      models.RunRegistry
	logger    *utils.ETLLogger

	calendarStart time.Time
	calendarEnd   time.Time
	rateEpsilon   decimal.Decimal

	now func() time.Time
}

// NewTransformer создает новый экземпляр Transformer; runs может быть nil,
// тогда запись о запуске преобразования не ведется
func NewTransformer(staging StagingReader, warehouse Warehouse, runs models.RunRegistry, cfg config.ETLConfig, logger *utils.ETLLogger) *Transformer {
	return &Transformer{
		staging:       staging,
		warehouse:     warehouse,
		runs:          runs,
		logger:        logger.WithField("component", "transformer"),
		calendarStart: cfg.TimeDimensionStart,
		calendarEnd:   cfg.TimeDimensionEnd,
		rateEpsilon:   cfg.Rules.RateEpsilon,
		now:           time.Now,
	}
}

// WithClock подменяет источник времени
func (t *Transformer) WithClock(now func() time.Time) *Transformer {
	t.now = now
	return t
}

// validRows читает валидные строки таблицы staging
func (t *Transformer) validRows(tbl *schema.Table) ([]schema.StagedRecord, error) {
	rows, err := t.staging.Rows(tbl, true)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения %s: %w", tbl.Staging, err)
	}
	return rows, nil
}

// RunFull выполняет преобразование в порядке: время, фильмы, категории, магазины, факты.
// Любая ошибка прерывает фазу; уже зафиксированные шаги не откатываются.
func (t *Transformer) RunFull(runID int64) (summary Summary, err error) {
	started := t.now()
	summary = Summary{RunID: runID}

	if t.runs != nil {
		if summary.TransformRunID, err = t.runs.Start(models.ProcessTransformation, started); err != nil {
			return summary, fmt.Errorf("ошибка регистрации запуска преобразования: %w", err)
		}
		defer func() {
			if r := recover(); r != nil {
				t.finish(summary, fmt.Errorf("panic: %v", r))
				panic(r)
			}
			if ferr := t.finish(summary, err); ferr != nil && err == nil {
				err = ferr
			}
		}()
	}

	t.logger.Info("Начало преобразования для запуска %d", runID)

	if summary.Days, err = t.PopulateTimeDimension(t.calendarStart, t.calendarEnd); err != nil {
		return summary, err
	}
	if summary.Films, err = t.PopulateFilmDimension(); err != nil {
		return summary, err
	}
	if summary.Categories, err = t.PopulateCategoryDimension(); err != nil {
		return summary, err
	}
	if summary.Stores, err = t.PopulateStoreDimension(); err != nil {
		return summary, err
	}
	if summary.Facts, err = t.PopulateSalesFacts(runID); err != nil {
		return summary, err
	}

	summary.DurationSeconds = t.now().Sub(started).Seconds()
	t.logger.Info("Преобразование завершено: дней %d, фильмов новых %d / новых версий %d, категорий %d, магазинов %d, фактов %d",
		summary.Days, summary.Films.Inserted, summary.Films.Versioned, summary.Categories, summary.Stores, summary.Facts.Facts)

	return summary, nil
}

func (t *Transformer) finish(summary Summary, phaseErr error) error {
	outcome := models.RunOutcome{
		EndedAt:     t.now(),
		Status:      models.RunCompleted,
		RowsRead:    summary.Films.Read + summary.Facts.Rentals,
		RowsWritten: summary.rowsWritten(),
		RowsErrored: summary.Facts.Skipped,
	}
	if phaseErr != nil {
		outcome.Status = models.RunError
		outcome.ErrorMessage = phaseErr.Error()
	}

	if err := t.runs.Finish(summary.TransformRunID, outcome); err != nil {
		t.logger.Error("Не удалось закрыть запуск преобразования %d: %v", summary.TransformRunID, err)
		return fmt.Errorf("ошибка закрытия запуска преобразования: %w", err)
	}
	return nil
}
