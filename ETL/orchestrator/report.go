package orchestrator

import (
	"fmt"
	"time"

	"github.com/LilVoxy/rental_warehouse/ETL/extractors"
	"github.com/LilVoxy/rental_warehouse/ETL/models"
	"github.com/LilVoxy/rental_warehouse/ETL/staging"
	"github.com/LilVoxy/rental_warehouse/ETL/transform"
)

// Phase фаза конвейера
type Phase string

const (
	PhaseExtraction     Phase = "EXTRACTION"
	PhaseValidationPre  Phase = "VALIDATION_PRE"
	PhaseCleansing      Phase = "CLEANSING"
	PhaseValidationPost Phase = "VALIDATION_POST"
	PhaseTransformation Phase = "TRANSFORMATION"
	PhaseReport         Phase = "REPORT"
)

// PhaseState состояние фазы
type PhaseState string

const (
	StateStarted  PhaseState = "STARTED"
	StateFinished PhaseState = "FINISHED"
	StateFailed   PhaseState = "FAILED"
	StateSkipped  PhaseState = "SKIPPED"
)

// Режимы извлечения
const (
	ModeFull        = "FULL"
	ModeIncremental = "INCREMENTAL"
)

func modeName(incremental bool) string {
	if incremental {
		return ModeIncremental
	}
	return ModeFull
}

// PhaseEvent событие смены состояния фазы
type PhaseEvent struct {
	Phase   Phase      `json:"phase"`
	State   PhaseState `json:"state"`
	At      time.Time  `json:"at"`
	Message string     `json:"message,omitempty"`
}

// PhaseTiming время выполнения фазы
type PhaseTiming struct {
	Phase     Phase      `json:"phase"`
	State     PhaseState `json:"state"`
	StartedAt time.Time  `json:"started_at,omitempty"`
	Seconds   float64    `json:"seconds"`
}

// ValidationResult итог фазы проверки
type ValidationResult struct {
	PassRate float64  `json:"pass_rate"`
	Checks   int      `json:"checks"`
	Failed   []string `json:"failed,omitempty"`
	Warnings int      `json:"warnings"`
}

// Report итоговый отчет запуска
type Report struct {
	RunID           int64            `json:"run_id"`
	Success         bool             `json:"success"`
	FailedPhase     Phase            `json:"failed_phase,omitempty"`
	ErrorKind       models.ErrorKind `json:"error_kind,omitempty"`
	Error           string           `json:"error,omitempty"`
	RequestedMode   string           `json:"requested_mode"`
	EffectiveMode   string           `json:"effective_mode"`
	Since           *time.Time       `json:"since,omitempty"`
	StartedAt       time.Time        `json:"started_at"`
	FinishedAt      time.Time        `json:"finished_at"`
	DurationSeconds float64          `json:"duration_seconds"`
	Phases          []PhaseTiming    `json:"phases"`

	Extraction     *extractors.Summary `json:"extraction,omitempty"`
	ValidationPre  *ValidationResult   `json:"validation_pre,omitempty"`
	Cleansing      *staging.Stats      `json:"cleansing,omitempty"`
	ValidationPost *ValidationResult   `json:"validation_post,omitempty"`
	Transformation *transform.Summary  `json:"transformation,omitempty"`

	// Разница процента успешных проверок после и до очистки, п.п.
	Improvement *float64 `json:"improvement,omitempty"`

	Archived bool `json:"-"`
}

func (r *Report) fail(phase Phase, err error) {
	r.Success = false
	r.FailedPhase = phase
	r.ErrorKind = models.KindOf(err)
	r.Error = err.Error()
}

// ExitCode код завершения процесса
func (r Report) ExitCode() int {
	if r.Success {
		return 0
	}
	return 1
}

// Lines форматирует отчет для лога
func (r Report) Lines() []string {
	status := "УСПЕХ"
	if !r.Success {
		status = "ОШИБКА"
	}

	lines := []string{
		"==================== ОТЧЕТ ETL ====================",
		fmt.Sprintf("Запуск: %d, статус: %s, длительность: %.2f с", r.RunID, status, r.DurationSeconds),
		fmt.Sprintf("Режим: запрошен %s, выполнен %s", r.RequestedMode, r.EffectiveMode),
	}
	for _, p := range r.Phases {
		lines = append(lines, fmt.Sprintf("  %-16s %-9s %.2f с", p.Phase, p.State, p.Seconds))
	}

	if e := r.Extraction; e != nil {
		lines = append(lines, fmt.Sprintf("Извлечение: прочитано %d, записано %d, ошибок %d, таблиц с ошибкой %d",
			e.RowsRead, e.RowsWritten, e.RowsErrored, e.FailedTables))
	}
	if v := r.ValidationPre; v != nil {
		lines = append(lines, fmt.Sprintf("Качество до очистки: %.1f%% (%d проверок)", v.PassRate, v.Checks))
	}
	if c := r.Cleansing; c != nil {
		lines = append(lines, fmt.Sprintf("Очистка: удалено дубликатов %d, помечено невалидными %d", c.TotalDuplicates(), c.TotalInvalid()))
	}
	if v := r.ValidationPost; v != nil {
		lines = append(lines, fmt.Sprintf("Качество после очистки: %.1f%% (%d проверок)", v.PassRate, v.Checks))
	}
	if r.Improvement != nil {
		lines = append(lines, fmt.Sprintf("Улучшение качества: %+.1f п.п.", *r.Improvement))
	}
	if t := r.Transformation; t != nil {
		lines = append(lines, fmt.Sprintf("Преобразование: дней %d, фильмов новых %d / версий %d, категорий %d, магазинов %d, фактов %d",
			t.Days, t.Films.Inserted, t.Films.Versioned, t.Categories, t.Stores, t.Facts.Facts))
	}
	if !r.Success {
		lines = append(lines, fmt.Sprintf("Ошибка в фазе %s: %s", r.FailedPhase, r.Error))
	}

	return append(lines, "===================================================")
}
