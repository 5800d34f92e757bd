package orchestrator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/LilVoxy/rental_warehouse/ETL/extractors"
	"github.com/LilVoxy/rental_warehouse/ETL/models"
	"github.com/LilVoxy/rental_warehouse/ETL/staging"
	"github.com/LilVoxy/rental_warehouse/ETL/transform"
	"github.com/LilVoxy/rental_warehouse/ETL/utils"
	"github.com/LilVoxy/rental_warehouse/ETL/validation"
)

// Extraction фаза извлечения
type Extraction interface {
	DetermineWatermark() (time.Time, bool, error)
	ExtractAll(incremental bool, since *time.Time) (extractors.Summary, error)
}

// Validation фаза проверки качества
type Validation interface {
	RunAll(runID int64) (validation.Summary, error)
}

// Cleansing фаза очистки
type Cleansing interface {
	ProcessAll(runID int64) (staging.Stats, error)
}

// Transformation фаза преобразования
type Transformation interface {
	RunFull(runID int64) (transform.Summary, error)
}

// Archive хранилище итоговых отчетов
type Archive interface {
	Save(runID int64, success bool, report []byte) error
}

// Observer получает события фаз
type Observer func(PhaseEvent)

// Dependencies фазы конвейера; Archive и Observer необязательны
type Dependencies struct {
	Extraction     Extraction
	Validation     Validation
	Cleansing      Cleansing
	Transformation Transformation
	Archive        Archive
	Observer       Observer
}

// Options параметры запуска
type Options struct {
	Incremental    bool
	SkipValidation bool

	// Процент успешных проверок, ниже которого выводится предупреждение
	ValidationWarnRate float64
}

// Orchestrator последовательно выполняет фазы ETL
type Orchestrator struct {
	deps   Dependencies
	opts   Options
	logger *utils.ETLLogger
	now    func() time.Time
}

// New создает новый экземпляр Orchestrator
func New(deps Dependencies, opts Options, logger *utils.ETLLogger) *Orchestrator {
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		logger: logger.WithField("component", "orchestrator"),
		now:    time.Now,
	}
}

// WithClock подменяет источник времени
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

type step struct {
	phase       Phase
	description string
	kind        models.ErrorKind
	skip        bool
	run         func(*Report) error
}

func (o *Orchestrator) steps() []step {
	return []step{
		{PhaseExtraction, "извлечение из источника в staging", models.KindExtraction, false, o.extract},
		{PhaseValidationPre, "проверка качества до очистки", models.KindValidation, o.opts.SkipValidation, o.validatePre},
		{PhaseCleansing, "очистка staging", models.KindCleansing, false, o.cleanse},
		{PhaseValidationPost, "проверка качества после очистки", models.KindValidation, o.opts.SkipValidation, o.validatePost},
		{PhaseTransformation, "заполнение измерений и фактов", models.KindTransformation, false, o.transform},
	}
}

// Run выполняет конвейер; ошибки и паники фаз превращаются в неуспешный отчет
func (o *Orchestrator) Run() (report Report) {
	report = Report{
		RequestedMode: modeName(o.opts.Incremental),
		EffectiveMode: modeName(o.opts.Incremental),
		StartedAt:     o.now(),
	}

	o.logger.Info("Запуск ETL: режим %s, проверки %s", report.RequestedMode, onOff(!o.opts.SkipValidation))

	// паника вне тела фазы (например, в наблюдателе) относится к текущей фазе
	current := PhaseReport
	defer func() {
		if r := recover(); r != nil {
			err := models.NewPipelineError(models.KindInternal, string(current), fmt.Errorf("panic: %v", r))
			report.fail(current, err)
		}
		o.finishReport(&report)
	}()

	for _, s := range o.steps() {
		current = s.phase
		if s.skip {
			report.Phases = append(report.Phases, PhaseTiming{Phase: s.phase, State: StateSkipped})
			o.notify(s.phase, StateSkipped, "")
			o.logger.Info("Фаза %s пропущена", s.phase)
			continue
		}

		if err := o.runPhase(&report, s); err != nil {
			report.fail(s.phase, err)
			return report
		}
	}

	report.Success = true
	return report
}

// runPhase выполняет одну фазу, перехватывая панику
func (o *Orchestrator) runPhase(report *Report, s step) (err error) {
	started := o.now()
	o.logger.LogPhaseStart(string(s.phase), s.description)
	o.notify(s.phase, StateStarted, s.description)

	defer func() {
		if r := recover(); r != nil {
			err = models.NewPipelineError(models.KindInternal, string(s.phase), fmt.Errorf("panic: %v", r))
		}

		timing := PhaseTiming{
			Phase:     s.phase,
			StartedAt: started,
			Seconds:   o.now().Sub(started).Seconds(),
			State:     StateFinished,
		}
		if err != nil {
			timing.State = StateFailed
		}
		report.Phases = append(report.Phases, timing)

		if err != nil {
			o.logger.LogPhaseEnd(string(s.phase), false, err.Error())
			o.notify(s.phase, StateFailed, err.Error())
		} else {
			o.logger.LogPhaseEnd(string(s.phase), true, fmt.Sprintf("%.2f с", timing.Seconds))
			o.notify(s.phase, StateFinished, "")
		}
	}()

	if err := s.run(report); err != nil {
		return models.NewPipelineError(s.kind, string(s.phase), err)
	}
	return nil
}

func (o *Orchestrator) extract(report *Report) error {
	var since *time.Time

	if o.opts.Incremental {
		watermark, ok, err := o.deps.Extraction.DetermineWatermark()
		if err != nil {
			return err
		}
		if ok {
			since = &watermark
		} else {
			o.logger.Warn("Инкрементальный режим запрошен, но успешных извлечений нет: выполняется полное извлечение")
			report.EffectiveMode = ModeFull
		}
	}
	report.Since = since

	summary, err := o.deps.Extraction.ExtractAll(since != nil, since)
	report.RunID = summary.RunID
	report.Extraction = &summary
	if err != nil {
		return err
	}

	if summary.FailedTables > 0 {
		o.logger.Warn("Извлечение завершено с ошибками в %d таблицах", summary.FailedTables)
	}
	return nil
}

func (o *Orchestrator) validate(runID int64, label string) (*ValidationResult, error) {
	summary, err := o.deps.Validation.RunAll(runID)
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{
		PassRate: summary.PassRate(),
		Checks:   len(summary.Results),
		Failed:   summary.Failed(),
		Warnings: summary.Warnings,
	}

	if result.PassRate < o.opts.ValidationWarnRate {
		o.logger.Warn("Проверка качества %s: успешно %.1f%% (< %.1f%%), не пройдены: %v",
			label, result.PassRate, o.opts.ValidationWarnRate, result.Failed)
	} else {
		o.logger.Info("Проверка качества %s: успешно %.1f%% из %d проверок", label, result.PassRate, result.Checks)
	}
	return result, nil
}

func (o *Orchestrator) validatePre(report *Report) (err error) {
	report.ValidationPre, err = o.validate(report.RunID, "до очистки")
	return err
}

func (o *Orchestrator) validatePost(report *Report) (err error) {
	report.ValidationPost, err = o.validate(report.RunID, "после очистки")
	if err == nil && report.ValidationPre != nil {
		improvement := report.ValidationPost.PassRate - report.ValidationPre.PassRate
		report.Improvement = &improvement
		o.logger.Info("Улучшение качества после очистки: %+.1f п.п.", improvement)
	}
	return err
}

func (o *Orchestrator) cleanse(report *Report) error {
	stats, err := o.deps.Cleansing.ProcessAll(report.RunID)
	report.Cleansing = &stats
	return err
}

func (o *Orchestrator) transform(report *Report) error {
	summary, err := o.deps.Transformation.RunFull(report.RunID)
	report.Transformation = &summary
	return err
}

// finishReport логирует итоговый отчет и сохраняет его в архив
func (o *Orchestrator) finishReport(report *Report) {
	report.FinishedAt = o.now()
	report.DurationSeconds = report.FinishedAt.Sub(report.StartedAt).Seconds()

	o.notifyReport(StateStarted)
	for _, line := range report.Lines() {
		o.logger.Info("%s", line)
	}

	if o.deps.Archive != nil && report.RunID != 0 {
		payload, err := json.Marshal(report)
		if err == nil {
			err = o.deps.Archive.Save(report.RunID, report.Success, payload)
		}
		if err != nil {
			o.logger.Error("Не удалось сохранить отчет запуска %d: %v", report.RunID, err)
		} else {
			report.Archived = true
		}
	}

	o.notifyReport(StateFinished)
}

// notifyReport оповещает о фазе отчета; паника наблюдателя здесь только логируется,
// так как итог запуска уже определен
func (o *Orchestrator) notifyReport(state PhaseState) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Паника в наблюдателе фазы %s: %v", PhaseReport, r)
		}
	}()
	o.notify(PhaseReport, state, "")
}

func (o *Orchestrator) notify(phase Phase, state PhaseState, message string) {
	if o.deps.Observer == nil {
		return
	}
	o.deps.Observer(PhaseEvent{Phase: phase, State: state, At: o.now(), Message: message})
}

func onOff(v bool) string {
	if v {
		return "включены"
	}
	return "выключены"
}
