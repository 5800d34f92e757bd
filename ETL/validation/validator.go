package validation

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LilVoxy/rental_warehouse/ETL/config"
	"github.com/LilVoxy/rental_warehouse/ETL/models"
	"github.com/LilVoxy/rental_warehouse/ETL/schema"
	"github.com/LilVoxy/rental_warehouse/ETL/utils"
)

// Summer считает сумму числовой колонки
type Summer interface {
	Sum(t *schema.Table, column string) (decimal.Decimal, error)
}

// Inspector запросы к staging, нужные проверкам качества
type Inspector interface {
	Summer
	CountDuplicateKeys(t *schema.Table, keys []string) (int, error)
	CountNulls(t *schema.Table, column string) (int, error)
	CountOutOfRange(t *schema.Table, column string, min, max decimal.Decimal) (int, error)
	CountOrphans(child *schema.Table, fk string, parent *schema.Table, pk string) (int, error)
}

// Summary итог набора проверок
type Summary struct {
	RunID    int64                 `json:"run_id"`
	Results  map[string]bool       `json:"results"`
	Checks   []models.QualityCheck `json:"-"`
	Warnings int                   `json:"warnings"`
}

// PassRate процент успешных проверок; WARNING считается успехом
func (s Summary) PassRate() float64 {
	if len(s.Results) == 0 {
		return 0
	}
	passed := 0
	for _, ok := range s.Results {
		if ok {
			passed++
		}
	}
	return float64(passed) * 100 / float64(len(s.Results))
}

// Failed возвращает имена непройденных проверок
func (s Summary) Failed() []string {
	var names []string
	for name, ok := range s.Results {
		if !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Validator выполняет проверки качества и пишет их в аудит
type Validator struct {
	staging Inspector
	source  Summer
	audit   models.QualityAudit
	rules   config.BusinessRules
	logger  *utils.ETLLogger
	now     func() time.Time

	summary *Summary
}

// NewValidator создает новый экземпляр Validator; source может быть nil,
// тогда сверка с источником пропускается
func NewValidator(staging Inspector, source Summer, audit models.QualityAudit, rules config.BusinessRules, logger *utils.ETLLogger) *Validator {
	return &Validator{
		staging: staging,
		source:  source,
		audit:   audit,
		rules:   rules,
		logger:  logger.WithField("component", "validator"),
		now:     time.Now,
	}
}

// record пишет одну запись аудита и учитывает ее в текущем наборе
func (v *Validator) record(c models.QualityCheck) error {
	c.CheckedAt = v.now()
	if err := v.audit.Record(c); err != nil {
		return fmt.Errorf("ошибка записи аудита %s: %w", c.Check, err)
	}

	v.logger.LogValidation(c.SourceTable+"."+c.Check, c.Passed(), c.Message)

	if v.summary != nil {
		v.summary.Results[c.SourceTable+"."+c.Check] = c.Passed()
		v.summary.Checks = append(v.summary.Checks, c)
		if c.Result == models.CheckWarning {
			v.summary.Warnings++
		}
	}
	return nil
}

func resultOf(ok bool) models.CheckResult {
	if ok {
		return models.CheckPass
	}
	return models.CheckFail
}

// Uniqueness проверяет отсутствие повторяющихся ключей
func (v *Validator) Uniqueness(runID int64, t *schema.Table, keys []string) (bool, error) {
	dup, err := v.staging.CountDuplicateKeys(t, keys)
	if err != nil {
		return false, err
	}

	ok := dup == 0
	return ok, v.record(models.QualityCheck{
		RunID:       runID,
		SourceTable: t.Name,
		TargetTable: t.Staging,
		Check:       "uniqueness",
		Result:      resultOf(ok),
		Expected:    "0",
		Observed:    fmt.Sprint(dup),
		Message:     fmt.Sprintf("повторяющихся ключей %v: %d", keys, dup),
	})
}

// Completeness проверяет отсутствие NULL; одна запись аудита на колонку
func (v *Validator) Completeness(runID int64, t *schema.Table, columns []string) (map[string]bool, error) {
	out := make(map[string]bool, len(columns))
	for _, col := range columns {
		nulls, err := v.staging.CountNulls(t, col)
		if err != nil {
			return out, err
		}

		ok := nulls == 0
		out[col] = ok
		if err := v.record(models.QualityCheck{
			RunID:       runID,
			SourceTable: t.Name,
			TargetTable: t.Staging,
			Check:       "completeness_" + col,
			Result:      resultOf(ok),
			Expected:    "0",
			Observed:    fmt.Sprint(nulls),
			Message:     fmt.Sprintf("NULL в %s: %d", col, nulls),
		}); err != nil {
			return out, err
		}
	}
	return out, nil
}

// Range проверяет, что значения лежат в [min, max]
func (v *Validator) Range(runID int64, t *schema.Table, column string, min, max decimal.Decimal) (bool, error) {
	out, err := v.staging.CountOutOfRange(t, column, min, max)
	if err != nil {
		return false, err
	}

	ok := out == 0
	return ok, v.record(models.QualityCheck{
		RunID:       runID,
		SourceTable: t.Name,
		TargetTable: t.Staging,
		Check:       "range_" + column,
		Result:      resultOf(ok),
		Expected:    fmt.Sprintf("[%s, %s]", min, max),
		Observed:    fmt.Sprint(out),
		Message:     fmt.Sprintf("значений %s вне диапазона: %d", column, out),
	})
}

// ReferentialIntegrity проверяет, что каждый непустой внешний ключ имеет родителя
func (v *Validator) ReferentialIntegrity(runID int64, child *schema.Table, fk string, parent *schema.Table, pk string) (bool, error) {
	orphans, err := v.staging.CountOrphans(child, fk, parent, pk)
	if err != nil {
		return false, err
	}

	ok := orphans == 0
	return ok, v.record(models.QualityCheck{
		RunID:       runID,
		SourceTable: child.Name,
		TargetTable: parent.Name,
		Check:       "referential_" + fk,
		Result:      resultOf(ok),
		Expected:    "0",
		Observed:    fmt.Sprint(orphans),
		Message:     fmt.Sprintf("%s.%s без строки в %s.%s: %d", child.Name, fk, parent.Name, pk, orphans),
	})
}

// Reconciliation сравнивает суммы колонки в источнике и staging.
// Расхождение больше допуска дает WARNING, но не FAIL.
func (v *Validator) Reconciliation(runID int64, t *schema.Table, column string) (models.CheckResult, error) {
	src, err := v.source.Sum(t, column)
	if err != nil {
		return "", fmt.Errorf("ошибка суммы в источнике: %w", err)
	}
	stg, err := v.staging.Sum(t, column)
	if err != nil {
		return "", fmt.Errorf("ошибка суммы в staging: %w", err)
	}

	diff := RelativeDifference(src, stg)
	result := models.CheckPass
	if diff.GreaterThan(v.rules.ReconcileTolerance) {
		result = models.CheckWarning
	}

	return result, v.record(models.QualityCheck{
		RunID:       runID,
		SourceTable: t.Name,
		TargetTable: t.Staging,
		Check:       "reconciliation_" + column,
		Result:      result,
		Expected:    src.StringFixed(2),
		Observed:    stg.StringFixed(2),
		Message:     fmt.Sprintf("расхождение %s%% (допуск %s%%)", diff.StringFixed(4), v.rules.ReconcileTolerance),
	})
}

// RelativeDifference возвращает |a-b|/|a| в процентах; при a = 0 это 0 или 100
func RelativeDifference(a, b decimal.Decimal) decimal.Decimal {
	if a.IsZero() {
		if b.IsZero() {
			return decimal.Zero
		}
		return decimal.NewFromInt(100)
	}
	return a.Sub(b).Abs().Div(a.Abs()).Mul(decimal.NewFromInt(100))
}

// RunAll выполняет фиксированный набор проверок staging.
// Результаты проверок не прерывают набор; прерывает только ошибка хранилища.
func (v *Validator) RunAll(runID int64) (Summary, error) {
	summary := Summary{RunID: runID, Results: map[string]bool{}}
	v.summary = &summary
	defer func() { v.summary = nil }()

	steps := []func() error{
		func() error { _, err := v.Uniqueness(runID, schema.Rental, schema.Rental.Key); return err },
		func() error {
			_, err := v.Completeness(runID, schema.Rental, []string{"rental_id", "rental_date", "inventory_id", "customer_id"})
			return err
		},
		func() error { _, err := v.Uniqueness(runID, schema.Payment, schema.Payment.Key); return err },
		func() error {
			_, err := v.Completeness(runID, schema.Payment, []string{"payment_id", "customer_id", "amount", "payment_date"})
			return err
		},
		func() error {
			_, err := v.Range(runID, schema.Payment, "amount", decimal.Zero, v.rules.PaymentCeiling)
			return err
		},
		func() error { _, err := v.Uniqueness(runID, schema.Film, schema.Film.Key); return err },
		func() error {
			_, err := v.Range(runID, schema.Film, "rental_rate", v.rules.FilmMinRate, v.rules.FilmMaxRate)
			return err
		},
		func() error {
			_, err := v.ReferentialIntegrity(runID, schema.Rental, "inventory_id", schema.Inventory, "inventory_id")
			return err
		},
		func() error {
			_, err := v.ReferentialIntegrity(runID, schema.Inventory, "film_id", schema.Film, "film_id")
			return err
		},
		func() error {
			_, err := v.ReferentialIntegrity(runID, schema.Store, "address_id", schema.Address, "address_id")
			return err
		},
	}
	if v.source != nil {
		steps = append(steps, func() error { _, err := v.Reconciliation(runID, schema.Payment, "amount"); return err })
	}

	for _, step := range steps {
		if err := step(); err != nil {
			return summary, fmt.Errorf("ошибка проверки качества: %w", err)
		}
	}

	v.logger.Info("Проверки качества: %d, успешно %.1f%%, предупреждений %d",
		len(summary.Results), summary.PassRate(), summary.Warnings)

	return summary, nil
}
