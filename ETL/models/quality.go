package models

import "time"

// CheckResult результат проверки качества
type CheckResult string

const (
	CheckPass    CheckResult = "PASS"
	CheckFail    CheckResult = "FAIL"
	CheckWarning CheckResult = "WARNING"
)

// QualityCheck запись аудита качества данных
type QualityCheck struct {
	ID          int64       `json:"id"`
	RunID       int64       `json:"run_id"`
	SourceTable string      `json:"source_table"`
	TargetTable string      `json:"target_table"`
	Check       string      `json:"check"`
	Result      CheckResult `json:"result"`
	Expected    string      `json:"expected"`
	Observed    string      `json:"observed"`
	Message     string      `json:"message"`
	CheckedAt   time.Time   `json:"checked_at"`
}

// Passed считает WARNING успешным результатом
func (c QualityCheck) Passed() bool {
	return c.Result != CheckFail
}

// QualityAudit журнал проверок качества (только добавление)
type QualityAudit interface {
	Record(check QualityCheck) error
	ForRun(runID int64) ([]QualityCheck, error)
}
