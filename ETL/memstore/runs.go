package memstore

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/LilVoxy/rental_warehouse/ETL/models"
)

// Runs журнал запусков в памяти
type Runs struct {
	mu      sync.Mutex
	records []models.RunRecord

	// FailStart возвращается из Start, если задан
	FailStart error
}

// NewRuns создает пустой журнал запусков
func NewRuns() *Runs {
	return &Runs{}
}

// Start регистрирует запуск со статусом STARTED
func (r *Runs) Start(process string, startedAt time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailStart != nil {
		return 0, r.FailStart
	}
	id := int64(len(r.records) + 1)
	r.records = append(r.records, models.RunRecord{
		ID:        id,
		Process:   process,
		StartedAt: startedAt,
		Status:    models.RunStarted,
	})
	return id, nil
}

// Finish закрывает запуск; повторное закрытие возвращает ErrRunClosed
func (r *Runs) Finish(id int64, outcome models.RunOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.find(id)
	if err != nil {
		return err
	}
	if rec.Closed() {
		return fmt.Errorf("запуск %d: %w", id, models.ErrRunClosed)
	}

	ended := outcome.EndedAt
	rec.EndedAt = &ended
	rec.Status = outcome.Status
	rec.RowsRead = outcome.RowsRead
	rec.RowsWritten = outcome.RowsWritten
	rec.RowsErrored = outcome.RowsErrored
	rec.ErrorMessage = outcome.ErrorMessage
	if d := ended.Sub(rec.StartedAt).Seconds(); d > 0 {
		rec.DurationSeconds = d
	}
	return nil
}

// LastCompleted возвращает последнее время окончания COMPLETED запусков с префиксом
func (r *Runs) LastCompleted(prefix string) (time.Time, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		last  time.Time
		found bool
	)
	for _, rec := range r.records {
		if rec.Status != models.RunCompleted || rec.EndedAt == nil || !strings.HasPrefix(rec.Process, prefix) {
			continue
		}
		if !found || rec.EndedAt.After(last) {
			last = *rec.EndedAt
			found = true
		}
	}
	return last, found, nil
}

// Get возвращает запуск или ErrRunNotFound
func (r *Runs) Get(id int64) (*models.RunRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.find(id)
	if err != nil {
		return nil, err
	}
	cp := *rec
	return &cp, nil
}

// Recent возвращает последние запуски, новые первыми
func (r *Runs) Recent(limit int) ([]models.RunRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.RunRecord
	for i := len(r.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.records[i])
	}
	return out, nil
}

// All возвращает все записи в порядке создания
func (r *Runs) All() []models.RunRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.RunRecord(nil), r.records...)
}

func (r *Runs) find(id int64) (*models.RunRecord, error) {
	if id < 1 || int(id) > len(r.records) {
		return nil, fmt.Errorf("запуск %d: %w", id, models.ErrRunNotFound)
	}
	return &r.records[id-1], nil
}

// Audit журнал проверок качества в памяти
type Audit struct {
	mu     sync.Mutex
	checks []models.QualityCheck
}

// NewAudit создает пустой аудит качества
func NewAudit() *Audit {
	return &Audit{}
}

// Record сохраняет результат проверки
func (a *Audit) Record(check models.QualityCheck) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	check.ID = int64(len(a.checks) + 1)
	a.checks = append(a.checks, check)
	return nil
}

// ForRun возвращает проверки запуска в порядке записи
func (a *Audit) ForRun(runID int64) ([]models.QualityCheck, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []models.QualityCheck
	for _, c := range a.checks {
		if c.RunID == runID {
			out = append(out, c)
		}
	}
	return out, nil
}
