package memstore

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/LilVoxy/rental_warehouse/ETL/archive"
	"github.com/LilVoxy/rental_warehouse/processor"
)

type archived struct {
	success bool
	payload []byte
}

// Archive архив отчетов в памяти; отчеты хранятся сжатыми, как в MySQL
type Archive struct {
	mu      sync.Mutex
	reports map[int64]archived

	// FailSave возвращается из Save, если задан
	FailSave error
}

// NewArchive создает пустой архив отчетов
func NewArchive() *Archive {
	return &Archive{reports: make(map[int64]archived)}
}

// Save сохраняет отчет запуска, заменяя прежний
func (a *Archive) Save(runID int64, success bool, report []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.FailSave != nil {
		return a.FailSave
	}
	a.reports[runID] = archived{success: success, payload: processor.CompressReport(report)}
	return nil
}

// Load возвращает распакованный отчет запуска
func (a *Archive) Load(runID int64) (json.RawMessage, bool, error) {
	a.mu.Lock()
	r, ok := a.reports[runID]
	a.mu.Unlock()
	if !ok {
		return nil, false, fmt.Errorf("запуск %d: %w", runID, archive.ErrReportNotFound)
	}
	raw, err := processor.DecodeReport(r.payload)
	return raw, r.success, err
}

// Len возвращает число сохраненных отчетов
func (a *Archive) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.reports)
}
