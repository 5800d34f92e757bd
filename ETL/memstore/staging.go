package memstore

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/LilVoxy/rental_warehouse/ETL/schema"
)

// Staging область staging в памяти
type Staging struct {
	mu       sync.Mutex
	rows     map[string][]schema.StagedRecord
	prepared map[string]bool
	nextID   int64

	// FailEnsure возвращается из EnsureTable, если задан
	FailEnsure error
}

// NewStaging создает пустую область staging
func NewStaging() *Staging {
	return &Staging{
		rows:     make(map[string][]schema.StagedRecord),
		prepared: make(map[string]bool),
	}
}

// EnsureTable возвращает FailEnsure, если задан
func (s *Staging) EnsureTable(t *schema.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailEnsure != nil {
		return s.FailEnsure
	}
	s.prepared[t.Staging] = true
	return nil
}

// Truncate очищает таблицу
func (s *Staging) Truncate(t *schema.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[t.Staging] = nil
	return nil
}

// Insert добавляет строки, назначая stg_row_id
func (s *Staging) Insert(t *schema.Table, rows []schema.StagedRecord, batchSize int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.nextID++
		r.RowID = s.nextID
		r.Values = r.Values.Clone()
		s.rows[t.Staging] = append(s.rows[t.Staging], r)
	}
	return len(rows), nil
}

// Seed добавляет готовые строки staging; нулевой RowID назначается автоматически
func (s *Staging) Seed(t *schema.Table, rows ...schema.StagedRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		if r.RowID == 0 {
			s.nextID++
			r.RowID = s.nextID
		} else if r.RowID > s.nextID {
			s.nextID = r.RowID
		}
		r.Values = r.Values.Clone()
		s.rows[t.Staging] = append(s.rows[t.Staging], r)
	}
}

// Count возвращает число строк таблицы staging
func (s *Staging) Count(t *schema.Table) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows[t.Staging])
}

// Rows возвращает строки таблицы; validOnly отбрасывает помеченные
func (s *Staging) Rows(t *schema.Table, validOnly bool) ([]schema.StagedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []schema.StagedRecord
	for _, r := range s.rows[t.Staging] {
		if validOnly && !r.Valid {
			continue
		}
		r.Values = r.Values.Clone()
		out = append(out, r)
	}
	return out, nil
}

// DeleteRows удаляет строки по stg_row_id
func (s *Staging) DeleteRows(t *schema.Table, ids []int64) (int, error) {
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.rows[t.Staging][:0]
	removed := 0
	for _, r := range s.rows[t.Staging] {
		if drop[r.RowID] {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.rows[t.Staging] = kept
	return removed, nil
}

// FillNulls заменяет NULL в колонке значением
func (s *Staging) FillNulls(t *schema.Table, column string, value interface{}) (int, error) {
	rec, err := t.Normalize(map[string]interface{}{column: value})
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	filled := 0
	for i := range s.rows[t.Staging] {
		if s.rows[t.Staging][i].Values[column] == nil {
			s.rows[t.Staging][i].Values[column] = rec[column]
			filled++
		}
	}
	return filled, nil
}

// TrimText обрезает пробелы в текстовой колонке
func (s *Staging) TrimText(t *schema.Table, column string) (int, error) {
	c, err := t.Column(column)
	if err != nil {
		return 0, err
	}
	if c.Kind != schema.KindText {
		return 0, fmt.Errorf("колонка %s.%s не текстовая", t.Name, column)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for i := range s.rows[t.Staging] {
		v, ok := s.rows[t.Staging][i].Values[column].(string)
		if !ok {
			continue
		}
		if trimmed := strings.TrimSpace(v); trimmed != v {
			s.rows[t.Staging][i].Values[column] = trimmed
			changed++
		}
	}
	return changed, nil
}

// MarkInvalid помечает строки недействительными с причиной
func (s *Staging) MarkInvalid(t *schema.Table, ids []int64, reason string) (int, error) {
	mark := make(map[int64]bool, len(ids))
	for _, id := range ids {
		mark[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	marked := 0
	for i := range s.rows[t.Staging] {
		r := &s.rows[t.Staging][i]
		if mark[r.RowID] && r.Valid {
			r.Valid = false
			r.InvalidReason = reason
			marked++
		}
	}
	return marked, nil
}

// CountDuplicateKeys считает лишние строки с повторяющимся ключом
func (s *Staging) CountDuplicateKeys(t *schema.Table, keys []string) (int, error) {
	if _, err := t.Select(keys...); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	groups := make(map[string]int)
	for _, r := range s.rows[t.Staging] {
		if k, ok := schema.KeyOf(r.Values, keys); ok {
			groups[k]++
		}
	}

	dup := 0
	for _, n := range groups {
		if n > 1 {
			dup++
		}
	}
	return dup, nil
}

// CountNulls считает NULL в колонке
func (s *Staging) CountNulls(t *schema.Table, column string) (int, error) {
	if _, err := t.Column(column); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.rows[t.Staging] {
		if r.Values[column] == nil {
			n++
		}
	}
	return n, nil
}

// CountOutOfRange считает значения вне [min, max]
func (s *Staging) CountOutOfRange(t *schema.Table, column string, min, max decimal.Decimal) (int, error) {
	if _, err := t.Column(column); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.rows[t.Staging] {
		d, ok := toDecimal(r.Values[column])
		if !ok {
			continue
		}
		if d.LessThan(min) || d.GreaterThan(max) {
			n++
		}
	}
	return n, nil
}

// CountOrphans считает строки, ссылающиеся на отсутствующего родителя
func (s *Staging) CountOrphans(child *schema.Table, fk string, parent *schema.Table, pk string) (int, error) {
	if _, err := child.Column(fk); err != nil {
		return 0, err
	}
	if _, err := parent.Column(pk); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make(map[string]bool)
	for _, r := range s.rows[parent.Staging] {
		if k, ok := schema.KeyOf(r.Values, []string{pk}); ok {
			keys[k] = true
		}
	}

	n := 0
	for _, r := range s.rows[child.Staging] {
		k, ok := schema.KeyOf(r.Values, []string{fk})
		if ok && !keys[k] {
			n++
		}
	}
	return n, nil
}

// Sum суммирует числовую колонку
func (s *Staging) Sum(t *schema.Table, column string) (decimal.Decimal, error) {
	if _, err := t.Column(column); err != nil {
		return decimal.Zero, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for _, r := range s.rows[t.Staging] {
		if d, ok := toDecimal(r.Values[column]); ok {
			total = total.Add(d)
		}
	}
	return total, nil
}

// Prepared возвращает имена подготовленных таблиц staging
func (s *Staging) Prepared() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.prepared))
	for n := range s.prepared {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
