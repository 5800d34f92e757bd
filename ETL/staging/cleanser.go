package staging

import (
	"fmt"
	"sort"
	"time"

	"github.com/LilVoxy/rental_warehouse/ETL/config"
	"github.com/LilVoxy/rental_warehouse/ETL/schema"
	"github.com/LilVoxy/rental_warehouse/ETL/utils"
)

// Store область staging со стороны очистки
type Store interface {
	Rows(t *schema.Table, validOnly bool) ([]schema.StagedRecord, error)
	DeleteRows(t *schema.Table, ids []int64) (int, error)
	FillNulls(t *schema.Table, column string, value interface{}) (int, error)
	TrimText(t *schema.Table, column string) (int, error)
	MarkInvalid(t *schema.Table, ids []int64, reason string) (int, error)
}

// Rule бизнес-правило: строки, для которых Match истинно, помечаются невалидными
type Rule struct {
	Name   string
	Reason string
	Match  func(schema.StagedRecord) bool
}

// TableStats статистика очистки одной таблицы
type TableStats struct {
	Table       string         `json:"table"`
	Duplicates  int            `json:"duplicates"`
	Normalized  int            `json:"normalized"`
	NullsFilled int            `json:"nulls_filled"`
	Invalid     map[string]int `json:"invalid,omitempty"`
}

// Stats итог фазы очистки
type Stats struct {
	RunID  int64        `json:"run_id"`
	Tables []TableStats `json:"tables"`
}

// Table возвращает статистику таблицы по имени
func (s Stats) Table(name string) (TableStats, bool) {
	for _, t := range s.Tables {
		if t.Table == name {
			return t, true
		}
	}
	return TableStats{}, false
}

// TotalInvalid суммарное число помеченных строк
func (s Stats) TotalInvalid() int {
	n := 0
	for _, t := range s.Tables {
		for _, c := range t.Invalid {
			n += c
		}
	}
	return n
}

// TotalDuplicates суммарное число удаленных дубликатов
func (s Stats) TotalDuplicates() int {
	n := 0
	for _, t := range s.Tables {
		n += t.Duplicates
	}
	return n
}

// tablePlan описывает обработку одной таблицы
type tablePlan struct {
	table       *schema.Table
	trim        []string
	nullNumeric []string
	nullText    []string
	rules       []Rule
}

// Cleanser очищает данные в staging
type Cleanser struct {
	store  Store
	rules  config.BusinessRules
	logger *utils.ETLLogger
	now    func() time.Time
}

// NewCleanser создает новый экземпляр Cleanser
func NewCleanser(store Store, rules config.BusinessRules, logger *utils.ETLLogger) *Cleanser {
	return &Cleanser{
		store:  store,
		rules:  rules,
		logger: logger.WithField("component", "cleanser"),
		now:    time.Now,
	}
}

// WithClock подменяет источник времени для правил о будущих датах
func (c *Cleanser) WithClock(now func() time.Time) *Cleanser {
	c.now = now
	return c
}

// Deduplicate оставляет по каждому ключу строку с последним временем загрузки
// (при равенстве с наибольшим stg_row_id) и удаляет остальные
func (c *Cleanser) Deduplicate(t *schema.Table, keys []string) (int, error) {
	if _, err := t.Select(keys...); err != nil {
		return 0, err
	}

	rows, err := c.store.Rows(t, false)
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения %s: %w", t.Staging, err)
	}

	keep := make(map[string]schema.StagedRecord)
	for _, r := range rows {
		k, ok := schema.KeyOf(r.Values, keys)
		if !ok {
			continue
		}
		cur, seen := keep[k]
		if !seen || newer(r, cur) {
			keep[k] = r
		}
	}

	var drop []int64
	for _, r := range rows {
		k, ok := schema.KeyOf(r.Values, keys)
		if ok && keep[k].RowID != r.RowID {
			drop = append(drop, r.RowID)
		}
	}
	if len(drop) == 0 {
		return 0, nil
	}

	sort.Slice(drop, func(i, j int) bool { return drop[i] < drop[j] })
	removed, err := c.store.DeleteRows(t, drop)
	if err != nil {
		return removed, fmt.Errorf("ошибка удаления дубликатов %s: %w", t.Staging, err)
	}

	c.logger.Debug("%s: удалено дубликатов %d", t.Staging, removed)
	return removed, nil
}

func newer(a, b schema.StagedRecord) bool {
	if !a.LoadedAt.Equal(b.LoadedAt) {
		return a.LoadedAt.After(b.LoadedAt)
	}
	return a.RowID > b.RowID
}

// NullFill заменяет NULL на 0 в числовых и на пустую строку в текстовых колонках
func (c *Cleanser) NullFill(t *schema.Table, numeric, text []string) (int, error) {
	total := 0
	fill := func(cols []string, value interface{}) error {
		for _, col := range cols {
			n, err := c.store.FillNulls(t, col, value)
			if err != nil {
				return fmt.Errorf("ошибка заполнения NULL %s.%s: %w", t.Staging, col, err)
			}
			total += n
		}
		return nil
	}

	if err := fill(numeric, int64(0)); err != nil {
		return total, err
	}
	if err := fill(text, ""); err != nil {
		return total, err
	}

	return total, nil
}

// NormalizeText обрезает пробелы по краям текстовых колонок
func (c *Cleanser) NormalizeText(t *schema.Table, columns []string) (int, error) {
	total := 0
	for _, col := range columns {
		n, err := c.store.TrimText(t, col)
		if err != nil {
			return total, fmt.Errorf("ошибка нормализации %s.%s: %w", t.Staging, col, err)
		}
		total += n
	}
	return total, nil
}

// MarkInvalid помечает валидные строки, подпадающие под правило; строки не удаляются
func (c *Cleanser) MarkInvalid(t *schema.Table, rule Rule) (int, error) {
	rows, err := c.store.Rows(t, true)
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения %s: %w", t.Staging, err)
	}

	var ids []int64
	for _, r := range rows {
		if rule.Match(r) {
			ids = append(ids, r.RowID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	marked, err := c.store.MarkInvalid(t, ids, rule.Reason)
	if err != nil {
		return marked, fmt.Errorf("ошибка применения правила %s к %s: %w", rule.Name, t.Staging, err)
	}
	return marked, nil
}

func (c *Cleanser) plans() []tablePlan {
	return []tablePlan{
		{table: schema.Rental, rules: RentalRules(c.now)},
		{table: schema.Payment, nullNumeric: []string{"amount"}, rules: PaymentRules(c.rules, c.now)},
		{
			table:       schema.Film,
			trim:        []string{"title"},
			nullNumeric: []string{"original_language_id"},
			nullText:    []string{"description", "rating", "special_features"},
			rules:       FilmRules(c.rules),
		},
		{table: schema.Inventory},
		{table: schema.FilmCategory},
		{table: schema.Category, trim: []string{"name"}},
		{table: schema.Store},
		{table: schema.City, trim: []string{"city"}},
		{table: schema.Country, trim: []string{"country"}},
		{
			table:    schema.Address,
			trim:     []string{"address", "district", "postal_code"},
			nullText: []string{"address2", "district", "postal_code", "phone"},
		},
	}
}

// ProcessAll применяет очистку ко всем таблицам staging.
// Первая ошибка хранилища прерывает фазу.
func (c *Cleanser) ProcessAll(runID int64) (Stats, error) {
	stats := Stats{RunID: runID}

	for _, p := range c.plans() {
		ts, err := c.process(p)
		stats.Tables = append(stats.Tables, ts)
		if err != nil {
			return stats, err
		}

		c.logger.Info("%s: дубликатов %d, нормализовано %d, заполнено NULL %d, невалидных %v",
			p.table.Staging, ts.Duplicates, ts.Normalized, ts.NullsFilled, ts.Invalid)
	}

	return stats, nil
}

func (c *Cleanser) process(p tablePlan) (TableStats, error) {
	ts := TableStats{Table: p.table.Name, Invalid: map[string]int{}}
	var err error

	if ts.Duplicates, err = c.Deduplicate(p.table, p.table.Key); err != nil {
		return ts, err
	}
	if ts.Normalized, err = c.NormalizeText(p.table, p.trim); err != nil {
		return ts, err
	}
	if ts.NullsFilled, err = c.NullFill(p.table, p.nullNumeric, p.nullText); err != nil {
		return ts, err
	}

	for _, rule := range p.rules {
		n, err := c.MarkInvalid(p.table, rule)
		if err != nil {
			return ts, err
		}
		if n > 0 {
			ts.Invalid[rule.Reason] += n
		}
	}

	return ts, nil
}
