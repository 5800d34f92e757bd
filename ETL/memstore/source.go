package memstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LilVoxy/rental_warehouse/ETL/schema"
)

// Source исходная база в памяти; строки хранятся в сыром виде
type Source struct {
	mu       sync.Mutex
	tables   map[string][]schema.Record
	failures map[string]error
}

// NewSource создает пустой источник
func NewSource() *Source {
	return &Source{
		tables:   make(map[string][]schema.Record),
		failures: make(map[string]error),
	}
}

// Put добавляет строки в таблицу источника
func (s *Source) Put(t *schema.Table, rows ...schema.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.tables[t.Name] = append(s.tables[t.Name], r.Clone())
	}
}

// Set заменяет содержимое таблицы
func (s *Source) Set(t *schema.Table, rows ...schema.Record) {
	s.mu.Lock()
	s.tables[t.Name] = nil
	s.mu.Unlock()
	s.Put(t, rows...)
}

// FailOn заставляет чтение таблицы возвращать err (nil снимает ошибку)
func (s *Source) FailOn(t *schema.Table, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, t.Name)
		return
	}
	s.failures[t.Name] = err
}

// ReadTable возвращает строки с колонками реестра;
// since отбирает строки с last_update не раньше отметки
func (s *Source) ReadTable(t *schema.Table, since *time.Time) ([]schema.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failures[t.Name]; err != nil {
		return nil, err
	}

	var out []schema.Record
	for _, r := range s.tables[t.Name] {
		if since != nil {
			ts, ok := r[schema.ColLastUpdate].(time.Time)
			if !ok || ts.Before(*since) {
				continue
			}
		}
		// Как и SELECT, проекция содержит только колонки реестра
		row := make(schema.Record, len(t.Columns))
		for _, c := range t.Columns {
			row[c.Name] = r[c.Name]
		}
		out = append(out, row)
	}
	return out, nil
}

// Sum суммирует числовую колонку
func (s *Source) Sum(t *schema.Table, column string) (decimal.Decimal, error) {
	c, err := t.Column(column)
	if err != nil {
		return decimal.Zero, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for _, r := range s.tables[t.Name] {
		rec, err := t.Normalize(map[string]interface{}{c.Name: r[c.Name]})
		if err != nil {
			return decimal.Zero, fmt.Errorf("сумма %s.%s: %w", t.Name, c.Name, err)
		}
		if d, ok := toDecimal(rec[c.Name]); ok {
			total = total.Add(d)
		}
	}
	return total, nil
}

func toDecimal(v interface{}) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, true
	case int64:
		return decimal.NewFromInt(x), true
	}
	return decimal.Zero, false
}
