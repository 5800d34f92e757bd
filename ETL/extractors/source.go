package extractors

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LilVoxy/rental_warehouse/ETL/schema"
	"github.com/LilVoxy/rental_warehouse/ETL/utils"
)

// Source исходная база проката
type Source interface {
	// ReadTable читает строки таблицы; при since != nil только измененные начиная с since
	ReadTable(t *schema.Table, since *time.Time) ([]schema.Record, error)
	Sum(t *schema.Table, column string) (decimal.Decimal, error)
}

// MySQLSource читает исходную базу через database/sql
type MySQLSource struct {
	db     *sql.DB
	logger *utils.ETLLogger
}

// NewMySQLSource создает новый экземпляр MySQLSource
func NewMySQLSource(db *sql.DB, logger *utils.ETLLogger) *MySQLSource {
	return &MySQLSource{
		db:     db,
		logger: logger,
	}
}

// selectQuery проецирует только колонки реестра
func selectQuery(t *schema.Table, since *time.Time) (string, []interface{}) {
	query := fmt.Sprintf("SELECT %s FROM %s", schema.IdentList(t.ColumnNames()), schema.Ident(t.Name))
	if since == nil {
		return query, nil
	}
	return query + " WHERE " + schema.Ident(schema.ColLastUpdate) + " >= ?", []interface{}{*since}
}

// ReadTable извлекает строки таблицы без приведения типов
func (s *MySQLSource) ReadTable(t *schema.Table, since *time.Time) ([]schema.Record, error) {
	s.logger.Debug("Извлечение таблицы %s", t.Name)

	query, args := selectQuery(t, since)
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса таблицы %s: %w", t.Name, err)
	}
	defer rows.Close()

	cols := t.ColumnNames()
	var records []schema.Record
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки %s: %w", t.Name, err)
		}

		rec := make(schema.Record, len(cols))
		for i, c := range cols {
			rec[c] = values[i]
		}
		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка после итерации по таблице %s: %w", t.Name, err)
	}

	return records, nil
}

// Sum возвращает сумму числовой колонки
func (s *MySQLSource) Sum(t *schema.Table, column string) (decimal.Decimal, error) {
	c, err := t.Column(column)
	if err != nil {
		return decimal.Zero, err
	}

	var total string
	query := fmt.Sprintf("SELECT CAST(COALESCE(SUM(%s), 0) AS CHAR) FROM %s", schema.Ident(c.Name), schema.Ident(t.Name))
	if err := s.db.QueryRow(query).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("ошибка суммирования %s.%s: %w", t.Name, c.Name, err)
	}

	return decimal.NewFromString(total)
}
