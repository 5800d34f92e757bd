// Package schema описывает фиксированный набор таблиц источника и staging.
// Все идентификаторы SQL в ETL берутся только отсюда.
package schema

import (
	"fmt"
	"strings"

	"github.com/LilVoxy/rental_warehouse/ETL/models"
)

// Kind тип колонки
type Kind int

const (
	KindInt Kind = iota
	KindDecimal
	KindText
	KindTime
)

// String возвращает имя вида колонки
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindDecimal:
		return "decimal"
	case KindText:
		return "text"
	case KindTime:
		return "time"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Служебные колонки staging
const (
	ColRowID         = "stg_row_id"
	ColLoadedAt      = "etl_loaded_at"
	ColRunID         = "etl_run_id"
	ColValid         = "is_valid"
	ColInvalidReason = "invalid_reason"

	// ColLastUpdate используется для инкрементального извлечения
	ColLastUpdate = "last_update"
)

// Column колонка таблицы источника
type Column struct {
	Name string
	Kind Kind
}

// Table таблица источника и ее копия в staging
type Table struct {
	Name     string
	Staging  string
	Key      []string
	Columns  []Column
	Excluded []string // колонки источника, которые никогда не извлекаются
}

func newTable(name string, key []string, cols ...Column) *Table {
	return &Table{Name: name, Staging: "stg_" + name, Key: key, Columns: cols}
}

func col(name string, kind Kind) Column { return Column{Name: name, Kind: kind} }

var (
	Rental = newTable("rental", []string{"rental_id"},
		col("rental_id", KindInt),
		col("rental_date", KindTime),
		col("inventory_id", KindInt),
		col("customer_id", KindInt),
		col("return_date", KindTime),
		col("staff_id", KindInt),
		col(ColLastUpdate, KindTime),
	)

	Payment = newTable("payment", []string{"payment_id"},
		col("payment_id", KindInt),
		col("customer_id", KindInt),
		col("staff_id", KindInt),
		col("rental_id", KindInt),
		col("amount", KindDecimal),
		col("payment_date", KindTime),
		col(ColLastUpdate, KindTime),
	)

	Inventory = newTable("inventory", []string{"inventory_id"},
		col("inventory_id", KindInt),
		col("film_id", KindInt),
		col("store_id", KindInt),
		col(ColLastUpdate, KindTime),
	)

	Film = newTable("film", []string{"film_id"},
		col("film_id", KindInt),
		col("title", KindText),
		col("description", KindText),
		col("release_year", KindInt),
		col("language_id", KindInt),
		col("original_language_id", KindInt),
		col("rental_duration", KindInt),
		col("rental_rate", KindDecimal),
		col("length", KindInt),
		col("replacement_cost", KindDecimal),
		col("rating", KindText),
		col("special_features", KindText),
		col(ColLastUpdate, KindTime),
	)

	FilmCategory = newTable("film_category", []string{"film_id", "category_id"},
		col("film_id", KindInt),
		col("category_id", KindInt),
		col(ColLastUpdate, KindTime),
	)

	Category = newTable("category", []string{"category_id"},
		col("category_id", KindInt),
		col("name", KindText),
		col(ColLastUpdate, KindTime),
	)

	Store = newTable("store", []string{"store_id"},
		col("store_id", KindInt),
		col("manager_staff_id", KindInt),
		col("address_id", KindInt),
		col(ColLastUpdate, KindTime),
	)

	Address = func() *Table {
		t := newTable("address", []string{"address_id"},
			col("address_id", KindInt),
			col("address", KindText),
			col("address2", KindText),
			col("district", KindText),
			col("city_id", KindInt),
			col("postal_code", KindText),
			col("phone", KindText),
			col(ColLastUpdate, KindTime),
		)
		// GEOMETRY
		t.Excluded = []string{"location"}
		return t
	}()

	City = newTable("city", []string{"city_id"},
		col("city_id", KindInt),
		col("city", KindText),
		col("country_id", KindInt),
		col(ColLastUpdate, KindTime),
	)

	Country = newTable("country", []string{"country_id"},
		col("country_id", KindInt),
		col("country", KindText),
		col(ColLastUpdate, KindTime),
	)
)

// ExtractionOrder порядок извлечения таблиц
var ExtractionOrder = []*Table{
	Rental, Payment, Inventory, Film, FilmCategory,
	Category, Store, Address, City, Country,
}

// Lookup находит таблицу по имени источника или staging
func Lookup(name string) (*Table, error) {
	for _, t := range ExtractionOrder {
		if t.Name == name || t.Staging == name {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", models.ErrUnknownTable, name)
}

// Column возвращает описание колонки
func (t *Table) Column(name string) (Column, error) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, nil
		}
	}
	return Column{}, fmt.Errorf("%w: %s.%s", models.ErrUnknownColumn, t.Name, name)
}

// HasColumn сообщает, объявлена ли колонка
func (t *Table) HasColumn(name string) bool {
	_, err := t.Column(name)
	return err == nil
}

// ColumnNames возвращает имена колонок в порядке объявления
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Select возвращает колонки по именам, проверяя каждое
func (t *Table) Select(names ...string) ([]Column, error) {
	cols := make([]Column, 0, len(names))
	for _, n := range names {
		c, err := t.Column(n)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, nil
}

// Ident заключает идентификатор из реестра в обратные кавычки
func Ident(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "") + "`"
}

// IdentList перечисляет идентификаторы через запятую
func IdentList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = Ident(n)
	}
	return strings.Join(quoted, ", ")
}

func sqlType(k Kind) string {
	switch k {
	case KindInt:
		return "BIGINT"
	case KindDecimal:
		return "DECIMAL(12,2)"
	case KindTime:
		return "DATETIME"
	default:
		return "TEXT"
	}
}

// StagingDDL формирует CREATE TABLE для staging-копии
func (t *Table) StagingDDL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", Ident(t.Staging))
	fmt.Fprintf(&b, "\t%s BIGINT AUTO_INCREMENT PRIMARY KEY,\n", Ident(ColRowID))
	for _, c := range t.Columns {
		fmt.Fprintf(&b, "\t%s %s NULL,\n", Ident(c.Name), sqlType(c.Kind))
	}
	fmt.Fprintf(&b, "\t%s DATETIME NOT NULL,\n", Ident(ColLoadedAt))
	fmt.Fprintf(&b, "\t%s BIGINT NOT NULL,\n", Ident(ColRunID))
	fmt.Fprintf(&b, "\t%s BOOLEAN DEFAULT TRUE,\n", Ident(ColValid))
	fmt.Fprintf(&b, "\t%s VARCHAR(255) NULL,\n", Ident(ColInvalidReason))
	fmt.Fprintf(&b, "\tINDEX idx_key (%s)\n)", IdentList(t.Key))
	return b.String()
}
