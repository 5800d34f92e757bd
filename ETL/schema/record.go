package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LilVoxy/rental_warehouse/ETL/models"
)

// Record строка таблицы: имя колонки -> значение объявленного типа
// (int64, decimal.Decimal, string, time.Time) или nil для NULL
type Record map[string]interface{}

// StagedRecord строка staging вместе с метаданными загрузки
type StagedRecord struct {
	RowID         int64
	LoadedAt      time.Time
	RunID         int64
	Valid         bool
	InvalidReason string
	Values        Record
}

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05.999999",
	"2006-01-02",
}

// Normalize приводит значения драйвера к объявленным типам.
// Необъявленные колонки и неприводимые значения отклоняются.
func (t *Table) Normalize(raw map[string]interface{}) (Record, error) {
	rec := make(Record, len(t.Columns))
	for name, v := range raw {
		c, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		val, err := coerce(c.Kind, v)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.Name, name, err)
		}
		rec[name] = val
	}
	for _, c := range t.Columns {
		if _, ok := rec[c.Name]; !ok {
			rec[c.Name] = nil
		}
	}
	return rec, nil
}

func coerce(kind Kind, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}

	switch kind {
	case KindInt:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case int16:
			return int64(x), nil
		case int8:
			return int64(x), nil
		case uint8:
			return int64(x), nil
		case uint16:
			return int64(x), nil
		case uint32:
			return int64(x), nil
		case uint64:
			if x > math.MaxInt64 {
				return nil, fmt.Errorf("значение %d вне диапазона", x)
			}
			return int64(x), nil
		case float64:
			if x != math.Trunc(x) {
				return nil, fmt.Errorf("дробное значение %v для целой колонки", x)
			}
			return int64(x), nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("не целое число %q", x)
			}
			return n, nil
		}
	case KindDecimal:
		switch x := v.(type) {
		case decimal.Decimal:
			return x, nil
		case float64:
			return decimal.NewFromFloat(x), nil
		case float32:
			return decimal.NewFromFloat32(x), nil
		case int64:
			return decimal.NewFromInt(x), nil
		case int:
			return decimal.NewFromInt(int64(x)), nil
		case string:
			d, err := decimal.NewFromString(strings.TrimSpace(x))
			if err != nil {
				return nil, fmt.Errorf("не число %q", x)
			}
			return d, nil
		}
	case KindText:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindTime:
		switch x := v.(type) {
		case time.Time:
			return x, nil
		case string:
			for _, layout := range timeLayouts {
				if ts, err := time.ParseInLocation(layout, strings.TrimSpace(x), time.UTC); err == nil {
					return ts, nil
				}
			}
			return nil, fmt.Errorf("не дата %q", x)
		}
	}

	return nil, fmt.Errorf("значение типа %T нельзя привести к %s", v, kind)
}

// IsNull сообщает, равно ли значение NULL
func (r Record) IsNull(col string) bool {
	return r[col] == nil
}

// Int возвращает целое значение
func (r Record) Int(col string) (int64, bool) {
	v, ok := r[col].(int64)
	return v, ok
}

// Decimal возвращает денежное значение
func (r Record) Decimal(col string) (decimal.Decimal, bool) {
	v, ok := r[col].(decimal.Decimal)
	return v, ok
}

// Text возвращает строку
func (r Record) Text(col string) (string, bool) {
	v, ok := r[col].(string)
	return v, ok
}

// Time возвращает момент времени
func (r Record) Time(col string) (time.Time, bool) {
	v, ok := r[col].(time.Time)
	return v, ok
}

// Clone копирует запись
func (r Record) Clone() Record {
	c := make(Record, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// KeyOf формирует строковый ключ группировки по колонкам cols.
// Второе значение false, если хотя бы одна колонка NULL.
func KeyOf(r Record, cols []string) (string, bool) {
	parts := make([]string, len(cols))
	for i, c := range cols {
		v := r[c]
		if v == nil {
			return "", false
		}
		parts[i] = format(v)
	}
	return strings.Join(parts, "|"), true
}

func format(v interface{}) string {
	switch x := v.(type) {
	case decimal.Decimal:
		return x.String()
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

func intOf(r Record, col string) int {
	v, _ := r.Int(col)
	return int(v)
}

func textOf(r Record, col string) string {
	v, _ := r.Text(col)
	return v
}

func timeOf(r Record, col string) time.Time {
	v, _ := r.Time(col)
	return v
}

func decimalOf(r Record, col string) decimal.Decimal {
	v, _ := r.Decimal(col)
	return v
}

// DecodeRental декодирует строку rental
func DecodeRental(r Record) models.Rental {
	out := models.Rental{
		RentalID:    intOf(r, "rental_id"),
		RentalDate:  timeOf(r, "rental_date"),
		InventoryID: intOf(r, "inventory_id"),
		CustomerID:  intOf(r, "customer_id"),
		StaffID:     intOf(r, "staff_id"),
		LastUpdate:  timeOf(r, ColLastUpdate),
	}
	if ts, ok := r.Time("return_date"); ok {
		out.ReturnDate = &ts
	}
	return out
}

// DecodePayment декодирует строку payment
func DecodePayment(r Record) models.Payment {
	out := models.Payment{
		PaymentID:   intOf(r, "payment_id"),
		CustomerID:  intOf(r, "customer_id"),
		StaffID:     intOf(r, "staff_id"),
		Amount:      decimalOf(r, "amount"),
		PaymentDate: timeOf(r, "payment_date"),
		LastUpdate:  timeOf(r, ColLastUpdate),
	}
	if id, ok := r.Int("rental_id"); ok {
		n := int(id)
		out.RentalID = &n
	}
	return out
}

// DecodeInventory разбирает строку staging в models.Inventory
func DecodeInventory(r Record) models.Inventory {
	return models.Inventory{
		InventoryID: intOf(r, "inventory_id"),
		FilmID:      intOf(r, "film_id"),
		StoreID:     intOf(r, "store_id"),
		LastUpdate:  timeOf(r, ColLastUpdate),
	}
}

// DecodeFilm разбирает строку staging в models.Film
func DecodeFilm(r Record) models.Film {
	return models.Film{
		FilmID:             intOf(r, "film_id"),
		Title:              textOf(r, "title"),
		Description:        textOf(r, "description"),
		ReleaseYear:        intOf(r, "release_year"),
		LanguageID:         intOf(r, "language_id"),
		OriginalLanguageID: intOf(r, "original_language_id"),
		RentalDuration:     intOf(r, "rental_duration"),
		RentalRate:         decimalOf(r, "rental_rate"),
		Length:             intOf(r, "length"),
		ReplacementCost:    decimalOf(r, "replacement_cost"),
		Rating:             textOf(r, "rating"),
		SpecialFeatures:    textOf(r, "special_features"),
		LastUpdate:         timeOf(r, ColLastUpdate),
	}
}

// DecodeFilmCategory разбирает связь фильма с категорией
func DecodeFilmCategory(r Record) models.FilmCategory {
	return models.FilmCategory{
		FilmID:     intOf(r, "film_id"),
		CategoryID: intOf(r, "category_id"),
		LastUpdate: timeOf(r, ColLastUpdate),
	}
}

// DecodeCategory разбирает строку staging в models.Category
func DecodeCategory(r Record) models.Category {
	return models.Category{
		CategoryID: intOf(r, "category_id"),
		Name:       textOf(r, "name"),
		LastUpdate: timeOf(r, ColLastUpdate),
	}
}

// DecodeStore разбирает строку staging в models.Store
func DecodeStore(r Record) models.Store {
	return models.Store{
		StoreID:        intOf(r, "store_id"),
		ManagerStaffID: intOf(r, "manager_staff_id"),
		AddressID:      intOf(r, "address_id"),
		LastUpdate:     timeOf(r, ColLastUpdate),
	}
}

// DecodeAddress разбирает строку staging в models.Address; колонка location не читается
func DecodeAddress(r Record) models.Address {
	return models.Address{
		AddressID:  intOf(r, "address_id"),
		Address:    textOf(r, "address"),
		Address2:   textOf(r, "address2"),
		District:   textOf(r, "district"),
		CityID:     intOf(r, "city_id"),
		PostalCode: textOf(r, "postal_code"),
		Phone:      textOf(r, "phone"),
		LastUpdate: timeOf(r, ColLastUpdate),
	}
}

// DecodeCity разбирает строку staging в models.City
func DecodeCity(r Record) models.City {
	return models.City{
		CityID:     intOf(r, "city_id"),
		City:       textOf(r, "city"),
		CountryID:  intOf(r, "country_id"),
		LastUpdate: timeOf(r, ColLastUpdate),
	}
}

// DecodeCountry разбирает строку staging в models.Country
func DecodeCountry(r Record) models.Country {
	return models.Country{
		CountryID:  intOf(r, "country_id"),
		Country:    textOf(r, "country"),
		LastUpdate: timeOf(r, ColLastUpdate),
	}
}
