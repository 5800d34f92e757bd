package load

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/LilVoxy/rental_warehouse/ETL/models"
)

var timeColumns = []string{
	"date_key", "full_date", "year", "quarter", "month", "month_name",
	"day_of_month", "day_of_week", "day_name", "week_of_year", "is_weekend",
}

func timeArgs(d models.TimeDimension) []interface{} {
	return []interface{}{
		d.DateKey, d.FullDate, d.Year, d.Quarter, d.Month, d.MonthName,
		d.DayOfMonth, d.DayOfWeek, d.DayName, d.WeekOfYear, d.IsWeekend,
	}
}

// ReplaceTimeDimension пересоздает календарь
func (w *MySQLWarehouse) ReplaceTimeDimension(days []models.TimeDimension) (int, error) {
	return w.replaceAll("dim_time", timeColumns, len(days), func(i int) []interface{} {
		return timeArgs(days[i])
	})
}

var filmColumns = []string{
	"film_id", "title", "description", "release_year", "length", "rating",
	"rental_rate", "replacement_cost", "is_active", "valid_from", "valid_to", "version",
}

func filmArgs(f models.FilmDimension) []interface{} {
	return []interface{}{
		f.FilmID, f.Title, f.Description, f.ReleaseYear, f.Length, f.Rating,
		f.RentalRate, f.ReplacementCost, f.Active, f.ValidFrom, f.ValidTo, f.Version,
	}
}

const activeFilmQuery = `
	SELECT film_key, film_id, title, IFNULL(description, ''), IFNULL(release_year, 0),
		IFNULL(length, 0), IFNULL(rating, ''), rental_rate, IFNULL(replacement_cost, 0),
		is_active, valid_from, valid_to, version
	FROM dim_film
	WHERE film_id = ? AND is_active = TRUE
	ORDER BY version DESC
	LIMIT 1
`

// ActiveFilm возвращает активную версию фильма
func (w *MySQLWarehouse) ActiveFilm(filmID int) (*models.FilmDimension, error) {
	var f models.FilmDimension
	var validTo sql.NullTime

	err := w.db.QueryRow(activeFilmQuery, filmID).Scan(
		&f.Key, &f.FilmID, &f.Title, &f.Description, &f.ReleaseYear,
		&f.Length, &f.Rating, &f.RentalRate, &f.ReplacementCost,
		&f.Active, &f.ValidFrom, &validTo, &f.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("фильм %d: %w", filmID, models.ErrNoActiveVersion)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка при чтении активной версии фильма %d: %w", filmID, err)
	}

	if validTo.Valid {
		f.ValidTo = &validTo.Time
	}
	return &f, nil
}

// InsertFilm вставляет первую версию фильма
func (w *MySQLWarehouse) InsertFilm(f models.FilmDimension) (int64, error) {
	result, err := w.db.Exec(insertQuery("dim_film", filmColumns), filmArgs(f)...)
	if err != nil {
		return 0, fmt.Errorf("ошибка при вставке фильма %d: %w", f.FilmID, err)
	}

	key, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("ошибка при получении ключа фильма: %w", err)
	}
	return key, nil
}

// CloseAndInsertFilm закрывает активную версию и вставляет следующую в одной транзакции
func (w *MySQLWarehouse) CloseAndInsertFilm(closeKey int64, validTo time.Time, next models.FilmDimension) (int64, error) {
	tx, err := w.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("ошибка при начале транзакции: %w", err)
	}

	result, err := tx.Exec(
		"UPDATE dim_film SET is_active = FALSE, valid_to = ? WHERE film_key = ? AND is_active = TRUE",
		validTo, closeKey,
	)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("ошибка при закрытии версии %d: %w", closeKey, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		tx.Rollback()
		return 0, fmt.Errorf("версия %d: %w", closeKey, models.ErrNoActiveVersion)
	}

	result, err = tx.Exec(insertQuery("dim_film", filmColumns), filmArgs(next)...)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("ошибка при вставке версии %d фильма %d: %w", next.Version, next.FilmID, err)
	}

	key, err := result.LastInsertId()
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("ошибка при получении ключа фильма: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("ошибка при фиксации транзакции: %w", err)
	}
	return key, nil
}

var categoryColumns = []string{"category_key", "category_id", "name", "is_active"}

// ReplaceCategories перезагружает категории; ключ равен category_id и не меняется между загрузками
func (w *MySQLWarehouse) ReplaceCategories(rows []models.CategoryDimension) (int, error) {
	return w.replaceAll("dim_category", categoryColumns, len(rows), func(i int) []interface{} {
		c := rows[i]
		return []interface{}{int64(c.CategoryID), c.CategoryID, c.Name, c.Active}
	})
}

var storeColumns = []string{"store_key", "store_id", "store_name", "address", "city", "country", "postal_code", "is_active"}

// ReplaceStores перезагружает магазины; ключ равен store_id
func (w *MySQLWarehouse) ReplaceStores(rows []models.StoreDimension) (int, error) {
	return w.replaceAll("dim_store", storeColumns, len(rows), func(i int) []interface{} {
		s := rows[i]
		return []interface{}{int64(s.StoreID), s.StoreID, s.Name, s.Address, s.City, s.Country, s.PostalCode, s.Active}
	})
}
