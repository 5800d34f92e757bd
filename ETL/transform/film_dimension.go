package transform

import (
	"errors"
	"fmt"
	"sort"

	"github.com/LilVoxy/rental_warehouse/ETL/models"
	"github.com/LilVoxy/rental_warehouse/ETL/schema"
)

// FilmStats статистика измерения фильмов
type FilmStats struct {
	Read      int `json:"read"`
	Inserted  int `json:"inserted"`
	Versioned int `json:"versioned"`
	Unchanged int `json:"unchanged"`
}

func filmDimension(f models.Film) models.FilmDimension {
	return models.FilmDimension{
		FilmID:          f.FilmID,
		Title:           f.Title,
		Description:     f.Description,
		ReleaseYear:     f.ReleaseYear,
		Length:          f.Length,
		Rating:          f.Rating,
		RentalRate:      f.RentalRate,
		ReplacementCost: f.ReplacementCost,
		Active:          true,
	}
}

// PopulateFilmDimension применяет SCD Type 2 по rental_rate.
// У каждого фильма не более одной активной версии; закрытые версии не меняются.
func (t *Transformer) PopulateFilmDimension() (FilmStats, error) {
	var stats FilmStats

	rows, err := t.validRows(schema.Film)
	if err != nil {
		return stats, err
	}

	films := make([]models.Film, 0, len(rows))
	for _, r := range rows {
		films = append(films, schema.DecodeFilm(r.Values))
	}
	sort.SliceStable(films, func(i, j int) bool { return films[i].FilmID < films[j].FilmID })
	stats.Read = len(films)

	for _, f := range films {
		now := t.now()
		next := filmDimension(f)

		active, err := t.warehouse.ActiveFilm(f.FilmID)
		switch {
		case errors.Is(err, models.ErrNoActiveVersion):
			next.Version = 1
			next.ValidFrom = now
			if _, err := t.warehouse.InsertFilm(next); err != nil {
				return stats, fmt.Errorf("ошибка вставки фильма %d: %w", f.FilmID, err)
			}
			stats.Inserted++

		case err != nil:
			return stats, fmt.Errorf("ошибка чтения активной версии фильма %d: %w", f.FilmID, err)

		case active.RentalRate.Sub(f.RentalRate).Abs().GreaterThan(t.rateEpsilon):
			validTo := now
			if validTo.Before(active.ValidFrom) {
				validTo = active.ValidFrom
			}
			next.Version = active.Version + 1
			next.ValidFrom = validTo
			if _, err := t.warehouse.CloseAndInsertFilm(active.Key, validTo, next); err != nil {
				return stats, fmt.Errorf("ошибка версионирования фильма %d: %w", f.FilmID, err)
			}
			t.logger.Debug("Фильм %d: тариф %s -> %s, версия %d", f.FilmID, active.RentalRate, f.RentalRate, next.Version)
			stats.Versioned++

		default:
			stats.Unchanged++
		}
	}

	t.logger.Info("Измерение фильмов: новых %d, новых версий %d, без изменений %d", stats.Inserted, stats.Versioned, stats.Unchanged)
	return stats, nil
}
