package load

import (
	"fmt"
	"time"

	"github.com/LilVoxy/rental_warehouse/ETL/models"
)

var factColumns = []string{
	"date_key", "film_key", "category_key", "store_key",
	"rental_count", "return_count", "total_amount", "avg_amount", "avg_rental_days", "etl_run_id",
}

func factArgs(f models.SalesFact) []interface{} {
	return []interface{}{
		f.DateKey, f.FilmKey, f.CategoryKey, f.StoreKey,
		f.Rentals, f.Returns, f.TotalAmount, f.AverageAmount, f.AverageRentalDays, f.RunID,
	}
}

// AppendSalesFacts добавляет факты одной транзакцией; существующие строки не изменяются
func (w *MySQLWarehouse) AppendSalesFacts(facts []models.SalesFact) (int, error) {
	if len(facts) == 0 {
		w.logger.Debug("Нет фактов продаж для загрузки")
		return 0, nil
	}

	startTime := time.Now()
	w.logger.Info("Начало загрузки фактов продаж (всего: %d)", len(facts))

	tx, err := w.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("ошибка при начале транзакции: %w", err)
	}

	stmt, err := tx.Prepare(insertQuery("fact_sales", factColumns))
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("ошибка при подготовке запроса: %w", err)
	}
	defer stmt.Close()

	for i, f := range facts {
		if _, err := stmt.Exec(factArgs(f)...); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("ошибка при вставке факта (%d, %d, %d, %d): %w",
				f.DateKey, f.FilmKey, f.CategoryKey, f.StoreKey, err)
		}
		if (i+1)%w.batchSize == 0 {
			w.logger.Debug("Загружено %d из %d фактов...", i+1, len(facts))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("ошибка при фиксации транзакции: %w", err)
	}

	w.logger.Info("Загрузка фактов продаж завершена. Загружено записей: %d. Длительность: %v", len(facts), time.Since(startTime))
	return len(facts), nil
}
