// database/reports.go
package database

import (
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
)

// SalesSummary общие показатели хранилища
type SalesSummary struct {
	Rentals     int             `json:"rentals"`
	Returns     int             `json:"returns"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Films       int             `json:"films"`
	Categories  int             `json:"categories"`
	Stores      int             `json:"stores"`
	FirstDate   int             `json:"firstDate"`
	LastDate    int             `json:"lastDate"`
}

// MonthlySales продажи за месяц
type MonthlySales struct {
	Year        int             `json:"year"`
	Month       int             `json:"month"`
	MonthName   string          `json:"monthName"`
	Rentals     int             `json:"rentals"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

// FilmSales продажи фильма по всем версиям
type FilmSales struct {
	FilmID      int             `json:"filmId"`
	Title       string          `json:"title"`
	Rentals     int             `json:"rentals"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

// CategorySales показатели категории
type CategorySales struct {
	CategoryID        int             `json:"categoryId"`
	Name              string          `json:"name"`
	Rentals           int             `json:"rentals"`
	TotalAmount       decimal.Decimal `json:"totalAmount"`
	AverageRentalDays decimal.Decimal `json:"averageRentalDays"`
}

// Warehouse запросы отчетов к звездной схеме
type Warehouse struct {
	db *sql.DB
}

// NewWarehouse создает новый экземпляр Warehouse
func NewWarehouse(db *sql.DB) *Warehouse {
	return &Warehouse{db: db}
}

// Summary возвращает общие показатели
func (w *Warehouse) Summary() (SalesSummary, error) {
	var s SalesSummary
	err := w.db.QueryRow(`
		SELECT
			IFNULL(SUM(f.rental_count), 0),
			IFNULL(SUM(f.return_count), 0),
			IFNULL(SUM(f.total_amount), 0),
			(SELECT COUNT(DISTINCT film_id) FROM dim_film),
			(SELECT COUNT(*) FROM dim_category WHERE is_active = TRUE),
			(SELECT COUNT(*) FROM dim_store WHERE is_active = TRUE),
			IFNULL(MIN(f.date_key), 0),
			IFNULL(MAX(f.date_key), 0)
		FROM fact_sales f
	`).Scan(&s.Rentals, &s.Returns, &s.TotalAmount, &s.Films, &s.Categories, &s.Stores, &s.FirstDate, &s.LastDate)
	if err != nil {
		return s, fmt.Errorf("ошибка при получении сводки: %w", err)
	}
	return s, nil
}

// monthlySalesQuery группирует факты по месяцам; year = 0 означает все годы
const monthlySalesQuery = `
	SELECT t.year, t.month, t.month_name, SUM(f.rental_count), SUM(f.total_amount)
	FROM fact_sales f
	JOIN dim_time t ON t.date_key = f.date_key
	WHERE ? = 0 OR t.year = ?
	GROUP BY t.year, t.month, t.month_name
	ORDER BY t.year, t.month
`

// MonthlySales возвращает продажи по месяцам
func (w *Warehouse) MonthlySales(year int) ([]MonthlySales, error) {
	rows, err := w.db.Query(monthlySalesQuery, year, year)
	if err != nil {
		return nil, fmt.Errorf("ошибка при запросе продаж по месяцам: %w", err)
	}
	defer rows.Close()

	var out []MonthlySales
	for rows.Next() {
		var m MonthlySales
		if err := rows.Scan(&m.Year, &m.Month, &m.MonthName, &m.Rentals, &m.TotalAmount); err != nil {
			return nil, fmt.Errorf("ошибка при сканировании продаж: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// topFilmsQuery суммирует факты по натуральному ключу фильма, заголовок берется из активной версии
const topFilmsQuery = `
	SELECT d.film_id, MAX(CASE WHEN d.is_active THEN d.title ELSE '' END), SUM(f.rental_count), SUM(f.total_amount)
	FROM fact_sales f
	JOIN dim_film d ON d.film_key = f.film_key
	GROUP BY d.film_id
	ORDER BY SUM(f.total_amount) DESC, d.film_id
	LIMIT ?
`

// TopFilms возвращает фильмы с наибольшей выручкой
func (w *Warehouse) TopFilms(limit int) ([]FilmSales, error) {
	rows, err := w.db.Query(topFilmsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка при запросе топа фильмов: %w", err)
	}
	defer rows.Close()

	var out []FilmSales
	for rows.Next() {
		var f FilmSales
		if err := rows.Scan(&f.FilmID, &f.Title, &f.Rentals, &f.TotalAmount); err != nil {
			return nil, fmt.Errorf("ошибка при сканировании фильма: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

const categoryPerformanceQuery = `
	SELECT c.category_id, c.name, SUM(f.rental_count), SUM(f.total_amount),
		ROUND(SUM(f.avg_rental_days * f.rental_count) / NULLIF(SUM(f.rental_count), 0), 2)
	FROM fact_sales f
	JOIN dim_category c ON c.category_key = f.category_key
	GROUP BY c.category_id, c.name
	ORDER BY SUM(f.total_amount) DESC
`

// CategoryPerformance возвращает показатели по категориям
func (w *Warehouse) CategoryPerformance() ([]CategorySales, error) {
	rows, err := w.db.Query(categoryPerformanceQuery)
	if err != nil {
		return nil, fmt.Errorf("ошибка при запросе показателей категорий: %w", err)
	}
	defer rows.Close()

	var out []CategorySales
	for rows.Next() {
		var c CategorySales
		var avgDays decimal.NullDecimal
		if err := rows.Scan(&c.CategoryID, &c.Name, &c.Rentals, &c.TotalAmount, &avgDays); err != nil {
			return nil, fmt.Errorf("ошибка при сканировании категории: %w", err)
		}
		c.AverageRentalDays = avgDays.Decimal
		out = append(out, c)
	}
	return out, rows.Err()
}
