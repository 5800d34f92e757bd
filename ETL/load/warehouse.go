package load

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/LilVoxy/rental_warehouse/ETL/models"
	"github.com/LilVoxy/rental_warehouse/ETL/utils"
)

// MySQLWarehouse реализация звездной схемы хранилища для MySQL
type MySQLWarehouse struct {
	db        *sql.DB
	logger    *utils.ETLLogger
	batchSize int
}

// NewMySQLWarehouse создает новый экземпляр MySQLWarehouse
func NewMySQLWarehouse(db *sql.DB, logger *utils.ETLLogger, batchSize int) *MySQLWarehouse {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &MySQLWarehouse{
		db:        db,
		logger:    logger.WithField("component", "warehouse"),
		batchSize: batchSize,
	}
}

var starDDL = []string{
	`CREATE TABLE IF NOT EXISTS dim_time (
		date_key INT PRIMARY KEY,
		full_date DATE NOT NULL,
		year SMALLINT NOT NULL,
		quarter TINYINT NOT NULL,
		month TINYINT NOT NULL,
		month_name VARCHAR(16) NOT NULL,
		day_of_month TINYINT NOT NULL,
		day_of_week TINYINT NOT NULL,
		day_name VARCHAR(16) NOT NULL,
		week_of_year TINYINT NOT NULL,
		is_weekend BOOLEAN NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS dim_film (
		film_key BIGINT AUTO_INCREMENT PRIMARY KEY,
		film_id INT NOT NULL,
		title VARCHAR(255) NOT NULL DEFAULT '',
		description TEXT,
		release_year SMALLINT,
		length SMALLINT,
		rating VARCHAR(10),
		rental_rate DECIMAL(6,2) NOT NULL,
		replacement_cost DECIMAL(7,2),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		valid_from DATETIME NOT NULL,
		valid_to DATETIME NULL,
		version INT NOT NULL DEFAULT 1,
		INDEX idx_film_active (film_id, is_active)
	)`,
	`CREATE TABLE IF NOT EXISTS dim_category (
		category_key BIGINT PRIMARY KEY,
		category_id INT NOT NULL,
		name VARCHAR(64) NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		UNIQUE KEY uk_category_id (category_id)
	)`,
	`CREATE TABLE IF NOT EXISTS dim_store (
		store_key BIGINT PRIMARY KEY,
		store_id INT NOT NULL,
		store_name VARCHAR(64) NOT NULL,
		address VARCHAR(128) NOT NULL DEFAULT '',
		city VARCHAR(64) NOT NULL DEFAULT '',
		country VARCHAR(64) NOT NULL DEFAULT '',
		postal_code VARCHAR(16) NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		UNIQUE KEY uk_store_id (store_id)
	)`,
	`CREATE TABLE IF NOT EXISTS fact_sales (
		sales_key BIGINT AUTO_INCREMENT PRIMARY KEY,
		date_key INT NOT NULL,
		film_key BIGINT NOT NULL,
		category_key BIGINT NOT NULL,
		store_key BIGINT NOT NULL,
		rental_count INT NOT NULL,
		return_count INT NOT NULL,
		total_amount DECIMAL(12,2) NOT NULL,
		avg_amount DECIMAL(8,2) NOT NULL,
		avg_rental_days DECIMAL(6,2) NOT NULL,
		etl_run_id BIGINT NOT NULL,
		INDEX idx_sales_date (date_key),
		INDEX idx_sales_run (etl_run_id)
	)`,
}

// CreateTables создает таблицы звезды, если они не существуют
func (w *MySQLWarehouse) CreateTables() error {
	for _, ddl := range starDDL {
		if _, err := w.db.Exec(ddl); err != nil {
			return fmt.Errorf("ошибка при создании таблиц хранилища: %w", err)
		}
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func insertQuery(table string, columns []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), placeholders(len(columns)))
}

// replaceAll в одной транзакции очищает таблицу и вставляет строки
func (w *MySQLWarehouse) replaceAll(table string, columns []string, n int, args func(i int) []interface{}) (int, error) {
	tx, err := w.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("ошибка при начале транзакции: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM " + table); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("ошибка при очистке %s: %w", table, err)
	}

	written, err := insertRows(tx, table, columns, n, args)
	if err != nil {
		tx.Rollback()
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("ошибка при фиксации транзакции: %w", err)
	}
	return written, nil
}

func insertRows(tx *sql.Tx, table string, columns []string, n int, args func(i int) []interface{}) (int, error) {
	stmt, err := tx.Prepare(insertQuery(table, columns))
	if err != nil {
		return 0, fmt.Errorf("ошибка при подготовке запроса вставки в %s: %w", table, err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.Exec(args(i)...); err != nil {
			return i, fmt.Errorf("ошибка при вставке в %s: %w", table, err)
		}
	}
	return n, nil
}

// ActiveKeys читает суррогатные ключи активных строк измерений
func (w *MySQLWarehouse) ActiveKeys() (models.ActiveKeys, error) {
	keys := models.ActiveKeys{
		Films:      make(map[int]int64),
		Categories: make(map[int]int64),
		Stores:     make(map[int]int64),
		Dates:      make(map[int]bool),
	}

	for query, dst := range map[string]map[int]int64{
		"SELECT film_id, film_key FROM dim_film WHERE is_active = TRUE":             keys.Films,
		"SELECT category_id, category_key FROM dim_category WHERE is_active = TRUE": keys.Categories,
		"SELECT store_id, store_key FROM dim_store WHERE is_active = TRUE":          keys.Stores,
	} {
		if err := w.scanKeys(query, dst); err != nil {
			return keys, err
		}
	}

	rows, err := w.db.Query("SELECT date_key FROM dim_time")
	if err != nil {
		return keys, fmt.Errorf("ошибка при чтении ключей измерения времени: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k int
		if err := rows.Scan(&k); err != nil {
			return keys, fmt.Errorf("ошибка при сканировании ключа дня: %w", err)
		}
		keys.Dates[k] = true
	}

	return keys, rows.Err()
}

func (w *MySQLWarehouse) scanKeys(query string, dst map[int]int64) error {
	rows, err := w.db.Query(query)
	if err != nil {
		return fmt.Errorf("ошибка при чтении активных ключей: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var natural int
		var key int64
		if err := rows.Scan(&natural, &key); err != nil {
			return fmt.Errorf("ошибка при сканировании ключа: %w", err)
		}
		dst[natural] = key
	}
	return rows.Err()
}
