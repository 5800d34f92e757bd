package staging

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/LilVoxy/rental_warehouse/ETL/schema"
	"github.com/LilVoxy/rental_warehouse/ETL/utils"
)

// maxIDsPerStatement ограничивает длину списка IN (...)
const maxIDsPerStatement = 500

// MySQLStore область staging в MySQL; идентификаторы берутся только из реестра
type MySQLStore struct {
	db     *sql.DB
	logger *utils.ETLLogger
}

// NewMySQLStore создает новый экземпляр MySQLStore
func NewMySQLStore(db *sql.DB, logger *utils.ETLLogger) *MySQLStore {
	return &MySQLStore{
		db:     db,
		logger: logger,
	}
}

// EnsureTable создает таблицу staging, если она не существует
func (s *MySQLStore) EnsureTable(t *schema.Table) error {
	if _, err := s.db.Exec(t.StagingDDL()); err != nil {
		return fmt.Errorf("ошибка при создании таблицы %s: %w", t.Staging, err)
	}
	return nil
}

// Truncate очищает таблицу staging
func (s *MySQLStore) Truncate(t *schema.Table) error {
	if _, err := s.db.Exec("TRUNCATE TABLE " + schema.Ident(t.Staging)); err != nil {
		return fmt.Errorf("ошибка при очистке таблицы %s: %w", t.Staging, err)
	}
	return nil
}

func insertQuery(t *schema.Table) string {
	cols := append(t.ColumnNames(), schema.ColLoadedAt, schema.ColRunID, schema.ColValid, schema.ColInvalidReason)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", schema.Ident(t.Staging), schema.IdentList(cols), placeholders)
}

// Insert записывает строки пакетами, каждый пакет в своей транзакции
func (s *MySQLStore) Insert(t *schema.Table, rows []schema.StagedRecord, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = len(rows)
	}

	query := insertQuery(t)
	written := 0
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}

		n, err := s.insertBatch(t, query, rows[start:end])
		written += n
		if err != nil {
			return written, err
		}
	}

	s.logger.Debug("%s: записано %d строк", t.Staging, written)
	return written, nil
}

func (s *MySQLStore) insertBatch(t *schema.Table, query string, rows []schema.StagedRecord) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}

	stmt, err := tx.Prepare(query)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("ошибка подготовки запроса вставки в %s: %w", t.Staging, err)
	}
	defer stmt.Close()

	for _, r := range rows {
		args := make([]interface{}, 0, len(t.Columns)+4)
		for _, c := range t.Columns {
			args = append(args, r.Values[c.Name])
		}
		args = append(args, r.LoadedAt, r.RunID, r.Valid, nullString(r.InvalidReason))

		if _, err := stmt.Exec(args...); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("ошибка вставки в %s: %w", t.Staging, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}

	return len(rows), nil
}

func rowsQuery(t *schema.Table, validOnly bool) string {
	cols := append([]string{schema.ColRowID}, t.ColumnNames()...)
	cols = append(cols, schema.ColLoadedAt, schema.ColRunID, schema.ColValid, schema.ColInvalidReason)

	query := fmt.Sprintf("SELECT %s FROM %s", schema.IdentList(cols), schema.Ident(t.Staging))
	if validOnly {
		query += fmt.Sprintf(" WHERE (%[1]s IS NULL OR %[1]s = TRUE)", schema.Ident(schema.ColValid))
	}
	return query + " ORDER BY " + schema.Ident(schema.ColRowID)
}

// Rows читает строки staging; is_valid = NULL считается валидной строкой
func (s *MySQLStore) Rows(t *schema.Table, validOnly bool) ([]schema.StagedRecord, error) {
	rows, err := s.db.Query(rowsQuery(t, validOnly))
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса %s: %w", t.Staging, err)
	}
	defer rows.Close()

	var out []schema.StagedRecord
	for rows.Next() {
		var (
			rec    schema.StagedRecord
			valid  sql.NullBool
			reason sql.NullString
		)
		values := make([]interface{}, len(t.Columns))
		dest := []interface{}{&rec.RowID}
		for i := range values {
			dest = append(dest, &values[i])
		}
		dest = append(dest, &rec.LoadedAt, &rec.RunID, &valid, &reason)

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("ошибка сканирования %s: %w", t.Staging, err)
		}

		raw := make(map[string]interface{}, len(t.Columns))
		for i, c := range t.Columns {
			raw[c.Name] = values[i]
		}
		if rec.Values, err = t.Normalize(raw); err != nil {
			return nil, err
		}
		rec.Valid = !valid.Valid || valid.Bool
		rec.InvalidReason = reason.String

		out = append(out, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка после итерации по %s: %w", t.Staging, err)
	}

	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// execByIDs выполняет запрос частями по maxIDsPerStatement идентификаторов
func (s *MySQLStore) execByIDs(query string, prefix []interface{}, ids []int64) (int, error) {
	total := 0
	for start := 0; start < len(ids); start += maxIDsPerStatement {
		end := start + maxIDsPerStatement
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		args := append([]interface{}{}, prefix...)
		for _, id := range chunk {
			args = append(args, id)
		}

		res, err := s.db.Exec(fmt.Sprintf(query, placeholders(len(chunk))), args...)
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += int(n)
	}
	return total, nil
}

// DeleteRows удаляет строки по stg_row_id
func (s *MySQLStore) DeleteRows(t *schema.Table, ids []int64) (int, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%%s)", schema.Ident(t.Staging), schema.Ident(schema.ColRowID))
	n, err := s.execByIDs(query, nil, ids)
	if err != nil {
		return n, fmt.Errorf("ошибка удаления строк %s: %w", t.Staging, err)
	}
	return n, nil
}

// MarkInvalid помечает строки невалидными; уже помеченные не трогаются
func (s *MySQLStore) MarkInvalid(t *schema.Table, ids []int64, reason string) (int, error) {
	valid := schema.Ident(schema.ColValid)
	query := fmt.Sprintf(
		"UPDATE %s SET %s = FALSE, %s = ? WHERE %s IN (%%s) AND (%s IS NULL OR %s = TRUE)",
		schema.Ident(t.Staging), valid, schema.Ident(schema.ColInvalidReason), schema.Ident(schema.ColRowID), valid, valid,
	)
	n, err := s.execByIDs(query, []interface{}{reason}, ids)
	if err != nil {
		return n, fmt.Errorf("ошибка пометки строк %s: %w", t.Staging, err)
	}
	return n, nil
}

// FillNulls заменяет NULL значением value
func (s *MySQLStore) FillNulls(t *schema.Table, column string, value interface{}) (int, error) {
	rec, err := t.Normalize(map[string]interface{}{column: value})
	if err != nil {
		return 0, err
	}

	col := schema.Ident(column)
	res, err := s.db.Exec(fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s IS NULL", schema.Ident(t.Staging), col, col), rec[column])
	if err != nil {
		return 0, fmt.Errorf("ошибка заполнения NULL %s.%s: %w", t.Staging, column, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// TrimText обрезает пробелы в текстовой колонке
func (s *MySQLStore) TrimText(t *schema.Table, column string) (int, error) {
	c, err := t.Column(column)
	if err != nil {
		return 0, err
	}
	if c.Kind != schema.KindText {
		return 0, fmt.Errorf("колонка %s.%s не текстовая", t.Name, column)
	}

	col := schema.Ident(c.Name)
	res, err := s.db.Exec(fmt.Sprintf("UPDATE %s SET %s = TRIM(%s) WHERE %s <> TRIM(%s)", schema.Ident(t.Staging), col, col, col, col))
	if err != nil {
		return 0, fmt.Errorf("ошибка нормализации %s.%s: %w", t.Staging, column, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func duplicateKeysQuery(t *schema.Table, keys []string) string {
	conds := make([]string, len(keys))
	for i, k := range keys {
		conds[i] = schema.Ident(k) + " IS NOT NULL"
	}
	return fmt.Sprintf(
		"SELECT COUNT(*) FROM (SELECT 1 FROM %s WHERE %s GROUP BY %s HAVING COUNT(*) > 1) d",
		schema.Ident(t.Staging), strings.Join(conds, " AND "), schema.IdentList(keys),
	)
}

func (s *MySQLStore) count(query string, args ...interface{}) (int, error) {
	var n int
	if err := s.db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CountDuplicateKeys считает группы ключей с более чем одной строкой
func (s *MySQLStore) CountDuplicateKeys(t *schema.Table, keys []string) (int, error) {
	if _, err := t.Select(keys...); err != nil {
		return 0, err
	}
	n, err := s.count(duplicateKeysQuery(t, keys))
	if err != nil {
		return 0, fmt.Errorf("ошибка проверки уникальности %s: %w", t.Staging, err)
	}
	return n, nil
}

// CountNulls считает NULL в колонке
func (s *MySQLStore) CountNulls(t *schema.Table, column string) (int, error) {
	if _, err := t.Column(column); err != nil {
		return 0, err
	}
	n, err := s.count(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", schema.Ident(t.Staging), schema.Ident(column)))
	if err != nil {
		return 0, fmt.Errorf("ошибка проверки полноты %s.%s: %w", t.Staging, column, err)
	}
	return n, nil
}

// CountOutOfRange считает значения вне [min, max]
func (s *MySQLStore) CountOutOfRange(t *schema.Table, column string, min, max decimal.Decimal) (int, error) {
	if _, err := t.Column(column); err != nil {
		return 0, err
	}
	col := schema.Ident(column)
	n, err := s.count(
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NOT NULL AND (%s < ? OR %s > ?)", schema.Ident(t.Staging), col, col, col),
		min, max,
	)
	if err != nil {
		return 0, fmt.Errorf("ошибка проверки диапазона %s.%s: %w", t.Staging, column, err)
	}
	return n, nil
}

func orphansQuery(child *schema.Table, fk string, parent *schema.Table, pk string) string {
	return fmt.Sprintf(
		"SELECT COUNT(*) FROM %s c LEFT JOIN %s p ON c.%s = p.%s WHERE c.%s IS NOT NULL AND p.%s IS NULL",
		schema.Ident(child.Staging), schema.Ident(parent.Staging),
		schema.Ident(fk), schema.Ident(pk), schema.Ident(fk), schema.Ident(pk),
	)
}

// CountOrphans считает строки-потомки без родителя
func (s *MySQLStore) CountOrphans(child *schema.Table, fk string, parent *schema.Table, pk string) (int, error) {
	if _, err := child.Column(fk); err != nil {
		return 0, err
	}
	if _, err := parent.Column(pk); err != nil {
		return 0, err
	}
	n, err := s.count(orphansQuery(child, fk, parent, pk))
	if err != nil {
		return 0, fmt.Errorf("ошибка проверки ссылочной целостности %s.%s: %w", child.Staging, fk, err)
	}
	return n, nil
}

// Sum возвращает сумму числовой колонки staging
func (s *MySQLStore) Sum(t *schema.Table, column string) (decimal.Decimal, error) {
	if _, err := t.Column(column); err != nil {
		return decimal.Zero, err
	}

	var total string
	query := fmt.Sprintf("SELECT CAST(COALESCE(SUM(%s), 0) AS CHAR) FROM %s", schema.Ident(column), schema.Ident(t.Staging))
	if err := s.db.QueryRow(query).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("ошибка суммирования %s.%s: %w", t.Staging, column, err)
	}
	return decimal.NewFromString(total)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
