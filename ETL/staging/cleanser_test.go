package staging

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LilVoxy/rental_warehouse/ETL/config"
	"github.com/LilVoxy/rental_warehouse/ETL/memstore"
	"github.com/LilVoxy/rental_warehouse/ETL/schema"
	"github.com/LilVoxy/rental_warehouse/ETL/utils"
)

var now = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func newCleanser(store Store) *Cleanser {
	return NewCleanser(store, config.DefaultRules, utils.Discard()).WithClock(func() time.Time { return now })
}

func staged(loadedAt time.Time, values schema.Record) schema.StagedRecord {
	return schema.StagedRecord{LoadedAt: loadedAt, RunID: 1, Valid: true, Values: values}
}

func ts(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDeduplicateKeepsLatestLoad(t *testing.T) {
	store := memstore.NewStaging()
	t1 := now.Add(-2 * time.Hour)
	t2 := now.Add(-1 * time.Hour)
	store.Seed(schema.Category,
		staged(t2, schema.Record{"category_id": int64(1), "name": "Action"}),
		staged(t1, schema.Record{"category_id": int64(1), "name": "Action (old)"}),
		staged(t1, schema.Record{"category_id": int64(2), "name": "Comedy"}),
	)

	removed, err := newCleanser(store).Deduplicate(schema.Category, schema.Category.Key)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	rows, err := store.Rows(schema.Category, false)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	for _, r := range rows {
		if id, _ := r.Values.Int("category_id"); id == 1 {
			assert.Equal(t, t2, r.LoadedAt)
			assert.Equal(t, "Action", r.Values["name"])
		}
	}
}

func TestDeduplicateTieBreaksOnRowID(t *testing.T) {
	store := memstore.NewStaging()
	store.Seed(schema.Store,
		schema.StagedRecord{RowID: 10, LoadedAt: now, Valid: true, Values: schema.Record{"store_id": int64(1), "address_id": int64(1)}},
		schema.StagedRecord{RowID: 11, LoadedAt: now, Valid: true, Values: schema.Record{"store_id": int64(1), "address_id": int64(2)}},
	)

	removed, err := newCleanser(store).Deduplicate(schema.Store, schema.Store.Key)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	rows, err := store.Rows(schema.Store, false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(11), rows[0].RowID)
}

func TestDeduplicateRejectsUnknownKey(t *testing.T) {
	_, err := newCleanser(memstore.NewStaging()).Deduplicate(schema.Store, []string{"store_id; DROP"})
	assert.Error(t, err)
}

func TestNullFillAndNormalizeText(t *testing.T) {
	store := memstore.NewStaging()
	store.Seed(schema.Film,
		staged(now, schema.Record{"film_id": int64(1), "title": "  ACADEMY DINOSAUR ", "description": nil, "original_language_id": nil}),
		staged(now, schema.Record{"film_id": int64(2), "title": "ACE GOLDFINGER", "description": "A drama"}),
	)
	c := newCleanser(store)

	trimmed, err := c.NormalizeText(schema.Film, []string{"title"})
	require.NoError(t, err)
	assert.Equal(t, 1, trimmed)

	filled, err := c.NullFill(schema.Film, []string{"original_language_id"}, []string{"description"})
	require.NoError(t, err)
	assert.Equal(t, 3, filled)

	rows, err := store.Rows(schema.Film, false)
	require.NoError(t, err)
	assert.Equal(t, "ACADEMY DINOSAUR", rows[0].Values["title"])
	assert.Equal(t, "", rows[0].Values["description"])
	assert.Equal(t, int64(0), rows[0].Values["original_language_id"])

	again, err := c.NormalizeText(schema.Film, []string{"title"})
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestNormalizeTextRejectsNonTextColumn(t *testing.T) {
	_, err := newCleanser(memstore.NewStaging()).NormalizeText(schema.Film, []string{"length"})
	assert.Error(t, err)
}

func TestMarkInvalidFlagsWithoutDeleting(t *testing.T) {
	store := memstore.NewStaging()
	store.Seed(schema.Rental,
		staged(now, schema.Record{"rental_id": int64(1), "rental_date": ts("2024-05-10"), "return_date": ts("2024-05-12")}),
		staged(now, schema.Record{"rental_id": int64(2), "rental_date": ts("2024-05-10"), "return_date": ts("2024-05-01")}),
		staged(now, schema.Record{"rental_id": int64(3), "rental_date": ts("2024-07-01"), "return_date": nil}),
	)
	c := newCleanser(store)

	stats, err := c.ProcessAll(42)
	require.NoError(t, err)

	rental, ok := stats.Table("rental")
	require.True(t, ok)
	assert.Equal(t, map[string]int{ReasonReturnBeforeRental: 1, ReasonFutureRental: 1}, rental.Invalid)
	assert.Equal(t, 3, store.Count(schema.Rental))

	valid, err := store.Rows(schema.Rental, true)
	require.NoError(t, err)
	require.Len(t, valid, 1)
	assert.Equal(t, int64(1), valid[0].Values["rental_id"])

	all, err := store.Rows(schema.Rental, false)
	require.NoError(t, err)
	assert.Equal(t, ReasonReturnBeforeRental, all[1].InvalidReason)
}

func TestPaymentAndFilmRules(t *testing.T) {
	store := memstore.NewStaging()
	store.Seed(schema.Payment,
		staged(now, schema.Record{"payment_id": int64(1), "amount": dec("-1.00"), "payment_date": ts("2024-05-01")}),
		staged(now, schema.Record{"payment_id": int64(2), "amount": dec("150.00"), "payment_date": ts("2024-05-01")}),
		staged(now, schema.Record{"payment_id": int64(3), "amount": dec("4.99"), "payment_date": ts("2025-01-01")}),
		staged(now, schema.Record{"payment_id": int64(4), "amount": nil, "payment_date": ts("2024-05-01")}),
	)
	store.Seed(schema.Film,
		staged(now, schema.Record{"film_id": int64(1), "rental_rate": dec("-0.99"), "length": int64(90)}),
		staged(now, schema.Record{"film_id": int64(2), "rental_rate": dec("12.00"), "length": int64(90)}),
		staged(now, schema.Record{"film_id": int64(3), "rental_rate": dec("2.99"), "length": int64(0)}),
		staged(now, schema.Record{"film_id": int64(4), "rental_rate": dec("2.99"), "length": int64(501)}),
		staged(now, schema.Record{"film_id": int64(5), "rental_rate": dec("2.99"), "length": int64(120)}),
	)

	stats, err := newCleanser(store).ProcessAll(1)
	require.NoError(t, err)

	payment, _ := stats.Table("payment")
	assert.Equal(t, map[string]int{
		ReasonNegativeAmount:    1,
		ReasonAmountOverCeiling: 1,
		ReasonFuturePayment:     1,
	}, payment.Invalid)
	assert.Equal(t, 1, payment.NullsFilled)

	film, _ := stats.Table("film")
	assert.Equal(t, map[string]int{
		ReasonNegativeRate:     1,
		ReasonRateOverMax:      1,
		ReasonLengthOutOfRange: 2,
	}, film.Invalid)
	assert.Equal(t, 7, stats.TotalInvalid())
}

func TestProcessAllIsIdempotentOnCleanData(t *testing.T) {
	store := memstore.NewStaging()
	store.Seed(schema.Country,
		staged(now, schema.Record{"country_id": int64(1), "country": " Chile "}),
		staged(now.Add(time.Second), schema.Record{"country_id": int64(1), "country": "Chile"}),
	)
	store.Seed(schema.Rental,
		staged(now, schema.Record{"rental_id": int64(1), "rental_date": ts("2024-05-01"), "return_date": ts("2024-04-01")}),
	)
	c := newCleanser(store)

	first, err := c.ProcessAll(1)
	require.NoError(t, err)
	assert.Equal(t, 1, first.TotalDuplicates())
	assert.Equal(t, 1, first.TotalInvalid())

	second, err := c.ProcessAll(1)
	require.NoError(t, err)
	assert.Zero(t, second.TotalDuplicates())
	assert.Zero(t, second.TotalInvalid())
	for _, tbl := range second.Tables {
		assert.Zero(t, tbl.Normalized, tbl.Table)
	}
}

func TestQueryBuildersUseRegistryIdentifiers(t *testing.T) {
	assert.Equal(t,
		"SELECT COUNT(*) FROM (SELECT 1 FROM `stg_film_category` WHERE `film_id` IS NOT NULL AND `category_id` IS NOT NULL GROUP BY `film_id`, `category_id` HAVING COUNT(*) > 1) d",
		duplicateKeysQuery(schema.FilmCategory, schema.FilmCategory.Key))

	assert.Equal(t,
		"SELECT COUNT(*) FROM `stg_rental` c LEFT JOIN `stg_inventory` p ON c.`inventory_id` = p.`inventory_id` WHERE c.`inventory_id` IS NOT NULL AND p.`inventory_id` IS NULL",
		orphansQuery(schema.Rental, "inventory_id", schema.Inventory, "inventory_id"))

	assert.Contains(t, rowsQuery(schema.City, true), "WHERE (`is_valid` IS NULL OR `is_valid` = TRUE) ORDER BY `stg_row_id`")
	assert.Equal(t,
		"INSERT INTO `stg_country` (`country_id`, `country`, `last_update`, `etl_loaded_at`, `etl_run_id`, `is_valid`, `invalid_reason`) VALUES (?, ?, ?, ?, ?, ?, ?)",
		insertQuery(schema.Country))
}
