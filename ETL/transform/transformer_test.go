package transform

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LilVoxy/rental_warehouse/ETL/config"
	"github.com/LilVoxy/rental_warehouse/ETL/memstore"
	"github.com/LilVoxy/rental_warehouse/ETL/models"
	"github.com/LilVoxy/rental_warehouse/ETL/schema"
	"github.com/LilVoxy/rental_warehouse/ETL/utils"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func at(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

func row(values schema.Record) schema.StagedRecord {
	return schema.StagedRecord{LoadedAt: at("2024-06-01 00:00"), RunID: 1, Valid: true, Values: values}
}

type fixture struct {
	staging   *memstore.Staging
	warehouse *memstore.Warehouse
	runs      *memstore.Runs
	tr        *Transformer
}

func newFixture() *fixture {
	cfg := config.DefaultConfig()
	cfg.TimeDimensionStart = at("2024-01-01 00:00")
	cfg.TimeDimensionEnd = at("2024-12-31 00:00")

	f := &fixture{
		staging:   memstore.NewStaging(),
		warehouse: memstore.NewWarehouse(),
		runs:      memstore.NewRuns(),
	}
	c := &clock{t: at("2024-06-10 00:00")}
	f.tr = NewTransformer(f.staging, f.warehouse, f.runs, cfg, utils.Discard()).WithClock(c.now)
	return f
}

// seedStar заполняет staging минимальной звездой: 2 фильма, 1 категория, 1 магазин
func seedStar(s *memstore.Staging) {
	s.Seed(schema.Film,
		row(schema.Record{"film_id": int64(1), "title": "ACADEMY DINOSAUR", "rental_rate": dec("4.99")}),
		row(schema.Record{"film_id": int64(2), "title": "ACE GOLDFINGER", "rental_rate": dec("0.99")}),
	)
	s.Seed(schema.Category, row(schema.Record{"category_id": int64(6), "name": "Documentary"}))
	s.Seed(schema.FilmCategory,
		row(schema.Record{"film_id": int64(1), "category_id": int64(6)}),
		row(schema.Record{"film_id": int64(2), "category_id": int64(6)}),
	)
	s.Seed(schema.Store, row(schema.Record{"store_id": int64(1), "address_id": int64(1)}))
	s.Seed(schema.Address, row(schema.Record{"address_id": int64(1), "address": "47 MySakila Drive", "postal_code": "", "city_id": int64(300)}))
	s.Seed(schema.City, row(schema.Record{"city_id": int64(300), "city": "Lethbridge", "country_id": int64(20)}))
	s.Seed(schema.Country, row(schema.Record{"country_id": int64(20), "country": "Canada"}))
	s.Seed(schema.Inventory,
		row(schema.Record{"inventory_id": int64(10), "film_id": int64(1), "store_id": int64(1)}),
		row(schema.Record{"inventory_id": int64(20), "film_id": int64(2), "store_id": int64(1)}),
	)
}

func TestTimeDimensionAttributes(t *testing.T) {
	day := NewTimeDimension(at("2024-12-29 15:30"))

	assert.Equal(t, 20241229, day.DateKey)
	assert.Equal(t, 4, day.Quarter)
	assert.Equal(t, "December", day.MonthName)
	assert.Equal(t, 7, day.DayOfWeek)
	assert.Equal(t, "Sunday", day.DayName)
	assert.True(t, day.IsWeekend)
	assert.Equal(t, 52, day.WeekOfYear)

	monday := NewTimeDimension(at("2024-12-30 00:00"))
	assert.Equal(t, 1, monday.DayOfWeek)
	assert.False(t, monday.IsWeekend)
	assert.Equal(t, 1, monday.WeekOfYear, "ISO week belongs to 2025")

	days := BuildCalendar(at("2024-02-27 10:00"), at("2024-03-01 00:00"))
	require.Len(t, days, 4)
	assert.Equal(t, 20240229, days[2].DateKey)
}

func TestPopulateTimeDimensionReplaces(t *testing.T) {
	f := newFixture()

	n, err := f.tr.PopulateTimeDimension(at("2024-01-01 00:00"), at("2024-12-31 00:00"))
	require.NoError(t, err)
	assert.Equal(t, 366, n)

	n, err = f.tr.PopulateTimeDimension(at("2024-01-01 00:00"), at("2024-01-31 00:00"))
	require.NoError(t, err)
	assert.Equal(t, 31, n)
	assert.Len(t, f.warehouse.Days(), 31)
}

func TestRateChangeTriggersVersioning(t *testing.T) {
	f := newFixture()
	f.staging.Seed(schema.Film, row(schema.Record{"film_id": int64(7), "title": "F", "rental_rate": dec("4.99")}))

	stats, err := f.tr.PopulateFilmDimension()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Inserted)

	// повторный запуск без изменений ничего не меняет
	stats, err = f.tr.PopulateFilmDimension()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Unchanged)
	require.Len(t, f.warehouse.FilmVersions(7), 1)

	require.NoError(t, f.staging.Truncate(schema.Film))
	f.staging.Seed(schema.Film, row(schema.Record{"film_id": int64(7), "title": "F", "rental_rate": dec("5.99")}))

	stats, err = f.tr.PopulateFilmDimension()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Versioned)

	versions := f.warehouse.FilmVersions(7)
	require.Len(t, versions, 2)

	old, current := versions[0], versions[1]
	assert.False(t, old.Active)
	require.NotNil(t, old.ValidTo)
	assert.False(t, old.ValidTo.Before(old.ValidFrom))
	assert.Equal(t, "4.99", old.RentalRate.StringFixed(2))

	assert.True(t, current.Active)
	assert.Equal(t, 2, current.Version)
	assert.Equal(t, "5.99", current.RentalRate.StringFixed(2))
	assert.Nil(t, current.ValidTo)
}

func TestSmallRateDifferenceIsIgnored(t *testing.T) {
	f := newFixture()
	f.staging.Seed(schema.Film, row(schema.Record{"film_id": int64(7), "rental_rate": dec("4.99")}))
	_, err := f.tr.PopulateFilmDimension()
	require.NoError(t, err)

	require.NoError(t, f.staging.Truncate(schema.Film))
	f.staging.Seed(schema.Film, row(schema.Record{"film_id": int64(7), "rental_rate": dec("4.995")}))

	stats, err := f.tr.PopulateFilmDimension()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Unchanged)
	assert.Len(t, f.warehouse.FilmVersions(7), 1)
}

func TestSCD2InvariantAcrossRuns(t *testing.T) {
	f := newFixture()
	for _, rate := range []string{"0.99", "2.99", "2.99", "4.99", "0.99"} {
		require.NoError(t, f.staging.Truncate(schema.Film))
		f.staging.Seed(schema.Film, row(schema.Record{"film_id": int64(3), "rental_rate": dec(rate)}))
		_, err := f.tr.PopulateFilmDimension()
		require.NoError(t, err)
	}

	versions := f.warehouse.FilmVersions(3)
	require.Len(t, versions, 4)
	active := 0
	for i, v := range versions {
		assert.Equal(t, i+1, v.Version)
		if v.Active {
			active++
			continue
		}
		require.NotNil(t, v.ValidTo)
		assert.False(t, v.ValidTo.Before(v.ValidFrom))
	}
	assert.Equal(t, 1, active)
}

func TestStoreDimensionDenormalizesLocation(t *testing.T) {
	f := newFixture()
	seedStar(f.staging)
	f.staging.Seed(schema.Store, row(schema.Record{"store_id": int64(2), "address_id": int64(999)}))

	n, err := f.tr.PopulateStoreDimension()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stores := f.warehouse.Stores()
	assert.Equal(t, models.StoreDimension{
		Key: 1, StoreID: 1, Name: "Store 1", Address: "47 MySakila Drive",
		City: "Lethbridge", Country: "Canada", Active: true,
	}, stores[0])
	assert.Equal(t, "Store 2", stores[1].Name)
	assert.Empty(t, stores[1].City)
}

func TestInvalidRentalIsExcludedFromFacts(t *testing.T) {
	f := newFixture()
	seedStar(f.staging)

	returned := at("2024-05-03 09:00")
	f.staging.Seed(schema.Rental,
		row(schema.Record{"rental_id": int64(1), "rental_date": at("2024-05-01 10:00"), "inventory_id": int64(10), "return_date": returned}),
		row(schema.Record{"rental_id": int64(2), "rental_date": at("2024-05-01 18:00"), "inventory_id": int64(10), "return_date": nil}),
		schema.StagedRecord{
			LoadedAt: at("2024-06-01 00:00"), Valid: false, InvalidReason: "RETURN_BEFORE_RENTAL",
			Values: schema.Record{"rental_id": int64(3), "rental_date": at("2024-05-01 12:00"), "inventory_id": int64(10), "return_date": at("2024-04-01 12:00")},
		},
	)
	f.staging.Seed(schema.Payment,
		row(schema.Record{"payment_id": int64(1), "rental_id": int64(1), "amount": dec("2.99")}),
		row(schema.Record{"payment_id": int64(2), "rental_id": int64(3), "amount": dec("9.99")}),
		schema.StagedRecord{Valid: false, Values: schema.Record{"payment_id": int64(3), "rental_id": int64(2), "amount": dec("-1.00")}},
	)

	summary, err := f.tr.RunFull(11)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Facts.Rentals)

	facts := f.warehouse.Facts()
	require.Len(t, facts, 1)
	fact := facts[0]
	assert.Equal(t, 20240501, fact.DateKey)
	assert.Equal(t, 2, fact.Rentals)
	assert.Equal(t, 1, fact.Returns)
	assert.Equal(t, "2.99", fact.TotalAmount.StringFixed(2))
	assert.Equal(t, "1.50", fact.AverageAmount.StringFixed(2))
	assert.Equal(t, "1.00", fact.AverageRentalDays.StringFixed(2))
	assert.Equal(t, int64(11), fact.RunID)
}

func TestFactsReferenceActiveDimensions(t *testing.T) {
	f := newFixture()
	seedStar(f.staging)
	f.staging.Seed(schema.Rental,
		row(schema.Record{"rental_id": int64(1), "rental_date": at("2024-05-01 10:00"), "inventory_id": int64(10)}),
		row(schema.Record{"rental_id": int64(2), "rental_date": at("2024-05-02 10:00"), "inventory_id": int64(20)}),
		row(schema.Record{"rental_id": int64(3), "rental_date": at("2024-05-02 10:00"), "inventory_id": int64(404)}),
		row(schema.Record{"rental_id": int64(4), "rental_date": at("2031-01-01 10:00"), "inventory_id": int64(20)}),
	)

	_, err := f.tr.RunFull(1)
	require.NoError(t, err)

	// второй прогон с новым тарифом: факты нового прогона ссылаются на новую версию
	require.NoError(t, f.staging.Truncate(schema.Film))
	f.staging.Seed(schema.Film,
		row(schema.Record{"film_id": int64(1), "rental_rate": dec("5.99")}),
		row(schema.Record{"film_id": int64(2), "rental_rate": dec("0.99")}),
	)
	summary, err := f.tr.RunFull(2)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Facts.Skipped, "unknown inventory and date outside calendar")

	keys, err := f.warehouse.ActiveKeys()
	require.NoError(t, err)
	active := map[int64]bool{}
	for _, k := range keys.Films {
		active[k] = true
	}

	var run2 []models.SalesFact
	for _, fact := range f.warehouse.Facts() {
		if fact.RunID == 2 {
			run2 = append(run2, fact)
		}
	}
	require.Len(t, run2, 2)
	for _, fact := range run2 {
		assert.True(t, active[fact.FilmKey], "film key %d must be active", fact.FilmKey)
		assert.Contains(t, keys.Categories, 6)
		assert.Contains(t, keys.Stores, 1)
	}

	assert.Len(t, f.warehouse.Facts(), 4, "facts are append-only across runs")
}

func TestEarlierFactsKeepTheirCategoryAfterReload(t *testing.T) {
	f := newFixture()
	seedStar(f.staging)
	f.staging.Seed(schema.Rental,
		row(schema.Record{"rental_id": int64(1), "rental_date": at("2024-05-01 10:00"), "inventory_id": int64(10)}),
	)

	_, err := f.tr.RunFull(1)
	require.NoError(t, err)

	// в источнике появилась категория с меньшим id и новый магазин
	f.staging.Seed(schema.Category, row(schema.Record{"category_id": int64(1), "name": "Action"}))
	f.staging.Seed(schema.Store, row(schema.Record{"store_id": int64(0), "address_id": int64(1)}))
	_, err = f.tr.RunFull(2)
	require.NoError(t, err)

	categories := map[int64]models.CategoryDimension{}
	for _, c := range f.warehouse.Categories() {
		categories[c.Key] = c
	}
	stores := map[int64]models.StoreDimension{}
	for _, s := range f.warehouse.Stores() {
		stores[s.Key] = s
	}
	require.Len(t, categories, 2)
	require.Len(t, stores, 2)

	for _, fact := range f.warehouse.Facts() {
		category, ok := categories[fact.CategoryKey]
		require.True(t, ok, "run %d: category key %d", fact.RunID, fact.CategoryKey)
		assert.Equal(t, 6, category.CategoryID, "run %d", fact.RunID)
		assert.Equal(t, "Documentary", category.Name)

		store, ok := stores[fact.StoreKey]
		require.True(t, ok)
		assert.Equal(t, 1, store.StoreID, "run %d", fact.RunID)
	}
	assert.Len(t, f.warehouse.Facts(), 2)
}

func TestRunFullRegistersTransformationRun(t *testing.T) {
	f := newFixture()
	seedStar(f.staging)

	summary, err := f.tr.RunFull(5)
	require.NoError(t, err)

	rec, err := f.runs.Get(summary.TransformRunID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessTransformation, rec.Process)
	assert.Equal(t, models.RunCompleted, rec.Status)
	assert.Equal(t, 366+2+1+1, rec.RowsWritten)
	assert.Equal(t, 2, summary.Films.Inserted)
}

func TestRunFullFailureMarksRunError(t *testing.T) {
	f := newFixture()
	seedStar(f.staging)
	f.staging.Seed(schema.Rental, row(schema.Record{"rental_id": int64(1), "rental_date": at("2024-05-01 10:00"), "inventory_id": int64(10)}))
	f.warehouse.FailFacts = errors.New("lock wait timeout")

	summary, err := f.tr.RunFull(5)
	require.ErrorContains(t, err, "lock wait timeout")

	rec, getErr := f.runs.Get(summary.TransformRunID)
	require.NoError(t, getErr)
	assert.Equal(t, models.RunError, rec.Status)
	assert.Contains(t, rec.ErrorMessage, "lock wait timeout")

	// шаги до ошибки уже зафиксированы
	assert.Len(t, f.warehouse.Films(), 2)
}
