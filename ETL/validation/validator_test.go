package validation

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

var loaded = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func row(values schema.Record) schema.StagedRecord {
	return schema.StagedRecord{LoadedAt: loaded, RunID: 1, Valid: true, Values: values}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// seedClean заполняет staging и источник согласованными данными
func seedClean(stg *memstore.Staging, src *memstore.Source, amount string) {
	stg.Seed(schema.Rental,
		row(schema.Record{"rental_id": int64(1), "rental_date": loaded, "inventory_id": int64(1), "customer_id": int64(1)}),
	)
	stg.Seed(schema.Payment,
		row(schema.Record{"payment_id": int64(1), "customer_id": int64(1), "amount": dec("100.00"), "payment_date": loaded}),
	)
	stg.Seed(schema.Inventory, row(schema.Record{"inventory_id": int64(1), "film_id": int64(1), "store_id": int64(1)}))
	stg.Seed(schema.Film, row(schema.Record{"film_id": int64(1), "rental_rate": dec("4.99")}))
	stg.Seed(schema.Store, row(schema.Record{"store_id": int64(1), "address_id": int64(1)}))
	stg.Seed(schema.Address, row(schema.Record{"address_id": int64(1)}))

	src.Set(schema.Payment, schema.Record{"payment_id": int64(1), "amount": amount})
}

func newValidator(stg *memstore.Staging, src Summer, audit *memstore.Audit) *Validator {
	return NewValidator(stg, src, audit, config.DefaultRules, utils.Discard())
}

func TestRunAllOnCleanData(t *testing.T) {
	stg, src, audit := memstore.NewStaging(), memstore.NewSource(), memstore.NewAudit()
	seedClean(stg, src, "100.00")

	summary, err := newValidator(stg, src, audit).RunAll(7)
	require.NoError(t, err)

	assert.Len(t, summary.Results, 17)
	assert.Equal(t, 100.0, summary.PassRate())
	assert.Empty(t, summary.Failed())
	assert.Zero(t, summary.Warnings)

	checks, err := audit.ForRun(7)
	require.NoError(t, err)
	assert.Len(t, checks, 17, "one audit row per evaluated item")
	for _, c := range checks {
		assert.Equal(t, models.CheckPass, c.Result, c.Check)
	}
}

func TestReconciliationDifferenceIsWarningOnly(t *testing.T) {
	stg, src, audit := memstore.NewStaging(), memstore.NewSource(), memstore.NewAudit()
	// в источнике 101.00, в staging 100.00: расхождение около 1%
	seedClean(stg, src, "101.00")

	summary, err := newValidator(stg, src, audit).RunAll(3)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Warnings)
	assert.True(t, summary.Results["payment.reconciliation_amount"])
	assert.Equal(t, 100.0, summary.PassRate())

	checks, _ := audit.ForRun(3)
	last := checks[len(checks)-1]
	assert.Equal(t, "reconciliation_amount", last.Check)
	assert.Equal(t, models.CheckWarning, last.Result)
	assert.Equal(t, "101.00", last.Expected)
	assert.Equal(t, "100.00", last.Observed)
}

func TestChecksReportDirtyData(t *testing.T) {
	stg := memstore.NewStaging()
	stg.Seed(schema.Rental,
		row(schema.Record{"rental_id": int64(1), "rental_date": loaded, "inventory_id": int64(99), "customer_id": nil}),
		row(schema.Record{"rental_id": int64(1), "rental_date": nil, "inventory_id": nil, "customer_id": int64(2)}),
	)
	stg.Seed(schema.Payment,
		row(schema.Record{"payment_id": int64(1), "amount": dec("250.00")}),
		row(schema.Record{"payment_id": int64(2), "amount": dec("-3.00")}),
	)
	audit := memstore.NewAudit()
	v := newValidator(stg, nil, audit)

	ok, err := v.Uniqueness(1, schema.Rental, schema.Rental.Key)
	require.NoError(t, err)
	assert.False(t, ok)

	cols, err := v.Completeness(1, schema.Rental, []string{"rental_id", "rental_date", "customer_id"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"rental_id": true, "rental_date": false, "customer_id": false}, cols)

	ok, err = v.Range(1, schema.Payment, "amount", decimal.Zero, dec("100"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = v.ReferentialIntegrity(1, schema.Rental, "inventory_id", schema.Inventory, "inventory_id")
	require.NoError(t, err)
	assert.False(t, ok, "inventory 99 has no parent; NULL foreign keys are ignored")

	checks, _ := audit.ForRun(1)
	require.Len(t, checks, 6)
	assert.Equal(t, "2", checks[4].Observed)
	assert.Equal(t, "1", checks[5].Observed)
}

func TestRunAllWithoutSourceSkipsReconciliation(t *testing.T) {
	stg, src, audit := memstore.NewStaging(), memstore.NewSource(), memstore.NewAudit()
	seedClean(stg, src, "100.00")

	summary, err := newValidator(stg, nil, audit).RunAll(1)
	require.NoError(t, err)
	assert.Len(t, summary.Results, 16)
	_, ok := summary.Results["payment.reconciliation_amount"]
	assert.False(t, ok)
}

type failingAudit struct{}

func (failingAudit) Record(models.QualityCheck) error               { return errors.New("disk full") }
func (failingAudit) ForRun(int64) ([]models.QualityCheck, error) { return nil, nil }

func TestStoreErrorsAbortTheBattery(t *testing.T) {
	_, err := NewValidator(memstore.NewStaging(), nil, failingAudit{}, config.DefaultRules, utils.Discard()).RunAll(1)
	assert.ErrorContains(t, err, "disk full")
}

func TestRelativeDifference(t *testing.T) {
	assert.True(t, RelativeDifference(dec("100"), dec("99")).Equal(dec("1")))
	assert.True(t, RelativeDifference(decimal.Zero, decimal.Zero).IsZero())
	assert.True(t, RelativeDifference(decimal.Zero, dec("5")).Equal(dec("100")))
}

func TestPassRateCountsFailures(t *testing.T) {
	s := Summary{Results: map[string]bool{"a": true, "b": false, "c": false, "d": true}}
	assert.Equal(t, 50.0, s.PassRate())
	assert.Equal(t, []string{"b", "c"}, s.Failed())
	assert.Zero(t, Summary{}.PassRate())
}
