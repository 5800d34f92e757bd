package config

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestFromEnvOverridesDefaults(t *testing.T) {
	cfg, err := FromEnv(envFrom(map[string]string{
		"SOURCE_DB_HOST":           "oltp.internal",
		"SOURCE_DB_PORT":           "3307",
		"DW_DB_NAME":               "rental_dw",
		"ETL_BATCH_SIZE":           "250",
		"ETL_LOG_LEVEL":            "DEBUG",
		"ETL_TIME_DIM_END":         "2030-12-31",
		"ETL_PAYMENT_CEILING":      "150.50",
		"REPORT_POLL_INTERVAL":     "2s",
		"ETL_VALIDATION_WARN_RATE": "75",
	}))
	require.NoError(t, err)

	assert.Equal(t, "oltp.internal", cfg.SourceConfig.Host)
	assert.Equal(t, 3307, cfg.SourceConfig.Port)
	assert.Equal(t, "rental_dw", cfg.WarehouseConfig.DBName)
	assert.Equal(t, "sakila_staging", cfg.StagingConfig.DBName)
	assert.Equal(t, 250, cfg.BatchSize)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, time.Date(2030, 12, 31, 0, 0, 0, 0, time.UTC), cfg.TimeDimensionEnd)
	assert.True(t, cfg.Rules.PaymentCeiling.Equal(decimal.RequireFromString("150.50")))
	assert.Equal(t, 2*time.Second, cfg.Report.PollInterval)
	assert.Equal(t, 75.0, cfg.ValidationWarnRate)
}

func TestFromEnvRejectsMalformedValues(t *testing.T) {
	_, err := FromEnv(envFrom(map[string]string{"ETL_BATCH_SIZE": "many"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ETL_BATCH_SIZE")
}

func TestValidateRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ETLConfig)
	}{
		{"zero batch", func(c *ETLConfig) { c.BatchSize = 0 }},
		{"unknown log level", func(c *ETLConfig) { c.LogLevel = "trace" }},
		{"inverted calendar", func(c *ETLConfig) { c.TimeDimensionEnd = c.TimeDimensionStart.AddDate(-1, 0, 0) }},
		{"missing source host", func(c *ETLConfig) { c.SourceConfig.Host = "" }},
		{"inverted film length", func(c *ETLConfig) { c.Rules.FilmMaxLength = 0 }},
		{"inverted film rate", func(c *ETLConfig) { c.Rules.FilmMaxRate = decimal.Zero }},
		{"negative epsilon", func(c *ETLConfig) { c.Rules.RateEpsilon = decimal.NewFromInt(-1) }},
		{"warn rate above 100", func(c *ETLConfig) { c.ValidationWarnRate = 120 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDSNEnablesTimeParsing(t *testing.T) {
	dsn := DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, User: "etl", Password: "secret", DBName: "sakila"}.DSN()

	assert.True(t, strings.HasPrefix(dsn, "etl:secret@tcp(db:3306)/sakila?"), dsn)
	assert.Contains(t, dsn, "parseTime=true")
}
