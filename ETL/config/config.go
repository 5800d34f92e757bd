package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// ETLConfig содержит конфигурацию для ETL-процесса
type ETLConfig struct {
	// Исходная OLTP база (прокат)
	SourceConfig DatabaseConfig `json:"source_config"`

	// Промежуточная область (staging), здесь же журнал запусков и аудит качества
	StagingConfig DatabaseConfig `json:"staging_config"`

	// Хранилище (звезда)
	WarehouseConfig DatabaseConfig `json:"warehouse_config"`

	// Размер пакета при массовой записи
	BatchSize int `json:"batch_size" validate:"min=1,max=100000"`

	// Уровень логирования: debug, info, warn, error
	LogLevel string `json:"log_level" validate:"oneof=debug info warn error"`

	// Каталог для файлов логов
	LogPath string `json:"log_path" validate:"required"`

	// Интервал запуска ETL в режиме scheduled
	RunInterval time.Duration `json:"run_interval" validate:"min=1s"`

	// Диапазон календаря измерения времени
	TimeDimensionStart time.Time `json:"time_dimension_start" validate:"required"`
	TimeDimensionEnd   time.Time `json:"time_dimension_end" validate:"required,gtfield=TimeDimensionStart"`

	// Процент успешных проверок, ниже которого выводится предупреждение
	ValidationWarnRate float64 `json:"validation_warn_rate" validate:"min=0,max=100"`

	Rules BusinessRules `json:"rules"`

	Report ReportConfig `json:"report"`
}

// BusinessRules содержит пороги очистки и проверок качества
type BusinessRules struct {
	PaymentCeiling     decimal.Decimal `json:"payment_ceiling"`
	FilmMinLength      int             `json:"film_min_length" validate:"min=0"`
	FilmMaxLength      int             `json:"film_max_length" validate:"gtfield=FilmMinLength"`
	FilmMinRate        decimal.Decimal `json:"film_min_rate"`
	FilmMaxRate        decimal.Decimal `json:"film_max_rate"`
	RateEpsilon        decimal.Decimal `json:"rate_epsilon"`
	ReconcileTolerance decimal.Decimal `json:"reconcile_tolerance"` // в процентах
}

// ReportConfig содержит настройки сервера отчетов
type ReportConfig struct {
	Addr         string        `json:"addr" validate:"required"`
	PollInterval time.Duration `json:"poll_interval" validate:"min=100ms"`
}

// DatabaseConfig содержит настройки подключения к базе данных
type DatabaseConfig struct {
	Driver   string `json:"driver" validate:"required"`
	Host     string `json:"host" validate:"required"`
	Port     int    `json:"port" validate:"min=1,max=65535"`
	User     string `json:"user" validate:"required"`
	Password string `json:"password"`
	DBName   string `json:"dbname" validate:"required"`
}

// Значения конфигурации по умолчанию
var (
	DefaultSourceConfig = DatabaseConfig{
		Driver: "mysql",
		Host:   "localhost",
		Port:   3306,
		User:   "root",
		DBName: "sakila",
	}

	DefaultStagingConfig = DatabaseConfig{
		Driver: "mysql",
		Host:   "localhost",
		Port:   3306,
		User:   "root",
		DBName: "sakila_staging",
	}

	DefaultWarehouseConfig = DatabaseConfig{
		Driver: "mysql",
		Host:   "localhost",
		Port:   3306,
		User:   "root",
		DBName: "sakila_dw",
	}

	DefaultRules = BusinessRules{
		PaymentCeiling:     decimal.NewFromInt(100),
		FilmMinLength:      1,
		FilmMaxLength:      500,
		FilmMinRate:        decimal.Zero,
		FilmMaxRate:        decimal.NewFromInt(10),
		RateEpsilon:        decimal.RequireFromString("0.01"),
		ReconcileTolerance: decimal.RequireFromString("0.01"),
	}
)

// DefaultConfig возвращает конфигурацию по умолчанию без чтения окружения
func DefaultConfig() ETLConfig {
	return ETLConfig{
		SourceConfig:       DefaultSourceConfig,
		StagingConfig:      DefaultStagingConfig,
		WarehouseConfig:    DefaultWarehouseConfig,
		BatchSize:          1000,
		LogLevel:           "info",
		LogPath:            "logs",
		RunInterval:        24 * time.Hour,
		TimeDimensionStart: time.Date(2005, 1, 1, 0, 0, 0, 0, time.UTC),
		TimeDimensionEnd:   time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		ValidationWarnRate: 50,
		Rules:              DefaultRules,
		Report: ReportConfig{
			Addr:         ":8080",
			PollInterval: 5 * time.Second,
		},
	}
}

// LoadConfig читает .env (если есть) и переменные окружения поверх значений по умолчанию
func LoadConfig() (ETLConfig, error) {
	// Отсутствие .env не ошибка
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv собирает конфигурацию из произвольного источника переменных
func FromEnv(getenv func(string) string) (ETLConfig, error) {
	cfg := DefaultConfig()
	env := envReader{getenv: getenv}

	env.database("SOURCE_DB", &cfg.SourceConfig)
	env.database("STAGING_DB", &cfg.StagingConfig)
	env.database("DW_DB", &cfg.WarehouseConfig)

	env.int("ETL_BATCH_SIZE", &cfg.BatchSize)
	env.string("ETL_LOG_LEVEL", &cfg.LogLevel)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	env.string("ETL_LOG_PATH", &cfg.LogPath)
	env.duration("ETL_RUN_INTERVAL", &cfg.RunInterval)
	env.date("ETL_TIME_DIM_START", &cfg.TimeDimensionStart)
	env.date("ETL_TIME_DIM_END", &cfg.TimeDimensionEnd)
	env.float("ETL_VALIDATION_WARN_RATE", &cfg.ValidationWarnRate)

	env.decimal("ETL_PAYMENT_CEILING", &cfg.Rules.PaymentCeiling)
	env.int("ETL_FILM_MIN_LENGTH", &cfg.Rules.FilmMinLength)
	env.int("ETL_FILM_MAX_LENGTH", &cfg.Rules.FilmMaxLength)
	env.decimal("ETL_FILM_MIN_RATE", &cfg.Rules.FilmMinRate)
	env.decimal("ETL_FILM_MAX_RATE", &cfg.Rules.FilmMaxRate)
	env.decimal("ETL_RATE_EPSILON", &cfg.Rules.RateEpsilon)
	env.decimal("ETL_RECONCILE_TOLERANCE", &cfg.Rules.ReconcileTolerance)

	env.string("REPORT_ADDR", &cfg.Report.Addr)
	env.duration("REPORT_POLL_INTERVAL", &cfg.Report.PollInterval)

	if env.err != nil {
		return ETLConfig{}, env.err
	}

	if err := cfg.Validate(); err != nil {
		return ETLConfig{}, err
	}

	return cfg, nil
}

var validate = validator.New()

// Validate проверяет конфигурацию
func (c ETLConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("некорректная конфигурация: %w", err)
	}

	if c.Rules.FilmMaxRate.LessThanOrEqual(c.Rules.FilmMinRate) {
		return fmt.Errorf("некорректная конфигурация: film_max_rate должен быть больше film_min_rate")
	}
	if c.Rules.RateEpsilon.IsNegative() || c.Rules.ReconcileTolerance.IsNegative() {
		return fmt.Errorf("некорректная конфигурация: допуски не могут быть отрицательными")
	}
	if !c.Rules.PaymentCeiling.IsPositive() {
		return fmt.Errorf("некорректная конфигурация: payment_ceiling должен быть положительным")
	}

	return nil
}

// envReader запоминает первую ошибку разбора
type envReader struct {
	getenv func(string) string
	err    error
}

func (e *envReader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(e.getenv(key))
	return v, v != ""
}

func (e *envReader) fail(key, value string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("неверное значение %s=%q: %w", key, value, err)
	}
}

func (e *envReader) string(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) int(key string, dst *int) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = n
}

func (e *envReader) float(key string, dst *float64) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = f
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = d
}

func (e *envReader) date(key string, dst *time.Time) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	t, err := time.ParseInLocation("2006-01-02", v, time.UTC)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = t
}

func (e *envReader) decimal(key string, dst *decimal.Decimal) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = d
}

func (e *envReader) database(prefix string, dst *DatabaseConfig) {
	e.string(prefix+"_HOST", &dst.Host)
	e.int(prefix+"_PORT", &dst.Port)
	e.string(prefix+"_USER", &dst.User)
	e.string(prefix+"_PASSWORD", &dst.Password)
	e.string(prefix+"_NAME", &dst.DBName)
}
