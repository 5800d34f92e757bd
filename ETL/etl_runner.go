package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/LilVoxy/rental_warehouse/ETL/archive"
	"github.com/LilVoxy/rental_warehouse/ETL/config"
	"github.com/LilVoxy/rental_warehouse/ETL/extractors"
	"github.com/LilVoxy/rental_warehouse/ETL/load"
	"github.com/LilVoxy/rental_warehouse/ETL/models"
	"github.com/LilVoxy/rental_warehouse/ETL/orchestrator"
	"github.com/LilVoxy/rental_warehouse/ETL/staging"
	"github.com/LilVoxy/rental_warehouse/ETL/transform"
	"github.com/LilVoxy/rental_warehouse/ETL/utils"
	"github.com/LilVoxy/rental_warehouse/ETL/validation"
)

type ETLRunner struct {
	config        config.ETLConfig
	dbConnections *config.DBConnections
	logger        *utils.ETLLogger
	orchestrator  *orchestrator.Orchestrator
}

// NewETLRunner подключается к базам, готовит служебные таблицы и собирает конвейер
func NewETLRunner(etlConfig config.ETLConfig, opts orchestrator.Options) (*ETLRunner, error) {
	logger, err := utils.NewETLLogger(etlConfig.LogPath, etlConfig.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации логгера: %w", err)
	}
	logger.Info("Инициализация ETL Runner")

	connections, err := config.ConnectDatabases(etlConfig)
	if err != nil {
		logger.Close()
		return nil, models.NewPipelineError(models.KindConnectivity, "STARTUP", err)
	}

	runner := &ETLRunner{config: etlConfig, dbConnections: connections, logger: logger}
	if err := runner.wire(opts); err != nil {
		runner.Close()
		return nil, err
	}
	return runner, nil
}

func (r *ETLRunner) wire(opts orchestrator.Options) error {
	runs := models.NewMySQLRunRegistry(r.dbConnections.StagingDB)
	if err := runs.CreateTable(); err != nil {
		return err
	}

	audit := models.NewMySQLQualityAudit(r.dbConnections.StagingDB)
	if err := audit.CreateTable(); err != nil {
		return err
	}

	reports := archive.NewMySQLArchive(r.dbConnections.StagingDB)
	if err := reports.CreateTable(); err != nil {
		return err
	}

	warehouse := load.NewMySQLWarehouse(r.dbConnections.WarehouseDB, r.logger, r.config.BatchSize)
	if err := warehouse.CreateTables(); err != nil {
		return err
	}

	source := extractors.NewMySQLSource(r.dbConnections.SourceDB, r.logger)
	store := staging.NewMySQLStore(r.dbConnections.StagingDB, r.logger)

	r.orchestrator = orchestrator.New(orchestrator.Dependencies{
		Extraction:     extractors.NewExtractor(source, store, runs, r.logger, r.config.BatchSize),
		Validation:     validation.NewValidator(store, source, audit, r.config.Rules, r.logger),
		Cleansing:      staging.NewCleanser(store, r.config.Rules, r.logger),
		Transformation: transform.NewTransformer(store, warehouse, runs, r.config, r.logger),
		Archive:        reports,
		Observer: func(e orchestrator.PhaseEvent) {
			r.logger.Debug("Фаза %s: %s %s", e.Phase, e.State, e.Message)
		},
	}, opts, r.logger)

	return nil
}

// Close закрывает соединения с базами данных
func (r *ETLRunner) Close() {
	r.logger.Info("Завершение работы ETL Runner")
	config.CloseDatabases(r.dbConnections)
	r.logger.Close()
}

// ExecuteETL выполняет один полный запуск конвейера
func (r *ETLRunner) ExecuteETL() orchestrator.Report {
	r.logger.Info("Запуск ETL процесса")
	report := r.orchestrator.Run()
	if report.Success {
		r.logger.Info("ETL процесс успешно завершен. Длительность: %.2f с", report.DurationSeconds)
	} else {
		r.logger.Error("ETL процесс завершился с ошибкой в фазе %s: %s", report.FailedPhase, report.Error)
	}
	return report
}

// StartScheduler запускает конвейер с интервалом из конфигурации; запуски не перекрываются
func (r *ETLRunner) StartScheduler(ctx context.Context) error {
	scheduler := gocron.NewScheduler(time.UTC)

	r.logger.Info("Запуск планировщика ETL с интервалом %v", r.config.RunInterval)

	_, err := scheduler.Every(r.config.RunInterval).SingletonMode().Do(func() {
		r.logger.Info("Запланированный запуск ETL процесса")
		r.ExecuteETL()
	})
	if err != nil {
		return fmt.Errorf("ошибка при настройке планировщика: %w", err)
	}

	scheduler.StartAsync()

	<-ctx.Done()

	scheduler.Stop()
	r.logger.Info("Планировщик ETL остановлен")
	return nil
}

// confirm запрашивает подтверждение запуска
func confirm(in io.Reader, out io.Writer, opts orchestrator.Options) bool {
	mode := "полный"
	if opts.Incremental {
		mode = "инкрементальный"
	}
	fmt.Fprintf(out, "Будет выполнен %s запуск ETL (проверки качества: %t). Продолжить? [s/N]: ", mode, !opts.SkipValidation)

	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
	case "s", "si", "y", "yes":
		return true
	}
	return false
}

func main() {
	modePtr := flag.String("mode", "once", "Режим работы: once или scheduled")
	incrementalPtr := flag.Bool("incremental", false, "Инкрементальное извлечение от последнего успешного запуска")
	skipValidationPtr := flag.Bool("skip-validation", false, "Пропустить фазы проверки качества")
	forcePtr := flag.Bool("force", false, "Не запрашивать подтверждение")

	flag.Parse()

	etlConfig, err := config.LoadConfig()
	if err != nil {
		log.Printf("Ошибка конфигурации: %v", err)
		os.Exit(1)
	}

	opts := orchestrator.Options{
		Incremental:        *incrementalPtr,
		SkipValidation:     *skipValidationPtr,
		ValidationWarnRate: etlConfig.ValidationWarnRate,
	}

	log.Println("Запуск ETL Runner в режиме:", *modePtr)

	switch *modePtr {
	case "once":
		if !*forcePtr && !confirm(os.Stdin, os.Stdout, opts) {
			log.Println("Запуск отменен пользователем")
			return
		}
		os.Exit(runOnce(etlConfig, opts))
	case "scheduled":
		os.Exit(runScheduled(etlConfig, opts))
	default:
		log.Println("Неизвестный режим работы:", *modePtr)
		log.Println("Доступные режимы: once, scheduled")
		os.Exit(1)
	}
}

func runOnce(etlConfig config.ETLConfig, opts orchestrator.Options) int {
	runner, err := NewETLRunner(etlConfig, opts)
	if err != nil {
		log.Printf("Ошибка при создании ETL Runner: %v", err)
		return 1
	}
	defer runner.Close()

	return runner.ExecuteETL().ExitCode()
}

func runScheduled(etlConfig config.ETLConfig, opts orchestrator.Options) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runner, err := NewETLRunner(etlConfig, opts)
	if err != nil {
		log.Printf("Ошибка при создании ETL Runner: %v", err)
		return 1
	}
	defer runner.Close()

	if err := runner.StartScheduler(ctx); err != nil {
		runner.logger.Error("%v", err)
		return 1
	}
	return 0
}
