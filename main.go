// main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/LilVoxy/rental_warehouse/ETL/config"
	"github.com/LilVoxy/rental_warehouse/ETL/models"
	"github.com/LilVoxy/rental_warehouse/ETL/utils"
	"github.com/LilVoxy/rental_warehouse/database"
	"github.com/LilVoxy/rental_warehouse/routes"
	"github.com/LilVoxy/rental_warehouse/websocket"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger, err := utils.NewETLLogger(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Ошибка инициализации логгера: %v", err)
	}
	defer logger.Close()
	logger = logger.WithField("component", "report-server")

	// Сервер только читает хранилище и журнал запусков
	warehouseDB, err := config.Open(cfg.WarehouseConfig)
	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
	defer warehouseDB.Close()

	stagingDB, err := config.Open(cfg.StagingConfig)
	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
	defer stagingDB.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Лента изменений журнала запусков
	hub := websocket.NewHub(models.NewMySQLRunRegistry(stagingDB), logger)
	go hub.Run(ctx)
	go hub.Watch(ctx, cfg.Report.PollInterval)

	router := mux.NewRouter()
	routes.SetupRoutes(router, routes.NewHandlers(database.NewStore(warehouseDB, stagingDB), logger), hub)

	server := &http.Server{
		Addr:         cfg.Report.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Сервер отчетов запущен на %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Ошибка запуска сервера: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Получен сигнал завершения, останавливаем сервер...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Ошибка при остановке сервера: %v", err)
	}

	logger.Info("Сервер остановлен")
}
