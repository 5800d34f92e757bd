// Package testutil запускает MySQL в контейнере для тестов MySQL-реализаций хранилищ.
// Тесты пропускаются при -short и при недоступном Docker.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/LilVoxy/rental_warehouse/ETL/config"
)

const (
	mysqlImage    = "mysql:8.0.36"
	mysqlPassword = "secret"
)

// Контейнер общий для всех тестов пакета; удаляется reaper'ом testcontainers после выхода процесса
var (
	containerOnce sync.Once
	container     config.DatabaseConfig
	containerErr  error
	databases     atomic.Int64
)

func startContainer() (config.DatabaseConfig, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	c, err := mysql.Run(ctx, mysqlImage,
		mysql.WithDatabase("rental_test"),
		mysql.WithUsername("root"),
		mysql.WithPassword(mysqlPassword),
	)
	if err != nil {
		return config.DatabaseConfig{}, fmt.Errorf("не удалось запустить контейнер MySQL: %w", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(ctx)
		return config.DatabaseConfig{}, fmt.Errorf("не удалось получить адрес контейнера: %w", err)
	}
	port, err := c.MappedPort(ctx, "3306/tcp")
	if err != nil {
		_ = c.Terminate(ctx)
		return config.DatabaseConfig{}, fmt.Errorf("не удалось получить порт контейнера: %w", err)
	}

	return config.DatabaseConfig{
		Driver:   "mysql",
		Host:     host,
		Port:     port.Int(),
		User:     "root",
		Password: mysqlPassword,
		DBName:   "rental_test",
	}, nil
}

// MySQL возвращает подключение к отдельной пустой базе для теста
func MySQL(t *testing.T) *sql.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("тест с MySQL пропущен в режиме -short")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	containerOnce.Do(func() {
		container, containerErr = startContainer()
	})
	if containerErr != nil {
		t.Fatalf("%v", containerErr)
	}

	admin, err := config.Open(container)
	if err != nil {
		t.Fatalf("%v", err)
	}
	defer admin.Close()

	cfg := container
	cfg.DBName = fmt.Sprintf("rental_test_%d", databases.Add(1))
	if _, err := admin.Exec("CREATE DATABASE " + cfg.DBName); err != nil {
		t.Fatalf("не удалось создать базу %s: %v", cfg.DBName, err)
	}

	db, err := config.Open(cfg)
	if err != nil {
		t.Fatalf("%v", err)
	}
	t.Cleanup(func() {
		db.Close()
		if admin, err := config.Open(container); err == nil {
			admin.Exec("DROP DATABASE " + cfg.DBName)
			admin.Close()
		}
	})

	return db
}
