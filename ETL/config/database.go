package config

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/go-sql-driver/mysql"
)

// DBConnections содержит подключения к базам данных
type DBConnections struct {
	SourceDB    *sql.DB
	StagingDB   *sql.DB
	WarehouseDB *sql.DB
}

// DSN формирует строку подключения для драйвера MySQL
func (c DatabaseConfig) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	cfg.DBName = c.DBName
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

// Open открывает пул соединений и проверяет его
func Open(c DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(c.Driver, c.DSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе %s: %w", c.DBName, err)
	}

	// Настройка параметров подключения
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось установить соединение с базой %s: %w", c.DBName, err)
	}

	return db, nil
}

// ConnectDatabases устанавливает подключения к исходной базе, staging и хранилищу
func ConnectDatabases(config ETLConfig) (*DBConnections, error) {
	var connections DBConnections
	var err error

	connections.SourceDB, err = Open(config.SourceConfig)
	if err != nil {
		return nil, err
	}

	connections.StagingDB, err = Open(config.StagingConfig)
	if err != nil {
		CloseDatabases(&connections)
		return nil, err
	}

	connections.WarehouseDB, err = Open(config.WarehouseConfig)
	if err != nil {
		CloseDatabases(&connections)
		return nil, err
	}

	log.Println("Успешное подключение к базам данных source, staging и warehouse")
	return &connections, nil
}

// CloseDatabases закрывает подключения к базам данных
func CloseDatabases(connections *DBConnections) {
	for name, db := range map[string]*sql.DB{
		"source":    connections.SourceDB,
		"staging":   connections.StagingDB,
		"warehouse": connections.WarehouseDB,
	} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil {
			log.Printf("Ошибка при закрытии соединения с базой %s: %v", name, err)
		}
	}

	log.Println("Соединения с базами данных закрыты")
}
