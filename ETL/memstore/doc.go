// Package memstore содержит реализации хранилищ ETL в памяти:
// источник, staging, журнал запусков, аудит качества, хранилище и архив отчетов.
// Используется в тестах и для локальных прогонов без MySQL.
package memstore
