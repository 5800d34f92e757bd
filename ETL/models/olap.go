package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimeDimension представляет день календаря в хранилище
type TimeDimension struct {
	DateKey    int // YYYYMMDD
	FullDate   time.Time
	Year       int
	Quarter    int
	Month      int
	MonthName  string
	DayOfMonth int
	DayOfWeek  int // 1 = понедельник, 7 = воскресенье
	DayName    string
	WeekOfYear int // ISO
	IsWeekend  bool
}

// FilmDimension версия фильма (SCD Type 2)
type FilmDimension struct {
	Key             int64
	FilmID          int
	Title           string
	Description     string
	ReleaseYear     int
	Length          int
	Rating          string
	RentalRate      decimal.Decimal
	ReplacementCost decimal.Decimal
	Active          bool
	ValidFrom       time.Time
	ValidTo         *time.Time
	Version         int
}

// CategoryDimension представляет категорию
type CategoryDimension struct {
	Key        int64
	CategoryID int
	Name       string
	Active     bool
}

// StoreDimension представляет магазин с денормализованным адресом
type StoreDimension struct {
	Key        int64
	StoreID    int
	Name       string
	Address    string
	City       string
	Country    string
	PostalCode string
	Active     bool
}

// SalesFact агрегат продаж по (дата, фильм, категория, магазин)
type SalesFact struct {
	Key               int64
	DateKey           int
	FilmKey           int64
	CategoryKey       int64
	StoreKey          int64
	Rentals           int
	Returns           int
	TotalAmount       decimal.Decimal
	AverageAmount     decimal.Decimal
	AverageRentalDays decimal.Decimal
	RunID             int64
}

// ActiveKeys суррогатные ключи активных строк измерений по натуральным ключам
type ActiveKeys struct {
	Films      map[int]int64
	Categories map[int]int64
	Stores     map[int]int64
	Dates      map[int]bool
}
