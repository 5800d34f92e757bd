package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Записи исходной базы проката в staging

type Rental struct {
	RentalID    int
	RentalDate  time.Time
	InventoryID int
	CustomerID  int
	ReturnDate  *time.Time
	StaffID     int
	LastUpdate  time.Time
}

type Payment struct {
	PaymentID   int
	CustomerID  int
	StaffID     int
	RentalID    *int
	Amount      decimal.Decimal
	PaymentDate time.Time
	LastUpdate  time.Time
}

type Inventory struct {
	InventoryID int
	FilmID      int
	StoreID     int
	LastUpdate  time.Time
}

type Film struct {
	FilmID             int
	Title              string
	Description        string
	ReleaseYear        int
	LanguageID         int
	OriginalLanguageID int
	RentalDuration     int
	RentalRate         decimal.Decimal
	Length             int
	ReplacementCost    decimal.Decimal
	Rating             string
	SpecialFeatures    string
	LastUpdate         time.Time
}

type FilmCategory struct {
	FilmID     int
	CategoryID int
	LastUpdate time.Time
}

type Category struct {
	CategoryID int
	Name       string
	LastUpdate time.Time
}

type Store struct {
	StoreID        int
	ManagerStaffID int
	AddressID      int
	LastUpdate     time.Time
}

type Address struct {
	AddressID  int
	Address    string
	Address2   string
	District   string
	CityID     int
	PostalCode string
	Phone      string
	LastUpdate time.Time
}

type City struct {
	CityID     int
	City       string
	CountryID  int
	LastUpdate time.Time
}

type Country struct {
	CountryID  int
	Country    string
	LastUpdate time.Time
}
