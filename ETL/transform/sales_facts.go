package transform

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LilVoxy/rental_warehouse/ETL/models"
	"github.com/LilVoxy/rental_warehouse/ETL/schema"
)

// FactStats статистика загрузки фактов
type FactStats struct {
	Rentals int `json:"rentals"`
	Facts   int `json:"facts"`
	Skipped int `json:"skipped"` // аренды без активных измерений
}

type factKey struct {
	date     int
	film     int64
	category int64
	store    int64
}

type factGroup struct {
	rentals     map[int]bool
	returns     int
	rentalDays  int
	payments    int
	totalAmount decimal.Decimal
}

// rentalDays разница в календарных днях; без возврата 0
func rentalDays(r models.Rental) int {
	if r.ReturnDate == nil {
		return 0
	}
	from := time.Date(r.RentalDate.Year(), r.RentalDate.Month(), r.RentalDate.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(r.ReturnDate.Year(), r.ReturnDate.Month(), r.ReturnDate.Day(), 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

// PopulateSalesFacts агрегирует валидные аренды по (день, фильм, категория, магазин)
// и добавляет строки фактов. Участвуют только валидные строки staging и только
// активные строки измерений; аренда без оплаты дает сумму 0.
func (t *Transformer) PopulateSalesFacts(runID int64) (FactStats, error) {
	var stats FactStats

	rentalRows, err := t.validRows(schema.Rental)
	if err != nil {
		return stats, err
	}
	inventoryRows, err := t.validRows(schema.Inventory)
	if err != nil {
		return stats, err
	}
	filmCategoryRows, err := t.validRows(schema.FilmCategory)
	if err != nil {
		return stats, err
	}
	paymentRows, err := t.validRows(schema.Payment)
	if err != nil {
		return stats, err
	}

	keys, err := t.warehouse.ActiveKeys()
	if err != nil {
		return stats, fmt.Errorf("ошибка чтения активных ключей измерений: %w", err)
	}

	inventory := make(map[int]models.Inventory, len(inventoryRows))
	for _, r := range inventoryRows {
		inv := schema.DecodeInventory(r.Values)
		inventory[inv.InventoryID] = inv
	}

	categories := make(map[int][]int)
	for _, r := range filmCategoryRows {
		fc := schema.DecodeFilmCategory(r.Values)
		categories[fc.FilmID] = append(categories[fc.FilmID], fc.CategoryID)
	}

	payments := make(map[int][]decimal.Decimal)
	for _, r := range paymentRows {
		p := schema.DecodePayment(r.Values)
		if p.RentalID != nil {
			payments[*p.RentalID] = append(payments[*p.RentalID], p.Amount)
		}
	}

	groups := make(map[factKey]*factGroup)
	for _, r := range rentalRows {
		rental := schema.DecodeRental(r.Values)
		stats.Rentals++

		inv, ok := inventory[rental.InventoryID]
		dateKey := DateKey(rental.RentalDate)
		filmKey, filmOK := keys.Films[inv.FilmID]
		storeKey, storeOK := keys.Stores[inv.StoreID]
		if !ok || !filmOK || !storeOK || !keys.Dates[dateKey] {
			stats.Skipped++
			continue
		}

		amounts := payments[rental.RentalID]
		if len(amounts) == 0 {
			amounts = []decimal.Decimal{decimal.Zero}
		}

		matched := false
		for _, categoryID := range categories[inv.FilmID] {
			categoryKey, ok := keys.Categories[categoryID]
			if !ok {
				continue
			}
			matched = true

			k := factKey{date: dateKey, film: filmKey, category: categoryKey, store: storeKey}
			g := groups[k]
			if g == nil {
				g = &factGroup{rentals: make(map[int]bool), totalAmount: decimal.Zero}
				groups[k] = g
			}
			if !g.rentals[rental.RentalID] {
				g.rentals[rental.RentalID] = true
				g.rentalDays += rentalDays(rental)
				if rental.ReturnDate != nil {
					g.returns++
				}
			}
			for _, a := range amounts {
				g.totalAmount = g.totalAmount.Add(a)
				g.payments++
			}
		}
		if !matched {
			stats.Skipped++
		}
	}

	facts := make([]models.SalesFact, 0, len(groups))
	for k, g := range groups {
		n := len(g.rentals)
		facts = append(facts, models.SalesFact{
			DateKey:           k.date,
			FilmKey:           k.film,
			CategoryKey:       k.category,
			StoreKey:          k.store,
			Rentals:           n,
			Returns:           g.returns,
			TotalAmount:       g.totalAmount,
			AverageAmount:     g.totalAmount.Div(decimal.NewFromInt(int64(g.payments))).Round(2),
			AverageRentalDays: decimal.NewFromInt(int64(g.rentalDays)).Div(decimal.NewFromInt(int64(n))).Round(2),
			RunID:             runID,
		})
	}
	sort.Slice(facts, func(i, j int) bool {
		a, b := facts[i], facts[j]
		if a.DateKey != b.DateKey {
			return a.DateKey < b.DateKey
		}
		if a.FilmKey != b.FilmKey {
			return a.FilmKey < b.FilmKey
		}
		if a.CategoryKey != b.CategoryKey {
			return a.CategoryKey < b.CategoryKey
		}
		return a.StoreKey < b.StoreKey
	})

	if len(facts) > 0 {
		if stats.Facts, err = t.warehouse.AppendSalesFacts(facts); err != nil {
			return stats, fmt.Errorf("ошибка загрузки фактов продаж: %w", err)
		}
	}

	t.logger.Info("Факты продаж: аренд %d, строк фактов %d, пропущено %d", stats.Rentals, stats.Facts, stats.Skipped)
	return stats, nil
}
