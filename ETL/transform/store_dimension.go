package transform

import (
	"fmt"
	"sort"

	"github.com/LilVoxy/rental_warehouse/ETL/models"
	"github.com/LilVoxy/rental_warehouse/ETL/schema"
)

// PopulateCategoryDimension перезагружает измерение категорий
func (t *Transformer) PopulateCategoryDimension() (int, error) {
	rows, err := t.validRows(schema.Category)
	if err != nil {
		return 0, err
	}

	dims := make([]models.CategoryDimension, 0, len(rows))
	for _, r := range rows {
		c := schema.DecodeCategory(r.Values)
		dims = append(dims, models.CategoryDimension{CategoryID: c.CategoryID, Name: c.Name, Active: true})
	}
	sort.Slice(dims, func(i, j int) bool { return dims[i].CategoryID < dims[j].CategoryID })

	n, err := t.warehouse.ReplaceCategories(dims)
	if err != nil {
		return 0, fmt.Errorf("ошибка загрузки измерения категорий: %w", err)
	}

	t.logger.Info("Измерение категорий: %d записей", n)
	return n, nil
}

// PopulateStoreDimension перезагружает измерение магазинов,
// денормализуя адрес -> город -> страна; недостающие звенья дают пустые строки
func (t *Transformer) PopulateStoreDimension() (int, error) {
	storeRows, err := t.validRows(schema.Store)
	if err != nil {
		return 0, err
	}
	addressRows, err := t.validRows(schema.Address)
	if err != nil {
		return 0, err
	}
	cityRows, err := t.validRows(schema.City)
	if err != nil {
		return 0, err
	}
	countryRows, err := t.validRows(schema.Country)
	if err != nil {
		return 0, err
	}

	addresses := make(map[int]models.Address, len(addressRows))
	for _, r := range addressRows {
		a := schema.DecodeAddress(r.Values)
		addresses[a.AddressID] = a
	}
	cities := make(map[int]models.City, len(cityRows))
	for _, r := range cityRows {
		c := schema.DecodeCity(r.Values)
		cities[c.CityID] = c
	}
	countries := make(map[int]models.Country, len(countryRows))
	for _, r := range countryRows {
		c := schema.DecodeCountry(r.Values)
		countries[c.CountryID] = c
	}

	dims := make([]models.StoreDimension, 0, len(storeRows))
	for _, r := range storeRows {
		s := schema.DecodeStore(r.Values)
		dim := models.StoreDimension{
			StoreID: s.StoreID,
			Name:    fmt.Sprintf("Store %d", s.StoreID),
			Active:  true,
		}

		if a, ok := addresses[s.AddressID]; ok {
			dim.Address = a.Address
			dim.PostalCode = a.PostalCode
			if c, ok := cities[a.CityID]; ok {
				dim.City = c.City
				if co, ok := countries[c.CountryID]; ok {
					dim.Country = co.Country
				}
			}
		}

		dims = append(dims, dim)
	}
	sort.Slice(dims, func(i, j int) bool { return dims[i].StoreID < dims[j].StoreID })

	n, err := t.warehouse.ReplaceStores(dims)
	if err != nil {
		return 0, fmt.Errorf("ошибка загрузки измерения магазинов: %w", err)
	}

	t.logger.Info("Измерение магазинов: %d записей", n)
	return n, nil
}
