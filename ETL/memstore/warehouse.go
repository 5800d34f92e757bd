package memstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/LilVoxy/rental_warehouse/ETL/models"
)

// Warehouse звездная схема в памяти
type Warehouse struct {
	mu         sync.Mutex
	days       []models.TimeDimension
	films      []models.FilmDimension
	categories []models.CategoryDimension
	stores     []models.StoreDimension
	facts      []models.SalesFact
	nextFilm   int64
	nextFact   int64

	// FailFacts возвращается из AppendSalesFacts, если задан
	FailFacts error
}

// NewWarehouse создает пустое хранилище в памяти
func NewWarehouse() *Warehouse {
	return &Warehouse{}
}

// ReplaceTimeDimension заменяет календарь целиком
func (w *Warehouse) ReplaceTimeDimension(days []models.TimeDimension) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.days = append([]models.TimeDimension(nil), days...)
	return len(days), nil
}

// ActiveFilm возвращает активную версию фильма или ErrNoActiveVersion
func (w *Warehouse) ActiveFilm(filmID int) (*models.FilmDimension, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, f := range w.films {
		if f.FilmID == filmID && f.Active {
			cp := f
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("фильм %d: %w", filmID, models.ErrNoActiveVersion)
}

// InsertFilm добавляет версию фильма; вторая активная версия отклоняется
func (w *Warehouse) InsertFilm(f models.FilmDimension) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, existing := range w.films {
		if existing.FilmID == f.FilmID && existing.Active && f.Active {
			return 0, fmt.Errorf("у фильма %d уже есть активная версия", f.FilmID)
		}
	}
	return w.insertFilm(f), nil
}

func (w *Warehouse) insertFilm(f models.FilmDimension) int64 {
	w.nextFilm++
	f.Key = w.nextFilm
	w.films = append(w.films, f)
	return f.Key
}

// CloseAndInsertFilm закрывает активную версию и добавляет следующую
func (w *Warehouse) CloseAndInsertFilm(closeKey int64, validTo time.Time, next models.FilmDimension) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.films {
		if w.films[i].Key != closeKey {
			continue
		}
		if !w.films[i].Active {
			return 0, fmt.Errorf("версия %d уже закрыта", closeKey)
		}
		to := validTo
		w.films[i].Active = false
		w.films[i].ValidTo = &to
		return w.insertFilm(next), nil
	}
	return 0, fmt.Errorf("версия %d: %w", closeKey, models.ErrNoActiveVersion)
}

// ReplaceCategories перезагружает категории; ключ равен category_id
func (w *Warehouse) ReplaceCategories(rows []models.CategoryDimension) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.categories = nil
	for _, c := range rows {
		c.Key = int64(c.CategoryID)
		w.categories = append(w.categories, c)
	}
	return len(rows), nil
}

// ReplaceStores перезагружает магазины; ключ равен store_id
func (w *Warehouse) ReplaceStores(rows []models.StoreDimension) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stores = nil
	for _, s := range rows {
		s.Key = int64(s.StoreID)
		w.stores = append(w.stores, s)
	}
	return len(rows), nil
}

// ActiveKeys возвращает ключи активных строк измерений
func (w *Warehouse) ActiveKeys() (models.ActiveKeys, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	keys := models.ActiveKeys{
		Films:      make(map[int]int64),
		Categories: make(map[int]int64),
		Stores:     make(map[int]int64),
		Dates:      make(map[int]bool),
	}
	for _, f := range w.films {
		if f.Active {
			keys.Films[f.FilmID] = f.Key
		}
	}
	for _, c := range w.categories {
		if c.Active {
			keys.Categories[c.CategoryID] = c.Key
		}
	}
	for _, s := range w.stores {
		if s.Active {
			keys.Stores[s.StoreID] = s.Key
		}
	}
	for _, d := range w.days {
		keys.Dates[d.DateKey] = true
	}
	return keys, nil
}

// AppendSalesFacts добавляет факты; существующие строки не меняются
func (w *Warehouse) AppendSalesFacts(facts []models.SalesFact) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.FailFacts != nil {
		return 0, w.FailFacts
	}
	for _, f := range facts {
		w.nextFact++
		f.Key = w.nextFact
		w.facts = append(w.facts, f)
	}
	return len(facts), nil
}

// Days возвращает строки измерения времени
func (w *Warehouse) Days() []models.TimeDimension {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]models.TimeDimension(nil), w.days...)
}

// FilmVersions возвращает все версии фильма в порядке вставки
func (w *Warehouse) FilmVersions(filmID int) []models.FilmDimension {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []models.FilmDimension
	for _, f := range w.films {
		if f.FilmID == filmID {
			out = append(out, f)
		}
	}
	return out
}

// Films возвращает все строки измерения фильмов
func (w *Warehouse) Films() []models.FilmDimension {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]models.FilmDimension(nil), w.films...)
}

// Categories возвращает строки измерения категорий
func (w *Warehouse) Categories() []models.CategoryDimension {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]models.CategoryDimension(nil), w.categories...)
}

// Stores возвращает строки измерения магазинов
func (w *Warehouse) Stores() []models.StoreDimension {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]models.StoreDimension(nil), w.stores...)
}

// Facts возвращает все факты в порядке вставки
func (w *Warehouse) Facts() []models.SalesFact {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]models.SalesFact(nil), w.facts...)
}
