package transform

import (
	"fmt"
	"time"

	"github.com/LilVoxy/rental_warehouse/ETL/models"
)

var (
	monthNames = []string{"January", "February", "March", "April", "May", "June",
		"July", "August", "September", "October", "November", "December"}
	dayNames = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}
)

// DateKey возвращает ключ дня в формате YYYYMMDD
func DateKey(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// NewTimeDimension вычисляет атрибуты дня только по дате
func NewTimeDimension(day time.Time) models.TimeDimension {
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	month := int(day.Month())

	// 1 = понедельник, 7 = воскресенье
	dayOfWeek := (int(day.Weekday())+6)%7 + 1
	_, week := day.ISOWeek()

	return models.TimeDimension{
		DateKey:    DateKey(day),
		FullDate:   day,
		Year:       day.Year(),
		Quarter:    (month-1)/3 + 1,
		Month:      month,
		MonthName:  monthNames[month-1],
		DayOfMonth: day.Day(),
		DayOfWeek:  dayOfWeek,
		DayName:    dayNames[dayOfWeek-1],
		WeekOfYear: week,
		IsWeekend:  dayOfWeek >= 6,
	}
}

// BuildCalendar строит календарь дней [start, end] включительно
func BuildCalendar(start, end time.Time) []models.TimeDimension {
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)

	var days []models.TimeDimension
	for current := start; !current.After(end); current = current.AddDate(0, 0, 1) {
		days = append(days, NewTimeDimension(current))
	}
	return days
}

// PopulateTimeDimension пересоздает измерение времени
func (t *Transformer) PopulateTimeDimension(start, end time.Time) (int, error) {
	t.logger.Info("Создание измерения времени %s - %s...", start.Format("2006-01-02"), end.Format("2006-01-02"))

	n, err := t.warehouse.ReplaceTimeDimension(BuildCalendar(start, end))
	if err != nil {
		return 0, fmt.Errorf("ошибка при заполнении измерения времени: %w", err)
	}

	t.logger.Info("Измерение времени создано. Всего записей: %d", n)
	return n, nil
}
