package staging

import (
	"time"

	"github.com/LilVoxy/rental_warehouse/ETL/config"
	"github.com/LilVoxy/rental_warehouse/ETL/schema"
)

// Причины невалидности
const (
	ReasonFutureRental       = "FUTURE_RENTAL_DATE"
	ReasonReturnBeforeRental = "RETURN_BEFORE_RENTAL"
	ReasonNegativeAmount     = "NEGATIVE_AMOUNT"
	ReasonAmountOverCeiling  = "AMOUNT_OVER_CEILING"
	ReasonFuturePayment      = "FUTURE_PAYMENT_DATE"
	ReasonNegativeRate       = "NEGATIVE_RATE"
	ReasonRateOverMax        = "RATE_OVER_MAX"
	ReasonLengthOutOfRange   = "LENGTH_OUT_OF_RANGE"
)

// RentalRules правила для stg_rental
func RentalRules(now func() time.Time) []Rule {
	return []Rule{
		{
			Name:   "rental_date_in_future",
			Reason: ReasonFutureRental,
			Match: func(r schema.StagedRecord) bool {
				ts, ok := r.Values.Time("rental_date")
				return ok && ts.After(now())
			},
		},
		{
			Name:   "return_before_rental",
			Reason: ReasonReturnBeforeRental,
			Match: func(r schema.StagedRecord) bool {
				rented, ok := r.Values.Time("rental_date")
				if !ok {
					return false
				}
				returned, ok := r.Values.Time("return_date")
				return ok && returned.Before(rented)
			},
		},
	}
}

// PaymentRules правила для stg_payment
func PaymentRules(rules config.BusinessRules, now func() time.Time) []Rule {
	return []Rule{
		{
			Name:   "negative_amount",
			Reason: ReasonNegativeAmount,
			Match: func(r schema.StagedRecord) bool {
				amount, ok := r.Values.Decimal("amount")
				return ok && amount.IsNegative()
			},
		},
		{
			Name:   "amount_over_ceiling",
			Reason: ReasonAmountOverCeiling,
			Match: func(r schema.StagedRecord) bool {
				amount, ok := r.Values.Decimal("amount")
				return ok && amount.GreaterThan(rules.PaymentCeiling)
			},
		},
		{
			Name:   "payment_date_in_future",
			Reason: ReasonFuturePayment,
			Match: func(r schema.StagedRecord) bool {
				ts, ok := r.Values.Time("payment_date")
				return ok && ts.After(now())
			},
		},
	}
}

// FilmRules правила для stg_film
func FilmRules(rules config.BusinessRules) []Rule {
	return []Rule{
		{
			Name:   "negative_rental_rate",
			Reason: ReasonNegativeRate,
			Match: func(r schema.StagedRecord) bool {
				rate, ok := r.Values.Decimal("rental_rate")
				return ok && rate.LessThan(rules.FilmMinRate)
			},
		},
		{
			Name:   "rental_rate_over_max",
			Reason: ReasonRateOverMax,
			Match: func(r schema.StagedRecord) bool {
				rate, ok := r.Values.Decimal("rental_rate")
				return ok && rate.GreaterThan(rules.FilmMaxRate)
			},
		},
		{
			Name:   "length_out_of_range",
			Reason: ReasonLengthOutOfRange,
			Match: func(r schema.StagedRecord) bool {
				length, ok := r.Values.Int("length")
				return ok && (length < int64(rules.FilmMinLength) || length > int64(rules.FilmMaxLength))
			},
		},
	}
}
