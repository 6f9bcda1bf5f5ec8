package factsync_test

import (
	"time"

	"github.com/RxDataLab/go-factsync"
	"github.com/shopspring/decimal"
)

func day(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, ok := factsync.ParseDate(s)
	if !ok {
		panic("bad test date " + s)
	}
	return t
}

func num(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

// fact builds a 10-K USD fact; filed is the filing date (YYYY-MM-DD or "")
func fact(entity, item string, fy int, period, filed, value string) factsync.Fact {
	return factsync.Fact{
		EntityID:    entity,
		RegistryID:  "0000000001",
		Item:        item,
		DisplayName: item,
		Value:       num(value),
		FiscalYear:  factsync.KnownYear(fy),
		PeriodType:  period,
		FilingDate:  day(filed),
		Form:        "10-K",
		Unit:        "USD",
	}
}
