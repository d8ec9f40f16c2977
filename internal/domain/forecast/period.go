package forecast

import (
	"fmt"
	"sort"
	"time"
)

// Period is a calendar month
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the month containing t
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParsePeriod parses a YYYY-MM period key
func ParsePeriod(key string) (Period, error) {
	t, err := time.Parse("2006-01", key)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: %w", key, err)
	}
	return PeriodOf(t), nil
}

// Number returns the period as YYYYMM, e.g. 202407
func (p Period) Number() int {
	return p.Year*100 + int(p.Month)
}

// Prev returns the preceding month
func (p Period) Prev() Period {
	if p.Month == time.January {
		return Period{Year: p.Year - 1, Month: time.December}
	}
	return Period{Year: p.Year, Month: p.Month - 1}
}

// Start returns the first instant of the period in UTC
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Before reports whether p is strictly earlier than o
func (p Period) Before(o Period) bool {
	return p.Number() < o.Number()
}

// String returns the YYYY-MM key
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// PeriodAggregate is the total quantity of one product in one period
type PeriodAggregate struct {
	Period   Period
	Quantity float64
}

// LagWindow is how many trailing periods feed the rolling mean
const LagWindow = 3

// LagFeatures are the history-derived features of the lag schema
type LagFeatures struct {
	PreviousPeriodTotal float64 `json:"previous_period_total"`
	RollingMean3        float64 `json:"rolling_mean_3"`
}

// DeriveLag computes the lag features for ref from a product's history.
//
// Only periods strictly before ref are considered. PreviousPeriodTotal is the
// quantity recorded for ref.Prev(). RollingMean3 is the mean of the quantities
// of up to LagWindow most recent periods that have records. Missing history
// yields zero for either feature. history need not be sorted.
func DeriveLag(history []PeriodAggregate, ref Period) LagFeatures {
	prev := ref.Prev()

	eligible := make([]PeriodAggregate, 0, len(history))
	for _, h := range history {
		if h.Period.Before(ref) {
			eligible = append(eligible, h)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[j].Period.Before(eligible[i].Period)
	})

	var out LagFeatures
	for _, h := range eligible {
		if h.Period == prev {
			out.PreviousPeriodTotal += h.Quantity
		}
	}

	n := len(eligible)
	if n > LagWindow {
		n = LagWindow
	}
	if n > 0 {
		var sum float64
		for _, h := range eligible[:n] {
			sum += h.Quantity
		}
		out.RollingMean3 = sum / float64(n)
	}
	return out
}
