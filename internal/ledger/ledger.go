package ledger

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Ledger is a tank's per-day usage record for one billing month. Days is
// always sized to the number of days in that month, so a day entry can never
// be missing or out of range once the ledger is constructed.
type Ledger struct {
	Year  int
	Month time.Month
	Days  []float64
}

// New returns a zeroed ledger covering every day of the given month.
func New(year int, month time.Month) Ledger {
	return Ledger{
		Year:  year,
		Month: month,
		Days:  make([]float64, DaysIn(year, month)),
	}
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Total sums all recorded daily usage. An empty or all-zero ledger totals 0.
func (l Ledger) Total() float64 {
	var sum float64
	for _, v := range l.Days {
		sum += v
	}
	return sum
}

// Add records liters against a day of the month (1-based). Out-of-range days
// are rejected rather than silently dropped.
func (l *Ledger) Add(day int, liters float64) error {
	if day < 1 || day > len(l.Days) {
		return fmt.Errorf("ledger: day %d out of range for %s %d", day, l.Month, l.Year)
	}
	l.Days[day-1] += liters
	return nil
}

// Stale reports whether the ledger belongs to an earlier billing period than
// now, i.e. it must be reconciled and reset.
func (l Ledger) Stale(now time.Time) bool {
	return l.Month != now.Month() || (l.Year != 0 && l.Year != now.Year())
}

// The persisted layout keeps the legacy shape: a month number and a "days"
// object keyed by numeric day strings ("1".."31"). Missing, null or extra
// keys on the way in are tolerated; missing means zero.

type ledgerJSON struct {
	Year  int                 `json:"year,omitempty"`
	Month int                 `json:"month"`
	Days  map[string]*float64 `json:"days"`
}

func (l Ledger) MarshalJSON() ([]byte, error) {
	days := make(map[string]*float64, len(l.Days))
	for i := range l.Days {
		v := l.Days[i]
		days[strconv.Itoa(i+1)] = &v
	}
	return json.Marshal(ledgerJSON{Year: l.Year, Month: int(l.Month), Days: days})
}

func (l *Ledger) UnmarshalJSON(data []byte) error {
	var raw ledgerJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Month < 1 || raw.Month > 12 {
		*l = Ledger{}
		return nil
	}
	year := raw.Year
	if year == 0 {
		// Legacy rows carry no year. Size for a leap year so a stored
		// February day-29 entry is never dropped.
		year = 2000
	}
	out := New(year, time.Month(raw.Month))
	out.Year = raw.Year
	for k, v := range raw.Days {
		if v == nil {
			continue
		}
		day, err := strconv.Atoi(k)
		if err != nil || day < 1 || day > len(out.Days) {
			continue
		}
		out.Days[day-1] = *v
	}
	*l = out
	return nil
}
