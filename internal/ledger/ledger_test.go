package ledger

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewSizesDaysToMonth(t *testing.T) {
	cases := []struct {
		year  int
		month time.Month
		want  int
	}{
		{2026, time.January, 31},
		{2026, time.February, 28},
		{2024, time.February, 29},
		{2026, time.April, 30},
	}
	for _, c := range cases {
		l := New(c.year, c.month)
		if len(l.Days) != c.want {
			t.Errorf("New(%d, %s): got %d days, want %d", c.year, c.month, len(l.Days), c.want)
		}
	}
}

func TestTotalSumsAllDays(t *testing.T) {
	l := New(2026, time.March)
	if l.Total() != 0 {
		t.Fatalf("empty ledger total = %v, want 0", l.Total())
	}
	if err := l.Add(1, 10.5); err != nil {
		t.Fatal(err)
	}
	if err := l.Add(15, 4.5); err != nil {
		t.Fatal(err)
	}
	if err := l.Add(15, 5); err != nil {
		t.Fatal(err)
	}
	if got := l.Total(); got != 20 {
		t.Errorf("total = %v, want 20", got)
	}
}

func TestAddRejectsOutOfRangeDays(t *testing.T) {
	l := New(2026, time.February)
	if err := l.Add(0, 1); err == nil {
		t.Error("Add(0) should fail")
	}
	if err := l.Add(29, 1); err == nil {
		t.Error("Add(29) should fail for February 2026")
	}
	if err := l.Add(28, 1); err != nil {
		t.Errorf("Add(28) failed: %v", err)
	}
}

func TestStale(t *testing.T) {
	now := time.Date(2026, time.August, 28, 12, 0, 0, 0, time.UTC)

	current := New(2026, time.August)
	if current.Stale(now) {
		t.Error("current-month ledger reported stale")
	}

	lastMonth := New(2026, time.July)
	if !lastMonth.Stale(now) {
		t.Error("previous-month ledger not reported stale")
	}

	// Same month number, previous year.
	lastYear := New(2025, time.August)
	if !lastYear.Stale(now) {
		t.Error("previous-year ledger not reported stale")
	}
}

func TestUnmarshalToleratesSparseDays(t *testing.T) {
	raw := `{"month": 7, "days": {"1": 10, "3": null, "15": 2.5, "40": 99, "x": 1}}`
	var l Ledger
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		t.Fatal(err)
	}
	if l.Month != time.July {
		t.Errorf("month = %v, want July", l.Month)
	}
	if len(l.Days) != 31 {
		t.Fatalf("days len = %d, want 31", len(l.Days))
	}
	if l.Days[0] != 10 || l.Days[14] != 2.5 {
		t.Errorf("days = %v, want day 1 = 10 and day 15 = 2.5", l.Days)
	}
	if got := l.Total(); got != 12.5 {
		t.Errorf("total = %v, want 12.5", got)
	}
}

func TestUnmarshalLegacyFebruaryKeepsLeapDay(t *testing.T) {
	// Rows written before the year was persisted must not lose a day-29
	// entry when read in a non-leap year.
	var l Ledger
	if err := json.Unmarshal([]byte(`{"month": 2, "days": {"29": 5}}`), &l); err != nil {
		t.Fatal(err)
	}
	if len(l.Days) != 29 {
		t.Fatalf("days len = %d, want 29", len(l.Days))
	}
	if got := l.Total(); got != 5 {
		t.Errorf("total = %v, want 5", got)
	}
	if l.Year != 0 {
		t.Errorf("year = %d, want 0 for a legacy row", l.Year)
	}
}

func TestUnmarshalZeroesInvalidMonth(t *testing.T) {
	var l Ledger
	if err := json.Unmarshal([]byte(`{"month": 0, "days": {}}`), &l); err != nil {
		t.Fatal(err)
	}
	if l.Total() != 0 || len(l.Days) != 0 {
		t.Errorf("invalid month should yield a zero ledger, got %+v", l)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	l := New(2026, time.June)
	_ = l.Add(3, 7.25)
	_ = l.Add(30, 1)

	data, err := json.Marshal(l)
	if err != nil {
		t.Fatal(err)
	}
	var back Ledger
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.Month != l.Month || back.Year != l.Year {
		t.Errorf("round trip period = %d-%v, want %d-%v", back.Year, back.Month, l.Year, l.Month)
	}
	if back.Total() != l.Total() {
		t.Errorf("round trip total = %v, want %v", back.Total(), l.Total())
	}
}
