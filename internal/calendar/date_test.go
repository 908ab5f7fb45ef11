package calendar

import "testing"

func testSystem() System {
	return System{DaysPerMonth: 12, MonthsPerYear: 8, EpochYear: 4000}
}

func TestToDaysFromDaysRoundTrip(t *testing.T) {
	sys := testSystem()
	for n := -2000; n < 2000; n++ {
		d := sys.FromDays(n)
		if got := sys.ToDays(d); got != n {
			t.Fatalf("round trip %d: got %d via %v", n, got, d)
		}
		if err := sys.Validate(d); err != nil {
			t.Fatalf("FromDays(%d) = %v: %v", n, d, err)
		}
	}
}

func TestFromDaysBeforeEpoch(t *testing.T) {
	sys := testSystem()
	d := sys.FromDays(-1)
	want := Date{Year: 3999, Month: 8, Day: 12}
	if d != want {
		t.Fatalf("expected %v, got %v", want, d)
	}
}

func TestAddDaysWrapsMonthAndYear(t *testing.T) {
	sys := testSystem()
	tests := []struct {
		name string
		from Date
		n    int
		want Date
	}{
		{"same month", Date{4000, 1, 1}, 5, Date{4000, 1, 6}},
		{"month wrap", Date{4000, 1, 12}, 1, Date{4000, 2, 1}},
		{"year wrap", Date{4000, 8, 12}, 1, Date{4001, 1, 1}},
		{"backwards", Date{4001, 1, 1}, -1, Date{4000, 8, 12}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sys.AddDays(tt.from, tt.n); got != tt.want {
				t.Fatalf("AddDays(%v, %d) = %v, want %v", tt.from, tt.n, got, tt.want)
			}
		})
	}
}

func TestAddMonthsPreservesDay(t *testing.T) {
	sys := testSystem()
	got := sys.AddMonths(Date{4000, 3, 7}, 9)
	want := Date{4001, 4, 7}
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestYearsBetween(t *testing.T) {
	sys := testSystem()
	born := Date{4000, 1, 1}
	tests := []struct {
		name string
		on   Date
		want int
	}{
		{"same day", born, 0},
		{"day before birthday", Date{4000, 8, 12}, 0},
		{"first birthday", Date{4001, 1, 1}, 1},
		{"mid life", Date{4057, 4, 3}, 57},
		{"before born", Date{3999, 1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sys.YearsBetween(born, tt.on); got != tt.want {
				t.Fatalf("YearsBetween(%v, %v) = %d, want %d", born, tt.on, got, tt.want)
			}
		})
	}
}

func TestBefore(t *testing.T) {
	a := Date{4000, 2, 5}
	if !a.Before(Date{4000, 2, 6}) || !a.Before(Date{4000, 3, 1}) || !a.Before(Date{4001, 1, 1}) {
		t.Fatal("expected earlier date to sort before later")
	}
	if a.Before(a) {
		t.Fatal("a date is not before itself")
	}
}

func TestValidateRejectsOutOfGeometry(t *testing.T) {
	sys := testSystem()
	for _, d := range []Date{{4000, 0, 1}, {4000, 9, 1}, {4000, 1, 0}, {4000, 1, 13}} {
		if err := sys.Validate(d); err == nil {
			t.Fatalf("expected %v to be rejected", d)
		}
	}
}
