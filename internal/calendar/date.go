// Package calendar provides the simulated calendar: date arithmetic under a
// configurable geometry and the tick clock driving the simulation.
package calendar

import "fmt"

// Date is a simulated calendar date. Month and Day are 1-based.
type Date struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// System defines the calendar geometry. The default world runs 12-day
// months, 8 months to the year, starting at year 4000.
type System struct {
	DaysPerMonth  int
	MonthsPerYear int
	EpochYear     int
}

// Epoch returns the first day of the calendar.
func (s System) Epoch() Date {
	return Date{Year: s.EpochYear, Month: 1, Day: 1}
}

// DaysPerYear returns the length of one simulated year in days.
func (s System) DaysPerYear() int {
	return s.DaysPerMonth * s.MonthsPerYear
}

// ToDays converts a date to a day count since the epoch.
func (s System) ToDays(d Date) int {
	return ((d.Year-s.EpochYear)*s.MonthsPerYear+(d.Month-1))*s.DaysPerMonth + (d.Day - 1)
}

// FromDays converts a day count since the epoch back to a date. Negative
// counts address dates before the epoch, which seeded adults are born in.
func (s System) FromDays(n int) Date {
	day := n % s.DaysPerMonth
	months := n / s.DaysPerMonth
	if day < 0 {
		day += s.DaysPerMonth
		months--
	}
	month := months % s.MonthsPerYear
	year := months / s.MonthsPerYear
	if month < 0 {
		month += s.MonthsPerYear
		year--
	}
	return Date{Year: s.EpochYear + year, Month: month + 1, Day: day + 1}
}

// AddDays returns the date n days after d. n may be negative.
func (s System) AddDays(d Date, n int) Date {
	return s.FromDays(s.ToDays(d) + n)
}

// AddMonths returns the date n months after d, preserving the day of month.
func (s System) AddMonths(d Date, n int) Date {
	return s.AddDays(d, n*s.DaysPerMonth)
}

// YearsBetween returns full simulated years elapsed from `from` to `to`.
// This is how ages are computed: a person born on `from` is YearsBetween
// years old on `to`.
func (s System) YearsBetween(from, to Date) int {
	days := s.ToDays(to) - s.ToDays(from)
	if days < 0 {
		return 0
	}
	return days / s.DaysPerYear()
}

// Validate rejects an out-of-geometry date.
func (s System) Validate(d Date) error {
	if d.Month < 1 || d.Month > s.MonthsPerYear {
		return fmt.Errorf("month %d out of range [1,%d]", d.Month, s.MonthsPerYear)
	}
	if d.Day < 1 || d.Day > s.DaysPerMonth {
		return fmt.Errorf("day %d out of range [1,%d]", d.Day, s.DaysPerMonth)
	}
	return nil
}
