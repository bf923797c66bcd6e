package calendar

import "time"

// HolidayRule yields the observed market holiday for a year, if any.
type HolidayRule func(year int) (time.Time, bool)

// USEquityHolidays are the full-day closures of the US equity exchanges.
var USEquityHolidays = []HolidayRule{
	newYearsDay,
	nthWeekdayRule(time.January, time.Monday, 3),  // Martin Luther King Jr. Day
	nthWeekdayRule(time.February, time.Monday, 3), // Presidents' Day
	goodFriday,
	lastWeekdayRule(time.May, time.Monday), // Memorial Day
	juneteenth,
	observedRule(time.July, 4),
	nthWeekdayRule(time.September, time.Monday, 1),   // Labor Day
	nthWeekdayRule(time.November, time.Thursday, 4), // Thanksgiving
	observedRule(time.December, 25),
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// observed moves a Saturday holiday to Friday and a Sunday holiday to Monday.
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

func observedRule(month time.Month, day int) HolidayRule {
	return func(year int) (time.Time, bool) {
		return observed(date(year, month, day)), true
	}
}

// New Year's Day on a Saturday is not made up on the preceding Friday.
func newYearsDay(year int) (time.Time, bool) {
	d := date(year, time.January, 1)
	switch d.Weekday() {
	case time.Saturday:
		return time.Time{}, false
	case time.Sunday:
		return d.AddDate(0, 0, 1), true
	}
	return d, true
}

func juneteenth(year int) (time.Time, bool) {
	if year < 2022 {
		return time.Time{}, false
	}
	return observed(date(year, time.June, 19)), true
}

func nthWeekdayRule(month time.Month, wd time.Weekday, n int) HolidayRule {
	return func(year int) (time.Time, bool) {
		return nthWeekday(year, month, wd, n), true
	}
}

func nthWeekday(year int, month time.Month, wd time.Weekday, n int) time.Time {
	first := date(year, month, 1)
	offset := (int(wd) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+7*(n-1))
}

func lastWeekdayRule(month time.Month, wd time.Weekday) HolidayRule {
	return func(year int) (time.Time, bool) {
		last := date(year, month+1, 0)
		offset := (int(last.Weekday()) - int(wd) + 7) % 7
		return last.AddDate(0, 0, -offset), true
	}
}

func goodFriday(year int) (time.Time, bool) {
	return easterSunday(year).AddDate(0, 0, -2), true
}

// easterSunday uses the anonymous Gregorian algorithm.
func easterSunday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return date(year, time.Month(month), day)
}
