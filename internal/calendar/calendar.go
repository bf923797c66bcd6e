package calendar

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
)

// searchHorizonDays bounds NextOpen/NextClose scans.
const searchHorizonDays = 370

// Config describes a market's sessions. Clock values use "HH:MM" in the
// market's time zone.
type Config struct {
	Timezone        string
	PreMarketOpen   string
	RegularOpen     string
	RegularClose    string
	PostMarketClose string
	ExtraHolidays   []string      // "2006-01-02"
	Rules           []HolidayRule // nil means USEquityHolidays
}

// DefaultConfig returns the US equities session layout.
func DefaultConfig() Config {
	return Config{
		Timezone:        "America/New_York",
		PreMarketOpen:   "04:00",
		RegularOpen:     "09:30",
		RegularClose:    "16:00",
		PostMarketClose: "20:00",
	}
}

// Calendar answers session questions for one market. It is immutable and safe
// for concurrent use.
type Calendar struct {
	loc       *time.Location
	preOpen   time.Duration
	open      time.Duration
	regClose  time.Duration
	postClose time.Duration
	rules     []HolidayRule
	extra     map[string]struct{}
}

// New validates cfg and builds a Calendar.
func New(cfg Config) (*Calendar, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ports.ErrConfiguration, cfg.Timezone, err)
	}
	var errs []string
	clock := func(name, v string) time.Duration {
		d, err := ParseClock(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
		}
		return d
	}
	c := &Calendar{
		loc:       loc,
		preOpen:   clock("pre_market_open", cfg.PreMarketOpen),
		open:      clock("regular_open", cfg.RegularOpen),
		regClose:  clock("regular_close", cfg.RegularClose),
		postClose: clock("post_market_close", cfg.PostMarketClose),
		rules:     cfg.Rules,
		extra:     make(map[string]struct{}, len(cfg.ExtraHolidays)),
	}
	if len(errs) == 0 && !(c.preOpen <= c.open && c.open < c.regClose && c.regClose <= c.postClose) {
		errs = append(errs, "sessions must satisfy pre_market_open <= regular_open < regular_close <= post_market_close")
	}
	for _, h := range cfg.ExtraHolidays {
		d, err := time.Parse("2006-01-02", strings.TrimSpace(h))
		if err != nil {
			errs = append(errs, fmt.Sprintf("extra holiday %q: %v", h, err))
			continue
		}
		c.extra[dayKey(d)] = struct{}{}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: calendar: %s", ports.ErrConfiguration, strings.Join(errs, "; "))
	}
	if c.rules == nil {
		c.rules = USEquityHolidays
	}
	return c, nil
}

// Default returns the US equities calendar.
func Default() *Calendar {
	c, err := New(DefaultConfig())
	if err != nil {
		panic(err) // tzdata missing
	}
	return c
}

// ParseClock parses "HH:MM" or "HH:MM:SS" into an offset from midnight.
func ParseClock(v string) (time.Duration, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, v); err == nil {
			return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("invalid clock value %q", v)
}

// Location returns the market time zone.
func (c *Calendar) Location() *time.Location { return c.loc }

// IsTradingDay reports whether the market date containing d has a regular session.
func (c *Calendar) IsTradingDay(d time.Time) bool {
	local := d.In(c.loc)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !c.isHoliday(local)
}

func (c *Calendar) isHoliday(local time.Time) bool {
	key := dayKey(local)
	if _, ok := c.extra[key]; ok {
		return true
	}
	for _, rule := range c.rules {
		if h, ok := rule(local.Year()); ok && dayKey(h) == key {
			return true
		}
	}
	return false
}

// Holidays lists the rule-based and configured closures in year, sorted.
func (c *Calendar) Holidays(year int) []time.Time {
	seen := make(map[string]struct{})
	var out []time.Time
	add := func(d time.Time) {
		k := dayKey(d)
		if _, dup := seen[k]; dup || d.Year() != year {
			return
		}
		seen[k] = struct{}{}
		out = append(out, date(d.Year(), d.Month(), d.Day()))
	}
	for _, rule := range c.rules {
		if h, ok := rule(year); ok {
			add(h)
		}
	}
	for k := range c.extra {
		d, _ := time.Parse("2006-01-02", k)
		add(d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// StateAt classifies ts. The regular close instant itself is TRADING.
func (c *Calendar) StateAt(ts time.Time) (domain.SessionState, error) {
	if ts.IsZero() {
		return domain.SessionClosed, fmt.Errorf("%w: zero timestamp", ports.ErrInvalidInput)
	}
	local := ts.In(c.loc)
	if !c.IsTradingDay(local) {
		return domain.SessionClosed, nil
	}
	off := sinceMidnight(local)
	switch {
	case off >= c.preOpen && off < c.open:
		return domain.SessionPreMarket, nil
	case off >= c.open && off <= c.regClose:
		return domain.SessionTrading, nil
	case off > c.regClose && off < c.postClose:
		return domain.SessionPostMarket, nil
	}
	return domain.SessionClosed, nil
}

// SessionBounds returns the regular open and close instants of the market
// date containing d. ok is false on non-trading days.
func (c *Calendar) SessionBounds(d time.Time) (openAt, closeAt time.Time, ok bool) {
	local := d.In(c.loc)
	if !c.IsTradingDay(local) {
		return time.Time{}, time.Time{}, false
	}
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	return atOffset(midnight, c.open), atOffset(midnight, c.regClose), true
}

// NextOpen returns the first regular open strictly after the given instant.
func (c *Calendar) NextOpen(after time.Time) (time.Time, error) {
	return c.next(after, func(openAt, _ time.Time) time.Time { return openAt })
}

// NextClose returns the first regular close strictly after the given instant.
func (c *Calendar) NextClose(after time.Time) (time.Time, error) {
	return c.next(after, func(_, closeAt time.Time) time.Time { return closeAt })
}

func (c *Calendar) next(after time.Time, pick func(openAt, closeAt time.Time) time.Time) (time.Time, error) {
	if after.IsZero() {
		return time.Time{}, fmt.Errorf("%w: zero timestamp", ports.ErrInvalidInput)
	}
	local := after.In(c.loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 12, 0, 0, 0, c.loc)
	for i := 0; i < searchHorizonDays; i++ {
		if openAt, closeAt, ok := c.SessionBounds(day.AddDate(0, 0, i)); ok {
			if t := pick(openAt, closeAt); t.After(after) {
				return t, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("%w: no session within %d days of %s", ports.ErrNotFound, searchHorizonDays, after)
}

// sinceMidnight measures wall-clock time so DST transitions do not shift sessions.
func sinceMidnight(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second + time.Duration(t.Nanosecond())
}

func atOffset(midnight time.Time, off time.Duration) time.Time {
	h := int(off / time.Hour)
	m := int(off % time.Hour / time.Minute)
	s := int(off % time.Minute / time.Second)
	return time.Date(midnight.Year(), midnight.Month(), midnight.Day(), h, m, s, 0, midnight.Location())
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
