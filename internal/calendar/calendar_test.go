package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
)

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func TestCalendar_StateAt(t *testing.T) {
	cal := Default()
	ny := newYork(t)
	at := func(y int, m time.Month, d, hh, mm, ss int) time.Time {
		return time.Date(y, m, d, hh, mm, ss, 0, ny)
	}

	testCases := []struct {
		name string
		ts   time.Time
		want domain.SessionState
	}{
		{"christmas mid-session", at(2024, 12, 25, 11, 0, 0), domain.SessionClosed},
		{"before pre-market", at(2024, 12, 24, 3, 59, 59), domain.SessionClosed},
		{"pre-market open", at(2024, 12, 24, 4, 0, 0), domain.SessionPreMarket},
		{"one second before open", at(2024, 12, 24, 9, 29, 59), domain.SessionPreMarket},
		{"regular open", at(2024, 12, 24, 9, 30, 0), domain.SessionTrading},
		{"close instant inclusive", at(2024, 12, 24, 16, 0, 0), domain.SessionTrading},
		{"one second after close", at(2024, 12, 24, 16, 0, 1), domain.SessionPostMarket},
		{"post-market end", at(2024, 12, 24, 20, 0, 0), domain.SessionClosed},
		{"saturday", at(2024, 12, 21, 11, 0, 0), domain.SessionClosed},
		{"sunday", at(2024, 12, 22, 11, 0, 0), domain.SessionClosed},
		{"after DST switch", at(2024, 3, 11, 9, 30, 0), domain.SessionTrading},
		{"utc input converted", time.Date(2024, 12, 24, 15, 0, 0, 0, time.UTC), domain.SessionTrading},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := cal.StateAt(tc.ts)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCalendar_ZeroTimestamp(t *testing.T) {
	cal := Default()
	_, err := cal.StateAt(time.Time{})
	assert.ErrorIs(t, err, ports.ErrInvalidInput)
	_, err = cal.NextOpen(time.Time{})
	assert.ErrorIs(t, err, ports.ErrInvalidInput)
	_, err = cal.NextClose(time.Time{})
	assert.ErrorIs(t, err, ports.ErrInvalidInput)
}

func TestCalendar_Holidays(t *testing.T) {
	cal := Default()
	ny := newYork(t)
	closed := []time.Time{
		time.Date(2024, 1, 1, 12, 0, 0, 0, ny),
		time.Date(2024, 1, 15, 12, 0, 0, 0, ny),  // MLK
		time.Date(2024, 2, 19, 12, 0, 0, 0, ny),  // Presidents
		time.Date(2024, 3, 29, 12, 0, 0, 0, ny),  // Good Friday
		time.Date(2025, 4, 18, 12, 0, 0, 0, ny),  // Good Friday
		time.Date(2024, 5, 27, 12, 0, 0, 0, ny),  // Memorial
		time.Date(2024, 6, 19, 12, 0, 0, 0, ny),  // Juneteenth
		time.Date(2022, 6, 20, 12, 0, 0, 0, ny),  // Juneteenth observed Monday
		time.Date(2024, 7, 4, 12, 0, 0, 0, ny),   // Independence
		time.Date(2026, 7, 3, 12, 0, 0, 0, ny),   // Independence observed Friday
		time.Date(2024, 9, 2, 12, 0, 0, 0, ny),   // Labor
		time.Date(2024, 11, 28, 12, 0, 0, 0, ny), // Thanksgiving
		time.Date(2022, 12, 26, 12, 0, 0, 0, ny), // Christmas observed Monday
	}
	for _, d := range closed {
		assert.False(t, cal.IsTradingDay(d), d.Format("2006-01-02"))
	}

	open := []time.Time{
		time.Date(2021, 12, 31, 12, 0, 0, 0, ny), // New Year on Saturday is not observed
		time.Date(2021, 6, 18, 12, 0, 0, 0, ny),  // before Juneteenth was added
		time.Date(2024, 12, 24, 12, 0, 0, 0, ny),
	}
	for _, d := range open {
		assert.True(t, cal.IsTradingDay(d), d.Format("2006-01-02"))
	}

	hs := cal.Holidays(2024)
	require.Len(t, hs, 10)
	assert.Equal(t, "2024-01-01", hs[0].Format("2006-01-02"))
	assert.Equal(t, "2024-12-25", hs[9].Format("2006-01-02"))
}

func TestCalendar_NextOpenClose(t *testing.T) {
	cal := Default()
	ny := newYork(t)

	got, err := cal.NextOpen(time.Date(2024, 12, 20, 17, 0, 0, 0, ny))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 23, 9, 30, 0, 0, ny), got)

	got, err = cal.NextOpen(time.Date(2024, 12, 24, 17, 0, 0, 0, ny))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 26, 9, 30, 0, 0, ny), got, "christmas skipped")

	got, err = cal.NextOpen(time.Date(2024, 12, 24, 9, 30, 0, 0, ny))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 26, 9, 30, 0, 0, ny), got, "strictly after")

	got, err = cal.NextClose(time.Date(2024, 12, 24, 10, 0, 0, 0, ny))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 24, 16, 0, 0, 0, ny), got)
}

func TestNew_Config(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExtraHolidays = []string{"2024-12-24"}
	cal, err := New(cfg)
	require.NoError(t, err)
	assert.False(t, cal.IsTradingDay(time.Date(2024, 12, 24, 12, 0, 0, 0, cal.Location())))

	bad := DefaultConfig()
	bad.RegularOpen = "17:00"
	_, err = New(bad)
	assert.ErrorIs(t, err, ports.ErrConfiguration)

	bad = DefaultConfig()
	bad.Timezone = "Mars/Olympus"
	_, err = New(bad)
	assert.ErrorIs(t, err, ports.ErrConfiguration)

	bad = DefaultConfig()
	bad.ExtraHolidays = []string{"24/12/2024"}
	_, err = New(bad)
	assert.ErrorIs(t, err, ports.ErrConfiguration)
}

func TestParseClock(t *testing.T) {
	d, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, 9*time.Hour+30*time.Minute, d)
	d, err = ParseClock("16:00:30")
	require.NoError(t, err)
	assert.Equal(t, 16*time.Hour+30*time.Second, d)
	_, err = ParseClock("9.30")
	assert.Error(t, err)
}
