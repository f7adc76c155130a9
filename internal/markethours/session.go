// Package markethours maps bar timestamps onto an exchange's session calendar.
//
// A trade date is the calendar date a bar is accounted to. For futures-style
// sessions that open in the evening, bars after the daily roll time belong to
// the next trading day, and a trade date never lands on a weekend.
package markethours

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Session is an exchange session calendar.
type Session struct {
	Location   *time.Location
	RollHour   int // local hour at which the next trade date starts (0 = midnight)
	RollMinute int
}

// NewSession builds a Session from an IANA zone name and an "HH:MM" roll time.
// An empty roll means the trade date is the plain calendar date.
func NewSession(tz, roll string) (Session, error) {
	loc := time.UTC
	if tz != "" {
		var err error
		if tz == "IST" {
			loc = IST
		} else if loc, err = time.LoadLocation(tz); err != nil {
			return Session{}, fmt.Errorf("load location %q: %w", tz, err)
		}
	}

	s := Session{Location: loc}
	if roll == "" {
		return s, nil
	}
	hh, mm, ok := strings.Cut(roll, ":")
	if !ok {
		return Session{}, fmt.Errorf("invalid session roll %q: want HH:MM", roll)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return Session{}, fmt.Errorf("invalid session roll hour %q", hh)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return Session{}, fmt.Errorf("invalid session roll minute %q", mm)
	}
	s.RollHour, s.RollMinute = h, m
	return s, nil
}

// UTCSession is a midnight-rolling calendar in UTC.
func UTCSession() Session {
	return Session{Location: time.UTC}
}

// Local converts t into the session's location.
func (s Session) Local(t time.Time) time.Time {
	if s.Location == nil {
		return t.UTC()
	}
	return t.In(s.Location)
}

// TradeDate returns the trade date of t as YYYYMMDD.
func (s Session) TradeDate(t time.Time) int {
	local := s.Local(t)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())

	if s.RollHour == 0 && s.RollMinute == 0 {
		return DateKey(day)
	}
	if local.Hour()*60+local.Minute() >= s.RollHour*60+s.RollMinute {
		day = day.AddDate(0, 0, 1)
	}
	switch day.Weekday() {
	case time.Saturday:
		day = day.AddDate(0, 0, 2)
	case time.Sunday:
		day = day.AddDate(0, 0, 1)
	}
	return DateKey(day)
}

// DateKey encodes the calendar date of t as YYYYMMDD.
func DateKey(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// IsWeekend returns true if t falls on Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// LastDayOfMonth returns midnight of the last calendar day of t's month,
// in t's location.
func LastDayOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location())
}
