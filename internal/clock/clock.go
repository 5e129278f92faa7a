package clock

import "time"

// Clock supplies timestamps. Services take one so tests can pin time.
type Clock interface {
	Now() time.Time
}

// System is the wall clock, reported in Location.
type System struct {
	Location *time.Location
}

func (c System) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

// Fixed always returns T.
type Fixed struct {
	T time.Time
}

func (c Fixed) Now() time.Time { return c.T }

// LocationOf is the zone c reports time in. Business dates, expiries and
// settlement months are cut in it.
func LocationOf(c Clock) *time.Location { return c.Now().Location() }

// KST is the default business timezone.
var KST = LoadLocation("Asia/Seoul")

// LoadLocation falls back to a fixed +09:00 zone when tzdata is missing
// (scratch images ship without it).
func LoadLocation(name string) *time.Location {
	if name == "" {
		name = "Asia/Seoul"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

// StartOfDay truncates t to midnight in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
