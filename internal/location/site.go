package location

import (
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
)

// Schedule keywords provided by a Site.
const (
	KeywordSunrise = "sunrise"
	KeywordSunset  = "sunset"
)

// officialZenith is 90°50': the sun's centre below the horizon by its
// apparent radius plus atmospheric refraction.
const officialZenith = 90.833

// Site is the node's position on Earth and its local time zone.
type Site struct {
	Latitude  float64
	Longitude float64
	Location  *time.Location
}

// NewSite builds a Site from configuration. An empty timezone selects the
// host's local zone.
func NewSite(cfg config.SiteConfig) (Site, error) {
	lat, lng := cfg.Location.Latitude, cfg.Location.Longitude
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return Site{}, fmt.Errorf("%w: latitude %v, longitude %v", ErrInvalidCoordinates, lat, lng)
	}
	loc, err := LoadTimezone(cfg.Timezone)
	if err != nil {
		return Site{}, err
	}
	return Site{Latitude: lat, Longitude: lng, Location: loc}, nil
}

// LoadTimezone loads an IANA zone by name. An empty name returns time.Local.
func LoadTimezone(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrUnknownTimezone, name, err)
	}
	return loc, nil
}

func (s Site) location() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

// SunTimes returns sunrise and sunset on the local calendar date of date,
// truncated to the minute.
func (s Site) SunTimes(date time.Time) (sunrise, sunset time.Time, err error) {
	sunrise, err = s.sunEvent(date, true)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	sunset, err = s.sunEvent(date, false)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return sunrise, sunset, nil
}

// Keywords renders SunTimes as HH:MM values keyed by KeywordSunrise and
// KeywordSunset.
func (s Site) Keywords(date time.Time) (map[string]string, error) {
	rise, set, err := s.SunTimes(date)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		KeywordSunrise: rise.Format("15:04"),
		KeywordSunset:  set.Format("15:04"),
	}, nil
}

func (s Site) sunEvent(date time.Time, rising bool) (time.Time, error) {
	loc := s.location()
	local := date.In(loc)
	y, m, d := local.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)

	hours, err := utcHours(s.Latitude, s.Longitude, day.YearDay(), rising)
	if err != nil {
		return time.Time{}, err
	}

	at := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).
		Add(time.Duration(hours * float64(time.Hour))).
		In(loc)

	// Far from the zone's meridian the UTC result can land on the
	// neighbouring local day.
	switch ly, lm, ld := at.Date(); {
	case time.Date(ly, lm, ld, 0, 0, 0, 0, loc).After(day):
		at = at.AddDate(0, 0, -1)
	case time.Date(ly, lm, ld, 0, 0, 0, 0, loc).Before(day):
		at = at.AddDate(0, 0, 1)
	}
	return at.Truncate(time.Minute), nil
}

// utcHours is the NOAA almanac sunrise/sunset approximation. It returns the
// event time in hours after UTC midnight.
func utcHours(lat, lng float64, yearDay int, rising bool) (float64, error) {
	lngHour := lng / 15
	base := 18.0
	if rising {
		base = 6
	}
	t := float64(yearDay) + (base-lngHour)/24

	meanAnomaly := 0.9856*t - 3.289
	trueLng := normalize(meanAnomaly+1.916*sinDeg(meanAnomaly)+0.020*sinDeg(2*meanAnomaly)+282.634, 360)

	ra := normalize(degrees(math.Atan(0.91764*tanDeg(trueLng))), 360)
	ra += math.Floor(trueLng/90)*90 - math.Floor(ra/90)*90
	ra /= 15

	sinDec := 0.39782 * sinDeg(trueLng)
	cosDec := math.Cos(math.Asin(sinDec))
	cosH := (cosDeg(officialZenith) - sinDec*sinDeg(lat)) / (cosDec * cosDeg(lat))
	switch {
	case cosH > 1:
		return 0, ErrSunNeverRises
	case cosH < -1:
		return 0, ErrSunNeverSets
	}

	h := degrees(math.Acos(cosH))
	if rising {
		h = 360 - h
	}
	local := h/15 + ra - 0.06571*t - 6.622
	return normalize(local-lngHour, 24), nil
}

func normalize(v, period float64) float64 {
	v = math.Mod(v, period)
	if v < 0 {
		v += period
	}
	return v
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }
func sinDeg(deg float64) float64  { return math.Sin(radians(deg)) }
func cosDeg(deg float64) float64  { return math.Cos(radians(deg)) }
func tanDeg(deg float64) float64  { return math.Tan(radians(deg)) }
