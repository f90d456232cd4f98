package bigcty

import (
	"regexp"
	"strconv"
	"strings"
)

// overrideRegex matches one alias token from a continuation line:
//
//	=PREFIX(cq)[itu]<lat/long>{continent}~tz~
//
// Only the prefix is mandatory; the bracketed groups are optional but, when
// present, always appear in this order.
var overrideRegex = regexp.MustCompile(`^(?P<exact>=)?` +
	`(?P<prefix>[A-Za-z0-9/]+)` +
	`(?:\((?P<cq>\d+)\))?` +
	`(?:\[(?P<itu>\d+)\])?` +
	`(?:<(?P<lat>[+-]?\d+(?:\.\d+)?)/(?P<long>[+-]?\d+(?:\.\d+)?)>)?` +
	`(?:\{(?P<continent>\w+)\})?` +
	`(?:~(?P<tz>[+-]?\d+(?:\.\d+)?)~)?`)

var (
	overrideExactIdx     = overrideRegex.SubexpIndex("exact")
	overridePrefixIdx    = overrideRegex.SubexpIndex("prefix")
	overrideCQIdx        = overrideRegex.SubexpIndex("cq")
	overrideITUIdx       = overrideRegex.SubexpIndex("itu")
	overrideLatIdx       = overrideRegex.SubexpIndex("lat")
	overrideLongIdx      = overrideRegex.SubexpIndex("long")
	overrideContinentIdx = overrideRegex.SubexpIndex("continent")
	overrideTZIdx        = overrideRegex.SubexpIndex("tz")
)

// Override is the parsed form of one alias token. Nil fields were absent
// from the token and leave the parent entity's value in place.
type Override struct {
	Prefix    string
	Exact     bool // token started with '='
	CQZone    *int
	ITUZone   *int
	Latitude  *float64 // set together with Longitude
	Longitude *float64
	Continent *string
	UTCOffset *float64 // already negated, like Record.UTCOffset
}

// MatchOverride parses a single alias token such as "=II0GDF/9" or
// "AA0(4)[7]". It reports false when the token has no usable prefix;
// callers skip such tokens.
func MatchOverride(token string) (Override, bool) {
	m := overrideRegex.FindStringSubmatch(strings.TrimSpace(token))
	if m == nil {
		return Override{}, false
	}

	o := Override{
		Prefix: m[overridePrefixIdx],
		Exact:  m[overrideExactIdx] != "",
	}

	if s := m[overrideCQIdx]; s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return Override{}, false
		}
		o.CQZone = &n
	}
	if s := m[overrideITUIdx]; s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return Override{}, false
		}
		o.ITUZone = &n
	}
	if m[overrideLatIdx] != "" {
		lat, errLat := strconv.ParseFloat(m[overrideLatIdx], 64)
		long, errLong := strconv.ParseFloat(m[overrideLongIdx], 64)
		if errLat != nil || errLong != nil {
			return Override{}, false
		}
		o.Latitude, o.Longitude = &lat, &long
	}
	if s := m[overrideContinentIdx]; s != "" {
		o.Continent = &s
	}
	if s := m[overrideTZIdx]; s != "" {
		tz, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Override{}, false
		}
		tz = -tz
		o.UTCOffset = &tz
	}
	return o, true
}
