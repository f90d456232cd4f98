package bigcty

import (
	"github.com/golang/geo/s2"
)

// notDXCCSuffix is appended to the entity name of primary prefixes marked
// with '*' (entities that only count for the WAEDC list).
const notDXCCSuffix = " (not DXCC)"

// Record is the resolved data for one prefix or exact callsign.
type Record struct {
	Entity    string  // Entity name, with " (not DXCC)" for WAEDC-only entities
	CQZone    int     // CQ zone
	ITUZone   int     // ITU zone
	Continent string  // Two-letter continent code (e.g., "EU", "NA")
	Latitude  float64 // Degrees, positive north
	Longitude float64 // Degrees, positive west (cty.dat convention)
	UTCOffset float64 // Hours; negation of the raw cty.dat field

	// PrefixLength is the character count of the primary prefix that
	// introduced the entity. Override records keep the primary's value
	// even when their own prefix is longer or shorter.
	PrefixLength  int
	PrimaryPrefix string // Prefix of the entity line this record came from
	ExactMatch    bool   // Must match a full callsign, not a leading substring
}

// LatLng returns the record's position as an s2.LatLng. cty.dat stores
// longitudes positive west, so the sign is flipped to the usual east-positive form.
func (r Record) LatLng() s2.LatLng {
	return s2.LatLngFromDegrees(r.Latitude, -r.Longitude)
}

// apply copies every field present in o onto r. Absent fields are left untouched.
func (r *Record) apply(o Override) {
	if o.CQZone != nil {
		r.CQZone = *o.CQZone
	}
	if o.ITUZone != nil {
		r.ITUZone = *o.ITUZone
	}
	if o.Latitude != nil && o.Longitude != nil {
		r.Latitude = *o.Latitude
		r.Longitude = *o.Longitude
	}
	if o.Continent != nil {
		r.Continent = *o.Continent
	}
	if o.UTCOffset != nil {
		r.UTCOffset = *o.UTCOffset
	}
	r.ExactMatch = o.Exact
}
