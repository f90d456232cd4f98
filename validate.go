package bigcty

import (
	"errors"
	"fmt"
)

// minEntryCount is the smallest plausible number of prefixes in a real
// BigCTY release. Current releases carry well over 20K prefixes and exact calls.
const minEntryCount = 1000

// validationPrefix defines a well-known primary prefix for functional validation.
type validationPrefix struct {
	prefix     string
	wantEntity string
	wantCont   string
}

// knownPrefixes have been stable across BigCTY releases for decades.
var knownPrefixes = []validationPrefix{
	{"K", "United States", "NA"},
	{"DL", "Fed. Rep. of Germany", "EU"},
	{"JA", "Japan", "AS"},
	{"VK", "Australia", "OC"},
	{"G", "England", "EU"},
	{"PY", "Brazil", "SA"},
	{"ZS", "South Africa", "AF"},
}

// Validate performs integrity checks on a store loaded from a full release.
// It is meant to run after an update, before the result is written to disk.
func Validate(s *Store) error {
	if s == nil {
		return errors.New("nil store")
	}
	if FormatVersion(s.Version()) == invalidVersion {
		return fmt.Errorf("invalid version %q", s.Version())
	}
	if s.Len() < minEntryCount {
		return fmt.Errorf("entry count too low: got %d, want >= %d", s.Len(), minEntryCount)
	}

	for _, tc := range knownPrefixes {
		rec, err := s.Get(tc.prefix)
		if err != nil {
			return fmt.Errorf("known prefix: %w", err)
		}
		if rec.Entity != tc.wantEntity {
			return fmt.Errorf("prefix %q entity = %q, want %q", tc.prefix, rec.Entity, tc.wantEntity)
		}
		if rec.Continent != tc.wantCont {
			return fmt.Errorf("prefix %q continent = %q, want %q", tc.prefix, rec.Continent, tc.wantCont)
		}
		if rec.PrimaryPrefix != tc.prefix {
			return fmt.Errorf("prefix %q primary prefix = %q", tc.prefix, rec.PrimaryPrefix)
		}
	}
	return nil
}
