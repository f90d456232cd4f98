package bigcty

import (
	"bytes"
	"compress/bzip2"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
)

// versionLayout is the datestamp layout of Store.Version.
const versionLayout = "20060102"

// versionMember is the top-level JSON member holding the datestamp.
const versionMember = "version"

// invalidVersion is what FormatVersion returns for anything that is not a valid datestamp.
const invalidVersion = "0000-00-00"

// Store is a read-only, versioned mapping from prefix to Record.
// A Store never changes after construction and is safe for concurrent use.
type Store struct {
	version string
	entries map[string]Record
}

// NewStore builds a Store from a parsed document. The entries are copied,
// so later changes to doc do not affect the Store.
func NewStore(doc *Document) *Store {
	s := &Store{entries: make(map[string]Record)}
	if doc == nil {
		return s
	}
	s.version = doc.Version
	for k, v := range doc.Entries {
		s.entries[k] = v
	}
	return s
}

// Version returns the datestamp of the data in YYYYMMDD form, or "".
func (s *Store) Version() string { return s.version }

// FormattedVersion returns the datestamp as YYYY-MM-DD, or "0000-00-00"
// if the version is missing or invalid.
func (s *Store) FormattedVersion() string { return FormatVersion(s.version) }

// Len returns the number of prefixes in the store.
func (s *Store) Len() int { return len(s.entries) }

// Get returns the record stored under exactly this prefix or callsign.
// No longest-prefix matching is done.
func (s *Store) Get(prefix string) (Record, error) {
	rec, ok := s.entries[prefix]
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrNotFound, prefix)
	}
	return rec, nil
}

// All returns an iterator over every (prefix, record) pair. Order is unspecified.
func (s *Store) All() iter.Seq2[string, Record] {
	return func(yield func(string, Record) bool) {
		for k, v := range s.entries {
			if !yield(k, v) {
				return
			}
		}
	}
}

// Similar returns the prefixes within maxDist edits of prefix (case-insensitive),
// closest first and then alphabetically. It is meant for "did you mean" hints.
func (s *Store) Similar(prefix string, maxDist int) []string {
	type candidate struct {
		prefix string
		dist   int
	}
	query := strings.ToUpper(strings.TrimSpace(prefix))
	if query == "" || maxDist <= 0 {
		return nil
	}

	var found []candidate
	for k := range s.entries {
		// Length difference is a lower bound on the edit distance.
		if d := len(k) - len(query); d > maxDist || -d > maxDist {
			continue
		}
		dist := levenshtein.ComputeDistance(query, strings.ToUpper(k))
		if dist <= maxDist {
			found = append(found, candidate{k, dist})
		}
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].dist != found[j].dist {
			return found[i].dist < found[j].dist
		}
		return found[i].prefix < found[j].prefix
	})

	out := make([]string, len(found))
	for i, c := range found {
		out[i] = c.prefix
	}
	return out
}

// FormatVersion renders a YYYYMMDD datestamp as YYYY-MM-DD.
// Anything that is not a valid date yields "0000-00-00".
func FormatVersion(v string) string {
	t, err := time.Parse(versionLayout, v)
	if err != nil {
		return invalidVersion
	}
	return t.Format(time.DateOnly)
}

// storedRecord is the JSON form of a Record. Pointer fields let
// UnmarshalJSON tell a missing key from a zero value.
type storedRecord struct {
	Entity     *string  `json:"entity"`
	CQ         *int     `json:"cq"`
	ITU        *int     `json:"itu"`
	Continent  *string  `json:"continent"`
	Lat        *float64 `json:"lat"`
	Long       *float64 `json:"long"`
	TZ         *float64 `json:"tz"`
	Len        *int     `json:"len"`
	PrimaryPfx *string  `json:"primary_pfx"`
	ExactMatch *bool    `json:"exact_match"`
}

func toStored(r Record) storedRecord {
	return storedRecord{
		Entity:     &r.Entity,
		CQ:         &r.CQZone,
		ITU:        &r.ITUZone,
		Continent:  &r.Continent,
		Lat:        &r.Latitude,
		Long:       &r.Longitude,
		TZ:         &r.UTCOffset,
		Len:        &r.PrefixLength,
		PrimaryPfx: &r.PrimaryPrefix,
		ExactMatch: &r.ExactMatch,
	}
}

func (sr storedRecord) record() (Record, error) {
	missing := func(field string) (Record, error) {
		return Record{}, fmt.Errorf("missing field %q", field)
	}
	switch {
	case sr.Entity == nil:
		return missing("entity")
	case sr.CQ == nil:
		return missing("cq")
	case sr.ITU == nil:
		return missing("itu")
	case sr.Continent == nil:
		return missing("continent")
	case sr.Lat == nil:
		return missing("lat")
	case sr.Long == nil:
		return missing("long")
	case sr.TZ == nil:
		return missing("tz")
	case sr.Len == nil:
		return missing("len")
	case sr.PrimaryPfx == nil:
		return missing("primary_pfx")
	case sr.ExactMatch == nil:
		return missing("exact_match")
	}
	return Record{
		Entity:        *sr.Entity,
		CQZone:        *sr.CQ,
		ITUZone:       *sr.ITU,
		Continent:     *sr.Continent,
		Latitude:      *sr.Lat,
		Longitude:     *sr.Long,
		UTCOffset:     *sr.TZ,
		PrefixLength:  *sr.Len,
		PrimaryPrefix: *sr.PrimaryPfx,
		ExactMatch:    *sr.ExactMatch,
	}, nil
}

// MarshalJSON encodes the store as one object holding a top-level "version"
// string and one member per prefix.
func (s *Store) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(s.entries)+1)
	for k, v := range s.entries {
		if k == versionMember {
			return nil, fmt.Errorf("%w: entry %q collides with the version member", ErrMalformedStore, k)
		}
		doc[k] = toStored(v)
	}
	doc[versionMember] = s.version
	return json.Marshal(doc)
}

// UnmarshalJSON decodes the form written by MarshalJSON. Entries lacking any
// field are rejected with ErrMalformedStore. A missing "version" decodes as "".
func (s *Store) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedStore, err)
	}

	version := ""
	if v, ok := raw[versionMember]; ok {
		if err := json.Unmarshal(v, &version); err != nil {
			return fmt.Errorf("%w: version: %v", ErrMalformedStore, err)
		}
		delete(raw, versionMember)
	}

	entries := make(map[string]Record, len(raw))
	for prefix, msg := range raw {
		var sr storedRecord
		if err := json.Unmarshal(msg, &sr); err != nil {
			return fmt.Errorf("%w: entry %q: %v", ErrMalformedStore, prefix, err)
		}
		rec, err := sr.record()
		if err != nil {
			return fmt.Errorf("%w: entry %q: %v", ErrMalformedStore, prefix, err)
		}
		entries[prefix] = rec
	}

	s.version = version
	s.entries = entries
	return nil
}

// Dump writes the store as JSON to path, replacing any existing file.
// The data is written to a temporary file first and renamed into place.
func (s *Store) Dump(path string) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	success := false
	defer func() {
		tmp.Close()
		if !success {
			os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming %s: %w", tmp.Name(), err)
	}
	success = true
	return nil
}

// LoadFile reads a store written by Dump. If path+".bz2" exists it is
// preferred and decompressed on the fly.
func LoadFile(path string) (*Store, error) {
	r, cleanup, err := openOptionallyBzippedFile(path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	s := &Store{}
	if err := json.Unmarshal(bytes.TrimSpace(data), s); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return s, nil
}

func openOptionallyBzippedFile(path string) (io.Reader, func() error, error) {
	fh, err := os.Open(path + ".bz2")
	if err != nil {
		fh, err = os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening %s: %w", path, err)
		}
		return fh, fh.Close, nil
	}
	return bzip2.NewReader(fh), fh.Close, nil
}
