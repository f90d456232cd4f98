// Package bigcty parses the BigCTY country file (cty.dat) into a versioned
// prefix store and keeps that store current with published releases.
package bigcty

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// cty.dat layout:
//
//	entity name: CQ Zone: ITU Zone: Continent: Latitude: Longitude: Time Zone: Primary Prefix:
//	    other,prefixes,and,=callsigns;
//
// A primary prefix starting with '*' marks an entity that is only on the
// WAEDC list.

// primaryFieldCount is the number of colon-separated fields on an entity line.
const primaryFieldCount = 8

// versionRegex finds the release datestamp, which cty.dat carries as an
// exact-callsign alias of the form "=VER20240315".
var versionRegex = regexp.MustCompile(`VER(\d{8})`)

// decimalRegex is the only number form cty.dat uses for coordinates and time
// zones. strconv.ParseFloat alone would also take NaN, Inf and hex floats.
var decimalRegex = regexp.MustCompile(`^[+-]?\d+(?:\.\d+)?$`)

// parseDecimal parses a plain signed decimal such as "-138.38".
func parseDecimal(s string) (float64, error) {
	if !decimalRegex.MatchString(s) {
		return 0, fmt.Errorf("%q is not a decimal number", s)
	}
	return strconv.ParseFloat(s, 64)
}

// Stats holds parser counters for logging.
type Stats struct {
	Lines         int // physical lines consumed, terminator included
	Entities      int // primary entity lines
	Overrides     int // alias records stored
	SkippedTokens int // alias tokens that did not match the grammar
	Duplicates    int // alias tokens whose prefix was already present
}

// Document is the result of parsing one cty.dat text.
type Document struct {
	Version string            // YYYYMMDD, or "" when the text has no VER marker
	Entries map[string]Record // prefix or exact callsign -> record
	Stats   Stats
}

// Parse parses a complete cty.dat text. Parsing stops at the first blank
// line or at the end of the input, whichever comes first. A malformed entity
// line fails the whole parse with a *FormatError; alias tokens that do not
// match the grammar are skipped.
func Parse(data []byte) (*Document, error) {
	text := string(data)
	doc := &Document{Entries: make(map[string]Record)}

	if m := versionRegex.FindStringSubmatch(text); m != nil {
		doc.Version = m[1]
	}

	current := ""
	for i, raw := range strings.Split(text, "\n") {
		doc.Stats.Lines++
		line := strings.Trim(strings.TrimRight(raw, "\r"), ":")
		if line == "" {
			break
		}

		r, _ := utf8.DecodeRuneInString(line)
		switch {
		case unicode.IsLetter(r):
			prefix, rec, err := parsePrimary(line)
			if err != nil {
				return nil, &FormatError{Line: i + 1, Text: line, Err: err}
			}
			doc.Entries[prefix] = rec
			doc.Stats.Entities++
			current = prefix
		case unicode.IsSpace(r):
			if current == "" {
				continue
			}
			doc.mergeOverrides(current, line)
		}
	}
	return doc, nil
}

// ParseReader reads r to the end and parses it.
func ParseReader(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading country file: %w", err)
	}
	return Parse(data)
}

// ImportFile parses a cty.dat file from disk.
func ImportFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return doc, nil
}

// parsePrimary parses an entity line into its primary prefix and base record.
func parsePrimary(line string) (string, Record, error) {
	fields := strings.Split(line, ":")
	if len(fields) < primaryFieldCount {
		return "", Record{}, fmt.Errorf("want %d fields, got %d", primaryFieldCount, len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	entity, prefix := fields[0], fields[7]
	if strings.HasPrefix(prefix, "*") {
		prefix = prefix[1:]
		entity += notDXCCSuffix
	}
	if prefix == "" {
		return "", Record{}, fmt.Errorf("empty primary prefix")
	}

	cq, err := strconv.Atoi(fields[1])
	if err != nil {
		return "", Record{}, fmt.Errorf("cq zone: %w", err)
	}
	itu, err := strconv.Atoi(fields[2])
	if err != nil {
		return "", Record{}, fmt.Errorf("itu zone: %w", err)
	}
	lat, err := parseDecimal(fields[4])
	if err != nil {
		return "", Record{}, fmt.Errorf("latitude: %w", err)
	}
	long, err := parseDecimal(fields[5])
	if err != nil {
		return "", Record{}, fmt.Errorf("longitude: %w", err)
	}
	tz, err := parseDecimal(fields[6])
	if err != nil {
		return "", Record{}, fmt.Errorf("time zone: %w", err)
	}

	return prefix, Record{
		Entity:        entity,
		CQZone:        cq,
		ITUZone:       itu,
		Continent:     fields[3],
		Latitude:      lat,
		Longitude:     long,
		UTCOffset:     -tz,
		PrefixLength:  utf8.RuneCountInString(prefix),
		PrimaryPrefix: prefix,
	}, nil
}

// mergeOverrides stores one record per alias token of a continuation line.
// The first record stored under a prefix wins; later tokens resolving to the
// same prefix are dropped.
func (doc *Document) mergeOverrides(primary, line string) {
	base := doc.Entries[primary]

	body := strings.TrimSpace(line)
	body = strings.TrimRight(body, ";")
	body = strings.TrimRight(body, ",")

	for _, token := range strings.Split(body, ",") {
		o, ok := MatchOverride(token)
		if !ok {
			doc.Stats.SkippedTokens++
			continue
		}
		if _, exists := doc.Entries[o.Prefix]; exists {
			doc.Stats.Duplicates++
			continue
		}
		rec := base
		rec.apply(o)
		doc.Entries[o.Prefix] = rec
		doc.Stats.Overrides++
	}
}
