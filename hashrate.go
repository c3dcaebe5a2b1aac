package main

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// hashrateUnknown is what the UI shows for a wallet whose summed hashrate
// is zero; an explicit "0" would read as "actively mining at nothing".
const hashrateUnknown = "—"

var hashrateUnitScale = map[string]float64{
	"": 1, "H": 1,
	"K": 1e3, "KH": 1e3,
	"M": 1e6, "MH": 1e6,
	"G": 1e9, "GH": 1e9,
	"T": 1e12, "TH": 1e12,
	"P": 1e15, "PH": 1e15,
	"E": 1e18, "EH": 1e18,
}

var hashrateValueRE = regexp.MustCompile(`^([0-9]*\.?[0-9]+)([A-Z]{0,2})$`)

// parseHashrate converts a human-readable hashrate string ("12.3T",
// "950", "1.5GH") to hashes per second. Unrecognized or empty input
// normalizes to zero rather than failing; ckpool emits several spellings
// and a bad sample must never poison an ingest pass.
func parseHashrate(s string) float64 {
	s = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	if s == "" || s == hashrateUnknown || s == "-" {
		return 0
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	m := hashrateValueRE.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	num, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	scale, ok := hashrateUnitScale[m[2]]
	if !ok {
		scale = 1
	}
	return num * scale
}

var hashrateDisplayUnits = []struct {
	suffix string
	scale  float64
}{
	{"E", 1e18},
	{"P", 1e15},
	{"T", 1e12},
	{"G", 1e9},
	{"M", 1e6},
	{"K", 1e3},
}

// formatHashrate renders hashes/second with the largest SI unit the value
// reaches, two decimal places. Values below 1K render as a bare integer.
func formatHashrate(hs float64) string {
	for _, u := range hashrateDisplayUnits {
		if hs >= u.scale {
			return strconv.FormatFloat(hs/u.scale, 'f', 2, 64) + u.suffix
		}
	}
	return strconv.FormatFloat(hs, 'f', 0, 64)
}

var bracketTimeLayouts = []string{
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

var isoTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseBracketTimestamp parses the optional leading "[...]" timestamp of a
// log line to epoch seconds. An absent or unparseable timestamp falls back
// to capture time; a bad timestamp never rejects the line.
func parseBracketTimestamp(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Now().Unix()
	}
	for _, layout := range bracketTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.Unix()
		}
	}
	for _, layout := range isoTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.Unix()
		}
	}
	return time.Now().Unix()
}

// parseFlexibleEpoch interprets a ledger timestamp field that may be an
// epoch in seconds or milliseconds, a numeric string, a date, or a
// datetime. Returns false when nothing matches.
func parseFlexibleEpoch(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return normalizeEpoch(v), true
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return normalizeEpoch(int64(v)), true
	}
	layouts := append([]string{"2006-01-02 15:04:05"}, isoTimeLayouts...)
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.Unix(), true
		}
	}
	return 0, false
}

// normalizeEpoch scales millisecond epochs down to seconds.
func normalizeEpoch(v int64) int64 {
	if v > 10_000_000_000 {
		return v / 1000
	}
	return v
}
