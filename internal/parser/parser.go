// Package parser turns raw server-log lines into structured records.
package parser

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// linePattern matches the positional log grammar:
// timestamp src-ip dest-ip method url user-agent username status bytes
var linePattern = regexp.MustCompile(
	`(\S+)\s+(\S+)\s+(\S+)\s+(\S+)\s+(\S+)\s+(\S+)\s+(\S+)\s+(\d{3})\s+(\d+)`)

// Record is one normalized log event. RawLine is always the verbatim
// input; everything else is best-effort.
type Record struct {
	Timestamp *time.Time
	SrcIP     string
	DestIP    string
	Method    string
	URL       string
	UserAgent string
	Username  string
	Status    *int
	Bytes     int64
	RawLine   string

	// Derived features
	URLLength int
	UALength  int
	Entropy   float64
	Domain    string
	Hour      *int

	// Number of records in the current batch sharing SrcIP.
	// Computed once over the whole batch by the coordinator.
	SrcIPCount int
}

// ParseLine parses one log line. The second return is false when the
// line does not match the grammar at all; such lines are dropped.
// A timestamp that fails to parse nulls Timestamp and Hour but keeps
// the record. A bytes field that fails to parse defaults to 0.
func ParseLine(line string) (*Record, bool) {
	m := linePattern.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}

	rec := &Record{
		SrcIP:     m[2],
		DestIP:    m[3],
		Method:    m[4],
		URL:       m[5],
		UserAgent: m[6],
		Username:  m[7],
		RawLine:   line,
	}

	if ts, err := parseTimestamp(m[1]); err == nil {
		rec.Timestamp = &ts
		hour := ts.Hour()
		rec.Hour = &hour
	}

	if status, err := strconv.Atoi(m[8]); err == nil {
		rec.Status = &status
	}

	if b, err := strconv.ParseInt(m[9], 10, 64); err == nil {
		rec.Bytes = b
	}

	rec.URLLength = len(rec.URL)
	rec.UALength = len(rec.UserAgent)
	rec.Entropy = Entropy(rec.URL)
	rec.Domain = extractDomain(rec.URL)

	return rec, true
}

func parseTimestamp(raw string) (time.Time, error) {
	if strings.HasSuffix(raw, "Z") {
		raw = strings.TrimSuffix(raw, "Z") + "+00:00"
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return ts, nil
}

func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
