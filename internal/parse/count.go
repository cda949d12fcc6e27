package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// The RecWell widget's full capacity line: "Capacity: 45/200 // 22.5%".
	capacityRe = regexp.MustCompile(`(?i)Capacity:\s*(\d+)\s*/\s*(\d+)\s*//\s*([\d.]+)%`)
	// Bare count over capacity: "45/200".
	ratioRe = regexp.MustCompile(`(\d+)\s*/\s*(\d+)`)
	// Percentage only: "22.5%".
	percentRe = regexp.MustCompile(`([\d.]+)\s*%`)
)

// ParsedCount holds the occupancy figures extracted from a facility card's text.
type ParsedCount struct {
	Count    *int
	Capacity *int
	Percent  *float64
	Closed   bool
}

// ParseCount extracts occupancy data from the raw text of one facility block.
// It tries the widget's full capacity line first, then falls back to a bare
// "count/capacity" ratio, then a bare percentage.
func ParseCount(raw string) (ParsedCount, error) {
	s := strings.TrimSpace(raw)
	closed := strings.Contains(strings.ToLower(s), "closed")

	if m := capacityRe.FindStringSubmatch(s); m != nil {
		count, err1 := strconv.Atoi(m[1])
		capacity, err2 := strconv.Atoi(m[2])
		pct, err3 := strconv.ParseFloat(m[3], 64)
		if err1 == nil && err2 == nil && err3 == nil {
			return ParsedCount{Count: &count, Capacity: &capacity, Percent: &pct, Closed: closed}, nil
		}
	}

	if m := ratioRe.FindStringSubmatch(s); m != nil {
		count, err1 := strconv.Atoi(m[1])
		capacity, err2 := strconv.Atoi(m[2])
		if err1 == nil && err2 == nil && capacity > 0 {
			pct := float64(count) / float64(capacity) * 100
			return ParsedCount{Count: &count, Capacity: &capacity, Percent: &pct, Closed: closed}, nil
		}
	}

	if m := percentRe.FindStringSubmatch(s); m != nil {
		if pct, err := strconv.ParseFloat(m[1], 64); err == nil {
			return ParsedCount{Percent: &pct, Closed: closed}, nil
		}
	}

	if closed {
		// A closed facility often shows no figures at all.
		return ParsedCount{Closed: true}, nil
	}

	return ParsedCount{}, fmt.Errorf("no occupancy figures in %q", raw)
}
