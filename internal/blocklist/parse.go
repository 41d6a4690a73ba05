// Package blocklist implements the feed parsing rules shared by the builder
// and the loader: turning a raw feed line into a canonical entry string.
package blocklist

import (
	"bufio"
	"io"
	"strings"

	"github.com/riskcore/riskcored/internal/category"
)

// ParseLine applies the six-step rule to a single raw feed line and reports
// whether it yielded a usable entry.
//
// Step 4 truncates at the first occurrence of any of '#', ';', '\t' - found
// by scanning the whole trimmed line once for the minimum byte index among
// the three, not by testing them one at a time with an early return. A line
// containing both ';' and '#' where '#' appears first truncates at '#',
// regardless of the order the three characters are tested in.
func ParseLine(raw string, kind category.Kind) (string, bool) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return "", false
	}
	if strings.HasPrefix(line, "#") {
		return "", false
	}

	if cut := firstOf(line, '#', ';', '\t'); cut >= 0 {
		line = strings.TrimSpace(line[:cut])
	}
	if line == "" {
		return "", false
	}

	if kind == category.KindEmail {
		line = strings.ToLower(line)
	}
	return line, true
}

// firstOf returns the lowest index in s at which any of the given bytes
// occurs, or -1 if none occur.
func firstOf(s string, bytes ...byte) int {
	min := -1
	for _, b := range bytes {
		if idx := strings.IndexByte(s, b); idx >= 0 && (min < 0 || idx < min) {
			min = idx
		}
	}
	return min
}

// ParseReader scans a feed file line by line and returns the distinct set of
// canonical entries found, keyed by entry string with value true (presence
// is what matters; duplicates collapse).
func ParseReader(r io.Reader, kind category.Kind) (map[string]bool, error) {
	entries := make(map[string]bool)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if entry, ok := ParseLine(scanner.Text(), kind); ok {
			entries[entry] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
