// Package kibi formats and parses byte sizes with binary (1024) multiples
package kibi

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var ErrInvalidByteSize = errors.New("Invalid byte size")

var reByteSize = regexp.MustCompile(`^(\d+)\s*([a-z]*)$`)

type unit struct {
	name  string
	short string
	size  int64
}

// In increasing order of size
var units = []unit{
	{"KB", "k", 1 << 10},
	{"MB", "m", 1 << 20},
	{"GB", "g", 1 << 30},
	{"TB", "t", 1 << 40},
	{"PB", "p", 1 << 50},
}

// FormatBytes returns a size such as "35 MB". The value is truncated to a whole number of units.
func FormatBytes(b int64) string {
	for i := len(units) - 1; i >= 0; i-- {
		if b >= units[i].size {
			return fmt.Sprintf("%v %v", b/units[i].size, units[i].name)
		}
	}
	return fmt.Sprintf("%v bytes", b)
}

// ParseBytes accepts a whole number with an optional suffix, such as "512", "512 bytes", "64 KB", "2g".
// Suffixes are case insensitive.
func ParseBytes(s string) (int64, error) {
	m := reByteSize.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if m == nil {
		return 0, fmt.Errorf("%w '%v'", ErrInvalidByteSize, s)
	}
	value, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w '%v': %v", ErrInvalidByteSize, s, err)
	}
	suffix := m[2]
	if suffix == "" || suffix == "bytes" || suffix == "b" {
		return value, nil
	}
	for _, u := range units {
		if suffix == strings.ToLower(u.name) || suffix == u.short {
			return value * u.size, nil
		}
	}
	return 0, fmt.Errorf("%w '%v': unknown unit '%v'", ErrInvalidByteSize, s, suffix)
}
