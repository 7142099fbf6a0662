package release

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	sizeNumberPattern = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	// A comma followed by exactly three digits groups thousands.
	thousandsPattern = regexp.MustCompile(`\d,\d{3}(?:\D|$)`)
)

var sizeUnitReplacer = strings.NewReplacer(
	"ТБ", "TB",
	"ГБ", "GB",
	"МБ", "MB",
	"КБ", "KB",
	"TIB", "TB",
	"GIB", "GB",
	"MIB", "MB",
	"KIB", "KB",
)

// ParseSize converts a human size string to gigabytes. Strings naming GB are
// read as gigabytes; strings without a recognised larger or smaller unit are
// read as megabytes. A comma is a decimal separator unless it groups
// thousands. Malformed input yields 0.
func ParseSize(raw string) float64 {
	value := sizeUnitReplacer.Replace(strings.ToUpper(strings.TrimSpace(raw)))
	if value == "" {
		return 0
	}
	if strings.Contains(value, ",") && (strings.Contains(value, ".") || thousandsPattern.MatchString(value)) {
		value = strings.ReplaceAll(value, ",", "")
	}

	match := sizeNumberPattern.FindString(value)
	if match == "" {
		return 0
	}
	number, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", "."), 64)
	if err != nil || number < 0 || math.IsNaN(number) || math.IsInf(number, 0) {
		return 0
	}

	switch {
	case strings.Contains(value, "TB"):
		return number * 1000
	case strings.Contains(value, "GB"):
		return number
	case strings.Contains(value, "KB"):
		return number / 1e6
	default:
		return number / 1000
	}
}
