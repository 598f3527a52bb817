// Package unit parses and formats engineering-prefixed numeric strings as used
// in SCPI programming and bench-instrument front panels.
//
// A value like "500mV" parses to 0.5 and 0.5 formats back to "500.000000 mV";
// the supported prefixes cover femto (f, 1e-15) through tera (T, 1e12). The
// micro prefix accepts both "u" and "µ" on input and always formats as "u".
package unit

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidValue indicates that a string cannot be parsed as an
// engineering-prefixed number.
var ErrInvalidValue = errors.New("unit: invalid engineering value")

// Prefix multipliers, largest first. Formatting walks this list in order to
// pick the first prefix that scales the value into [1, 1000).
var prefixes = []struct {
	symbol string
	scale  float64
}{
	{"T", 1e12},
	{"G", 1e9},
	{"M", 1e6},
	{"k", 1e3},
	{"", 1.0},
	{"m", 1e-3},
	{"u", 1e-6},
	{"n", 1e-9},
	{"p", 1e-12},
	{"f", 1e-15},
}

var prefixScale = map[string]float64{
	"T": 1e12, "G": 1e9, "M": 1e6, "k": 1e3,
	"m": 1e-3, "u": 1e-6, "µ": 1e-6, "n": 1e-9, "p": 1e-12, "f": 1e-15,
}

// valuePattern matches a signed decimal (with optional exponent), an optional
// engineering prefix and an optional unit symbol, e.g. "-1.2e3", "500mV",
// "10nA", "2.2MOhm". The prefix match is case-sensitive: "M" is mega and "m"
// is milli.
var valuePattern = regexp.MustCompile(`^([+-]?\d*\.?\d+(?:[eE][+-]?\d+)?)\s*([TGMkmuµnpf]?)([A-Za-zΩ]*)$`)

// unitSymbols are recognized trailing unit names. A trailing symbol that is
// not listed here makes the whole string invalid rather than being silently
// dropped.
var unitSymbols = map[string]struct{}{
	"": {}, "V": {}, "v": {}, "A": {}, "a": {}, "W": {}, "w": {},
	"Ohm": {}, "ohm": {}, "Ω": {}, "Hz": {}, "hz": {}, "F": {}, "s": {},
}

// Parse converts an engineering-prefixed string to its base-unit value.
//
// Accepted forms include "3.3", "3.3V", "500mV", "100uA", "1.2k", "2.2MOhm"
// and plain scientific notation ("1e-7"). The unit symbol, when present, is
// validated and discarded; only the prefix affects the returned value.
func Parse(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidValue)
	}

	// Fast path for plain numbers, including exponents.
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}

	m := valuePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidValue, s)
	}

	num, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidValue, s)
	}

	prefix, symbol := m[2], m[3]
	if _, ok := unitSymbols[symbol]; !ok {
		// The prefix group is greedy for single letters, so "mV" arrives as
		// prefix "m" symbol "V" but a bare "mOhh" must be rejected here.
		return 0, fmt.Errorf("%w: unknown unit symbol %q in %q", ErrInvalidValue, symbol, s)
	}

	if prefix == "" {
		return num, nil
	}

	scale, ok := prefixScale[prefix]
	if !ok {
		return 0, fmt.Errorf("%w: unknown prefix %q in %q", ErrInvalidValue, prefix, s)
	}

	return num * scale, nil
}

// Valid reports whether s parses as an engineering-prefixed value.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Format renders a base-unit value with an automatically chosen prefix and the
// given unit symbol, e.g. Format(0.5, "V") == "500.000000 mV". Six digits of
// precision match the instrument display convention.
func Format(value float64, symbol string) string {
	return FormatPrecision(value, symbol, 6)
}

// FormatPrecision is Format with an explicit number of fraction digits.
func FormatPrecision(value float64, symbol string, precision int) string {
	if value == 0 {
		return fmt.Sprintf("%.*f %s", precision, 0.0, symbol)
	}

	abs := math.Abs(value)
	best := prefixes[len(prefixes)-1] // smallest scale as fallback
	for _, p := range prefixes {
		if scaled := abs / p.scale; scaled >= 1.0 && scaled < 1000.0 {
			best = p
			break
		}
	}

	return fmt.Sprintf("%.*f %s%s", precision, value/best.scale, best.symbol, symbol)
}

// FormatWithPrefix renders a base-unit value scaled by a caller-chosen prefix.
func FormatWithPrefix(value float64, symbol, prefix string, precision int) (string, error) {
	if prefix == "" {
		return fmt.Sprintf("%.*f %s", precision, value, symbol), nil
	}

	scale, ok := prefixScale[prefix]
	if !ok {
		return "", fmt.Errorf("%w: unknown prefix %q", ErrInvalidValue, prefix)
	}

	return fmt.Sprintf("%.*f %s%s", precision, value/scale, prefix, symbol), nil
}

// Normalize converts a numeric value or an engineering-prefixed string to the
// plain base-unit decimal form SCPI expects on the wire. Instruments such as
// the Keithley 2461 reject unit suffixes in command arguments, so "500mV"
// becomes "0.5".
func Normalize(s string) (string, error) {
	v, err := Parse(s)
	if err != nil {
		return "", err
	}

	return strconv.FormatFloat(v, 'g', -1, 64), nil
}
