package importer

import (
	"strconv"
	"strings"
	"time"
)

// ValueKind is the inferred scalar type of a CSV/TSV column, used to coerce
// string cells into the interface{} values a BSONMap field expects.
type ValueKind int

const (
	TextKind ValueKind = iota
	BoolKind
	IntKind
	FloatKind
	TimeKind
)

// inferColumnTypes analyzes sample data to determine the best field kind
// for each column. It tries in order: BOOL -> INT -> FLOAT -> TIME -> TEXT.
func inferColumnTypes(sampleData [][]string, numCols int, opts *ImportOptions) []ValueKind {
	kinds := make([]ValueKind, numCols)

	votes := make([]map[ValueKind]int, numCols)
	for i := range votes {
		votes[i] = make(map[ValueKind]int)
	}

	for _, row := range sampleData {
		for colIdx := 0; colIdx < numCols; colIdx++ {
			var val string
			if colIdx < len(row) {
				val = strings.TrimSpace(row[colIdx])
			}
			if isNullValue(val, opts.NullLiterals) {
				continue
			}
			votes[colIdx][detectValueType(val, opts.DateTimeFormats)]++
		}
	}

	for colIdx := 0; colIdx < numCols; colIdx++ {
		kinds[colIdx] = determineColumnType(votes[colIdx])
	}
	return kinds
}

// detectValueType attempts to parse a single value and returns its most specific kind.
func detectValueType(val string, dateFormats []string) ValueKind {
	if val == "" {
		return TextKind
	}
	if isBoolLike(val) {
		return BoolKind
	}
	if isIntLike(val) {
		return IntKind
	}
	if isFloatLike(val) {
		return FloatKind
	}
	if isTimeLike(val, dateFormats) {
		return TimeKind
	}
	return TextKind
}

func isBoolLike(val string) bool {
	lower := strings.ToLower(strings.TrimSpace(val))
	switch lower {
	case "true", "false", "yes", "no":
		return true
	case "t", "f", "y", "n":
		return len(val) == 1
	default:
		return false
	}
}

func isIntLike(val string) bool {
	_, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
	return err == nil
}

func isFloatLike(val string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	return err == nil
}

func isTimeLike(val string, layouts []string) bool {
	for _, l := range layouts {
		if _, err := time.Parse(l, val); err == nil {
			return true
		}
	}
	return false
}

// determineColumnType picks the final kind based on vote counts.
// Strategy: pick the most specific kind that covers >=80% of non-null values, else TEXT.
func determineColumnType(votes map[ValueKind]int) ValueKind {
	total := 0
	for _, c := range votes {
		total += c
	}
	if total == 0 {
		return TextKind
	}

	boolCount := votes[BoolKind]
	intCount := votes[IntKind]
	floatCount := votes[FloatKind]
	timeCount := votes[TimeKind]

	threshold := float64(total) * 0.80

	if float64(boolCount) >= threshold {
		return BoolKind
	}
	if float64(timeCount) >= threshold {
		return TimeKind
	}
	if float64(intCount) >= threshold && floatCount == 0 {
		return IntKind
	}
	if float64(intCount+floatCount) >= threshold {
		return FloatKind
	}
	return TextKind
}

func isNullValue(val string, nullLiterals []string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(val))
	for _, nl := range nullLiterals {
		if trimmed == strings.ToLower(strings.TrimSpace(nl)) {
			return true
		}
	}
	return false
}

// convertValue converts a string cell to the Go value a BSONMap field holds,
// based on the column's inferred kind. Times are stored as RFC3339 strings
// so a document round-trips through JSON/gob the same way documentToMap and
// EncodeFrame already expect.
func convertValue(val string, kind ValueKind, dateFormats []string, nullLiterals []string) (interface{}, error) {
	val = strings.TrimSpace(val)
	if isNullValue(val, nullLiterals) {
		return nil, nil
	}

	switch kind {
	case BoolKind:
		return parseBool(val)
	case IntKind:
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return nil, err
		}
		return n, nil
	case FloatKind:
		return strconv.ParseFloat(val, 64)
	case TimeKind:
		t, err := parseDateTime(val, dateFormats)
		if err != nil {
			return nil, err
		}
		return t.Format(time.RFC3339), nil
	default:
		return val, nil
	}
}

func parseBool(val string) (bool, error) {
	lower := strings.ToLower(strings.TrimSpace(val))
	switch lower {
	case "true", "t", "yes", "y", "1":
		return true, nil
	case "false", "f", "no", "n", "0":
		return false, nil
	default:
		return strconv.ParseBool(val)
	}
}

func parseDateTime(val string, formats []string) (time.Time, error) {
	for _, layout := range formats {
		if t, err := time.Parse(layout, val); err == nil {
			return t, nil
		}
	}
	return time.Time{}, strconv.ErrSyntax
}
