package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/caiwatch/caiwatch/pkg/types"
)

// condition is a parsed rule expression of the form "field operator value".
//
// Supported expressions:
//
//	cai > 250
//	level >= 2
//	bad_pollutants >= 2
//	worst == pm10
//	state == poor
//	pm10 > 100          (sub-index score of one pollutant)
//	pm2_5_conc > 35     (scored concentration: ppm for gases, 24h average for particulates)
type condition struct {
	field string
	op    string
	rhs   string
	num   float64 // rhs parsed, for numeric fields
}

var pollutantFields = map[string]bool{
	"so2": true, "co": true, "o3": true, "no2": true, "pm10": true, "pm2_5": true,
}

const concentrationSuffix = "_conc"

// parseCondition validates cond and returns its parsed form.
func parseCondition(cond string) (condition, error) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return condition{}, fmt.Errorf("want \"field op value\", got %q", cond)
	}
	c := condition{field: parts[0], op: parts[1], rhs: parts[2]}

	switch c.field {
	case "state", "worst":
		if c.op != "==" && c.op != "!=" {
			return condition{}, fmt.Errorf("%s supports == and != only", c.field)
		}
		return c, nil
	}

	if !isNumericField(c.field) {
		return condition{}, fmt.Errorf("unknown field %q", c.field)
	}
	switch c.op {
	case ">", ">=", "<", "<=", "==", "!=":
	default:
		return condition{}, fmt.Errorf("unknown operator %q", c.op)
	}
	v, err := strconv.ParseFloat(c.rhs, 64)
	if err != nil {
		return condition{}, fmt.Errorf("threshold %q: %w", c.rhs, err)
	}
	c.num = v
	return c, nil
}

func isNumericField(field string) bool {
	switch field {
	case "cai", "level", "bad_pollutants":
		return true
	}
	return pollutantFields[field] || pollutantFields[strings.TrimSuffix(field, concentrationSuffix)]
}

// eval reports whether snap satisfies c, with the value that triggered it.
// Numeric conditions never fire on a snapshot in the unknown state.
func (c condition) eval(snap *types.Snapshot) (bool, float64) {
	switch c.field {
	case "state":
		return compareString(snap.State, c.op, c.rhs), 0
	case "worst":
		return compareString(snap.Worst, c.op, c.rhs), 0
	}

	if snap.State == "unknown" {
		return false, 0
	}
	v, ok := numericField(c.field, snap)
	if !ok {
		return false, 0
	}
	return compareFloat(v, c.op, c.num), v
}

// numericField maps a field name to its value in the snapshot.
func numericField(field string, snap *types.Snapshot) (float64, bool) {
	switch field {
	case "cai":
		return snap.CAI, true
	case "level":
		return float64(snap.Level), true
	case "bad_pollutants":
		return float64(snap.BadPollutants), true
	}
	if p, ok := strings.CutSuffix(field, concentrationSuffix); ok {
		si, found := snap.SubIndexFor(p)
		return si.Concentration, found
	}
	si, found := snap.SubIndexFor(field)
	return si.Score, found
}

func compareString(v, op, want string) bool {
	if op == "!=" {
		return v != want
	}
	return v == want
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
