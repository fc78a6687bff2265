package scheduler

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
	"time"
)

// Expression is a parsed 5-field cron line: minute hour day-of-month month day-of-week.
// Each field is a bitset of allowed values.
type Expression struct {
	minute, hour, dom, month, dow uint64
	domStar, dowStar              bool
}

type fieldBounds struct {
	name     string
	min, max int
}

var fields = [5]fieldBounds{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 7},
}

// ParseExpression accepts *, single values, ranges, lists, and /steps in every field.
// Day-of-week 7 is an alias for Sunday.
func ParseExpression(expr string) (*Expression, error) {
	parts := strings.Fields(expr)
	if len(parts) != len(fields) {
		return nil, fmt.Errorf("cron %q: expected 5 fields, got %d", expr, len(parts))
	}

	var sets [5]uint64
	for i, part := range parts {
		set, err := parseField(part, fields[i])
		if err != nil {
			return nil, fmt.Errorf("cron %q: %s: %w", expr, fields[i].name, err)
		}
		sets[i] = set
	}

	dow := sets[4]
	if dow&(1<<7) != 0 {
		dow = dow&^(1<<7) | 1
	}
	return &Expression{
		minute:  sets[0],
		hour:    sets[1],
		dom:     sets[2],
		month:   sets[3],
		dow:     dow,
		domStar: strings.HasPrefix(parts[2], "*"),
		dowStar: strings.HasPrefix(parts[4], "*"),
	}, nil
}

// Next returns the first matching minute strictly after from, in from's location.
// The zero time means nothing matches within five years.
func (e *Expression) Next(from time.Time) time.Time {
	loc := from.Location()
	t := from.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(5, 0, 0)

	for t.Before(limit) {
		switch {
		case !has(e.month, int(t.Month())):
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc)
		case !e.dayMatches(t):
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
		case !has(e.hour, t.Hour()):
			next := time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, loc)
			if !next.After(t) {
				// repeated wall-clock hour at a DST fall-back
				next = t.Add(time.Hour).Truncate(time.Hour)
			}
			t = next
		case !has(e.minute, t.Minute()):
			t = t.Add(time.Minute)
		default:
			return t
		}
	}
	return time.Time{}
}

// dayMatches follows Vixie cron: when both day fields are restricted either may match.
func (e *Expression) dayMatches(t time.Time) bool {
	domOK := has(e.dom, t.Day())
	dowOK := has(e.dow, int(t.Weekday()))
	if e.domStar || e.dowStar {
		return domOK && dowOK
	}
	return domOK || dowOK
}

func has(set uint64, v int) bool {
	return set&(1<<uint(v)) != 0
}

func parseField(field string, b fieldBounds) (uint64, error) {
	var set uint64
	for _, item := range strings.Split(field, ",") {
		s, err := parseItem(item, b)
		if err != nil {
			return 0, err
		}
		set |= s
	}
	if bits.OnesCount64(set) == 0 {
		return 0, fmt.Errorf("empty field")
	}
	return set, nil
}

func parseItem(item string, b fieldBounds) (uint64, error) {
	rng, stepText, hasStep := strings.Cut(item, "/")
	step := 1
	if hasStep {
		n, err := strconv.Atoi(stepText)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid step %q", stepText)
		}
		step = n
	}

	var lo, hi int
	switch {
	case rng == "*":
		lo, hi = b.min, b.max
	case strings.Contains(rng, "-"):
		loText, hiText, _ := strings.Cut(rng, "-")
		var err error
		if lo, err = strconv.Atoi(loText); err != nil {
			return 0, fmt.Errorf("invalid range start %q", loText)
		}
		if hi, err = strconv.Atoi(hiText); err != nil {
			return 0, fmt.Errorf("invalid range end %q", hiText)
		}
	default:
		v, err := strconv.Atoi(rng)
		if err != nil {
			return 0, fmt.Errorf("invalid value %q", rng)
		}
		lo, hi = v, v
		if hasStep {
			hi = b.max
		}
	}

	if lo < b.min || hi > b.max || lo > hi {
		return 0, fmt.Errorf("%s out of bounds [%d, %d]", item, b.min, b.max)
	}

	var set uint64
	for v := lo; v <= hi; v += step {
		set |= 1 << uint(v)
	}
	return set, nil
}
