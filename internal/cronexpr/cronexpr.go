// Package cronexpr parses classic five-field cron expressions and computes
// their next firing instant.
//
// Unlike cron(5), a field is stored as the concrete set of matching integers
// rather than as a syntactic construct: there is no distinction between "*"
// and an explicit full-range list. One consequence is that day-of-month and
// day-of-week are combined by intersection, never by the traditional union
// that classic cron applies when exactly one of the two fields is starred.
package cronexpr

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Expression is a parsed five-field cron expression, stored as explicit,
// ordered sets of matching values per field.
type Expression struct {
	minute  []int // 0-59
	hour    []int // 0-23
	day     []int // 1-31
	month   []int // 1-12
	weekday []int // 0-6, Sunday = 0
}

// InvalidCronError is returned for any syntactic or out-of-range token.
type InvalidCronError struct {
	Field string
	Raw   string
	Msg   string
}

func (e *InvalidCronError) Error() string {
	return fmt.Sprintf("invalid cron field %s %q: %s", e.Field, e.Raw, e.Msg)
}

type fieldBounds struct {
	name     string
	min, max int
}

var fields = []fieldBounds{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day", 1, 31},
	{"month", 1, 12},
	{"weekday", 0, 6},
}

// Parse accepts a classic five-field cron specification:
// "minute hour day-of-month month day-of-week". @monthly-style descriptors
// are not accepted.
func Parse(raw string) (*Expression, error) {
	tokens := strings.Fields(raw)
	if len(tokens) != 5 {
		return nil, &InvalidCronError{Field: "expression", Raw: raw, Msg: "expected exactly five whitespace-separated fields"}
	}

	sets := make([][]int, 5)
	for i, fb := range fields {
		set, err := parseField(tokens[i], fb)
		if err != nil {
			return nil, err
		}
		sets[i] = set
	}

	return &Expression{
		minute:  sets[0],
		hour:    sets[1],
		day:     sets[2],
		month:   sets[3],
		weekday: sets[4],
	}, nil
}

func parseField(tok string, fb fieldBounds) ([]int, error) {
	if tok == "" {
		return nil, &InvalidCronError{Field: fb.name, Raw: tok, Msg: "empty field"}
	}

	seen := make(map[int]bool)
	for _, part := range strings.Split(tok, ",") {
		if part == "" {
			return nil, &InvalidCronError{Field: fb.name, Raw: tok, Msg: "empty comma-separated entry"}
		}

		rangePart := part
		step := 1
		if idx := strings.IndexByte(part, '/'); idx >= 0 {
			rangePart = part[:idx]
			stepStr := part[idx+1:]
			n, err := strconv.Atoi(stepStr)
			if err != nil || n <= 0 {
				return nil, &InvalidCronError{Field: fb.name, Raw: tok, Msg: "invalid step"}
			}
			step = n
		}

		var begin, end int
		switch {
		case rangePart == "*":
			begin, end = fb.min, fb.max
		case strings.Contains(rangePart, "-"):
			parts := strings.SplitN(rangePart, "-", 2)
			b, err := strconv.Atoi(parts[0])
			if err != nil {
				return nil, &InvalidCronError{Field: fb.name, Raw: tok, Msg: "invalid range start"}
			}
			e, err := strconv.Atoi(parts[1])
			if err != nil {
				return nil, &InvalidCronError{Field: fb.name, Raw: tok, Msg: "invalid range end"}
			}
			begin, end = b, e
		default:
			n, err := strconv.Atoi(rangePart)
			if err != nil {
				return nil, &InvalidCronError{Field: fb.name, Raw: tok, Msg: "invalid integer"}
			}
			begin, end = n, n
		}

		if begin < fb.min || begin > fb.max || end < fb.min || end > fb.max {
			return nil, &InvalidCronError{Field: fb.name, Raw: tok, Msg: "value out of range"}
		}
		if end < begin {
			return nil, &InvalidCronError{Field: fb.name, Raw: tok, Msg: "range end before begin"}
		}

		for i := begin; i <= end; i++ {
			if (i-begin)%step == 0 {
				seen[i] = true
			}
		}
	}

	out := make([]int, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Ints(out)
	return out, nil
}

// nextInSet returns the smallest element of set that is >= from, and whether
// one was found. set must be sorted ascending.
func nextInSet(set []int, from int) (int, bool) {
	for _, v := range set {
		if v >= from {
			return v, true
		}
	}
	return 0, false
}

// NextFire returns the smallest instant strictly after t whose minute, hour,
// day, month and weekday all belong to the expression's sets. If the
// matching hour does not exist on the candidate day (a DST gap), the first
// existing instant after the gap is returned.
func (e *Expression) NextFire(t time.Time) time.Time {
	weekdayRelevant := len(e.weekday) != 7
	dateRelevant := len(e.day) != 31 || len(e.month) != 12

	// Truncate sub-minute precision away and start searching one minute later.
	cur := t.Truncate(time.Minute).Add(time.Minute)

	// Bound the search so an unsatisfiable expression (day=31 in a
	// month-set excluding every 31-day month) terminates instead of
	// looping forever.
	limit := cur.AddDate(2, 0, 0)

	for cur.Before(limit) {
		if !e.monthMatches(cur.Month()) {
			y, m := cur.Year(), cur.Month()
			cur = time.Date(y, m, 1, 0, 0, 0, 0, cur.Location()).AddDate(0, 1, 0)
			continue
		}
		if !e.dayMatches(cur.Day(), cur.Weekday(), weekdayRelevant, dateRelevant) {
			y, m, d := cur.Date()
			cur = time.Date(y, m, d, 0, 0, 0, 0, cur.Location()).AddDate(0, 0, 1)
			continue
		}
		if !e.hourMatches(cur.Hour()) {
			nh, ok := nextInSet(e.hour, cur.Hour()+1)
			if !ok {
				y, m, d := cur.Date()
				cur = time.Date(y, m, d, 0, 0, 0, 0, cur.Location()).AddDate(0, 0, 1)
				continue
			}
			y, m, d := cur.Date()
			next := time.Date(y, m, d, nh, 0, 0, 0, cur.Location())
			if next.Hour() != nh {
				// Hour nh does not exist on this day (a DST gap); time.Date
				// has moved it to another hour. Fire at the first instant
				// after the gap instead.
				_, end := next.ZoneBounds()
				return end
			}
			cur = next
			continue
		}
		if !e.minuteMatches(cur.Minute()) {
			nm, ok := nextInSet(e.minute, cur.Minute())
			if !ok {
				cur = time.Date(cur.Year(), cur.Month(), cur.Day(), cur.Hour(), 0, 0, 0, cur.Location()).Add(time.Hour)
				continue
			}
			cur = time.Date(cur.Year(), cur.Month(), cur.Day(), cur.Hour(), nm, 0, 0, cur.Location())
			continue
		}
		return cur
	}

	// Unsatisfiable expression; return the search limit rather than
	// hanging forever.
	return limit
}

func (e *Expression) minuteMatches(m int) bool { return contains(e.minute, m) }
func (e *Expression) hourMatches(h int) bool   { return contains(e.hour, h) }
func (e *Expression) monthMatches(mo time.Month) bool {
	return contains(e.month, int(mo))
}

// dayMatches combines day-of-month and day-of-week by intersection, per this
// package's documented deviation from cron(5).
func (e *Expression) dayMatches(day int, wd time.Weekday, weekdayRelevant, dateRelevant bool) bool {
	dayOK := contains(e.day, day)
	weekdayOK := contains(e.weekday, int(wd))
	switch {
	case weekdayRelevant && dateRelevant:
		return dayOK && weekdayOK
	case dateRelevant:
		return dayOK
	case weekdayRelevant:
		return weekdayOK
	default:
		return true
	}
}

func contains(set []int, v int) bool {
	_, ok := nextInSetExact(set, v)
	return ok
}

func nextInSetExact(set []int, v int) (int, bool) {
	i := sort.SearchInts(set, v)
	if i < len(set) && set[i] == v {
		return v, true
	}
	return 0, false
}

