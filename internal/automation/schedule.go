package automation

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// EpochRules maps Unix seconds to the rule that takes effect then.
type EpochRules map[int64]any

// Times returns the timestamps in ascending order.
func (r EpochRules) Times() []int64 {
	times := make([]int64, 0, len(r))
	for ts := range r {
		times = append(times, ts)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	return times
}

// ParseClock parses a wall-clock "HH:MM" (or "H:MM") key.
func ParseClock(s string) (hour, minute int, ok bool) {
	h, m, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found || len(h) < 1 || len(h) > 2 || len(m) != 2 {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, false
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

// FormatClock renders hour and minute as "HH:MM".
func FormatClock(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", hour, minute)
}

// ConvertRules compiles a schedule into epoch rules relative to now, in
// now's location.
//
// Keyword keys are resolved through keywords. Each time yields three
// timestamps: yesterday, today and tomorrow. Literal HH:MM keys are placed
// before keywords, and a key landing on an occupied timestamp moves one
// second later until it is free. The result keeps the latest timestamp at
// or before now (the current rule) plus every later one.
//
// Keys that are neither HH:MM nor a known keyword are logged and skipped.
func ConvertRules(schedule map[string]any, keywords map[string]string, now time.Time, logger Logger) EpochRules {
	if logger == nil {
		logger = noopLogger{}
	}

	var literal, named []string
	for key := range schedule {
		if _, _, ok := ParseClock(key); ok {
			literal = append(literal, key)
		} else {
			named = append(named, key)
		}
	}
	sort.Strings(literal)
	sort.Strings(named)

	out := make(EpochRules, 3*len(schedule))
	y, mo, d := now.Date()
	place := func(hour, minute int, rule any) {
		for _, offset := range []int{-1, 0, 1} {
			ts := time.Date(y, mo, d+offset, hour, minute, 0, 0, now.Location()).Unix()
			for {
				if _, taken := out[ts]; !taken {
					break
				}
				ts++
			}
			out[ts] = rule
		}
	}

	for _, key := range literal {
		h, m, _ := ParseClock(key)
		place(h, m, schedule[key])
	}
	for _, key := range named {
		clock, ok := keywords[key]
		if !ok {
			logger.Warn("skipping schedule rule with unknown time", "time", key)
			continue
		}
		h, m, ok := ParseClock(clock)
		if !ok {
			logger.Warn("skipping schedule rule with invalid keyword time", "keyword", key, "time", clock)
			continue
		}
		place(h, m, schedule[key])
	}

	cutoff := now.Unix()
	var current int64
	found := false
	for ts := range out {
		if ts <= cutoff && (!found || ts > current) {
			current, found = ts, true
		}
	}
	for ts := range out {
		if ts <= cutoff && ts != current {
			delete(out, ts)
		}
	}
	return out
}
