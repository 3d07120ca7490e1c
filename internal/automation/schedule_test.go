package automation

import (
	"testing"
	"time"
	_ "time/tzdata"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in     string
		h, m   int
		wantOK bool
	}{
		{"07:00", 7, 0, true},
		{"7:05", 7, 5, true},
		{" 23:59 ", 23, 59, true},
		{"24:00", 0, 0, false},
		{"12:60", 0, 0, false},
		{"12:5", 0, 0, false},
		{"noon", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tt := range tests {
		h, m, ok := ParseClock(tt.in)
		if ok != tt.wantOK || h != tt.h || m != tt.m {
			t.Errorf("ParseClock(%q) = %d, %d, %v; want %d, %d, %v", tt.in, h, m, ok, tt.h, tt.m, tt.wantOK)
		}
	}
	if got := FormatClock(7, 5); got != "07:05" {
		t.Errorf("FormatClock(7, 5) = %q", got)
	}
}

func at(day, hour, minute int) time.Time {
	return time.Date(2026, 6, day, hour, minute, 0, 0, time.UTC)
}

// currentRule returns the rule at the earliest timestamp.
func currentRule(r EpochRules) any {
	times := r.Times()
	if len(times) == 0 {
		return nil
	}
	return r[times[0]]
}

func TestConvertRules_ReselectsCurrent(t *testing.T) {
	schedule := map[string]any{"07:00": 80, "19:00": 20}

	tests := []struct {
		now     time.Time
		current any
		first   time.Time
	}{
		{at(10, 6, 59), 20, at(9, 19, 0)},
		{at(10, 7, 0), 80, at(10, 7, 0)},
		{at(10, 18, 0), 80, at(10, 7, 0)},
		{at(10, 19, 30), 20, at(10, 19, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.now.Format("15:04"), func(t *testing.T) {
			rules := ConvertRules(schedule, nil, tt.now, nil)
			if got := currentRule(rules); got != tt.current {
				t.Errorf("current rule = %v, want %v", got, tt.current)
			}
			times := rules.Times()
			if times[0] != tt.first.Unix() {
				t.Errorf("current at %v, want %v", time.Unix(times[0], 0).UTC(), tt.first)
			}
			for _, ts := range times[1:] {
				if ts <= tt.now.Unix() {
					t.Errorf("past entry %v kept", time.Unix(ts, 0).UTC())
				}
			}
		})
	}
}

func TestConvertRules_EntryCount(t *testing.T) {
	// Two keys give six timestamps; at 23:30 four are past and one survives.
	rules := ConvertRules(map[string]any{"10:00": 50, "22:00": 0}, nil, at(1, 23, 30), nil)
	want := map[int64]any{
		at(1, 22, 0).Unix(): 0,
		at(2, 10, 0).Unix(): 50,
		at(2, 22, 0).Unix(): 0,
	}
	if len(rules) != len(want) {
		t.Fatalf("len = %d, want %d: %v", len(rules), len(want), rules)
	}
	for ts, rule := range want {
		if rules[ts] != rule {
			t.Errorf("rules[%v] = %v, want %v", time.Unix(ts, 0).UTC(), rules[ts], rule)
		}
	}
}

func TestConvertRules_KeywordShift(t *testing.T) {
	schedule := map[string]any{"19:00": 10, "evening": 20}
	keywords := map[string]string{"evening": "19:00"}

	rules := ConvertRules(schedule, keywords, at(10, 12, 0), nil)
	base := at(10, 19, 0).Unix()
	if rules[base] != 10 {
		t.Errorf("19:00 = %v, want the literal rule 10", rules[base])
	}
	if rules[base+1] != 20 {
		t.Errorf("19:00:01 = %v, want the keyword rule 20", rules[base+1])
	}
}

func TestConvertRules_SkipsInvalidKeys(t *testing.T) {
	schedule := map[string]any{"25:00": 1, "bogus": 2, "broken": 3, "07:00": 4}
	keywords := map[string]string{"broken": "late"}

	rules := ConvertRules(schedule, keywords, at(10, 12, 0), nil)
	for ts, rule := range rules {
		if rule != 4 {
			t.Errorf("unexpected rule %v at %v", rule, time.Unix(ts, 0).UTC())
		}
	}
	if len(rules) != 2 {
		t.Errorf("len = %d, want today's current plus tomorrow", len(rules))
	}
}

func TestConvertRules_Empty(t *testing.T) {
	if rules := ConvertRules(nil, nil, at(10, 12, 0), nil); len(rules) != 0 {
		t.Errorf("ConvertRules(nil) = %v", rules)
	}
}

func TestConvertRules_DaylightSaving(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Fatal(err)
	}
	// Clocks go forward at 01:00 on 29 March 2026.
	now := time.Date(2026, 3, 29, 0, 30, 0, 0, london)
	rules := ConvertRules(map[string]any{"07:00": 1}, nil, now, nil)

	times := rules.Times()
	if len(times) != 3 {
		t.Fatalf("len = %d, want 3", len(times))
	}
	for _, ts := range times {
		if got := time.Unix(ts, 0).In(london).Format("15:04"); got != "07:00" {
			t.Errorf("entry at %s local, want 07:00", got)
		}
	}
	if gap := time.Duration(times[1]-times[0]) * time.Second; gap != 23*time.Hour {
		t.Errorf("gap across the change = %v, want 23h", gap)
	}
}
