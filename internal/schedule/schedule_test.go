package schedule

import (
	"testing"
	"time"
)

func TestParseSingleSegment(t *testing.T) {
	rules, skipped := Parse("Monday 09:00 AM - 11:00 AM")
	if len(skipped) != 0 {
		t.Fatalf("unexpected skips: %v", skipped)
	}
	if len(rules) != 1 {
		t.Fatalf("want 1 rule, got %d", len(rules))
	}
	r := rules[0]
	if !r.Days.Has(time.Monday) || r.Days.Has(time.Tuesday) {
		t.Errorf("day set wrong: %08b", r.Days)
	}
	if r.Start != 9*60 || r.End != 11*60 {
		t.Errorf("window = %d-%d, want 540-660", r.Start, r.End)
	}
}

func TestParseCompositeTokens(t *testing.T) {
	tests := []struct {
		token string
		want  []time.Weekday
	}{
		{"MWF", []time.Weekday{time.Monday, time.Wednesday, time.Friday}},
		{"TTH", []time.Weekday{time.Tuesday, time.Thursday}},
		{"WEEKDAYS", []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}},
		{"WEEKEND", []time.Weekday{time.Saturday, time.Sunday}},
		{"mwf", []time.Weekday{time.Monday, time.Wednesday, time.Friday}}, // case-insensitive
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			rules, skipped := Parse(tt.token + " 08:00 AM - 09:00 AM")
			if len(skipped) != 0 || len(rules) != 1 {
				t.Fatalf("rules=%d skips=%v", len(rules), skipped)
			}
			var want DaySet
			for _, d := range tt.want {
				want = want.Add(d)
			}
			if rules[0].Days != want {
				t.Errorf("days = %08b, want %08b", rules[0].Days, want)
			}
		})
	}
}

func TestParseClockConversion(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"12:00 AM", 0},
		{"12:30 am", 30},
		{"12:00 PM", 12 * 60},
		{"1:00 PM", 13 * 60},
		{"11:59 PM", 23*60 + 59},
		{"9:05 AM", 9*60 + 5},
	}
	for _, tt := range tests {
		got, err := parseClock(tt.in)
		if err != nil {
			t.Errorf("parseClock(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseClock(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseSkipsBadSegments(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"unknown day", "Funday 09:00 AM - 11:00 AM"},
		{"hour out of range", "Monday 13:00 AM - 02:00 PM"},
		{"minute out of range", "Monday 9:60 AM - 11:00 AM"},
		{"missing suffix", "Monday 9:00 - 11:00"},
		{"bad suffix", "Monday 9:00 XM - 11:00 AM"},
		{"no time range", "Monday"},
		{"one-sided range", "Monday 9:00 AM -"},
		{"24-hour style", "Monday 09:00 - 17:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules, skipped := Parse(tt.in)
			if len(rules) != 0 {
				t.Errorf("want 0 rules, got %d", len(rules))
			}
			if len(skipped) != 1 {
				t.Fatalf("want 1 skip, got %d", len(skipped))
			}
			if skipped[0].Reason == "" {
				t.Error("skip reason must not be empty")
			}
		})
	}
}

func TestParseBadSegmentDoesNotPoisonRest(t *testing.T) {
	rules, skipped := Parse("Funday 09:00 AM - 10:00 AM; TTH 01:00 PM - 02:30 PM; ;")
	if len(rules) != 1 {
		t.Fatalf("want 1 rule, got %d", len(rules))
	}
	if len(skipped) != 1 {
		t.Fatalf("want 1 skip, got %d: %v", len(skipped), skipped)
	}
	if !rules[0].Days.Has(time.Thursday) {
		t.Error("surviving rule should be the TTH segment")
	}
}

func TestParseEmptyString(t *testing.T) {
	rules, skipped := Parse("")
	if len(rules) != 0 || len(skipped) != 0 {
		t.Errorf("empty schedule: rules=%d skips=%d", len(rules), len(skipped))
	}
}

func TestInSession(t *testing.T) {
	rules, _ := Parse("MWF 09:00 AM - 11:00 AM")
	tests := []struct {
		name   string
		day    time.Weekday
		minute int
		want   bool
	}{
		{"Wednesday mid-window", time.Wednesday, 10 * 60, true},
		{"Monday at start", time.Monday, 9 * 60, true},
		{"Friday at end", time.Friday, 11 * 60, true},
		{"Wednesday one past end", time.Wednesday, 11*60 + 1, false},
		{"Tuesday mid-window time", time.Tuesday, 8*60 + 30, false},
		{"Sunday", time.Sunday, 10 * 60, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InSession(rules, tt.day, tt.minute); got != tt.want {
				t.Errorf("InSession(%v, %d) = %v, want %v", tt.day, tt.minute, got, tt.want)
			}
		})
	}
}

func TestInSessionOvernight(t *testing.T) {
	rules, skipped := Parse("Friday 10:00 PM - 02:00 AM")
	if len(skipped) != 0 {
		t.Fatalf("unexpected skips: %v", skipped)
	}
	tests := []struct {
		name   string
		day    time.Weekday
		minute int
		want   bool
	}{
		{"Friday 11 PM", time.Friday, 23 * 60, true},
		{"Friday 10 PM start", time.Friday, 22 * 60, true},
		// The rule matches the start day; 01:00 "Saturday" is still within
		// the Friday session's wrap-around window.
		{"Friday 01:00 side", time.Friday, 60, true},
		{"Friday 9 PM", time.Friday, 21 * 60, false},
		{"Friday 02:01", time.Friday, 2*60 + 1, false},
		{"Thursday 11 PM", time.Thursday, 23 * 60, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InSession(rules, tt.day, tt.minute); got != tt.want {
				t.Errorf("InSession(%v, %d) = %v, want %v", tt.day, tt.minute, got, tt.want)
			}
		})
	}
}

func TestInSessionMultipleSegments(t *testing.T) {
	rules, _ := Parse("MWF 09:00 AM - 11:00 AM; TTH 01:00 PM - 02:30 PM")
	if !InSession(rules, time.Thursday, 13*60+15) {
		t.Error("Thursday 1:15 PM should match the TTH segment")
	}
	if !InSession(rules, time.Monday, 10*60) {
		t.Error("Monday 10:00 AM should match the MWF segment")
	}
	if InSession(rules, time.Monday, 13*60+15) {
		t.Error("Monday 1:15 PM matches neither segment")
	}
}

func TestInSessionNoRules(t *testing.T) {
	if InSession(nil, time.Monday, 10*60) {
		t.Error("empty rule set must never be in session")
	}
}

func TestInSessionAt(t *testing.T) {
	rules, _ := Parse("Wednesday 09:00 AM - 11:00 AM")
	// 2026-01-07 is a Wednesday.
	at := time.Date(2026, 1, 7, 10, 0, 0, 0, time.Local)
	if !InSessionAt(rules, at) {
		t.Errorf("expected in session at %v", at)
	}
	if InSessionAt(rules, at.Add(24*time.Hour)) {
		t.Error("Thursday must be out of session")
	}
}
