package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DaySet is a bitmask of weekdays, bit 0 = Sunday through bit 6 = Saturday.
type DaySet uint8

// Add marks a weekday as part of the set.
func (s DaySet) Add(d time.Weekday) DaySet { return s | 1<<uint(d) }

// Has reports whether the weekday is in the set.
func (s DaySet) Has(d time.Weekday) bool { return s&(1<<uint(d)) != 0 }

// Rule is one parsed schedule segment: a set of weekdays plus a start and
// end expressed as minutes since midnight. End < Start means the window
// spans midnight into the next day.
type Rule struct {
	Days  DaySet
	Start int
	End   int
}

// Skip records a schedule segment that could not be parsed and why. Bad
// segments are dropped rather than failing the whole schedule.
type Skip struct {
	Segment string
	Reason  string
}

var dayTokens = map[string]DaySet{
	"SUNDAY":    DaySet(0).Add(time.Sunday),
	"MONDAY":    DaySet(0).Add(time.Monday),
	"TUESDAY":   DaySet(0).Add(time.Tuesday),
	"WEDNESDAY": DaySet(0).Add(time.Wednesday),
	"THURSDAY":  DaySet(0).Add(time.Thursday),
	"FRIDAY":    DaySet(0).Add(time.Friday),
	"SATURDAY":  DaySet(0).Add(time.Saturday),
	"MWF":       DaySet(0).Add(time.Monday).Add(time.Wednesday).Add(time.Friday),
	"TTH":       DaySet(0).Add(time.Tuesday).Add(time.Thursday),
	"WEEKDAYS":  DaySet(0).Add(time.Monday).Add(time.Tuesday).Add(time.Wednesday).Add(time.Thursday).Add(time.Friday),
	"WEEKEND":   DaySet(0).Add(time.Saturday).Add(time.Sunday),
}

// Parse turns a schedule string like "MWF 09:00 AM - 11:00 AM; TTH 01:00 PM - 02:30 PM"
// into rules. It never fails: each malformed segment becomes a Skip entry and the
// rest of the schedule still parses. An empty rule list means never in session.
func Parse(s string) ([]Rule, []Skip) {
	var rules []Rule
	var skipped []Skip
	for _, seg := range strings.Split(s, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		rule, reason := parseSegment(seg)
		if reason != "" {
			skipped = append(skipped, Skip{Segment: seg, Reason: reason})
			continue
		}
		rules = append(rules, rule)
	}
	return rules, skipped
}

func parseSegment(seg string) (Rule, string) {
	// Day token is everything up to the first whitespace run.
	fields := strings.Fields(seg)
	if len(fields) < 2 {
		return Rule{}, "missing time range"
	}
	days, ok := dayTokens[strings.ToUpper(fields[0])]
	if !ok {
		return Rule{}, fmt.Sprintf("unknown day token %q", fields[0])
	}

	timeRange := strings.TrimSpace(seg[len(fields[0]):])
	parts := strings.Split(timeRange, "-")
	if len(parts) != 2 {
		return Rule{}, fmt.Sprintf("time range %q must be <start> - <end>", timeRange)
	}
	start, err := parseClock(strings.TrimSpace(parts[0]))
	if err != nil {
		return Rule{}, "start time: " + err.Error()
	}
	end, err := parseClock(strings.TrimSpace(parts[1]))
	if err != nil {
		return Rule{}, "end time: " + err.Error()
	}
	return Rule{Days: days, Start: start, End: end}, ""
}

// parseClock parses "H:MM AM" / "HH:MM PM" into minutes since midnight.
func parseClock(tok string) (int, error) {
	fields := strings.Fields(tok)
	if len(fields) != 2 {
		return 0, fmt.Errorf("%q is not H:MM AM|PM", tok)
	}
	hm := strings.Split(fields[0], ":")
	if len(hm) != 2 {
		return 0, fmt.Errorf("%q is not H:MM", fields[0])
	}
	hour, err := strconv.Atoi(hm[0])
	if err != nil || hour < 1 || hour > 12 {
		return 0, fmt.Errorf("hour %q out of range 1-12", hm[0])
	}
	minute, err := strconv.Atoi(hm[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("minute %q out of range 0-59", hm[1])
	}
	switch strings.ToUpper(fields[1]) {
	case "AM":
		if hour == 12 {
			hour = 0
		}
	case "PM":
		if hour != 12 {
			hour += 12
		}
	default:
		return 0, fmt.Errorf("suffix %q must be AM or PM", fields[1])
	}
	return hour*60 + minute, nil
}

// InSession reports whether any rule covers the given weekday and minute of
// day. Windows are inclusive at both ends; overnight rules match from Start
// until midnight and from midnight until End.
func InSession(rules []Rule, day time.Weekday, minute int) bool {
	for _, r := range rules {
		if !r.Days.Has(day) {
			continue
		}
		if r.End < r.Start {
			if minute >= r.Start || minute <= r.End {
				return true
			}
		} else if minute >= r.Start && minute <= r.End {
			return true
		}
	}
	return false
}

// InSessionAt evaluates the rules against the local wall-clock fields of t.
func InSessionAt(rules []Rule, t time.Time) bool {
	return InSession(rules, t.Weekday(), t.Hour()*60+t.Minute())
}
