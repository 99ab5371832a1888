package schedule

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// SeedEntry is one row of a schedule seed file, with human-friendly time
// ("7:30a", "12:00pm") and weekday ("Mon", "Mon-Fri", "Any") notation.
type SeedEntry struct {
	Time    string                `yaml:"time"`
	Day     string                `yaml:"day"`
	Low     float64               `yaml:"low"`
	High    float64               `yaml:"high"`
	Fan     FanSpeed              `yaml:"fan"`
	Trigger []string              `yaml:"trigger"`
	Rooms   map[string]RoomWeight `yaml:"rooms"`
}

// Load reads a schedule seed file. Rows with unparsable times or weekdays
// are dropped with a warning; the rest load normally.
func Load(r io.Reader, logger *slog.Logger) ([]Entry, error) {
	var seed []SeedEntry
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil {
		return nil, fmt.Errorf("invalid schedule file: %w", err)
	}
	return Build(seed, logger), nil
}

// Build expands seed rows into sorted schedule entries, one per matching
// weekday.
func Build(seed []SeedEntry, logger *slog.Logger) []Entry {
	var entries []Entry
	for _, row := range seed {
		minute, err := parseTime(row.Time)
		if err == nil {
			var days []time.Weekday
			days, err = parseDays(row.Day)
			if err == nil {
				for _, day := range days {
					entries = append(entries, Entry{
						WeekMinute: int(day)*MinutesPerDay + minute,
						Low:        row.Low,
						High:       row.High,
						Fan:        row.Fan,
						Trigger:    row.Trigger,
						Rooms:      row.Rooms,
					})
				}
			}
		}
		if err != nil {
			logger.Warn("dropping bad schedule row", slog.String("time", row.Time), slog.String("day", row.Day), slog.Any("err", err))
		}
	}
	return Normalize(entries, logger)
}

var timeRE = regexp.MustCompile(`^(\d+):(\d+)([ap])m?$`)

// parseTime converts "12:00am", "1:10am" or "2:05p" to a minute of day.
func parseTime(s string) (int, error) {
	m := timeRE.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour < 1 || hour > 12 || minute > 59 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	if hour == 12 {
		hour = 0
	}
	if m[3] == "p" {
		hour += 12
	}
	return hour*60 + minute, nil
}

var dayNames = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// parseDays expands "Mon", "Mon-Wed", "Fri-Mon" or "Any" to weekdays,
// wrapping ranges across the weekend.
func parseDays(s string) ([]time.Weekday, error) {
	if s == "Any" {
		return []time.Weekday{time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday}, nil
	}
	from, to := s, s
	for i := 1; i < len(s)-1; i++ {
		if s[i] == '-' {
			from, to = s[:i], s[i+1:]
			break
		}
	}
	first, last := indexOfDay(from), indexOfDay(to)
	if first == -1 || last == -1 {
		return nil, fmt.Errorf("invalid weekday range %q", s)
	}
	if last < first {
		last += 7
	}
	days := make([]time.Weekday, 0, last-first+1)
	for i := first; i <= last; i++ {
		days = append(days, time.Weekday(i%7))
	}
	return days, nil
}

func indexOfDay(name string) int {
	for i, n := range dayNames {
		if n == name {
			return i
		}
	}
	return -1
}

// ParseWeekday accepts full ("Monday") or abbreviated ("Mon") weekday names.
func ParseWeekday(name string) (time.Weekday, error) {
	for i := time.Sunday; i <= time.Saturday; i++ {
		if name == i.String() || name == dayNames[i] {
			return i, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", name)
}
