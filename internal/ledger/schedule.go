package ledger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Schedule restricts attendance logging to class hours. Windows compare the
// event's UTC wall-clock time ("15:04") against inclusive start/end bounds
// on the named weekday.
type Schedule struct {
	Course  string   `yaml:"course"`
	Windows []Window `yaml:"windows"`
}

// Window is one weekly time slot.
type Window struct {
	Weekday string `yaml:"weekday"`
	Start   string `yaml:"start"`
	End     string `yaml:"end"`
}

// LoadSchedule reads and validates a schedule from a yaml file.
func LoadSchedule(path string) (*Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule file: %w", err)
	}
	return ParseSchedule(data)
}

// ParseSchedule parses and validates yaml schedule data.
func ParseSchedule(data []byte) (*Schedule, error) {
	var s Schedule
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse schedule: %w", err)
	}
	if len(s.Windows) == 0 {
		return nil, fmt.Errorf("schedule has no windows")
	}
	for i, w := range s.Windows {
		if _, err := parseWeekday(w.Weekday); err != nil {
			return nil, fmt.Errorf("window %d: %w", i, err)
		}
		for _, v := range []string{w.Start, w.End} {
			if _, err := time.Parse("15:04", v); err != nil {
				return nil, fmt.Errorf("window %d: invalid time %q: %w", i, v, err)
			}
		}
		if w.End < w.Start {
			return nil, fmt.Errorf("window %d: end %q before start %q", i, w.End, w.Start)
		}
	}
	return &s, nil
}

// Allows reports whether t falls inside any window.
func (s *Schedule) Allows(t time.Time) bool {
	t = t.UTC()
	clock := t.Format("15:04")
	for _, w := range s.Windows {
		day, _ := parseWeekday(w.Weekday)
		if t.Weekday() != day {
			continue
		}
		// "15:04" strings are fixed width, string order is time order.
		if w.Start <= clock && clock <= w.End {
			return true
		}
	}
	return false
}

func parseWeekday(name string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), name) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", name)
}
