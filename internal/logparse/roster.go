package logparse

import (
	"iter"
	"strconv"
	"strings"
)

// RosterEntry is one line of a tab-delimited raid roster dump:
// group, name, level, class, then free-form flags.
type RosterEntry struct {
	Line  int
	Group *int
	Name  string
	Level *int
	Class Class
	Flags string
}

// ParseRoster yields roster entries in line order. Lines with fewer than two
// tab-delimited fields, or with a blank name, are skipped. Non-numeric group and
// level fields degrade to nil instead of rejecting the line.
func ParseRoster(text string) iter.Seq[RosterEntry] {
	return func(yield func(RosterEntry) bool) {
		for n, line := range Lines(text) {
			entry, ok := parseRosterLine(n, line)
			if !ok {
				continue
			}
			if !yield(entry) {
				return
			}
		}
	}
}

func parseRosterLine(n int, line string) (RosterEntry, bool) {
	fields := strings.Split(line, "\t")
	if len(fields) < 2 {
		return RosterEntry{}, false
	}
	name := strings.TrimSpace(fields[1])
	if name == "" {
		return RosterEntry{}, false
	}

	entry := RosterEntry{
		Line:  n,
		Group: optionalInt(fields[0]),
		Name:  name,
		Class: ClassUnknown,
	}
	if len(fields) > 2 {
		entry.Level = optionalInt(fields[2])
	}
	if len(fields) > 3 {
		entry.Class = ResolveClass(fields[3])
	}
	if len(fields) > 4 {
		var flags []string
		for _, f := range fields[4:] {
			if f = strings.TrimSpace(f); f != "" {
				flags = append(flags, f)
			}
		}
		entry.Flags = strings.Join(flags, ",")
	}
	return entry, true
}

func optionalInt(raw string) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &v
}
