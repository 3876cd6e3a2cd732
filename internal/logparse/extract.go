package logparse

import (
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"
)

// EventKind is the kind of observable event a template describes.
type EventKind string

const (
	EventKill EventKind = "kill"
	EventLoot EventKind = "loot"
	EventZone EventKind = "zone"
)

// matchOrder fixes which kind wins when a line matches several templates.
var matchOrder = []EventKind{EventKill, EventLoot, EventZone}

// TimestampLayout is the game client's log timestamp format, e.g. "Mon Jan 02 15:04:05 2006".
const TimestampLayout = "Mon Jan 02 15:04:05 2006"

// Event is one structured candidate event extracted from a log line.
type Event struct {
	Kind      EventKind
	Line      int // 1-based line number in the uploaded text
	Raw       string
	Timestamp time.Time // zero when the line has no parseable timestamp
	Captures  map[string]string
}

// Field returns a named capture, or "".
func (e Event) Field(name string) string {
	return e.Captures[name]
}

// ItemID returns the captured item id, if any.
func (e Event) ItemID() (int, bool) {
	raw := e.Captures["itemId"]
	if raw == "" {
		return 0, false
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return id, true
}

type kindMatcher struct {
	kind    EventKind
	matcher *Matcher
}

// Extractor applies a guild's compiled templates to log text.
type Extractor struct {
	matchers []kindMatcher
	location *time.Location
}

// NewExtractor compiles every template once. Blank templates are skipped.
func NewExtractor(templates Templates, loc *time.Location) (*Extractor, error) {
	if loc == nil {
		loc = time.UTC
	}
	x := &Extractor{location: loc}
	for _, kind := range matchOrder {
		for _, tpl := range templates[kind] {
			p := CompileTemplate(tpl)
			if p.Kind == PatternNone {
				continue
			}
			m, err := p.Matcher()
			if err != nil {
				return nil, fmt.Errorf("%s template: %w", kind, err)
			}
			x.matchers = append(x.matchers, kindMatcher{kind: kind, matcher: m})
		}
	}
	return x, nil
}

// Events yields one event per matching line, in line order. Lines that match no
// template are dropped. The sequence is lazy and can be ranged over repeatedly.
func (x *Extractor) Events(text string) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for n, line := range Lines(text) {
			ev, ok := x.match(n, line)
			if !ok {
				continue
			}
			if !yield(ev) {
				return
			}
		}
	}
}

func (x *Extractor) match(n int, line string) (Event, bool) {
	for _, km := range x.matchers {
		captures, ok := km.matcher.Match(line)
		if !ok {
			continue
		}
		ev := Event{Kind: km.kind, Line: n, Raw: line, Captures: captures}
		if ts, ok := ParseTimestamp(captures["timestamp"], x.location); ok {
			ev.Timestamp = ts
		}
		return ev, true
	}
	return Event{}, false
}

// ParseTimestamp parses a log timestamp blob. Surrounding brackets are tolerated.
func ParseTimestamp(raw string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), "[]"))
	if raw == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	ts, err := time.ParseInLocation(TimestampLayout, raw, loc)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// Lines yields 1-based line numbers and lines with "\n" or "\r\n" stripped.
func Lines(text string) iter.Seq2[int, string] {
	return func(yield func(int, string) bool) {
		n := 0
		for line := range strings.Lines(text) {
			n++
			if !yield(n, strings.TrimRight(line, "\r\n")) {
				return
			}
		}
	}
}
