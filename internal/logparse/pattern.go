// Package logparse turns raw game log text into structured candidate events.
package logparse

import (
	"fmt"
	"regexp"
	"strings"
)

// PatternKind describes what a compiled template can be used for.
type PatternKind int

const (
	PatternNone    PatternKind = iota // blank template: nothing configured
	PatternLiteral                    // no placeholders: Source is a substring hint
	PatternRegex                      // Source is a regular expression with named groups
)

// Pattern is the output of CompileTemplate. Compilation is a pure string transform;
// Matcher turns it into something that can be applied to lines.
type Pattern struct {
	Kind   PatternKind
	Source string
}

// placeholderPatterns maps a lowercased placeholder name to its capture construct.
// Capture names are part of the contract: extracted fields are looked up by them.
var placeholderPatterns = map[string]string{
	"timestamp": `(?P<timestamp>[^\]]+)`,
	"looter":    `(?P<looter>.+?)`,
	"item":      `(?P<item>[^\r\n]+?)`,
	"method":    `(?P<method>[^\r\n]+?)`,
	"itemid":    `(?P<itemId>\d{1,10})`,
	"npc":       `(?P<npc>.+?)`,
	"killer":    `(?P<killer>.+?)`,
	"zone":      `(?P<zone>.+?)`,
}

// CompileTemplate converts a template such as
//
//	"[{timestamp}] {looter} has looted {item} from a corpse.-{method}"
//
// into a pattern. Recognised placeholders (case-insensitive) become named
// captures, literal text is escaped, and runs of whitespace match one or more
// whitespace characters. Unrecognised placeholders stay literal text. A template
// without any recognised placeholder is returned trimmed as a literal hint.
func CompileTemplate(template string) Pattern {
	t := strings.TrimSpace(template)
	if t == "" {
		return Pattern{Kind: PatternNone}
	}

	var b strings.Builder
	captured := false
	inSpace := false
	for i := 0; i < len(t); {
		c := t[i]
		if isSpace(c) {
			if !inSpace {
				b.WriteString(`\s+`)
				inSpace = true
			}
			i++
			continue
		}
		inSpace = false

		if c == '{' {
			if end := strings.IndexByte(t[i+1:], '}'); end >= 0 {
				name := t[i+1 : i+1+end]
				if sub, ok := placeholderPatterns[strings.ToLower(name)]; ok {
					b.WriteString(sub)
					captured = true
					i += end + 2
					continue
				}
			}
		}
		writeEscaped(&b, c)
		i++
	}

	if !captured {
		return Pattern{Kind: PatternLiteral, Source: t}
	}
	// Anchor both ends: a template describes the whole trimmed line, and the end
	// anchor makes trailing lazy captures consume the rest of it.
	return Pattern{Kind: PatternRegex, Source: `^\s*` + b.String() + `\s*$`}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

// writeEscaped writes c so that it matches itself literally.
func writeEscaped(b *strings.Builder, c byte) {
	switch c {
	case '\\', '.', '+', '*', '?', '(', ')', '|', '[', ']', '{', '}', '^', '$':
		b.WriteByte('\\')
	}
	b.WriteByte(c)
}

// Matcher applies a compiled Pattern to single lines.
type Matcher struct {
	kind    PatternKind
	literal string
	re      *regexp.Regexp
	names   []string
}

// Matcher builds a line matcher. A PatternNone matcher never matches.
func (p Pattern) Matcher() (*Matcher, error) {
	m := &Matcher{kind: p.Kind}
	switch p.Kind {
	case PatternNone:
	case PatternLiteral:
		m.literal = p.Source
	case PatternRegex:
		re, err := regexp.Compile(p.Source)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p.Source, err)
		}
		m.re = re
		m.names = re.SubexpNames()
	default:
		return nil, fmt.Errorf("unknown pattern kind %d", p.Kind)
	}
	return m, nil
}

// Match returns the named captures of line. Literal matchers return an empty,
// non-nil map on a hit.
func (m *Matcher) Match(line string) (map[string]string, bool) {
	switch m.kind {
	case PatternLiteral:
		if strings.Contains(line, m.literal) {
			return map[string]string{}, true
		}
		return nil, false
	case PatternRegex:
		sub := m.re.FindStringSubmatch(line)
		if sub == nil {
			return nil, false
		}
		captures := make(map[string]string, len(m.names))
		for i, name := range m.names {
			if name != "" && i < len(sub) {
				captures[name] = strings.TrimSpace(sub[i])
			}
		}
		return captures, true
	default:
		return nil, false
	}
}
