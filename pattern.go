package botdispatch

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrEmptyPattern is returned when compiling an empty pattern.
var ErrEmptyPattern = errors.New("empty pattern")

// PatternError reports an ill-formed placeholder pattern.
type PatternError struct {
	Pattern string
	// Offset is the byte offset of the offending token, or -1.
	Offset int
	Err    error
}

func (e *PatternError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("pattern %q: %v", e.Pattern, e.Err)
	}
	return fmt.Sprintf("pattern %q at offset %d: %v", e.Pattern, e.Offset, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }

// placeholders maps a placeholder letter to its capture class.
var placeholders = map[byte]string{
	'd': `([0-9]+)`,
	's': `([A-Za-z]+)`,
	'a': `([0-9A-Za-z]+)`,
}

// Pattern is a compiled placeholder pattern such as "get_%d".
//
// The grammar is printf-like: %d matches one or more ASCII digits, %s one or
// more ASCII letters, %a one or more ASCII letters or digits, and %% a
// literal percent sign. Every other character matches itself. A pattern
// always matches the whole candidate.
type Pattern struct {
	src    string
	re     *regexp.Regexp
	groups int
}

// CompilePattern compiles src. It fails with a *PatternError for an empty
// pattern, an unknown placeholder letter, or a trailing lone '%'.
func CompilePattern(src string) (*Pattern, error) {
	if src == "" {
		return nil, &PatternError{Pattern: src, Offset: -1, Err: ErrEmptyPattern}
	}

	var b strings.Builder
	b.WriteString("^")
	groups := 0
	lit := 0
	for i := 0; i < len(src); i++ {
		if src[i] != '%' {
			continue
		}
		b.WriteString(regexp.QuoteMeta(src[lit:i]))
		if i+1 == len(src) {
			return nil, &PatternError{Pattern: src, Offset: i, Err: errors.New("dangling '%'")}
		}
		next := src[i+1]
		switch class, ok := placeholders[next]; {
		case ok:
			b.WriteString(class)
			groups++
		case next == '%':
			b.WriteString("%")
		default:
			return nil, &PatternError{Pattern: src, Offset: i, Err: fmt.Errorf("unknown placeholder %%%c", next)}
		}
		i++
		lit = i + 1
	}
	b.WriteString(regexp.QuoteMeta(src[lit:]))
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, &PatternError{Pattern: src, Offset: -1, Err: err}
	}
	return &Pattern{src: src, re: re, groups: groups}, nil
}

// MustCompilePattern is like CompilePattern but panics on error.
func MustCompilePattern(src string) *Pattern {
	p, err := CompilePattern(src)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the source pattern.
func (p *Pattern) String() string { return p.src }

// Placeholders returns the number of placeholders in the pattern.
func (p *Pattern) Placeholders() int { return p.groups }

// Match tests candidate against the pattern. On success it returns the
// whole candidate followed by one capture per placeholder, left to right.
func (p *Pattern) Match(candidate string) ([]string, bool) {
	m := p.re.FindStringSubmatch(candidate)
	if m == nil {
		return nil, false
	}
	return m, true
}
