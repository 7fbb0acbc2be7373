package core

import "regexp"

// Matcher decides whether a handler accepts a channel name.
type Matcher interface {
	Match(channel string) bool
}

// Exact matches one channel name by string equality.
type Exact string

// Match reports channel == e.
func (e Exact) Match(channel string) bool { return string(e) == channel }

// Pattern matches channel names against a compiled regular expression.
type Pattern struct {
	re *regexp.Regexp
}

// NewPattern wraps a compiled expression.
func NewPattern(re *regexp.Regexp) Pattern { return Pattern{re: re} }

// MustPattern compiles expr and panics on a bad expression.
func MustPattern(expr string) Pattern { return Pattern{re: regexp.MustCompile(expr)} }

// Match reports whether the expression matches anywhere in channel.
func (p Pattern) Match(channel string) bool { return p.re != nil && p.re.MatchString(channel) }

// String returns the source expression.
func (p Pattern) String() string {
	if p.re == nil {
		return ""
	}
	return p.re.String()
}
