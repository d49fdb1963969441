package pattern

import (
	"regexp"
	"strings"
)

// Grammar prefixes and tokens for event type patterns.
const (
	AnyType      = "*"
	NegatePrefix = "!"
	RegexPrefix  = "regex:"
)

// TypeMatcher reports whether an event type matches a compiled pattern.
type TypeMatcher func(eventType string) bool

func matchAll(string) bool  { return true }
func matchNone(string) bool { return false }

// Compile turns an event type pattern into a TypeMatcher.
//
//	"*"          any type
//	"order.*"    one segment after "order." ("*" never crosses ".")
//	"order.**"   anything after "order.", across segments
//	"!order.*"   complement of "order.*" (applies recursively)
//	"regex:^a|b" raw regular expression, anchored at the start of the type
//
// An invalid raw expression compiles to a matcher that matches nothing.
func Compile(pattern string) TypeMatcher {
	switch {
	case pattern == AnyType:
		return matchAll
	case strings.HasPrefix(pattern, NegatePrefix):
		inner := Compile(pattern[len(NegatePrefix):])
		return func(eventType string) bool {
			return !inner(eventType)
		}
	case strings.HasPrefix(pattern, RegexPrefix):
		re, err := regexp.Compile(pattern[len(RegexPrefix):])
		if err != nil {
			return matchNone
		}
		return func(eventType string) bool {
			loc := re.FindStringIndex(eventType)
			return loc != nil && loc[0] == 0
		}
	case !strings.Contains(pattern, "*"):
		return func(eventType string) bool {
			return eventType == pattern
		}
	default:
		re, err := regexp.Compile(globToRegexp(pattern))
		if err != nil {
			return matchNone
		}
		return re.MatchString
	}
}

// globToRegexp translates the glob grammar to an anchored expression.
// "**" becomes ".*" and a lone "*" becomes "[^.]*"; everything else is literal.
func globToRegexp(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	for i, part := range strings.Split(pattern, "**") {
		if i > 0 {
			b.WriteString(".*")
		}
		for j, segment := range strings.Split(part, "*") {
			if j > 0 {
				b.WriteString("[^.]*")
			}
			b.WriteString(regexp.QuoteMeta(segment))
		}
	}
	b.WriteString("$")
	return b.String()
}

// MatchType reports whether eventType matches pattern without caching.
func MatchType(pattern, eventType string) bool {
	return Compile(pattern)(eventType)
}
