package registry

import (
	"fmt"
	"regexp"
	"strings"
)

// Filter selects suites by fully-qualified title. When both a file filter
// and a user grep pattern are supplied, a candidate matches only if it
// independently satisfies the anchor built from the file's suites AND the
// user pattern, each applied to the full title. RE2 has no lookahead, so
// the conjunction is held as two compiled expressions rather than a single
// combined one.
type Filter struct {
	anchor *regexp.Regexp
	grep   *regexp.Regexp
}

// NewFilter composes a name filter from an optional user grep pattern and
// an optional list of escaped suite titles produced by SuitesForFile.
// Either part may be empty; a filter with neither matches every title.
func NewFilter(grepPattern string, escapedTitles []string) (*Filter, error) {
	f := &Filter{}

	if len(escapedTitles) > 0 {
		anchor := "^(" + strings.Join(escapedTitles, "|") + ")"
		re, err := regexp.Compile(anchor)
		if err != nil {
			return nil, fmt.Errorf("compiling file anchor: %w", err)
		}
		f.anchor = re
	}

	if grepPattern != "" {
		re, err := regexp.Compile(grepPattern)
		if err != nil {
			return nil, fmt.Errorf("compiling grep pattern %q: %w", grepPattern, err)
		}
		f.grep = re
	}

	return f, nil
}

// Matches reports whether the candidate title satisfies every part of the
// filter. Inversion is applied by the caller on top of this result.
func (f *Filter) Matches(title string) bool {
	if f == nil {
		return true
	}
	if f.anchor != nil && !f.anchor.MatchString(title) {
		return false
	}
	if f.grep != nil && !f.grep.MatchString(title) {
		return false
	}
	return true
}

// Description renders the filter for run-start reporting.
func (f *Filter) Description() string {
	if f == nil || (f.anchor == nil && f.grep == nil) {
		return "all suites"
	}
	var parts []string
	if f.anchor != nil {
		parts = append(parts, fmt.Sprintf("file anchor %s", f.anchor.String()))
	}
	if f.grep != nil {
		parts = append(parts, fmt.Sprintf("grep %s", f.grep.String()))
	}
	return strings.Join(parts, " and ")
}
