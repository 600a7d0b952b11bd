// Package fuzzy implements the include/exclude pattern language
// used to select blobs by name.
//
// A pattern is a regular expression with a few extras.
// A space matches anything, so "He ld" matches "Hello World".
// A pattern with no uppercase letters ignores case.
// A leading "!" negates the pattern.
// Later patterns override earlier ones.
package fuzzy

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"github.com/bobg/chunky"
)

type expr struct {
	re      *regexp.Regexp
	negated bool
}

// Fuzzy is a compiled list of patterns.
// The nil *Fuzzy is valid and has no patterns.
type Fuzzy struct {
	exprs   []expr
	initial bool
}

// New compiles a list of patterns.
// An invalid regular expression produces an error wrapping chunky.ErrConfig.
func New(patterns ...string) (*Fuzzy, error) {
	f := new(Fuzzy)
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		negated := strings.HasPrefix(p, "!")
		if negated {
			p = p[1:]
		}
		p = strings.ReplaceAll(p, " ", ".*")
		if !strings.ContainsFunc(p, unicode.IsUpper) {
			p = "(?i)" + p
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, errors.Wrapf(chunky.ErrConfig, "pattern %q: %s", p, err)
		}
		f.exprs = append(f.exprs, expr{re: re, negated: negated})
	}
	f.initial = len(f.exprs) == 0 || f.exprs[0].negated
	return f, nil
}

// MustNew is like New but panics on error.
func MustNew(patterns ...string) *Fuzzy {
	f, err := New(patterns...)
	if err != nil {
		panic(err)
	}
	return f
}

// Empty tells whether f has no patterns.
func (f *Fuzzy) Empty() bool {
	return f == nil || len(f.exprs) == 0
}

// IsMatch tells whether input is selected by f.
// With no patterns everything matches.
func (f *Fuzzy) IsMatch(input string) bool {
	if f.Empty() {
		return true
	}
	match := f.initial
	for _, e := range f.exprs {
		if e.re.MatchString(input) {
			match = !e.negated
		}
	}
	return match
}

// IsIncludingMatch is for include lists:
// an empty f matches everything.
func (f *Fuzzy) IsIncludingMatch(input string) bool {
	return f.IsMatch(input)
}

// IsExcludingMatch is for exclude and rescan lists:
// an empty f matches nothing.
func (f *Fuzzy) IsExcludingMatch(input string) bool {
	if f.Empty() {
		return false
	}
	return f.IsMatch(input)
}
