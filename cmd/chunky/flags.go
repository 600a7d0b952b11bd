package main

import (
	"flag"
	"strings"

	"github.com/bobg/chunky/fuzzy"
	"github.com/bobg/chunky/snapshotstore"
)

// patterns is a flag.Value collecting repeated pattern flags.
type patterns []string

func (p *patterns) String() string {
	return strings.Join(*p, ",")
}

func (p *patterns) Set(s string) error {
	*p = append(*p, s)
	return nil
}

func (p *patterns) fuzzy() (*fuzzy.Fuzzy, error) {
	return fuzzy.New(*p...)
}

func patternsFlag(fs *flag.FlagSet, name, usage string) *patterns {
	p := new(patterns)
	fs.Var(p, name, usage)
	return p
}

func snapshotFlag(fs *flag.FlagSet) *int {
	return fs.Int("snapshot", snapshotstore.Latest, "snapshot ID (negative counts back from the latest)")
}
