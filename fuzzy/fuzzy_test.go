package fuzzy

import (
	"errors"
	"testing"

	"github.com/bobg/chunky"
)

func TestEmpty(t *testing.T) {
	const text = "some text!"

	var nilFuzzy *Fuzzy
	for i, f := range []*Fuzzy{nilFuzzy, MustNew(), MustNew("")} {
		if !f.IsIncludingMatch(text) {
			t.Errorf("case %d: IsIncludingMatch is false", i+1)
		}
	}
	if nilFuzzy.IsExcludingMatch(text) {
		t.Error("nil Fuzzy excludes")
	}
	if MustNew().IsExcludingMatch(text) {
		t.Error("empty Fuzzy excludes")
	}
	if !MustNew("").IsExcludingMatch(text) {
		t.Error(`Fuzzy("") does not exclude`)
	}
}

func TestSpaces(t *testing.T) {
	f := MustNew("He ld", "HE LD")
	cases := []struct {
		input string
		want  bool
	}{
		{"Hello World!", true},
		{"Held", true},
		{"HELLO WORLD!", true},
		{"hello world!", false},
		{"Goodbye World!", false},
	}
	for _, c := range cases {
		if got := f.IsMatch(c.input); got != c.want {
			t.Errorf("%q: got %v, want %v", c.input, got, c.want)
		}
	}
}

func TestCase(t *testing.T) {
	var (
		lower = MustNew("hello")
		upper = MustNew("Hello")
	)
	if !lower.IsMatch("hello") || !lower.IsMatch("Hello") {
		t.Error("lowercase pattern is case-sensitive")
	}
	if upper.IsMatch("hello") {
		t.Error("mixed-case pattern ignores case")
	}
	if !upper.IsMatch("Hello") {
		t.Error("mixed-case pattern does not match itself")
	}
}

func TestNegation(t *testing.T) {
	cases := []struct {
		patterns []string
		input    string
		want     bool
	}{
		{[]string{"hello", "!world"}, "Hello planet", true},
		{[]string{"hello", "!world"}, "Hello world", false},
		{[]string{"hello", "!world"}, "Goodbye", false},
		{[]string{"!world", "!something"}, "Hello planet", true},
		{[]string{"!world", "!something"}, "Hello world", false},
		{[]string{"!world", "!something"}, "Goodbye", true},
		{[]string{".*", "!world", "!something"}, "Hello planet", true},
		{[]string{".*", "!world", "!something"}, "Hello world", false},
		{[]string{".*", "!world", "!something"}, "Goodbye", true},
		{[]string{"!mp3"}, "picture.jpg", true},
		{[]string{"!mp3"}, "music.mp3", false},
		{[]string{"!mp3", "cool mp3"}, "picture.jpg", true},
		{[]string{"!mp3", "cool mp3"}, "music.mp3", false},
		{[]string{"!mp3", "cool mp3"}, "cool-music.mp3", true},
	}
	for _, c := range cases {
		f := MustNew(c.patterns...)
		if got := f.IsMatch(c.input); got != c.want {
			t.Errorf("%q on %q: got %v, want %v", c.patterns, c.input, got, c.want)
		}
	}
}

func TestBadPattern(t *testing.T) {
	_, err := New("(unclosed")
	if !errors.Is(err, chunky.ErrConfig) {
		t.Errorf("got error %v, want ErrConfig", err)
	}
}
