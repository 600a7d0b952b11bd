// Package password supplies the passwords that unlock a repository.
package password

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/bobg/chunky"
)

// Prompt produces passwords.
// An empty result with a nil error means the Prompt has no password to offer.
type Prompt interface {
	// NewPassword is called when a repository has no history yet.
	NewPassword(repoID string) (string, error)

	// ExistingPassword is called for a repository with history.
	ExistingPassword(repoID string) (string, error)
}

// Static is a Prompt that always returns the same password.
type Static string

func (s Static) NewPassword(string) (string, error)      { return string(s), nil }
func (s Static) ExistingPassword(string) (string, error) { return string(s), nil }

// EnvVar is the environment variable Env reads.
const EnvVar = "CHUNKY_PASSWORD"

// Env is a Prompt that reads the CHUNKY_PASSWORD environment variable.
type Env struct{}

func (Env) NewPassword(string) (string, error)      { return os.Getenv(EnvVar), nil }
func (Env) ExistingPassword(string) (string, error) { return os.Getenv(EnvVar), nil }

// Terminal is a Prompt that asks on the controlling terminal.
// A new password must be entered twice.
type Terminal struct {
	// FD is the terminal's file descriptor.
	// The zero value means standard input.
	FD int
}

func (t Terminal) NewPassword(repoID string) (string, error) {
	pw, err := t.read(fmt.Sprintf("New password for %s: ", repoID))
	if err != nil {
		return "", err
	}
	again, err := t.read("Retype new password: ")
	if err != nil {
		return "", err
	}
	if pw != again {
		return "", errors.Wrap(chunky.ErrCrypto, "passwords do not match")
	}
	return pw, nil
}

func (t Terminal) ExistingPassword(repoID string) (string, error) {
	return t.read(fmt.Sprintf("Password for %s: ", repoID))
}

func (t Terminal) read(prompt string) (string, error) {
	if !term.IsTerminal(t.FD) {
		return "", nil
	}
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(t.FD)
	fmt.Fprintln(os.Stderr)
	return string(pw), errors.Wrap(err, "reading password")
}

// Chain is a Prompt that asks each of its members in turn,
// returning the first non-empty password.
type Chain []Prompt

func (c Chain) NewPassword(repoID string) (string, error) {
	return c.first(repoID, Prompt.NewPassword)
}

func (c Chain) ExistingPassword(repoID string) (string, error) {
	return c.first(repoID, Prompt.ExistingPassword)
}

func (c Chain) first(repoID string, f func(Prompt, string) (string, error)) (string, error) {
	for _, p := range c {
		pw, err := f(p, repoID)
		if err != nil {
			return "", err
		}
		if pw != "" {
			return pw, nil
		}
	}
	return "", errors.Wrapf(chunky.ErrCrypto, "no password for %s", repoID)
}

// Default is the Prompt the command line uses:
// the environment first, then the terminal.
func Default() Prompt {
	return Chain{Env{}, Terminal{}}
}
