package password

import (
	"errors"
	"testing"

	"github.com/bobg/chunky"
)

type recording struct {
	pw    string
	calls []string
}

func (r *recording) NewPassword(id string) (string, error) {
	r.calls = append(r.calls, "new "+id)
	return r.pw, nil
}

func (r *recording) ExistingPassword(id string) (string, error) {
	r.calls = append(r.calls, "existing "+id)
	return r.pw, nil
}

func TestChain(t *testing.T) {
	var (
		empty = &recording{}
		full  = &recording{pw: "secret"}
		never = &recording{pw: "unused"}
		c     = Chain{empty, full, never}
	)
	pw, err := c.ExistingPassword("repo")
	if err != nil {
		t.Fatal(err)
	}
	if pw != "secret" {
		t.Errorf("got %q, want %q", pw, "secret")
	}
	if len(empty.calls) != 1 || len(full.calls) != 1 || len(never.calls) != 0 {
		t.Errorf("got calls %v / %v / %v", empty.calls, full.calls, never.calls)
	}
	if full.calls[0] != "existing repo" {
		t.Errorf("got call %q", full.calls[0])
	}

	_, err = Chain{empty}.NewPassword("repo")
	if !errors.Is(err, chunky.ErrCrypto) {
		t.Errorf("got error %v, want ErrCrypto", err)
	}
}

func TestEnv(t *testing.T) {
	t.Setenv(EnvVar, "from env")
	pw, err := Chain{Env{}, Static("static")}.NewPassword("repo")
	if err != nil {
		t.Fatal(err)
	}
	if pw != "from env" {
		t.Errorf("got %q, want %q", pw, "from env")
	}

	t.Setenv(EnvVar, "")
	pw, err = Chain{Env{}, Static("static")}.ExistingPassword("repo")
	if err != nil {
		t.Fatal(err)
	}
	if pw != "static" {
		t.Errorf("got %q, want %q", pw, "static")
	}
}
