package main

import (
	"context"
	"flag"

	"github.com/pkg/errors"

	"github.com/bobg/chunky"
)

func (c maincmd) check(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		include = patternsFlag(fs, "include", "pattern of blob names to check (repeatable; default all)")
		id      = snapshotFlag(fs)
		shallow = fs.Bool("shallow", false, "only check that chunks exist")
	)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	inc, err := include.fuzzy()
	if err != nil {
		return errors.Wrap(err, "parsing -include")
	}

	s, err := c.snapshots(ctx, false)
	if err != nil {
		return err
	}

	var ok bool
	if *shallow {
		ok, err = s.CheckExists(ctx, *id, inc)
	} else {
		ok, err = s.CheckValid(ctx, *id, inc)
	}
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(chunky.ErrIntegrity, "snapshot %d is damaged", *id)
	}
	return nil
}
