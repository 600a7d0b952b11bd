package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pkg/errors"
)

func (c maincmd) remove(ctx context.Context, fs *flag.FlagSet, args []string) error {
	id := fs.Int("snapshot", 0, "snapshot ID to remove (required)")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if !isSet(fs, "snapshot") {
		return errors.New("missing -snapshot")
	}

	s, err := c.snapshots(ctx, false)
	if err != nil {
		return err
	}
	return s.Remove(ctx, *id)
}

func (c maincmd) keep(ctx context.Context, fs *flag.FlagSet, args []string) error {
	latest := fs.Int("latest", 0, "number of latest snapshots to keep (required)")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if !isSet(fs, "latest") {
		return errors.New("missing -latest")
	}

	s, err := c.snapshots(ctx, false)
	if err != nil {
		return err
	}
	removed, err := s.Keep(ctx, *latest)
	if err != nil {
		return err
	}
	for _, pos := range removed {
		fmt.Fprintf(stdout, "%d\n", pos)
	}
	return nil
}

func (c maincmd) gc(ctx context.Context, fs *flag.FlagSet, args []string) error {
	dry := fs.Bool("n", false, "dry run: report what would be deleted")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	s, err := c.snapshots(ctx, *dry)
	if err != nil {
		return err
	}
	deleted, err := s.GarbageCollect(ctx)
	if err != nil {
		return err
	}
	for _, id := range deleted {
		fmt.Fprintf(stdout, "%s\n", id)
	}
	return nil
}

func isSet(fs *flag.FlagSet, name string) bool {
	var found bool
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
