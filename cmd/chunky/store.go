package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/bobg/chunky/blobsys"
	"github.com/bobg/chunky/blobsys/dir"
	"github.com/bobg/chunky/snapshotstore"
)

func (c maincmd) store(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		directory = fs.String("directory", ".", "directory to store")
		exclude   = patternsFlag(fs, "exclude", "pattern of blob names to leave out (repeatable)")
		scan      = patternsFlag(fs, "scan", "pattern of blob names to re-read even if unchanged (repeatable)")
		dry       = fs.Bool("n", false, "dry run: report what would be stored")
	)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if *dry && len(*scan) > 0 {
		return errors.New("-scan cannot be combined with -n")
	}
	ex, err := exclude.fuzzy()
	if err != nil {
		return errors.Wrap(err, "parsing -exclude")
	}
	sc, err := scan.fuzzy()
	if err != nil {
		return errors.Wrap(err, "parsing -scan")
	}

	s, err := c.snapshots(ctx, false)
	if err != nil {
		return err
	}

	sys := dir.New(*directory)
	if *dry {
		diff, err := s.Preview(ctx, sys, ex, snapshotstore.Latest)
		if err != nil {
			return err
		}
		printDiff(diff)
		return nil
	}

	pos, err := s.AppendFrom(ctx, sys, ex, sc, time.Time{})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%d\n", pos)
	return nil
}

func (c maincmd) preview(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		directory = fs.String("directory", ".", "directory to compare")
		exclude   = patternsFlag(fs, "exclude", "pattern of blob names to leave out (repeatable)")
		id        = snapshotFlag(fs)
	)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	ex, err := exclude.fuzzy()
	if err != nil {
		return errors.Wrap(err, "parsing -exclude")
	}

	s, err := c.snapshots(ctx, false)
	if err != nil {
		return err
	}
	diff, err := s.Preview(ctx, dir.New(*directory), ex, *id)
	if err != nil {
		return err
	}
	printDiff(diff)
	return nil
}

func (c maincmd) clean(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		directory = fs.String("directory", ".", "directory to clean")
		exclude   = patternsFlag(fs, "exclude", "pattern of blob names to leave alone (repeatable)")
		id        = snapshotFlag(fs)
		dry       = fs.Bool("n", false, "dry run: report what would be removed")
	)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	ex, err := exclude.fuzzy()
	if err != nil {
		return errors.Wrap(err, "parsing -exclude")
	}

	s, err := c.snapshots(ctx, false)
	if err != nil {
		return err
	}

	var sys snapshotstore.CleanSystem = dir.New(*directory)
	if *dry {
		sys = dryClean{Reader: sys, Remover: blobsys.DryRun{Logger: c.logger}}
	}
	removed, err := s.Clean(ctx, sys, ex, *id)
	if err != nil {
		return err
	}
	for _, b := range removed {
		fmt.Fprintf(stdout, "%s\n", b.Name)
	}
	return nil
}

type dryClean struct {
	blobsys.Reader
	blobsys.Remover
}
