package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/bobg/chunky/snapshot"
	"github.com/bobg/chunky/snapshotstore"
)

func (c maincmd) list(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	s, err := c.snapshots(ctx, false)
	if err != nil {
		return err
	}
	positions, err := s.List(ctx)
	if err != nil {
		return err
	}
	for _, pos := range positions {
		snap, err := s.Get(ctx, pos)
		if err != nil {
			return errors.Wrapf(err, "getting snapshot %d", pos)
		}
		fmt.Fprintf(stdout, "%d %s %d\n", pos, snap.CreationTimeUtc.Format(time.RFC3339), len(snap.BlobReferences))
	}
	return nil
}

func (c maincmd) show(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		include = patternsFlag(fs, "include", "pattern of blob names to show (repeatable; default all)")
		id      = snapshotFlag(fs)
		chunks  = fs.Bool("chunks", false, "also show chunk IDs")
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
	refs, err := s.Show(ctx, *id, inc)
	if err != nil {
		return err
	}
	for _, br := range refs {
		fmt.Fprintf(stdout, "%s %s\n", br.Blob.LastWriteTimeUtc.Format(time.RFC3339), br.Blob.Name)
		if *chunks {
			for _, chunkID := range br.ChunkIds {
				fmt.Fprintf(stdout, "  %s\n", chunkID)
			}
		}
	}
	return nil
}

func (c maincmd) diff(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		first  = fs.Int("first", snapshotstore.SecondLatest, "first snapshot ID")
		second = fs.Int("second", snapshotstore.Latest, "second snapshot ID")
	)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	s, err := c.snapshots(ctx, false)
	if err != nil {
		return err
	}
	d, err := s.Diff(ctx, *first, *second)
	if err != nil {
		return err
	}
	printDiff(d)
	return nil
}

func printDiff(d snapshot.DiffSet) {
	for _, name := range d.Added {
		fmt.Fprintf(stdout, "+ %s\n", name)
	}
	for _, name := range d.Changed {
		fmt.Fprintf(stdout, "~ %s\n", name)
	}
	for _, name := range d.Removed {
		fmt.Fprintf(stdout, "- %s\n", name)
	}
}
