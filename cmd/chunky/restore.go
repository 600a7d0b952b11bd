package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pkg/errors"

	"github.com/bobg/chunky"
	"github.com/bobg/chunky/blobsys/dir"
)

func (c maincmd) restore(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		directory = fs.String("directory", ".", "directory to restore into")
		include   = patternsFlag(fs, "include", "pattern of blob names to restore (repeatable; default all)")
		id        = snapshotFlag(fs)
		dry       = fs.Bool("n", false, "dry run: report what would be written")
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
	restored, err := s.Restore(ctx, *id, inc, c.writer(dir.New(*directory), *dry))
	if err != nil {
		return err
	}
	for _, b := range restored {
		fmt.Fprintf(stdout, "%s\n", b.Name)
	}
	return nil
}

func (c maincmd) cat(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		id     = snapshotFlag(fs)
		chunks = fs.Bool("chunks", false, "arguments are chunk IDs rather than a blob name")
	)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	args = fs.Args()
	if len(args) == 0 {
		return errors.New("missing blob name or chunk IDs")
	}

	s, err := c.snapshots(ctx, false)
	if err != nil {
		return err
	}

	if !*chunks {
		if len(args) > 1 {
			return errors.New("too many blob names")
		}
		return s.RetrieveBlob(ctx, *id, args[0], stdout)
	}

	ids := make([]chunky.ChunkID, 0, len(args))
	for _, arg := range args {
		chunkID, err := chunky.ParseChunkID(arg)
		if err != nil {
			return errors.Wrapf(err, "parsing chunk ID %s", arg)
		}
		ids = append(ids, chunkID)
	}
	return s.RetrieveContent(ctx, *id, ids, stdout)
}
