package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pkg/errors"
)

func (c maincmd) copy(ctx context.Context, fs *flag.FlagSet, args []string) error {
	dest := fs.String("destination", "", "config file of the destination repository (required)")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if *dest == "" {
		return errors.New("missing -destination")
	}

	dst, err := storeFromFile(ctx, *dest)
	if err != nil {
		return err
	}
	s, err := c.snapshots(ctx, false)
	if err != nil {
		return err
	}
	copied, err := s.Copy(ctx, dst)
	if err != nil {
		return err
	}
	for _, pos := range copied {
		fmt.Fprintf(stdout, "%d\n", pos)
	}
	return nil
}

func (c maincmd) mirror(ctx context.Context, fs *flag.FlagSet, args []string) error {
	dest := fs.String("destination", "", "config file of the destination repository (required)")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if *dest == "" {
		return errors.New("missing -destination")
	}

	dst, err := storeFromFile(ctx, *dest)
	if err != nil {
		return err
	}
	s, err := c.snapshots(ctx, false)
	if err != nil {
		return err
	}
	return s.Mirror(ctx, dst)
}
