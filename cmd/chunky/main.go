// Command chunky stores, restores, and maintains encrypted, deduplicated snapshots.
package main

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/bobg/subcmd"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bobg/chunky"
	"github.com/bobg/chunky/blobsys"
	"github.com/bobg/chunky/password"
	"github.com/bobg/chunky/snapshotstore"
	"github.com/bobg/chunky/store/dryrun"

	_ "github.com/bobg/chunky/store/badger"
	_ "github.com/bobg/chunky/store/file"
	_ "github.com/bobg/chunky/store/gcs"
	_ "github.com/bobg/chunky/store/logging"
	_ "github.com/bobg/chunky/store/lru"
	_ "github.com/bobg/chunky/store/mem"
	_ "github.com/bobg/chunky/store/pg"
	_ "github.com/bobg/chunky/store/replica"
	_ "github.com/bobg/chunky/store/sqlite3"
)

type maincmd struct {
	repo   chunky.Store
	opts   []snapshotstore.Option
	prompt password.Prompt
	logger *logrus.Logger
}

func main() {
	var (
		config  = flag.String("config", "chunky.json", "path to config file (.json, .yaml, or .yml)")
		verbose = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	if *config == "" {
		logger.Fatal("Config value not set")
	}

	ctx := context.Background()

	conf, err := loadConfig(*config)
	if err != nil {
		logger.Fatal(err)
	}
	repo, err := storeFromConfig(ctx, conf)
	if err != nil {
		logger.Fatalf("Creating repository from %s: %s", *config, err)
	}
	opts, err := options(conf)
	if err != nil {
		logger.Fatalf("Reading options from %s: %s", *config, err)
	}
	opts = append(opts, snapshotstore.WithLogger(logger))

	c := maincmd{
		repo:   repo,
		opts:   opts,
		prompt: password.Default(),
		logger: logger,
	}
	if err = subcmd.Run(ctx, c, flag.Args()); err != nil {
		logger.Fatal(err)
	}
}

func (c maincmd) Subcmds() map[string]subcmd.Subcmd {
	return map[string]subcmd.Subcmd{
		"cat":     c.cat,
		"check":   c.check,
		"clean":   c.clean,
		"copy":    c.copy,
		"diff":    c.diff,
		"gc":      c.gc,
		"keep":    c.keep,
		"list":    c.list,
		"mirror":  c.mirror,
		"preview": c.preview,
		"remove":  c.remove,
		"restore": c.restore,
		"show":    c.show,
		"store":   c.store,
	}
}

// snapshots opens the snapshot store.
// With dry set, the repository is left untouched.
func (c maincmd) snapshots(ctx context.Context, dry bool) (*snapshotstore.Store, error) {
	repo := c.repo
	if dry {
		repo = dryrun.New(repo)
	}
	s, err := snapshotstore.New(ctx, repo, c.prompt, c.opts...)
	return s, errors.Wrap(err, "opening snapshot store")
}

// writer returns w, or a stand-in that only logs what it would write if dry is set.
func (c maincmd) writer(w blobsys.Writer, dry bool) blobsys.Writer {
	if dry {
		return blobsys.DryRun{W: w, Logger: c.logger}
	}
	return w
}

var stdout io.Writer = os.Stdout
