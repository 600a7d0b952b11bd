package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/bobg/chunky"
	"github.com/bobg/chunky/fastcdc"
	"github.com/bobg/chunky/snapshotstore"
	"github.com/bobg/chunky/store"
)

// loadConfig reads a config file,
// as YAML if its name ends in .yaml or .yml and as JSON otherwise.
func loadConfig(filename string) (map[string]interface{}, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "opening config file %s", filename)
	}
	defer f.Close()

	conf, err := decodeConfig(f, filepath.Ext(filename))
	return conf, errors.Wrapf(err, "decoding config file %s", filename)
}

func decodeConfig(r io.Reader, ext string) (map[string]interface{}, error) {
	var conf map[string]interface{}

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(r).Decode(&conf); err != nil {
			return nil, err
		}

	default:
		dec := json.NewDecoder(r)
		dec.UseNumber()
		if err := dec.Decode(&conf); err != nil {
			return nil, err
		}
	}

	if conf == nil {
		return nil, errors.Wrap(chunky.ErrConfig, "empty config")
	}
	return conf, nil
}

func storeFromConfig(ctx context.Context, conf map[string]interface{}) (chunky.Store, error) {
	typ, ok := conf["type"].(string)
	if !ok {
		return nil, fmt.Errorf("config missing `type` parameter")
	}
	return store.Create(ctx, typ, conf)
}

func storeFromFile(ctx context.Context, filename string) (chunky.Store, error) {
	conf, err := loadConfig(filename)
	if err != nil {
		return nil, err
	}
	s, err := storeFromConfig(ctx, conf)
	return s, errors.Wrapf(err, "creating repository from %s", filename)
}

// options turns the non-repository settings in conf into snapshot store options.
func options(conf map[string]interface{}) ([]snapshotstore.Option, error) {
	var opts []snapshotstore.Option

	if c, ok := conf["chunker"].(map[string]interface{}); ok {
		min, err := store.IntOr(c, "min", fastcdc.DefaultMin)
		if err != nil {
			return nil, err
		}
		avg, err := store.IntOr(c, "avg", fastcdc.DefaultAvg)
		if err != nil {
			return nil, err
		}
		max, err := store.IntOr(c, "max", fastcdc.DefaultMax)
		if err != nil {
			return nil, err
		}
		chunker, err := fastcdc.New(min, avg, max)
		if err != nil {
			return nil, err
		}
		opts = append(opts, snapshotstore.WithChunker(chunker))
	}

	if h, ok := conf["hash"].(string); ok {
		switch hash := chunky.Hash(h); hash {
		case chunky.SHA256, chunky.BLAKE3:
			opts = append(opts, snapshotstore.WithHash(hash))
		default:
			return nil, errors.Wrapf(chunky.ErrConfig, "unknown hash %q", h)
		}
	}

	if _, ok := conf["iterations"]; ok {
		n, err := store.Int(conf, "iterations")
		if err != nil {
			return nil, err
		}
		opts = append(opts, snapshotstore.WithIterations(n))
	}

	if _, ok := conf["workers"]; ok {
		n, err := store.Int(conf, "workers")
		if err != nil {
			return nil, err
		}
		opts = append(opts, snapshotstore.WithWorkers(n))
	}

	if id, ok := conf["repo_id"].(string); ok {
		opts = append(opts, snapshotstore.WithRepoID(id))
	}

	return opts, nil
}
