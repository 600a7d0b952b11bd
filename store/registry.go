// Package store is a registry of repository implementations.
// Each implementation registers a Factory under a type name in an init function,
// and Create builds a repository from a configuration map,
// typically decoded from a config file.
package store

import (
	"context"
	"fmt"

	"github.com/bobg/chunky"
)

type Factory func(context.Context, map[string]interface{}) (chunky.Store, error)

var registry = make(map[string]Factory)

func Register(key string, f Factory) {
	registry[key] = f
}

func Create(ctx context.Context, key string, conf map[string]interface{}) (chunky.Store, error) {
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found in registry", key)
	}
	return f(ctx, conf)
}
