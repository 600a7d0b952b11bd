package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"github.com/bobg/chunky"
)

// String gets a required string parameter from conf.
func String(conf map[string]interface{}, key string) (string, error) {
	s, ok := conf[key].(string)
	if !ok {
		return "", fmt.Errorf("missing %q parameter", key)
	}
	return s, nil
}

// Int gets a required integer parameter from conf.
// Numbers decoded from JSON (as float64 or json.Number)
// and from YAML (as int) are all accepted,
// as are numeric strings.
func Int(conf map[string]interface{}, key string) (int, error) {
	switch v := conf[key].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		return int(n), errors.Wrapf(err, "parsing %q parameter", key)
	case string:
		n, err := strconv.Atoi(v)
		return n, errors.Wrapf(err, "parsing %q parameter", key)
	case nil:
		return 0, fmt.Errorf("missing %q parameter", key)
	default:
		return 0, fmt.Errorf("%q parameter has type %T, want a number", key, v)
	}
}

// IntOr is like Int but returns dflt if the parameter is absent.
func IntOr(conf map[string]interface{}, key string, dflt int) (int, error) {
	if _, ok := conf[key]; !ok {
		return dflt, nil
	}
	return Int(conf, key)
}

// Nested creates the repository described by the map in conf["nested"].
// Decorators use this to build the repository they wrap.
func Nested(ctx context.Context, conf map[string]interface{}) (chunky.Store, error) {
	nested, ok := conf["nested"].(map[string]interface{})
	if !ok {
		return nil, errors.New(`missing "nested" parameter`)
	}
	nestedType, ok := nested["type"].(string)
	if !ok {
		return nil, errors.New(`"nested" parameter missing "type"`)
	}
	s, err := Create(ctx, nestedType, nested)
	return s, errors.Wrap(err, "creating nested store")
}
