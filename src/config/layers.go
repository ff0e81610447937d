package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// Layer is a single source of configuration values.
// Lookup returns ok=false when the key is absent or explicitly null.
type Layer interface {
	Name() string
	Lookup(key string) (any, bool)
}

// MapLayer serves values from a (possibly nested) map. Keys address nested
// maps with dots: "slack.channel" reads m["slack"]["channel"]. A literal
// dotted key at any level takes priority over descending.
type MapLayer struct {
	name   string
	values map[string]any
}

// NewMapLayer wraps values as a named layer. The map is not copied; callers
// must not modify it after handing it over.
func NewMapLayer(name string, values map[string]any) *MapLayer {
	if values == nil {
		values = map[string]any{}
	}
	return &MapLayer{name: name, values: values}
}

func (l *MapLayer) Name() string { return l.name }

func (l *MapLayer) Lookup(key string) (any, bool) {
	return lookupPath(l.values, key)
}

func lookupPath(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, v != nil
	}
	head, rest, found := strings.Cut(key, ".")
	if !found {
		return nil, false
	}
	child, ok := m[head]
	if !ok {
		return nil, false
	}
	switch c := child.(type) {
	case map[string]any:
		return lookupPath(c, rest)
	case map[any]any:
		converted := make(map[string]any, len(c))
		for k, v := range c {
			converted[fmt.Sprint(k)] = v
		}
		return lookupPath(converted, rest)
	}
	return nil, false
}

// EnvLayer reads process environment variables. The key "slack.webhook"
// with prefix "WEBFREIGHT" maps to WEBFREIGHT_SLACK_WEBHOOK.
type EnvLayer struct {
	Prefix string
	// Getenv defaults to os.LookupEnv.
	Getenv func(string) (string, bool)
}

func (l EnvLayer) Name() string { return "environment" }

func (l EnvLayer) Lookup(key string) (any, bool) {
	get := l.Getenv
	if get == nil {
		get = os.LookupEnv
	}
	v, ok := get(EnvName(l.Prefix, key))
	if !ok || v == "" {
		return nil, false
	}
	return v, true
}

// EnvName returns the environment variable name for a config key.
func EnvName(prefix, key string) string {
	name := strings.NewReplacer(".", "_", "-", "_").Replace(strings.ToUpper(key))
	if prefix == "" {
		return name
	}
	return strings.ToUpper(prefix) + "_" + name
}

// FlagLayer exposes command-line flags. Only flags the user explicitly set
// are defined, so pflag defaults never shadow lower layers.
type FlagLayer struct {
	Flags *pflag.FlagSet
	// Keys maps config keys to flag names. Keys without an entry use the
	// key itself as the flag name.
	Keys map[string]string
}

func (l FlagLayer) Name() string { return "flags" }

func (l FlagLayer) Lookup(key string) (any, bool) {
	if l.Flags == nil {
		return nil, false
	}
	name := key
	if n, ok := l.Keys[key]; ok {
		name = n
	}
	f := l.Flags.Lookup(name)
	if f == nil || !f.Changed {
		return nil, false
	}
	switch f.Value.Type() {
	case "bool":
		b, err := strconv.ParseBool(f.Value.String())
		if err != nil {
			return nil, false
		}
		return b, true
	case "stringSlice", "stringArray":
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			return sv.GetSlice(), true
		}
	}
	return f.Value.String(), true
}

// Resolver merges an ordered list of layers. Earlier layers win.
type Resolver struct {
	layers []Layer
}

// NewResolver returns a resolver over layers, highest precedence first.
// Nil layers are skipped.
func NewResolver(layers ...Layer) *Resolver {
	r := &Resolver{}
	for _, l := range layers {
		if l != nil {
			r.layers = append(r.layers, l)
		}
	}
	return r
}

// Layers returns the layer names in precedence order.
func (r *Resolver) Layers() []string {
	names := make([]string, len(r.layers))
	for i, l := range r.layers {
		names[i] = l.Name()
	}
	return names
}

// Get returns the first defined value for key, or def when no layer defines it.
func (r *Resolver) Get(key string, def any) any {
	if v, _, ok := r.Source(key); ok {
		return v
	}
	return def
}

// Source returns the value for key together with the name of the layer
// that supplied it.
func (r *Resolver) Source(key string) (any, string, bool) {
	for _, l := range r.layers {
		if v, ok := l.Lookup(key); ok {
			return v, l.Name(), true
		}
	}
	return nil, "", false
}

// String returns key as a string. Non-string scalars are formatted.
func (r *Resolver) String(key, def string) string {
	v, _, ok := r.Source(key)
	if !ok {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Bool returns key as a bool. Strings such as "true" or "0" are parsed.
func (r *Resolver) Bool(key string, def bool) (bool, error) {
	v, src, ok := r.Source(key)
	if !ok {
		return def, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return def, fmt.Errorf("%s (from %s): invalid bool %q", key, src, b)
		}
		return parsed, nil
	}
	return def, fmt.Errorf("%s (from %s): expected bool, got %T", key, src, v)
}

// Int returns key as an int.
func (r *Resolver) Int(key string, def int) (int, error) {
	v, src, ok := r.Source(key)
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return def, fmt.Errorf("%s (from %s): invalid integer %q", key, src, n)
		}
		return parsed, nil
	}
	return def, fmt.Errorf("%s (from %s): expected integer, got %T", key, src, v)
}

// Float returns key as a float64.
func (r *Resolver) Float(key string, def float64) (float64, error) {
	v, src, ok := r.Source(key)
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return def, fmt.Errorf("%s (from %s): invalid number %q", key, src, n)
		}
		return parsed, nil
	}
	return def, fmt.Errorf("%s (from %s): expected number, got %T", key, src, v)
}

// Strings returns key as a string list. A single string is split on commas.
func (r *Resolver) Strings(key string) []string {
	v, _, ok := r.Source(key)
	if !ok {
		return nil
	}
	switch s := v.(type) {
	case []string:
		return append([]string(nil), s...)
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return []string{fmt.Sprint(v)}
}

// Map returns key as a map, or nil when absent or not a map.
func (r *Resolver) Map(key string) map[string]any {
	v, _, ok := r.Source(key)
	if !ok {
		return nil
	}
	switch m := v.(type) {
	case map[string]any:
		return m
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out
	}
	return nil
}
