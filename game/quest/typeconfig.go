package quest

import (
	"strings"

	"github.com/spf13/cast"
)

// TypeConfig is the per-type settings bag of a quest. Only matchers read it.
// Keys are lower-case as produced by the catalog loader.
type TypeConfig map[string]interface{}

func (c TypeConfig) Has(key string) bool {
	_, ok := c[key]
	return ok
}

func (c TypeConfig) String(key, def string) string {
	v, ok := c[key]
	if !ok {
		return def
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return def
	}
	return s
}

func (c TypeConfig) Strings(key string) []string {
	v, ok := c[key]
	if !ok {
		return nil
	}
	s, err := cast.ToStringSliceE(v)
	if err != nil {
		return nil
	}
	return s
}

// UpperSet returns the entries of a string list as an upper-cased set.
func (c TypeConfig) UpperSet(key string) map[string]struct{} {
	list := c.Strings(key)
	if len(list) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(list))
	for _, s := range list {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

func (c TypeConfig) Int(key string, def int) int {
	v, ok := c[key]
	if !ok {
		return def
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return n
}

func (c TypeConfig) Float(key string, def float64) float64 {
	v, ok := c[key]
	if !ok {
		return def
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return def
	}
	return f
}

func (c TypeConfig) Bool(key string, def bool) bool {
	v, ok := c[key]
	if !ok {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

// Sub returns a nested section, or nil when absent or not a map.
func (c TypeConfig) Sub(key string) TypeConfig {
	v, ok := c[key]
	if !ok {
		return nil
	}
	m, err := cast.ToStringMapE(v)
	if err != nil {
		return nil
	}
	return TypeConfig(m)
}
