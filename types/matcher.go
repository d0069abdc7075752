package types

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Matcher selects keys for bulk invalidation.
// It must be a pure function of the key.
type Matcher func(key string) bool

// MatchPrefix selects every key starting with prefix.
func MatchPrefix(prefix string) Matcher {
	return func(key string) bool { return strings.HasPrefix(key, prefix) }
}

// MatchNamespace selects the bare namespace key and all of its
// parameterised variants ("members", "members:page=2", ...).
func MatchNamespace(ns string) Matcher {
	return func(key string) bool {
		return key == ns || strings.HasPrefix(key, ns+":")
	}
}

// MatchRegexp selects keys matched by re.
func MatchRegexp(re *regexp.Regexp) Matcher {
	return re.MatchString
}

// MatchGlob selects keys with shell-style wildcards ("events:*:2024").
// The pattern is validated up front so a bad pattern is an error here
// rather than a silent "matches nothing" later.
func MatchGlob(pattern string) (Matcher, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	return func(key string) bool {
		ok, _ := path.Match(pattern, key)
		return ok
	}, nil
}
