// Package category normalizes the "/" separated genre strings stored on
// movies.  Every path that groups, filters or matches by genre goes through
// Split so composite values such as "动作/喜剧" behave the same everywhere.
package category

import "strings"

// Separator joins components inside movies.category.
const Separator = "/"

// Known genres with a dedicated public listing.  A movie none of whose
// components is known belongs to the "other" listing.
const (
	Comedy = "喜剧"
	Action = "动作"
	Drama  = "剧情"
)

// KeyOther selects movies outside every known genre.
const KeyOther = "other"

var known = []string{Comedy, Action, Drama}

var keys = map[string]string{
	"comedy": Comedy,
	"action": Action,
	"drama":  Drama,
}

// Split returns the trimmed, non-empty, de-duplicated components of raw in
// their original order.
func Split(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, Separator)
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Has reports whether name is one of raw's components.
func Has(raw, name string) bool {
	for _, c := range Split(raw) {
		if c == name {
			return true
		}
	}
	return false
}

// Intersects reports whether any component of raw is in set.
func Intersects(raw string, set map[string]struct{}) bool {
	for _, c := range Split(raw) {
		if _, ok := set[c]; ok {
			return true
		}
	}
	return false
}

// IsOther reports whether raw contains none of the known genres.
func IsOther(raw string) bool {
	for _, k := range known {
		if Has(raw, k) {
			return false
		}
	}
	return true
}

// Resolve maps a public listing key to its genre name.  ok is false for
// unrecognised keys; other is true for KeyOther.
func Resolve(key string) (name string, other bool, ok bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == KeyOther {
		return "", true, true
	}
	name, ok = keys[key]
	return name, false, ok
}

// Matcher returns a predicate over raw category strings for a listing key.
// An empty key matches everything.
func Matcher(key string) (func(raw string) bool, bool) {
	if strings.TrimSpace(key) == "" {
		return func(string) bool { return true }, true
	}
	name, other, ok := Resolve(key)
	switch {
	case !ok:
		return nil, false
	case other:
		return IsOther, true
	default:
		return func(raw string) bool { return Has(raw, name) }, true
	}
}
