package grant

import (
	"strings"
)

// ParseScope splits a space-delimited scope parameter.
func ParseScope(scope string) []string {
	return strings.Fields(scope)
}

// JoinScopes formats scopes as a space-delimited scope parameter.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

// intersect returns the requested scopes that are also in allowed, in
// request order and without duplicates.
func intersect(requested, allowed []string) []string {
	set := make(map[string]struct{}, len(allowed))
	for _, s := range allowed {
		set[s] = struct{}{}
	}

	out := make([]string, 0, len(requested))
	seen := make(map[string]struct{}, len(requested))
	for _, s := range requested {
		if _, ok := set[s]; !ok {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	return out
}

// subset reports whether every requested scope is in granted.
func subset(requested, granted []string) bool {
	return len(intersect(requested, granted)) == len(dedupe(requested))
}

func dedupe(scopes []string) []string {
	return intersect(scopes, scopes)
}
