package rules

import "path"

// matchGlob reports whether s matches pattern using shell-glob semantics
// (path.Match: "*" matches any run of characters, "?" matches one). An
// empty pattern matches anything — the rule places no constraint on that
// dimension. A malformed pattern never matches, it does not panic or
// error the classification pass.
func matchGlob(pattern, s string) bool {
	if pattern == "" {
		return true
	}
	ok, err := path.Match(pattern, s)
	if err != nil {
		return false
	}
	return ok
}

// specificity is the literal (non-wildcard) character count across a
// rule's three patterns — the tie-breaker proxy for "longest match wins"
// (§4.5): a rule that pins more literal characters is more specific than
// one that relies on wildcards to match the same signature.
func specificity(r Rule) int {
	return literalLen(r.HostPattern) + literalLen(r.DomainPattern) + literalLen(r.PathPattern)
}

func literalLen(pattern string) int {
	n := 0
	for _, c := range pattern {
		if c != '*' && c != '?' {
			n++
		}
	}
	return n
}
