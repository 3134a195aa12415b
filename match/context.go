package match

import "strconv"

// Context is the transient match-evaluation state built for each match
// test (spec.md §3 "Match context"): the chosen comparator, match-type and
// key list, plus wherever captures should land.
type Context struct {
	Comparator Comparator
	Type       MatchType
	Keys       []string
	Caps       *Captures // where a successful :matches stores its wildcard captures
	// Op carries the relational extension's operator ("gt", "ge", ...) when
	// Type is the ":value"/":count" match type, so codegen can serialise it
	// onto the wire and the interpreter can rebuild the same MatchType from
	// ValueMatchType(Op) without sharing the compile-time closure.
	Op RelationalOp
}

// MatchValue reports whether value matches any key under this context,
// mirroring spec.md §4.8's match_begin/match_value/match_end pseudocode
// collapsed into one call since this implementation has no per-value
// streaming state to retain between candidates.
func (c *Context) MatchValue(value string) bool {
	for _, key := range c.Keys {
		if c.Type.Test(c.Comparator, value, key, c.Caps) {
			return true
		}
	}
	return false
}

// MatchAny reports whether any of values matches any key. It tests every
// value rather than stopping at the first hit.
func (c *Context) MatchAny(values []string) bool {
	matched := false
	for _, v := range values {
		if c.MatchValue(v) {
			matched = true
		}
	}
	return matched
}

// MatchCount implements the relational extension's ":count" (RFC 5231
// §4): n (the number of matched header/address/envelope instances, not
// their values) is compared against the first key parsed as a decimal
// integer, using Op. A non-numeric key never matches, per RFC 5231's
// "non-decimal values ... MUST be treated as though they did not match".
func (c *Context) MatchCount(n int) bool {
	if len(c.Keys) == 0 {
		return false
	}
	key, err := strconv.ParseInt(c.Keys[0], 10, 64)
	if err != nil {
		return false
	}
	return compareOrdered(int64(n), key, c.Op)
}
