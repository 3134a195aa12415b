package match

import "strconv"

// Captures holds the most recent ":matches"/":regex" capture groups, a
// per-interpreter store of fixed capacity (spec.md §4.9 "Match values").
// Index 0 is the whole match; overflow beyond Capacity silently truncates,
// per spec.md §9's "bound memory under adversarial keys" note.
const Capacity = 32

type Captures struct {
	values [Capacity]string
	n      int
}

// Reset clears all captures, called at the start of each :matches test.
func (c *Captures) Reset() {
	c.n = 0
	for i := range c.values {
		c.values[i] = ""
	}
}

// Set stores group i's capture; indices beyond Capacity are dropped.
func (c *Captures) Set(i int, v string) {
	if i < 0 || i >= Capacity {
		return
	}
	c.values[i] = v
	if i+1 > c.n {
		c.n = i + 1
	}
}

// Get returns group i, or "" if never captured.
func (c *Captures) Get(i int) string {
	if i < 0 || i >= Capacity {
		return ""
	}
	return c.values[i]
}

// MatchType is a predicate family: :is, :contains, :matches, plus
// extension-provided :count/:value (spec.md §4.9).
type MatchType struct {
	Name string
	// Test reports whether key matches value under cmp, capturing any
	// wildcard groups from a successful :matches into caps (caps may be
	// nil for match types that never capture).
	Test func(cmp Comparator, value, key string, caps *Captures) bool
}

var Is = MatchType{
	Name: "is",
	Test: func(cmp Comparator, value, key string, _ *Captures) bool {
		return cmp.Equal(value, key)
	},
}

var Contains = MatchType{
	Name: "contains",
	Test: func(cmp Comparator, value, key string, _ *Captures) bool {
		if !cmp.SubstringMatch {
			return false
		}
		return cmp.Contains(value, key)
	},
}

var Matches = MatchType{
	Name: "matches",
	Test: func(cmp Comparator, value, key string, caps *Captures) bool {
		groups, ok := globMatch(value, key, cmp)
		if !ok {
			return false
		}
		if caps != nil {
			caps.Reset()
			caps.Set(0, value)
			for i, g := range groups {
				caps.Set(i+1, g)
			}
		}
		return true
	},
}

func CoreMatchTypes() map[string]MatchType {
	return map[string]MatchType{
		Is.Name:       Is,
		Contains.Name: Contains,
		Matches.Name:  Matches,
	}
}

// globMatch implements RFC 5228 §2.7.2 glob matching: "?" matches exactly
// one character, "*" matches zero or more, both only recognised in the
// pattern (key), never in value. Returns the substrings the "*" and "?"
// wildcards consumed, in left-to-right order, plus whether the whole value
// matched.
func globMatch(value, pattern string, cmp Comparator) ([]string, bool) {
	ok, groups := globMatchRunes([]rune(value), []rune(pattern), cmp)
	return groups, ok
}

// globMatchRunes matches v against pattern p, returning the substrings
// consumed by each "*" or "?" wildcard, in left-to-right order, on a
// successful match. "*" tries the shortest split first and backtracks.
func globMatchRunes(v, p []rune, cmp Comparator) (bool, []string) {
	if len(p) == 0 {
		return len(v) == 0, nil
	}
	switch p[0] {
	case '*':
		rest := p[1:]
		for i := 0; i <= len(v); i++ {
			if ok, groups := globMatchRunes(v[i:], rest, cmp); ok {
				return true, append([]string{string(v[:i])}, groups...)
			}
		}
		return false, nil
	case '?':
		if len(v) == 0 {
			return false, nil
		}
		ok, groups := globMatchRunes(v[1:], p[1:], cmp)
		if !ok {
			return false, nil
		}
		return true, append([]string{string(v[:1])}, groups...)
	case '\\':
		if len(p) < 2 || len(v) == 0 || !runeEqual(v[0], p[1], cmp) {
			return false, nil
		}
		return globMatchRunes(v[1:], p[2:], cmp)
	default:
		if len(v) == 0 || !runeEqual(v[0], p[0], cmp) {
			return false, nil
		}
		return globMatchRunes(v[1:], p[1:], cmp)
	}
}

func runeEqual(a, b rune, cmp Comparator) bool {
	return cmp.Equal(string(a), string(b))
}

// RelationalOp identifies one of the six operators the "relational"
// extension's :value match type accepts (RFC 5231).
type RelationalOp string

const (
	OpGT RelationalOp = "gt"
	OpGE RelationalOp = "ge"
	OpLT RelationalOp = "lt"
	OpLE RelationalOp = "le"
	OpEQ RelationalOp = "eq"
	OpNE RelationalOp = "ne"
)

// ValueMatchType returns the ":value" match type configured for op,
// contributed by the relational extension. When both operands parse as
// decimal integers they are compared numerically, whichever comparator is
// in use; otherwise the comparator's Equal (eq/ne) or Less (the ordering
// operators) decides, and a comparator with no Less never matches.
func ValueMatchType(op RelationalOp) MatchType {
	return MatchType{
		Name: "value",
		Test: func(cmp Comparator, value, key string, _ *Captures) bool {
			if vi, verr := strconv.ParseInt(value, 10, 64); verr == nil {
				if ki, kerr := strconv.ParseInt(key, 10, 64); kerr == nil {
					return compareOrdered(vi, ki, op)
				}
			}
			if cmp.Less == nil {
				return false
			}
			switch op {
			case OpGT:
				return cmp.Less(key, value)
			case OpGE:
				return !cmp.Less(value, key)
			case OpLT:
				return cmp.Less(value, key)
			case OpLE:
				return !cmp.Less(key, value)
			case OpEQ:
				return cmp.Equal(value, key)
			case OpNE:
				return !cmp.Equal(value, key)
			default:
				return false
			}
		},
	}
}

// CountMatchType returns the ":count" match type (RFC 5231 §4): unlike
// ":value", its Test is never called through the normal per-value
// MatchValue/MatchAny path — Context.MatchCount compares a field count
// directly against the (numeric) key using op, ignoring the comparator
// entirely (RFC 5231 "the comparator argument to a relational match
// test is ignored when :count is specified"). Test exists only so
// CountMatchType satisfies the MatchType shape uniformly with the other
// match types; it always reports false if reached.
func CountMatchType(op RelationalOp) MatchType {
	return MatchType{
		Name: "count",
		Test: func(Comparator, string, string, *Captures) bool { return false },
	}
}

func compareOrdered(a, b int64, op RelationalOp) bool {
	switch op {
	case OpGT:
		return a > b
	case OpGE:
		return a >= b
	case OpLT:
		return a < b
	case OpLE:
		return a <= b
	case OpEQ:
		return a == b
	case OpNE:
		return a != b
	default:
		return false
	}
}
