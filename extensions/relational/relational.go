// Package relational implements RFC 5231 "the relational extension":
// the ":count"/":value" match-types (match.CountMatchType/ValueMatchType,
// already built into the match package proper since every core test uses
// the same match-context machinery) and the "i;ascii-numeric" comparator.
// Its Load hook's only job is to make ":count"/":value" and the numeric
// comparator available, and to gate them behind `require "relational"`.
package relational

import (
	"strconv"
	"strings"

	"github.com/dovesieve/sieve/match"
	"github.com/dovesieve/sieve/registry"
)

const Name = "relational"

// asciiNumeric is "i;ascii-numeric" (RFC 4790): numeric comparison when
// both operands parse as non-negative decimal integers; a value that does
// not parse equals any other such value and sorts before every valid one
// (RFC 4790 §9.3's "strings
// which are not valid representations ... are considered equal to each
// other and less than any valid representation").
var asciiNumeric = match.Comparator{
	Name: "i;ascii-numeric",
	Equal: func(a, b string) bool {
		ai, aok := parseNonNegative(a)
		bi, bok := parseNonNegative(b)
		if !aok || !bok {
			return aok == bok
		}
		return ai == bi
	},
	Less: func(a, b string) bool {
		ai, aok := parseNonNegative(a)
		bi, bok := parseNonNegative(b)
		if !aok {
			return bok
		}
		if !bok {
			return false
		}
		return ai < bi
	},
}

func parseNonNegative(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// valueCountTags is the shared TagShape pair every match-context-eligible
// test gains once "relational" is required.
func valueCountTags() []registry.TagShape {
	return []registry.TagShape{
		{Name: "count", TakesParam: true},
		{Name: "value", TakesParam: true},
	}
}

// Load installs the "i;ascii-numeric" comparator and attaches the
// ":count"/":value" tags to every core match-context test (header,
// address, envelope); an extension enriching the match-context trio this
// way, rather than defining tests of its own, mirrors how imap4flags
// attaches ":flags" to the existing "keep" command instead of
// defining a command of its own (registry.AddCommandTag's doc comment).
func Load(r *registry.Registry) error {
	r.AddComparator(asciiNumeric)
	for _, tag := range valueCountTags() {
		if err := r.AddTestTag("header", tag); err != nil {
			return err
		}
		if err := r.AddTestTag("address", tag); err != nil {
			return err
		}
		if err := r.AddTestTag("envelope", tag); err != nil {
			return err
		}
		if _, ok := r.Test("body"); ok {
			if err := r.AddTestTag("body", tag); err != nil {
				return err
			}
		}
		if _, ok := r.Test("string"); ok {
			if err := r.AddTestTag("string", tag); err != nil {
				return err
			}
		}
	}
	return nil
}

// Extension is the registry.Extension a host registers to make
// ":count"/":value" and "i;ascii-numeric" available.
var Extension = &registry.Extension{Name: Name, Version: "1.0", Load: Load}
