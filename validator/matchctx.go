package validator

import (
	"github.com/dovesieve/sieve/ast"
	"github.com/dovesieve/sieve/match"
	"github.com/dovesieve/sieve/registry"
)

// ResolveMatchContext implements registry.ValidateAPI: it reads whichever
// comparator/match-type/address-part tags are present on test (defaulting
// per spec.md §4.9), annotates the resolved match.Context and address-part
// onto the AST so Generate hooks can read it back, and returns the context
// for a Validate hook that wants to do compile-time key checking (e.g. the
// relational extension parsing its operator key).
func (v *Validator) ResolveMatchContext(test ast.NodeID, keys []string) match.Context {
	info := v.infoFor(test)
	line := v.tree.Arena.Node(test).Line()

	comparatorName := "i;ascii-casemap"
	if param, ok := info.tagParam["comparator"]; ok {
		if vals := v.tree.Arena.StringListValues(param); len(vals) > 0 {
			comparatorName = vals[0]
		}
	}
	cmp, ok := v.reg.Comparator(comparatorName)
	if !ok {
		v.sink.Errorf(line, "unknown comparator %q", comparatorName)
		cmp = match.ASCIICasemap
	}

	mt, op := v.resolveMatchType(info, line)

	caps := &match.Captures{}
	ctx := match.Context{Comparator: cmp, Type: mt, Keys: keys, Caps: caps, Op: op}
	v.tree.Arena.Annotate(test, registry.AnnMatchContext, ctx)

	if info.addressPartEligible {
		v.resolveAddressPart(test, info, line)
	}
	return ctx
}

// resolveMatchType picks :is (default), :contains, :matches, or the
// relational extension's :count/:value (whose parameter selects one of
// six RelationalOp comparisons), returning the chosen op alongside (empty
// for the non-relational match types).
func (v *Validator) resolveMatchType(info *argInfo, line int) (match.MatchType, match.RelationalOp) {
	for _, name := range []string{"matches", "contains", "is"} {
		if info.tagPresent[name] {
			mt, ok := v.reg.MatchType(name)
			if ok {
				return mt, ""
			}
		}
	}
	if info.tagPresent["count"] {
		op := relationalOp(v, info, "count")
		return match.CountMatchType(op), op
	}
	if info.tagPresent["value"] {
		op := relationalOp(v, info, "value")
		return match.ValueMatchType(op), op
	}
	mt, _ := v.reg.MatchType("is")
	return mt, ""
}

// relationalOp reads the operator key off the :count/:value tag's own
// parameter string-list, defaulting to "eq" per RFC 5231 if absent.
func relationalOp(v *Validator, info *argInfo, tag string) match.RelationalOp {
	op := match.OpEQ
	if param, ok := info.tagParam[tag]; ok {
		if vals := v.tree.Arena.StringListValues(param); len(vals) > 0 {
			op = match.RelationalOp(vals[0])
		}
	}
	return op
}

func (v *Validator) resolveAddressPart(test ast.NodeID, info *argInfo, line int) {
	partName := "all"
	for _, name := range []string{"localpart", "domain", "user", "detail", "all"} {
		if info.tagPresent[name] {
			partName = name
			break
		}
	}
	part, ok := v.reg.AddressPart(partName)
	if !ok {
		v.sink.Errorf(line, "unknown address part %q", partName)
		part, _ = v.reg.AddressPart("all")
	}
	v.tree.Arena.Annotate(test, registry.AnnAddressPart, part)
}
