package interpreter

import (
	"github.com/dovesieve/sieve/match"
	"github.com/dovesieve/sieve/sieveerr"
)

// readMatchContext decodes the (comparator, match-type[, relational op])
// triple codegen.emitMatchContext wrote, reconstructing an equivalent
// match.Context with this run's capture store.
func (it *interp) readMatchContext(keys []string) (match.Context, error) {
	cmpName, err := it.ReadString()
	if err != nil {
		return match.Context{}, sieveerr.Wrap(sieveerr.KindBinCorrupt, "reading comparator", err)
	}
	cmp, ok := it.reg.Comparator(cmpName)
	if !ok {
		return match.Context{}, sieveerr.New(sieveerr.KindBinCorrupt, "unknown comparator "+cmpName)
	}
	typeName, err := it.ReadString()
	if err != nil {
		return match.Context{}, sieveerr.Wrap(sieveerr.KindBinCorrupt, "reading match type", err)
	}

	var mt match.MatchType
	var op match.RelationalOp
	switch typeName {
	case "value", "count":
		opStr, err := it.ReadString()
		if err != nil {
			return match.Context{}, sieveerr.Wrap(sieveerr.KindBinCorrupt, "reading relational operator", err)
		}
		op = match.RelationalOp(opStr)
		if typeName == "count" {
			mt = match.CountMatchType(op)
		} else {
			mt = match.ValueMatchType(op)
		}
	default:
		var ok bool
		mt, ok = it.reg.MatchType(typeName)
		if !ok {
			return match.Context{}, sieveerr.New(sieveerr.KindBinCorrupt, "unknown match type "+typeName)
		}
	}

	it.caps.Reset()
	return match.Context{Comparator: cmp, Type: mt, Keys: keys, Caps: &it.caps, Op: op}, nil
}

func (it *interp) readAddressPart() (match.AddressPart, error) {
	name, err := it.ReadString()
	if err != nil {
		return match.AddressPart{}, sieveerr.Wrap(sieveerr.KindBinCorrupt, "reading address part", err)
	}
	part, ok := it.reg.AddressPart(name)
	if !ok {
		return match.AddressPart{}, sieveerr.New(sieveerr.KindBinCorrupt, "unknown address part "+name)
	}
	return part, nil
}

// execKeep reads the (hasFlags byte[, flag string-list]) operand pair
// codegen's "keep" case writes: an explicit ":flags" tag (imap4flags)
// overrides the ambient unnamed flag variable setflag/addflag maintain.
func (it *interp) execKeep() error {
	hasFlags, err := it.ReadByte()
	if err != nil {
		return sieveerr.Wrap(sieveerr.KindBinCorrupt, "reading keep flags marker", err)
	}
	if hasFlags == 0 {
		return it.acc.Add("keep", "", nil, it.flags[""])
	}
	raw, err := it.ReadStringList()
	if err != nil {
		return sieveerr.Wrap(sieveerr.KindBinCorrupt, "reading keep flags", err)
	}
	flags := make([]string, len(raw))
	for i, f := range raw {
		flags[i] = it.ExpandVariables(f)
	}
	return it.acc.Add("keep", "", nil, flags)
}

func (it *interp) execExists() error {
	names, err := it.ReadStringList()
	if err != nil {
		return sieveerr.Wrap(sieveerr.KindBinCorrupt, "reading exists header names", err)
	}
	allPresent := true
	for _, name := range names {
		vals, err := it.Header(name)
		if err != nil {
			return err
		}
		if len(vals) == 0 {
			allPresent = false
		}
	}
	it.testResult = allPresent
	return nil
}

func (it *interp) execHeader() error {
	names, err := it.ReadStringList()
	if err != nil {
		return sieveerr.Wrap(sieveerr.KindBinCorrupt, "reading header names", err)
	}
	keys, err := it.ReadStringList()
	if err != nil {
		return sieveerr.Wrap(sieveerr.KindBinCorrupt, "reading header keys", err)
	}
	ctx, err := it.readMatchContext(keys)
	if err != nil {
		return err
	}

	if ctx.Type.Name == "count" {
		count := 0
		for _, name := range names {
			vals, err := it.Header(name)
			if err != nil {
				return err
			}
			count += len(vals)
		}
		it.testResult = ctx.MatchCount(count)
		return nil
	}

	matched := false
	for _, name := range names {
		vals, err := it.Header(name)
		if err != nil {
			return err
		}
		if ctx.MatchAny(vals) {
			matched = true
		}
	}
	it.testResult = matched
	return nil
}

func (it *interp) execAddress() error {
	names, err := it.ReadStringList()
	if err != nil {
		return sieveerr.Wrap(sieveerr.KindBinCorrupt, "reading address header names", err)
	}
	keys, err := it.ReadStringList()
	if err != nil {
		return sieveerr.Wrap(sieveerr.KindBinCorrupt, "reading address keys", err)
	}
	ctx, err := it.readMatchContext(keys)
	if err != nil {
		return err
	}
	part, err := it.readAddressPart()
	if err != nil {
		return err
	}

	if ctx.Type.Name == "count" {
		count := 0
		for _, name := range names {
			vals, err := it.Header(name)
			if err != nil {
				return err
			}
			count += len(vals)
		}
		it.testResult = ctx.MatchCount(count)
		return nil
	}

	matched := false
	for _, name := range names {
		vals, err := it.Header(name)
		if err != nil {
			return err
		}
		for _, v := range vals {
			if ctx.MatchValue(part.Extract(v)) {
				matched = true
			}
		}
	}
	it.testResult = matched
	return nil
}

func (it *interp) execEnvelope() error {
	parts, err := it.ReadStringList()
	if err != nil {
		return sieveerr.Wrap(sieveerr.KindBinCorrupt, "reading envelope parts", err)
	}
	keys, err := it.ReadStringList()
	if err != nil {
		return sieveerr.Wrap(sieveerr.KindBinCorrupt, "reading envelope keys", err)
	}
	ctx, err := it.readMatchContext(keys)
	if err != nil {
		return err
	}
	part, err := it.readAddressPart()
	if err != nil {
		return err
	}

	if ctx.Type.Name == "count" {
		it.testResult = ctx.MatchCount(len(parts))
		return nil
	}

	matched := false
	for _, p := range parts {
		v, err := it.Envelope(p)
		if err != nil {
			return err
		}
		if ctx.MatchValue(part.Extract(v)) {
			matched = true
		}
	}
	it.testResult = matched
	return nil
}

func (it *interp) execSize(over bool) error {
	threshold, err := it.ReadUvarint()
	if err != nil {
		return sieveerr.Wrap(sieveerr.KindBinCorrupt, "reading size threshold", err)
	}
	size := it.Size()
	if over {
		it.testResult = size > int64(threshold)
	} else {
		it.testResult = size < int64(threshold)
	}
	return nil
}

func (it *interp) execRedirect() error {
	addr, err := it.ReadString()
	if err != nil {
		return sieveerr.Wrap(sieveerr.KindBinCorrupt, "reading redirect address", err)
	}
	return it.AddAction("redirect", map[string]any{"address": it.ExpandVariables(addr)}, nil)
}

func (it *interp) execInclude() error {
	flags, err := it.ReadByte()
	if err != nil {
		return sieveerr.Wrap(sieveerr.KindBinCorrupt, "reading include flags", err)
	}
	name, err := it.ReadString()
	if err != nil {
		return sieveerr.Wrap(sieveerr.KindBinCorrupt, "reading include script name", err)
	}

	optional := flags&includeFlagOptional != 0
	global := flags&includeFlagGlobal != 0

	if len(it.includeStack) >= it.cfg.MaxIncludeDepth {
		return sieveerr.New(sieveerr.KindRuntime, "maximum include depth exceeded")
	}
	if it.includeCount >= it.cfg.MaxIncludeCount {
		return sieveerr.New(sieveerr.KindRuntime, "maximum include count exceeded")
	}
	if it.cfg.Resolve == nil {
		if optional {
			return nil
		}
		return sieveerr.New(sieveerr.KindBinCorrupt, "no include resolver configured for \""+name+"\"")
	}

	included, err := it.cfg.Resolve(name, !global)
	if err != nil {
		if optional {
			return nil
		}
		return sieveerr.Wrap(sieveerr.KindBinCorrupt, "resolving include \""+name+"\"", err)
	}

	it.includeCount++
	it.pushInclude(included.MainBlock())
	return nil
}

// include flag bits, mirroring codegen's encoding.
const (
	includeFlagOnce byte = 1 << iota
	includeFlagOptional
	includeFlagGlobal
)
