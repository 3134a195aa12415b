package interpreter

import (
	"regexp"
	"strings"
	"time"

	"github.com/dovesieve/sieve/binary"
	"github.com/dovesieve/sieve/match"
	"github.com/dovesieve/sieve/message"
	"github.com/dovesieve/sieve/registry"
	"github.com/dovesieve/sieve/sieveerr"
)

// registry.ExecAPI implementation: the narrow surface extension
// commands'/tests' Execute hooks get, so they never import this package.

func (it *interp) ReadByte() (byte, error) { return it.r.ReadByte() }

func (it *interp) ReadUvarint() (uint64, error) { return binary.ReadUvarint(it.r) }

func (it *interp) ReadOffset() (int64, error) { return binary.ReadOffset(it.r) }

func (it *interp) ReadString() (string, error) { return binary.ReadString(it.r) }

func (it *interp) ReadStringList() ([]string, error) {
	n, err := binary.ReadUvarint(it.r)
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		if it.cfg.Cancelled != nil && it.cfg.Cancelled() {
			return nil, nil
		}
		s, err := binary.ReadString(it.r)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// variableRef matches "${name}" references the variables extension
// interpolates (spec.md §9); numeric names address match.Captures groups
// instead of the named variable store.
var variableRef = regexp.MustCompile(`\$\{([A-Za-z0-9_.]*)\}`)

func (it *interp) ExpandVariables(s string) string {
	if !it.reg.RequireExtension("variables") {
		return s
	}
	return variableRef.ReplaceAllStringFunc(s, func(ref string) string {
		name := ref[2 : len(ref)-1]
		if name == "" {
			return ref
		}
		if idx, ok := parseCaptureIndex(name); ok {
			return it.caps.Get(idx)
		}
		if v, ok := it.vars[strings.ToLower(name)]; ok {
			return v
		}
		return ""
	})
}

func parseCaptureIndex(name string) (int, bool) {
	if name == "" {
		return 0, false
	}
	n := 0
	for _, c := range name {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

func (it *interp) Header(name string) ([]string, error) {
	vals, err := it.msg.Header(name)
	if err != nil {
		return nil, wrapMessageError(err)
	}
	return vals, nil
}

func (it *interp) Envelope(part string) (string, error) {
	v, err := it.msg.Envelope(part)
	if err != nil {
		return "", wrapMessageError(err)
	}
	return v, nil
}

func (it *interp) Size() int64 { return it.msg.Size() }

func (it *interp) BodyText(contentType string) (string, error) {
	v, err := it.msg.Body(contentType)
	if err != nil {
		return "", wrapMessageError(err)
	}
	return v, nil
}

// wrapMessageError turns a host message-access failure into a
// temp_failure, per spec.md §4.8 "Blocking I/O ... treats these as
// synchronous calls that may return temp_failure promptly".
func wrapMessageError(err error) error {
	if err == nil {
		return nil
	}
	return sieveerr.Wrap(sieveerr.KindTempFailure, "message access failed", err)
}

func (it *interp) SetTestResult(v bool) { it.testResult = v }

func (it *interp) DecodeMatchContext(keys []string) (match.Context, error) {
	return it.readMatchContext(keys)
}

func (it *interp) AddAction(kind string, detail map[string]any, flags []string) error {
	key := ""
	if detail != nil {
		if k, ok := detail["address"].(string); ok {
			key = k
		} else if k, ok := detail["folder"].(string); ok {
			key = k
		} else if k, ok := detail["handle"].(string); ok {
			key = k
		}
	}
	return it.acc.Add(kind, key, detail, flags)
}

func (it *interp) SetFlags(variable string, flags []string, mode registry.FlagMode) {
	switch mode {
	case registry.FlagAdd:
		it.flags[variable] = append(it.flags[variable], flags...)
	case registry.FlagRemove:
		it.flags[variable] = removeAll(it.flags[variable], flags)
	default:
		it.flags[variable] = flags
	}
}

func removeAll(set, remove []string) []string {
	out := set[:0:0]
	for _, v := range set {
		drop := false
		for _, r := range remove {
			if v == r {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, v)
		}
	}
	return out
}

func (it *interp) Flags(variable string) []string { return it.flags[variable] }

func (it *interp) Var(name string) (string, bool) {
	v, ok := it.vars[strings.ToLower(name)]
	return v, ok
}

func (it *interp) SetVar(name, value string) { it.vars[strings.ToLower(name)] = value }

func (it *interp) CheckDuplicate(key string, period time.Duration) (bool, error) {
	if it.cfg.Duplicates == nil {
		return false, nil
	}
	return it.cfg.Duplicates.Seen(key, period)
}

func (it *interp) Cancelled() bool {
	return it.cfg.Cancelled != nil && it.cfg.Cancelled()
}

func (it *interp) EditHeader() (message.Editor, bool) {
	ed, ok := it.msg.(message.Editor)
	return ed, ok
}
